// Package netguard provides SSRF protection by blocking connections to
// private/internal IP ranges. Used by the alert webhook sink, both when the
// webhook is configured and at connection time.
package netguard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// BlockedCIDRs are private/internal networks that outbound calls must never resolve to.
var BlockedCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",    // loopback
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918 / Docker bridge networks
		"192.168.0.0/16", // RFC1918
		"169.254.0.0/16", // link-local / cloud metadata
		"100.64.0.0/10",  // carrier-grade NAT
		"0.0.0.0/8",      // unspecified
		"::1/128",        // IPv6 loopback
		"fe80::/10",      // IPv6 link-local
		"fc00::/7",       // IPv6 unique local
	}
	var nets []*net.IPNet
	for _, c := range cidrs {
		_, ipNet, _ := net.ParseCIDR(c)
		nets = append(nets, ipNet)
	}
	return nets
}()

// IsBlocked returns true if the IP falls within a private/internal range.
func IsBlocked(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, cidr := range BlockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// CheckURL rejects URLs that are not http(s) or whose host resolves to a
// blocked address.
func CheckURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsBlocked(ip) {
			return fmt.Errorf("host %s is a blocked private IP", host)
		}
		return nil
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ipAddr := range ips {
		if IsBlocked(ipAddr.IP) {
			return fmt.Errorf("host %s resolves to blocked private IP %s", host, ipAddr.IP)
		}
	}
	return nil
}

var safeDialer = &net.Dialer{Timeout: 10 * time.Second}

// SafeDialContext resolves addr and refuses to connect if any address is blocked.
func SafeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsBlocked(ip) {
			return nil, fmt.Errorf("%s is a blocked private IP", addr)
		}
		return safeDialer.DialContext(ctx, network, addr)
	}

	// Resolve the host to IPs and check each one BEFORE connecting.
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	for _, ipAddr := range ips {
		if IsBlocked(ipAddr.IP) {
			return nil, fmt.Errorf("%s resolves to blocked private IP %s", addr, ipAddr.IP)
		}
	}
	return safeDialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}

// NewClient returns an HTTP client whose connections go through SafeDialContext.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         SafeDialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}
