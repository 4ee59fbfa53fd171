package reputation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

var defaultNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Resolver answers whether a host exists in DNS.
type Resolver struct {
	servers []string
	timeout time.Duration
}

// NewResolver uses the system resolv.conf servers when readable, falling
// back to public resolvers.
func NewResolver(timeout time.Duration) *Resolver {
	servers := defaultNameservers
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		servers = make([]string, 0, len(cfg.Servers))
		for _, s := range cfg.Servers {
			servers = append(servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	return &Resolver{servers: servers, timeout: timeout}
}

// NewResolverWithServers queries only the given host:port nameservers.
func NewResolverWithServers(timeout time.Duration, servers ...string) *Resolver {
	return &Resolver{servers: servers, timeout: timeout}
}

// Exists returns false only on an authoritative NXDOMAIN. Any other rcode
// counts as existing; transport failures on every server return an error.
func (r *Resolver) Exists(ctx context.Context, host string) (bool, error) {
	if host == "" {
		return false, errors.New("empty host")
	}
	if net.ParseIP(host) != nil {
		return true, nil
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, err := r.exchange(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Rcode != dns.RcodeNameError, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return false, fmt.Errorf("resolve %s: %w", host, lastErr)
}

// exchange tries UDP first and retries over TCP when the answer was
// truncated.
func (r *Resolver) exchange(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, error) {
	udp := &dns.Client{Net: "udp", Timeout: r.timeout}
	resp, _, err := udp.ExchangeContext(ctx, m, server)
	if err == nil && !resp.Truncated {
		return resp, nil
	}
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	tcp := &dns.Client{Net: "tcp", Timeout: r.timeout}
	resp, _, err = tcp.ExchangeContext(ctx, m, server)
	return resp, err
}
