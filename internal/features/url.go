package features

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Parts is the lenient decomposition of a URL string. Every field may be empty.
type Parts struct {
	Scheme string
	Host   string // lowercase, ASCII, no userinfo or port
	Path   string
	Query  string
}

var lookupProfile = idna.New(idna.MapForLookup(), idna.Transitional(false))

var dottedQuad = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// Parse splits raw into scheme, host, path and query without ever failing.
// Strings without a scheme are treated as starting with the host.
func Parse(raw string) Parts {
	s := strings.TrimSpace(raw)
	var p Parts
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		p = Parts{
			Scheme: strings.ToLower(u.Scheme),
			Host:   u.Hostname(),
			Path:   u.Path,
			Query:  u.RawQuery,
		}
	} else {
		p = splitLoose(s)
	}
	p.Host = asciiHost(strings.ToLower(p.Host))
	return p
}

// splitLoose handles what net/url rejects or leaves hostless, e.g.
// "example.com/login" or strings with stray control characters.
func splitLoose(s string) Parts {
	var p Parts
	rest := s
	if i := strings.Index(rest, "://"); i > 0 {
		p.Scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
	} else {
		rest = strings.TrimPrefix(rest, "//")
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		p.Query = rest[i+1:]
		rest = rest[:i]
	}

	authority := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		p.Path = rest[i:]
	}
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		authority = authority[i+1:]
	}
	if strings.HasPrefix(authority, "[") {
		if i := strings.IndexByte(authority, ']'); i > 0 {
			authority = authority[1:i]
		}
	} else if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		authority = authority[:i]
	}
	p.Host = authority
	return p
}

func asciiHost(host string) string {
	if host == "" || isASCII(host) {
		return host
	}
	if converted, err := lookupProfile.ToASCII(host); err == nil && converted != "" {
		return converted
	}
	return host
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// IsIPv4Literal reports whether host is an exact dotted quad.
func IsIPv4Literal(host string) bool {
	return dottedQuad.MatchString(host)
}

// Domain is the public-suffix split of a host.
type Domain struct {
	Subdomain string // "mail" in mail.google.co.uk
	Label     string // "google"
	Suffix    string // "co.uk"
}

// Registrable splits host into subdomain, registrable label and public suffix.
// IP literals and single-label hosts come back as a bare label.
func Registrable(host string) Domain {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return Domain{}
	}
	if IsIPv4Literal(host) || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return Domain{Label: host}
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// host is itself a public suffix, e.g. "co.uk"
		return Domain{Suffix: host}
	}
	suffix, _ := publicsuffix.PublicSuffix(host)

	d := Domain{
		Label:  strings.TrimSuffix(etld1, "."+suffix),
		Suffix: suffix,
	}
	if sub := strings.TrimSuffix(host, etld1); sub != host {
		d.Subdomain = strings.TrimSuffix(sub, ".")
	}
	return d
}
