package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	parser "github.com/likexian/whois-parser"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
)

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// WhoisAge estimates how long ago a domain was registered.
type WhoisAge struct {
	fetch func(domain string) (string, error)
	now   func() time.Time
}

// NewWhoisAge returns a WHOIS client bounded by timeout per query.
func NewWhoisAge(timeout time.Duration) *WhoisAge {
	client := whois.NewClient().SetTimeout(timeout)
	return &WhoisAge{
		fetch: func(domain string) (string, error) { return client.Whois(domain) },
		now:   time.Now,
	}
}

// AgeDays returns the age in whole days of the registrable domain behind
// host. IP literals and hosts without a public suffix are rejected.
func (w *WhoisAge) AgeDays(ctx context.Context, host string) (int, error) {
	if host == "" || features.IsIPv4Literal(host) {
		return 0, errors.New("no registrable domain")
	}
	d := features.Registrable(host)
	if d.Label == "" || d.Suffix == "" {
		return 0, fmt.Errorf("no registrable domain for %q", host)
	}
	domain := d.Label + "." + d.Suffix

	type result struct {
		created time.Time
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		created, err := w.created(domain)
		ch <- result{created, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		days := int(w.now().Sub(r.created).Hours() / 24)
		if days < 0 {
			days = 0
		}
		return days, nil
	}
}

func (w *WhoisAge) created(domain string) (time.Time, error) {
	raw, err := w.fetch(domain)
	if err != nil {
		return time.Time{}, fmt.Errorf("whois %s: %w", domain, err)
	}
	info, err := parser.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse whois %s: %w", domain, err)
	}
	if info.Domain == nil {
		return time.Time{}, fmt.Errorf("whois %s: no domain section", domain)
	}
	return parseWhoisDate(info.Domain.CreatedDate)
}

func parseWhoisDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("no creation date")
	}
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised creation date %q", s)
}
