// Package reputation aggregates external threat-intelligence signals for a
// URL. Every source is best effort: a failure only ever produces Error,
// never a harsher verdict.
package reputation

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
)

// Status is the aggregate reputation answer.
type Status string

const (
	Danger Status = "Danger"
	Safe   Status = "Safe"
	Error  Status = "Error"
)

// Source names reported in Report.Sources.
const (
	SourceSafeBrowsing = "Google Safe Browsing"
	SourceOpenPhish    = "OpenPhish"
)

// Report is what one lookup learned about a URL.
type Report struct {
	Status        Status   `json:"status"`
	Sources       []string `json:"sources,omitempty"`
	DomainAgeDays int      `json:"domain_age_days,omitempty"`
	AgeKnown      bool     `json:"age_known"`
	NXDomain      bool     `json:"nxdomain"`
}

// URLChecker is a list-style source that can flag a URL.
type URLChecker interface {
	Check(ctx context.Context, rawURL string) (Status, error)
}

// Lookup fans out to every configured source. Nil sources are skipped.
type Lookup struct {
	SafeBrowsing URLChecker
	OpenPhish    *OpenPhish
	Whois        *WhoisAge
	Resolver     *Resolver
	Logger       *slog.Logger
}

// Check runs all sources concurrently under ctx. Any Danger wins; otherwise
// a single clean answer gives Safe; otherwise Error.
func (l *Lookup) Check(ctx context.Context, rawURL string) Report {
	host := features.Parse(rawURL).Host

	var (
		mu      sync.Mutex
		rep     Report
		clean   bool
		flagged bool
	)
	record := func(source string, s Status, err error) {
		if err != nil {
			l.warn(source, rawURL, err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch s {
		case Danger:
			flagged = true
			rep.Sources = append(rep.Sources, source)
		case Safe:
			clean = true
		}
	}

	// Errors are recorded, never returned, so one slow source cannot cancel
	// the others.
	var g errgroup.Group
	if l.SafeBrowsing != nil {
		g.Go(func() error {
			s, err := l.SafeBrowsing.Check(ctx, rawURL)
			record(SourceSafeBrowsing, s, err)
			return nil
		})
	}
	if l.OpenPhish != nil {
		g.Go(func() error {
			hit, err := l.OpenPhish.Contains(ctx, rawURL)
			s := Safe
			if hit {
				s = Danger
			}
			record(SourceOpenPhish, s, err)
			return nil
		})
	}
	if l.Whois != nil && host != "" {
		g.Go(func() error {
			days, err := l.Whois.AgeDays(ctx, host)
			if err != nil {
				l.debug("whois", rawURL, err)
				return nil
			}
			mu.Lock()
			rep.DomainAgeDays, rep.AgeKnown = days, true
			mu.Unlock()
			return nil
		})
	}
	if l.Resolver != nil && host != "" {
		g.Go(func() error {
			exists, err := l.Resolver.Exists(ctx, host)
			if err != nil {
				l.debug("dns", rawURL, err)
				return nil
			}
			mu.Lock()
			rep.NXDomain = !exists
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case flagged:
		rep.Status = Danger
	case clean:
		rep.Status = Safe
	default:
		rep.Status = Error
	}
	return rep
}

func (l *Lookup) warn(source, rawURL string, err error) {
	if l.Logger != nil {
		l.Logger.Warn("reputation source failed", "source", source, "url", rawURL, "err", err)
	}
}

func (l *Lookup) debug(source, rawURL string, err error) {
	if l.Logger != nil {
		l.Logger.Debug("reputation signal unavailable", "source", source, "url", rawURL, "err", err)
	}
}
