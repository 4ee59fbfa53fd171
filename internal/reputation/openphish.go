package reputation

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	openPhishFeedURL  = "https://raw.githubusercontent.com/openphish/public_feed/refs/heads/main/feed.txt"
	openPhishCacheTTL = 12 * time.Hour
)

// OpenPhish matches URLs against the OpenPhish community feed. The feed is
// cached in memory and refreshed at most once per TTL.
type OpenPhish struct {
	feedURL string
	ttl     time.Duration
	client  *http.Client
	logger  *slog.Logger

	mu        sync.RWMutex
	entries   *phishFeed
	fetchedAt time.Time
}

// phishFeed holds normalized feed URLs plus the hosts listed as a whole.
// A host is listed only when the feed names its bare root; a phishing page
// on a shared host such as docs.google.com/forms/... never lists the host.
type phishFeed struct {
	urls  map[string]struct{}
	hosts map[string]struct{}
}

func (f *phishFeed) size() int {
	if f == nil {
		return 0
	}
	return len(f.urls) + len(f.hosts)
}

// normalizeFeedURL lowercases scheme and host, drops the fragment and a bare
// trailing slash. It returns the host separately and whether the URL is the
// host's root.
func normalizeFeedURL(raw string) (key, host string, root bool, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", "", false, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "/" {
		u.Path = ""
		u.RawPath = ""
	}
	root = u.Path == "" && u.RawQuery == "" && !u.ForceQuery && u.User == nil
	return u.String(), u.Hostname(), root, true
}

// NewOpenPhish returns a feed client for feedURL, or the public feed when
// feedURL is empty.
func NewOpenPhish(feedURL string, logger *slog.Logger) *OpenPhish {
	if feedURL == "" {
		feedURL = openPhishFeedURL
	}
	return &OpenPhish{
		feedURL: feedURL,
		ttl:     openPhishCacheTTL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Contains reports whether the URL is listed, or its host is listed as a
// whole. A stale cache is refreshed first; if that fails the previous
// snapshot is used.
func (o *OpenPhish) Contains(ctx context.Context, rawURL string) (bool, error) {
	feed, err := o.snapshot(ctx)
	if feed == nil {
		return false, err
	}
	key, host, _, ok := normalizeFeedURL(rawURL)
	if !ok {
		return false, err
	}
	if _, hit := feed.urls[key]; hit {
		return true, nil
	}
	if _, hit := feed.hosts[host]; hit {
		return true, nil
	}
	return false, nil
}

// Size returns the number of cached entries.
func (o *OpenPhish) Size() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entries.size()
}

func (o *OpenPhish) snapshot(ctx context.Context) (*phishFeed, error) {
	o.mu.RLock()
	if o.entries != nil && time.Since(o.fetchedAt) < o.ttl {
		defer o.mu.RUnlock()
		return o.entries, nil
	}
	o.mu.RUnlock()

	if err := o.Refresh(ctx); err != nil {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return o.entries, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entries, nil
}

// Refresh downloads the feed unless another caller refreshed it meanwhile.
func (o *OpenPhish) Refresh(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.entries != nil && time.Since(o.fetchedAt) < o.ttl {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.feedURL, nil)
	if err != nil {
		return fmt.Errorf("build feed request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch openphish feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openphish feed returned %d", resp.StatusCode)
	}

	feed := &phishFeed{urls: make(map[string]struct{}), hosts: make(map[string]struct{})}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		key, host, root, ok := normalizeFeedURL(sc.Text())
		if !ok {
			continue
		}
		feed.urls[key] = struct{}{}
		if root {
			feed.hosts[host] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read openphish feed: %w", err)
	}

	if feed.size() > 0 {
		o.entries = feed
		o.fetchedAt = time.Now()
		o.logger.Info("openphish feed refreshed", "urls", len(feed.urls), "hosts", len(feed.hosts))
	}
	return nil
}

// RefreshLoop keeps the cache warm so scans rarely pay for a download.
func (o *OpenPhish) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(o.ttl)
	defer ticker.Stop()
	for {
		if err := o.Refresh(ctx); err != nil {
			o.logger.Warn("openphish refresh failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
