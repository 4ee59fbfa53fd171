package reputation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedChecker struct {
	status Status
	err    error
}

func (f fixedChecker) Check(context.Context, string) (Status, error) { return f.status, f.err }

func TestSafeBrowsingMatch(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("key = %q, want k", r.URL.Query().Get("key"))
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		fmt.Fprint(w, `{"matches":[{"threatType":"SOCIAL_ENGINEERING"}]}`)
	}))
	defer srv.Close()

	sb := NewSafeBrowsing("k")
	sb.endpoint = srv.URL
	s, err := sb.Check(context.Background(), "http://bad.example/login")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if s != Danger {
		t.Fatalf("status = %s, want Danger", s)
	}
	for _, want := range []string{`"clientId":"LinkBuster-AI"`, `"url":"http://bad.example/login"`, "SOCIAL_ENGINEERING"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %s: %s", want, body)
		}
	}
}

func TestSafeBrowsingClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	sb := NewSafeBrowsing("k")
	sb.endpoint = srv.URL
	if s, err := sb.Check(context.Background(), "https://ok.example"); err != nil || s != Safe {
		t.Fatalf("check = %s, %v; want Safe", s, err)
	}
}

func TestSafeBrowsingErrors(t *testing.T) {
	if s, err := NewSafeBrowsing("").Check(context.Background(), "https://x.example"); err == nil || s != Error {
		t.Fatalf("missing key = %s, %v; want Error", s, err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	sb := NewSafeBrowsing("k")
	sb.endpoint = srv.URL
	if s, err := sb.Check(context.Background(), "https://x.example"); err == nil || s != Error {
		t.Fatalf("429 = %s, %v; want Error", s, err)
	}
}

func TestOpenPhishContainsAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprintln(w, "https://evil.example/verify")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "http://Phish.Test/a#frag")
		fmt.Fprintln(w, "https://whole-site.example/")
	}))
	defer srv.Close()

	op := NewOpenPhish(srv.URL, testLogger())
	ctx := context.Background()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://evil.example/verify", true},
		{"HTTPS://EVIL.example/verify", true},
		{"https://evil.example/other", false},
		{"https://evil.example", false},
		{"http://phish.test/a", true},
		{"http://phish.test/zzz", false},
		{"https://whole-site.example/login", true},
		{"https://whole-site.example", true},
		{"https://benign.example/", false},
	}
	for _, tt := range tests {
		got, err := op.Contains(ctx, tt.url)
		if err != nil {
			t.Fatalf("contains %s: %v", tt.url, err)
		}
		if got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.url, got, tt.want)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("feed fetched %d times, want 1", n)
	}
	if op.Size() != 4 {
		t.Fatalf("size = %d, want 4", op.Size())
	}
}

func TestOpenPhishSharedHostNotListed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "https://www.google.com/url?q=http://evil.example/phish")
		fmt.Fprintln(w, "https://docs.google.com/forms/d/e/1FAIpQLSf-phish/viewform")
	}))
	defer srv.Close()

	op := NewOpenPhish(srv.URL, testLogger())
	ctx := context.Background()
	for _, u := range []string{
		"https://www.google.com",
		"https://www.google.com/",
		"https://docs.google.com/document/d/legit",
	} {
		hit, err := op.Contains(ctx, u)
		if err != nil {
			t.Fatalf("contains %s: %v", u, err)
		}
		if hit {
			t.Errorf("Contains(%s) = true; a listed page must not list its host", u)
		}
	}
	hit, err := op.Contains(ctx, "https://docs.google.com/forms/d/e/1FAIpQLSf-phish/viewform")
	if err != nil || !hit {
		t.Fatalf("exact listed form = %v, %v; want true", hit, err)
	}
}

func TestOpenPhishKeepsStaleSnapshotOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprintln(w, "https://evil.example/x")
	}))
	defer srv.Close()

	op := NewOpenPhish(srv.URL, testLogger())
	if err := op.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fail.Store(true)
	op.fetchedAt = time.Now().Add(-13 * time.Hour)

	hit, err := op.Contains(context.Background(), "https://evil.example/x")
	if err == nil {
		t.Fatal("expected refresh error")
	}
	if !hit {
		t.Fatal("stale snapshot should still match")
	}
}

func TestParseWhoisDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-05T10:00:00Z", "2024-03-05"},
		{"2024-03-05 10:00:00", "2024-03-05"},
		{"2024-03-05", "2024-03-05"},
		{"05-Mar-2024", "2024-03-05"},
		{"2024.03.05", "2024-03-05"},
	}
	for _, tt := range tests {
		got, err := parseWhoisDate(tt.in)
		if err != nil {
			t.Errorf("parseWhoisDate(%q): %v", tt.in, err)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("parseWhoisDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}
	if _, err := parseWhoisDate("last tuesday"); err == nil {
		t.Error("expected error for unparseable date")
	}
	if _, err := parseWhoisDate(" "); err == nil {
		t.Error("expected error for empty date")
	}
}

func TestWhoisAgeRejectsIPsAndPropagatesErrors(t *testing.T) {
	var asked string
	w := &WhoisAge{
		fetch: func(domain string) (string, error) {
			asked = domain
			return "", errors.New("connection refused")
		},
		now: time.Now,
	}
	if _, err := w.AgeDays(context.Background(), "192.168.1.1"); err == nil {
		t.Fatal("expected error for IP host")
	}
	if _, err := w.AgeDays(context.Background(), "login.secure.example.co.uk"); err == nil {
		t.Fatal("expected fetch error")
	}
	if asked != "example.co.uk" {
		t.Fatalf("queried %q, want registrable domain example.co.uk", asked)
	}
}

func TestWhoisAgeHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	w := &WhoisAge{
		fetch: func(string) (string, error) {
			<-block
			return "", nil
		},
		now: time.Now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.AgeDays(ctx, "example.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func startDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			if req.Question[0].Name == "missing.test." {
				m.Rcode = dns.RcodeNameError
			} else {
				rr, _ := dns.NewRR(req.Question[0].Name + " 60 IN A 127.0.0.1")
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestResolverExists(t *testing.T) {
	r := NewResolverWithServers(2*time.Second, startDNS(t))
	ctx := context.Background()

	ok, err := r.Exists(ctx, "present.test")
	if err != nil || !ok {
		t.Fatalf("present.test = %v, %v; want true", ok, err)
	}
	ok, err = r.Exists(ctx, "missing.test")
	if err != nil || ok {
		t.Fatalf("missing.test = %v, %v; want false", ok, err)
	}
	ok, err = r.Exists(ctx, "10.0.0.1")
	if err != nil || !ok {
		t.Fatalf("IP literal = %v, %v; want true", ok, err)
	}
}

func TestLookupAggregation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		l    *Lookup
		want Status
	}{
		{"no sources", &Lookup{}, Error},
		{"all failing", &Lookup{SafeBrowsing: fixedChecker{Error, errors.New("boom")}, Logger: testLogger()}, Error},
		{"clean", &Lookup{SafeBrowsing: fixedChecker{Safe, nil}}, Safe},
		{"danger", &Lookup{SafeBrowsing: fixedChecker{Danger, nil}}, Danger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.l.Check(ctx, "https://example.com").Status; got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLookupDangerWinsOverCleanSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "https://evil.example/x")
	}))
	defer srv.Close()

	l := &Lookup{
		SafeBrowsing: fixedChecker{Safe, nil},
		OpenPhish:    NewOpenPhish(srv.URL, testLogger()),
		Resolver:     NewResolverWithServers(2*time.Second, startDNS(t)),
		Logger:       testLogger(),
	}
	rep := l.Check(context.Background(), "https://evil.example/x")
	if rep.Status != Danger {
		t.Fatalf("status = %s, want Danger", rep.Status)
	}
	if len(rep.Sources) != 1 || rep.Sources[0] != SourceOpenPhish {
		t.Fatalf("sources = %v, want [%s]", rep.Sources, SourceOpenPhish)
	}
	if rep.NXDomain {
		t.Fatal("evil.example resolves in the test server")
	}
}
