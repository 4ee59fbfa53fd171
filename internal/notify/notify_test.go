package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blockingSink struct {
	wait      chan struct{}
	delivered atomic.Int32
}

func (s *blockingSink) Name() string { return "blocking" }
func (s *blockingSink) Deliver(ctx context.Context, a *Alert) error {
	<-s.wait
	s.delivered.Add(1)
	return nil
}
func (s *blockingSink) Close(context.Context) error { return nil }

type failingSink struct{}

func (failingSink) Name() string                          { return "smtp-down" }
func (failingSink) Deliver(context.Context, *Alert) error { return errors.New("connection refused") }
func (failingSink) Close(context.Context) error           { return nil }

type memAudit struct {
	mu      sync.Mutex
	entries []db.AlertAudit
}

func (m *memAudit) InsertAlertAudit(_ context.Context, a *db.AlertAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *a)
	return nil
}

func TestRiskLevelAndScanID(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, LevelCritical}, {80, LevelCritical}, {79, LevelHigh}, {60, LevelHigh}, {59, LevelMedium}, {0, LevelMedium},
	}
	for _, tt := range tests {
		if got := RiskLevel(tt.score); got != tt.want {
			t.Errorf("RiskLevel(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
	if got := ScanID("https://login-verify-security-alert.xyz"); got != "D63A9523E6D2" {
		t.Errorf("ScanID = %s", got)
	}
}

func TestFromVerdict(t *testing.T) {
	v := &classify.Verdict{URL: "http://bad.example", RiskScore: 85, Status: classify.StatusCritical,
		Threats: []string{"x"}, Insights: []string{"y"}, Confidence: 92.5}
	a := FromVerdict(v, 7, "user@example.com")
	if a.Level != LevelCritical || a.UserID != 7 || a.Recipient != "user@example.com" || a.ID == "" {
		t.Fatalf("alert = %+v", a)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("timestamp not filled")
	}
	if Subject(a) != "AI Threat Detection: CRITICAL Risk URL" {
		t.Fatalf("subject = %q", Subject(a))
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink}, nil, discardLogger())

	// The first alert occupies the worker, the second fills the queue.
	em.Emit(&Alert{ScanID: "1"})
	deadline := time.Now().Add(time.Second)
	for len(em.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !em.Emit(&Alert{ScanID: "2"}) {
		t.Fatal("second alert should fit in the queue")
	}
	if em.Emit(&Alert{ScanID: "3"}) {
		t.Fatal("third alert should be dropped")
	}

	close(wait)
	em.Close(context.Background())

	m := em.Metrics()
	if m.Enqueued != 2 || m.Dropped != 1 {
		t.Fatalf("metrics = %+v", m)
	}
	if sink.delivered.Load() != 2 || m.SinkSuccess["blocking"] != 2 {
		t.Fatalf("delivered = %d, success = %d", sink.delivered.Load(), m.SinkSuccess["blocking"])
	}
	if em.Emit(&Alert{ScanID: "4"}) {
		t.Fatal("emit after close must drop")
	}
}

func TestEmitterWithoutSinksAuditsLocally(t *testing.T) {
	audit := &memAudit{}
	em := NewEmitter(EmitterConfig{QueueSize: 4, Workers: 1}, nil, audit, discardLogger())

	if !em.Emit(&Alert{ScanID: "NOSINK", URL: "http://x.test", RiskScore: 65, Recipient: "r@example.com"}) {
		t.Fatal("emit should enqueue")
	}
	em.Close(context.Background())

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	got := audit.entries[0]
	if got.Status != db.AlertLocalLog || got.ScanID != "NOSINK" || got.Error != "no sinks configured" || got.Sink != "" {
		t.Fatalf("entry = %+v", got)
	}
}

func TestEmitterAuditsOutcomes(t *testing.T) {
	audit := &memAudit{}
	ok := &blockingSink{wait: make(chan struct{})}
	close(ok.wait)
	em := NewEmitter(EmitterConfig{QueueSize: 4, Workers: 1}, []Sink{failingSink{}, ok}, audit, discardLogger())

	em.Emit(&Alert{ScanID: "ABC", URL: "http://x.test", RiskScore: 70, Recipient: "r@example.com"})
	em.Close(context.Background())

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audit.entries))
	}
	failed, sent := audit.entries[0], audit.entries[1]
	if failed.Status != db.AlertLocalLog || failed.Sink != "smtp-down" || !strings.Contains(failed.Error, "connection refused") {
		t.Errorf("failed entry = %+v", failed)
	}
	if sent.Status != db.AlertSent || sent.Error != "" || sent.Score != 70 || sent.Recipient != "r@example.com" {
		t.Errorf("sent entry = %+v", sent)
	}
	if em.Metrics().SinkFailure["smtp-down"] != 1 {
		t.Errorf("failure not counted: %+v", em.Metrics())
	}
}

func TestWebhookSinkRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := newWebhookSink(srv.URL, srv.Client())
	sink.backoffs = []time.Duration{time.Millisecond, time.Millisecond}
	if err := sink.Deliver(context.Background(), &Alert{ScanID: "S1", URL: "http://x.test", RiskScore: 90}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if calls.Load() != 3 || got.ScanID != "S1" {
		t.Fatalf("calls = %d, payload = %+v", calls.Load(), got)
	}
}

func TestWebhookSinkReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	sink := newWebhookSink(srv.URL, srv.Client())
	sink.backoffs = nil
	err := sink.Deliver(context.Background(), &Alert{ScanID: "S2"})
	if err == nil || !strings.Contains(err.Error(), "status 418") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewWebhookSinkRejectsPrivateTargets(t *testing.T) {
	for _, u := range []string{"", "http://127.0.0.1:8080/hook", "http://10.0.0.5/hook", "file:///etc/passwd"} {
		if _, err := NewWebhookSink(context.Background(), u, time.Second); err == nil {
			t.Errorf("NewWebhookSink(%q) accepted", u)
		}
	}
}

func TestEmailSinkBuildsMessage(t *testing.T) {
	sink, err := NewEmailSink(EmailConfig{Host: "smtp.example.com", From: "alerts@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if sink.cfg.Port != 2525 {
		t.Fatalf("default port = %d", sink.cfg.Port)
	}

	var sent *mail.Msg
	sink.send = func(_ context.Context, m *mail.Msg) error {
		sent = m
		return nil
	}
	a := &Alert{ScanID: "D63A9523E6D2", URL: "https://login-verify-security-alert.xyz", RiskScore: 85,
		Level: LevelCritical, Recipient: "user@example.com", Timestamp: time.Now(),
		Threats: []string{"Phishing pattern: <login-verify>"}}
	if err := sink.Deliver(context.Background(), a); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sent == nil {
		t.Fatal("message not sent")
	}
	if subj := sent.GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != "AI Threat Detection: CRITICAL Risk URL" {
		t.Fatalf("subject = %v", subj)
	}
	if to := sent.GetToString(); len(to) != 1 || !strings.Contains(to[0], "user@example.com") {
		t.Fatalf("to = %v", to)
	}

	if err := sink.Deliver(context.Background(), &Alert{ScanID: "X"}); err == nil {
		t.Fatal("expected error for alert without recipient")
	}
}

func TestRenderAlertEscapesInput(t *testing.T) {
	body, err := renderAlert(&Alert{ScanID: "ABCDEF012345", URL: `http://x.test/"><script>`, RiskScore: 61,
		Level: LevelHigh, Timestamp: time.Now(), Threats: []string{"IP address in URL"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(body, "<script>") {
		t.Fatal("url was not escaped")
	}
	for _, want := range []string{"HIGH", "61/100", "Scan ID: ABCDEF012345", "IP address in URL", "Threat detected", "Recommended Actions"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
