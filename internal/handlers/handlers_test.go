package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/auth"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/notify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/sse"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testPipeline() *classify.Pipeline {
	return classify.NewPipeline(nil, discard())
}

type memScans struct {
	mu        sync.Mutex
	records   []db.ScanRecord
	insertErr error
}

func (m *memScans) InsertScan(_ context.Context, s *db.ScanRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.records) + 1)
	s.CreatedAt = time.Now()
	m.records = append(m.records, *s)
	return nil
}

func (m *memScans) userRecords(userID int) []db.ScanRecord {
	var out []db.ScanRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memScans) ListScans(_ context.Context, userID, limit, offset int) ([]db.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.userRecords(userID)
	if offset >= len(recs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}
	return recs[offset:end], nil
}

func (m *memScans) CountScans(_ context.Context, userID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.userRecords(userID)), nil
}

func (m *memScans) GetStats(_ context.Context, userID int) (*db.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &db.Stats{ByStatus: map[string]int{}}
	for _, r := range m.userRecords(userID) {
		st.Total++
		st.ByStatus[r.Status]++
	}
	return st, nil
}

func (m *memScans) ClearHistoryKeepLatest(_ context.Context, userID, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.userRecords(userID)
	if len(recs) <= keep {
		return 0, nil
	}
	drop := map[int64]bool{}
	for _, r := range recs[keep:] {
		drop[r.ID] = true
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return int64(len(drop)), nil
}

func (m *memScans) ClearAllHistory(_ context.Context, userID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.records[:0]
	for _, r := range m.records {
		if r.UserID == userID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return n, nil
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []*notify.Alert
}

func (m *memAlerts) Emit(a *notify.Alert) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return true
}

var alice = &db.User{ID: 1, Email: "alice@example.com"}

func asUser(u *db.User, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestBadge(t *testing.T) {
	tests := []struct {
		status, text, color string
	}{
		{classify.StatusCritical, "!!", "#dc3545"},
		{classify.StatusHighRisk, "!", "#ff9800"},
		{classify.StatusSuspicious, "?", "#ffc107"},
		{classify.StatusLowRisk, "✓", "#28a745"},
		{classify.StatusSafe, "✓", "#28a745"},
		{"", "✓", "#28a745"},
	}
	for _, tt := range tests {
		text, color := Badge(tt.status)
		if text != tt.text || color != tt.color {
			t.Errorf("Badge(%q) = %q %q, want %q %q", tt.status, text, color, tt.text, tt.color)
		}
	}
}

func TestScanPersistsAndAlerts(t *testing.T) {
	scans, alerts := &memScans{}, &memAlerts{}
	h := NewScanHandler(testPipeline(), scans, alerts, ScanConfig{}, discard())

	rec := asUser(alice, h.Scan, http.MethodPost, "/api/scan", `{"url":"https://login-verify-security-alert.xyz"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var v classify.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.RiskScore != 85 || v.Status != classify.StatusHighRisk {
		t.Fatalf("verdict = %+v", v)
	}
	if len(scans.records) != 1 || scans.records[0].Score != 85 || scans.records[0].UserID != alice.ID {
		t.Fatalf("records = %+v", scans.records)
	}
	if len(alerts.alerts) != 1 || alerts.alerts[0].Recipient != alice.Email || alerts.alerts[0].Level != notify.LevelCritical {
		t.Fatalf("alerts = %+v", alerts.alerts)
	}

	asUser(alice, h.Scan, http.MethodPost, "/api/scan", `{"url":"https://www.google.com"}`)
	if len(scans.records) != 2 || len(alerts.alerts) != 1 {
		t.Fatalf("safe scan: records=%d alerts=%d", len(scans.records), len(alerts.alerts))
	}
}

func TestScanSurvivesPersistenceFailure(t *testing.T) {
	scans := &memScans{insertErr: errors.New("db down")}
	h := NewScanHandler(testPipeline(), scans, nil, ScanConfig{}, discard())
	rec := asUser(alice, h.Scan, http.MethodPost, "/api/scan", `{"url":"http://1.2.3.4/bank/signin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite db error", rec.Code)
	}
}

func TestScanRejectsMissingURL(t *testing.T) {
	h := NewScanHandler(testPipeline(), &memScans{}, nil, ScanConfig{}, discard())
	for _, body := range []string{`{}`, `{"url":"   "}`, `not json`} {
		if rec := asUser(alice, h.Scan, http.MethodPost, "/api/scan", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, rec.Code)
		}
	}
}

func TestHistoryPaging(t *testing.T) {
	scans := &memScans{}
	for i := 0; i < 23; i++ {
		scans.InsertScan(context.Background(), &db.ScanRecord{UserID: alice.ID, URL: "https://example.com/" + string(rune('a'+i)), Status: classify.StatusSafe})
	}
	scans.InsertScan(context.Background(), &db.ScanRecord{UserID: 2, URL: "https://other.example"})
	h := NewScanHandler(testPipeline(), scans, nil, ScanConfig{}, discard())

	tests := []struct {
		query   string
		page    int
		items   int
		firstID int64
	}{
		{"", 1, 10, 23},
		{"?page=2", 2, 10, 13},
		{"?page=3", 3, 3, 3},
		{"?page=9", 9, 0, 0},
		{"?page=-4", 1, 10, 23},
		{"?page=abc", 1, 10, 23},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := asUser(alice, h.History, http.MethodGet, "/api/history"+tt.query, "")
			var got historyPage
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Page != tt.page || len(got.Items) != tt.items || got.Total != 23 || got.TotalPages != 3 {
				t.Fatalf("page = %+v", got)
			}
			if tt.items > 0 && got.Items[0].ID != tt.firstID {
				t.Fatalf("first id = %d, want %d", got.Items[0].ID, tt.firstID)
			}
			if got.Items == nil {
				t.Fatal("items must encode as [] not null")
			}
		})
	}
}

func TestClearHistory(t *testing.T) {
	scans := &memScans{}
	for i := 0; i < 60; i++ {
		scans.InsertScan(context.Background(), &db.ScanRecord{UserID: alice.ID, Status: classify.StatusSafe})
	}
	h := NewScanHandler(testPipeline(), scans, nil, ScanConfig{}, discard())

	rec := asUser(alice, h.ClearHistory, http.MethodPost, "/api/clear-history", "")
	if !strings.Contains(rec.Body.String(), `"deleted":10`) {
		t.Fatalf("clear-history = %s", rec.Body)
	}
	if n, _ := scans.CountScans(context.Background(), alice.ID); n != 50 {
		t.Fatalf("kept = %d, want 50", n)
	}

	rec = asUser(alice, h.ClearAllHistory, http.MethodPost, "/api/clear-all-history", "")
	if !strings.Contains(rec.Body.String(), `"deleted":50`) {
		t.Fatalf("clear-all-history = %s", rec.Body)
	}

	rec = asUser(alice, h.Stats, http.MethodGet, "/api/dashboard-stats", "")
	var st db.Stats
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Total != 0 || len(st.ByStatus) != 5 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestQuickScan(t *testing.T) {
	h := NewExtensionHandler(testPipeline(), nil, nil, "", discard())
	req := httptest.NewRequest(http.MethodPost, "/api/quick-scan", strings.NewReader(`{"url":"http://testsafebrowsing.appspot.com/s/malware.html"}`))
	rec := httptest.NewRecorder()
	h.QuickScan(rec, req)

	var got QuickScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.RiskScore != 98 || got.Status != classify.StatusCritical || got.BadgeText != "!!" || got.BadgeColor != "#dc3545" {
		t.Fatalf("quick-scan = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", got.Timestamp, err)
	}
}

func TestBatchScan(t *testing.T) {
	h := NewExtensionHandler(testPipeline(), nil, nil, "", discard())
	urls := []string{"https://login-verify-security-alert.xyz", "https://www.google.com", "https://example.xyz"}
	body, _ := json.Marshal(map[string]any{"urls": urls})
	rec := httptest.NewRecorder()
	h.BatchScan(rec, httptest.NewRequest(http.MethodPost, "/api/batch-scan", strings.NewReader(string(body))))

	var got struct {
		Results []batchResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != len(urls) {
		t.Fatalf("results = %d", len(got.Results))
	}
	for i, r := range got.Results {
		if r.URL != urls[i] {
			t.Errorf("result %d url = %s, want %s", i, r.URL, urls[i])
		}
		if len(r.Threats) > 2 {
			t.Errorf("result %d has %d threats", i, len(r.Threats))
		}
	}
	if got.Results[0].RiskScore != 85 || got.Results[2].Status != classify.StatusSuspicious {
		t.Fatalf("results = %+v", got.Results)
	}

	tooMany := make([]string, MaxBatchURLs+1)
	for i := range tooMany {
		tooMany[i] = "https://example.com"
	}
	body, _ = json.Marshal(map[string]any{"urls": tooMany})
	rec = httptest.NewRecorder()
	h.BatchScan(rec, httptest.NewRequest(http.MethodPost, "/api/batch-scan", strings.NewReader(string(body))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized batch status = %d", rec.Code)
	}
}

type memBroadcast struct{ msgs []any }

func (m *memBroadcast) Broadcast(data any) { m.msgs = append(m.msgs, data) }

func TestEmergencyAlert(t *testing.T) {
	alerts, bc := &memAlerts{}, &memBroadcast{}
	h := NewExtensionHandler(testPipeline(), alerts, bc, "soc@example.com", discard())

	rec := httptest.NewRecorder()
	h.EmergencyAlert(rec, httptest.NewRequest(http.MethodPost, "/api/emergency-alert",
		strings.NewReader(`{"url":"http://evil.test","risk_score":92,"reason":"credential form"}`)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"action":"forwarded"`) {
		t.Fatalf("emergency = %d %s", rec.Code, rec.Body)
	}
	if len(alerts.alerts) != 1 || alerts.alerts[0].Recipient != "soc@example.com" || alerts.alerts[0].Source != notify.SourceExtension {
		t.Fatalf("alerts = %+v", alerts.alerts)
	}
	if len(bc.msgs) != 1 {
		t.Fatalf("broadcasts = %d", len(bc.msgs))
	}

	rec = httptest.NewRecorder()
	h.EmergencyAlert(rec, httptest.NewRequest(http.MethodPost, "/api/emergency-alert", strings.NewReader(`{"risk_score":92}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url status = %d", rec.Code)
	}
}

func TestExtensionStatus(t *testing.T) {
	h := NewExtensionHandler(testPipeline(), nil, nil, "", discard())
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/extension-status", nil))
	var got map[string]any
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["status"] != "active" || got["version"] != "2.0" || got["name"] != "LinkBuster AI Security" {
		t.Fatalf("status = %v", got)
	}
}

func TestDemoQuickTest(t *testing.T) {
	h := NewDemoHandler(testPipeline())
	rec := httptest.NewRecorder()
	h.QuickTest(rec, httptest.NewRequest(http.MethodGet, "/demo/quick-test", nil))
	var got struct {
		Results []batchResult `json:"results"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got.Results) != len(QuickTestSamples) {
		t.Fatalf("results = %+v", got.Results)
	}
	if got.Results[0].RiskScore != 98 || got.Results[1].RiskScore != 85 || got.Results[2].RiskScore >= 40 {
		t.Fatalf("results = %+v", got.Results)
	}
}

func TestStreamHydratesThenStreams(t *testing.T) {
	scans := &memScans{}
	for i := 0; i < 12; i++ {
		scans.InsertScan(context.Background(), &db.ScanRecord{UserID: alice.ID, URL: "https://example.com", Status: classify.StatusSafe})
	}
	hub := sse.NewHub(discard())
	sh := NewStreamHandler(hub, scans, discard())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sh.HandleSSE(w, r.WithContext(auth.WithUser(r.Context(), alice)))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	hydrated := 0
	for sc.Scan() {
		line := sc.Text()
		if line == "event: scan" {
			hydrated++
		}
		if line == "event: hydrated" {
			break
		}
	}
	if hydrated != hydrateCount {
		t.Fatalf("hydrated %d scans, want %d", hydrated, hydrateCount)
	}

	hub.Publish(alice.ID, sse.Event{Type: "scan", Data: []byte(`{"id":99}`)})
	for sc.Scan() {
		if sc.Text() == `data: {"id":99}` {
			return
		}
	}
	t.Fatalf("live event not received: %v", sc.Err())
}

type memAudit []db.AlertAudit

func (m memAudit) ListAlertAudit(_ context.Context, limit int) ([]db.AlertAudit, error) {
	return m, nil
}

type fixedMetrics notify.Metrics

func (f fixedMetrics) Metrics() notify.Metrics { return notify.Metrics(f) }

func TestAlertsListFiltersByRecipient(t *testing.T) {
	audit := memAudit{
		{ID: 3, Recipient: alice.Email, Status: db.AlertLocalLog, Error: "dial tcp: refused"},
		{ID: 2, Recipient: "bob@example.com", Status: db.AlertSent},
		{ID: 1, Recipient: alice.Email, Status: db.AlertSent},
	}
	h := NewAlertsHandler(audit, fixedMetrics{Enqueued: 4, Dropped: 1}, discard())
	rec := asUser(alice, h.List, http.MethodGet, "/api/alerts", "")

	var got struct {
		Items []db.AlertAudit `json:"items"`
		Queue map[string]int  `json:"queue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 || got.Items[0].ID != 3 || got.Items[1].ID != 1 {
		t.Fatalf("items = %+v", got.Items)
	}
	if got.Queue["enqueued"] != 4 || got.Queue["dropped"] != 1 {
		t.Fatalf("queue = %v", got.Queue)
	}
}
