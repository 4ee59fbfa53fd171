package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/ratelimit"
)

func TestScanSocket(t *testing.T) {
	scan := func(_ context.Context, url string) any {
		return map[string]any{"url": url, "risk_score": 85, "badge_text": "!!"}
	}
	m := NewManager(scan, nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(m.HandleScan))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil || ready["type"] != "ready" {
		t.Fatalf("ready = %v, %v", ready, err)
	}

	if err := conn.WriteJSON(map[string]string{"url": "http://login-verify.example"}); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got["url"] != "http://login-verify.example" || got["badge_text"] != "!!" {
		t.Fatalf("reply = %v", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	got = nil
	if err := conn.ReadJSON(&got); err != nil || got["error"] != "No URL provided" {
		t.Fatalf("empty url reply = %v, %v", got, err)
	}

	if m.Count() != 1 {
		t.Fatalf("count = %d", m.Count())
	}
	m.Broadcast(map[string]string{"type": "emergency"})
	got = nil
	if err := conn.ReadJSON(&got); err != nil || got["type"] != "emergency" {
		t.Fatalf("broadcast = %v, %v", got, err)
	}
}

func TestScanSocketChargesEveryMessage(t *testing.T) {
	var scans atomic.Int32
	scan := func(_ context.Context, url string) any {
		scans.Add(1)
		return map[string]any{"url": url}
	}
	limiter := ratelimit.NewWithBuckets(map[string]ratelimit.Bucket{
		"scan": {MaxRequests: 2, Window: time.Minute},
	})
	m := NewManager(scan, limiter, "scan", slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(m.HandleScan))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatal(err)
	}

	for i, wantErr := range []bool{false, false, true, true} {
		if err := conn.WriteJSON(map[string]string{"url": "http://a.example"}); err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if limited := got["error"] == "Rate limited"; limited != wantErr {
			t.Fatalf("message %d: reply %v, want rate limited = %v", i, got, wantErr)
		}
		if wantErr && got["retry_after_seconds"] != float64(60) {
			t.Fatalf("retry_after_seconds = %v", got["retry_after_seconds"])
		}
	}
	if n := scans.Load(); n != 2 {
		t.Fatalf("scans run = %d, want 2", n)
	}
}
