package handlers

import (
	"net/http"
	"strings"
	"time"
)

// DangerousSamples always score as risky.
var DangerousSamples = []string{
	"http://testsafebrowsing.appspot.com/s/malware.html",
	"http://malware.testing.google.test/testing/malware/",
	"https://login-verify-security-alert.xyz",
	"https://paypal.com.security-update.club",
	"https://facebook.password-reset-urgent.top",
	"https://bank-account-confirm.immediate-action.xyz",
	"https://urgent-security-update.tech",
	"https://free-virus-scan.download",
	"https://www.google.com",
}

// QuickTestSamples cover the test-domain, keyword and safe paths.
var QuickTestSamples = []string{
	"http://testsafebrowsing.appspot.com/s/malware.html",
	"https://secure-login-verify.example.com/account",
	"https://www.google.com",
}

// DemoHandler scores fixed or ad hoc URLs without persisting anything.
type DemoHandler struct {
	scorer Scorer
}

func NewDemoHandler(scorer Scorer) *DemoHandler {
	return &DemoHandler{scorer: scorer}
}

// Scan handles GET /demo/scan?url=
func (h *DemoHandler) Scan(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		url = "https://www.google.com"
	}
	writeJSON(w, map[string]any{
		"url":       url,
		"analysis":  h.scorer.Score(r.Context(), url),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// TestDangerous handles GET /demo/test-dangerous
func (h *DemoHandler) TestDangerous(w http.ResponseWriter, r *http.Request) {
	verdicts := h.scorer.ScoreBatch(r.Context(), DangerousSamples)
	results := make([]QuickScanResponse, 0, len(verdicts))
	for _, v := range verdicts {
		results = append(results, NewQuickScanResponse(v))
	}
	writeJSON(w, map[string]any{"results": results})
}

// QuickTest handles GET /demo/quick-test
func (h *DemoHandler) QuickTest(w http.ResponseWriter, r *http.Request) {
	verdicts := h.scorer.ScoreBatch(r.Context(), QuickTestSamples)
	results := make([]batchResult, 0, len(verdicts))
	for _, v := range verdicts {
		results = append(results, newBatchResult(v))
	}
	writeJSON(w, map[string]any{"results": results})
}
