package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const safeBrowsingEndpoint = "https://safebrowsing.googleapis.com/v4/threatMatches:find"

// SafeBrowsing queries the Google Safe Browsing v4 lookup API.
type SafeBrowsing struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewSafeBrowsing returns a client with a 10s request timeout.
func NewSafeBrowsing(apiKey string) *SafeBrowsing {
	return &SafeBrowsing{
		apiKey:   apiKey,
		endpoint: safeBrowsingEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sbClient struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type sbEntry struct {
	URL string `json:"url"`
}

type sbThreatInfo struct {
	ThreatTypes      []string  `json:"threatTypes"`
	PlatformTypes    []string  `json:"platformTypes"`
	ThreatEntryTypes []string  `json:"threatEntryTypes"`
	ThreatEntries    []sbEntry `json:"threatEntries"`
}

type sbRequest struct {
	Client     sbClient     `json:"client"`
	ThreatInfo sbThreatInfo `json:"threatInfo"`
}

type sbResponse struct {
	Matches []struct {
		ThreatType string `json:"threatType"`
	} `json:"matches"`
}

// Check returns Danger when the URL has any threat match, Safe on a clean
// 200 response and Error for everything else, including a missing key.
func (s *SafeBrowsing) Check(ctx context.Context, rawURL string) (Status, error) {
	if s.apiKey == "" {
		return Error, fmt.Errorf("safe browsing api key not configured")
	}

	body, err := json.Marshal(sbRequest{
		Client: sbClient{ClientID: "LinkBuster-AI", ClientVersion: "2.0"},
		ThreatInfo: sbThreatInfo{
			ThreatTypes:      []string{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE"},
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []sbEntry{{URL: rawURL}},
		},
	})
	if err != nil {
		return Error, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?key="+s.apiKey, bytes.NewReader(body))
	if err != nil {
		return Error, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Error, fmt.Errorf("safe browsing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Error, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Error, fmt.Errorf("safe browsing returned %d", resp.StatusCode)
	}

	var parsed sbResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Error, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Matches) > 0 {
		return Danger, nil
	}
	return Safe, nil
}
