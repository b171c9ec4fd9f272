// Package e2e contains end-to-end tests that exercise a running search
// service over HTTP: dataset load → search → stats → analytics.
//
// Prerequisites:
//   - cmd/searcher running (optionally with Kafka and cmd/analytics)
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	SearcherURL  string
	AnalyticsURL string
}

func loadE2EConfig() e2eConfig {
	searcher := envOrDefault("E2E_SEARCHER_URL", "http://localhost:8080")
	return e2eConfig{
		SearcherURL:  searcher,
		AnalyticsURL: envOrDefault("E2E_ANALYTICS_URL", searcher),
	}
}

type searchResult struct {
	Kind           string           `json:"kind"`
	SequenceNumber int64            `json:"sequenceNumber"`
	Results        []map[string]any `json:"results"`
	CacheHit       bool             `json:"cacheHit"`
	Total          int              `json:"total"`
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestPlatformHealth verifies the service responds to health checks.
func TestPlatformHealth(t *testing.T) {
	cfg := loadE2EConfig()

	services := []struct {
		name string
		url  string
	}{
		{"search /health/live", cfg.SearcherURL + "/health/live"},
		{"search /health/ready", cfg.SearcherURL + "/health/ready"},
	}

	client := &http.Client{Timeout: 5 * time.Second}

	for _, svc := range services {
		t.Run(svc.name, func(t *testing.T) {
			resp, err := client.Get(svc.url)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestLoadAndSearch exercises the dataset lifecycle: load → search → cached
// search → reload clears the cache.
func TestLoadAndSearch(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	if _, err := client.Get(cfg.SearcherURL + "/health/live"); err != nil {
		t.Skipf("search service unavailable: %v", err)
	}

	party := fmt.Sprintf("e2eparty%d", time.Now().UnixNano())
	payload := fmt.Sprintf(`{"kind":"SET_DATA","sequenceNumber":1,"records":[
		{"ChallanNo":"CH-1","Date":"2024-03-15T10:00:00Z","PartyName":"%s","Quantity":12},
		{"ChallanNo":"CH-2","Date":"2024-03-16T10:00:00Z","PartyName":"Zen Traders","Quantity":0}
	]}`, party)

	resp, err := client.Post(cfg.SearcherURL+"/api/v1/dataset", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("load request failed: %v", err)
	}
	var loaded searchResult
	json.NewDecoder(resp.Body).Decode(&loaded)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if loaded.Kind != "SET_DATA_DONE" || len(loaded.Results) != 2 {
		t.Fatalf("load reply = %s with %d results", loaded.Kind, len(loaded.Results))
	}

	search := func(q string) searchResult {
		t.Helper()
		resp, err := client.Get(cfg.SearcherURL + "/api/v1/search?q=" + url.QueryEscape(q))
		if err != nil {
			t.Fatalf("search request failed: %v", err)
		}
		defer resp.Body.Close()
		var out searchResult
		json.NewDecoder(resp.Body).Decode(&out)
		return out
	}

	first := search(party)
	if len(first.Results) != 1 || first.Results[0]["ChallanNo"] != "CH-1" {
		t.Fatalf("search %q returned %v", party, first.Results)
	}
	if first.CacheHit {
		t.Error("first search should miss the cache")
	}
	if second := search(strings.ToUpper(party)); !second.CacheHit {
		t.Error("repeated search should hit the cache")
	}
	if got := search("15-03-24"); len(got.Results) != 1 {
		t.Errorf("date search returned %d results, want 1", len(got.Results))
	}
	if got := search("cH"); len(got.Results) != 2 {
		t.Errorf("substring search returned %d results, want 2", len(got.Results))
	}
}

// TestSearchAnalytics verifies that search queries are aggregated. Point
// E2E_ANALYTICS_URL at cmd/analytics to check the Kafka path instead of the
// searcher's in-process aggregator.
func TestSearchAnalytics(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.SearcherURL + "/api/v1/search?q=analytics+test")
	if err != nil {
		t.Skipf("search service unavailable: %v", err)
	}
	resp.Body.Close()

	// Give the collector time to flush when going through Kafka.
	if cfg.AnalyticsURL != cfg.SearcherURL {
		time.Sleep(6 * time.Second)
	}

	analyticsResp, err := client.Get(cfg.AnalyticsURL + "/api/v1/analytics")
	if err != nil {
		t.Skipf("analytics service unavailable: %v", err)
	}
	defer analyticsResp.Body.Close()

	var stats map[string]any
	json.NewDecoder(analyticsResp.Body).Decode(&stats)

	totalSearches, _ := stats["total_searches"].(float64)
	t.Logf("analytics: total_searches=%v, cache_hits=%v, cache_misses=%v",
		stats["total_searches"], stats["cache_hits"], stats["cache_misses"])

	if totalSearches < 1 {
		t.Error("expected at least 1 search recorded in analytics")
	}
}

// TestStoreStats verifies that dataset and cache statistics are reported.
func TestStoreStats(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.SearcherURL + "/api/v1/stats")
	if err != nil {
		t.Skipf("search service unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var reply struct {
		Stats map[string]any `json:"stats"`
	}
	json.NewDecoder(resp.Body).Decode(&reply)
	t.Logf("store stats: %v", reply.Stats)

	for _, field := range []string{"state", "rows", "tokens", "cache_hits", "cache_misses"} {
		if _, ok := reply.Stats[field]; !ok {
			t.Errorf("missing expected field: %s", field)
		}
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
