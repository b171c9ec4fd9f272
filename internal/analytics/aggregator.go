package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/kafka"
)

const (
	// latencyWindow bounds the samples kept for percentiles.
	latencyWindow = 10000

	DefaultTopQueries = 10
	MaxTopQueries     = 100
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalLoads        int64        `json:"total_loads"`
	FailedMessages    int64        `json:"failed_messages"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	LastLoadRows      int          `json:"last_load_rows"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	AvgLoadMs         float64      `json:"avg_load_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running search and load statistics. It is a Sink for
// in-process events and a Kafka handler for events from other instances.
type Aggregator struct {
	mu                sync.Mutex
	totalSearches     int64
	totalLoads        int64
	failed            int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	lastLoadRows      int
	loadsOK           int64
	loadMsTotal       float64
	latencies         []float64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track implements Sink.
func (a *Aggregator) Track(key string, event any) {
	switch ev := event.(type) {
	case SearchEvent:
		a.recordSearch(ev)
	case LoadEvent:
		a.recordLoad(ev)
	}
}

// HandleEvent returns a Kafka handler feeding agg. Undecodable messages are
// logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Track(string(key), event)
		return nil
	}
}

func (a *Aggregator) recordSearch(ev SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if ev.Failed {
		a.failed++
		return
	}
	if ev.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.addLatency(ev.LatencyMs)

	q := tokenizer.Normalize(ev.Query)
	if q == "" {
		return
	}
	a.queryCounts[q]++
	if ev.Results == 0 {
		a.zeroResults++
		a.zeroResultQueries[q]++
	}
}

func (a *Aggregator) recordLoad(ev LoadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalLoads++
	if ev.Failed {
		a.failed++
		return
	}
	a.lastLoadRows = ev.Rows
	a.loadsOK++
	a.loadMsTotal += ev.LatencyMs
}

func (a *Aggregator) addLatency(ms float64) {
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.next] = ms
	a.next = (a.next + 1) % latencyWindow
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopQueries)
}

// StatsTop is Stats with the query rankings cut to n entries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		TotalLoads:      a.totalLoads,
		FailedMessages:  a.failed,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		LastLoadRows:    a.lastLoadRows,
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if a.loadsOK > 0 {
		stats.AvgLoadMs = a.loadMsTotal / float64(a.loadsOK)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
