package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch      EventType = "search"
	EventDatasetLoad EventType = "dataset_load"
)

// SearchEvent describes one answered SEARCH message.
type SearchEvent struct {
	Type           EventType `json:"type"`
	Query          string    `json:"query"`
	SequenceNumber int64     `json:"sequence_number"`
	Rows           int       `json:"rows"`
	Results        int       `json:"results"`
	LatencyMs      float64   `json:"latency_ms"`
	QueueWaitMs    float64   `json:"queue_wait_ms"`
	CacheHit       bool      `json:"cache_hit"`
	Failed         bool      `json:"failed,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// LoadEvent describes one SET_DATA message: the dataset swap plus the
// search that answered it.
type LoadEvent struct {
	Type           EventType `json:"type"`
	SequenceNumber int64     `json:"sequence_number"`
	Query          string    `json:"query,omitempty"`
	Rows           int       `json:"rows"`
	Results        int       `json:"results"`
	LatencyMs      float64   `json:"latency_ms"`
	Failed         bool      `json:"failed,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Decode parses a JSON event by its type field, returning a SearchEvent or
// a LoadEvent.
func Decode(data []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch head.Type {
	case EventSearch:
		var ev SearchEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return ev, nil
	case EventDatasetLoad:
		var ev LoadEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding load event: %w", err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", head.Type)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
