package worker

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore"
)

// Kind names a message exchanged with the worker.
type Kind string

const (
	KindSetData     Kind = "SET_DATA"
	KindSetDataDone Kind = "SET_DATA_DONE"
	KindSearch      Kind = "SEARCH"
	KindSearchDone  Kind = "SEARCH_DONE"
	KindStats       Kind = "STATS"
	KindStatsDone   Kind = "STATS_DONE"
)

// Request is a message sent to the worker. SequenceNumber is chosen by the
// caller and echoed unchanged in the matching Response.
type Request struct {
	Kind           Kind            `json:"kind"`
	Records        []record.Record `json:"records,omitempty"`
	SearchTerm     string          `json:"searchTerm,omitempty"`
	SequenceNumber int64           `json:"sequenceNumber"`
}

// Response is the worker's reply to one Request.
type Response struct {
	Kind           Kind               `json:"kind"`
	SequenceNumber int64              `json:"sequenceNumber"`
	Results        []record.Record    `json:"results"`
	CacheHit       bool               `json:"cacheHit,omitempty"`
	Generation     uint64             `json:"generation,omitempty"`
	Stats          *recordstore.Stats `json:"stats,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// SetData builds a SET_DATA request.
func SetData(seq int64, records []record.Record, searchTerm string) Request {
	return Request{Kind: KindSetData, Records: records, SearchTerm: searchTerm, SequenceNumber: seq}
}

// Search builds a SEARCH request.
func Search(seq int64, searchTerm string) Request {
	return Request{Kind: KindSearch, SearchTerm: searchTerm, SequenceNumber: seq}
}

// Event describes one processed message, for metrics and analytics.
type Event struct {
	Kind           Kind
	SequenceNumber int64
	SearchTerm     string
	Rows           int
	Results        int
	CacheHit       bool
	Failed         bool
	Duration       time.Duration
	QueueWait      time.Duration
}

// Observer receives an Event after each processed message. Observers run on
// the worker goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
