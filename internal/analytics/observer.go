package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
)

// Sink accepts analytics events. Track must not block.
type Sink interface {
	Track(key string, event any)
}

// Observer turns worker events into analytics events and fans them out to
// sinks. It implements worker.Observer.
type Observer struct {
	sinks []Sink
	now   func() time.Time
}

// NewObserver creates an Observer feeding the given sinks.
func NewObserver(sinks ...Sink) *Observer {
	return &Observer{sinks: sinks, now: time.Now}
}

// Observe implements worker.Observer.
func (o *Observer) Observe(e worker.Event) {
	var (
		key   string
		event any
	)
	switch e.Kind {
	case worker.KindSearch:
		key = string(EventSearch)
		event = SearchEvent{
			Type:           EventSearch,
			Query:          e.SearchTerm,
			SequenceNumber: e.SequenceNumber,
			Rows:           e.Rows,
			Results:        e.Results,
			LatencyMs:      millis(e.Duration),
			QueueWaitMs:    millis(e.QueueWait),
			CacheHit:       e.CacheHit,
			Failed:         e.Failed,
			Timestamp:      o.now().UTC(),
		}
	case worker.KindSetData:
		key = string(EventDatasetLoad)
		event = LoadEvent{
			Type:           EventDatasetLoad,
			SequenceNumber: e.SequenceNumber,
			Query:          e.SearchTerm,
			Rows:           e.Rows,
			Results:        e.Results,
			LatencyMs:      millis(e.Duration),
			Failed:         e.Failed,
			Timestamp:      o.now().UTC(),
		}
	default:
		return
	}
	for _, s := range o.sinks {
		s.Track(key, event)
	}
}
