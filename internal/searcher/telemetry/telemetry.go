// Package telemetry records search worker activity as Prometheus metrics.
package telemetry

import (
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/metrics"
)

// Observer implements worker.Observer on top of the service metrics.
type Observer struct {
	m       *metrics.Metrics
	pending func() int
}

func NewObserver(m *metrics.Metrics) *Observer {
	return &Observer{m: m}
}

// WatchQueue makes every observed event also sample the queue depth.
func (o *Observer) WatchQueue(pending func() int) {
	o.pending = pending
}

func (o *Observer) Observe(e worker.Event) {
	status := "ok"
	if e.Failed {
		status = "failed"
	}
	o.m.WorkerMessagesTotal.WithLabelValues(string(e.Kind), status).Inc()
	o.m.WorkerQueueWait.Observe(e.QueueWait.Seconds())
	if o.pending != nil {
		o.m.WorkerQueueDepth.Set(float64(o.pending()))
	}
	if e.Failed {
		return
	}

	switch e.Kind {
	case worker.KindSetData:
		o.m.DatasetRows.Set(float64(e.Rows))
		o.m.DatasetLoadDuration.Observe(e.Duration.Seconds())
		o.m.SearchResultsCount.Observe(float64(e.Results))
	case worker.KindSearch:
		cacheStatus := "miss"
		if e.CacheHit {
			cacheStatus = "hit"
			o.m.CacheHitsTotal.Inc()
		} else {
			o.m.CacheMissesTotal.Inc()
		}
		o.m.SearchLatency.WithLabelValues(cacheStatus).Observe(e.Duration.Seconds())
		o.m.SearchResultsCount.Observe(float64(e.Results))
	}
}
