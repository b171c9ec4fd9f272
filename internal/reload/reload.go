// Package reload fetches datasets from record sources and loads them into
// the search worker, either on request or when a dataset-changed event
// arrives on Kafka.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/proto"
)

// Fetcher reads a dataset by source name and factory.
type Fetcher interface {
	Fetch(ctx context.Context, source, factory string) ([]record.Record, error)
}

// Loader sends a message to the search worker and waits for the answer.
type Loader interface {
	Do(ctx context.Context, req worker.Request) (worker.Response, error)
}

// Result is the outcome of a reload.
type Result struct {
	Source   string          `json:"source"`
	Factory  string          `json:"factory"`
	Fetched  int             `json:"fetched"`
	Response worker.Response `json:"response"`
}

// Reloader loads datasets and remembers which one it loaded last, so that
// dataset-changed events for that dataset refresh it.
type Reloader struct {
	fetcher       Fetcher
	loader        Loader
	seq           *worker.Sequencer
	defaultSource string
	eventTimeout  time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	following *proto.ReloadRequest
	// followGen is the store generation of the followed load; directGen is
	// the newest generation loaded by other callers. The worker orders loads,
	// so comparing generations tells which one is current.
	followGen uint64
	directGen uint64
}

// New creates a Reloader. Sequence numbers for requests that carry none come
// from seq, which should be shared with every other caller of the worker.
func New(fetcher Fetcher, loader Loader, seq *worker.Sequencer, defaultSource string, eventTimeout time.Duration) *Reloader {
	if eventTimeout <= 0 {
		eventTimeout = time.Minute
	}
	return &Reloader{
		fetcher:       fetcher,
		loader:        loader,
		seq:           seq,
		defaultSource: defaultSource,
		eventTimeout:  eventTimeout,
		logger:        slog.Default().With("component", "reloader"),
	}
}

// Reload fetches the dataset named by req and sends it as SET_DATA.
func (r *Reloader) Reload(ctx context.Context, req proto.ReloadRequest) (Result, error) {
	if req.Source == "" {
		req.Source = r.defaultSource
	}
	res := Result{Source: req.Source, Factory: req.Factory}

	records, err := r.fetcher.Fetch(ctx, req.Source, req.Factory)
	if err != nil {
		return res, fmt.Errorf("fetching %s/%s: %w", req.Source, req.Factory, err)
	}
	res.Fetched = len(records)

	seq := req.SequenceNumber
	if seq == 0 {
		seq = r.seq.Next()
	} else {
		r.seq.Observe(seq)
	}
	resp, err := r.loader.Do(ctx, worker.SetData(seq, records, req.SearchTerm))
	if err != nil {
		return res, fmt.Errorf("loading %s/%s: %w", req.Source, req.Factory, err)
	}
	res.Response = resp
	if resp.Error != "" {
		return res, fmt.Errorf("%w: loading %s/%s: %s", apperrors.ErrInternal, req.Source, req.Factory, resp.Error)
	}

	r.mu.Lock()
	superseded := resp.Generation <= r.directGen
	if !superseded {
		r.following = &proto.ReloadRequest{Source: req.Source, Factory: req.Factory}
		r.followGen = resp.Generation
	}
	r.mu.Unlock()
	if superseded {
		r.logger.Info("reloaded dataset already replaced by a direct load",
			"source", req.Source,
			"factory", req.Factory,
			"generation", resp.Generation,
		)
		return res, nil
	}

	r.logger.Info("dataset reloaded",
		"source", req.Source,
		"factory", req.Factory,
		"rows", len(records),
		"sequence_number", seq,
	)
	return res, nil
}

// Detach records that another caller loaded the dataset of store
// generation gen. The reloader stops following unless its own load is newer.
func (r *Reloader) Detach(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen > r.directGen {
		r.directGen = gen
	}
	if r.followGen <= r.directGen {
		r.following = nil
	}
}

// Following returns the dataset that dataset-changed events refresh, if any.
func (r *Reloader) Following() (proto.ReloadRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.following == nil {
		return proto.ReloadRequest{}, false
	}
	return *r.following, true
}

// HandleEvent returns a Kafka handler for the dataset-changed topic. Events
// for datasets other than the one being followed are skipped. Malformed
// events and missing datasets are logged and committed; a source outage is
// returned so the message is not committed.
func (r *Reloader) HandleEvent() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[proto.DatasetChanged](value)
		if err != nil {
			r.logger.Error("failed to decode dataset-changed event", "key", string(key), "error", err)
			return nil
		}
		cur, ok := r.Following()
		if !ok {
			r.logger.Debug("no dataset followed, event skipped", "factory", ev.Factory)
			return nil
		}
		if cur.Factory != "" && ev.Factory != cur.Factory {
			r.logger.Debug("event for another factory skipped", "factory", ev.Factory, "following", cur.Factory)
			return nil
		}
		req := proto.ReloadFromEvent(ev)
		req.Factory = cur.Factory
		if req.Source == "" {
			req.Source = cur.Source
		}

		ctx, cancel := context.WithTimeout(ctx, r.eventTimeout)
		defer cancel()
		if _, err := r.Reload(ctx, req); err != nil {
			if errors.Is(err, apperrors.ErrDatasetNotFound) || errors.Is(err, apperrors.ErrUnknownSource) {
				r.logger.Warn("dataset-changed event dropped", "factory", ev.Factory, "error", err)
				return nil
			}
			return err
		}
		return nil
	}
}
