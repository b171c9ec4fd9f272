// Package worker runs a record store on its own goroutine. Callers exchange
// SET_DATA and SEARCH messages with it; messages are processed one at a time
// in the order they were accepted, so a search never observes a half-built
// dataset. Each response echoes the caller's sequence number, which lets
// callers with several requests in flight discard stale answers.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
)

type envelope struct {
	req      Request
	reply    chan Response
	accepted time.Time
}

// Worker owns a Store and serves requests against it.
type Worker struct {
	store     *recordstore.Store
	requests  chan envelope
	quit      chan struct{}
	done      chan struct{}
	observers []Observer
	logger    *slog.Logger

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
}

// New creates a Worker around store with a request queue of queueSize.
func New(store *recordstore.Store, queueSize int, observers ...Observer) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{
		store:     store,
		requests:  make(chan envelope, queueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		observers: observers,
		logger:    slog.Default().With("component", "search-worker"),
	}
}

// Start launches the processing loop. It returns immediately; the loop runs
// until Close is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.run(ctx)
		w.logger.Info("search worker started", "queue_size", cap(w.requests))
	})
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case env := <-w.requests:
			w.process(env)
		case <-w.quit:
			w.drain()
			w.logger.Info("search worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("search worker stopping", "reason", ctx.Err())
			w.shutdown()
			return
		}
	}
}

// shutdown stops accepting requests after the start context ends. The write
// lock waits for Submit calls that are still sending, so the queue keeps
// being served until it is taken; after that nothing can enter the queue
// and a final drain answers everything accepted.
func (w *Worker) shutdown() {
	locked := make(chan struct{})
	go func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(locked)
	}()
	for {
		select {
		case env := <-w.requests:
			w.process(env)
		case <-locked:
			w.drain()
			return
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case env := <-w.requests:
			w.process(env)
		default:
			return
		}
	}
}

// Submit enqueues req and returns a channel that receives exactly one
// Response. It blocks while the queue is full.
func (w *Worker) Submit(ctx context.Context, req Request) (<-chan Response, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, apperrors.ErrWorkerClosed
	}
	env := envelope{req: req, reply: make(chan Response, 1), accepted: time.Now()}
	select {
	case w.requests <- env:
		return env.reply, nil
	case <-w.done:
		return nil, apperrors.ErrWorkerClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("submitting %s #%d: %w", req.Kind, req.SequenceNumber, ctx.Err())
	}
}

// Do submits req and waits for its response. Cancelling ctx abandons the
// wait only; the worker still processes the request.
func (w *Worker) Do(ctx context.Context, req Request) (Response, error) {
	reply, err := w.Submit(ctx, req)
	if err != nil {
		return Response{}, err
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, fmt.Errorf("waiting for %s #%d: %w", req.Kind, req.SequenceNumber, ctx.Err())
	case <-w.done:
		select {
		case resp := <-reply:
			return resp, nil
		default:
			return Response{}, apperrors.ErrWorkerClosed
		}
	}
}

// Close stops accepting requests, processes those already queued and waits
// for the loop to exit. Close must only be called after Start.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.quit)
	w.mu.Unlock()
	<-w.done
}

// Pending returns the number of queued requests.
func (w *Worker) Pending() int {
	return len(w.requests)
}

// Alive reports whether the processing loop is still running.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Worker) process(env envelope) {
	start := time.Now()
	resp, ev := w.handle(env.req)
	ev.Duration = time.Since(start)
	ev.QueueWait = start.Sub(env.accepted)
	env.reply <- resp
	for _, o := range w.observers {
		o.Observe(ev)
	}
}

// handle executes one request against the store. A panic while handling is
// reported as a failed response; Load only swaps in new structures once
// they are complete, so the previous dataset stays usable.
func (w *Worker) handle(req Request) (resp Response, ev Event) {
	ev = Event{Kind: req.Kind, SequenceNumber: req.SequenceNumber, SearchTerm: req.SearchTerm}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("request panicked",
				"kind", req.Kind,
				"sequence_number", req.SequenceNumber,
				"panic", r,
			)
			resp = Response{
				Kind:           doneKind(req.Kind),
				SequenceNumber: req.SequenceNumber,
				Results:        nil,
				Error:          apperrors.ErrInternal.Error(),
			}
			ev.Failed = true
		}
	}()

	switch req.Kind {
	case KindSetData:
		w.store.Load(req.Records)
		results, hit := w.store.SearchCached(req.SearchTerm)
		resp = Response{
			Kind:           KindSetDataDone,
			SequenceNumber: req.SequenceNumber,
			Results:        results,
			CacheHit:       hit,
			Generation:     w.store.Generation(),
		}
	case KindSearch:
		results, hit := w.store.SearchCached(req.SearchTerm)
		resp = Response{Kind: KindSearchDone, SequenceNumber: req.SequenceNumber, Results: results, CacheHit: hit}
	case KindStats:
		stats := w.store.Stats()
		resp = Response{Kind: KindStatsDone, SequenceNumber: req.SequenceNumber, Stats: &stats}
	default:
		w.logger.Warn("unknown message kind", "kind", req.Kind, "sequence_number", req.SequenceNumber)
		resp = Response{
			SequenceNumber: req.SequenceNumber,
			Error:          fmt.Sprintf("%s: unknown message kind %q", apperrors.ErrInvalidInput, req.Kind),
		}
		ev.Failed = true
		return resp, ev
	}
	ev.Rows = w.store.Len()
	ev.Results = len(resp.Results)
	ev.CacheHit = resp.CacheHit
	return resp, ev
}

func doneKind(k Kind) Kind {
	switch k {
	case KindSetData:
		return KindSetDataDone
	case KindSearch:
		return KindSearchDone
	case KindStats:
		return KindStatsDone
	default:
		return k
	}
}
