// Package handler exposes the search worker over HTTP: dataset loads,
// searches, generic worker messages, source reloads and store stats.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/tracing"
)

// SequenceHeader echoes the sequence number of the answered message.
const SequenceHeader = "X-Sequence-Number"

// Dispatcher sends a message to the search worker and waits for the reply.
type Dispatcher interface {
	Do(ctx context.Context, req worker.Request) (worker.Response, error)
}

// Reloader loads datasets from record sources.
type Reloader interface {
	Reload(ctx context.Context, req proto.ReloadRequest) (reload.Result, error)
	Detach(generation uint64)
}

// Options configures a Handler. Zero values disable the corresponding limit.
type Options struct {
	Reloader       Reloader
	Tracer         *tracing.Tracer
	RequestTimeout time.Duration
	MaxResults     int
	MaxBodyBytes   int64
}

// searchResponse is a worker response plus the match count before
// MaxResults truncation.
type searchResponse struct {
	worker.Response
	Total     int  `json:"total"`
	Truncated bool `json:"truncated,omitempty"`
}

type Handler struct {
	worker   Dispatcher
	seq      *worker.Sequencer
	reloader Reloader
	tracer   *tracing.Tracer
	timeout  time.Duration
	maxRes   int
	maxBody  int64
	logger   *slog.Logger
}

func New(d Dispatcher, seq *worker.Sequencer, opts Options) *Handler {
	if seq == nil {
		seq = &worker.Sequencer{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.NewTracer(config.TracingConfig{})
	}
	return &Handler{
		worker:   d,
		seq:      seq,
		reloader: opts.Reloader,
		tracer:   tracer,
		timeout:  opts.RequestTimeout,
		maxRes:   opts.MaxResults,
		maxBody:  opts.MaxBodyBytes,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/dataset", h.SetData)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/messages", h.Message)
	mux.HandleFunc("POST /api/v1/dataset/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
}

// SetData serves POST /api/v1/dataset. The body is a SET_DATA message; kind
// may be omitted.
func (h *Handler) SetData(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Kind == "" {
		req.Kind = worker.KindSetData
	}
	if req.Kind != worker.KindSetData {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "expected %s, got %s", worker.KindSetData, req.Kind))
		return
	}
	h.dispatch(w, r, req)
}

// Search serves GET /api/v1/search?q=&seq=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	seq, err := h.sequence(r.URL.Query().Get("seq"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.dispatch(w, r, worker.Search(seq, r.URL.Query().Get("q")))
}

// Message serves POST /api/v1/messages, accepting any worker message kind.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	switch req.Kind {
	case worker.KindSetData, worker.KindSearch, worker.KindStats:
	default:
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unsupported message kind %q", req.Kind))
		return
	}
	h.dispatch(w, r, req)
}

// Stats serves GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, worker.Request{Kind: worker.KindStats, SequenceNumber: h.seq.Next()})
}

// Reload serves POST /api/v1/dataset/reload?source=&factory=&q=&seq=.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, r, apperrors.New(apperrors.ErrSourceUnavailable, http.StatusServiceUnavailable, "no record sources configured"))
		return
	}
	q := r.URL.Query()
	req := proto.ReloadRequest{
		Source:     q.Get("source"),
		Factory:    q.Get("factory"),
		SearchTerm: q.Get("q"),
	}
	if s := q.Get("seq"); s != "" {
		seq, err := h.sequence(s)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.SequenceNumber = seq
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	ctx, span := h.tracer.Start(ctx, "dataset.reload", middleware.GetRequestID(ctx))
	span.SetAttr("source", req.Source)
	span.SetAttr("factory", req.Factory)
	defer h.tracer.Finish(span)

	res, err := h.reloader.Reload(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(SequenceHeader, strconv.FormatInt(res.Response.SequenceNumber, 10))
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, req worker.Request) {
	start := time.Now()
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	log := logger.FromContext(ctx)

	ctx, span := h.tracer.Start(ctx, "worker."+string(req.Kind), middleware.GetRequestID(ctx))
	span.SetAttr("sequence_number", req.SequenceNumber)
	defer h.tracer.Finish(span)

	resp, err := h.worker.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		log.Error("worker request failed", "kind", req.Kind, "sequence_number", req.SequenceNumber, "error", err)
		h.writeError(w, r, err)
		return
	}
	if req.Kind == worker.KindSetData && resp.Error == "" && h.reloader != nil {
		h.reloader.Detach(resp.Generation)
	}
	w.Header().Set(SequenceHeader, strconv.FormatInt(resp.SequenceNumber, 10))
	if resp.Error != "" {
		log.Error("worker reported failure", "kind", req.Kind, "sequence_number", req.SequenceNumber, "error", resp.Error)
		h.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	out := searchResponse{Response: resp, Total: len(resp.Results)}
	if h.maxRes > 0 && len(out.Results) > h.maxRes {
		out.Results = out.Results[:h.maxRes]
		out.Truncated = true
	}
	span.SetAttr("results", out.Total)
	span.SetAttr("cache_hit", resp.CacheHit)
	log.Info("worker request completed",
		"kind", req.Kind,
		"sequence_number", resp.SequenceNumber,
		"search_term", req.SearchTerm,
		"results", out.Total,
		"cache_hit", resp.CacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (worker.Request, error) {
	var req worker.Request
	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return req, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid message body: %v", err)
	}
	if req.SequenceNumber == 0 {
		req.SequenceNumber = h.seq.Next()
	} else {
		h.seq.Observe(req.SequenceNumber)
	}
	return req, nil
}

// sequence parses a caller-supplied sequence number, or issues one.
func (h *Handler) sequence(raw string) (int64, error) {
	if raw == "" {
		return h.seq.Next(), nil
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "seq must be an integer, got %q", raw)
	}
	h.seq.Observe(seq)
	return seq, nil
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
