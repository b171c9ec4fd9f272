package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/resilience"
)

type registered struct {
	src     Source
	breaker *resilience.CircuitBreaker
}

// Manager routes fetches to registered sources. Concurrent fetches of the
// same source and factory share one underlying call.
type Manager struct {
	sources      map[string]registered
	defaultName  string
	maxRows      int
	fetchTimeout time.Duration
	retry        resilience.RetryConfig
	breakerCfg   resilience.CircuitBreakerConfig
	snapshot     Snapshotter
	group        singleflight.Group
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewManager creates an empty Manager. m may be nil.
func NewManager(cfg config.SourceConfig, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		sources:      make(map[string]registered),
		defaultName:  cfg.Default,
		maxRows:      cfg.MaxRows,
		fetchTimeout: cfg.FetchTimeout,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMax,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.1,
			Retryable:      retryable,
		},
		breakerCfg: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		metrics: m,
		logger:  slog.Default().With("component", "source-manager"),
	}
	if m != nil {
		mgr.breakerCfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return mgr
}

// Register adds src under its Name, replacing any previous source of that
// name.
func (m *Manager) Register(src Source) {
	name := src.Name()
	m.sources[name] = registered{
		src:     src,
		breaker: resilience.NewCircuitBreaker("source-"+name, m.breakerCfg),
	}
	if m.metrics != nil {
		m.metrics.CircuitBreakerState.WithLabelValues("source-" + name).Set(float64(resilience.StateClosed))
	}
	m.logger.Info("source registered", "source", name)
}

// SnapshotTo makes every successful fetch from a source other than the
// snapshot store itself be written to s.
func (m *Manager) SnapshotTo(s Snapshotter) {
	m.snapshot = s
}

// Names returns the registered source names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fetch reads the dataset for factory from the named source; an empty name
// selects the default source.
func (m *Manager) Fetch(ctx context.Context, name, factory string) ([]record.Record, error) {
	if name == "" {
		name = m.defaultName
	}
	reg, ok := m.sources[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownSource, http.StatusBadRequest, "unknown source %q", name)
	}

	v, err, shared := m.group.Do(name+"|"+factory, func() (any, error) {
		return m.fetch(ctx, reg, Query{Factory: factory, Limit: m.maxRows})
	})
	if shared {
		m.logger.Debug("fetch shared with concurrent caller", "source", name, "factory", factory)
	}
	if err != nil {
		return nil, err
	}
	return v.([]record.Record), nil
}

func (m *Manager) fetch(ctx context.Context, reg registered, q Query) ([]record.Record, error) {
	name := reg.src.Name()
	start := time.Now()
	var records []record.Record
	err := resilience.Retry(ctx, "fetch-"+name, m.retry, func() error {
		// a missing dataset is an answer, not a source failure
		var missing error
		err := reg.breaker.Execute(func() error {
			got, err := resilience.CallWithTimeout(ctx, m.fetchTimeout, "fetch-"+name, func(ctx context.Context) ([]record.Record, error) {
				return reg.src.Fetch(ctx, q)
			})
			if err == nil {
				records = got
			}
			if errors.Is(err, apperrors.ErrDatasetNotFound) {
				missing = err
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		return missing
	})
	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, apperrors.ErrDatasetNotFound) {
			status = "not_found"
		}
	}
	if m.metrics != nil {
		m.metrics.SourceFetchesTotal.WithLabelValues(name, status).Inc()
	}
	if err != nil {
		m.logger.Error("dataset fetch failed", "source", name, "factory", q.Factory, "error", err)
		if errors.Is(err, apperrors.ErrDatasetNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrSourceUnavailable, name, err)
	}
	m.logger.Info("dataset fetched",
		"source", name,
		"factory", q.Factory,
		"rows", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if m.snapshot != nil && name != NameRedis {
		if err := m.snapshot.Save(ctx, q.Factory, records); err != nil {
			m.logger.Warn("snapshot save failed", "factory", q.Factory, "error", err)
		}
	}
	return records, nil
}

func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrDatasetNotFound) &&
		!errors.Is(err, resilience.ErrCircuitOpen) &&
		!errors.Is(err, context.Canceled)
}
