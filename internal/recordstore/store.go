// Package recordstore is the in-memory search engine behind the dispatch
// tables. A Store ingests a batch of records into a columnar layout and an
// inverted word index, then answers free-text multi-term queries with AND
// semantics and partial-word matching, caching results per normalized query
// until the next load.
//
// A Store is not safe for concurrent use. It is meant to be owned by a single
// goroutine; see package worker.
package recordstore

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/cache"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/index"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore/tokenizer"
)

// State is the lifecycle state of a Store.
type State int

const (
	StateEmpty State = iota
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Options configures a Store.
type Options struct {
	DateDetection   DateDetection
	Location        *time.Location
	CacheMaxEntries int
}

// Stats describes the currently loaded dataset.
type Stats struct {
	State        string `json:"state"`
	Generation   uint64 `json:"generation"`
	Rows         int    `json:"rows"`
	Fields       int    `json:"fields"`
	Tokens       int    `json:"tokens"`
	IndexBytes   uint64 `json:"index_bytes"`
	CacheEntries int    `json:"cache_entries"`
	CacheHits    int64  `json:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses"`
}

// Store is the indexed record store.
type Store struct {
	opts       Options
	columns    []column
	rows       int
	index      *index.Index
	cache      *cache.QueryCache[[]record.Record]
	generation uint64
	logger     *slog.Logger
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.DateDetection == "" {
		opts.DateDetection = DetectByType
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Store{
		opts:   opts,
		index:  index.New(),
		cache:  cache.New[[]record.Record](opts.CacheMaxEntries),
		logger: slog.Default().With("component", "record-store"),
	}
}

// Load replaces the dataset with records. The field list is taken from the
// first record; later records missing a field store nil for it. The new
// columns and index are built aside and swapped in once complete, and the
// query cache is cleared.
func (s *Store) Load(records []record.Record) {
	start := time.Now()
	n := len(records)
	if n == 0 {
		s.columns = nil
		s.rows = 0
		s.index = index.New()
		s.cache.Clear()
		s.generation++
		s.logger.Info("dataset cleared", "generation", s.generation)
		return
	}

	fields := records[0].Names()
	columns := make([]column, len(fields))
	for j, name := range fields {
		columns[j] = newColumn(name, n, s.opts.DateDetection)
	}
	ix := index.New()
	for i, rec := range records {
		row := uint32(i)
		for j := range columns {
			v := valueAt(rec, j, columns[j].name)
			columns[j].put(i, v)
			for _, token := range tokenizer.TokenizeValue(v, s.opts.Location) {
				ix.Add(token, row)
			}
		}
	}

	s.columns = columns
	s.rows = n
	s.index = ix
	s.cache.Clear()
	s.generation++
	s.logger.Info("dataset loaded",
		"generation", s.generation,
		"rows", n,
		"fields", len(fields),
		"tokens", ix.Terms(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// valueAt reads field name from rec, trying position j first since records of
// one batch usually share their field order.
func valueAt(rec record.Record, j int, name string) any {
	if j < len(rec) && rec[j].Name == name {
		return rec[j].Value
	}
	v, _ := rec.Get(name)
	return v
}

// Search answers a free-text query. A blank query returns every row in row
// order and bypasses the cache. Otherwise each whitespace-separated term must
// occur as a substring of some indexed token of a row for the row to match.
// Returned records are shared with the cache and must not be modified.
func (s *Store) Search(query string) []record.Record {
	rows, _ := s.SearchCached(query)
	return rows
}

// SearchCached is Search that also reports whether the result came from the
// query cache.
func (s *Store) SearchCached(query string) ([]record.Record, bool) {
	if strings.TrimSpace(query) == "" {
		return s.All(), false
	}
	key := cache.Key(query)
	return s.cache.GetOrCompute(key, func() []record.Record {
		ids := s.index.Search(strings.Split(key, " "))
		results := make([]record.Record, len(ids))
		for i, id := range ids {
			results[i] = s.materialize(int(id))
		}
		s.logger.Debug("query evaluated", "query", key, "results", len(results))
		return results
	})
}

// All returns every row in row order.
func (s *Store) All() []record.Record {
	results := make([]record.Record, s.rows)
	for i := 0; i < s.rows; i++ {
		results[i] = s.materialize(i)
	}
	return results
}

func (s *Store) materialize(row int) record.Record {
	rec := make(record.Record, len(s.columns))
	for j := range s.columns {
		rec[j] = record.Field{
			Name:  s.columns[j].name,
			Value: s.columns[j].get(row, s.opts.DateDetection, s.opts.Location),
		}
	}
	return rec
}

// State reports whether a non-empty dataset is loaded.
func (s *Store) State() State {
	if s.rows == 0 {
		return StateEmpty
	}
	return StateLoaded
}

// Generation counts loads, including loads of an empty batch.
func (s *Store) Generation() uint64 {
	return s.generation
}

// Len returns the number of loaded rows.
func (s *Store) Len() int {
	return s.rows
}

// Fields returns the field names of the loaded dataset.
func (s *Store) Fields() []string {
	names := make([]string, len(s.columns))
	for j := range s.columns {
		names[j] = s.columns[j].name
	}
	return names
}

// Stats returns a snapshot of the store's sizes and cache counters.
func (s *Store) Stats() Stats {
	hits, misses := s.cache.Stats()
	return Stats{
		State:        s.State().String(),
		Generation:   s.generation,
		Rows:         s.rows,
		Fields:       len(s.columns),
		Tokens:       s.index.Terms(),
		IndexBytes:   s.index.SizeBytes(),
		CacheEntries: s.cache.Len(),
		CacheHits:    hits,
		CacheMisses:  misses,
	}
}
