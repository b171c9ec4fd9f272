// Package source fetches ledger datasets for the record store. A Source turns
// a factory name into an ordered batch of records; the Manager picks a source
// by name and wraps every fetch in a timeout, retries and a per-source
// circuit breaker.
package source

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
)

// Names of the built-in sources.
const (
	NamePostgres = "postgres"
	NameRedis    = "redis"
)

// Query selects the dataset to fetch. An empty Factory means every factory.
// Limit caps the number of records; zero means no cap.
type Query struct {
	Factory string
	Limit   int
}

// Source is a place datasets can be read from.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]record.Record, error)
}

// Snapshotter stores a fetched dataset so a later fetch can be served
// without hitting the primary source.
type Snapshotter interface {
	Save(ctx context.Context, factory string, records []record.Record) error
}
