package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/postgres"
	"github.com/lib/pq"
)

// rowSource is the part of *sql.Rows that scanRecords needs.
type rowSource interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Postgres reads dispatch rows from a table or view. Column order of the
// view becomes field order of the records.
type Postgres struct {
	db     *postgres.Client
	query  string
	view   string
	logger *slog.Logger
}

// NewPostgres builds a source over cfg.DispatchView.
func NewPostgres(db *postgres.Client, cfg config.SourceConfig) *Postgres {
	return &Postgres{
		db:     db,
		query:  buildQuery(cfg.DispatchView, cfg.FactoryColumn, cfg.OrderBy),
		view:   cfg.DispatchView,
		logger: slog.Default().With("component", "source-postgres", "view", cfg.DispatchView),
	}
}

func buildQuery(view, factoryColumn, orderBy string) string {
	q := fmt.Sprintf("SELECT * FROM %s WHERE ($1::text = '' OR %s = $1::text)",
		pq.QuoteIdentifier(view), pq.QuoteIdentifier(factoryColumn))
	if orderBy != "" {
		q += " ORDER BY " + pq.QuoteIdentifier(orderBy)
	}
	return q + " LIMIT NULLIF($2::int, 0)"
}

func (p *Postgres) Name() string { return NamePostgres }

// Fetch reads the rows for q inside a read-only transaction.
func (p *Postgres) Fetch(ctx context.Context, q Query) ([]record.Record, error) {
	start := time.Now()
	var records []record.Record
	err := p.db.InReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, p.query, q.Factory, q.Limit)
		if err != nil {
			return fmt.Errorf("querying %s: %w", p.view, err)
		}
		defer rows.Close()

		types, err := rows.ColumnTypes()
		if err != nil {
			return fmt.Errorf("reading column types: %w", err)
		}
		records, err = scanRecords(rows, numericColumns(types))
		return err
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("dataset fetched",
		"factory", q.Factory,
		"rows", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

// numericColumns marks NUMERIC/DECIMAL columns, which lib/pq returns as
// text bytes.
func numericColumns(types []*sql.ColumnType) []bool {
	numeric := make([]bool, len(types))
	for i, t := range types {
		switch t.DatabaseTypeName() {
		case "NUMERIC", "DECIMAL":
			numeric[i] = true
		}
	}
	return numeric
}

func scanRecords(rows rowSource, numeric []bool) ([]record.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	records := make([]record.Record, 0)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", len(records), err)
		}
		rec := make(record.Record, len(cols))
		for i, name := range cols {
			rec[i] = record.Field{Name: name, Value: convertValue(vals[i], i < len(numeric) && numeric[i])}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return records, nil
}

// convertValue maps driver values onto the record value kinds. Integers
// become float64 so database and JSON datasets tokenize alike.
func convertValue(v any, numeric bool) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		if numeric {
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return f
			}
		}
		return string(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return x
	}
}
