// Package tokenizer turns record values and queries into the lowercase word
// tokens used by the inverted index. Unlike a full-text analyzer it keeps
// punctuation inside words, so challan numbers such as "CH-100" and short
// dates such as "09-01-26" survive as single tokens.
package tokenizer

import (
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/record"
)

// DateLayout is the day-month-two-digit-year form users search dates by.
const DateLayout = "02-01-06"

// FormatDate renders t in DateLayout within loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// Tokenize lowercases text and splits it on runs of whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// TokenizeValue serializes a record value and tokenizes it. Values that are
// not truthy produce no tokens.
func TokenizeValue(v any, loc *time.Location) []string {
	if !record.Truthy(v) {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return []string{FormatDate(t, loc)}
	}
	return Tokenize(record.String(v))
}

// Normalize lowercases a query, trims it and collapses inner whitespace so
// that equivalent queries share one cache key.
func Normalize(query string) string {
	return strings.Join(Tokenize(query), " ")
}
