package recordstore

import (
	"strings"
	"time"
)

// DateDetection selects how a column is recognised as holding dates.
type DateDetection string

const (
	// DetectByType reconstructs exactly the values that were loaded as
	// time.Time; other values in the same column come back unchanged.
	DetectByType DateDetection = "type"
	// DetectByName marks a column as a date column when its name contains
	// "date", reconstructing every positive number stored in it.
	DetectByName DateDetection = "name"
)

// ParseDateDetection maps a config string to a DateDetection, defaulting to
// DetectByType.
func ParseDateDetection(s string) DateDetection {
	if strings.EqualFold(strings.TrimSpace(s), string(DetectByName)) {
		return DetectByName
	}
	return DetectByType
}

// instant is a point-in-time value as stored: milliseconds since the epoch.
// Keeping it distinct from int64 lets type mode reconstruct exactly the
// values that were loaded as times.
type instant int64

// column is one field of the loaded dataset.
type column struct {
	name   string
	date   bool // name mode only
	values []any
}

func newColumn(name string, rows int, mode DateDetection) column {
	return column{
		name:   name,
		date:   mode == DetectByName && strings.Contains(strings.ToLower(name), "date"),
		values: make([]any, rows),
	}
}

func (c *column) put(row int, v any) {
	if t, ok := v.(time.Time); ok {
		c.values[row] = instant(t.UnixMilli())
		return
	}
	c.values[row] = v
}

func (c *column) get(row int, mode DateDetection, loc *time.Location) any {
	v := c.values[row]
	if mode == DetectByType {
		if ms, ok := v.(instant); ok {
			return time.UnixMilli(int64(ms)).In(loc)
		}
		return v
	}
	if c.date {
		if ms, ok := positiveMillis(v); ok {
			return time.UnixMilli(ms).In(loc)
		}
	}
	if ms, ok := v.(instant); ok {
		return int64(ms)
	}
	return v
}

func positiveMillis(v any) (int64, bool) {
	switch x := v.(type) {
	case instant:
		return int64(x), x > 0
	case int64:
		return x, x > 0
	case int:
		return int64(x), x > 0
	case float64:
		return int64(x), x > 0
	default:
		return 0, false
	}
}
