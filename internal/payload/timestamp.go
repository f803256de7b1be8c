package payload

import (
	"strconv"
	"strings"
	"time"
)

// millisThreshold is the smallest epoch value interpreted as milliseconds.
// Epoch seconds stay below this until the year 2286.
const millisThreshold = 9_999_999_999

// timeLayouts are tried in order when parsing string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ResolveTimestamp converts a heterogeneous timestamp value (epoch seconds,
// epoch milliseconds, date-time string, or nothing at all) to a UTC instant.
// Unparseable input falls back to the current time; ingestion never aborts
// over a bad timestamp.
func ResolveTimestamp(v any) time.Time {
	switch ts := v.(type) {
	case float64:
		return fromEpoch(int64(ts))
	case int64:
		return fromEpoch(ts)
	case int:
		return fromEpoch(int64(ts))
	case string:
		s := strings.TrimSpace(ts)
		if s == "" {
			break
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

func fromEpoch(n int64) time.Time {
	if n > millisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
