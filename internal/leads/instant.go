package leads

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Layouts accepted for string instants. Values without a zone are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ResolveInstant picks createdAt when it is set, otherwise timestamp, and
// converts it. A set but unusable createdAt does not fall through.
func ResolveInstant(createdAt, timestamp any) (time.Time, bool) {
	if present(createdAt) {
		return instantOf(createdAt)
	}
	if present(timestamp) {
		return instantOf(timestamp)
	}
	return time.Time{}, false
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case int64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

func instantOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), !t.IsZero()
	case string:
		return parseInstant(t)
	case map[string]any:
		secs, ok := number(t["seconds"])
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(secs) * 1000).UTC(), true
	case interface{ AsTime() time.Time }:
		return t.AsTime().UTC(), true
	default:
		return time.Time{}, false
	}
}

func parseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Rank is the sort key of a lead in milliseconds; 0 when it has no instant.
func Rank(l Lead) int64 {
	if !l.HasAt {
		return 0
	}
	return l.At.UnixMilli()
}

// SortNewestFirst orders leads by rank descending. Leads of equal rank,
// including all leads without an instant, keep their relative order.
func SortNewestFirst(list []Lead) {
	sort.SliceStable(list, func(i, j int) bool {
		return Rank(list[i]) > Rank(list[j])
	})
}
