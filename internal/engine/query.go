package engine

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// runQuery evaluates q against one collection. Without an ordering the
// result is in id order. Ordering by a field excludes documents that do not
// carry it, matching hosted document databases.
func runQuery(docs map[string]map[string]any, q docstore.Query) []docstore.Document {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		doc := docs[id]
		if !matches(doc, q.Where) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := lookup(doc, q.OrderBy); !ok {
				continue
			}
		}
		out = append(out, docstore.Document{ID: id, Data: cloneDoc(doc)})
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := lookup(out[i].Data, q.OrderBy)
			b, _ := lookup(out[j].Data, q.OrderBy)
			if q.Direction == docstore.Desc {
				return Compare(a, b) > 0
			}
			return Compare(a, b) < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(doc map[string]any, where []docstore.Filter) bool {
	for _, f := range where {
		v, ok := lookup(doc, f.Field)
		if !ok || kindOf(v) != kindOf(f.Value) || Compare(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

// lookup resolves a possibly dotted field path.
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

type kind int

const (
	kindNull kind = iota
	kindBool
	kindNumber
	kindTime
	kindString
	kindOther
)

func kindOf(v any) kind {
	switch t := v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case time.Time:
		return kindTime
	case string:
		return kindString
	case map[string]any:
		if _, ok := t["seconds"]; ok {
			return kindTime
		}
		return kindOther
	default:
		if _, ok := toFloat(v); ok {
			return kindNumber
		}
		return kindOther
	}
}

// Compare orders two document values. Values of different kinds order by
// kind (null, bool, number, timestamp, string, other), the way Firestore
// orders mixed-type fields.
func Compare(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case kindBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case kindNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmpFloat(fa, fb)
	case kindTime:
		return toTime(a).Compare(toTime(b))
	case kindString:
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case map[string]any:
		secs, _ := toFloat(t["seconds"])
		nanos, _ := toFloat(t["nanoseconds"])
		return time.Unix(int64(secs), int64(nanos)).UTC()
	}
	return time.Time{}
}
