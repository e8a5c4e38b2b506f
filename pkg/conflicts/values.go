package conflicts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
)

// fieldNormalizers names the registry normalizer used for a field's strings. Other
// fields compare trimmed and lowercased.
var fieldNormalizers = map[string]string{
	models.FieldEmail:       "nemail",
	models.FieldPhone:       "nphone",
	models.FieldMobilePhone: "nphone",
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// normalizePair returns comparable forms of both values. A numeric string is coerced
// to a number when the other side is numeric.
func normalizePair(field string, local, external any) (any, any) {
	l := normalize(field, local)
	e := normalize(field, external)

	if _, ok := l.(float64); ok {
		e = coerceNumber(e)
	}
	if _, ok := e.(float64); ok {
		l = coerceNumber(l)
	}
	return l, e
}

// normalize maps a raw value to nil, string, float64 or bool. Empty strings are nil,
// dates become ISO-8601 strings.
func normalize(field string, v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return normalizeString(field, val)
	case *string:
		if val == nil {
			return nil
		}
		return normalizeString(field, *val)
	case time.Time:
		return isoDate(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return isoDate(*val)
	case bool:
		return val
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case *float64:
		if val == nil {
			return nil
		}
		return *val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return normalizeString(field, val.String())
	default:
		return normalizeString(field, fmt.Sprint(val))
	}
}

func normalizeString(field, s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if name, ok := fieldNormalizers[field]; ok {
		if n := normalizers.Apply(s, name); n != "" {
			return n
		}
		// unparseable for this normalizer, e.g. a phone with no digits
		return normalizers.Text(s)
	}

	if ts, ok := parseDate(s); ok {
		return isoDate(ts)
	}
	return normalizers.Text(s)
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// isoDate formats midnight UTC as a bare date so date-only and timestamp copies agree.
func isoDate(ts time.Time) string {
	ts = ts.UTC()
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
		return ts.Format("2006-01-02")
	}
	return ts.Format(time.RFC3339)
}

func coerceNumber(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return f
	}
	return v
}

// classify returns the conflict type of two normalized values, or "" when they agree.
func classify(local, external any) models.ConflictType {
	switch {
	case local == nil && external == nil:
		return ""
	case local == nil:
		return models.ConflictTypeLocalMissing
	case external == nil:
		return models.ConflictTypeExternalMissing
	case local == external:
		return ""
	}

	ls, lok := local.(string)
	es, eok := external.(string)
	if lok && eok && (strings.Contains(ls, es) || strings.Contains(es, ls)) {
		return models.ConflictTypePartialMatch
	}
	return models.ConflictTypeValueMismatch
}
