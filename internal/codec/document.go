package codec

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// document is a loosely-typed JSON object with coercing accessors.
type document map[string]any

// str returns a string field. Numbers are rendered as their literal text.
func (d document) str(key string) (string, bool) {
	switch v := d[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

// integer returns an integer field, accepting numeric strings and integral floats.
func (d document) integer(key string) (int, bool) {
	switch v := d[key].(type) {
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return 0, false
			}
			return int(f), true
		}
		return int(n), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// obj returns a nested object, or an empty one when absent or mistyped.
func (d document) obj(key string) document {
	if m, ok := d[key].(map[string]any); ok {
		return document(m)
	}
	return document{}
}

func (d document) list(key string) ([]any, bool) {
	l, ok := d[key].([]any)
	return l, ok
}

// strs returns a list of strings. Any non-string element fails the field.
func (d document) strs(key string) ([]string, bool) {
	switch v := d[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case []string:
		return v, true
	}
	return nil, false
}

// timestamp parses an RFC 3339 timestamp or unix milliseconds; zero when absent.
func (d document) timestamp(key string) time.Time {
	if s, ok := d[key].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		return time.Time{}
	}
	if ms, ok := d.integer(key); ok {
		return time.UnixMilli(int64(ms)).UTC()
	}
	return time.Time{}
}
