package bookingapi

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// listKeys is the ordered set of field names that might hold the "real"
// list in an upstream envelope. Tried in order, first match wins; if
// none match, the first array-valued field in the object is used.
//
// Grounded on sja_booking/api.py's LIST_KEYS / _extract_first_list.
var listKeys = []string{"data", "list", "rows", "records", "items", "content", "results", "result"}

// extractFirstList finds the first JSON array reachable from payload by
// trying listKeys against object fields (recursing into strings that
// decode as JSON), falling back to the first array-valued field.
func extractFirstList(payload gjson.Result) gjson.Result {
	switch {
	case payload.IsArray():
		return payload
	case payload.Type == gjson.String:
		text := strings.TrimSpace(payload.String())
		if gjson.Valid(text) {
			return extractFirstList(gjson.Parse(text))
		}
		return gjson.Result{}
	case payload.IsObject():
		for _, key := range listKeys {
			v := payload.Get(key)
			if !v.Exists() {
				continue
			}
			if found := extractFirstList(v); found.IsArray() {
				return found
			}
		}
		var fallback gjson.Result
		payload.ForEach(func(_, v gjson.Result) bool {
			if v.IsArray() {
				fallback = v
				return false
			}
			return true
		})
		return fallback
	default:
		return gjson.Result{}
	}
}

// firstString returns the first non-empty string value among keys on obj.
func firstString(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		v := obj.Get(k)
		if v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// firstInt returns the first key whose value parses as an integer
// (negative values included), or (0, false).
func firstInt(obj gjson.Result, keys ...string) (int, bool) {
	for _, k := range keys {
		v := obj.Get(k)
		if !v.Exists() {
			continue
		}
		switch v.Type {
		case gjson.Number:
			return int(v.Num), true
		case gjson.String:
			if n, err := strconv.Atoi(strings.TrimSpace(v.String())); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// truthy mirrors _bool from the upstream Python client: booleans pass
// through, numbers are truthy when positive, and a small set of string
// tokens ("1", "true", "y", "yes", "available", "idle") are truthy.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return v.Num > 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.String())) {
		case "1", "true", "y", "yes", "available", "idle":
			return true
		}
	}
	return false
}
