// Package jsonpath evaluates dot-separated paths with bracket indexes
// against decoded JSON values. Lookups never error: a missing or
// type-mismatched path returns ok=false.
//
// Supported syntax:
//
//	"commits[0].id"        -> index into array field
//	"repository.full_name" -> nested object field
//	"[2]"                  -> index into a top-level array
package jsonpath

import (
	"strconv"
	"strings"
)

// Get evaluates path against a decoded JSON value (map[string]any,
// []any, or scalar). Returns the value at the path and whether it exists.
func Get(doc any, path string) (any, bool) {
	if path == "" {
		return doc, doc != nil
	}

	current := doc
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}

		key, indexes, ok := splitSegment(seg)
		if !ok {
			return nil, false
		}

		if key != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[key]
			if !ok {
				return nil, false
			}
		}

		for _, idx := range indexes {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}

	return current, true
}

// GetString evaluates path and returns the value if it is a string.
func GetString(doc any, path string) (string, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetSlice evaluates path and returns the value if it is an array.
func GetSlice(doc any, path string) ([]any, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

// splitSegment parses "name[1][2]" into ("name", [1, 2], true).
// A bare "[0]" yields an empty key. Malformed brackets yield ok=false.
func splitSegment(seg string) (string, []int, bool) {
	open := strings.IndexByte(seg, '[')
	if open == -1 {
		return seg, nil, true
	}

	key := seg[:open]
	rest := seg[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		close := strings.IndexByte(rest, ']')
		if close == -1 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[close+1:]
	}

	return key, indexes, true
}
