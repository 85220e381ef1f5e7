package automation

import (
	"strconv"
	"strings"
)

// Extraction is the result of resolving a path against a payload.
// A missing or unreachable value is reported as Found=false, never an error.
type Extraction struct {
	Value any
	Found bool
}

// Extract resolves a dot/bracket path expression against a JSON document.
//
// Path syntax: optional leading "$" or "$.", dot-separated segments, and an
// optional zero-based index suffix per segment ("items[2]"). An empty path or
// bare "$" returns the whole document. Traversal degrades to Found=false as
// soon as an intermediate value is nil, a segment is applied to a non-object,
// an index is applied to a non-array, or an index is out of bounds. Malformed
// paths also degrade to Found=false; Extract never panics.
func Extract(doc any, path string) Extraction {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return Extraction{Value: doc, Found: true}
	}

	current := doc
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return Extraction{}
		}

		name, indexes, ok := parseSegment(segment)
		if !ok {
			return Extraction{}
		}

		if name != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return Extraction{}
			}
			val, ok := obj[name]
			if !ok {
				return Extraction{}
			}
			current = val
		}

		for _, idx := range indexes {
			arr, ok := current.([]any)
			if !ok {
				return Extraction{}
			}
			if idx < 0 || idx >= len(arr) {
				return Extraction{}
			}
			current = arr[idx]
		}

		if current == nil {
			return Extraction{}
		}
	}

	return Extraction{Value: current, Found: true}
}

// parseSegment splits "items[2]" into its name and index suffixes.
// Returns ok=false for malformed bracket syntax.
func parseSegment(segment string) (name string, indexes []int, ok bool) {
	open := strings.IndexByte(segment, '[')
	if open == -1 {
		if strings.ContainsAny(segment, "[]") {
			return "", nil, false
		}
		return segment, nil, true
	}

	name = segment[:open]
	rest := segment[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		closing := strings.IndexByte(rest, ']')
		if closing == -1 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:closing])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[closing+1:]
	}
	return name, indexes, true
}
