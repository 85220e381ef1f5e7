package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Key derives a deterministic cache key from a prefix and a filter value.
// Structurally equal filters yield equal keys regardless of map key order,
// which is what makes cache hits correct across call sites.
func Key(prefix string, filters any) string {
	if filters == nil {
		return prefix
	}

	raw, err := json.Marshal(filters)
	if err != nil {
		// Unserializable filters cannot be cached correctly; make the key
		// unique so they never collide with a real one.
		return prefix + ":unserializable:" + fmt.Sprintf("%p", &raw)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return prefix + ":" + string(raw)
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	writeCanonical(&b, decoded)
	return b.String()
}

// writeCanonical renders a decoded JSON value with object keys sorted.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(val))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case nil:
		b.WriteString("null")
	default:
		fmt.Fprintf(b, "%v", val)
	}
}
