package querycache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cached resource: an entity family followed by selectors
// and parameters, e.g. K("snippets", "byId", 42) or
// K("snippets", "infinite", model.SnippetFilters{Limit: 20}).
//
// Keys are compared structurally through the JSON encoding of each segment,
// so K("snippets", "byId", 42) and K("snippets", "byId", int64(42)) are the
// same key.
type Key []any

// K builds a Key from its segments.
func K(segments ...any) Key {
	return Key(segments)
}

// String returns the canonical form of k. It doubles as the map key inside
// the cache.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, seg := range k {
		parts[i] = encodeSegment(seg)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// HasPrefix reports whether k starts with every segment of prefix. An empty
// prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if encodeSegment(k[i]) != encodeSegment(prefix[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether k and other name the same resource.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func encodeSegment(seg any) string {
	b, err := json.Marshal(seg)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%#v", seg))
	}
	return string(b)
}
