package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// MaxKeyLength is the longest key kept verbatim. Longer canonical forms are hashed.
const MaxKeyLength = 512

// DefaultKey is the key derived from an empty argument tuple.
const DefaultKey = "default"

// keySeparator joins tuple elements. JSON escapes every control character, so
// it never appears unescaped inside a canonical element.
const keySeparator = "\x1f"

// Keyer derives cache keys from fetch arguments.
//
// Contract:
// - Determinism: structurally equal arguments produce the same key, regardless
//   of map iteration or object field order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(args ...any) (string, error)
}

// DefaultKeyer encodes each argument as canonical JSON and joins them with the
// ASCII unit separator.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key derives the key for args. An empty tuple yields DefaultKey.
func (k *DefaultKeyer) Key(args ...any) (string, error) {
	if len(args) == 0 {
		return DefaultKey, nil
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		canonical, err := canonicalize(arg)
		if err != nil {
			return "", fmt.Errorf("%w: argument %d: %v", ErrInvalidKey, i, err)
		}
		parts[i] = string(canonical)
	}

	key := strings.Join(parts, keySeparator)
	if len(key) > MaxKeyLength {
		sum := sha256.Sum256([]byte(key))
		key = "sha256:" + hex.EncodeToString(sum[:16])
	}
	return key, nil
}

// canonicalize produces a deterministic JSON representation of v. Values that
// are not plain maps or slices are round-tripped through encoding/json first so
// struct field order and custom marshalers are normalized the same way.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return json.Marshal(val)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	switch generic.(type) {
	case map[string]any, []any:
		return canonicalize(generic)
	default:
		return raw, nil
	}
}

// canonicalizeMap writes m as a JSON object with its keys in sorted order,
// canonicalizing each value.
func canonicalizeMap(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(m)) {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := canonicalize(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonicalizeSlice writes s as a JSON array. Element order is significant and
// kept.
func canonicalizeSlice(s []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range s {
		val, err := canonicalize(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(val)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

var _ Keyer = (*DefaultKeyer)(nil)
