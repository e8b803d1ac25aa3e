package codec

import (
	"bytes"
	"encoding/json"
)

// Tree is an ordered mapping from string keys to configuration values.
//
// Values are scalars (string, int64, uint64, float64, bool or nil), nested
// *Tree values, or []any lists of values. Keys keep their insertion order.
type Tree struct {
	keys   []string
	values map[string]any
}

// NewTree returns an empty tree
func NewTree() *Tree {
	return &Tree{values: make(map[string]any)}
}

// Set stores value under key. An existing key keeps its position; a new key
// is appended after all existing keys.
func (t *Tree) Set(key string, value any) {
	if t.values == nil {
		t.values = make(map[string]any)
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Get returns the value stored under key
func (t *Tree) Get(key string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[key]
	return v, ok
}

// Keys returns the keys in order. The returned slice must not be modified.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	return t.keys
}

// Len returns the number of keys
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Clone returns a deep copy of the tree
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	c := &Tree{
		keys:   append([]string(nil), t.keys...),
		values: make(map[string]any, len(t.values)),
	}
	for k, v := range t.values {
		c.values[k] = CloneValue(v)
	}
	return c
}

// CloneValue deep-copies nested trees and lists; scalars are returned as is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case *Tree:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the tree as a JSON object preserving key order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSONValue(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSONValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case *Tree:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range val.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSONValue(buf, val.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case float64:
		start := buf.Len()
		if err := writeJSONScalar(buf, val); err != nil {
			return err
		}
		if !bytes.ContainsAny(buf.Bytes()[start:], ".eE") {
			buf.WriteString(".0")
		}
	default:
		return writeJSONScalar(buf, val)
	}
	return nil
}

func writeJSONScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encoder terminates every value with a newline
	buf.Truncate(buf.Len() - 1)
	return nil
}
