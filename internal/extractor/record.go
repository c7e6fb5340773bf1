package extractor

import (
	"encoding/json"
	"strings"
)

// Record is an ordered mapping of metadata field names to heterogeneous
// values (strings, numbers, nested mappings). Field order is preserved so
// sidecar files and --dump-json output stay stable across runs.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordFrom builds a record from key/value pairs in the given order.
func RecordFrom(pairs ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			r.Set(k, pairs[i+1])
		}
	}
	return r
}

// Set stores a field value, appending the key on first assignment.
func (r *Record) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key. Dotted keys descend into nested mappings
// (map[string]any or nested *Record). The second result is false when any
// path element is missing; absence is explicit, never a nil value.
func (r *Record) Get(key string) (any, bool) {
	head, rest, nested := strings.Cut(key, ".")
	v, ok := r.values[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return v, true
	}
	switch inner := v.(type) {
	case *Record:
		return inner.Get(rest)
	case map[string]any:
		return nestedGet(inner, rest)
	default:
		return nil, false
	}
}

func nestedGet(m map[string]any, key string) (any, bool) {
	head, rest, nested := strings.Cut(key, ".")
	v, ok := m[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return v, true
	}
	switch inner := v.(type) {
	case map[string]any:
		return nestedGet(inner, rest)
	case *Record:
		return inner.Get(rest)
	default:
		return nil, false
	}
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// MarshalJSON serializes the record preserving field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
