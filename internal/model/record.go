package model

import "encoding/json"

// RawRecord is one input row: source column names mapped to string values.
// Keys are unique and keep the order in which they first appeared.
type RawRecord struct {
	keys   []string
	values map[string]string
}

// NewRawRecord creates an empty record with room for n fields.
func NewRawRecord(n int) RawRecord {
	return RawRecord{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// RawRecordFromPairs builds a record from alternating key/value strings.
// A trailing key without a value maps to "".
func RawRecordFromPairs(kv ...string) RawRecord {
	r := NewRawRecord(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		v := ""
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		r.Set(kv[i], v)
	}
	return r
}

// Set stores value under key. An existing key keeps its original position.
func (r *RawRecord) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether the key exists.
func (r RawRecord) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in source order.
func (r RawRecord) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r RawRecord) Len() int {
	return len(r.keys)
}

// MarshalJSON keeps source key order, which map encoding would lose.
func (r RawRecord) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range r.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendJSONString(buf, k)
		buf = append(buf, ':')
		buf = appendJSONString(buf, r.values[k])
	}
	return append(buf, '}'), nil
}

func appendJSONString(buf []byte, s string) []byte {
	b, _ := json.Marshal(s) // a string always marshals
	return append(buf, b...)
}
