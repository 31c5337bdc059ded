// Package types provides the core data structures shared by the extraction
// pipeline: the metadata record, format identifiers, streams, the extraction
// context and the extractor/translator/detector contracts.
package types

import "sort"

// Metadata is an ordered, multi-valued key/value record.
//
// Each key holds zero or more values in insertion order. A key with zero
// values is equivalent to an absent key. Key order is also preserved so that
// serialized output is deterministic.
//
// Metadata is not safe for concurrent mutation. Once frozen, any write panics.
type Metadata struct {
	values map[string][]string
	names  []string
	frozen bool
}

// NewMetadata creates an empty record.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string][]string)}
}

// MetadataFrom creates a record seeded from a map. Keys are inserted in
// sorted order since map iteration order is random.
func MetadataFrom(m map[string][]string) *Metadata {
	md := NewMetadata()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		md.Set(k, m[k]...)
	}
	return md
}

func (m *Metadata) mustWritable() {
	if m.frozen {
		panic("metadata: write to frozen record")
	}
	if m.values == nil {
		m.values = make(map[string][]string)
	}
}

// Set replaces all values for key. Calling Set with no values removes the key.
func (m *Metadata) Set(key string, values ...string) {
	m.mustWritable()
	if len(values) == 0 {
		m.remove(key)
		return
	}
	if _, ok := m.values[key]; !ok {
		m.names = append(m.names, key)
	}
	m.values[key] = append([]string(nil), values...)
}

// Add appends a value to key, creating the key if needed.
func (m *Metadata) Add(key, value string) {
	m.mustWritable()
	if _, ok := m.values[key]; !ok {
		m.names = append(m.names, key)
	}
	m.values[key] = append(m.values[key], value)
}

// Get returns the first value for key, or "" when absent.
func (m *Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	if v := m.values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns a copy of all values for key.
func (m *Metadata) Values(key string) []string {
	if m == nil {
		return nil
	}
	v := m.values[key]
	if len(v) == 0 {
		return nil
	}
	return append([]string(nil), v...)
}

// Has reports whether key holds at least one value.
func (m *Metadata) Has(key string) bool {
	return m != nil && len(m.values[key]) > 0
}

// Remove deletes key.
func (m *Metadata) Remove(key string) {
	m.mustWritable()
	m.remove(key)
}

func (m *Metadata) remove(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, n := range m.names {
		if n == key {
			m.names = append(m.names[:i:i], m.names[i+1:]...)
			break
		}
	}
}

// Names returns keys in insertion order.
func (m *Metadata) Names() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.names...)
}

// Len returns the number of keys.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Clone returns a writable deep copy.
func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	if m == nil {
		return c
	}
	for _, n := range m.names {
		c.names = append(c.names, n)
		c.values[n] = append([]string(nil), m.values[n]...)
	}
	return c
}

// Freeze makes the record immutable.
func (m *Metadata) Freeze() {
	m.frozen = true
}

// Frozen reports whether the record rejects writes.
func (m *Metadata) Frozen() bool {
	return m.frozen
}

// Map returns a copy of the record as a plain map.
func (m *Metadata) Map() map[string][]string {
	out := make(map[string][]string, m.Len())
	if m == nil {
		return out
	}
	for _, n := range m.names {
		out[n] = append([]string(nil), m.values[n]...)
	}
	return out
}

// Equal reports whether both records hold the same keys and values.
// Key order is ignored; value order per key is not.
func (m *Metadata) Equal(other *Metadata) bool {
	if m.Len() != other.Len() {
		return false
	}
	for _, n := range m.Names() {
		a, b := m.values[n], other.values[n]
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
