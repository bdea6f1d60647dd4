package analysis

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Entry is one key/value pair of an OrderedMap.
type Entry[V any] struct {
	Key   string
	Value V
}

// OrderedMap is a string-keyed map that marshals its keys in insertion order.
// Setting an existing key replaces its value and keeps its position.
type OrderedMap[V any] struct {
	entries []Entry[V]
	index   map[string]int
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{index: map[string]int{}}
}

func (m *OrderedMap[V]) Set(key string, v V) {
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = v
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry[V]{Key: key, Value: v})
}

func (m *OrderedMap[V]) Get(key string) (V, bool) {
	if i, ok := m.index[key]; ok {
		return m.entries[i].Value, true
	}
	var zero V
	return zero, false
}

func (m *OrderedMap[V]) Len() int { return len(m.entries) }

func (m *OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Key
	}
	return out
}

func (m *OrderedMap[V]) Entries() []Entry[V] {
	return append([]Entry[V](nil), m.entries...)
}

func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap[V]) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m.entries {
		var val yaml.Node
		if err := val.Encode(e.Value); err != nil {
			return nil, err
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key}
		node.Content = append(node.Content, key, &val)
	}
	return node, nil
}
