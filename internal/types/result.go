package types

import (
	"bytes"
	"encoding/json"
)

// Attributes is a string-keyed map that remembers insertion order.
// Values are strings or string slices as scraped from the page.
type Attributes struct {
	keys   []string
	values map[string]any
}

// NewAttributes creates an empty ordered map.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

// Set stores a value. Re-setting a key keeps its original position.
func (a *Attributes) Set(key string, value any) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get retrieves a value.
func (a *Attributes) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

// GetString retrieves a value as a string.
func (a *Attributes) GetString(key string) string {
	s, _ := a.values[key].(string)
	return s
}

// Keys returns the keys in insertion order.
func (a *Attributes) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Len returns the number of keys.
func (a *Attributes) Len() int { return len(a.keys) }

func (a *Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if a != nil {
		for i, k := range a.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(a.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Subgroup is one diagram page of a main group with its parsed table.
type Subgroup struct {
	Name         string    `json:"subgroup"`
	DiagramImage string    `json:"diagram_image"`
	Parts        []PartRow `json:"parts"`
}

// GroupResult is the output of a main-group dump.
type GroupResult struct {
	Subgroups []Subgroup `json:"subgroups"`
}

func (g GroupResult) MarshalJSON() ([]byte, error) {
	subs := make([]Subgroup, len(g.Subgroups))
	copy(subs, g.Subgroups)
	for i := range subs {
		if subs[i].Parts == nil {
			subs[i].Parts = []PartRow{}
		}
	}
	return json.Marshal(struct {
		Subgroups []Subgroup `json:"subgroups"`
	}{subs})
}

// SubgroupList is the output of a subgroup listing.
type SubgroupList struct {
	Subgroups []string `json:"subgroups"`
}

func (s SubgroupList) MarshalJSON() ([]byte, error) {
	subs := s.Subgroups
	if subs == nil {
		subs = []string{}
	}
	return json.Marshal(struct {
		Subgroups []string `json:"subgroups"`
	}{subs})
}

// ResultKind names the JSON shape an operation emits, so the empty value
// can be printed when the operation fails.
type ResultKind int

const (
	KindList ResultKind = iota
	KindObject
	KindScalar
	KindGroup
	KindSubgroups
)

// EmptyJSON returns the JSON printed in place of a result on failure.
func (k ResultKind) EmptyJSON() []byte {
	switch k {
	case KindObject:
		return []byte("{}")
	case KindScalar:
		return []byte("null")
	case KindGroup, KindSubgroups:
		return []byte(`{"subgroups":[]}`)
	default:
		return []byte("[]")
	}
}
