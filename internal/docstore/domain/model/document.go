package model

import (
	"sort"
	"time"
)

// Fields is the generic document body: field name to value, where a value is a string,
// int64, float64, bool, nil, time.Time, nested Fields/map or []interface{} of those.
type Fields map[string]interface{}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// Keys returns the field names in lexical order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Fields:
		return t.Clone()
	case map[string]interface{}:
		return Fields(t).Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Snapshot is one document of a read or a listener delivery.
type Snapshot struct {
	ID     string
	Fields Fields
}

// ChangeType says what happened to a document.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change announces that a document of Collection changed. Listeners re-read on receipt.
type Change struct {
	Type       ChangeType `json:"type"`
	Collection string     `json:"collection"`
	DocumentID string     `json:"documentId"`
	At         time.Time  `json:"at"`
}

// Value is a tagged field value for typed partial updates. Build it with the constructors below.
type Value struct {
	v interface{}
}

func String(s string) Value       { return Value{v: s} }
func Int(i int64) Value           { return Value{v: i} }
func Float(f float64) Value       { return Value{v: f} }
func Bool(b bool) Value           { return Value{v: b} }
func Null() Value                 { return Value{v: nil} }
func Time(t time.Time) Value      { return Value{v: t.UTC()} }
func Map(fields Patch) Value      { return Value{v: fields.Fields()} }
func Array(values ...Value) Value { return Value{v: arrayOf(values)} }

func arrayOf(values []Value) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v.v
	}
	return out
}

// Interface returns the untyped value stored in v.
func (v Value) Interface() interface{} { return v.v }

// Patch is a set of field assignments for UpdateFields.
type Patch map[string]Value

// Set adds or replaces one assignment and returns the patch for chaining.
func (p Patch) Set(field string, v Value) Patch {
	p[field] = v
	return p
}

// Fields returns the untyped field map the backends store.
func (p Patch) Fields() Fields {
	out := make(Fields, len(p))
	for k, v := range p {
		out[k] = cloneValue(v.v)
	}
	return out
}
