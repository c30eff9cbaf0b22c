package domain

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ValueKind tags the variant held by a Value
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
)

// String returns the kind name used in logs and issue messages
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a JSON-compatible tree: a scalar, an ordered sequence, or a
// mapping with unique string keys. The zero Value is null.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	seq  []Value
	m    map[string]Value
}

// NullValue returns the null value
func NullValue() Value { return Value{} }

// BoolValue wraps a bool
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue wraps an integer
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue wraps a float
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// SequenceValue builds a sequence from items. The slice is not copied.
func SequenceValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// MappingValue builds a mapping from m. The map is not copied.
func MappingValue(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{kind: KindMapping, m: m}
}

// NewMapping returns an empty mapping
func NewMapping() Value {
	return MappingValue(nil)
}

// Kind returns the variant tag
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsMapping reports whether v is a mapping
func (v Value) IsMapping() bool { return v.kind == KindMapping }

// IsSequence reports whether v is a sequence
func (v Value) IsSequence() bool { return v.kind == KindSequence }

// IsScalar reports whether v is neither a sequence nor a mapping. Null counts as a scalar.
func (v Value) IsScalar() bool {
	return v.kind != KindSequence && v.kind != KindMapping
}

// Bool returns the bool payload
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the integer payload
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float payload. Integers are widened.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Str returns the string payload
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Items returns the elements of a sequence, or nil. Callers must not modify the slice.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Fields returns the entries of a mapping, or nil. Callers must not modify the map.
func (v Value) Fields() map[string]Value {
	if v.kind != KindMapping {
		return nil
	}
	return v.m
}

// Len returns the number of elements in a sequence or entries in a mapping
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.m)
	}
	return 0
}

// Get looks up a key in a mapping
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	val, ok := v.m[key]
	return val, ok
}

// Lookup follows a path of keys through nested mappings
func (v Value) Lookup(path ...string) (Value, bool) {
	cur := v
	for _, key := range path {
		next, ok := cur.Get(key)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Set stores val under key. It panics if v is not a mapping.
func (v Value) Set(key string, val Value) {
	if v.kind != KindMapping {
		panic("domain: Set on " + v.kind.String() + " value")
	}
	v.m[key] = val
}

// Delete removes key from a mapping
func (v Value) Delete(key string) {
	if v.kind == KindMapping {
		delete(v.m, key)
	}
}

// Keys returns the mapping keys in sorted order
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	switch v.kind {
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			items[i] = item.Clone()
		}
		return Value{kind: KindSequence, seq: items}
	case KindMapping:
		m := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			m[k] = item.Clone()
		}
		return Value{kind: KindMapping, m: m}
	}
	return v
}

// Equal reports deep equality. Int and float compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		if (v.kind == KindInt && o.kind == KindFloat) || (v.kind == KindFloat && o.kind == KindInt) {
			a, _ := v.Float()
			b, _ := o.Float()
			return a == b
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// ToAny converts v into plain Go values (map[string]any, []any, scalars)
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.ToAny()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToAny()
		}
		return out
	}
	return nil
}

// number matches json.Number from either JSON package
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// FromAny normalizes a decoded JSON or YAML tree into a Value
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Value{}, nil
		}
		return *t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint:
		return fromUint(uint64(t)), nil
	case uint8:
		return IntValue(int64(t)), nil
	case uint16:
		return IntValue(int64(t)), nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint64:
		return fromUint(t), nil
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case time.Time:
		return StringValue(t.Format(time.RFC3339)), nil
	case number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return fromFloat(f)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return SequenceValue(items...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = v
		}
		return MappingValue(m), nil
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			key := fmt.Sprint(k)
			if _, dup := m[key]; dup {
				return Value{}, fmt.Errorf("duplicate key %q", key)
			}
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			m[key] = v
		}
		return MappingValue(m), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

// fromFloat rejects NaN and infinities, which JSON cannot represent
func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite number %v", ErrInvalidContextData, f)
	}
	return FloatValue(f), nil
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return FloatValue(float64(u))
	}
	return IntValue(int64(u))
}

// fromReflect handles typed slices and maps such as []string or map[string]string
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{}, nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return SequenceValue(items...), nil
	case reflect.Map:
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			v, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			m[key] = v
		}
		return MappingValue(m), nil
	case reflect.String:
		return StringValue(rv.String()), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %s", rv.Type())
}

// MarshalJSON encodes v with mapping keys in sorted order
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes any JSON document, keeping integers distinct from floats
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (v Value) MarshalYAML() (interface{}, error) {
	return v.ToAny(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders v as compact JSON
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(data)
}
