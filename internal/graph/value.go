package graph

// Kind identifies which alternative of the Value variant is populated.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindObject
	KindHandle
)

// Value is the tagged union stored at a node. Exactly the field matching
// Kind is meaningful; the rest are zero.
type Value struct {
	Kind    Kind
	Bool    bool
	Int     int64
	Float   float64
	Str     string
	Bytes   []byte
	Array   []Value
	Object  map[string]Value
	Handle  any // opaque, non-serialisable; dropped on persistence
}

func None() Value                { return Value{Kind: KindNone} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value       { return Value{Kind: KindBytes, Bytes: b} }
func Array(v []Value) Value      { return Value{Kind: KindArray, Array: v} }
func Object(m map[string]Value) Value { return Value{Kind: KindObject, Object: m} }
func Handle(h any) Value         { return Value{Kind: KindHandle, Handle: h} }

// IsNone reports whether v is the None value, including the zero Value.
func (v Value) IsNone() bool { return v.Kind == KindNone }

// Equal reports structural equality, used by kernel.Set to decide whether a
// write setting the same value is a no-op.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		return string(v.Bytes) == string(o.Bytes)
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Object) != len(o.Object) {
			return false
		}
		for k, vv := range v.Object {
			ov, ok := o.Object[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	case KindHandle:
		// Handles never compare equal, not even to themselves, matching
		// their non-serialisable, opaque nature.
		return false
	default:
		return false
	}
}

// DropHandle returns v with any Handle (recursively, through arrays and
// objects) replaced by None, since handles are opaque in-process
// references and cannot be serialized.
func (v Value) DropHandle() Value {
	switch v.Kind {
	case KindHandle:
		return None()
	case KindArray:
		out := make([]Value, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.DropHandle()
		}
		return Array(out)
	case KindObject:
		out := make(map[string]Value, len(v.Object))
		for k, e := range v.Object {
			out[k] = e.DropHandle()
		}
		return Object(out)
	default:
		return v
	}
}

// Compound reports whether v is an array or object, which kernel.Set
// splits into child nodes rather than storing as an opaque blob.
func (v Value) Compound() bool {
	return v.Kind == KindArray || v.Kind == KindObject
}

// ToAny converts a Value into a plain Go value suitable for JSON Schema
// validation or generic marshalling. Handles become nil.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNone:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindBytes:
		return v.Bytes
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for k, e := range v.Object {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// FromAny builds a Value from the result of a JSON unmarshal (map[string]any,
// []any, string, bool, float64, nil) or from common Go scalars.
func FromAny(a any) Value {
	switch t := a.(type) {
	case nil:
		return None()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case []byte:
		return Bytes(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return Array(out)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromAny(e)
		}
		return Object(out)
	default:
		return None()
	}
}
