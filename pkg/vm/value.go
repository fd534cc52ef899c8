package vm

import (
	"fmt"
	"math"

	"github.com/zurustar/hsvm/pkg/script"
)

// Slot identifies the storage a value was read from, so that set can write
// back through it. Global slots address engine globals.
type Slot struct {
	Index  uint16
	Global bool
}

// MethodRef is the payload of script and ai-script references.
type MethodRef uint16

// ObjectList is the payload of list values.
type ObjectList []any

// Value is the tagged union the interpreter passes between frames.
// Primitive kinds live in bits, reference kinds in ref. The kind tag decides
// which half is meaningful, see script.DataType.Storage.
type Value struct {
	Type script.DataType

	bits uint32
	ref  any

	slot    Slot
	aliased bool
}

// Void returns the value of a void-kind expression.
func Void() Value {
	return Value{Type: script.Void}
}

// FromBool creates a boolean value.
func FromBool(b bool) Value {
	v := Value{Type: script.Boolean}
	if b {
		v.bits = 1
	}
	return v
}

// FromShort creates a 16-bit integer value.
func FromShort(s int16) Value {
	return Value{Type: script.Short, bits: uint32(uint16(s))}
}

// FromInt creates a 32-bit integer value.
func FromInt(i int32) Value {
	return Value{Type: script.Int, bits: uint32(i)}
}

// FromFloat creates a 32-bit float value.
func FromFloat(f float32) Value {
	return Value{Type: script.Float, bits: math.Float32bits(f)}
}

// FromString creates a string value.
func FromString(s string) Value {
	return Value{Type: script.String, ref: s}
}

// FromRef creates a reference value of kind t. A nil ref is the nil reference.
func FromRef(t script.DataType, ref any) Value {
	return Value{Type: t, ref: ref}
}

// FromRaw creates a value of a primitive-stored kind t from a node payload.
func FromRaw(t script.DataType, data uint32) Value {
	switch t.Storage() {
	case script.StorageBool:
		return Value{Type: t, bits: data & 1}
	case script.StorageShort:
		return Value{Type: t, bits: data & 0xFFFF}
	default:
		return Value{Type: t, bits: data}
	}
}

// As returns a copy of v with its kind tag replaced.
func (v Value) As(t script.DataType) Value {
	v.Type = t
	return v
}

// Bool returns the value as a boolean. Numbers are true when non-zero and
// references when non-nil.
func (v Value) Bool() bool {
	switch v.Type.Storage() {
	case script.StorageFloat:
		return v.Float() != 0
	case script.StorageRef:
		return v.ref != nil
	default:
		return v.bits != 0
	}
}

// Short returns the value as a 16-bit integer, truncating wider kinds.
func (v Value) Short() int16 {
	switch v.Type.Storage() {
	case script.StorageShort:
		return int16(uint16(v.bits))
	case script.StorageInt:
		return int16(int32(v.bits))
	case script.StorageFloat:
		return int16(v.Float())
	case script.StorageBool:
		return int16(v.bits & 1)
	default:
		return 0
	}
}

// Int returns the value as a 32-bit integer.
func (v Value) Int() int32 {
	switch v.Type.Storage() {
	case script.StorageShort:
		return int32(int16(uint16(v.bits)))
	case script.StorageInt:
		return int32(v.bits)
	case script.StorageFloat:
		return int32(v.Float())
	case script.StorageBool:
		return int32(v.bits & 1)
	default:
		return 0
	}
}

// Float returns the value as a 32-bit float.
func (v Value) Float() float32 {
	switch v.Type.Storage() {
	case script.StorageFloat:
		return math.Float32frombits(v.bits)
	case script.StorageShort:
		return float32(int16(uint16(v.bits)))
	case script.StorageInt:
		return float32(int32(v.bits))
	case script.StorageBool:
		return float32(v.bits & 1)
	default:
		return 0
	}
}

// Ref returns the reference payload, or nil for primitive kinds.
func (v Value) Ref() any {
	return v.ref
}

// String returns the string payload, or "" for other kinds.
func (v Value) String() string {
	s, _ := v.ref.(string)
	return s
}

// Slot returns the variable the value was read from, if any.
func (v Value) Slot() (Slot, bool) {
	return v.slot, v.aliased
}

// withSlot returns a copy of v aliased to s.
func (v Value) withSlot(s Slot) Value {
	v.slot = s
	v.aliased = true
	return v
}

// Format renders the value for logs and the debugger.
func (v Value) Format() string {
	switch v.Type.Storage() {
	case script.StorageVoid:
		return "void"
	case script.StorageBool:
		return fmt.Sprintf("%t", v.Bool())
	case script.StorageShort, script.StorageInt:
		return fmt.Sprintf("%d:%s", v.Int(), v.Type)
	case script.StorageFloat:
		return fmt.Sprintf("%g", v.Float())
	default:
		if s, ok := v.ref.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		if v.ref == nil {
			return fmt.Sprintf("none:%s", v.Type)
		}
		return fmt.Sprintf("%v:%s", v.ref, v.Type)
	}
}

// Equal reports whether v and o are equal. Numeric kinds compare in the
// representation of v; other kinds must match exactly.
func (v Value) Equal(o Value) (bool, error) {
	switch {
	case v.Type == script.Boolean && o.Type == script.Boolean:
		return v.bits == o.bits, nil
	case v.Type.IsNumeric() && o.Type.IsNumeric():
		c, err := v.Compare(o)
		return c == 0, err
	case v.Type == o.Type && v.Type.Storage() == script.StorageShort,
		v.Type == o.Type && v.Type.Storage() == script.StorageInt:
		return v.bits == o.bits, nil
	default:
		return false, NewNoComparisonError(v.Type, o.Type)
	}
}

// Compare orders v against o, returning -1, 0 or 1.
// Booleans and references have no ordering.
func (v Value) Compare(o Value) (int, error) {
	numeric := v.Type.IsNumeric() && o.Type.IsNumeric()
	enumerated := v.Type == o.Type && v.Type.Storage() == script.StorageShort
	if !numeric && !enumerated {
		return 0, NewNoComparisonError(v.Type, o.Type)
	}

	switch v.Type.Storage() {
	case script.StorageFloat:
		return order(v.Float(), o.Float()), nil
	case script.StorageInt:
		return order(v.Int(), o.Int()), nil
	default:
		return order(v.Short(), o.Short()), nil
	}
}

func order[T int16 | int32 | float32](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// arith folds one arithmetic step in the representation of v.
func (v Value) arith(o Value, f32 func(a, b float32) float32, i32 func(a, b int32) (int32, error)) (Value, error) {
	if !o.Type.IsNumeric() {
		return Value{}, newRuntimeErrorf(ErrorInvalidOperation, "operand of kind %s is not numeric", o.Type)
	}
	switch v.Type.Storage() {
	case script.StorageFloat:
		return FromFloat(f32(v.Float(), o.Float())).As(v.Type), nil
	case script.StorageInt:
		r, err := i32(v.Int(), o.Int())
		if err != nil {
			return Value{}, err
		}
		return FromInt(r).As(v.Type), nil
	case script.StorageShort:
		r, err := i32(int32(v.Short()), int32(o.Short()))
		if err != nil {
			return Value{}, err
		}
		return FromShort(int16(r)).As(v.Type), nil
	default:
		return Value{}, newRuntimeErrorf(ErrorInvalidOperation, "operand of kind %s is not numeric", v.Type)
	}
}

// Add returns v + o in the representation of v.
func (v Value) Add(o Value) (Value, error) {
	return v.arith(o,
		func(a, b float32) float32 { return a + b },
		func(a, b int32) (int32, error) { return a + b, nil })
}

// Sub returns v - o in the representation of v.
func (v Value) Sub(o Value) (Value, error) {
	return v.arith(o,
		func(a, b float32) float32 { return a - b },
		func(a, b int32) (int32, error) { return a - b, nil })
}

// Mul returns v * o in the representation of v.
func (v Value) Mul(o Value) (Value, error) {
	return v.arith(o,
		func(a, b float32) float32 { return a * b },
		func(a, b int32) (int32, error) { return a * b, nil })
}

// Div returns v / o in the representation of v. Integer division by zero is
// an error; float division follows IEEE 754.
func (v Value) Div(o Value) (Value, error) {
	return v.arith(o,
		func(a, b float32) float32 { return a / b },
		func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, NewDivisionByZeroError()
			}
			return a / b, nil
		})
}

// Min returns the smaller of v and o in the representation of v.
func (v Value) Min(o Value) (Value, error) {
	return v.arith(o,
		func(a, b float32) float32 { return min(a, b) },
		func(a, b int32) (int32, error) { return min(a, b), nil })
}

// Max returns the larger of v and o in the representation of v.
func (v Value) Max(o Value) (Value, error) {
	return v.arith(o,
		func(a, b float32) float32 { return max(a, b) },
		func(a, b int32) (int32, error) { return max(a, b), nil })
}

// castTo converts v for delivery into a slot of kind t.
func castTo(v Value, t script.DataType) (Value, error) {
	if v.Type == t {
		return v, nil
	}
	from := v.Type.Storage()
	switch t.Storage() {
	case script.StorageVoid:
		return Void(), nil
	case script.StorageBool:
		if from == script.StorageRef {
			break
		}
		return FromBool(v.Bool()), nil
	case script.StorageFloat:
		if from == script.StorageRef {
			break
		}
		return FromFloat(v.Float()).As(t), nil
	case script.StorageInt:
		if from == script.StorageRef {
			break
		}
		return FromInt(v.Int()).As(t), nil
	case script.StorageShort:
		if from == script.StorageRef {
			break
		}
		return FromShort(v.Short()).As(t), nil
	case script.StorageRef:
		if from != script.StorageRef || v.Type == script.String || t == script.String {
			break
		}
		switch {
		case t == script.List:
			return FromRef(t, ObjectList{v.ref}), nil
		case v.Type == script.List:
			list, _ := v.ref.(ObjectList)
			if len(list) == 0 {
				return FromRef(t, nil), nil
			}
			return FromRef(t, list[0]), nil
		default:
			return v.As(t), nil
		}
	}
	return Value{}, NewNoCastError(v.Type, t)
}

// zeroValue returns the default value of kind t.
func zeroValue(t script.DataType) Value {
	if t.Storage() == script.StorageRef {
		return FromRef(t, nil)
	}
	return Value{Type: t}
}
