package vm

import (
	"math"
	"testing"

	"github.com/zurustar/hsvm/pkg/script"
)

func TestValueAccessors(t *testing.T) {
	tests := []struct {
		name  string
		v     Value
		b     bool
		s     int16
		i     int32
		f     float32
		shown string
	}{
		{"void", Void(), false, 0, 0, 0, "void"},
		{"true", FromBool(true), true, 1, 1, 1, "true"},
		{"negative short", FromShort(-3), true, -3, -3, -3, "-3:short"},
		{"wide int truncates to short", FromInt(70000), true, 4464, 70000, 70000, "70000:int"},
		{"float", FromFloat(2.5), true, 2, 2, 2.5, "2.5"},
		{"zero float is false", FromFloat(0), false, 0, 0, 0, "0"},
		{"string", FromString("hi"), true, 0, 0, 0, `"hi"`},
		{"nil reference", FromRef(script.Unit, nil), false, 0, 0, 0, "none:unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Bool(); got != tt.b {
				t.Errorf("Bool() = %v, want %v", got, tt.b)
			}
			if got := tt.v.Short(); got != tt.s {
				t.Errorf("Short() = %d, want %d", got, tt.s)
			}
			if got := tt.v.Int(); got != tt.i {
				t.Errorf("Int() = %d, want %d", got, tt.i)
			}
			if got := tt.v.Float(); got != tt.f {
				t.Errorf("Float() = %g, want %g", got, tt.f)
			}
			if got := tt.v.Format(); got != tt.shown {
				t.Errorf("Format() = %q, want %q", got, tt.shown)
			}
		})
	}
}

func TestFromRaw(t *testing.T) {
	if v := FromRaw(script.Short, 0xABCD1234); v.Short() != 0x1234 {
		t.Errorf("short payload should use the low half, got %d", v.Short())
	}
	if v := FromRaw(script.StringID, 0xFFFFFFFF); v.Int() != -1 {
		t.Errorf("int payload should use all bits, got %d", v.Int())
	}
	if v := FromRaw(script.Boolean, 2); v.Bool() {
		t.Error("bool payload should use the low bit")
	}
}

func TestCastTo(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		to   script.DataType
		ok   bool
		want float32
	}{
		{"short to float", FromShort(3), script.Float, true, 3},
		{"float to int truncates", FromFloat(-2.75), script.Int, true, -2},
		{"int to enumerated short", FromInt(2), script.Team, true, 2},
		{"bool to short", FromBool(true), script.Short, true, 1},
		{"number to bool", FromShort(4), script.Boolean, true, 1},
		{"anything to void", FromString("x"), script.Void, true, 0},
		{"string to float", FromString("1"), script.Float, false, 0},
		{"number to string", FromShort(1), script.String, false, 0},
		{"string to reference", FromString("x"), script.Unit, false, 0},
		{"reference to bool", FromRef(script.Unit, "u"), script.Boolean, false, 0},
		{"number to reference", FromShort(1), script.Unit, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := castTo(tt.v, tt.to)
			if !tt.ok {
				if !IsErrorType(err, ErrorNoCast) {
					t.Errorf("expected NO_CAST, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.to != script.Void && got.Type != tt.to {
				t.Errorf("Type = %s, want %s", got.Type, tt.to)
			}
			if got.Float() != tt.want {
				t.Errorf("Float() = %g, want %g", got.Float(), tt.want)
			}
		})
	}

	t.Run("reference kinds convert", func(t *testing.T) {
		got, err := castTo(FromRef(script.Unit, "marine"), script.Entity)
		if err != nil || got.Type != script.Entity || got.Ref() != "marine" {
			t.Errorf("unit to object: %s, %v", got.Format(), err)
		}
	})

	t.Run("object wraps into a list", func(t *testing.T) {
		got, err := castTo(FromRef(script.Vehicle, "hog"), script.List)
		list, ok := got.Ref().(ObjectList)
		if err != nil || !ok || len(list) != 1 || list[0] != "hog" {
			t.Errorf("vehicle to list: %s, %v", got.Format(), err)
		}
	})

	t.Run("list unwraps to its first object", func(t *testing.T) {
		got, err := castTo(FromRef(script.List, ObjectList{"a", "b"}), script.Unit)
		if err != nil || got.Ref() != "a" {
			t.Errorf("list to unit: %s, %v", got.Format(), err)
		}
		got, err = castTo(FromRef(script.List, ObjectList{}), script.Unit)
		if err != nil || got.Ref() != nil {
			t.Errorf("empty list to unit: %s, %v", got.Format(), err)
		}
	})
}

func TestEqualCompare(t *testing.T) {
	t.Run("integer kinds of the same type", func(t *testing.T) {
		eq, err := FromRaw(script.StringID, 9).Equal(FromRaw(script.StringID, 9))
		if err != nil || !eq {
			t.Errorf("expected equal string ids, got %v %v", eq, err)
		}
		if _, err := FromRaw(script.StringID, 9).Compare(FromRaw(script.StringID, 9)); !IsErrorType(err, ErrorNoComparison) {
			t.Errorf("string ids have no ordering, got %v", err)
		}
	})

	t.Run("different enumerated kinds", func(t *testing.T) {
		_, err := FromRaw(script.Team, 1).Equal(FromRaw(script.GameDifficulty, 1))
		if !IsErrorType(err, ErrorNoComparison) {
			t.Errorf("expected NO_COMPARISON, got %v", err)
		}
	})

	t.Run("references", func(t *testing.T) {
		_, err := FromRef(script.Unit, "a").Equal(FromRef(script.Unit, "a"))
		if !IsErrorType(err, ErrorNoComparison) {
			t.Errorf("expected NO_COMPARISON, got %v", err)
		}
	})

	t.Run("NaN is unordered", func(t *testing.T) {
		nan := FromFloat(float32(math.NaN()))
		c, err := nan.Compare(FromFloat(1))
		if err != nil || c != 0 {
			t.Errorf("Compare(NaN, 1) = %d, %v", c, err)
		}
	})
}

func TestDivision(t *testing.T) {
	if _, err := FromShort(1).Div(FromShort(0)); !IsErrorType(err, ErrorDivisionByZero) {
		t.Errorf("short: expected DIVISION_BY_ZERO, got %v", err)
	}
	v, err := FromFloat(1).Div(FromShort(0))
	if err != nil || !math.IsInf(float64(v.Float()), 1) {
		t.Errorf("float division by zero should be +Inf, got %s %v", v.Format(), err)
	}
}

func TestSlot(t *testing.T) {
	v := FromShort(1)
	if _, ok := v.Slot(); ok {
		t.Error("literal should not be aliased")
	}
	v = v.withSlot(Slot{Index: 3})
	if s, ok := v.Slot(); !ok || s.Index != 3 || s.Global {
		t.Errorf("unexpected slot %+v %v", s, ok)
	}
	sum, _ := v.Add(FromShort(1))
	if _, ok := sum.Slot(); ok {
		t.Error("computed values should not be aliased")
	}
}

func TestZeroValue(t *testing.T) {
	if v := zeroValue(script.Float); v.Type != script.Float || v.Float() != 0 {
		t.Errorf("float zero: %s", v.Format())
	}
	if v := zeroValue(script.Vehicle); v.Type != script.Vehicle || v.Ref() != nil {
		t.Errorf("vehicle zero: %s", v.Format())
	}
}
