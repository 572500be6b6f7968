package lib

import (
	"math"
	"testing"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

func findIntBuiltin(t *testing.T, name string) *abi.Builtin {
	t.Helper()
	for _, b := range Int.Functions {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("no lauf.int.%s builtin", name)
	return nil
}

func TestIntSignedAddWrapAndPanic(t *testing.T) {
	add := findIntBuiltin(t, "sadd_panic")
	out, err := add.Fn(nil, []asm.Value{asm.NewInt(2), asm.NewInt(3)})
	if err != nil {
		t.Fatalf("lauf.int.sadd_panic(2, 3) = %v", err)
	}
	if got := out[0].AsInt(); got != 5 {
		t.Errorf("lauf.int.sadd_panic(2, 3) = %d, want 5", got)
	}

	if _, err := add.Fn(nil, []asm.Value{asm.NewInt(math.MaxInt64), asm.NewInt(1)}); err == nil {
		t.Error("lauf.int.sadd_panic(MaxInt64, 1) = nil error, want an overflow error")
	}

	wrap := findIntBuiltin(t, "sadd_wrap")
	out, err = wrap.Fn(nil, []asm.Value{asm.NewInt(math.MaxInt64), asm.NewInt(1)})
	if err != nil {
		t.Fatalf("lauf.int.sadd_wrap(MaxInt64, 1) = %v", err)
	}
	if got := out[0].AsInt(); got != math.MinInt64 {
		t.Errorf("lauf.int.sadd_wrap(MaxInt64, 1) = %d, want MinInt64 (wraps)", got)
	}
}

func TestIntUnsignedArithmetic(t *testing.T) {
	cases := []struct {
		name string
		l, r uint64
		want uint64
	}{
		{"uadd_wrap", 2, 3, 5},
		{"usub_wrap", 10, 4, 6},
		{"umul_wrap", 6, 7, 42},
	}
	for _, tc := range cases {
		b := findIntBuiltin(t, tc.name)
		out, err := b.Fn(nil, []asm.Value{asm.NewUint(tc.l), asm.NewUint(tc.r)})
		if err != nil {
			t.Fatalf("lauf.int.%s: %v", tc.name, err)
		}
		if got := out[0].AsUint(); got != tc.want {
			t.Errorf("lauf.int.%s(%d, %d) = %d, want %d", tc.name, tc.l, tc.r, got, tc.want)
		}
	}
}

func TestIntUnsignedAddPanicsOnOverflow(t *testing.T) {
	add := findIntBuiltin(t, "uadd_panic")
	if _, err := add.Fn(nil, []asm.Value{asm.NewUint(math.MaxUint64), asm.NewUint(1)}); err == nil {
		t.Error("lauf.int.uadd_panic(MaxUint64, 1) = nil error, want an overflow error")
	}
}

func TestIntDivisionByZeroPanics(t *testing.T) {
	sdiv := findIntBuiltin(t, "sdiv_panic")
	if _, err := sdiv.Fn(nil, []asm.Value{asm.NewInt(1), asm.NewInt(0)}); err == nil {
		t.Error("lauf.int.sdiv_panic(1, 0) = nil error, want division by zero")
	}

	udiv := findIntBuiltin(t, "udiv")
	if _, err := udiv.Fn(nil, []asm.Value{asm.NewUint(1), asm.NewUint(0)}); err == nil {
		t.Error("lauf.int.udiv(1, 0) = nil error, want division by zero")
	}
}

func TestIntSignedDivisionOverflowPanics(t *testing.T) {
	sdiv := findIntBuiltin(t, "sdiv_panic")
	if _, err := sdiv.Fn(nil, []asm.Value{asm.NewInt(math.MinInt64), asm.NewInt(-1)}); err == nil {
		t.Error("lauf.int.sdiv_panic(MinInt64, -1) = nil error, want an overflow error")
	}
}

func TestIntRemainder(t *testing.T) {
	srem := findIntBuiltin(t, "srem_panic")
	out, err := srem.Fn(nil, []asm.Value{asm.NewInt(7), asm.NewInt(3)})
	if err != nil {
		t.Fatalf("lauf.int.srem_panic(7, 3) = %v", err)
	}
	if got := out[0].AsInt(); got != 1 {
		t.Errorf("lauf.int.srem_panic(7, 3) = %d, want 1", got)
	}

	urem := findIntBuiltin(t, "urem")
	out, err = urem.Fn(nil, []asm.Value{asm.NewUint(7), asm.NewUint(3)})
	if err != nil {
		t.Fatalf("lauf.int.urem(7, 3) = %v", err)
	}
	if got := out[0].AsUint(); got != 1 {
		t.Errorf("lauf.int.urem(7, 3) = %d, want 1", got)
	}
}

func TestIntCompare(t *testing.T) {
	scmp := findIntBuiltin(t, "scmp")
	out, err := scmp.Fn(nil, []asm.Value{asm.NewInt(3), asm.NewInt(5)})
	if err != nil {
		t.Fatalf("lauf.int.scmp(3, 5) = %v", err)
	}
	if got := out[0].AsInt(); got != -1 {
		t.Errorf("lauf.int.scmp(3, 5) = %d, want -1", got)
	}

	ucmp := findIntBuiltin(t, "ucmp")
	out, err = ucmp.Fn(nil, []asm.Value{asm.NewUint(5), asm.NewUint(5)})
	if err != nil {
		t.Fatalf("lauf.int.ucmp(5, 5) = %v", err)
	}
	if got := out[0].AsUint(); got != 0 {
		t.Errorf("lauf.int.ucmp(5, 5) = %d, want 0", got)
	}
}
