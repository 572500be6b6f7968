package lib

import (
	"testing"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

func findBuiltin(t *testing.T, name string) *abi.Builtin {
	t.Helper()
	for _, b := range Bits.Functions {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("no lauf.bits.%s builtin", name)
	return nil
}

func TestBitsAndOrXor(t *testing.T) {
	cases := []struct {
		name     string
		l, r     uint64
		want     uint64
	}{
		{"and", 0b1100, 0b1010, 0b1000},
		{"or", 0b1100, 0b1010, 0b1110},
		{"xor", 0b1100, 0b1010, 0b0110},
	}
	for _, tc := range cases {
		b := findBuiltin(t, tc.name)
		out, err := b.Fn(nil, []asm.Value{asm.NewUint(tc.l), asm.NewUint(tc.r)})
		if err != nil {
			t.Fatalf("lauf.bits.%s: %v", tc.name, err)
		}
		if got := out[0].AsUint(); got != tc.want {
			t.Errorf("lauf.bits.%s(%b, %b) = %b, want %b", tc.name, tc.l, tc.r, got, tc.want)
		}
	}
}

func TestBitsNot(t *testing.T) {
	b := findBuiltin(t, "not")
	out, err := b.Fn(nil, []asm.Value{asm.NewUint(0)})
	if err != nil {
		t.Fatalf("lauf.bits.not: %v", err)
	}
	if got := out[0].AsUint(); got != ^uint64(0) {
		t.Errorf("lauf.bits.not(0) = %x, want all-ones", got)
	}
}

func TestBitsShiftInRange(t *testing.T) {
	shl := findBuiltin(t, "shl")
	out, err := shl.Fn(nil, []asm.Value{asm.NewUint(1), asm.NewUint(4)})
	if err != nil {
		t.Fatalf("lauf.bits.shl: %v", err)
	}
	if got := out[0].AsUint(); got != 16 {
		t.Errorf("lauf.bits.shl(1, 4) = %d, want 16", got)
	}
}

func TestBitsShiftOutOfRangePanics(t *testing.T) {
	shl := findBuiltin(t, "shl")
	if _, err := shl.Fn(nil, []asm.Value{asm.NewUint(1), asm.NewUint(64)}); err == nil {
		t.Error("lauf.bits.shl(1, 64) = nil error, want an out-of-range error")
	}

	shr := findBuiltin(t, "shr")
	if _, err := shr.Fn(nil, []asm.Value{asm.NewUint(1), asm.NewUint(100)}); err == nil {
		t.Error("lauf.bits.shr(1, 100) = nil error, want an out-of-range error")
	}
}
