// Package lib implements lauf's builtin libraries: small, signature-typed
// functions a program reaches with call_builtin instead of a dedicated
// opcode (spec.md §4.5 "Builtin libraries", grounded on src/lauf/lib/*.cpp).
package lib

import (
	"fmt"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

const bitWidth = 64

// noPanicFlags marks a builtin that never panics, needs no live process,
// and carries FlagConstantFold. Nothing folds it at build time; it runs
// when the call_builtin executes.
var noPanicFlags = abi.FlagNoPanic | abi.FlagNoProcess | abi.FlagConstantFold

// panicFlags marks a builtin that also carries FlagConstantFold but may
// reject its operands (shift amounts out of range).
var panicFlags = abi.FlagNoProcess | abi.FlagConstantFold

func binaryUint(name string, flags abi.Flags, f func(lhs, rhs uint64) (uint64, error)) *abi.Builtin {
	return &abi.Builtin{
		Name: name, Sig: asm.Signature{In: 2, Out: 1}, Flags: flags,
		Fn: func(_ abi.Host, args []asm.Value) ([]asm.Value, error) {
			result, err := f(args[0].AsUint(), args[1].AsUint())
			if err != nil {
				return nil, err
			}
			return []asm.Value{asm.NewUint(result)}, nil
		},
	}
}

// Bits is the lauf.bits library: bitwise and shift operations, grounded on
// src/lauf/lib/bits.cpp.
var Bits = abi.Library{
	Prefix: "lauf.bits",
	Functions: []*abi.Builtin{
		binaryUint("and", noPanicFlags, func(l, r uint64) (uint64, error) { return l & r, nil }),
		binaryUint("or", noPanicFlags, func(l, r uint64) (uint64, error) { return l | r, nil }),
		binaryUint("xor", noPanicFlags, func(l, r uint64) (uint64, error) { return l ^ r, nil }),
		binaryUint("shl", panicFlags, func(x, n uint64) (uint64, error) {
			if n >= bitWidth {
				return 0, fmt.Errorf("shift amount too big")
			}
			return x << n, nil
		}),
		binaryUint("shr", panicFlags, func(x, n uint64) (uint64, error) {
			if n >= bitWidth {
				return 0, fmt.Errorf("shift amount too big")
			}
			return x >> n, nil
		}),
		{
			Name: "not", Sig: asm.Signature{In: 1, Out: 1}, Flags: noPanicFlags,
			Fn: func(_ abi.Host, args []asm.Value) ([]asm.Value, error) {
				return []asm.Value{asm.NewUint(^args[0].AsUint())}, nil
			},
		},
	},
}
