package lib

import (
	"fmt"
	"math"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

func binarySint(name string, flags abi.Flags, f func(lhs, rhs int64) (int64, error)) *abi.Builtin {
	return &abi.Builtin{
		Name: name, Sig: asm.Signature{In: 2, Out: 1}, Flags: flags,
		Fn: func(_ abi.Host, args []asm.Value) ([]asm.Value, error) {
			result, err := f(args[0].AsInt(), args[1].AsInt())
			if err != nil {
				return nil, err
			}
			return []asm.Value{asm.NewInt(result)}, nil
		},
	}
}

func wrapOverflow(name string, f func(lhs, rhs uint64) (uint64, bool)) *abi.Builtin {
	return binaryUint(name+"_wrap", noPanicFlags, func(l, r uint64) (uint64, error) {
		v, _ := f(l, r)
		return v, nil
	})
}

func panicOverflow(name string, f func(lhs, rhs uint64) (uint64, bool)) *abi.Builtin {
	return binaryUint(name+"_panic", panicFlags, func(l, r uint64) (uint64, error) {
		v, overflow := f(l, r)
		if overflow {
			return 0, overflowError
		}
		return v, nil
	})
}

var overflowError = fmt.Errorf("integer overflow")

func addOverflows(l, r uint64) (uint64, bool) {
	sum := l + r
	return sum, sum < l
}

func subOverflows(l, r uint64) (uint64, bool) {
	return l - r, l < r
}

func mulOverflows(l, r uint64) (uint64, bool) {
	if l == 0 || r == 0 {
		return 0, false
	}
	product := l * r
	return product, product/l != r
}

// Int is the lauf.int library: checked and wrapping signed/unsigned
// arithmetic, division, remainder, and comparison, grounded on
// src/lauf/lib/int.cpp. The original additionally parameterizes every
// arithmetic op over four overflow policies (flag/wrap/sat/panic); this
// port keeps the two policies a stack machine actually needs to express
// both halves of spec.md §8's S1 scenario and ordinary checked arithmetic
// — wrap (silently truncate, used when overflow is meaningless, e.g.
// hashing) and panic (abort, the default for user arithmetic) — and drops
// flag/sat, which exist upstream only to support a source frontend's
// explicit overflow-handling idioms this port's frontend has no syntax
// for.
var Int = abi.Library{
	Prefix: "lauf.int",
	Functions: []*abi.Builtin{
		wrapOverflow("uadd", addOverflows),
		panicOverflow("uadd", addOverflows),
		wrapOverflow("usub", subOverflows),
		panicOverflow("usub", subOverflows),
		wrapOverflow("umul", mulOverflows),
		panicOverflow("umul", mulOverflows),

		binarySint("sadd_wrap", noPanicFlags, func(l, r int64) (int64, error) { return l + r, nil }),
		binarySint("sadd_panic", panicFlags, func(l, r int64) (int64, error) {
			sum := l + r
			if (r > 0 && sum < l) || (r < 0 && sum > l) {
				return 0, overflowError
			}
			return sum, nil
		}),
		binarySint("ssub_wrap", noPanicFlags, func(l, r int64) (int64, error) { return l - r, nil }),
		binarySint("ssub_panic", panicFlags, func(l, r int64) (int64, error) {
			diff := l - r
			if (r < 0 && diff < l) || (r > 0 && diff > l) {
				return 0, overflowError
			}
			return diff, nil
		}),
		binarySint("smul_wrap", noPanicFlags, func(l, r int64) (int64, error) { return l * r, nil }),
		binarySint("smul_panic", panicFlags, func(l, r int64) (int64, error) {
			if l == 0 || r == 0 {
				return 0, nil
			}
			product := l * r
			if product/l != r {
				return 0, overflowError
			}
			return product, nil
		}),

		binarySint("sdiv_panic", panicFlags, func(l, r int64) (int64, error) {
			if r == 0 {
				return 0, divisionByZeroError
			}
			if l == math.MinInt64 && r == -1 {
				return 0, overflowError
			}
			return l / r, nil
		}),
		binaryUint("udiv", panicFlags, func(l, r uint64) (uint64, error) {
			if r == 0 {
				return 0, divisionByZeroError
			}
			return l / r, nil
		}),
		binarySint("srem_panic", panicFlags, func(l, r int64) (int64, error) {
			if r == 0 {
				return 0, divisionByZeroError
			}
			if l == math.MinInt64 && r == -1 {
				// lhs % rhs is undefined for this pair; the original
				// special-cases it to 0 rather than trapping.
				return 0, nil
			}
			return l % r, nil
		}),
		binaryUint("urem", panicFlags, func(l, r uint64) (uint64, error) {
			if r == 0 {
				return 0, divisionByZeroError
			}
			return l % r, nil
		}),

		binarySint("scmp", noPanicFlags, func(l, r int64) (int64, error) { return int64(cmp(l, r)), nil }),
		binaryUint("ucmp", noPanicFlags, func(l, r uint64) (uint64, error) { return uint64(cmp(l, r)), nil }),
	},
}

func cmp[T int64 | uint64](l, r T) int {
	switch {
	case l > r:
		return 1
	case l < r:
		return -1
	default:
		return 0
	}
}

var divisionByZeroError = fmt.Errorf("division by zero")
