package lib

import (
	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// stepLimiter is implemented by *runtime.Process; kept as a local
// interface so this package never imports internal/runtime.
type stepLimiter interface {
	SetStepLimit(limit uint64) bool
}

// Limits is the lauf.limits library: cooperative step-budget controls a
// running program can tighten or consume from the inside, grounded on
// src/lauf/lib/limits.cpp.
var Limits = abi.Library{
	Prefix: "lauf.limits",
	Functions: []*abi.Builtin{
		{
			Name: "step", Sig: asm.Signature{In: 0, Out: 0}, Flags: abi.FlagVMDirective,
			Fn: func(host abi.Host, _ []asm.Value) ([]asm.Value, error) {
				stepper, ok := host.(interface{ ConsumeStep() bool })
				if ok && !stepper.ConsumeStep() {
					return nil, host.Panic("step limit exceeded")
				}
				return nil, nil
			},
		},
		{
			Name: "set_step_limit", Sig: asm.Signature{In: 1, Out: 0}, Flags: abi.FlagVMDirective,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				newLimit := args[0].AsUint()
				if newLimit == 0 {
					return nil, host.Panic("cannot remove step limit")
				}
				limiter, ok := host.(stepLimiter)
				if !ok || !limiter.SetStepLimit(newLimit) {
					return nil, host.Panic("cannot increase step limit")
				}
				return nil, nil
			},
		},
	},
}
