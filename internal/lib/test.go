package lib

import (
	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// Test is the lauf.test library: lightweight in-process assertions meant
// for the teacher's own unit tests over sample modules, grounded on
// src/lauf/lib/test.cpp.
var Test = abi.Library{
	Prefix: "lauf.test",
	Functions: []*abi.Builtin{
		{
			Name: "unreachable", Sig: asm.Signature{In: 0, Out: 0}, Flags: abi.FlagAlwaysPanic,
			Fn: func(host abi.Host, _ []asm.Value) ([]asm.Value, error) {
				return nil, host.Panic("unreachable code reached")
			},
		},
		{
			Name: "assert", Sig: asm.Signature{In: 1, Out: 0}, Flags: abi.FlagDefault,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				if args[0].AsUint() == 0 {
					return nil, nil
				}
				return nil, host.Panic("assert failed")
			},
		},
		{
			Name: "assert_eq", Sig: asm.Signature{In: 2, Out: 0}, Flags: abi.FlagDefault,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				if args[0].AsUint() == args[1].AsUint() {
					return nil, nil
				}
				return nil, host.Panic("assert_eq failed")
			},
		},
		// assert_panic calls a function in isolation and checks it panics
		// with the expected message; it reaches the runtime's own call
		// dispatch through the CallIsolated type assertion below rather
		// than driving it directly, so this package never imports
		// internal/runtime (FlagVMDirective marks it as requiring the
		// VM's call machinery, not a constant folder).
		{
			Name: "assert_panic", Sig: asm.Signature{In: 2, Out: 0}, Flags: abi.FlagVMDirective,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				caller, ok := host.(interface {
					CallIsolated(fn asm.FuncAddr) (string, bool, error)
				})
				if !ok {
					return nil, host.Panic("assert_panic requires a VM process")
				}
				fn := args[1].AsFuncAddr()
				msg, paniced, err := caller.CallIsolated(fn)
				if err != nil {
					return nil, err
				}
				if !paniced {
					return nil, host.Panic("assert_panic failed: no panic")
				}
				expected := messageFromAddrValue(host, args[0])
				if expected != "" && expected != msg {
					return nil, host.Panic("assert_panic failed: different message")
				}
				return nil, nil
			},
		},
	},
}

// maxMessageLen bounds how far messageFromAddrValue probes past an
// address looking for a NUL terminator; abi.Host's CheckedOffset needs an
// explicit size rather than exposing an allocation's raw length, so this
// reads the largest valid window up to the bound and scans it.
const maxMessageLen = 4096

func messageFromAddrValue(host abi.Host, v asm.Value) string {
	addr := v.AsAddr()
	if addr.IsNull() {
		return ""
	}
	var data []byte
	for size := maxMessageLen; size > 0 && data == nil; size /= 2 {
		data = host.CheckedOffset(addr, size, 0)
	}
	if data == nil {
		return ""
	}
	end := 0
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[:end])
}
