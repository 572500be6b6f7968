package lib

import (
	"fmt"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// Heap is the lauf.heap library: explicit dynamic allocation handed out
// through a Process's allocation table, grounded on src/lauf/lib/heap.cpp.
// It provides alloc, alloc_array, free and leak; it has no gc builtin.
var Heap = abi.Library{
	Prefix: "lauf.heap",
	Functions: []*abi.Builtin{
		{
			Name: "alloc", Sig: asm.Signature{In: 1, Out: 1}, Flags: abi.FlagNoPanic,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				size := int(args[0].AsUint())
				return []asm.Value{asm.NewAddrValue(host.Alloc(size))}, nil
			},
		},
		{
			// alloc_array takes an element count and an element size and
			// panics on overflow rather than truncating it silently.
			Name: "alloc_array", Sig: asm.Signature{In: 2, Out: 1}, Flags: abi.FlagDefault,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				count, elemSize := args[0].AsUint(), args[1].AsUint()
				if elemSize != 0 && count > (1<<63)/elemSize {
					return nil, host.Panic("alloc_array size overflow")
				}
				return []asm.Value{asm.NewAddrValue(host.Alloc(int(count * elemSize)))}, nil
			},
		},
		{
			// free and leak only make sense against a live Process, so
			// they carry FlagVMDirective like the original's VM_ONLY
			// builtins; a constant-folding backend must reject them.
			Name: "free", Sig: asm.Signature{In: 1, Out: 0}, Flags: abi.FlagVMDirective,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				freer, ok := host.(interface{ FreeHeapAlloc(asm.Addr) error })
				if !ok {
					return nil, fmt.Errorf("lauf.heap.free requires a VM process")
				}
				if err := freer.FreeHeapAlloc(args[0].AsAddr()); err != nil {
					return nil, host.Panic(err.Error())
				}
				return nil, nil
			},
		},
		{
			Name: "leak", Sig: asm.Signature{In: 1, Out: 0}, Flags: abi.FlagVMDirective,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				declarer, ok := host.(interface{ DeclareReachable(asm.Addr) bool })
				if ok {
					declarer.DeclareReachable(args[0].AsAddr())
				}
				return nil, nil
			},
		},
	},
}
