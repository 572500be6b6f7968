package lib

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lauf-vm/lauf/internal/abi"
	"github.com/lauf-vm/lauf/internal/asm"
)

// debugLogger is overridden by the embedding process; defaults to a no-op
// so a program that never touches lauf.debug never pays for logging.
var debugLogger = zap.NewNop()

// SetDebugLogger points the lauf.debug library's output at l, in place of
// the original's direct stderr writes (src/lauf/lib/debug.cpp).
func SetDebugLogger(l *zap.Logger) { debugLogger = l }

func formatValue(host abi.Host, v asm.Value) string {
	s := fmt.Sprintf("0x%016x (uint=%d, sint=%d)", v.AsUint(), v.AsUint(), v.AsInt())
	if data := host.CheckedOffset(v.AsAddr(), 1, 0); data != nil {
		s += fmt.Sprintf(" address=%s", v.AsAddr())
	}
	return s
}

// Debug is the lauf.debug library: developer-facing introspection
// builtins, grounded on src/lauf/lib/debug.cpp.
var Debug = abi.Library{
	Prefix: "lauf.debug",
	Functions: []*abi.Builtin{
		{
			Name: "print", Sig: asm.Signature{In: 1, Out: 1}, Flags: abi.FlagNoPanic,
			Fn: func(host abi.Host, args []asm.Value) ([]asm.Value, error) {
				debugLogger.Info("debug print", zap.String("value", formatValue(host, args[0])))
				return []asm.Value{args[0]}, nil
			},
		},
		{
			// print_vstack needs the live Vstack, which abi.Host doesn't
			// expose generically; it's VM-only, matching the original's
			// VM_ONLY flag for the same reason (it walks raw stack
			// memory below the process struct).
			Name: "print_vstack", Sig: asm.Signature{In: 0, Out: 0}, Flags: abi.FlagNoPanic | abi.FlagVMDirective,
			Fn: func(host abi.Host, _ []asm.Value) ([]asm.Value, error) {
				dumper, ok := host.(interface{ VstackSnapshot() []asm.Value })
				if !ok {
					return nil, nil
				}
				for i, v := range dumper.VstackSnapshot() {
					debugLogger.Info("debug vstack", zap.Int("index", i), zap.String("value", formatValue(host, v)))
				}
				return nil, nil
			},
		},
		{
			Name: "print_cstack", Sig: asm.Signature{In: 0, Out: 0}, Flags: abi.FlagNoPanic | abi.FlagVMDirective,
			Fn: func(host abi.Host, _ []asm.Value) ([]asm.Value, error) {
				walker, ok := host.(interface{ CallstackNames() []string })
				if !ok {
					return nil, nil
				}
				for i, name := range walker.CallstackNames() {
					debugLogger.Info("debug cstack", zap.Int("index", i), zap.String("function", name))
				}
				return nil, nil
			},
		},
	},
}
