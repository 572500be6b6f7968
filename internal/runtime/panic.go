package runtime

import (
	"errors"

	"go.uber.org/zap"

	lauferrors "github.com/lauf-vm/lauf/internal/errors"
)

// Sentinel errors for the fixed-budget failures the dispatcher can hit
// before a process-level panic handler even gets involved (spec.md §7's
// runtime-panic row; these map to R0002/R0003/R0005).
var (
	ErrVstackOverflow        = errors.New("value stack overflow")
	ErrCstackOverflow        = errors.New("call stack overflow")
	ErrStepLimitExceeded     = errors.New("step limit exceeded")
	ErrExitOutsideTrampoline = errors.New("exit used outside the trampoline frame")
)

// DefaultPanicHandler logs the panic and returns; callers get the richer
// error value back from Process.Panic regardless of what the handler does
// with it. Matching lauf_vm_options.panic_handler, CreateVM always has a
// non-nil default to call.
func DefaultPanicHandler(p *Process, message string) {
	logger.Warn("vm panic", zap.String("message", message))
}

// Panic builds a RuntimePanic for message with the code errors.RExplicitPanic
// (spec.md §7 "panic": the unconditional, explicit form).
func (p *Process) Panic(message string) error {
	return p.PanicCode(lauferrors.RExplicitPanic, message)
}

// PanicCode is like Panic but attributes a specific runtime error code,
// for panics the dispatcher raises itself (bounds, alignment, arity,
// unknown opcode) rather than ones the program triggered with `panic`.
func (p *Process) PanicCode(code, message string) error {
	var stack []lauferrors.StackFrame
	for f := p.CallstackLeaf; f != nil && !f.IsTrampolineFrame(); f = f.Prev {
		stack = append(stack, lauferrors.StackFrame{Function: f.Function.Name, IP: f.ReturnIP})
	}
	if p.PanicHandler != nil {
		p.PanicHandler(p, message)
	}
	return &lauferrors.RuntimePanic{Code: code, Message: message, Stack: stack}
}
