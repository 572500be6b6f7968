package errors

import (
	"fmt"
	"strings"
)

// BuildError is raised by the builder (spec.md §4.1's error list:
// unbalanced block, undeclared block, duplicate block, builder reused
// across modules). Carries enough context to point at the offending
// instruction without needing a live source file.
type BuildError struct {
	Code     string
	Function string
	Block    string
	Offset   int // instruction offset within the block, -1 if not applicable
	Message  string
}

func (e *BuildError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("%s: build error: in %s/%s (instruction %d): %s",
			e.Code, e.Function, e.Block, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: build error: in %s: %s", e.Code, e.Function, e.Message)
}

// LinkError is raised when a base module's undefined function cannot be
// resolved against any linked module's exported functions.
type LinkError struct {
	Code     string
	Function string
	Message  string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s: link error: %s: %s", e.Code, e.Function, e.Message)
}

// StackFrame is one entry of a runtime panic's captured stack trace,
// matching the leaf snapshot described by spec.md §7 ("the leaf stack
// snapshot").
type StackFrame struct {
	Function string
	IP       int
}

func (f StackFrame) String() string {
	return fmt.Sprintf("  at %s+%d", f.Function, f.IP)
}

// RuntimePanic is the error delivered to a process's panic handler
// (spec.md §7's runtime-panic row): a formatted message plus the call
// stack at the moment of the panic.
type RuntimePanic struct {
	Code    string
	Message string
	Stack   []StackFrame
}

func (e *RuntimePanic) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: panic: %s\n", e.Code, e.Message)
	for _, f := range e.Stack {
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Colored renders the panic with its code colorized, for TTY output; plain
// Error() stays machine-parseable.
func (e *RuntimePanic) Colored() string {
	head := Colorize(e.Code, ColorBoldRed) + ": " + Colorize("panic", ColorYellow) + ": " + e.Message
	var sb strings.Builder
	sb.WriteString(head)
	for _, f := range e.Stack {
		sb.WriteByte('\n')
		sb.WriteString(Colorize(f.String(), ColorCyan))
	}
	return sb.String()
}
