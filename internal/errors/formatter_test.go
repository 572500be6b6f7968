package errors

import "testing"

func TestBuildErrorWithBlock(t *testing.T) {
	e := &BuildError{Code: EStackUnderflow, Function: "main", Block: "entry", Offset: 3, Message: "stack underflow"}
	got := e.Error()
	want := "E0005: build error: in main/entry (instruction 3): stack underflow"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestBuildErrorWithoutBlock(t *testing.T) {
	e := &BuildError{Code: EBuilderReused, Function: "main", Message: "builder reused across modules"}
	got := e.Error()
	want := "E0004: build error: in main: builder reused across modules"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestLinkErrorFormat(t *testing.T) {
	e := &LinkError{Code: EMissingSymbol, Function: "helper", Message: "never defined"}
	got := e.Error()
	want := "E1001: link error: helper: never defined"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStackFrameString(t *testing.T) {
	f := StackFrame{Function: "main", IP: 7}
	want := "  at main+7"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestRuntimePanicErrorWithStack(t *testing.T) {
	e := &RuntimePanic{
		Code:    RExplicitPanic,
		Message: "boom",
		Stack: []StackFrame{
			{Function: "inner", IP: 2},
			{Function: "main", IP: 9},
		},
	}
	got := e.Error()
	want := "R0006: panic: boom\n  at inner+2\n  at main+9"
	if got != want {
		t.Errorf("Error() =\n%q\nwant\n%q", got, want)
	}
}

func TestRuntimePanicErrorWithoutStack(t *testing.T) {
	e := &RuntimePanic{Code: RExplicitPanic, Message: "boom"}
	want := "R0006: panic: boom"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRuntimePanicColoredStripsToPlainText(t *testing.T) {
	prev := ColorsEnabled()
	SetColorsEnabled(true)
	defer SetColorsEnabled(prev)

	e := &RuntimePanic{
		Code:    RWriteToConst,
		Message: "write to const",
		Stack:   []StackFrame{{Function: "main", IP: 1}},
	}
	colored := e.Colored()
	if colored == e.Error() {
		t.Error("Colored() should differ from Error() when colors are enabled")
	}
	stripped := Strip(colored)
	if want := "R0009: panic: write to const\n  at main+1"; stripped != want {
		t.Errorf("Strip(Colored()) = %q, want %q", stripped, want)
	}
}

func TestRuntimePanicColoredDisabledMatchesPlain(t *testing.T) {
	prev := ColorsEnabled()
	SetColorsEnabled(false)
	defer SetColorsEnabled(prev)

	e := &RuntimePanic{Code: RExplicitPanic, Message: "boom"}
	if got := e.Colored(); got != e.Error() {
		t.Errorf("Colored() = %q, want it to equal Error() %q when colors disabled", got, e.Error())
	}
}
