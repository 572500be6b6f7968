package errors

import (
	"strings"
	"testing"
)

func TestReporterEmptyHasNoErrors(t *testing.T) {
	r := NewReporter()
	if r.HasErrors() {
		t.Error("HasErrors() = true on a fresh reporter")
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestReporterAccumulatesInOrder(t *testing.T) {
	r := NewReporter()
	first := &BuildError{Code: EStackUnderflow, Function: "a", Message: "one"}
	second := &BuildError{Code: EUndeclaredBlock, Function: "b", Message: "two"}
	r.Report(first)
	r.Report(second)

	if !r.HasErrors() {
		t.Fatal("HasErrors() = false after Report")
	}
	got := r.Errors()
	if len(got) != 2 || got[0] != error(first) || got[1] != error(second) {
		t.Errorf("Errors() = %v, want [%v %v] in report order", got, first, second)
	}
}

func TestReporterErrCombinesMessages(t *testing.T) {
	r := NewReporter()
	r.Report(&BuildError{Code: EStackUnderflow, Function: "a", Message: "underflow"})
	r.Report(&BuildError{Code: EUndeclaredBlock, Function: "b", Message: "undeclared"})

	err := r.Err()
	if err == nil {
		t.Fatal("Err() = nil, want a combined error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "underflow") || !strings.Contains(msg, "undeclared") {
		t.Errorf("Err().Error() = %q, want it to mention both recorded errors", msg)
	}
}

func TestReporterWriteSummary(t *testing.T) {
	r := NewReporter()
	r.Report(&BuildError{Code: EStackUnderflow, Function: "a", Message: "underflow"})
	r.Report(&BuildError{Code: EUndeclaredBlock, Function: "b", Message: "undeclared"})

	var sb strings.Builder
	r.WriteSummary(&sb)
	out := sb.String()
	if !strings.Contains(out, "underflow") || !strings.Contains(out, "undeclared") {
		t.Errorf("WriteSummary output = %q, want both errors listed", out)
	}
	if !strings.Contains(out, "2 error(s)") {
		t.Errorf("WriteSummary output = %q, want a trailing error count", out)
	}
}

func TestReporterWriteSummaryEmpty(t *testing.T) {
	r := NewReporter()
	var sb strings.Builder
	r.WriteSummary(&sb)
	if sb.String() != "" {
		t.Errorf("WriteSummary on an empty reporter wrote %q, want nothing", sb.String())
	}
}

func TestReporterColored(t *testing.T) {
	prev := ColorsEnabled()
	SetColorsEnabled(true)
	defer SetColorsEnabled(prev)

	r := NewReporter()
	r.Report(&BuildError{Code: EStackUnderflow, Function: "a", Message: "underflow"})
	colored := r.Colored()
	if Strip(colored) != (&BuildError{Code: EStackUnderflow, Function: "a", Message: "underflow"}).Error() {
		t.Errorf("Strip(Colored()) = %q, want the plain error text", Strip(colored))
	}
}
