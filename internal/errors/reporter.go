package errors

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"
)

// Reporter accumulates build errors across a single build() call so the
// builder can keep emitting into a poisoned block after the first
// violation and report every balance problem it finds in one pass,
// instead of aborting at the first one.
type Reporter struct {
	errors []error
}

// NewReporter creates an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Report records a build or link error. It never panics or returns early;
// callers keep calling builder emitters so later errors in the same
// function are still discovered.
func (r *Reporter) Report(err error) {
	r.errors = append(r.errors, err)
}

// HasErrors reports whether any error was recorded.
func (r *Reporter) HasErrors() bool {
	return len(r.errors) > 0
}

// Errors returns the recorded errors in report order.
func (r *Reporter) Errors() []error {
	return r.errors
}

// Err joins every recorded error into one via go.uber.org/multierr, or
// returns nil if none were recorded. This is the poisoned-builder's
// terminal error value returned from build_finish.
func (r *Reporter) Err() error {
	if len(r.errors) == 0 {
		return nil
	}
	return multierr.Combine(r.errors...)
}

// WriteSummary writes a human-readable listing of every recorded error to w.
func (r *Reporter) WriteSummary(w io.Writer) {
	for _, err := range r.errors {
		fmt.Fprintln(w, err.Error())
	}
	if len(r.errors) > 0 {
		fmt.Fprintf(w, "%d error(s)\n", len(r.errors))
	}
}

// Colored renders the summary with ANSI colors for a TTY.
func (r *Reporter) Colored() string {
	var sb strings.Builder
	for _, err := range r.errors {
		sb.WriteString(Colorize(err.Error(), ColorRed))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
