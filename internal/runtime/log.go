package runtime

import "go.uber.org/zap"

// logger is the package-wide diagnostic sink. It defaults to zap's no-op
// logger so the dispatch loop never pays for logging calls it never
// configured; hosts that want visibility into calls, panics, and GC
// sweeps call SetLogger with a real *zap.Logger (spec.md's ambient
// logging stack, matching how the teacher wires zap.NewNop() as the
// unconfigured default and swaps it via an Options field).
var logger = zap.NewNop()

// SetLogger installs l as the runtime package's diagnostic logger. Passing
// nil restores the no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}
