package asm

import "go.uber.org/zap"

// logger is this package's diagnostic sink, defaulting to zap's no-op
// logger so linking pays nothing for logging calls a host never
// configured (mirrors internal/runtime's logger: same library, same
// SetLogger/no-op-default shape, just scoped to link-time diagnostics
// instead of dispatch/GC ones).
var logger = zap.NewNop()

// SetLogger installs l as this package's diagnostic logger. Passing nil
// restores the no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}
