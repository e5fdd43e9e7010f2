// Package logging builds the single *zap.Logger shared by net and
// cmd/otterctl. No package here ever reaches for a package-global
// logger: every constructor that needs one takes it as an argument.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded logger suited to CLI output. verbose
// lowers the level to Debug; otherwise only Info and above are shown.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.EncoderConfig.TimeKey = ""
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests and library
// callers that never configured one explicitly.
func Nop() *zap.Logger { return zap.NewNop() }
