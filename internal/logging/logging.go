// Package logging builds the zap loggers used by the CLI.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the log format and level.
type Options struct {
	// Verbose lowers the level from info to debug.
	Verbose bool
	// JSON switches from console output to structured JSON.
	JSON bool
	// Output defaults to stderr so stdout stays free for command output.
	Output io.Writer
}

// New builds a sugared logger.
func New(opts Options) *zap.SugaredLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := zap.InfoLevel
	if opts.Verbose {
		level = zap.DebugLevel
	}

	var encoder zapcore.Encoder
	if opts.JSON {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		encoder = newConsoleEncoder()
	}

	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level)).Sugar()
}

// newConsoleEncoder prints "LEVEL message key=value" without timestamps or
// callers.
func newConsoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	cfg.NameKey = ""
	cfg.StacktraceKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
