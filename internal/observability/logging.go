// Package observability centralizes logger construction. Connectors take
// an injected *zap.Logger; the CLI and server use the package-level
// loggers so ad hoc call sites don't each build their own.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger writes human-oriented output to stderr. Debug level is gated
// on CIRRUS_DEBUG so normal CLI runs stay quiet.
var CLILogger = newCLILogger()

func newCLILogger() *zap.Logger {
	level := zapcore.InfoLevel
	if os.Getenv("CIRRUS_DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // CLI output doesn't need timestamps
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// NewServerLogger builds the structured JSON logger used by the HTTP
// server.
func NewServerLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Nop returns a no-op logger for tests and for connectors constructed
// without logging.
func Nop() *zap.Logger {
	return zap.NewNop()
}
