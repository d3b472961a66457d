// Package logging builds the process-wide zap logger used by every
// service. The teacher logs with the stdlib "log" package; the wider
// example pack (tradeengine's own indirect require, and the zap-based
// services elsewhere in the corpus) reaches for zap for anything with
// more than one field worth attaching, so this module does too.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-shaped JSON logger tagged with the service name.
// Pass debug=true for human-readable console output during local runs.
func New(service string, debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}

// MustNew is New but exits the process on failure, for use in main before
// any logger exists to report the error through.
func MustNew(service string, debug bool) *zap.Logger {
	logger, err := New(service, debug)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}
