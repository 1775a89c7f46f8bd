// Package logger builds the structured loggers used across cask's
// subsystems. It wraps zap with the conventions the rest of the codebase
// expects: a service-scoped SugaredLogger suitable for the Infow/Errorw
// call style used in internal/storage, internal/index, and
// internal/compaction.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured *zap.SugaredLogger named after the
// given service. Encoder and level choices follow zap's NewProduction
// defaults (JSON output, info level), except that timestamps are encoded
// as ISO8601, with the logger name attached so multi-component log streams
// can be filtered by service.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		// Falling back to a no-op logger keeps store construction from
		// failing over a logging misconfiguration; callers care about
		// durability, not telemetry plumbing.
		log = zap.NewNop()
	}

	return log.Named(service).Sugar()
}

// NewNop returns a logger that discards everything. Useful for tests that
// don't want log noise but still need a non-nil *zap.SugaredLogger.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
