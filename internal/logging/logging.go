// Package logging builds the process logger and the sink forwarders
// report through.
package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FailureRecord describes one failed forward.
type FailureRecord struct {
	Component string
	Stage     string
	Message   string
	EventID   string
	Handle    int // -1 when no handle was involved
}

// Sink receives per-event outcomes.
type Sink interface {
	Failure(rec FailureRecord)
	Skipped(eventID, reason string)
	Delivered(eventID string, handle int, latency time.Duration)
}

// New builds a logger writing to stderr. level is one of
// debug|info|warn|error; format is console or json.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	case "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q (expected console|json)", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// ZapSink writes outcomes to a zap logger. Failures are errors, skipped
// events info and deliveries debug.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink returns a sink over log.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Failure(rec FailureRecord) {
	fields := []zap.Field{
		zap.String("component", rec.Component),
		zap.String("stage", rec.Stage),
		zap.String("event_id", rec.EventID),
	}
	if rec.Handle >= 0 {
		fields = append(fields, zap.Int("handle", rec.Handle))
	}
	s.log.Error(rec.Message, fields...)
}

func (s *ZapSink) Skipped(eventID, reason string) {
	s.log.Info("event skipped", zap.String("event_id", eventID), zap.String("reason", reason))
}

func (s *ZapSink) Delivered(eventID string, handle int, latency time.Duration) {
	s.log.Debug("event delivered",
		zap.String("event_id", eventID),
		zap.Int("handle", handle),
		zap.Duration("latency", latency))
}

// Nop returns a sink that discards everything.
func Nop() Sink { return nopSink{} }

type nopSink struct{}

func (nopSink) Failure(FailureRecord)                {}
func (nopSink) Skipped(string, string)               {}
func (nopSink) Delivered(string, int, time.Duration) {}
