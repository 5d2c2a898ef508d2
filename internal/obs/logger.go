package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide structured logger. Dashboard mode (see
// internal/cli) writes logs to stderr so stdout stays reserved for the
// single JSON result line; interactive mode uses zap's human-readable
// console encoder.
func NewLogger(dashboard bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !dashboard {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return cfg.Build()
}

// LoggingSink records each completed bundle as a structured log line. It is
// the default non-test Sink: it never persists history (Non-goal, §1), it
// only logs it once.
type LoggingSink struct {
	Logger *zap.Logger
}

func NewLoggingSink(logger *zap.Logger) *LoggingSink {
	return &LoggingSink{Logger: logger}
}

func (s *LoggingSink) RecordBundle(rec BundleRecord) {
	s.Logger.Info("bundle completed",
		zap.String("request_id", rec.RequestID),
		zap.String("status", string(rec.Status)),
		zap.Int("attempts", rec.Attempts),
		zap.Int("retry_count", rec.RetryCount),
		zap.Strings("endpoints_used", rec.EndpointsUsed),
		zap.Int64("simulate_ms", rec.TimingMs.SimulateMs),
		zap.Int64("sign_ms", rec.TimingMs.SignMs),
		zap.Int64("submit_ms", rec.TimingMs.SubmitMs),
		zap.Int64("confirm_ms", rec.TimingMs.ConfirmMs),
		zap.Int64("total_ms", rec.TimingMs.TotalMs),
	)
}

var _ Sink = (*LoggingSink)(nil)
var _ Sink = NoOpSink{}
