// Package reconcilelog is a dedicated, rotated audit sink for
// commit-after-success inconsistencies: cases where a downstream
// submission succeeded but the local Commit could not be applied
// because a concurrent actor already cleared the reservation. Per the
// design this is the one failure mode that must always be durably
// recorded with both the local and remote identifiers, never silently
// dropped, and never auto-retried.
package reconcilelog

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the rotated file the audit sink writes to.
type Config struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger writes commit-after-success entries to its own rotated file,
// separate from general application logs.
type Logger struct {
	zl *zap.Logger
}

// New builds a Logger. If cfg.FilePath is empty, entries still flow to
// stderr via the passed-in fallback logger so no inconsistency is lost
// even when rotation is unconfigured.
func New(cfg Config, fallback *zap.Logger) (*Logger, error) {
	if cfg.FilePath == "" {
		if fallback == nil {
			var err error
			if fallback, err = zap.NewProduction(); err != nil {
				return nil, err
			}
		}
		return &Logger{zl: fallback.Named("reconcile_audit")}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, err
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 10
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 90
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(rotator),
		zap.WarnLevel,
	)

	return &Logger{zl: zap.New(core).Named("reconcile_audit")}, nil
}

// CommitMismatch records that a successful downstream submission could
// not be attached locally: Commit affected zero rows.
func (l *Logger) CommitMismatch(orderID, tradeOrderID int64) {
	l.zl.Error("commit-after-success inconsistency",
		zap.Int64("order_id", orderID),
		zap.Int64("trade_order_id", tradeOrderID),
		zap.Time("observed_at", time.Now()),
	)
}

// ReleaseMismatch records that a rollback Release found the reservation
// already cleared by a concurrent actor. This is logged but never
// escalated per the design.
func (l *Logger) ReleaseMismatch(orderID int64) {
	l.zl.Warn("release mismatch: reservation already cleared",
		zap.Int64("order_id", orderID),
		zap.Time("observed_at", time.Now()),
	)
}

// Sync flushes the underlying writer.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}
