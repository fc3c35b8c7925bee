package drl

import (
	"github.com/ryhazerus/drl/store"
	"go.uber.org/zap"
)

// Option configures the Limiter.
type Option func(*Limiter)

// WithStore sets the backing store for quota counters.
// If not provided, an in-memory store is used by default, which only limits
// callers inside the current process.
func WithStore(s store.Store) Option {
	return func(l *Limiter) {
		l.store = s
	}
}

// WithLogger sets the logger for target operations. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithRecorder sets the metrics recorder. Defaults to a no-op recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) {
		l.recorder = r
	}
}

// WithOnExceeded sets a callback that fires whenever an increment is rejected,
// through either Increment or Consume.
func WithOnExceeded(fn func(*ExceededError)) Option {
	return func(l *Limiter) {
		l.onExceeded = fn
	}
}
