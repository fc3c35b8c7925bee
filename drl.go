package drl

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ryhazerus/drl/store"
	"go.uber.org/zap"
)

// Limiter is the main entry point for the drl library. It owns the store
// connection and hands out Targets that share it.
type Limiter struct {
	store      store.Store
	logger     *zap.Logger
	recorder   Recorder
	onExceeded func(*ExceededError)
}

// New creates a new Limiter with the given options.
// If no store is provided, an in-memory store is used.
func New(opts ...Option) *Limiter {
	l := &Limiter{}
	for _, o := range opts {
		o(l)
	}
	if l.store == nil {
		l.store = store.NewMemoryStore()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.recorder == nil {
		l.recorder = nopRecorder{}
	}
	return l
}

// Target returns a handle on the quota of identifier within scope: at most
// max units used, with usage decaying linearly to zero over period.
//
// Targets are cheap and immutable. Any number of them, in any number of
// processes, may refer to the same scope and identifier; they share usage
// through the store.
func (l *Limiter) Target(scope, identifier string, max int64, period time.Duration) (*Target, error) {
	switch {
	case scope == "":
		return nil, fmt.Errorf("%w: empty scope", ErrInvalidTarget)
	case identifier == "":
		return nil, fmt.Errorf("%w: empty identifier", ErrInvalidTarget)
	case max <= 0:
		return nil, fmt.Errorf("%w: max must be positive, got %d", ErrInvalidTarget, max)
	case period <= 0:
		return nil, fmt.Errorf("%w: period must be positive, got %s", ErrInvalidTarget, period)
	}
	return &Target{
		limiter:    l,
		scope:      scope,
		identifier: identifier,
		limit:      store.Limit{Max: max, Period: period},
		key:        Key(scope, identifier),
	}, nil
}

// Close releases resources held by the limiter's store.
func (l *Limiter) Close() error {
	return l.store.Close()
}

// Key derives the store key of a scope and identifier. Both parts are
// query-escaped, so the separating ":" can't appear inside either and
// distinct pairs never collide.
func Key(scope, identifier string) string {
	return url.QueryEscape(scope) + ":" + url.QueryEscape(identifier)
}
