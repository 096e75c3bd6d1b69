package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const sweepFlagKey = "session_sweep"

// Sweeper deletes expired session rows, rate-limited by a FlagStore so the
// full-table scan runs at most once per interval no matter how often Sweep
// is called.
type Sweeper struct {
	store    Store
	flags    FlagStore
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper gated to one scan per interval.
func NewSweeper(store Store, flags FlagStore, interval time.Duration, log *slog.Logger, opts ...SweeperOption) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{store: store, flags: flags, interval: interval, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one gated sweep pass. A pass skipped because the interval flag
// is still live is not an error. Deletion failures are reported but must
// not block request processing in callers.
func (s *Sweeper) Sweep(ctx context.Context) error {
	acquired, err := s.flags.Acquire(ctx, sweepFlagKey, s.interval)
	if err != nil {
		return fmt.Errorf("acquiring sweep flag: %w", err)
	}
	if !acquired {
		return nil
	}
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}
	if n > 0 {
		s.log.Info("swept expired sessions", slog.Int("deleted", n))
	}
	return nil
}

// Run sweeps on a ticker until ctx is cancelled. Errors are logged and the
// loop keeps going.
func (s *Sweeper) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Error("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
