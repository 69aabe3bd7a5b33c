// Package quota enforces per-(subject, action) attempt ceilings over a
// rolling window using a sliding-window counter.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Rule declares the attempt ceiling for one guarded action
type Rule struct {
	MaxAttempts int
	Window      time.Duration
	// FailClosed rejects attempts when the store is unavailable instead
	// of the default fail-open admission.
	FailClosed bool
}

// Decision is the outcome of an admission check
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is set on rejection. It is coarse: the full window
	// length rather than the exact next-available instant.
	RetryAfter time.Duration
	// FailedOpen marks an admission granted only because the store was
	// unavailable.
	FailedOpen bool
}

// Store persists attempt timestamps per key. Implementations must make
// CountSince discard entries older than cutoff so records cannot grow
// without bound.
type Store interface {
	// CountSince prunes entries older than cutoff for key and returns
	// how many remain.
	CountSince(ctx context.Context, key string, cutoff time.Time) (int, error)

	// Append records one attempt at ts for key.
	Append(ctx context.Context, key string, ts time.Time) error

	// Expire removes entries older than cutoff across all keys and
	// returns how many were removed.
	Expire(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ledger tracks attempts per (subject, action) pair and admits or rejects
// new ones. Admission checks for the same key are serialized so the
// count-then-append pair is atomic; checks for different keys proceed
// concurrently.
type Ledger struct {
	store        Store
	logger       *zap.Logger
	storeTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedger creates a Ledger backed by store. Store calls are bounded by
// storeTimeout so a stalled backend cannot block the guarded action.
func NewLedger(store Store, storeTimeout time.Duration, logger *zap.Logger) *Ledger {
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &Ledger{
		store:        store,
		logger:       logger,
		storeTimeout: storeTimeout,
		locks:        make(map[string]*sync.Mutex),
	}
}

// CheckAndRecord admits or rejects one attempt by subject to perform
// action at now.
//
// On admission the attempt is recorded; on rejection Decision.RetryAfter
// carries the window length. When the store is unavailable the rule's
// failure policy applies: fail-open admits the attempt with a logged
// error, fail-closed rejects it.
func (l *Ledger) CheckAndRecord(ctx context.Context, subject, action string, rule Rule, now time.Time) (*Decision, error) {
	if subject == "" {
		return nil, fmt.Errorf("quota check requires a subject")
	}
	if rule.MaxAttempts <= 0 || rule.Window <= 0 {
		return nil, fmt.Errorf("invalid quota rule for %s: attempts=%d window=%s", action, rule.MaxAttempts, rule.Window)
	}

	key := buildKey(subject, action)

	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	cutoff := now.Add(-rule.Window)
	count, err := l.store.CountSince(storeCtx, key, cutoff)
	if err != nil {
		return l.resolveStoreFailure(subject, action, rule, err)
	}

	if count >= rule.MaxAttempts {
		return &Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: rule.Window,
		}, nil
	}

	if err := l.store.Append(storeCtx, key, now); err != nil {
		return l.resolveStoreFailure(subject, action, rule, err)
	}

	return &Decision{
		Allowed:   true,
		Remaining: rule.MaxAttempts - count - 1,
	}, nil
}

// resolveStoreFailure applies the rule's failure policy when the store
// cannot be read or written. Availability of the wrapped action wins by
// default; the failure is always logged so operators see it.
func (l *Ledger) resolveStoreFailure(subject, action string, rule Rule, err error) (*Decision, error) {
	if rule.FailClosed {
		l.logger.Error("quota store unavailable, failing closed",
			zap.String("subject", subject),
			zap.String("action", action),
			zap.Error(err))
		return &Decision{
			Allowed:    false,
			RetryAfter: rule.Window,
		}, nil
	}

	l.logger.Error("quota store unavailable, failing open",
		zap.String("subject", subject),
		zap.String("action", action),
		zap.Error(err))
	return &Decision{
		Allowed:    true,
		Remaining:  rule.MaxAttempts - 1,
		FailedOpen: true,
	}, nil
}

// keyLock returns the mutex serializing admission for key.
// The map holds one mutex per key ever seen and is never reaped: a
// reaped mutex could be re-created while a holder is still inside the
// count-then-append section, losing admission atomicity for that key.
// Memory cost is one mutex per (subject, action) pair.
func (l *Ledger) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// buildKey builds the store key for a (subject, action) pair
func buildKey(subject, action string) string {
	return fmt.Sprintf("subject:%s:action:%s", subject, action)
}

// StartCleanupWorker periodically expires attempts older than retention.
// Should run for the life of the process; returns when ctx is done.
func (l *Ledger) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("started quota cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			expireCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
			removed, err := l.store.Expire(expireCtx, time.Now().Add(-retention))
			cancel()
			if err != nil {
				l.logger.Error("failed to expire old quota attempts", zap.Error(err))
				continue
			}
			if removed > 0 {
				l.logger.Info("expired old quota attempts", zap.Int64("removed", removed))
			}
		case <-ctx.Done():
			l.logger.Info("stopping quota cleanup worker")
			return
		}
	}
}
