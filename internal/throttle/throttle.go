// Package throttle serialises state-mutating work per company.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tycoon/internal/game"
)

const (
	DefaultMaxWait = 500 * time.Millisecond
	DefaultMaxHold = 5 * time.Second
)

// Locker runs fn while holding the exclusive lock for companyID. It waits at
// most maxWait to acquire (failing with game.ErrLockTimeout) and releases the
// lock after fn returns or after maxHold, whichever comes first. fn receives a
// context that is cancelled when the hold expires.
type Locker interface {
	WithCompanyLock(ctx context.Context, companyID int64, maxHold, maxWait time.Duration, fn func(ctx context.Context) error) error
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	slots map[int64]*slot
	log   *slog.Logger
}

type slot struct {
	ch    chan struct{}
	mu    sync.Mutex
	token uint64
	held  bool
}

func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{slots: map[int64]*slot{}, log: logger}
}

func (l *Local) slotFor(companyID int64) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[companyID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[companyID] = s
	}
	return s
}

func (l *Local) WithCompanyLock(ctx context.Context, companyID int64, maxHold, maxWait time.Duration, fn func(ctx context.Context) error) error {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if maxHold <= 0 {
		maxHold = DefaultMaxHold
	}
	s := l.slotFor(companyID)

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		return game.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.token++
	token := s.token
	s.held = true
	s.mu.Unlock()

	release := func(expired bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.held || s.token != token {
			return
		}
		s.held = false
		<-s.ch
		if expired {
			l.log.Warn("company lock force released", "company_id", companyID, "max_hold", maxHold)
		}
	}
	holdTimer := time.AfterFunc(maxHold, func() { release(true) })
	defer func() {
		holdTimer.Stop()
		release(false)
	}()

	holdCtx, cancel := context.WithTimeout(ctx, maxHold)
	defer cancel()
	return fn(holdCtx)
}
