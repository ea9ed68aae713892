// Package clock owns the simulated game time. All reads and writes go through
// the store so the clock commits together with the rest of the world.
package clock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

var ErrClockMoved = errors.New("clock moved concurrently")

// Tick describes one committed advance of the clock.
type Tick struct {
	Prev     time.Time
	Next     time.Time
	Advanced bool
	// CompanyIDs is the set of companies that existed when the tick committed.
	CompanyIDs []int64
}

type Service struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
}

func New(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, log: logger, now: time.Now}
}

// Init sets the starting time and speed when the clock has never been set.
func (s *Service) Init(ctx context.Context, start time.Time, speedDays decimal.Decimal) error {
	if !speedDays.IsPositive() {
		return game.Invalid("speed_days", "must be positive")
	}
	return s.store.Update(ctx, func(st *store.State) error {
		if !st.Clock.CurrentTime.IsZero() {
			return nil
		}
		st.Clock = game.Clock{
			CurrentTime: start.UTC(),
			SpeedDays:   speedDays,
			Running:     false,
			UpdatedAt:   s.now().UTC(),
		}
		return nil
	})
}

func (s *Service) Snapshot(ctx context.Context) (game.Clock, error) {
	var c game.Clock
	err := s.store.View(ctx, func(st *store.State) error {
		c = st.Clock
		return nil
	})
	return c, err
}

// Now returns the current simulated time.
func (s *Service) Now(ctx context.Context) (time.Time, error) {
	c, err := s.Snapshot(ctx)
	return c.CurrentTime, err
}

func (s *Service) Start(ctx context.Context) error { return s.setRunning(ctx, true) }

func (s *Service) Stop(ctx context.Context) error { return s.setRunning(ctx, false) }

func (s *Service) setRunning(ctx context.Context, running bool) error {
	return s.store.Update(ctx, func(st *store.State) error {
		if st.Clock.Running == running {
			return nil
		}
		st.Clock.Running = running
		st.Clock.UpdatedAt = s.now().UTC()
		s.log.Info("clock state changed", "running", running, "current_time", st.Clock.CurrentTime)
		return nil
	})
}

func (s *Service) SetSpeed(ctx context.Context, speedDays decimal.Decimal) error {
	if !speedDays.IsPositive() {
		return game.Invalid("speed_days", "must be positive")
	}
	return s.store.Update(ctx, func(st *store.State) error {
		st.Clock.SpeedDays = speedDays
		st.Clock.UpdatedAt = s.now().UTC()
		return nil
	})
}

// CompareAndSwap moves the clock from old to next only if it still reads old.
// Moving backwards is rejected.
func (s *Service) CompareAndSwap(ctx context.Context, old, next time.Time) error {
	if next.Before(old) {
		return game.Invalid("current_time", "cannot move backwards")
	}
	return s.store.Update(ctx, func(st *store.State) error {
		if !st.Clock.CurrentTime.Equal(old) {
			return ErrClockMoved
		}
		st.Clock.CurrentTime = next
		st.Clock.UpdatedAt = s.now().UTC()
		return nil
	})
}

// Advance adds one tick of game speed to the clock. A stopped clock is left
// untouched and Tick.Advanced is false.
func (s *Service) Advance(ctx context.Context) (Tick, error) {
	var tick Tick
	err := s.store.Update(ctx, func(st *store.State) error {
		tick = Tick{Prev: st.Clock.CurrentTime, Next: st.Clock.CurrentTime}
		if !st.Clock.Running {
			return nil
		}
		speed := st.Clock.SpeedDays
		if !speed.IsPositive() {
			speed = decimal.NewFromInt(1)
		}
		next := st.Clock.CurrentTime.Add(game.Days(speed))
		if !next.After(tick.Prev) {
			return nil
		}
		st.Clock.CurrentTime = next
		st.Clock.UpdatedAt = s.now().UTC()
		tick.Next = next
		tick.Advanced = true
		tick.CompanyIDs = st.CompanyIDs()
		return nil
	})
	if err != nil {
		return Tick{}, err
	}
	return tick, nil
}

// CrossedMonth reports whether (prev, next] contains the first instant of a month.
func CrossedMonth(prev, next time.Time) bool {
	if !next.After(prev) {
		return false
	}
	p, n := prev.UTC(), next.UTC()
	return p.Year() != n.Year() || p.Month() != n.Month()
}

// CrossedWeek reports whether (prev, next] enters a new ISO week.
func CrossedWeek(prev, next time.Time) bool {
	if !next.After(prev) {
		return false
	}
	py, pw := prev.UTC().ISOWeek()
	ny, nw := next.UTC().ISOWeek()
	return py != ny || pw != nw
}
