// Package sim holds the per-company state transitions of the game: finance,
// procurement, sales, inventory, staff, production, maintenance, research,
// advertising and loans.
//
// Every company-scoped operation takes the company throttle and then runs as
// one store transaction, reading the simulated time from the committed clock.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"tycoon/internal/game"
	"tycoon/internal/notify"
	"tycoon/internal/quantity"
	"tycoon/internal/store"
	"tycoon/internal/throttle"
)

type Options struct {
	MaxHold time.Duration
	MaxWait time.Duration
}

type Engine struct {
	store   *store.Store
	rng     *quantity.Generator
	locker  throttle.Locker
	log     *slog.Logger
	maxHold time.Duration
	maxWait time.Duration
}

func New(st *store.Store, rng *quantity.Generator, locker throttle.Locker, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = quantity.NewRandom()
	}
	if locker == nil {
		locker = throttle.NewLocal(logger)
	}
	if opts.MaxHold <= 0 {
		opts.MaxHold = throttle.DefaultMaxHold
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = throttle.DefaultMaxWait
	}
	return &Engine{
		store:   st,
		rng:     rng,
		locker:  locker,
		log:     logger,
		maxHold: opts.MaxHold,
		maxWait: opts.MaxWait,
	}
}

func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) Rand() *quantity.Generator { return e.rng }

// tx is the working context of one transaction.
type tx struct {
	st  *store.State
	now time.Time
	rng *quantity.Generator
	log *slog.Logger
}

func (e *Engine) newTx(st *store.State) *tx {
	return &tx{st: st, now: st.Clock.CurrentTime, rng: e.rng, log: e.log}
}

// withCompany runs fn under the company throttle inside one store transaction.
func (e *Engine) withCompany(ctx context.Context, companyID int64, fn func(t *tx, c game.Company) error) error {
	return e.locker.WithCompanyLock(ctx, companyID, e.maxHold, e.maxWait, func(ctx context.Context) error {
		return e.store.Update(ctx, func(st *store.State) error {
			c, err := st.Company(companyID)
			if err != nil {
				return err
			}
			return fn(e.newTx(st), c)
		})
	})
}

// withSystem runs fn in one store transaction without a company lock. Only
// shared reference data may be written this way.
func (e *Engine) withSystem(ctx context.Context, fn func(t *tx) error) error {
	return e.store.Update(ctx, func(st *store.State) error {
		return fn(e.newTx(st))
	})
}

// claimPeriod marks a periodic charge as done. ok is false if it already ran.
func (t *tx) claimPeriod(companyID int64, task, period string) bool {
	key := periodKey(companyID, task, period)
	return t.st.Claim(key, t.now) == nil
}

func periodKey(companyID int64, task, period string) string {
	return fmt.Sprintf("%d:%s:%s", companyID, task, period)
}

func (t *tx) notifyCompany(c game.Company, kind, dedupKey string, payload map[string]string) {
	n := notify.ForUser(c.UserID, kind, dedupKey, payload)
	n.CreatedAt = t.now
	t.st.Notify(n)
}

func (t *tx) company(id int64) game.Company {
	return t.st.Companies[id]
}

func (t *tx) putCompany(c game.Company) {
	t.st.Companies[c.ID] = c
}

func collectIDs[T any](m map[int64]T) []int64 {
	ids := slices.Collect(maps.Keys(m))
	slices.Sort(ids)
	return ids
}
