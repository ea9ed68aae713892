// Package taskq carries scheduled tasks from the tick scheduler to the code
// that runs them. Delivery is at-least-once: handlers must tolerate repeats.
package taskq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tycoon/internal/game"
)

// Task is one unit of scheduled work. CompanyID is zero for system tasks.
type Task struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CompanyID int64     `json:"company_id,omitempty"`
	At        time.Time `json:"at"`
	Attempt   int       `json:"attempt"`
}

func New(name string, companyID int64, at time.Time) Task {
	return Task{ID: uuid.New(), Name: name, CompanyID: companyID, At: at}
}

func (t Task) String() string {
	if t.CompanyID == 0 {
		return t.Name
	}
	return fmt.Sprintf("%s[company=%d]", t.Name, t.CompanyID)
}

type Handler func(ctx context.Context, t Task) error

type Queue interface {
	Enqueue(ctx context.Context, tasks ...Task) error
}

// Permanent reports errors that a retry cannot fix.
func Permanent(err error) bool {
	return errors.Is(err, game.ErrNotFound) || errors.Is(err, game.ErrValidation)
}

// Observer is told about every finished attempt.
type Observer func(t Task, took time.Duration, err error)

// RetryPolicy retries a failing handler with linear backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Observe     Observer
}

// Wrap returns a handler that applies the policy to h. The returned error is
// the last attempt's error.
func (p RetryPolicy) Wrap(h Handler, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return func(ctx context.Context, t Task) error {
		var err error
		for t.Attempt < maxAttempts {
			t.Attempt++
			started := time.Now()
			err = h(ctx, t)
			if p.Observe != nil {
				p.Observe(t, time.Since(started), err)
			}
			if err == nil {
				return nil
			}
			if Permanent(err) {
				logger.Info("task skipped", "task", t.Name, "company_id", t.CompanyID, "err", err)
				return err
			}
			logger.Warn("task attempt failed", "task", t.Name, "company_id", t.CompanyID, "attempt", t.Attempt, "err", err)
			if t.Attempt >= maxAttempts {
				break
			}
			if err := sleepWithContext(ctx, p.Backoff*time.Duration(t.Attempt)); err != nil {
				return err
			}
		}
		logger.Error("task failed", "task", t.Name, "company_id", t.CompanyID, "attempts", t.Attempt, "err", err)
		return err
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
