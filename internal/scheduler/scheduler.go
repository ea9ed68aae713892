// Package scheduler turns clock ticks into batches of tasks and runs them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tycoon/internal/clock"
	"tycoon/internal/game"
	"tycoon/internal/taskq"
)

// TickObserver is told how long a tick took and what it enqueued.
type TickObserver interface {
	ObserveTick(took time.Duration, tasks []taskq.Task)
}

type Scheduler struct {
	clock    *clock.Service
	registry *Registry
	queue    taskq.Queue
	observer TickObserver
	log      *slog.Logger
}

func New(clk *clock.Service, registry *Registry, queue taskq.Queue, observer TickObserver, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{clock: clk, registry: registry, queue: queue, observer: observer, log: logger}
}

// Result summarises one call to AdvanceOneTick.
type Result struct {
	Tick  clock.Tick
	Tasks []taskq.Task
}

// AdvanceOneTick moves the clock forward by one tick and enqueues every task
// due in the crossed interval. A stopped clock enqueues nothing.
func (s *Scheduler) AdvanceOneTick(ctx context.Context) (Result, error) {
	started := time.Now()
	tick, err := s.clock.Advance(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("advance clock: %w", err)
	}
	if !tick.Advanced {
		s.log.Debug("clock stopped, tick skipped")
		return Result{Tick: tick}, nil
	}
	tasks := s.Batch(tick)
	if err := s.queue.Enqueue(ctx, tasks...); err != nil {
		return Result{Tick: tick}, fmt.Errorf("enqueue tick tasks: %w", err)
	}
	if s.observer != nil {
		s.observer.ObserveTick(time.Since(started), tasks)
	}
	s.log.Info("tick advanced",
		"from", tick.Prev.Format(time.RFC3339),
		"to", tick.Next.Format(time.RFC3339),
		"companies", len(tick.CompanyIDs),
		"tasks", len(tasks),
	)
	return Result{Tick: tick, Tasks: tasks}, nil
}

// Batch lists the tasks due for tick. System tasks come once; company tasks
// once per company known when the tick committed.
func (s *Scheduler) Batch(tick clock.Tick) []taskq.Task {
	month := clock.CrossedMonth(tick.Prev, tick.Next)
	week := clock.CrossedWeek(tick.Prev, tick.Next)

	var tasks []taskq.Task
	for _, def := range s.registry.Defs() {
		switch def.Cadence {
		case Weekly:
			if !week {
				continue
			}
		case Monthly:
			if !month {
				continue
			}
		}
		if def.Scope == ScopeSystem {
			tasks = append(tasks, taskq.New(def.Name, 0, tick.Next))
			continue
		}
		for _, id := range tick.CompanyIDs {
			tasks = append(tasks, taskq.New(def.Name, id, tick.Next))
		}
	}
	return tasks
}

// Dispatch runs one task. Tasks whose target vanished are skipped.
func (s *Scheduler) Dispatch(ctx context.Context, t taskq.Task) error {
	def, ok := s.registry.Lookup(t.Name)
	if !ok {
		s.log.Warn("unknown task dropped", "task", t.Name, "company_id", t.CompanyID)
		return nil
	}
	err := def.Run(ctx, t.CompanyID)
	if errors.Is(err, game.ErrNotFound) {
		s.log.Info("task target gone, skipped", "task", t.Name, "company_id", t.CompanyID, "err", err)
		return nil
	}
	return err
}
