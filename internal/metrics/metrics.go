// Package metrics exposes Prometheus collectors for the tick loop, the task
// workers and the company throttle.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tycoon/internal/game"
	"tycoon/internal/taskq"
	"tycoon/internal/throttle"
)

type Collectors struct {
	registry     *prometheus.Registry
	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	enqueued     *prometheus.CounterVec
	failed       *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	lockTimeouts prometheus.Counter
}

// New registers the collectors on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tycoon_ticks_total",
			Help: "Clock ticks that advanced game time.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tycoon_tick_duration_seconds",
			Help:    "Time spent advancing the clock and enqueueing the tick's tasks.",
			Buckets: prometheus.DefBuckets,
		}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tycoon_tasks_enqueued_total",
			Help: "Scheduled tasks enqueued, by task name.",
		}, []string{"task"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tycoon_tasks_failed_total",
			Help: "Task attempts that returned an error, by task name.",
		}, []string{"task"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tycoon_task_duration_seconds",
			Help:    "Task attempt duration, by task name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tycoon_lock_timeouts_total",
			Help: "Company lock acquisitions that gave up waiting.",
		}),
	}
	c.registry.MustRegister(
		c.ticks, c.tickDuration, c.enqueued, c.failed, c.taskDuration, c.lockTimeouts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one advanced tick and the tasks it produced. Methods
// are safe on a nil receiver.
func (c *Collectors) ObserveTick(took time.Duration, tasks []taskq.Task) {
	if c == nil {
		return
	}
	c.ticks.Inc()
	c.tickDuration.Observe(took.Seconds())
	for _, t := range tasks {
		c.enqueued.WithLabelValues(t.Name).Inc()
	}
}

// ObserveTask matches taskq.Observer.
func (c *Collectors) ObserveTask(t taskq.Task, took time.Duration, err error) {
	if c == nil {
		return
	}
	c.taskDuration.WithLabelValues(t.Name).Observe(took.Seconds())
	if err != nil {
		c.failed.WithLabelValues(t.Name).Inc()
	}
}

// Locker counts lock timeouts of the wrapped throttle.
func (c *Collectors) Locker(next throttle.Locker) throttle.Locker {
	if c == nil {
		return next
	}
	return countingLocker{next: next, timeouts: c.lockTimeouts}
}

type countingLocker struct {
	next     throttle.Locker
	timeouts prometheus.Counter
}

func (l countingLocker) WithCompanyLock(ctx context.Context, companyID int64, maxHold, maxWait time.Duration, fn func(ctx context.Context) error) error {
	err := l.next.WithCompanyLock(ctx, companyID, maxHold, maxWait, fn)
	if errors.Is(err, game.ErrLockTimeout) {
		l.timeouts.Inc()
	}
	return err
}
