package taskq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"tycoon/internal/game"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var tickAt = time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)

func TestRetryPolicyRetriesTransientErrors(t *testing.T) {
	var calls int
	var observed []int
	policy := RetryPolicy{
		MaxAttempts: 3,
		Observe:     func(t Task, _ time.Duration, _ error) { observed = append(observed, t.Attempt) },
	}
	h := policy.Wrap(func(context.Context, Task) error {
		calls++
		if calls < 3 {
			return errors.New("database busy")
		}
		return nil
	}, quiet)

	if err := h(context.Background(), New("sales.process", 7, tickAt)); err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(observed) != 3 || observed[2] != 3 {
		t.Fatalf("observed attempts = %v", observed)
	}
}

func TestRetryPolicyGivesUp(t *testing.T) {
	var calls int
	h := RetryPolicy{MaxAttempts: 2}.Wrap(func(context.Context, Task) error {
		calls++
		return errors.New("boom")
	}, quiet)
	if err := h(context.Background(), New("loans.pay", 7, tickAt)); err == nil {
		t.Fatal("expected error after last attempt")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryPolicySkipsPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "not found", err: game.NotFound("company", 7)},
		{name: "validation", err: game.Invalid("quantity", "must be positive")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			h := RetryPolicy{MaxAttempts: 5}.Wrap(func(context.Context, Task) error {
				calls++
				return tc.err
			}, quiet)
			if err := h(context.Background(), New("sales.process", 7, tickAt)); !errors.Is(err, tc.err) {
				t.Fatalf("err = %v", err)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestPoolHandlesEveryTaskAndDrains(t *testing.T) {
	var handled atomic.Int64
	seen := sync.Map{}
	pool := NewPool(func(_ context.Context, task Task) error {
		seen.Store(task.ID, true)
		handled.Add(1)
		return nil
	}, PoolOptions{Workers: 3, Buffer: 4}, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	var tasks []Task
	for i := int64(1); i <= 20; i++ {
		tasks = append(tasks, New("inventory.expire", i, tickAt))
	}
	if err := pool.Enqueue(ctx, tasks...); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainCtx, drainCancel := context.WithTimeout(ctx, 5*time.Second)
	defer drainCancel()
	if err := pool.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := handled.Load(); got != 20 {
		t.Fatalf("handled = %d, want 20", got)
	}
	for _, task := range tasks {
		if _, ok := seen.Load(task.ID); !ok {
			t.Fatalf("task %s not handled", task)
		}
	}

	pool.Close()
	if err := pool.Enqueue(ctx, New("ads.complete", 1, tickAt)); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue after close err = %v", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

// recordingQueue stands in for the pool behind a spool.
type recordingQueue struct {
	tasks []Task
}

func (q *recordingQueue) Enqueue(_ context.Context, tasks ...Task) error {
	q.tasks = append(q.tasks, tasks...)
	return nil
}

func TestSpoolKeepsUnhandledTasksForReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool", "queue.json")
	next := &recordingQueue{}
	spool, err := OpenSpool(path, next, quiet)
	if err != nil {
		t.Fatal(err)
	}
	ok := New("sales.process", 1, tickAt)
	flaky := New("loans.pay", 2, tickAt)
	gone := New("salaries.pay", 3, tickAt)
	if err := spool.Enqueue(context.Background(), ok, flaky, gone); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(next.tasks) != 3 {
		t.Fatalf("forwarded = %d", len(next.tasks))
	}

	h := spool.Wrap(func(_ context.Context, task Task) error {
		switch task.ID {
		case flaky.ID:
			return errors.New("timeout")
		case gone.ID:
			return game.NotFound("company", 3)
		}
		return nil
	})
	for _, task := range next.tasks {
		_ = h(context.Background(), task)
	}

	// A new process opening the same journal sees only the failed task.
	restarted := &recordingQueue{}
	reopened, err := OpenSpool(path, restarted, quiet)
	if err != nil {
		t.Fatal(err)
	}
	n, err := reopened.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 1 || len(restarted.tasks) != 1 || restarted.tasks[0].ID != flaky.ID {
		t.Fatalf("replayed %d tasks: %+v", n, restarted.tasks)
	}
}

func TestSpoolReplayOfEmptyJournal(t *testing.T) {
	spool, err := OpenSpool(filepath.Join(t.TempDir(), "queue.json"), &recordingQueue{}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := spool.Replay(context.Background()); err != nil || n != 0 {
		t.Fatalf("replay n=%d err=%v", n, err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages and cancels the consumer once empty.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaRoundTripKeyedByCompany(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, &fakeReader{}, quiet)
	tasks := []Task{New("sales.process", 42, tickAt), New("world_events.expire", 0, tickAt)}
	if err := k.Enqueue(context.Background(), tasks...); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "42" || string(w.msgs[1].Key) != "system" {
		t.Fatalf("keys = %q, %q", w.msgs[0].Key, w.msgs[1].Key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bad := kafka.Message{Offset: 1, Value: []byte("{")}
	first, second := w.msgs[0], w.msgs[1]
	first.Offset, second.Offset = 0, 2
	r := &fakeReader{msgs: []kafka.Message{first, bad, second}, cancel: cancel}
	k = newKafka(w, r, quiet)

	var got []Task
	if err := k.Consume(ctx, func(_ context.Context, task Task) error {
		got = append(got, task)
		return nil
	}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(got) != 2 || got[0].ID != tasks[0].ID || got[1].Name != "world_events.expire" {
		t.Fatalf("consumed %+v", got)
	}
	if !got[0].At.Equal(tickAt) || got[0].CompanyID != 42 {
		t.Fatalf("decoded task = %+v", got[0])
	}
	if len(r.committed) != 3 {
		t.Fatalf("committed offsets = %v, want all three", r.committed)
	}
}
