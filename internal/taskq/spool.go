package taskq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Spool journals tasks to a JSON file before handing them to the next
// queue. A task leaves the journal only once it has been handled, so tasks
// interrupted by a restart are replayed.
type Spool struct {
	mu   sync.Mutex
	path string
	next Queue
	log  *slog.Logger
}

func OpenSpool(path string, next Queue, logger *slog.Logger) (*Spool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create spool dir: %w", err)
		}
	}
	return &Spool{path: path, next: next, log: logger}, nil
}

func (s *Spool) load() ([]Task, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Task{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Task{}, nil
	}
	var out []Task
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode spool %s: %w", s.path, err)
	}
	return out, nil
}

func (s *Spool) save(tasks []Task) error {
	raw, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Spool) Enqueue(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	s.mu.Lock()
	pending, err := s.load()
	if err == nil {
		err = s.save(append(pending, tasks...))
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("journal tasks: %w", err)
	}
	return s.next.Enqueue(ctx, tasks...)
}

// Pending returns the journalled tasks that have not been acknowledged.
func (s *Spool) Pending() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Spool) Ack(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, err := s.load()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(pending, func(t Task) bool { return t.ID == id })
	return s.save(kept)
}

// Replay re-sends every journalled task to the next queue. It is called once
// at startup, before new tasks are enqueued.
func (s *Spool) Replay(ctx context.Context) (int, error) {
	pending, err := s.Pending()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	s.log.Info("replaying spooled tasks", "count", len(pending), "path", s.path)
	return len(pending), s.next.Enqueue(ctx, pending...)
}

// Wrap acknowledges a task after h handled it. Tasks that failed with a
// retryable error stay journalled.
func (s *Spool) Wrap(h Handler) Handler {
	return func(ctx context.Context, t Task) error {
		err := h(ctx, t)
		if err == nil || Permanent(err) {
			if ackErr := s.Ack(t.ID); ackErr != nil {
				s.log.Error("spool ack failed", "task", t.Name, "id", t.ID, "err", ackErr)
			}
		}
		return err
	}
}
