// Package store holds the game world in memory and applies every mutation as
// an all-or-nothing transaction over a cloned state, persisting committed
// state through a Snapshotter.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tycoon/internal/game"
)

// Snapshotter persists committed state. Save writes the named buckets of st
// atomically: either every one is written or none is.
type Snapshotter interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State, changed []string) error
	Close() error
}

// CommitHook observes the notifications recorded by a committed transaction.
type CommitHook func(ctx context.Context, emitted []game.Notification)

type Store struct {
	mu    sync.RWMutex
	state *State
	snap  Snapshotter
	log   *slog.Logger
	hooks []CommitHook
}

// New returns an empty store. A nil snapshotter keeps state in memory only.
func New(snap Snapshotter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{state: NewState(), snap: snap, log: logger}
}

// Open returns a store hydrated from the snapshotter.
func Open(ctx context.Context, snap Snapshotter, logger *slog.Logger) (*Store, error) {
	s := New(snap, logger)
	if snap == nil {
		return s, nil
	}
	st, err := snap.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st != nil {
		s.state = st
		s.log.Info("state loaded", "companies", len(st.Companies), "seq", st.Seq)
	}
	return s, nil
}

func (s *Store) OnCommit(h CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Update runs fn against a private copy of the state and commits it only when
// fn returns nil and the buckets it changed (if any) are saved.
func (s *Store) Update(ctx context.Context, fn func(st *State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	next := s.state.clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.snap != nil {
		if changed := ChangedBuckets(s.state, next); len(changed) > 0 {
			if err := s.snap.Save(ctx, next, changed); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("persist state: %w", err)
			}
		}
	}
	emitted := next.emitted
	next.emitted = nil
	s.state = next
	hooks := s.hooks
	s.mu.Unlock()

	if len(emitted) > 0 {
		for _, h := range hooks {
			h(ctx, emitted)
		}
	}
	return nil
}

// View runs fn against a read-only copy of the state.
func (s *Store) View(ctx context.Context, fn func(st *State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(snapshot)
}

func (s *Store) Close() error {
	if s.snap == nil {
		return nil
	}
	return s.snap.Close()
}
