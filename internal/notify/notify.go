// Package notify forwards committed notifications to an external sink.
// Delivery is fire-and-forget: sink errors are logged, never returned to the
// transaction that produced the notification.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// Sink receives notifications. A nil UserID is a broadcast.
type Sink interface {
	Emit(ctx context.Context, n game.Notification) error
}

type LogSink struct {
	log *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{log: logger}
}

func (s *LogSink) Emit(_ context.Context, n game.Notification) error {
	attrs := []any{"id", n.ID, "kind", n.Kind}
	if n.UserID != nil {
		attrs = append(attrs, "user_id", *n.UserID)
	} else {
		attrs = append(attrs, "broadcast", true)
	}
	for k, v := range n.Payload {
		attrs = append(attrs, k, v)
	}
	s.log.Info("notification", attrs...)
	return nil
}

// Recorder keeps emitted notifications in memory.
type Recorder struct {
	mu  sync.Mutex
	out []game.Notification
}

func (r *Recorder) Emit(_ context.Context, n game.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, n)
	return nil
}

func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.out))
	for _, n := range r.out {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

// Attach registers sinks on the store so every committed notification is
// delivered once.
func Attach(st *store.Store, logger *slog.Logger, sinks ...Sink) {
	if logger == nil {
		logger = slog.Default()
	}
	st.OnCommit(func(ctx context.Context, emitted []game.Notification) {
		for _, n := range emitted {
			for _, sink := range sinks {
				if err := sink.Emit(ctx, n); err != nil {
					logger.Warn("notification delivery failed", "id", n.ID, "kind", n.Kind, "err", err)
				}
			}
		}
	})
}

// ForUser builds a notification addressed to one user.
func ForUser(userID int64, kind, dedupKey string, payload map[string]string) game.Notification {
	uid := userID
	return game.Notification{UserID: &uid, Kind: kind, DedupKey: dedupKey, Payload: payload}
}

// Broadcast builds a notification addressed to every user.
func Broadcast(kind, dedupKey string, payload map[string]string) game.Notification {
	return game.Notification{Kind: kind, DedupKey: dedupKey, Payload: payload}
}
