package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

func TestUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)

	if err := s.Update(ctx, func(st *State) error {
		id := st.NextID()
		st.Companies[id] = game.Company{ID: id, Name: "Acme", Funds: decimal.NewFromInt(100)}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("boom")
	err := s.Update(ctx, func(st *State) error {
		c := st.Companies[1]
		c.Funds = decimal.Zero
		st.Companies[1] = c
		delete(st.Companies, 1)
		st.NextID()
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.View(ctx, func(st *State) error {
		c, ok := st.Companies[1]
		if !ok {
			t.Fatalf("company removed by failed transaction")
		}
		if !c.Funds.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("funds changed by failed transaction: %s", c.Funds)
		}
		if st.Seq != 1 {
			t.Fatalf("seq advanced by failed transaction: %d", st.Seq)
		}
		return nil
	})
}

func TestViewDoesNotLeakWrites(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	_ = s.View(ctx, func(st *State) error {
		st.Companies[7] = game.Company{ID: 7}
		return nil
	})
	_ = s.View(ctx, func(st *State) error {
		if len(st.Companies) != 0 {
			t.Fatalf("view write leaked into store")
		}
		return nil
	})
}

func TestClaimRejectsDuplicates(t *testing.T) {
	st := NewState()
	now := time.Now()
	if err := st.Claim("1:salaries.pay:2024-02", now); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := st.Claim("1:salaries.pay:2024-02", now); !errors.Is(err, game.ErrDuplicateIdempotency) {
		t.Fatalf("expected duplicate claim error, got %v", err)
	}
}

func TestNotifyDedupAndCommitHook(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	var delivered []game.Notification
	s.OnCommit(func(_ context.Context, emitted []game.Notification) {
		delivered = append(delivered, emitted...)
	})

	err := s.Update(ctx, func(st *State) error {
		if !st.Notify(game.Notification{Kind: "purchase.delayed", DedupKey: "purchase.delayed:4"}) {
			t.Fatalf("first notify dropped")
		}
		if st.Notify(game.Notification{Kind: "purchase.delayed", DedupKey: "purchase.delayed:4"}) {
			t.Fatalf("duplicate notify accepted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected one delivered notification, got %d", len(delivered))
	}

	// Already persisted: a later transaction must not re-emit it.
	_ = s.Update(ctx, func(st *State) error {
		st.Notify(game.Notification{Kind: "purchase.delayed", DedupKey: "purchase.delayed:4"})
		return nil
	})
	if len(delivered) != 1 {
		t.Fatalf("dedup key re-emitted across transactions")
	}

	_ = s.Update(ctx, func(st *State) error {
		st.Notify(game.Notification{Kind: "x"})
		return errors.New("rollback")
	})
	if len(delivered) != 1 {
		t.Fatalf("rolled back notification delivered")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "tycoon.db")
	snap, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := Open(ctx, snap, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err = s.Update(ctx, func(st *State) error {
		st.Clock = game.Clock{CurrentTime: start, SpeedDays: decimal.NewFromInt(1), Running: true}
		id := st.NextID()
		st.Companies[id] = game.Company{ID: id, Name: "Acme", Funds: decimal.RequireFromString("1234.56")}
		st.Profiles["operator"] = game.Profile{Name: "operator", MinSalary: decimal.NewFromInt(300)}
		return st.Claim("1:salaries.pay:2024-01", start)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	// Unchanged state is a no-op save.
	if err := s.Update(ctx, func(*State) error { return nil }); err != nil {
		t.Fatalf("noop update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	snap2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer snap2.Close()
	loaded, err := snap2.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatalf("expected persisted state")
	}
	if loaded.Seq != 1 || !loaded.Clock.Running || !loaded.Clock.CurrentTime.Equal(start) {
		t.Fatalf("meta not restored: seq=%d clock=%+v", loaded.Seq, loaded.Clock)
	}
	if !loaded.Companies[1].Funds.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("funds not restored: %s", loaded.Companies[1].Funds)
	}
	if _, ok := loaded.Profiles["operator"]; !ok {
		t.Fatalf("profiles not restored")
	}
	if err := loaded.Claim("1:salaries.pay:2024-01", start); !errors.Is(err, game.ErrDuplicateIdempotency) {
		t.Fatalf("claims not restored")
	}
}

func TestDigestCacheSkipsUnchangedBuckets(t *testing.T) {
	d := digestCache{}
	payloads := map[string][]byte{"a": []byte(`{}`), "b": []byte(`{"1":{}}`)}
	first := d.changed(payloads)
	if len(first) != 2 {
		t.Fatalf("expected all buckets changed initially, got %d", len(first))
	}
	d.remember(first)
	payloads["b"] = []byte(`{"2":{}}`)
	second := d.changed(payloads)
	if _, ok := second["b"]; !ok || len(second) != 1 {
		t.Fatalf("expected only b changed, got %v", second)
	}
}

// recordingSnapshotter keeps the bucket names of every save.
type recordingSnapshotter struct {
	saves [][]string
}

func (r *recordingSnapshotter) Load(context.Context) (*State, error) { return nil, nil }

func (r *recordingSnapshotter) Save(_ context.Context, st *State, changed []string) error {
	if _, err := EncodeBuckets(st, changed...); err != nil {
		return err
	}
	r.saves = append(r.saves, changed)
	return nil
}

func (r *recordingSnapshotter) Close() error { return nil }

func TestUpdateSavesOnlyChangedBuckets(t *testing.T) {
	ctx := context.Background()
	rec := &recordingSnapshotter{}
	s := New(rec, nil)
	if err := s.Update(ctx, func(st *State) error {
		st.Sales[7] = game.Sale{ID: 7, Quantity: decimal.NewFromInt(3)}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, func(*State) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, func(st *State) error {
		sale := st.Sales[7]
		st.Sales[7] = sale
		id := st.NextID()
		st.Products[id] = game.Product{ID: id, Inputs: []game.ProductInput{{ProductID: 1, Quantity: decimal.NewFromInt(2)}}}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(rec.saves) != 2 {
		t.Fatalf("saves = %v, want 2", rec.saves)
	}
	if got := rec.saves[0]; len(got) != 1 || got[0] != "sales" {
		t.Fatalf("first save = %v, want [sales]", got)
	}
	if got := rec.saves[1]; len(got) != 2 || got[0] != "meta" || got[1] != "products" {
		t.Fatalf("second save = %v, want [meta products]", got)
	}
}

func TestChangedBucketsComparesNestedValues(t *testing.T) {
	prev := NewState()
	prev.Notifications[1] = game.Notification{ID: 1, Kind: "sale.delayed", Payload: map[string]string{"sale_id": "4"}}
	next := prev.clone()
	if got := ChangedBuckets(prev, next); len(got) != 0 {
		t.Fatalf("clone changed %v", got)
	}
	n := next.Notifications[1]
	n.Payload = map[string]string{"sale_id": "5"}
	next.Notifications[1] = n
	if got := ChangedBuckets(prev, next); len(got) != 1 || got[0] != "notifications" {
		t.Fatalf("changed = %v, want [notifications]", got)
	}
	payloads, err := EncodeBuckets(next, "notifications")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := payloads["notifications"]; !ok || len(payloads) != 1 {
		t.Fatalf("payloads = %v", payloads)
	}
	if all, err := EncodeBuckets(next); err != nil || len(all) != len(BucketNames()) {
		t.Fatalf("full encode = %d buckets, %v", len(all), err)
	}
}
