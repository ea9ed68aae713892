package sim

import (
	"context"
	"errors"
	"testing"

	"tycoon/internal/game"
	"tycoon/internal/store"
	"tycoon/internal/testutil"
)

func TestDamageCompoundsOnRemainingQuantity(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	lot := stockUp(t, e, testutil.CompanyAcme, testutil.ProductCotton, "100")
	filter := DamageFilter{ProductIDs: []int64{testutil.ProductCotton}}

	for i, want := range []struct{ current, damaged string }{{"90", "10"}, {"81", "9"}} {
		ref := "event:" + want.damaged
		total, err := e.DamageInventory(ctx, testutil.CompanyAcme, filter, testutil.D("0.1"), ref)
		if err != nil {
			t.Fatalf("damage #%d: %v", i, err)
		}
		wantDecimal(t, "destroyed", total, want.damaged)
		testutil.Read(t, st, func(s *store.State) {
			wantDecimal(t, "lot current", s.Movements[lot.ID].CurrentQuantity, want.current)
			wantDecimal(t, "lot original", s.Movements[lot.ID].OriginalQuantity, "100")
			found := false
			for _, mv := range s.MovementsOf(testutil.CompanyAcme, testutil.ProductCotton) {
				if mv.Type == game.MovementDamaged && mv.Reference == ref {
					wantDecimal(t, "damaged movement", mv.OriginalQuantity, want.damaged)
					found = true
				}
			}
			if !found {
				t.Fatalf("no damaged movement for %s", ref)
			}
		})
	}
	wantDecimal(t, "available", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "81")
}

func TestDamageFilterAndRateBounds(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	stockUp(t, e, testutil.CompanyAcme, testutil.ProductCotton, "50")
	stockUp(t, e, testutil.CompanyAcme, testutil.ProductMilk, "50")

	if _, err := e.DamageInventory(ctx, testutil.CompanyAcme, DamageFilter{}, testutil.D("1.5"), "x"); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("rate 1.5 err = %v", err)
	}
	if _, err := e.DamageInventory(ctx, testutil.CompanyAcme, DamageFilter{PerishableOnly: true}, testutil.D("0.5"), "heat"); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "cotton", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "50")
	wantDecimal(t, "milk", stockOf(t, st, testutil.CompanyAcme, testutil.ProductMilk), "25")
}

func TestConsumeStockIsFIFO(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	first := stockUp(t, e, testutil.CompanyAcme, testutil.ProductCotton, "10")
	testutil.SetClock(t, st, at(1))
	second := stockUp(t, e, testutil.CompanyAcme, testutil.ProductCotton, "10")

	err := e.withCompany(ctx, testutil.CompanyAcme, func(w *tx, c game.Company) error {
		w.consumeStock(c.ID, testutil.ProductCotton, testutil.D("15"), game.MovementOut, "test")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		wantDecimal(t, "first lot", s.Movements[first.ID].CurrentQuantity, "0")
		wantDecimal(t, "second lot", s.Movements[second.ID].CurrentQuantity, "5")
	})
	wantDecimal(t, "available", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "5")
}

func TestExpireInventoryAfterShelfLife(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	lot := stockUp(t, e, testutil.CompanyAcme, testutil.ProductMilk, "30")
	stockUp(t, e, testutil.CompanyAcme, testutil.ProductCotton, "30")

	testutil.SetClock(t, st, at(5))
	if err := e.ExpireInventory(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "milk at shelf life", stockOf(t, st, testutil.CompanyAcme, testutil.ProductMilk), "30")

	testutil.SetClock(t, st, at(5.01))
	if err := e.ExpireInventory(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	if err := e.ExpireInventory(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "milk", stockOf(t, st, testutil.CompanyAcme, testutil.ProductMilk), "0")
	wantDecimal(t, "cotton", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "30")
	testutil.Read(t, st, func(s *store.State) {
		expired := 0
		for _, mv := range s.MovementsOf(testutil.CompanyAcme, testutil.ProductMilk) {
			if mv.Type == game.MovementExpired {
				expired++
			}
		}
		if expired != 1 {
			t.Fatalf("expired movements = %d, want 1", expired)
		}
		if !s.Movements[lot.ID].CurrentQuantity.IsZero() {
			t.Fatalf("lot still holds %s", s.Movements[lot.ID].CurrentQuantity)
		}
	})
}

func TestPayInventoryCostsOncePerWeek(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	stockUp(t, e, testutil.CompanyAcme, testutil.ProductCotton, "100")

	for i := 0; i < 2; i++ {
		if err := e.PayInventoryCosts(ctx, testutil.CompanyAcme); err != nil {
			t.Fatal(err)
		}
	}
	wantDecimal(t, "funds after week 1", fundsOf(t, st, testutil.CompanyAcme), "9950")

	testutil.SetClock(t, st, at(7))
	if err := e.PayInventoryCosts(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "funds after week 2", fundsOf(t, st, testutil.CompanyAcme), "9900")
}
