package worldevent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tycoon/internal/game"
	"tycoon/internal/quantity"
	"tycoon/internal/sim"
	"tycoon/internal/store"
	"tycoon/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *sim.Engine, *store.Store) {
	t.Helper()
	st := testutil.NewWorld(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := sim.New(st, quantity.New(11), nil, logger, sim.Options{})
	return New(engine, logger, 2), engine, st
}

func TestCanalClosureScalesForeignShippingAndReverses(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()

	ev, err := svc.Apply(ctx, Spec{Kind: CanalClosure, Rate: "0.5", CountryIDs: []int64{testutil.CountryForeign}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !ev.Active {
		t.Fatal("event should be active")
	}
	testutil.Read(t, st, func(s *store.State) {
		foreign := sim.SupplierShipping(s, s.Suppliers[testutil.SupplierForeign])
		if !foreign.RealCost.Equal(testutil.D("150")) || !foreign.RealDays.Equal(testutil.D("10.5")) {
			t.Fatalf("foreign shipping = %s / %s days", foreign.RealCost, foreign.RealDays)
		}
		local := sim.SupplierShipping(s, s.Suppliers[testutil.SupplierLocal])
		if !local.RealCost.Equal(testutil.D("50")) {
			t.Fatalf("local shipping changed to %s", local.RealCost)
		}
		if !s.Suppliers[testutil.SupplierForeign].RealShippingCost.Equal(testutil.D("100")) {
			t.Fatal("base value was rewritten")
		}
	})

	if _, err := svc.Reverse(ctx, ev.ID); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	testutil.Read(t, st, func(s *store.State) {
		foreign := sim.SupplierShipping(s, s.Suppliers[testutil.SupplierForeign])
		if !foreign.RealCost.Equal(testutil.D("100")) {
			t.Fatalf("after reverse shipping = %s", foreign.RealCost)
		}
		if len(s.Modifiers) != 0 {
			t.Fatalf("modifiers left: %d", len(s.Modifiers))
		}
		if got := s.WorldEvents[ev.ID]; got.Active || got.ReversedAt == nil {
			t.Fatalf("event = %+v", got)
		}
	})
}

func TestStackedEventsReverseExactlyInAnyOrder(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()
	first, err := svc.Apply(ctx, Spec{Kind: Strike, Rate: "0.3", CompanyIDs: []int64{testutil.CompanyAcme}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, Spec{Kind: HeatWave, Rate: "0.2"}); err != nil {
		t.Fatal(err)
	}
	emp := game.Employee{ID: 999, CompanyID: testutil.CompanyAcme, Efficiency: 0.8}
	testutil.Read(t, st, func(s *store.State) {
		got := sim.EffectiveEfficiency(s, emp)
		if want := 0.8 * 0.7 * 0.8; got < want-1e-9 || got > want+1e-9 {
			t.Fatalf("stacked efficiency = %v, want %v", got, want)
		}
	})
	if _, err := svc.Reverse(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		got := sim.EffectiveEfficiency(s, emp)
		if want := 0.8 * 0.8; got < want-1e-9 || got > want+1e-9 {
			t.Fatalf("efficiency after reversing strike = %v, want %v", got, want)
		}
	})
}

func TestImportBanAndExpiry(t *testing.T) {
	svc, engine, st := newTestService(t)
	ctx := context.Background()
	expires := testutil.Start.Add(3 * game.Day)
	if _, err := svc.Apply(ctx, Spec{Kind: ImportBan, CountryIDs: []int64{testutil.CountryForeign}, ExpiresAt: &expires}); err != nil {
		t.Fatal(err)
	}
	_, err := engine.QuotePurchase(ctx, testutil.CompanyAcme, testutil.SupplierForeign, testutil.ProductCotton, testutil.D("10"))
	if !errors.Is(err, game.ErrValidation) {
		t.Fatalf("purchase during ban err = %v", err)
	}

	testutil.SetClock(t, st, expires.Add(-game.Day))
	if n, err := svc.ExpireDue(ctx); err != nil || n != 0 {
		t.Fatalf("early expiry: n=%d err=%v", n, err)
	}
	testutil.SetClock(t, st, expires)
	if n, err := svc.ExpireDue(ctx); err != nil || n != 1 {
		t.Fatalf("expiry: n=%d err=%v", n, err)
	}
	if n, err := svc.ExpireDue(ctx); err != nil || n != 0 {
		t.Fatalf("second expiry: n=%d err=%v", n, err)
	}
	if _, err := engine.QuotePurchase(ctx, testutil.CompanyAcme, testutil.SupplierForeign, testutil.ProductCotton, testutil.D("10")); err != nil {
		t.Fatalf("purchase after ban: %v", err)
	}
}

func TestInventoryDamageFansOutToEveryCompany(t *testing.T) {
	svc, engine, st := newTestService(t)
	ctx := context.Background()
	for _, companyID := range []int64{testutil.CompanyAcme, testutil.CompanyGlobex} {
		p, err := engine.CreatePurchase(ctx, companyID, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("100"))
		if err != nil {
			t.Fatal(err)
		}
		if err := engine.DeliveredPurchase(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
	}

	ev, err := svc.Apply(ctx, Spec{Kind: InventoryDamage, Rate: "0.1", ProductIDs: []int64{testutil.ProductCotton}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.Active {
		t.Fatal("damage-only event should not stay active")
	}
	testutil.Read(t, st, func(s *store.State) {
		for _, companyID := range []int64{testutil.CompanyAcme, testutil.CompanyGlobex} {
			cp, _ := s.CompanyProduct(companyID, testutil.ProductCotton)
			if !cp.AvailableStock.Equal(testutil.D("90")) {
				t.Fatalf("company %d stock = %s", companyID, cp.AvailableStock)
			}
		}
		broadcast := 0
		for _, n := range s.Notifications {
			if n.UserID == nil && n.Kind == "world_event.applied" {
				broadcast++
			}
		}
		if broadcast != 1 {
			t.Fatalf("broadcasts = %d, want 1", broadcast)
		}
	})
}

func TestMachineBreakdownHitsWornMachines(t *testing.T) {
	svc, engine, st := newTestService(t)
	ctx := context.Background()
	worn, err := engine.BuyMachine(ctx, testutil.CompanyAcme, testutil.MachineLoom)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := engine.BuyMachine(ctx, testutil.CompanyGlobex, testutil.MachineLoom)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Update(ctx, func(s *store.State) error {
		m := s.CompanyMachines[worn.ID]
		m.Reliability = 0.3
		s.CompanyMachines[m.ID] = m
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(ctx, Spec{Kind: MachineBreakdown}); err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		if s.CompanyMachines[worn.ID].Status != game.MachineBroken {
			t.Fatalf("worn machine status = %s", s.CompanyMachines[worn.ID].Status)
		}
		if s.CompanyMachines[fresh.ID].Status != game.MachineActive {
			t.Fatalf("fresh machine status = %s", s.CompanyMachines[fresh.ID].Status)
		}
	})
}

func TestApplyValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{name: "unknown kind", spec: Spec{Kind: "meteor", Rate: "0.1"}, want: game.ErrValidation},
		{name: "bad rate", spec: Spec{Kind: OilPriceRise, Rate: "lots"}, want: game.ErrValidation},
		{name: "negative rise", spec: Spec{Kind: OilPriceRise, Rate: "-0.1"}, want: game.ErrValidation},
		{name: "damage above one", spec: Spec{Kind: InventoryDamage, Rate: "1.5", ProductIDs: []int64{testutil.ProductMilk}}, want: game.ErrValidation},
		{name: "strike without companies", spec: Spec{Kind: Strike, Rate: "0.2"}, want: game.ErrValidation},
		{name: "unknown country", spec: Spec{Kind: CustomsChange, Rate: "0.2", CountryIDs: []int64{404}}, want: game.ErrNotFound},
		{name: "expiry in the past", spec: Spec{Kind: OilPriceRise, Rate: "0.2", ExpiresAt: &testutil.Start}, want: game.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Apply(ctx, tc.spec); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}
