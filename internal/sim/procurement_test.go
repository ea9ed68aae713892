package sim

import (
	"context"
	"errors"
	"testing"

	"tycoon/internal/game"
	"tycoon/internal/store"
	"tycoon/internal/testutil"
)

func TestPurchaseRejectedWhenLandedCostExceedsFunds(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	// 20 x 50 plus 50 shipping lands at 1050.
	testutil.SetFunds(t, st, testutil.CompanyAcme, testutil.D("1000"))
	_, err := e.CreatePurchase(ctx, testutil.CompanyAcme, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("20"))
	var verr *game.ValidationError
	if !errors.As(err, &verr) || verr.Field != "funds" {
		t.Fatalf("err = %v, want funds validation", err)
	}
	wantDecimal(t, "funds after rejection", fundsOf(t, st, testutil.CompanyAcme), "1000")

	testutil.SetFunds(t, st, testutil.CompanyAcme, testutil.D("10000"))
	p, err := e.CreatePurchase(ctx, testutil.CompanyAcme, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("20"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	wantDecimal(t, "total", p.TotalCost, "1050")
	wantDecimal(t, "funds", fundsOf(t, st, testutil.CompanyAcme), "8950")
	if p.Status != game.PurchaseOrdered {
		t.Fatalf("status = %s", p.Status)
	}
}

func TestForeignPurchaseAddsCustoms(t *testing.T) {
	e, _ := newTestEngine(t)
	q, err := e.QuotePurchase(context.Background(), testutil.CompanyAcme, testutil.SupplierForeign, testutil.ProductCotton, testutil.D("10"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	wantDecimal(t, "goods", q.Goods, "400")
	wantDecimal(t, "customs", q.CustomsCost, "40")
	wantDecimal(t, "shipping", q.ShippingCost, "100")
	wantDecimal(t, "total", q.Total, "540")
}

func TestValidatePurchaseRules(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	tests := []struct {
		name     string
		supplier int64
		product  int64
		qty      string
		want     error
	}{
		{name: "unknown supplier", supplier: 999, product: testutil.ProductCotton, qty: "10", want: game.ErrNotFound},
		{name: "unavailable supplier", supplier: testutil.SupplierClosed, product: testutil.ProductCotton, qty: "10", want: game.ErrValidation},
		{name: "not stocked", supplier: testutil.SupplierForeign, product: testutil.ProductMilk, qty: "10", want: game.ErrValidation},
		{name: "below minimum", supplier: testutil.SupplierForeign, product: testutil.ProductCotton, qty: "5", want: game.ErrValidation},
		{name: "zero quantity", supplier: testutil.SupplierLocal, product: testutil.ProductCotton, qty: "0", want: game.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.QuotePurchase(ctx, testutil.CompanyAcme, tc.supplier, tc.product, testutil.D(tc.qty))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestImportBanModifierBlocksPurchase(t *testing.T) {
	e, st := newTestEngine(t)
	if err := st.Update(context.Background(), func(s *store.State) error {
		id := s.NextID()
		s.Modifiers[id] = game.Modifier{
			ID:     id,
			Target: game.Target{Kind: game.TargetCountry, ID: testutil.CountryForeign},
			Field:  game.FieldImportAllowed,
			Factor: testutil.D("0"),
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	_, err := e.QuotePurchase(context.Background(), testutil.CompanyAcme, testutil.SupplierForeign, testutil.ProductCotton, testutil.D("10"))
	if !errors.Is(err, game.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestDeliveredPurchaseIsIdempotent(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	p, err := e.CreatePurchase(ctx, testutil.CompanyAcme, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("10"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := e.DeliveredPurchase(ctx, p.ID); err != nil {
			t.Fatalf("deliver #%d: %v", i, err)
		}
	}
	wantDecimal(t, "stock", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "10")
	testutil.Read(t, st, func(s *store.State) {
		ins := 0
		for _, mv := range s.MovementsOf(testutil.CompanyAcme, testutil.ProductCotton) {
			if mv.Type == game.MovementIn && mv.Reference == purchaseRef(p.ID) {
				ins++
			}
		}
		if ins != 1 {
			t.Fatalf("in movements = %d, want 1", ins)
		}
		if s.Purchases[p.ID].Status != game.PurchaseDelivered {
			t.Fatalf("status = %s", s.Purchases[p.ID].Status)
		}
	})
}

func TestProcessDeliveredPurchasesWaitsForRealArrival(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	p, err := e.CreatePurchase(ctx, testutil.CompanyAcme, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("10"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if p.RealDeliveredAt.Before(at(2)) || p.RealDeliveredAt.After(at(5)) {
		t.Fatalf("real delivery %s outside shipping window", p.RealDeliveredAt)
	}

	testutil.SetClock(t, st, p.RealDeliveredAt.Add(-game.Day/24))
	if err := e.ProcessDeliveredPurchases(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "stock before arrival", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "0")

	testutil.SetClock(t, st, p.RealDeliveredAt)
	if err := e.ProcessDeliveredPurchases(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "stock after arrival", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "10")
}

func TestSupplierRefreshStaysWithinBounds(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		if err := e.ChangeSupplierPricesAndCosts(ctx, testutil.SupplierForeign); err != nil {
			t.Fatalf("refresh #%d: %v", i, err)
		}
		testutil.Read(t, st, func(s *store.State) {
			sup := s.Suppliers[testutil.SupplierForeign]
			if sup.RealShippingCost.LessThan(sup.MinShippingCost) || sup.RealShippingCost.GreaterThan(sup.MaxShippingCost) {
				t.Fatalf("trial %d: shipping cost %s outside [%s, %s]", i, sup.RealShippingCost, sup.MinShippingCost, sup.MaxShippingCost)
			}
			sp := s.SupplierProducts[testutil.OfferForeignCotton]
			if sp.RealPrice.LessThan(sp.MinPrice) || sp.RealPrice.GreaterThan(sp.MaxPrice) {
				t.Fatalf("trial %d: price %s outside [%s, %s]", i, sp.RealPrice, sp.MinPrice, sp.MaxPrice)
			}
		})
	}
}

func TestProcessDeliveredPurchasesFlagsLateDeliveryOnce(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	p, err := e.CreatePurchase(ctx, testutil.CompanyAcme, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("10"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := st.Update(ctx, func(s *store.State) error {
		late := s.Purchases[p.ID]
		late.EstimatedDeliveredAt = at(1)
		late.RealDeliveredAt = at(4)
		s.Purchases[p.ID] = late
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	testutil.SetClock(t, st, at(2))
	for i := 0; i < 2; i++ {
		if err := e.ProcessDeliveredPurchases(ctx, testutil.CompanyAcme); err != nil {
			t.Fatalf("scan #%d: %v", i, err)
		}
	}
	if n := countNotifications(t, st, "purchase.delayed"); n != 1 {
		t.Fatalf("purchase.delayed notifications = %d, want 1", n)
	}
	testutil.Read(t, st, func(s *store.State) {
		if !s.Purchases[p.ID].DelayNotified {
			t.Fatalf("purchase = %+v", s.Purchases[p.ID])
		}
	})
	wantDecimal(t, "stock before arrival", stockOf(t, st, testutil.CompanyAcme, testutil.ProductCotton), "0")
}
