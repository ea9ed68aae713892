package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/quantity"
	"tycoon/internal/store"
	"tycoon/internal/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st := testutil.NewWorld(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, quantity.New(7), nil, logger, Options{}), st
}

func stockUp(t *testing.T, e *Engine, companyID, productID int64, qty string) game.InventoryMovement {
	t.Helper()
	var mv game.InventoryMovement
	err := e.withCompany(context.Background(), companyID, func(w *tx, c game.Company) error {
		mv = w.receiveStock(c.ID, productID, testutil.D(qty), "test")
		return nil
	})
	if err != nil {
		t.Fatalf("stock up: %v", err)
	}
	return mv
}

func hireOperator(t *testing.T, st *store.Store, companyID int64, salary string) game.Employee {
	t.Helper()
	var emp game.Employee
	err := st.Update(context.Background(), func(s *store.State) error {
		hired := s.Clock.CurrentTime
		emp = game.Employee{
			ID:            s.NextID(),
			CompanyID:     companyID,
			Name:          "Operator",
			Profile:       "operator",
			Status:        game.EmployeeActive,
			SalaryMonth:   testutil.D(salary),
			Efficiency:    1,
			Mood:          1,
			AppliedAt:     hired,
			TimelimitDays: 5,
			HiredAt:       &hired,
			MoodUpdatedAt: hired,
		}
		s.Employees[emp.ID] = emp
		return nil
	})
	if err != nil {
		t.Fatalf("hire: %v", err)
	}
	return emp
}

func fundsOf(t *testing.T, st *store.Store, companyID int64) decimal.Decimal {
	t.Helper()
	var funds decimal.Decimal
	testutil.Read(t, st, func(s *store.State) { funds = s.Companies[companyID].Funds })
	return funds
}

func stockOf(t *testing.T, st *store.Store, companyID, productID int64) decimal.Decimal {
	t.Helper()
	out := decimal.Zero
	testutil.Read(t, st, func(s *store.State) {
		if cp, ok := s.CompanyProduct(companyID, productID); ok {
			out = cp.AvailableStock
		}
	})
	return out
}

func wantDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(testutil.D(want)) {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func TestCreateCompanyCreditsOpeningFunds(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	u, err := e.CreateUser(ctx, "carol", "carol@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	c, err := e.CreateCompany(ctx, u.ID, "  Carol Textiles ", testutil.WilayaOran, testutil.D("2500"))
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	if c.Name != "Carol Textiles" {
		t.Fatalf("name = %q", c.Name)
	}
	wantDecimal(t, "funds", fundsOf(t, st, c.ID), "2500")

	if _, err := e.CreateCompany(ctx, u.ID, "Ghost", 9999, decimal.Zero); !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("unknown wilaya err = %v", err)
	}
	if _, err := e.CreateCompany(ctx, u.ID, " ", testutil.WilayaOran, decimal.Zero); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("blank name err = %v", err)
	}
}

func TestCompanySummaryCountsOpenWork(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	hireOperator(t, st, testutil.CompanyAcme, "400")
	if _, err := e.CreatePurchase(ctx, testutil.CompanyAcme, testutil.SupplierLocal, testutil.ProductCotton, testutil.D("10")); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	sum, err := e.CompanySummary(ctx, testutil.CompanyAcme)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Employees != 1 || sum.OpenPurchases != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.RecentLedger) != 1 || sum.RecentLedger[0].Kind != TxnPurchase {
		t.Fatalf("ledger = %+v", sum.RecentLedger)
	}
}

func TestCompanyScopedCallsRejectUnknownCompany(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.PaySalaries(context.Background(), 4242)
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func at(days float64) time.Time {
	return testutil.Start.Add(game.DaysFloat(days))
}
