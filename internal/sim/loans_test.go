package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"tycoon/internal/game"
	"tycoon/internal/store"
	"tycoon/internal/testutil"
)

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		principal, rate string
		months          int
		want            string
	}{
		{principal: "12000", rate: "0.12", months: 12, want: "1066.19"},
		{principal: "1200", rate: "0", months: 12, want: "100"},
		{principal: "500", rate: "0.10", months: 0, want: "500"},
	}
	for _, tc := range tests {
		got := MonthlyPayment(testutil.D(tc.principal), testutil.D(tc.rate), tc.months)
		wantDecimal(t, tc.principal+"@"+tc.rate, got, tc.want)
	}
}

func TestTakeLoanRules(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.TakeLoan(ctx, testutil.CompanyAcme, testutil.BankBNA, testutil.D("60000")); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("over max err = %v", err)
	}
	if _, err := e.TakeLoan(ctx, testutil.CompanyAcme, testutil.BankBNA, testutil.D("12000")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.TakeLoan(ctx, testutil.CompanyAcme, testutil.BankBNA, testutil.D("100")); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("second loan err = %v", err)
	}
	wantDecimal(t, "funds", fundsOf(t, st, testutil.CompanyAcme), "22000")
}

func TestPayLoansMonthlyUntilPaid(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	loan, err := e.TakeLoan(ctx, testutil.CompanyAcme, testutil.BankBNA, testutil.D("12000"))
	if err != nil {
		t.Fatal(err)
	}

	// Nothing is due in the month the loan was taken.
	if err := e.PayLoans(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "funds in start month", fundsOf(t, st, testutil.CompanyAcme), "22000")

	month := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	testutil.SetClock(t, st, month)
	for i := 0; i < 2; i++ {
		if err := e.PayLoans(ctx, testutil.CompanyAcme); err != nil {
			t.Fatal(err)
		}
	}
	wantDecimal(t, "funds after first instalment", fundsOf(t, st, testutil.CompanyAcme), "20933.81")

	for i := 1; i < 12; i++ {
		testutil.SetClock(t, st, month.AddDate(0, i, 0))
		if err := e.PayLoans(ctx, testutil.CompanyAcme); err != nil {
			t.Fatal(err)
		}
	}
	testutil.Read(t, st, func(s *store.State) {
		got := s.Loans[loan.ID]
		if got.Status != game.LoanPaid || !got.Remaining.IsZero() || got.MonthsLeft != 0 {
			t.Fatalf("loan = %+v", got)
		}
		paid := testutil.D("0")
		for _, txn := range s.TransactionsOf(testutil.CompanyAcme) {
			if txn.Kind == TxnLoanPayment {
				paid = paid.Sub(txn.Amount)
			}
		}
		// Twelve instalments of about 1066.19 each.
		if paid.LessThan(testutil.D("12790")) || paid.GreaterThan(testutil.D("12800")) {
			t.Fatalf("total repaid = %s", paid)
		}
	})
}
