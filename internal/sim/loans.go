package sim

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

var twelve = decimal.NewFromInt(12)

// MonthlyPayment is the annuity instalment repaying principal over months at
// annualRate.
func MonthlyPayment(principal, annualRate decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return principal
	}
	n := decimal.NewFromInt(int64(months))
	r := annualRate.Div(twelve)
	if r.IsZero() {
		return game.RoundMoney(principal.Div(n))
	}
	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	return game.RoundMoney(principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))))
}

func firstOfNextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// TakeLoan borrows amount from a bank. A company holds at most one active loan
// per bank.
func (e *Engine) TakeLoan(ctx context.Context, companyID, bankID int64, amount decimal.Decimal) (game.Loan, error) {
	var out game.Loan
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		bank, ok := t.st.Banks[bankID]
		if !ok {
			return game.NotFound("bank", bankID)
		}
		if !amount.IsPositive() {
			return game.Invalid("amount", "must be positive")
		}
		if amount.GreaterThan(bank.MaxAmount) {
			return game.Invalid("amount", "%s lends at most %s", bank.Name, bank.MaxAmount)
		}
		if bank.DurationMonths <= 0 {
			return game.Invalid("bank", "%s has no loan term", bank.Name)
		}
		for _, l := range t.st.LoansOf(c.ID) {
			if l.BankID == bank.ID && l.Status == game.LoanActive {
				return game.Invalid("bank", "loan %d with %s is still active", l.ID, bank.Name)
			}
		}
		amount = game.RoundMoney(amount)
		out = game.Loan{
			ID:             t.st.NextID(),
			CompanyID:      c.ID,
			BankID:         bank.ID,
			Principal:      amount,
			Remaining:      amount,
			AnnualRate:     bank.AnnualRate,
			MonthlyPayment: MonthlyPayment(amount, bank.AnnualRate, bank.DurationMonths),
			MonthsLeft:     bank.DurationMonths,
			StartedAt:      t.now,
			NextDueAt:      firstOfNextMonth(t.now),
			Status:         game.LoanActive,
		}
		t.st.Loans[out.ID] = out
		t.credit(c.ID, amount, TxnLoanDisbursement, "loan:"+strconv.FormatInt(out.ID, 10))
		return nil
	})
	return out, err
}

// PayLoans collects one instalment per active loan, once per calendar month.
func (e *Engine) PayLoans(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		month := game.MonthKey(t.now)
		if !t.claimPeriod(c.ID, "loans.pay", month) {
			return nil
		}
		for _, l := range t.st.LoansOf(c.ID) {
			if l.Status != game.LoanActive || l.StartedAt.After(t.now) || game.MonthKey(l.StartedAt) == month {
				continue
			}
			interest := game.RoundMoney(l.Remaining.Mul(l.AnnualRate).Div(twelve))
			principal := l.MonthlyPayment.Sub(interest)
			payment := l.MonthlyPayment
			if l.MonthsLeft <= 1 || principal.GreaterThanOrEqual(l.Remaining) {
				principal = l.Remaining
				payment = l.Remaining.Add(interest)
			}
			l.Remaining = game.MaxDecimal(decimal.Zero, l.Remaining.Sub(principal))
			l.MonthsLeft--
			l.NextDueAt = firstOfNextMonth(t.now)
			ref := fmt.Sprintf("loan:%d:%s", l.ID, month)
			if l.Remaining.IsZero() {
				l.Status = game.LoanPaid
				l.MonthsLeft = 0
				t.notifyCompany(c, "loan.paid", fmt.Sprintf("loan.paid:%d", l.ID), map[string]string{
					"loan_id": strconv.FormatInt(l.ID, 10),
				})
			}
			t.st.Loans[l.ID] = l
			t.debit(c.ID, payment, TxnLoanPayment, ref)
		}
		return nil
	})
}
