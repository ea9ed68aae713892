package sim

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// Ledger kinds.
const (
	TxnPurchase         = "purchase"
	TxnSale             = "sale"
	TxnSalary           = "salary"
	TxnStorage          = "storage"
	TxnMachinePurchase  = "machine_purchase"
	TxnMachineOperation = "machine_operation"
	TxnMaintenance      = "maintenance"
	TxnResearch         = "research"
	TxnAd               = "ad"
	TxnLoanDisbursement = "loan_disbursement"
	TxnLoanPayment      = "loan_payment"
	TxnOpening          = "opening_balance"
)

// debit charges amount to the company. Funds may go negative.
func (t *tx) debit(companyID int64, amount decimal.Decimal, kind, ref string) {
	t.post(companyID, amount.Neg(), kind, ref)
}

func (t *tx) credit(companyID int64, amount decimal.Decimal, kind, ref string) {
	t.post(companyID, amount, kind, ref)
}

func (t *tx) post(companyID int64, amount decimal.Decimal, kind, ref string) {
	amount = game.RoundMoney(amount)
	if amount.IsZero() {
		return
	}
	c := t.company(companyID)
	c.Funds = c.Funds.Add(amount)
	t.putCompany(c)
	id := t.st.NextID()
	t.st.Transactions[id] = game.Transaction{
		ID:        id,
		CompanyID: companyID,
		Kind:      kind,
		Amount:    amount,
		Reference: ref,
		At:        t.now,
	}
}

// requireFunds rejects a player action the company cannot pay for.
func (t *tx) requireFunds(c game.Company, amount decimal.Decimal) error {
	if c.Funds.LessThan(amount) {
		return game.Invalid("funds", "need %s, have %s", amount.StringFixed(game.MoneyPlaces), c.Funds.StringFixed(game.MoneyPlaces))
	}
	return nil
}

// CreateUser registers a player account.
func (e *Engine) CreateUser(ctx context.Context, name, email string) (game.User, error) {
	if err := game.ValidateEntityName(name); err != nil {
		return game.User{}, err
	}
	var u game.User
	err := e.store.Update(ctx, func(st *store.State) error {
		u = game.User{ID: st.NextID(), Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
		st.Users[u.ID] = u
		return nil
	})
	return u, err
}

// CreateCompany onboards a company for userID with opening funds.
func (e *Engine) CreateCompany(ctx context.Context, userID int64, name string, wilayaID int64, funds decimal.Decimal) (game.Company, error) {
	if err := game.ValidateEntityName(name); err != nil {
		return game.Company{}, err
	}
	if funds.IsNegative() {
		return game.Company{}, game.Invalid("funds", "must not be negative")
	}
	var c game.Company
	err := e.store.Update(ctx, func(st *store.State) error {
		if _, ok := st.Users[userID]; !ok {
			return game.NotFound("user", userID)
		}
		if _, ok := st.Wilayas[wilayaID]; !ok {
			return game.NotFound("wilaya", wilayaID)
		}
		t := e.newTx(st)
		c = game.Company{
			ID:        st.NextID(),
			UserID:    userID,
			Name:      strings.TrimSpace(name),
			WilayaID:  wilayaID,
			Funds:     decimal.Zero,
			CreatedAt: t.now,
		}
		t.putCompany(c)
		t.credit(c.ID, funds, TxnOpening, "")
		c = t.company(c.ID)
		return nil
	})
	return c, err
}

// Summary is a read model of one company.
type Summary struct {
	Company          game.Company          `json:"company"`
	Employees        int                   `json:"employees"`
	Applicants       int                   `json:"applicants"`
	Machines         []game.CompanyMachine `json:"machines"`
	Stock            []game.CompanyProduct `json:"stock"`
	OpenPurchases    int                   `json:"open_purchases"`
	OpenSales        int                   `json:"open_sales"`
	ActiveLoans      int                   `json:"active_loans"`
	LoanBalance      decimal.Decimal       `json:"loan_balance"`
	RecentLedger     []game.Transaction    `json:"recent_ledger"`
	UnreadNotes      int                   `json:"unread_notifications"`
	ResearchedLevels int                   `json:"research_level"`
}

func (e *Engine) CompanySummary(ctx context.Context, companyID int64) (Summary, error) {
	var out Summary
	err := e.store.View(ctx, func(st *store.State) error {
		c, err := st.Company(companyID)
		if err != nil {
			return err
		}
		out.Company = c
		out.ResearchedLevels = c.ResearchLevel
		for _, emp := range st.EmployeesOf(companyID) {
			switch emp.Status {
			case game.EmployeeActive:
				out.Employees++
			case game.EmployeeApplied:
				out.Applicants++
			}
		}
		out.Machines = st.MachinesOf(companyID)
		out.Stock = st.CompanyProductsOf(companyID)
		for _, p := range st.PurchasesOf(companyID) {
			if p.Status == game.PurchaseOrdered || p.Status == game.PurchaseConfirmed {
				out.OpenPurchases++
			}
		}
		for _, s := range st.SalesOf(companyID) {
			if s.Status == game.SaleInitiated || s.Status == game.SaleConfirmed {
				out.OpenSales++
			}
		}
		out.LoanBalance = decimal.Zero
		for _, l := range st.LoansOf(companyID) {
			if l.Status == game.LoanActive {
				out.ActiveLoans++
				out.LoanBalance = out.LoanBalance.Add(l.Remaining)
			}
		}
		ledger := st.TransactionsOf(companyID)
		if len(ledger) > 20 {
			ledger = ledger[len(ledger)-20:]
		}
		out.RecentLedger = ledger
		for _, n := range st.NotificationsOf(c.UserID) {
			if n.ReadAt == nil {
				out.UnreadNotes++
			}
		}
		return nil
	})
	return out, err
}
