// Package reset tears down company state.
package reset

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

type Service struct {
	store *store.Store
	log   *slog.Logger
}

func New(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, log: logger}
}

// Counts reports how many rows of each kind a reset removed.
type Counts map[string]int

func (c Counts) add(o Counts) {
	for k, v := range o {
		c[k] += v
	}
}

// ResetCompany deletes everything a company owns and then the company
// itself. With deleteUser the owning user goes too. All of it happens in one
// transaction.
func (s *Service) ResetCompany(ctx context.Context, companyID int64, deleteUser bool) (Counts, error) {
	var counts Counts
	err := s.store.Update(ctx, func(st *store.State) error {
		c, err := st.Company(companyID)
		if err != nil {
			return err
		}
		counts = clearCompany(st, c)
		delete(st.Companies, c.ID)
		counts["companies"] = 1
		if deleteUser {
			delete(st.Users, c.UserID)
			counts["users"] = 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("company reset", "company_id", companyID, "delete_user", deleteUser, "counts", counts)
	return counts, nil
}

// ResetGame clears every company's state but keeps companies and users.
func (s *Service) ResetGame(ctx context.Context) (Counts, error) {
	counts := Counts{}
	err := s.store.Update(ctx, func(st *store.State) error {
		counts = Counts{}
		for _, id := range st.CompanyIDs() {
			counts.add(clearCompany(st, st.Companies[id]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("game reset", "counts", counts)
	return counts, nil
}

// clearCompany deletes the company's children, leaves before parents:
// ads, notifications, ledger, sales, purchases, production orders and
// maintenances (by machine), loans, movements, employees, technologies,
// stock rows and finally machines.
func clearCompany(st *store.State, c game.Company) Counts {
	counts := Counts{}
	machines := map[int64]bool{}
	for _, m := range st.MachinesOf(c.ID) {
		machines[m.ID] = true
	}

	counts["ads"] = deleteWhere(st.Ads, func(a game.Ad) bool { return a.CompanyID == c.ID })
	counts["notifications"] = deleteWhere(st.Notifications, func(n game.Notification) bool {
		return n.UserID != nil && *n.UserID == c.UserID
	})
	counts["transactions"] = deleteWhere(st.Transactions, func(t game.Transaction) bool { return t.CompanyID == c.ID })
	counts["sales"] = deleteWhere(st.Sales, func(s game.Sale) bool { return s.CompanyID == c.ID })
	counts["purchases"] = deleteWhere(st.Purchases, func(p game.Purchase) bool { return p.CompanyID == c.ID })
	counts["production_orders"] = deleteWhere(st.ProductionOrders, func(o game.ProductionOrder) bool {
		return o.CompanyID == c.ID || machines[o.MachineID]
	})
	counts["maintenances"] = deleteWhere(st.Maintenances, func(m game.Maintenance) bool {
		return m.CompanyID == c.ID || machines[m.MachineID]
	})
	counts["loans"] = deleteWhere(st.Loans, func(l game.Loan) bool { return l.CompanyID == c.ID })
	counts["inventory_movements"] = deleteWhere(st.Movements, func(m game.InventoryMovement) bool { return m.CompanyID == c.ID })
	counts["employees"] = deleteWhere(st.Employees, func(e game.Employee) bool { return e.CompanyID == c.ID })
	counts["company_technologies"] = deleteWhere(st.CompanyTechnologies, func(t game.CompanyTechnology) bool { return t.CompanyID == c.ID })
	counts["company_products"] = deleteWhere(st.CompanyProducts, func(p game.CompanyProduct) bool { return p.CompanyID == c.ID })
	counts["company_machines"] = deleteWhere(st.CompanyMachines, func(m game.CompanyMachine) bool { return m.CompanyID == c.ID })

	prefix := strconv.FormatInt(c.ID, 10) + ":"
	for key := range st.Claims {
		if strings.HasPrefix(key, prefix) || strings.HasPrefix(key, "request:"+prefix) {
			delete(st.Claims, key)
		}
	}
	return counts
}

func deleteWhere[T any](m map[int64]T, match func(T) bool) int {
	n := 0
	for id, v := range m {
		if match(v) {
			delete(m, id)
			n++
		}
	}
	return n
}
