package store

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

// State is the complete game world. Entity values are replaced, never
// mutated in place, so a shallow map copy is a safe transactional clone.
type State struct {
	Seq    int64
	Clock  game.Clock
	Claims map[string]time.Time

	Countries        map[int64]game.Country
	Wilayas          map[int64]game.Wilaya
	Suppliers        map[int64]game.Supplier
	SupplierProducts map[int64]game.SupplierProduct
	Products         map[int64]game.Product
	Demands          map[int64]game.ProductDemand
	Machines         map[int64]game.Machine
	Banks            map[int64]game.Bank
	Technologies     map[int64]game.Technology
	AdPackages       map[int64]game.AdPackage
	Profiles         map[string]game.Profile

	Users               map[int64]game.User
	Companies           map[int64]game.Company
	Employees           map[int64]game.Employee
	CompanyMachines     map[int64]game.CompanyMachine
	ProductionOrders    map[int64]game.ProductionOrder
	Maintenances        map[int64]game.Maintenance
	CompanyProducts     map[int64]game.CompanyProduct
	Movements           map[int64]game.InventoryMovement
	Purchases           map[int64]game.Purchase
	Sales               map[int64]game.Sale
	Loans               map[int64]game.Loan
	CompanyTechnologies map[int64]game.CompanyTechnology
	Ads                 map[int64]game.Ad
	Transactions        map[int64]game.Transaction
	Notifications       map[int64]game.Notification

	WorldEvents map[int64]game.WorldEvent
	Modifiers   map[int64]game.Modifier

	emitted []game.Notification
}

func NewState() *State {
	return &State{
		Claims:              map[string]time.Time{},
		Countries:           map[int64]game.Country{},
		Wilayas:             map[int64]game.Wilaya{},
		Suppliers:           map[int64]game.Supplier{},
		SupplierProducts:    map[int64]game.SupplierProduct{},
		Products:            map[int64]game.Product{},
		Demands:             map[int64]game.ProductDemand{},
		Machines:            map[int64]game.Machine{},
		Banks:               map[int64]game.Bank{},
		Technologies:        map[int64]game.Technology{},
		AdPackages:          map[int64]game.AdPackage{},
		Profiles:            map[string]game.Profile{},
		Users:               map[int64]game.User{},
		Companies:           map[int64]game.Company{},
		Employees:           map[int64]game.Employee{},
		CompanyMachines:     map[int64]game.CompanyMachine{},
		ProductionOrders:    map[int64]game.ProductionOrder{},
		Maintenances:        map[int64]game.Maintenance{},
		CompanyProducts:     map[int64]game.CompanyProduct{},
		Movements:           map[int64]game.InventoryMovement{},
		Purchases:           map[int64]game.Purchase{},
		Sales:               map[int64]game.Sale{},
		Loans:               map[int64]game.Loan{},
		CompanyTechnologies: map[int64]game.CompanyTechnology{},
		Ads:                 map[int64]game.Ad{},
		Transactions:        map[int64]game.Transaction{},
		Notifications:       map[int64]game.Notification{},
		WorldEvents:         map[int64]game.WorldEvent{},
		Modifiers:           map[int64]game.Modifier{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return maps.Clone(m)
}

func (s *State) clone() *State {
	return &State{
		Seq:                 s.Seq,
		Clock:               s.Clock,
		Claims:              cloneMap(s.Claims),
		Countries:           cloneMap(s.Countries),
		Wilayas:             cloneMap(s.Wilayas),
		Suppliers:           cloneMap(s.Suppliers),
		SupplierProducts:    cloneMap(s.SupplierProducts),
		Products:            cloneMap(s.Products),
		Demands:             cloneMap(s.Demands),
		Machines:            cloneMap(s.Machines),
		Banks:               cloneMap(s.Banks),
		Technologies:        cloneMap(s.Technologies),
		AdPackages:          cloneMap(s.AdPackages),
		Profiles:            cloneMap(s.Profiles),
		Users:               cloneMap(s.Users),
		Companies:           cloneMap(s.Companies),
		Employees:           cloneMap(s.Employees),
		CompanyMachines:     cloneMap(s.CompanyMachines),
		ProductionOrders:    cloneMap(s.ProductionOrders),
		Maintenances:        cloneMap(s.Maintenances),
		CompanyProducts:     cloneMap(s.CompanyProducts),
		Movements:           cloneMap(s.Movements),
		Purchases:           cloneMap(s.Purchases),
		Sales:               cloneMap(s.Sales),
		Loans:               cloneMap(s.Loans),
		CompanyTechnologies: cloneMap(s.CompanyTechnologies),
		Ads:                 cloneMap(s.Ads),
		Transactions:        cloneMap(s.Transactions),
		Notifications:       cloneMap(s.Notifications),
		WorldEvents:         cloneMap(s.WorldEvents),
		Modifiers:           cloneMap(s.Modifiers),
	}
}

// NextID allocates a store-wide unique identifier.
func (s *State) NextID() int64 {
	s.Seq++
	return s.Seq
}

// Claim records an idempotency key; a second claim of the same key fails
// with game.ErrDuplicateIdempotency.
func (s *State) Claim(key string, at time.Time) error {
	if _, ok := s.Claims[key]; ok {
		return game.ErrDuplicateIdempotency
	}
	s.Claims[key] = at
	return nil
}

// Notify records a notification. Duplicate non-empty dedup keys are dropped.
func (s *State) Notify(n game.Notification) bool {
	if n.DedupKey != "" {
		for _, existing := range s.Notifications {
			if existing.DedupKey == n.DedupKey {
				return false
			}
		}
	}
	n.ID = s.NextID()
	s.Notifications[n.ID] = n
	s.emitted = append(s.emitted, n)
	return true
}

// Emitted returns the notifications recorded in this transaction.
func (s *State) Emitted() []game.Notification {
	return slices.Clone(s.emitted)
}

func collect[T any](m map[int64]T, keep func(T) bool) []T {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (s *State) CompanyIDs() []int64 {
	ids := make([]int64, 0, len(s.Companies))
	for id := range s.Companies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *State) Company(id int64) (game.Company, error) {
	c, ok := s.Companies[id]
	if !ok {
		return c, game.NotFound("company", id)
	}
	return c, nil
}

func (s *State) EmployeesOf(companyID int64) []game.Employee {
	return collect(s.Employees, func(e game.Employee) bool { return e.CompanyID == companyID })
}

func (s *State) MachinesOf(companyID int64) []game.CompanyMachine {
	return collect(s.CompanyMachines, func(m game.CompanyMachine) bool { return m.CompanyID == companyID })
}

func (s *State) ProductionOrdersOf(companyID int64) []game.ProductionOrder {
	return collect(s.ProductionOrders, func(o game.ProductionOrder) bool { return o.CompanyID == companyID })
}

func (s *State) MaintenancesOf(companyID int64) []game.Maintenance {
	return collect(s.Maintenances, func(m game.Maintenance) bool { return m.CompanyID == companyID })
}

func (s *State) PurchasesOf(companyID int64) []game.Purchase {
	return collect(s.Purchases, func(p game.Purchase) bool { return p.CompanyID == companyID })
}

func (s *State) SalesOf(companyID int64) []game.Sale {
	return collect(s.Sales, func(v game.Sale) bool { return v.CompanyID == companyID })
}

func (s *State) LoansOf(companyID int64) []game.Loan {
	return collect(s.Loans, func(l game.Loan) bool { return l.CompanyID == companyID })
}

func (s *State) TechnologiesOf(companyID int64) []game.CompanyTechnology {
	return collect(s.CompanyTechnologies, func(t game.CompanyTechnology) bool { return t.CompanyID == companyID })
}

func (s *State) AdsOf(companyID int64) []game.Ad {
	return collect(s.Ads, func(a game.Ad) bool { return a.CompanyID == companyID })
}

func (s *State) TransactionsOf(companyID int64) []game.Transaction {
	return collect(s.Transactions, func(t game.Transaction) bool { return t.CompanyID == companyID })
}

func (s *State) CompanyProductsOf(companyID int64) []game.CompanyProduct {
	return collect(s.CompanyProducts, func(p game.CompanyProduct) bool { return p.CompanyID == companyID })
}

// MovementsOf lists a company's inventory movements, oldest first. A zero
// productID matches every product.
func (s *State) MovementsOf(companyID, productID int64) []game.InventoryMovement {
	return collect(s.Movements, func(m game.InventoryMovement) bool {
		return m.CompanyID == companyID && (productID == 0 || m.ProductID == productID)
	})
}

func (s *State) NotificationsOf(userID int64) []game.Notification {
	return collect(s.Notifications, func(n game.Notification) bool {
		return n.UserID != nil && *n.UserID == userID
	})
}

func (s *State) CompanyProduct(companyID, productID int64) (game.CompanyProduct, bool) {
	for _, p := range s.CompanyProducts {
		if p.CompanyID == companyID && p.ProductID == productID {
			return p, true
		}
	}
	return game.CompanyProduct{}, false
}

func (s *State) SupplierProduct(supplierID, productID int64) (game.SupplierProduct, bool) {
	for _, sp := range s.SupplierProducts {
		if sp.SupplierID == supplierID && sp.ProductID == productID {
			return sp, true
		}
	}
	return game.SupplierProduct{}, false
}

func (s *State) DemandsFor(productID int64) []game.ProductDemand {
	return collect(s.Demands, func(d game.ProductDemand) bool { return d.ProductID == productID })
}

func (s *State) ActiveModifiers(target game.Target, field game.Field) []game.Modifier {
	return collect(s.Modifiers, func(m game.Modifier) bool {
		return m.Target == target && m.Field == field
	})
}

// Factor is the product of every active modifier on target.field, or one.
func (s *State) Factor(target game.Target, field game.Field) decimal.Decimal {
	f := decimal.NewFromInt(1)
	for _, m := range s.Modifiers {
		if m.Target == target && m.Field == field {
			f = f.Mul(m.Factor)
		}
	}
	return f
}
