// Package testutil builds a small deterministic world for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// Fixed identifiers of the fixture world.
const (
	CountryLocal   int64 = 1
	CountryForeign int64 = 2

	WilayaAlger int64 = 3
	WilayaOran  int64 = 4

	SupplierLocal   int64 = 5
	SupplierForeign int64 = 6
	SupplierClosed  int64 = 7

	ProductCotton int64 = 8
	ProductMilk   int64 = 9
	ProductShirt  int64 = 10
	ProductYogurt int64 = 11

	OfferLocalCotton   int64 = 12
	OfferForeignCotton int64 = 13
	OfferLocalMilk     int64 = 14
	OfferClosedCotton  int64 = 15

	DemandShirtAlger int64 = 16
	DemandYogurtOran int64 = 17

	MachineLoom int64 = 18
	BankBNA     int64 = 19

	TechAutomation1 int64 = 20
	TechAutomation2 int64 = 21

	AdRadio int64 = 22

	UserAlice int64 = 23
	UserBob   int64 = 24

	CompanyAcme   int64 = 25
	CompanyGlobex int64 = 26

	firstFreeID int64 = 100
)

// Start is the fixture clock time, a Monday.
var Start = time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)

func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// NewWorld returns an in-memory store holding the fixture world with a
// running clock at Start.
func NewWorld(t testing.TB) *store.Store {
	t.Helper()
	s := store.New(nil, nil)
	if err := s.Update(context.Background(), func(st *store.State) error {
		Populate(st)
		return nil
	}); err != nil {
		t.Fatalf("seed world: %v", err)
	}
	return s
}

// Populate writes the fixture world into st.
func Populate(st *store.State) {
	st.Seq = firstFreeID
	st.Clock = game.Clock{CurrentTime: Start, SpeedDays: decimal.NewFromInt(1), Running: true, UpdatedAt: Start}

	st.Countries[CountryLocal] = game.Country{ID: CountryLocal, Name: "Algeria", CustomsRate: decimal.Zero, ImportAllowed: true, Local: true}
	st.Countries[CountryForeign] = game.Country{ID: CountryForeign, Name: "Germany", CustomsRate: D("0.10"), ImportAllowed: true}

	st.Wilayas[WilayaAlger] = game.Wilaya{
		ID: WilayaAlger, Name: "Alger",
		MinShippingCost: D("10"), AvgShippingCost: D("20"), MaxShippingCost: D("30"), RealShippingCost: D("20"),
		MinShippingDays: D("1"), AvgShippingDays: D("2"), MaxShippingDays: D("3"), RealShippingDays: D("2"),
	}
	st.Wilayas[WilayaOran] = game.Wilaya{
		ID: WilayaOran, Name: "Oran",
		MinShippingCost: D("15"), AvgShippingCost: D("25"), MaxShippingCost: D("40"), RealShippingCost: D("25"),
		MinShippingDays: D("2"), AvgShippingDays: D("3"), MaxShippingDays: D("4"), RealShippingDays: D("3"),
	}

	st.Suppliers[SupplierLocal] = game.Supplier{
		ID: SupplierLocal, Name: "Sahara Supply", CountryID: CountryLocal, Available: true, MinOrderQuantity: D("5"),
		MinShippingCost: D("40"), AvgShippingCost: D("50"), MaxShippingCost: D("60"), RealShippingCost: D("50"),
		MinShippingDays: D("2"), AvgShippingDays: D("3"), MaxShippingDays: D("5"), RealShippingDays: D("3"),
	}
	st.Suppliers[SupplierForeign] = game.Supplier{
		ID: SupplierForeign, Name: "Rhein GmbH", CountryID: CountryForeign, Available: true, MinOrderQuantity: D("10"),
		MinShippingCost: D("50"), AvgShippingCost: D("100"), MaxShippingCost: D("150"), RealShippingCost: D("100"),
		MinShippingDays: D("5"), AvgShippingDays: D("7"), MaxShippingDays: D("10"), RealShippingDays: D("7"),
	}
	st.Suppliers[SupplierClosed] = game.Supplier{
		ID: SupplierClosed, Name: "Closed Co", CountryID: CountryLocal, Available: false, MinOrderQuantity: D("1"),
		MinShippingCost: D("1"), AvgShippingCost: D("1"), MaxShippingCost: D("1"), RealShippingCost: D("1"),
		MinShippingDays: D("1"), AvgShippingDays: D("1"), MaxShippingDays: D("1"), RealShippingDays: D("1"),
	}

	st.Products[ProductCotton] = game.Product{ID: ProductCotton, Name: "Cotton", Kind: game.ProductRaw, StorageCost: D("0.5")}
	st.Products[ProductMilk] = game.Product{ID: ProductMilk, Name: "Milk", Kind: game.ProductRaw, StorageCost: D("1"), HasExpiration: true, ShelfLifeDays: 5}
	st.Products[ProductShirt] = game.Product{
		ID: ProductShirt, Name: "Shirt", Kind: game.ProductFinished, StorageCost: D("0.2"),
		Inputs: []game.ProductInput{{ProductID: ProductCotton, Quantity: D("2")}},
	}
	st.Products[ProductYogurt] = game.Product{
		ID: ProductYogurt, Name: "Yogurt", Kind: game.ProductFinished, StorageCost: D("0.3"), HasExpiration: true, ShelfLifeDays: 10,
		Inputs: []game.ProductInput{{ProductID: ProductMilk, Quantity: D("1")}},
	}

	st.SupplierProducts[OfferLocalCotton] = game.SupplierProduct{ID: OfferLocalCotton, SupplierID: SupplierLocal, ProductID: ProductCotton, MinPrice: D("40"), AvgPrice: D("50"), MaxPrice: D("60"), RealPrice: D("50")}
	st.SupplierProducts[OfferForeignCotton] = game.SupplierProduct{ID: OfferForeignCotton, SupplierID: SupplierForeign, ProductID: ProductCotton, MinPrice: D("30"), AvgPrice: D("40"), MaxPrice: D("50"), RealPrice: D("40")}
	st.SupplierProducts[OfferLocalMilk] = game.SupplierProduct{ID: OfferLocalMilk, SupplierID: SupplierLocal, ProductID: ProductMilk, MinPrice: D("1"), AvgPrice: D("2"), MaxPrice: D("3"), RealPrice: D("2")}
	st.SupplierProducts[OfferClosedCotton] = game.SupplierProduct{ID: OfferClosedCotton, SupplierID: SupplierClosed, ProductID: ProductCotton, MinPrice: D("1"), AvgPrice: D("1"), MaxPrice: D("1"), RealPrice: D("1")}

	st.Demands[DemandShirtAlger] = game.ProductDemand{
		ID: DemandShirtAlger, ProductID: ProductShirt, WilayaID: WilayaAlger,
		MinQuantity: D("10"), MaxQuantity: D("20"), MinPrice: D("200"), AvgPrice: D("250"), MaxPrice: D("300"), TimelimitDays: 3,
	}
	st.Demands[DemandYogurtOran] = game.ProductDemand{
		ID: DemandYogurtOran, ProductID: ProductYogurt, WilayaID: WilayaOran,
		MinQuantity: D("5"), MaxQuantity: D("15"), MinPrice: D("20"), AvgPrice: D("25"), MaxPrice: D("35"), TimelimitDays: 2,
	}

	st.Machines[MachineLoom] = game.Machine{
		ID: MachineLoom, Name: "Loom", Price: D("2000"), OperationCostWeek: D("100"),
		ReliabilityDecayDays: 100, DepreciationRateDay: D("0.001"),
		MaintenanceCost: D("300"), MaintenanceDays: D("2"),
		ProductID: ProductShirt, UnitsPerDay: D("10"), CarbonPerUnit: D("0.5"),
		Requirements: []game.MachineRequirement{{Profile: "operator", Count: 1}},
	}
	st.Banks[BankBNA] = game.Bank{ID: BankBNA, Name: "BNA", AnnualRate: D("0.12"), MaxAmount: D("50000"), DurationMonths: 12}
	st.Technologies[TechAutomation1] = game.Technology{ID: TechAutomation1, Name: "Automation I", Level: 1, Cost: D("1000"), ResearchDays: D("10")}
	st.Technologies[TechAutomation2] = game.Technology{ID: TechAutomation2, Name: "Automation II", Level: 2, Cost: D("3000"), ResearchDays: D("20")}
	st.AdPackages[AdRadio] = game.AdPackage{ID: AdRadio, Name: "Radio", Price: D("500"), DurationDays: D("7"), DemandBoost: D("0.5")}
	st.Profiles["operator"] = game.Profile{Name: "operator", MinSalary: D("300"), MaxSalary: D("500")}
	st.Profiles["engineer"] = game.Profile{Name: "engineer", MinSalary: D("600"), MaxSalary: D("900")}

	st.Users[UserAlice] = game.User{ID: UserAlice, Name: "alice", Email: "alice@example.com"}
	st.Users[UserBob] = game.User{ID: UserBob, Name: "bob", Email: "bob@example.com"}
	st.Companies[CompanyAcme] = game.Company{ID: CompanyAcme, UserID: UserAlice, Name: "Acme", WilayaID: WilayaAlger, Funds: D("10000"), CreatedAt: Start}
	st.Companies[CompanyGlobex] = game.Company{ID: CompanyGlobex, UserID: UserBob, Name: "Globex", WilayaID: WilayaOran, Funds: D("10000"), CreatedAt: Start}
}

// SetClock moves the fixture clock to at.
func SetClock(t testing.TB, s *store.Store, at time.Time) {
	t.Helper()
	if err := s.Update(context.Background(), func(st *store.State) error {
		st.Clock.CurrentTime = at
		return nil
	}); err != nil {
		t.Fatalf("set clock: %v", err)
	}
}

// SetFunds overrides a company's funds.
func SetFunds(t testing.TB, s *store.Store, companyID int64, funds decimal.Decimal) {
	t.Helper()
	if err := s.Update(context.Background(), func(st *store.State) error {
		c := st.Companies[companyID]
		c.Funds = funds
		st.Companies[companyID] = c
		return nil
	}); err != nil {
		t.Fatalf("set funds: %v", err)
	}
}

// Read runs fn on a snapshot of the state.
func Read(t testing.TB, s *store.Store, fn func(st *store.State)) {
	t.Helper()
	if err := s.View(context.Background(), func(st *store.State) error {
		fn(st)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
