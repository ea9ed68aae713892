package sim

import (
	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// Effective values apply the active world-event modifiers on top of the
// stored base values. Base values are never rewritten by events.

// Shipping is a set of effective shipping bounds.
type Shipping struct {
	MinCost, AvgCost, MaxCost, RealCost decimal.Decimal
	MinDays, AvgDays, MaxDays, RealDays decimal.Decimal
}

func scaled(f decimal.Decimal, vs ...*decimal.Decimal) {
	for _, v := range vs {
		*v = v.Mul(f)
	}
}

func SupplierShipping(st *store.State, s game.Supplier) Shipping {
	target := game.Target{Kind: game.TargetSupplier, ID: s.ID}
	out := Shipping{
		MinCost: s.MinShippingCost, AvgCost: s.AvgShippingCost, MaxCost: s.MaxShippingCost, RealCost: s.RealShippingCost,
		MinDays: s.MinShippingDays, AvgDays: s.AvgShippingDays, MaxDays: s.MaxShippingDays, RealDays: s.RealShippingDays,
	}
	scaled(st.Factor(target, game.FieldShippingCost), &out.MinCost, &out.AvgCost, &out.MaxCost, &out.RealCost)
	scaled(st.Factor(target, game.FieldShippingTime), &out.MinDays, &out.AvgDays, &out.MaxDays, &out.RealDays)
	return out
}

func WilayaShipping(st *store.State, w game.Wilaya) Shipping {
	target := game.Target{Kind: game.TargetWilaya, ID: w.ID}
	out := Shipping{
		MinCost: w.MinShippingCost, AvgCost: w.AvgShippingCost, MaxCost: w.MaxShippingCost, RealCost: w.RealShippingCost,
		MinDays: w.MinShippingDays, AvgDays: w.AvgShippingDays, MaxDays: w.MaxShippingDays, RealDays: w.RealShippingDays,
	}
	scaled(st.Factor(target, game.FieldShippingCost), &out.MinCost, &out.AvgCost, &out.MaxCost, &out.RealCost)
	scaled(st.Factor(target, game.FieldShippingTime), &out.MinDays, &out.AvgDays, &out.MaxDays, &out.RealDays)
	return out
}

func SupplierPrice(st *store.State, sp game.SupplierProduct) decimal.Decimal {
	f := st.Factor(game.Target{Kind: game.TargetSupplierProduct, ID: sp.ID}, game.FieldPrice)
	return game.RoundMoney(sp.RealPrice.Mul(f))
}

func CustomsRate(st *store.State, c game.Country) decimal.Decimal {
	return c.CustomsRate.Mul(st.Factor(game.Target{Kind: game.TargetCountry, ID: c.ID}, game.FieldCustomsRate))
}

// ImportAllowed is false while any modifier zeroes the country's import flag.
func ImportAllowed(st *store.State, c game.Country) bool {
	if !c.ImportAllowed {
		return false
	}
	return !st.Factor(game.Target{Kind: game.TargetCountry, ID: c.ID}, game.FieldImportAllowed).IsZero()
}

// EffectiveEfficiency is the employee's base efficiency scaled by the
// modifiers on the employee and on the employing company.
func EffectiveEfficiency(st *store.State, e game.Employee) float64 {
	f := st.Factor(game.Target{Kind: game.TargetEmployee, ID: e.ID}, game.FieldEfficiency).
		Mul(st.Factor(game.Target{Kind: game.TargetCompany, ID: e.CompanyID}, game.FieldEfficiency))
	return e.Efficiency * f.InexactFloat64()
}
