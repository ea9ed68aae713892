package sim

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// Quote is the landed cost of a prospective purchase.
type Quote struct {
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Goods        decimal.Decimal `json:"goods"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	CustomsCost  decimal.Decimal `json:"customs_cost"`
	Total        decimal.Decimal `json:"total"`
	ShippingDays decimal.Decimal `json:"shipping_days"`
}

// ValidatePurchase checks that the company may order qty of productID from
// supplierID and returns the landed cost.
func ValidatePurchase(st *store.State, c game.Company, supplierID, productID int64, qty decimal.Decimal) (Quote, error) {
	s, ok := st.Suppliers[supplierID]
	if !ok {
		return Quote{}, game.NotFound("supplier", supplierID)
	}
	if _, ok := st.Products[productID]; !ok {
		return Quote{}, game.NotFound("product", productID)
	}
	if !s.Available {
		return Quote{}, game.Invalid("supplier", "%s is not available", s.Name)
	}
	sp, ok := st.SupplierProduct(supplierID, productID)
	if !ok {
		return Quote{}, game.Invalid("product", "supplier %s does not stock product %d", s.Name, productID)
	}
	if !qty.IsPositive() {
		return Quote{}, game.Invalid("quantity", "must be positive")
	}
	if qty.LessThan(s.MinOrderQuantity) {
		return Quote{}, game.Invalid("quantity", "below minimum order of %s", s.MinOrderQuantity)
	}
	country, ok := st.Countries[s.CountryID]
	if !ok {
		return Quote{}, game.NotFound("country", s.CountryID)
	}
	if !ImportAllowed(st, country) {
		return Quote{}, game.Invalid("supplier", "imports from %s are not allowed", country.Name)
	}

	ship := SupplierShipping(st, s)
	q := Quote{
		UnitPrice:    SupplierPrice(st, sp),
		ShippingCost: game.RoundMoney(ship.RealCost),
		ShippingDays: ship.RealDays,
	}
	q.Goods = game.RoundMoney(q.UnitPrice.Mul(qty))
	q.CustomsCost = decimal.Zero
	if !country.Local {
		q.CustomsCost = game.RoundMoney(q.Goods.Mul(CustomsRate(st, country)))
	}
	q.Total = q.Goods.Add(q.ShippingCost).Add(q.CustomsCost)
	if c.Funds.LessThan(q.Total) {
		return q, game.Invalid("funds", "landed cost %s exceeds funds %s", q.Total.StringFixed(game.MoneyPlaces), c.Funds.StringFixed(game.MoneyPlaces))
	}
	return q, nil
}

func (e *Engine) QuotePurchase(ctx context.Context, companyID, supplierID, productID int64, qty decimal.Decimal) (Quote, error) {
	var q Quote
	err := e.store.View(ctx, func(st *store.State) error {
		c, err := st.Company(companyID)
		if err != nil {
			return err
		}
		q, err = ValidatePurchase(st, c, supplierID, productID, qty)
		return err
	})
	return q, err
}

// CreatePurchase places an order and pays the landed cost up front. The
// delivery date is quoted from the supplier's current shipping time while the
// real arrival is sampled around it.
func (e *Engine) CreatePurchase(ctx context.Context, companyID, supplierID, productID int64, qty decimal.Decimal) (game.Purchase, error) {
	var p game.Purchase
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		q, err := ValidatePurchase(t.st, c, supplierID, productID, qty)
		if err != nil {
			return err
		}
		ship := SupplierShipping(t.st, t.st.Suppliers[supplierID])
		mode := game.ClampDecimal(ship.RealDays, ship.MinDays, ship.MaxDays)
		realDays, err := t.rng.Pert(ship.MinDays, mode, ship.MaxDays, 2)
		if err != nil {
			return err
		}
		p = game.Purchase{
			ID:                   t.st.NextID(),
			CompanyID:            c.ID,
			SupplierID:           supplierID,
			ProductID:            productID,
			Quantity:             game.RoundQuantity(qty),
			UnitPrice:            q.UnitPrice,
			ShippingCost:         q.ShippingCost,
			CustomsCost:          q.CustomsCost,
			TotalCost:            q.Total,
			OrderedAt:            t.now,
			EstimatedDeliveredAt: t.now.Add(game.Days(q.ShippingDays)),
			RealDeliveredAt:      t.now.Add(game.Days(realDays)),
			Status:               game.PurchaseOrdered,
		}
		t.st.Purchases[p.ID] = p
		t.debit(c.ID, q.Total, TxnPurchase, purchaseRef(p.ID))
		return nil
	})
	return p, err
}

func purchaseRef(id int64) string { return "purchase:" + strconv.FormatInt(id, 10) }

// DeliveredPurchase books a purchase into stock. Repeat calls are no-ops.
func (e *Engine) DeliveredPurchase(ctx context.Context, purchaseID int64) error {
	var companyID int64
	if err := e.store.View(ctx, func(st *store.State) error {
		p, ok := st.Purchases[purchaseID]
		if !ok {
			return game.NotFound("purchase", purchaseID)
		}
		companyID = p.CompanyID
		return nil
	}); err != nil {
		return err
	}
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		p, ok := t.st.Purchases[purchaseID]
		if !ok {
			return game.NotFound("purchase", purchaseID)
		}
		return t.deliverPurchase(c, p)
	})
}

func (t *tx) deliverPurchase(c game.Company, p game.Purchase) error {
	switch p.Status {
	case game.PurchaseDelivered:
		return nil
	case game.PurchaseCancelled:
		return game.Invalid("status", "purchase %d is cancelled", p.ID)
	}
	now := t.now
	p.Status = game.PurchaseDelivered
	p.DeliveredAt = &now
	t.st.Purchases[p.ID] = p
	t.receiveStock(p.CompanyID, p.ProductID, p.Quantity, purchaseRef(p.ID))
	t.notifyCompany(c, "purchase.delivered", fmt.Sprintf("purchase.delivered:%d", p.ID), map[string]string{
		"purchase_id": strconv.FormatInt(p.ID, 10),
		"quantity":    p.Quantity.String(),
	})
	return nil
}

// ProcessDeliveredPurchases delivers every open purchase whose real arrival
// has passed and flags, once, those that are late against their estimate.
func (e *Engine) ProcessDeliveredPurchases(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, p := range t.st.PurchasesOf(c.ID) {
			if p.Status != game.PurchaseOrdered && p.Status != game.PurchaseConfirmed {
				continue
			}
			if !p.RealDeliveredAt.After(t.now) {
				if err := t.deliverPurchase(c, p); err != nil {
					return err
				}
				continue
			}
			if !p.DelayNotified && !p.EstimatedDeliveredAt.After(t.now) {
				p.DelayNotified = true
				t.st.Purchases[p.ID] = p
				t.notifyCompany(c, "purchase.delayed", fmt.Sprintf("purchase.delayed:%d", p.ID), map[string]string{
					"purchase_id": strconv.FormatInt(p.ID, 10),
					"expected_at": p.EstimatedDeliveredAt.Format("2006-01-02"),
				})
			}
		}
		return nil
	})
}

// ChangeSupplierPricesAndCosts resamples a supplier's realised shipping cost
// and time, and the realised price of everything it stocks.
func (e *Engine) ChangeSupplierPricesAndCosts(ctx context.Context, supplierID int64) error {
	return e.withSystem(ctx, func(t *tx) error {
		return t.refreshSupplier(supplierID)
	})
}

// RefreshAllSuppliers resamples every supplier in one transaction, at most
// once per game month.
func (e *Engine) RefreshAllSuppliers(ctx context.Context) error {
	return e.withSystem(ctx, func(t *tx) error {
		if !t.claimPeriod(0, "suppliers.refresh_prices", game.MonthKey(t.now)) {
			return nil
		}
		for _, s := range collectIDs(t.st.Suppliers) {
			if err := t.refreshSupplier(s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *tx) refreshSupplier(supplierID int64) error {
	s, ok := t.st.Suppliers[supplierID]
	if !ok {
		return game.NotFound("supplier", supplierID)
	}
	cost, err := t.rng.Pert(s.MinShippingCost, s.AvgShippingCost, s.MaxShippingCost, game.MoneyPlaces)
	if err != nil {
		return fmt.Errorf("supplier %d shipping cost: %w", s.ID, err)
	}
	days, err := t.rng.Pert(s.MinShippingDays, s.AvgShippingDays, s.MaxShippingDays, 2)
	if err != nil {
		return fmt.Errorf("supplier %d shipping days: %w", s.ID, err)
	}
	s.RealShippingCost, s.RealShippingDays = cost, days
	t.st.Suppliers[s.ID] = s

	for _, id := range collectIDs(t.st.SupplierProducts) {
		sp := t.st.SupplierProducts[id]
		if sp.SupplierID != s.ID {
			continue
		}
		price, err := t.rng.Pert(sp.MinPrice, sp.AvgPrice, sp.MaxPrice, game.MoneyPlaces)
		if err != nil {
			return fmt.Errorf("supplier product %d price: %w", sp.ID, err)
		}
		sp.RealPrice = price
		t.st.SupplierProducts[sp.ID] = sp
	}
	return nil
}
