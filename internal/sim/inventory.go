package sim

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

// receiveStock books an incoming lot and raises available stock.
func (t *tx) receiveStock(companyID, productID int64, qty decimal.Decimal, ref string) game.InventoryMovement {
	qty = game.RoundQuantity(qty)
	id := t.st.NextID()
	mv := game.InventoryMovement{
		ID:               id,
		CompanyID:        companyID,
		ProductID:        productID,
		Type:             game.MovementIn,
		OriginalQuantity: qty,
		CurrentQuantity:  qty,
		Reference:        ref,
		CreatedAt:        t.now,
	}
	t.st.Movements[id] = mv
	t.adjustStock(companyID, productID, qty)
	return mv
}

// adjustStock changes available stock by delta, never below zero. It returns
// the amount actually applied.
func (t *tx) adjustStock(companyID, productID int64, delta decimal.Decimal) decimal.Decimal {
	cp, ok := t.st.CompanyProduct(companyID, productID)
	if !ok {
		cp = game.CompanyProduct{ID: t.st.NextID(), CompanyID: companyID, ProductID: productID, AvailableStock: decimal.Zero}
	}
	next := cp.AvailableStock.Add(delta)
	applied := delta
	if next.IsNegative() {
		t.log.Warn("stock clamped at zero",
			"err", game.ErrInvariant,
			"company_id", companyID,
			"product_id", productID,
			"requested", delta.Neg().String(),
			"available", cp.AvailableStock.String(),
		)
		applied = cp.AvailableStock.Neg()
		next = decimal.Zero
	}
	cp.AvailableStock = game.RoundQuantity(next)
	t.st.CompanyProducts[cp.ID] = cp
	return applied
}

func (t *tx) availableStock(companyID, productID int64) decimal.Decimal {
	cp, ok := t.st.CompanyProduct(companyID, productID)
	if !ok {
		return decimal.Zero
	}
	return cp.AvailableStock
}

// openLots returns the company's "in" movements for productID that still hold
// goods, oldest first.
func (t *tx) openLots(companyID, productID int64) []game.InventoryMovement {
	lots := t.st.MovementsOf(companyID, productID)
	lots = slices.DeleteFunc(lots, func(m game.InventoryMovement) bool {
		return m.Type != game.MovementIn || !m.CurrentQuantity.IsPositive()
	})
	slices.SortStableFunc(lots, func(a, b game.InventoryMovement) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return lots
}

// consumeStock draws qty from the oldest lots first and records one outgoing
// movement of type kind. A shortfall is clamped and logged; the consumed
// amount is returned.
func (t *tx) consumeStock(companyID, productID int64, qty decimal.Decimal, kind game.MovementType, ref string) decimal.Decimal {
	qty = game.RoundQuantity(qty)
	remaining := qty
	for _, lot := range t.openLots(companyID, productID) {
		if !remaining.IsPositive() {
			break
		}
		take := game.MinDecimal(lot.CurrentQuantity, remaining)
		lot.CurrentQuantity = lot.CurrentQuantity.Sub(take)
		t.st.Movements[lot.ID] = lot
		remaining = remaining.Sub(take)
	}
	consumed := qty.Sub(remaining)
	if remaining.IsPositive() {
		t.log.Warn("lots exhausted before request was filled",
			"err", game.ErrInvariant,
			"company_id", companyID,
			"product_id", productID,
			"requested", qty.String(),
			"consumed", consumed.String(),
		)
	}
	// Available stock drops by the full request even when lots fall short.
	t.adjustStock(companyID, productID, qty.Neg())
	if consumed.IsPositive() {
		t.recordOutflow(companyID, productID, kind, consumed, ref)
	}
	return consumed
}

func (t *tx) recordOutflow(companyID, productID int64, kind game.MovementType, qty decimal.Decimal, ref string) {
	id := t.st.NextID()
	t.st.Movements[id] = game.InventoryMovement{
		ID:               id,
		CompanyID:        companyID,
		ProductID:        productID,
		Type:             kind,
		OriginalQuantity: qty,
		CurrentQuantity:  qty,
		Reference:        ref,
		CreatedAt:        t.now,
	}
}

// ExpireInventory writes off lots of perishable products that outlived their
// shelf life.
func (e *Engine) ExpireInventory(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		t.expireInventory(c)
		return nil
	})
}

func (t *tx) expireInventory(c game.Company) {
	for _, mv := range t.st.MovementsOf(c.ID, 0) {
		if mv.Type != game.MovementIn || !mv.CurrentQuantity.IsPositive() {
			continue
		}
		p, ok := t.st.Products[mv.ProductID]
		if !ok || !p.HasExpiration {
			continue
		}
		expiresAt := mv.CreatedAt.Add(game.DaysFloat(float64(p.ShelfLifeDays)))
		if !t.now.After(expiresAt) {
			continue
		}
		removed := mv.CurrentQuantity
		mv.CurrentQuantity = decimal.Zero
		t.st.Movements[mv.ID] = mv
		t.recordOutflow(c.ID, mv.ProductID, game.MovementExpired, removed, fmt.Sprintf("movement:%d", mv.ID))
		t.adjustStock(c.ID, mv.ProductID, removed.Neg())
		t.notifyCompany(c, "inventory.expired", fmt.Sprintf("inventory.expired:%d", mv.ID), map[string]string{
			"product":  p.Name,
			"quantity": removed.String(),
		})
	}
}

// PayInventoryCosts bills the weekly storage cost of every unit still held.
func (e *Engine) PayInventoryCosts(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		if !t.claimPeriod(c.ID, "inventory.pay_costs", game.WeekKey(t.now)) {
			return nil
		}
		total := decimal.Zero
		for _, mv := range t.st.MovementsOf(c.ID, 0) {
			if mv.Type != game.MovementIn || !mv.CurrentQuantity.IsPositive() {
				continue
			}
			p, ok := t.st.Products[mv.ProductID]
			if !ok {
				continue
			}
			total = total.Add(mv.CurrentQuantity.Mul(p.StorageCost))
		}
		t.debit(c.ID, total, TxnStorage, game.WeekKey(t.now))
		return nil
	})
}

// DamageFilter selects the lots a damage event hits. An empty ProductIDs
// matches every product.
type DamageFilter struct {
	ProductIDs     []int64
	PerishableOnly bool
}

func (f DamageFilter) matches(p game.Product) bool {
	if f.PerishableOnly && !p.HasExpiration {
		return false
	}
	return len(f.ProductIDs) == 0 || slices.Contains(f.ProductIDs, p.ID)
}

// DamageInventory destroys rate of what remains in every matching lot and
// returns the total destroyed.
func (e *Engine) DamageInventory(ctx context.Context, companyID int64, filter DamageFilter, rate decimal.Decimal, ref string) (decimal.Decimal, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, game.Invalid("rate", "must be within [0, 1]")
	}
	var total decimal.Decimal
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		total = t.damageInventory(c, filter, rate, ref)
		return nil
	})
	return total, err
}

func (t *tx) damageInventory(c game.Company, filter DamageFilter, rate decimal.Decimal, ref string) decimal.Decimal {
	total := decimal.Zero
	for _, mv := range t.st.MovementsOf(c.ID, 0) {
		if mv.Type != game.MovementIn || !mv.CurrentQuantity.IsPositive() {
			continue
		}
		p, ok := t.st.Products[mv.ProductID]
		if !ok || !filter.matches(p) {
			continue
		}
		delta := game.RoundQuantity(mv.CurrentQuantity.Mul(rate))
		if !delta.IsPositive() {
			continue
		}
		mv.CurrentQuantity = mv.CurrentQuantity.Sub(delta)
		t.st.Movements[mv.ID] = mv
		t.recordOutflow(c.ID, mv.ProductID, game.MovementDamaged, delta, ref)
		t.adjustStock(c.ID, mv.ProductID, delta.Neg())
		total = total.Add(delta)
	}
	return total
}
