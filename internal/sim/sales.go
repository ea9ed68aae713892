package sim

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

func saleRef(id int64) string { return "sale:" + strconv.FormatInt(id, 10) }

// sellableProducts lists the finished products a company holds or can make.
func (t *tx) sellableProducts(companyID int64) []int64 {
	var ids []int64
	add := func(productID int64) {
		p, ok := t.st.Products[productID]
		if !ok || p.Kind != game.ProductFinished || slices.Contains(ids, productID) {
			return
		}
		ids = append(ids, productID)
	}
	for _, cp := range t.st.CompanyProductsOf(companyID) {
		add(cp.ProductID)
	}
	for _, cm := range t.st.MachinesOf(companyID) {
		if m, ok := t.st.Machines[cm.MachineID]; ok {
			add(m.ProductID)
		}
	}
	slices.Sort(ids)
	return ids
}

// GenerateDemand creates one initiated sale per demand row of every product
// the company can sell.
func (e *Engine) GenerateDemand(ctx context.Context, companyID int64) (int, error) {
	var created int
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		var err error
		created, err = t.generateDemand(c)
		return err
	})
	return created, err
}

// GenerateWeeklyDemand cancels expired offers and then generates the week's
// new demand. It runs at most once per company and ISO week.
func (e *Engine) GenerateWeeklyDemand(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		t.cancelSales(c)
		if !t.claimPeriod(c.ID, "sales.generate_demand", game.WeekKey(t.now)) {
			return nil
		}
		_, err := t.generateDemand(c)
		return err
	})
}

func (t *tx) generateDemand(c game.Company) (int, error) {
	created := 0
	for _, productID := range t.sellableProducts(c.ID) {
		boost := t.demandBoost(c.ID, productID)
		for _, d := range t.st.DemandsFor(productID) {
			w, ok := t.st.Wilayas[d.WilayaID]
			if !ok {
				continue
			}
			qty, err := t.rng.Uniform(d.MinQuantity, d.MaxQuantity, 0)
			if err != nil {
				return created, fmt.Errorf("demand %d quantity: %w", d.ID, err)
			}
			qty = qty.Mul(decimal.NewFromInt(1).Add(boost)).Round(0)
			if !qty.IsPositive() {
				continue
			}
			price, err := t.rng.Pert(d.MinPrice, d.AvgPrice, d.MaxPrice, game.MoneyPlaces)
			if err != nil {
				return created, fmt.Errorf("demand %d price: %w", d.ID, err)
			}
			ship := WilayaShipping(t.st, w)
			s := game.Sale{
				ID:            t.st.NextID(),
				CompanyID:     c.ID,
				ProductID:     productID,
				WilayaID:      w.ID,
				Quantity:      qty,
				SalePrice:     price,
				ShippingCost:  game.RoundMoney(ship.RealCost),
				ShippingDays:  ship.RealDays,
				InitiatedAt:   t.now,
				TimelimitDays: d.TimelimitDays,
				Status:        game.SaleInitiated,
			}
			t.st.Sales[s.ID] = s
			created++
		}
	}
	return created, nil
}

// ConfirmSale accepts an initiated offer. Stock not already promised to other
// confirmed sales must cover the quantity now; it is drawn at delivery.
func (e *Engine) ConfirmSale(ctx context.Context, companyID, saleID int64) (game.Sale, error) {
	var out game.Sale
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		s, ok := t.st.Sales[saleID]
		if !ok || s.CompanyID != c.ID {
			return game.NotFound("sale", saleID)
		}
		if s.Status != game.SaleInitiated {
			return game.Invalid("status", "sale %d is %s", s.ID, s.Status)
		}
		if !t.now.Before(s.ExpiresAt()) {
			return game.Invalid("sale", "offer %d has expired", s.ID)
		}
		have := t.availableStock(c.ID, s.ProductID).Sub(t.committedStock(c.ID, s.ProductID))
		if have.LessThan(s.Quantity) {
			return game.Invalid("quantity", "need %s uncommitted stock, have %s", s.Quantity, game.MaxDecimal(have, decimal.Zero))
		}
		ship := WilayaShipping(t.st, t.st.Wilayas[s.WilayaID])
		mode := game.ClampDecimal(s.ShippingDays, ship.MinDays, ship.MaxDays)
		realDays, err := t.rng.Pert(ship.MinDays, mode, ship.MaxDays, 2)
		if err != nil {
			return err
		}
		now := t.now
		s.Status = game.SaleConfirmed
		s.ConfirmedAt = &now
		s.EstimatedDeliveredAt = now.Add(game.Days(s.ShippingDays))
		s.RealDeliveredAt = now.Add(game.Days(realDays))
		t.st.Sales[s.ID] = s
		out = s
		return nil
	})
	return out, err
}

// committedStock is the quantity of productID owed to confirmed, undelivered sales.
func (t *tx) committedStock(companyID, productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, s := range t.st.SalesOf(companyID) {
		if s.Status == game.SaleConfirmed && s.ProductID == productID {
			total = total.Add(s.Quantity)
		}
	}
	return total
}

// CancelSales cancels initiated offers whose time limit has run out.
// Confirmed sales are never cancelled here.
func (e *Engine) CancelSales(ctx context.Context, companyID int64) (int, error) {
	var n int
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		n = t.cancelSales(c)
		return nil
	})
	return n, err
}

func (t *tx) cancelSales(c game.Company) int {
	n := 0
	for _, s := range t.st.SalesOf(c.ID) {
		if s.Status != game.SaleInitiated || t.now.Before(s.ExpiresAt()) {
			continue
		}
		now := t.now
		s.Status = game.SaleCancelled
		s.CancelledAt = &now
		t.st.Sales[s.ID] = s
		t.notifyCompany(c, "sale.cancelled", fmt.Sprintf("sale.cancelled:%d", s.ID), map[string]string{
			"sale_id": strconv.FormatInt(s.ID, 10),
		})
		n++
	}
	return n
}

// ProcessSales delivers due confirmed sales, flags late ones once and cancels
// expired offers.
func (e *Engine) ProcessSales(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, s := range t.st.SalesOf(c.ID) {
			if s.Status != game.SaleConfirmed {
				continue
			}
			if !s.RealDeliveredAt.After(t.now) {
				t.deliverSale(c, s)
				continue
			}
			if !s.DelayNotified && !s.EstimatedDeliveredAt.After(t.now) {
				s.DelayNotified = true
				t.st.Sales[s.ID] = s
				t.notifyCompany(c, "sale.delayed", fmt.Sprintf("sale.delayed:%d", s.ID), map[string]string{
					"sale_id":     strconv.FormatInt(s.ID, 10),
					"expected_at": s.EstimatedDeliveredAt.Format("2006-01-02"),
				})
			}
		}
		t.cancelSales(c)
		return nil
	})
}

// DeliveredSale settles a sale. Repeat calls are no-ops.
func (e *Engine) DeliveredSale(ctx context.Context, saleID int64) error {
	var companyID int64
	if err := e.store.View(ctx, func(st *store.State) error {
		s, ok := st.Sales[saleID]
		if !ok {
			return game.NotFound("sale", saleID)
		}
		companyID = s.CompanyID
		return nil
	}); err != nil {
		return err
	}
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		s, ok := t.st.Sales[saleID]
		if !ok {
			return game.NotFound("sale", saleID)
		}
		if s.Status == game.SaleCancelled {
			return game.Invalid("status", "sale %d is cancelled", s.ID)
		}
		t.deliverSale(c, s)
		return nil
	})
}

func (t *tx) deliverSale(c game.Company, s game.Sale) {
	if s.Status == game.SaleDelivered || s.Status == game.SaleCancelled {
		return
	}
	now := t.now
	s.Status = game.SaleDelivered
	s.DeliveredAt = &now
	t.st.Sales[s.ID] = s
	shipped := t.consumeStock(c.ID, s.ProductID, s.Quantity, game.MovementOut, saleRef(s.ID))
	// Only goods that left the warehouse are paid for.
	revenue := s.SalePrice.Mul(shipped).Sub(s.ShippingCost)
	t.credit(c.ID, revenue, TxnSale, saleRef(s.ID))
	t.notifyCompany(c, "sale.delivered", fmt.Sprintf("sale.delivered:%d", s.ID), map[string]string{
		"sale_id":  strconv.FormatInt(s.ID, 10),
		"quantity": shipped.String(),
		"revenue":  game.RoundMoney(revenue).String(),
	})
}

// ChangeWilayaShippingCosts resamples a wilaya's realised shipping cost and time.
func (e *Engine) ChangeWilayaShippingCosts(ctx context.Context, wilayaID int64) error {
	return e.withSystem(ctx, func(t *tx) error {
		return t.refreshWilaya(wilayaID)
	})
}

// RefreshAllWilayas resamples every wilaya's shipping, at most once per game
// month.
func (e *Engine) RefreshAllWilayas(ctx context.Context) error {
	return e.withSystem(ctx, func(t *tx) error {
		if !t.claimPeriod(0, "wilayas.refresh_shipping", game.MonthKey(t.now)) {
			return nil
		}
		for _, id := range collectIDs(t.st.Wilayas) {
			if err := t.refreshWilaya(id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *tx) refreshWilaya(wilayaID int64) error {
	w, ok := t.st.Wilayas[wilayaID]
	if !ok {
		return game.NotFound("wilaya", wilayaID)
	}
	cost, err := t.rng.Pert(w.MinShippingCost, w.AvgShippingCost, w.MaxShippingCost, game.MoneyPlaces)
	if err != nil {
		return fmt.Errorf("wilaya %d shipping cost: %w", w.ID, err)
	}
	days, err := t.rng.Pert(w.MinShippingDays, w.AvgShippingDays, w.MaxShippingDays, 2)
	if err != nil {
		return fmt.Errorf("wilaya %d shipping days: %w", w.ID, err)
	}
	w.RealShippingCost, w.RealShippingDays = cost, days
	t.st.Wilayas[w.ID] = w
	return nil
}
