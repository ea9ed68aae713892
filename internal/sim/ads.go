package sim

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

// BuyAd starts an advertising campaign for one product.
func (e *Engine) BuyAd(ctx context.Context, companyID, packageID, productID int64) (game.Ad, error) {
	var out game.Ad
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		pkg, ok := t.st.AdPackages[packageID]
		if !ok {
			return game.NotFound("ad package", packageID)
		}
		if _, ok := t.st.Products[productID]; !ok {
			return game.NotFound("product", productID)
		}
		span, err := game.DaysWithin("package", pkg.DurationDays)
		if err != nil {
			return err
		}
		if err := t.requireFunds(c, pkg.Price); err != nil {
			return err
		}
		out = game.Ad{
			ID:        t.st.NextID(),
			CompanyID: c.ID,
			PackageID: pkg.ID,
			ProductID: productID,
			StartedAt: t.now,
			EndsAt:    t.now.Add(span),
			Status:    game.AdActive,
		}
		t.st.Ads[out.ID] = out
		t.debit(c.ID, pkg.Price, TxnAd, "ad:"+strconv.FormatInt(out.ID, 10))
		return nil
	})
	return out, err
}

func (e *Engine) CompleteAds(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, ad := range t.st.AdsOf(c.ID) {
			if ad.Status != game.AdActive || ad.EndsAt.After(t.now) {
				continue
			}
			ad.Status = game.AdCompleted
			t.st.Ads[ad.ID] = ad
		}
		return nil
	})
}

// demandBoost sums the boosts of the running campaigns for a product.
func (t *tx) demandBoost(companyID, productID int64) decimal.Decimal {
	boost := decimal.Zero
	for _, ad := range t.st.AdsOf(companyID) {
		if ad.Status != game.AdActive || ad.ProductID != productID || !ad.EndsAt.After(t.now) {
			continue
		}
		if pkg, ok := t.st.AdPackages[ad.PackageID]; ok {
			boost = boost.Add(pkg.DemandBoost)
		}
	}
	return boost
}
