package seed

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// Apply inserts the catalog into an empty world. A world that already has
// reference data is left alone and Apply reports false.
func Apply(ctx context.Context, st *store.Store, c Catalog, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var seeded bool
	err := st.Update(ctx, func(s *store.State) error {
		seeded = false
		if len(s.Countries) > 0 || len(s.Products) > 0 {
			return nil
		}
		insert(s, c)
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		logger.Info("catalog seeded",
			"countries", len(c.Countries),
			"wilayas", len(c.Wilayas),
			"suppliers", len(c.Suppliers),
			"products", len(c.Products),
			"machines", len(c.Machines),
		)
	}
	return seeded, nil
}

func insert(s *store.State, c Catalog) {
	if s.Clock.CurrentTime.IsZero() && !c.Start.IsZero() {
		speed := c.SpeedDays
		if !speed.IsPositive() {
			speed = decimal.NewFromInt(1)
		}
		s.Clock = game.Clock{CurrentTime: c.Start.UTC(), SpeedDays: speed, UpdatedAt: c.Start.UTC()}
	}

	countries := map[string]int64{}
	for _, x := range c.Countries {
		id := s.NextID()
		countries[x.Key] = id
		s.Countries[id] = game.Country{
			ID:            id,
			Name:          x.Name,
			CustomsRate:   x.CustomsRate,
			ImportAllowed: !x.Banned,
			Local:         x.Local,
		}
	}

	wilayas := map[string]int64{}
	for _, x := range c.Wilayas {
		id := s.NextID()
		wilayas[x.Key] = id
		s.Wilayas[id] = game.Wilaya{
			ID:               id,
			Name:             x.Name,
			MinShippingCost:  x.ShippingCost.Min,
			AvgShippingCost:  x.ShippingCost.Avg,
			MaxShippingCost:  x.ShippingCost.Max,
			RealShippingCost: x.ShippingCost.Avg,
			MinShippingDays:  x.ShippingDays.Min,
			AvgShippingDays:  x.ShippingDays.Avg,
			MaxShippingDays:  x.ShippingDays.Max,
			RealShippingDays: x.ShippingDays.Avg,
		}
	}

	for _, x := range c.Profiles {
		s.Profiles[x.Name] = game.Profile{Name: x.Name, MinSalary: x.Salary.Min, MaxSalary: x.Salary.Max}
	}

	// Products first pass allocates IDs so inputs can refer to later entries.
	products := map[string]int64{}
	for _, x := range c.Products {
		products[x.Key] = s.NextID()
	}
	for _, x := range c.Products {
		p := game.Product{
			ID:            products[x.Key],
			Name:          x.Name,
			Kind:          game.ProductKind(x.Kind),
			StorageCost:   x.StorageCost,
			HasExpiration: x.ShelfLifeDays > 0,
			ShelfLifeDays: x.ShelfLifeDays,
		}
		for _, in := range x.Inputs {
			p.Inputs = append(p.Inputs, game.ProductInput{ProductID: products[in.Product], Quantity: in.Quantity})
		}
		s.Products[p.ID] = p
	}

	for _, x := range c.Suppliers {
		id := s.NextID()
		s.Suppliers[id] = game.Supplier{
			ID:               id,
			Name:             x.Name,
			CountryID:        countries[x.Country],
			Available:        !x.Closed,
			MinOrderQuantity: x.MinOrderQuantity,
			MinShippingCost:  x.ShippingCost.Min,
			AvgShippingCost:  x.ShippingCost.Avg,
			MaxShippingCost:  x.ShippingCost.Max,
			RealShippingCost: x.ShippingCost.Avg,
			MinShippingDays:  x.ShippingDays.Min,
			AvgShippingDays:  x.ShippingDays.Avg,
			MaxShippingDays:  x.ShippingDays.Max,
			RealShippingDays: x.ShippingDays.Avg,
		}
		for _, stock := range x.Products {
			spID := s.NextID()
			s.SupplierProducts[spID] = game.SupplierProduct{
				ID:         spID,
				SupplierID: id,
				ProductID:  products[stock.Product],
				MinPrice:   stock.Price.Min,
				AvgPrice:   stock.Price.Avg,
				MaxPrice:   stock.Price.Max,
				RealPrice:  stock.Price.Avg,
			}
		}
	}

	for _, x := range c.Demands {
		id := s.NextID()
		s.Demands[id] = game.ProductDemand{
			ID:            id,
			ProductID:     products[x.Product],
			WilayaID:      wilayas[x.Wilaya],
			MinQuantity:   x.Quantity.Min,
			MaxQuantity:   x.Quantity.Max,
			MinPrice:      x.Price.Min,
			AvgPrice:      x.Price.Avg,
			MaxPrice:      x.Price.Max,
			TimelimitDays: x.TimelimitDays,
		}
	}

	for _, x := range c.Machines {
		id := s.NextID()
		m := game.Machine{
			ID:                   id,
			Name:                 x.Name,
			Price:                x.Price,
			OperationCostWeek:    x.OperationCostWeek,
			ReliabilityDecayDays: x.ReliabilityDecayDays,
			DepreciationRateDay:  x.DepreciationRateDay,
			MaintenanceCost:      x.MaintenanceCost,
			MaintenanceDays:      x.MaintenanceDays,
			ProductID:            products[x.Product],
			UnitsPerDay:          x.UnitsPerDay,
			CarbonPerUnit:        x.CarbonPerUnit,
		}
		for _, r := range x.Requirements {
			m.Requirements = append(m.Requirements, game.MachineRequirement{Profile: r.Profile, Count: r.Count})
		}
		s.Machines[id] = m
	}

	for _, x := range c.Banks {
		id := s.NextID()
		s.Banks[id] = game.Bank{ID: id, Name: x.Name, AnnualRate: x.AnnualRate, MaxAmount: x.MaxAmount, DurationMonths: x.DurationMonths}
	}
	for _, x := range c.Technologies {
		id := s.NextID()
		s.Technologies[id] = game.Technology{ID: id, Name: x.Name, Level: x.Level, Cost: x.Cost, ResearchDays: x.ResearchDays}
	}
	for _, x := range c.AdPackages {
		id := s.NextID()
		s.AdPackages[id] = game.AdPackage{ID: id, Name: x.Name, Price: x.Price, DurationDays: x.DurationDays, DemandBoost: x.DemandBoost}
	}
}
