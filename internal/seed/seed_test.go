package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if len(c.Countries) == 0 || len(c.Machines) == 0 || len(c.Demands) == 0 {
		t.Fatalf("catalog looks empty: %+v", c)
	}
	if c.Start.IsZero() || !c.SpeedDays.IsPositive() {
		t.Fatalf("start=%s speed=%s", c.Start, c.SpeedDays)
	}
}

func TestApplySeedsOnceWithResolvedReferences(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(nil, nil)
	ctx := context.Background()
	seeded, err := Apply(ctx, st, c, nil)
	if err != nil || !seeded {
		t.Fatalf("first apply seeded=%v err=%v", seeded, err)
	}
	seeded, err = Apply(ctx, st, c, nil)
	if err != nil || seeded {
		t.Fatalf("second apply seeded=%v err=%v", seeded, err)
	}

	err = st.View(ctx, func(s *store.State) error {
		if len(s.Countries) != len(c.Countries) || len(s.Machines) != len(c.Machines) {
			t.Fatalf("countries=%d machines=%d", len(s.Countries), len(s.Machines))
		}
		if !s.Clock.CurrentTime.Equal(c.Start) || s.Clock.Running {
			t.Fatalf("clock = %+v", s.Clock)
		}
		for _, p := range s.Products {
			for _, in := range p.Inputs {
				if _, ok := s.Products[in.ProductID]; !ok {
					t.Fatalf("product %s has dangling input %d", p.Name, in.ProductID)
				}
			}
			if p.Name == "Raw milk" && (!p.HasExpiration || p.ShelfLifeDays != 5) {
				t.Fatalf("milk = %+v", p)
			}
		}
		for _, sp := range s.SupplierProducts {
			if _, ok := s.Suppliers[sp.SupplierID]; !ok {
				t.Fatalf("supplier product %d has no supplier", sp.ID)
			}
			if !sp.RealPrice.Equal(sp.AvgPrice) {
				t.Fatalf("real price should start at avg: %+v", sp)
			}
		}
		for _, m := range s.Machines {
			if s.Products[m.ProductID].Kind != game.ProductFinished {
				t.Fatalf("machine %s makes a raw product", m.Name)
			}
		}
		local := 0
		for _, country := range s.Countries {
			if country.Local {
				local++
			}
		}
		if local != 1 {
			t.Fatalf("local countries = %d", local)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "countries:\n  - {key: dz, name: Algeria, tarif: 3}\n",
			want: "tarif",
		},
		{
			name: "dangling supplier country",
			yaml: "products:\n  - {key: cotton, name: Cotton, kind: raw}\nsuppliers:\n  - key: s\n    name: S\n    country: xx\n    shipping_cost: {min: 1, avg: 2, max: 3}\n    shipping_days: {min: 1, avg: 2, max: 3}\n",
			want: "unknown country",
		},
		{
			name: "avg outside range",
			yaml: "wilayas:\n  - key: alger\n    name: Alger\n    shipping_cost: {min: 10, avg: 50, max: 30}\n    shipping_days: {min: 1, avg: 2, max: 3}\n",
			want: "outside",
		},
		{
			name: "finished without inputs",
			yaml: "products:\n  - {key: shirt, name: Shirt, kind: finished}\n",
			want: "need inputs",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := "countries:\n  - {key: dz, name: Algeria, local: true}\nbanks:\n  - {name: BNA, annual_rate: 0.05, max_amount: 1000, duration_months: 12}\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Banks) != 1 || c.Banks[0].AnnualRate.String() != "0.05" {
		t.Fatalf("banks = %+v", c.Banks)
	}
}
