// Package seed loads the reference catalog (countries, wilayas, suppliers,
// products, machines, banks, technologies, ad packages and staff profiles)
// from YAML into the store.
package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Range is a min/avg/max triple. Avg may be omitted where only bounds matter.
type Range struct {
	Min decimal.Decimal `yaml:"min"`
	Avg decimal.Decimal `yaml:"avg"`
	Max decimal.Decimal `yaml:"max"`
}

func (r Range) validate(what string, needAvg bool) error {
	if r.Min.IsNegative() {
		return fmt.Errorf("%s: min must not be negative", what)
	}
	if r.Max.LessThan(r.Min) {
		return fmt.Errorf("%s: max %s below min %s", what, r.Max, r.Min)
	}
	if needAvg && (r.Avg.LessThan(r.Min) || r.Avg.GreaterThan(r.Max)) {
		return fmt.Errorf("%s: avg %s outside [%s, %s]", what, r.Avg, r.Min, r.Max)
	}
	return nil
}

type Catalog struct {
	Start     time.Time       `yaml:"start"`
	SpeedDays decimal.Decimal `yaml:"speed_days"`

	Countries    []Country    `yaml:"countries"`
	Wilayas      []Wilaya     `yaml:"wilayas"`
	Profiles     []Profile    `yaml:"profiles"`
	Products     []Product    `yaml:"products"`
	Suppliers    []Supplier   `yaml:"suppliers"`
	Demands      []Demand     `yaml:"demands"`
	Machines     []Machine    `yaml:"machines"`
	Banks        []Bank       `yaml:"banks"`
	Technologies []Technology `yaml:"technologies"`
	AdPackages   []AdPackage  `yaml:"ad_packages"`
}

type Country struct {
	Key         string          `yaml:"key"`
	Name        string          `yaml:"name"`
	CustomsRate decimal.Decimal `yaml:"customs_rate"`
	Local       bool            `yaml:"local"`
	Banned      bool            `yaml:"banned"`
}

type Wilaya struct {
	Key          string `yaml:"key"`
	Name         string `yaml:"name"`
	ShippingCost Range  `yaml:"shipping_cost"`
	ShippingDays Range  `yaml:"shipping_days"`
}

type Profile struct {
	Name   string `yaml:"name"`
	Salary Range  `yaml:"salary"`
}

type Input struct {
	Product  string          `yaml:"product"`
	Quantity decimal.Decimal `yaml:"quantity"`
}

type Product struct {
	Key           string          `yaml:"key"`
	Name          string          `yaml:"name"`
	Kind          string          `yaml:"kind"`
	StorageCost   decimal.Decimal `yaml:"storage_cost"`
	ShelfLifeDays int             `yaml:"shelf_life_days"`
	Inputs        []Input         `yaml:"inputs"`
}

type Stock struct {
	Product string `yaml:"product"`
	Price   Range  `yaml:"price"`
}

type Supplier struct {
	Key              string          `yaml:"key"`
	Name             string          `yaml:"name"`
	Country          string          `yaml:"country"`
	Closed           bool            `yaml:"closed"`
	MinOrderQuantity decimal.Decimal `yaml:"min_order_quantity"`
	ShippingCost     Range           `yaml:"shipping_cost"`
	ShippingDays     Range           `yaml:"shipping_days"`
	Products         []Stock         `yaml:"products"`
}

type Demand struct {
	Product       string `yaml:"product"`
	Wilaya        string `yaml:"wilaya"`
	Quantity      Range  `yaml:"quantity"`
	Price         Range  `yaml:"price"`
	TimelimitDays int    `yaml:"timelimit_days"`
}

type Requirement struct {
	Profile string `yaml:"profile"`
	Count   int    `yaml:"count"`
}

type Machine struct {
	Key                  string          `yaml:"key"`
	Name                 string          `yaml:"name"`
	Product              string          `yaml:"product"`
	Price                decimal.Decimal `yaml:"price"`
	OperationCostWeek    decimal.Decimal `yaml:"operation_cost_week"`
	ReliabilityDecayDays float64         `yaml:"reliability_decay_days"`
	DepreciationRateDay  decimal.Decimal `yaml:"depreciation_rate_day"`
	MaintenanceCost      decimal.Decimal `yaml:"maintenance_cost"`
	MaintenanceDays      decimal.Decimal `yaml:"maintenance_days"`
	UnitsPerDay          decimal.Decimal `yaml:"units_per_day"`
	CarbonPerUnit        decimal.Decimal `yaml:"carbon_per_unit"`
	Requirements         []Requirement   `yaml:"requirements"`
}

type Bank struct {
	Name           string          `yaml:"name"`
	AnnualRate     decimal.Decimal `yaml:"annual_rate"`
	MaxAmount      decimal.Decimal `yaml:"max_amount"`
	DurationMonths int             `yaml:"duration_months"`
}

type Technology struct {
	Name         string          `yaml:"name"`
	Level        int             `yaml:"level"`
	Cost         decimal.Decimal `yaml:"cost"`
	ResearchDays decimal.Decimal `yaml:"research_days"`
}

type AdPackage struct {
	Name         string          `yaml:"name"`
	Price        decimal.Decimal `yaml:"price"`
	DurationDays decimal.Decimal `yaml:"duration_days"`
	DemandBoost  decimal.Decimal `yaml:"demand_boost"`
}

// Parse decodes and validates a catalog. Unknown keys are rejected.
func Parse(raw []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Default returns the catalog built into the binary.
func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

func (c Catalog) Validate() error {
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	unique := func(kind string, keys []string) map[string]bool {
		seen := map[string]bool{}
		for _, k := range keys {
			if k == "" {
				errs = append(errs, fmt.Errorf("%s with empty key", kind))
				continue
			}
			if seen[k] {
				errs = append(errs, fmt.Errorf("%s %q defined twice", kind, k))
			}
			seen[k] = true
		}
		return seen
	}

	if c.SpeedDays.IsNegative() {
		errs = append(errs, errors.New("speed_days must not be negative"))
	}

	countries := unique("country", keysOf(c.Countries, func(x Country) string { return x.Key }))
	wilayas := unique("wilaya", keysOf(c.Wilayas, func(x Wilaya) string { return x.Key }))
	profiles := unique("profile", keysOf(c.Profiles, func(x Profile) string { return x.Name }))
	products := unique("product", keysOf(c.Products, func(x Product) string { return x.Key }))
	unique("supplier", keysOf(c.Suppliers, func(x Supplier) string { return x.Key }))
	unique("machine", keysOf(c.Machines, func(x Machine) string { return x.Key }))

	for _, w := range c.Wilayas {
		check(w.ShippingCost.validate("wilaya "+w.Key+" shipping_cost", true))
		check(w.ShippingDays.validate("wilaya "+w.Key+" shipping_days", true))
	}
	for _, p := range c.Profiles {
		check(p.Salary.validate("profile "+p.Name+" salary", false))
	}
	for _, p := range c.Products {
		if p.Kind != "raw" && p.Kind != "finished" {
			errs = append(errs, fmt.Errorf("product %s: kind must be raw or finished", p.Key))
		}
		if p.Kind == "finished" && len(p.Inputs) == 0 {
			errs = append(errs, fmt.Errorf("product %s: finished products need inputs", p.Key))
		}
		for _, in := range p.Inputs {
			if !products[in.Product] {
				errs = append(errs, fmt.Errorf("product %s: unknown input %q", p.Key, in.Product))
			}
			if !in.Quantity.IsPositive() {
				errs = append(errs, fmt.Errorf("product %s: input %s quantity must be positive", p.Key, in.Product))
			}
		}
	}
	for _, s := range c.Suppliers {
		if !countries[s.Country] {
			errs = append(errs, fmt.Errorf("supplier %s: unknown country %q", s.Key, s.Country))
		}
		check(s.ShippingCost.validate("supplier "+s.Key+" shipping_cost", true))
		check(s.ShippingDays.validate("supplier "+s.Key+" shipping_days", true))
		for _, st := range s.Products {
			if !products[st.Product] {
				errs = append(errs, fmt.Errorf("supplier %s: unknown product %q", s.Key, st.Product))
			}
			check(st.Price.validate("supplier "+s.Key+" "+st.Product+" price", true))
		}
	}
	for _, d := range c.Demands {
		if !products[d.Product] || !wilayas[d.Wilaya] {
			errs = append(errs, fmt.Errorf("demand %s/%s: unknown product or wilaya", d.Product, d.Wilaya))
		}
		check(d.Quantity.validate("demand "+d.Product+"/"+d.Wilaya+" quantity", false))
		check(d.Price.validate("demand "+d.Product+"/"+d.Wilaya+" price", true))
		if d.TimelimitDays <= 0 {
			errs = append(errs, fmt.Errorf("demand %s/%s: timelimit_days must be positive", d.Product, d.Wilaya))
		}
	}
	for _, m := range c.Machines {
		if !products[m.Product] {
			errs = append(errs, fmt.Errorf("machine %s: unknown product %q", m.Key, m.Product))
		}
		if !m.UnitsPerDay.IsPositive() || m.ReliabilityDecayDays <= 0 {
			errs = append(errs, fmt.Errorf("machine %s: units_per_day and reliability_decay_days must be positive", m.Key))
		}
		for _, r := range m.Requirements {
			if !profiles[r.Profile] || r.Count <= 0 {
				errs = append(errs, fmt.Errorf("machine %s: bad requirement %s x%d", m.Key, r.Profile, r.Count))
			}
		}
	}
	for _, b := range c.Banks {
		if b.DurationMonths <= 0 || !b.MaxAmount.IsPositive() {
			errs = append(errs, fmt.Errorf("bank %s: duration and max amount must be positive", b.Name))
		}
	}
	return errors.Join(errs...)
}

func keysOf[T any](items []T, key func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, key(it))
	}
	return out
}
