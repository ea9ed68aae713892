// Package worldevent applies and reverses world events.
//
// An event is recorded together with the modifiers it owns. Effective values
// are computed from base values and the active modifiers, so reversing an
// event only removes its modifiers. Damage and breakdowns are applied to
// company state directly and stay applied after reversal.
package worldevent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tycoon/internal/game"
	"tycoon/internal/notify"
	"tycoon/internal/sim"
	"tycoon/internal/store"
)

type Kind string

const (
	CanalClosure      Kind = "canal_closure"
	OilPriceRise      Kind = "oil_price_rise"
	HeatWave          Kind = "heat_wave"
	Strike            Kind = "strike"
	CustomsChange     Kind = "customs_change"
	ImportBan         Kind = "import_ban"
	InventoryDamage   Kind = "inventory_damage"
	MachineBreakdown  Kind = "machine_breakdown"
	SupplierPriceRise Kind = "supplier_price_rise"
)

var Kinds = []Kind{
	CanalClosure, OilPriceRise, HeatWave, Strike, CustomsChange,
	ImportBan, InventoryDamage, MachineBreakdown, SupplierPriceRise,
}

// Spec describes an event to apply. Empty target lists mean "all" where the
// kind allows it.
type Spec struct {
	Kind       Kind       `json:"kind"`
	Rate       string     `json:"rate"`
	CountryIDs []int64    `json:"country_ids,omitempty"`
	ProductIDs []int64    `json:"product_ids,omitempty"`
	CompanyIDs []int64    `json:"company_ids,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	// Threshold is the reliability under which machine_breakdown breaks a
	// machine. Zero means sim.BreakdownThreshold.
	Threshold float64 `json:"threshold,omitempty"`
}

type Service struct {
	engine  *sim.Engine
	store   *store.Store
	log     *slog.Logger
	workers int
}

func New(engine *sim.Engine, logger *slog.Logger, workers int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Service{engine: engine, store: engine.Store(), log: logger, workers: workers}
}

func (s Spec) validate() (decimal.Decimal, error) {
	if !slices.Contains(Kinds, s.Kind) {
		return decimal.Zero, game.Invalid("kind", "unknown event kind %q", s.Kind)
	}
	rate := decimal.Zero
	if s.Kind != ImportBan && s.Kind != MachineBreakdown {
		r, err := decimal.NewFromString(strings.TrimSpace(s.Rate))
		if err != nil {
			return decimal.Zero, game.Invalid("rate", "invalid decimal %q", s.Rate)
		}
		rate = r
	}
	switch s.Kind {
	case HeatWave, Strike, InventoryDamage:
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return rate, game.Invalid("rate", "must be within [0, 1]")
		}
	case CanalClosure, OilPriceRise, CustomsChange, SupplierPriceRise:
		if !rate.IsPositive() {
			return rate, game.Invalid("rate", "must be positive")
		}
	}
	switch s.Kind {
	case CanalClosure, CustomsChange, ImportBan:
		if len(s.CountryIDs) == 0 {
			return rate, game.Invalid("country_ids", "%s needs at least one country", s.Kind)
		}
	case Strike:
		if len(s.CompanyIDs) == 0 {
			return rate, game.Invalid("company_ids", "strike needs at least one company")
		}
	case InventoryDamage:
		if len(s.ProductIDs) == 0 {
			return rate, game.Invalid("product_ids", "inventory_damage needs at least one product")
		}
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		return rate, game.Invalid("threshold", "must be within [0, 1]")
	}
	return rate, nil
}

// Apply records the event and its modifiers, broadcasts it, and then runs the
// destructive part, if any, for each affected company under its own lock.
func (s *Service) Apply(ctx context.Context, spec Spec) (game.WorldEvent, error) {
	rate, err := spec.validate()
	if err != nil {
		return game.WorldEvent{}, err
	}
	var (
		ev        game.WorldEvent
		companies []int64
	)
	err = s.store.Update(ctx, func(st *store.State) error {
		now := st.Clock.CurrentTime
		if spec.ExpiresAt != nil && !spec.ExpiresAt.After(now) {
			return game.Invalid("expires_at", "must be after the current game time")
		}
		for _, id := range spec.CountryIDs {
			if _, ok := st.Countries[id]; !ok {
				return game.NotFound("country", id)
			}
		}
		for _, id := range spec.ProductIDs {
			if _, ok := st.Products[id]; !ok {
				return game.NotFound("product", id)
			}
		}
		for _, id := range spec.CompanyIDs {
			if _, ok := st.Companies[id]; !ok {
				return game.NotFound("company", id)
			}
		}

		ev = game.WorldEvent{
			ID:         st.NextID(),
			Kind:       string(spec.Kind),
			Rate:       rate,
			CountryIDs: slices.Clone(spec.CountryIDs),
			ProductIDs: slices.Clone(spec.ProductIDs),
			CompanyIDs: slices.Clone(spec.CompanyIDs),
			AppliedAt:  now,
			ExpiresAt:  spec.ExpiresAt,
		}
		mods := plan(st, spec, rate)
		for _, m := range mods {
			m.ID = st.NextID()
			m.EventID = ev.ID
			st.Modifiers[m.ID] = m
		}
		ev.Active = len(mods) > 0
		ev.Summary = summarize(spec, rate, len(mods))
		st.WorldEvents[ev.ID] = ev

		companies = spec.CompanyIDs
		if len(companies) == 0 {
			companies = st.CompanyIDs()
		}

		n := notify.Broadcast("world_event.applied", "world_event.applied:"+strconv.FormatInt(ev.ID, 10), map[string]string{
			"event_id": strconv.FormatInt(ev.ID, 10),
			"kind":     ev.Kind,
			"rate":     rate.String(),
			"summary":  ev.Summary,
		})
		n.CreatedAt = now
		st.Notify(n)
		return nil
	})
	if err != nil {
		return game.WorldEvent{}, err
	}
	s.log.Info("world event applied", "event_id", ev.ID, "kind", ev.Kind, "rate", rate.String(), "summary", ev.Summary)

	if err := s.fanOut(ctx, ev, spec, rate, companies); err != nil {
		return ev, fmt.Errorf("apply %s to companies: %w", ev.Kind, err)
	}
	return ev, nil
}

func (s *Service) fanOut(ctx context.Context, ev game.WorldEvent, spec Spec, rate decimal.Decimal, companies []int64) error {
	var run func(ctx context.Context, companyID int64) error
	ref := "event:" + strconv.FormatInt(ev.ID, 10)
	switch spec.Kind {
	case HeatWave:
		run = func(ctx context.Context, companyID int64) error {
			_, err := s.engine.DamageInventory(ctx, companyID, sim.DamageFilter{PerishableOnly: true}, rate, ref)
			return err
		}
	case InventoryDamage:
		run = func(ctx context.Context, companyID int64) error {
			_, err := s.engine.DamageInventory(ctx, companyID, sim.DamageFilter{ProductIDs: spec.ProductIDs}, rate, ref)
			return err
		}
	case MachineBreakdown:
		threshold := spec.Threshold
		if threshold == 0 {
			threshold = sim.BreakdownThreshold
		}
		run = func(ctx context.Context, companyID int64) error {
			_, err := s.engine.BreakDownMachines(ctx, companyID, threshold, ref)
			return err
		}
	default:
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, companyID := range companies {
		g.Go(func() error {
			err := run(gctx, companyID)
			if errors.Is(err, game.ErrNotFound) {
				s.log.Info("world event skipped company", "event_id", ev.ID, "company_id", companyID, "err", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("company %d: %w", companyID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

var one = decimal.NewFromInt(1)

// plan builds the modifiers for spec. The returned modifiers have no IDs yet.
func plan(st *store.State, spec Spec, rate decimal.Decimal) []game.Modifier {
	up, down := one.Add(rate), one.Sub(rate)
	var mods []game.Modifier
	add := func(kind game.TargetKind, id int64, field game.Field, factor decimal.Decimal) {
		mods = append(mods, game.Modifier{Target: game.Target{Kind: kind, ID: id}, Field: field, Factor: factor})
	}
	inCountries := func(countryID int64) bool {
		return len(spec.CountryIDs) == 0 || slices.Contains(spec.CountryIDs, countryID)
	}

	switch spec.Kind {
	case CanalClosure:
		for _, sup := range sortedValues(st.Suppliers) {
			if inCountries(sup.CountryID) {
				add(game.TargetSupplier, sup.ID, game.FieldShippingCost, up)
				add(game.TargetSupplier, sup.ID, game.FieldShippingTime, up)
			}
		}
	case OilPriceRise:
		for _, sup := range sortedValues(st.Suppliers) {
			add(game.TargetSupplier, sup.ID, game.FieldShippingCost, up)
		}
		for _, w := range sortedValues(st.Wilayas) {
			add(game.TargetWilaya, w.ID, game.FieldShippingCost, up)
		}
	case HeatWave:
		for _, id := range st.CompanyIDs() {
			add(game.TargetCompany, id, game.FieldEfficiency, down)
		}
	case Strike:
		for _, id := range spec.CompanyIDs {
			add(game.TargetCompany, id, game.FieldEfficiency, down)
		}
	case CustomsChange:
		for _, id := range spec.CountryIDs {
			add(game.TargetCountry, id, game.FieldCustomsRate, up)
		}
	case ImportBan:
		for _, id := range spec.CountryIDs {
			add(game.TargetCountry, id, game.FieldImportAllowed, decimal.Zero)
		}
	case SupplierPriceRise:
		for _, sp := range sortedValues(st.SupplierProducts) {
			if len(spec.ProductIDs) > 0 && !slices.Contains(spec.ProductIDs, sp.ProductID) {
				continue
			}
			if sup, ok := st.Suppliers[sp.SupplierID]; !ok || !inCountries(sup.CountryID) {
				continue
			}
			add(game.TargetSupplierProduct, sp.ID, game.FieldPrice, up)
		}
	}
	return mods
}

func sortedValues[T any](m map[int64]T) []T {
	out := make([]T, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[id])
	}
	return out
}

func summarize(spec Spec, rate decimal.Decimal, modifiers int) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(string(spec.Kind), "_", " "))
	if !rate.IsZero() {
		fmt.Fprintf(&b, " at %s%%", rate.Mul(decimal.NewFromInt(100)).StringFixed(1))
	}
	if len(spec.CountryIDs) > 0 {
		fmt.Fprintf(&b, ", countries %v", spec.CountryIDs)
	}
	if len(spec.ProductIDs) > 0 {
		fmt.Fprintf(&b, ", products %v", spec.ProductIDs)
	}
	if len(spec.CompanyIDs) > 0 {
		fmt.Fprintf(&b, ", companies %v", spec.CompanyIDs)
	}
	if modifiers > 0 {
		fmt.Fprintf(&b, ", %d adjustments", modifiers)
	}
	return b.String()
}

// Reverse deactivates an event and drops its modifiers. Reversing an inactive
// event is a no-op.
func (s *Service) Reverse(ctx context.Context, eventID int64) (game.WorldEvent, error) {
	var ev game.WorldEvent
	err := s.store.Update(ctx, func(st *store.State) error {
		var ok bool
		ev, ok = st.WorldEvents[eventID]
		if !ok {
			return game.NotFound("world event", eventID)
		}
		ev = reverse(st, ev)
		return nil
	})
	if err == nil {
		s.log.Info("world event reversed", "event_id", ev.ID, "kind", ev.Kind)
	}
	return ev, err
}

func reverse(st *store.State, ev game.WorldEvent) game.WorldEvent {
	if !ev.Active {
		return ev
	}
	for id, m := range st.Modifiers {
		if m.EventID == ev.ID {
			delete(st.Modifiers, id)
		}
	}
	now := st.Clock.CurrentTime
	ev.Active = false
	ev.ReversedAt = &now
	st.WorldEvents[ev.ID] = ev

	n := notify.Broadcast("world_event.reversed", "world_event.reversed:"+strconv.FormatInt(ev.ID, 10), map[string]string{
		"event_id": strconv.FormatInt(ev.ID, 10),
		"kind":     ev.Kind,
	})
	n.CreatedAt = now
	st.Notify(n)
	return ev
}

// ExpireDue reverses every active event whose expiry has passed and returns
// how many it reversed.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	var n int
	err := s.store.Update(ctx, func(st *store.State) error {
		n = 0
		now := st.Clock.CurrentTime
		for _, ev := range sortedValues(st.WorldEvents) {
			if !ev.Active || ev.ExpiresAt == nil || ev.ExpiresAt.After(now) {
				continue
			}
			reverse(st, ev)
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("world events expired", "count", n)
	}
	return n, nil
}

// List returns every recorded event, oldest first.
func (s *Service) List(ctx context.Context) ([]game.WorldEvent, error) {
	var out []game.WorldEvent
	err := s.store.View(ctx, func(st *store.State) error {
		out = sortedValues(st.WorldEvents)
		return nil
	})
	return out, err
}
