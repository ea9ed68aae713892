package scheduler

import (
	"context"
	"fmt"

	"tycoon/internal/sim"
	"tycoon/internal/worldevent"
)

type Scope string

const (
	ScopeCompany Scope = "company"
	ScopeSystem  Scope = "system"
)

type Cadence string

const (
	EveryTick Cadence = "tick"
	Weekly    Cadence = "weekly"
	Monthly   Cadence = "monthly"
)

// TaskDef declares one scheduled task. Run receives the company ID for
// company-scoped tasks and zero for system tasks.
type TaskDef struct {
	Name    string
	Scope   Scope
	Cadence Cadence
	Run     func(ctx context.Context, companyID int64) error
}

// Registry keeps task definitions in registration order, which is also the
// order tasks are enqueued within a tick.
type Registry struct {
	defs   []TaskDef
	byName map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]int{}}
}

func (r *Registry) Register(def TaskDef) error {
	if def.Name == "" || def.Run == nil {
		return fmt.Errorf("task definition needs a name and a run function")
	}
	switch def.Scope {
	case ScopeCompany, ScopeSystem:
	default:
		return fmt.Errorf("task %s: unknown scope %q", def.Name, def.Scope)
	}
	switch def.Cadence {
	case EveryTick, Weekly, Monthly:
	default:
		return fmt.Errorf("task %s: unknown cadence %q", def.Name, def.Cadence)
	}
	if _, ok := r.byName[def.Name]; ok {
		return fmt.Errorf("task %s registered twice", def.Name)
	}
	r.byName[def.Name] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

func (r *Registry) MustRegister(defs ...TaskDef) {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(name string) (TaskDef, bool) {
	i, ok := r.byName[name]
	if !ok {
		return TaskDef{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Defs() []TaskDef {
	return append([]TaskDef(nil), r.defs...)
}

func company(name string, cadence Cadence, run func(ctx context.Context, companyID int64) error) TaskDef {
	return TaskDef{Name: name, Scope: ScopeCompany, Cadence: cadence, Run: run}
}

func system(name string, cadence Cadence, run func(ctx context.Context) error) TaskDef {
	return TaskDef{Name: name, Scope: ScopeSystem, Cadence: cadence, Run: func(ctx context.Context, _ int64) error {
		return run(ctx)
	}}
}

func discardCount(fn func(ctx context.Context) (int, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}

// DefaultRegistry wires the game's periodic work.
func DefaultRegistry(e *sim.Engine, events *worldevent.Service) *Registry {
	r := NewRegistry()
	r.MustRegister(
		company("research.complete", EveryTick, e.ProcessCompletedResearch),
		company("purchases.deliver", EveryTick, e.ProcessDeliveredPurchases),
		company("sales.process", EveryTick, e.ProcessSales),
		company("employees.expire_applications", EveryTick, e.ExpireApplications),
		company("employees.mood", EveryTick, e.ProcessEmployeesMood),
		company("production.complete", EveryTick, e.CompleteProduction),
		company("machines.reliability", EveryTick, e.ProcessMachinesReliability),
		company("machines.depreciate", EveryTick, e.CalculateMachinesValue),
		company("maintenance.complete", EveryTick, e.CompleteMaintenance),
		company("ads.complete", EveryTick, e.CompleteAds),
		company("inventory.expire", EveryTick, e.ExpireInventory),
		system("world_events.expire", EveryTick, discardCount(events.ExpireDue)),

		company("inventory.pay_costs", Weekly, e.PayInventoryCosts),
		company("machines.pay_operation_costs", Weekly, e.PayMachineOperationCost),
		company("sales.generate_demand", Weekly, e.GenerateWeeklyDemand),
		company("employees.generate_applications", Weekly, e.GenerateApplications),

		company("salaries.pay", Monthly, e.PaySalaries),
		company("loans.pay", Monthly, e.PayLoans),
		system("suppliers.refresh_prices", Monthly, e.RefreshAllSuppliers),
		system("wilayas.refresh_shipping", Monthly, e.RefreshAllWilayas),
	)
	return r
}
