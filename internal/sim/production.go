package sim

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

func machineRef(id int64) string { return "machine:" + strconv.FormatInt(id, 10) }

func (t *tx) companyMachine(c game.Company, id int64) (game.CompanyMachine, game.Machine, error) {
	cm, ok := t.st.CompanyMachines[id]
	if !ok || cm.CompanyID != c.ID {
		return cm, game.Machine{}, game.NotFound("company machine", id)
	}
	m, ok := t.st.Machines[cm.MachineID]
	if !ok {
		return cm, m, game.NotFound("machine", cm.MachineID)
	}
	return cm, m, nil
}

// BuyMachine purchases a machine from the catalog. It starts active with full
// reliability and its price as book value.
func (e *Engine) BuyMachine(ctx context.Context, companyID, machineID int64) (game.CompanyMachine, error) {
	var out game.CompanyMachine
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		m, ok := t.st.Machines[machineID]
		if !ok {
			return game.NotFound("machine", machineID)
		}
		if err := t.requireFunds(c, m.Price); err != nil {
			return err
		}
		out = game.CompanyMachine{
			ID:                   t.st.NextID(),
			CompanyID:            c.ID,
			MachineID:            m.ID,
			Status:               game.MachineActive,
			Reliability:          1,
			Value:                m.Price,
			ReliabilityUpdatedAt: t.now,
			ValuedAt:             t.now,
			PurchasedAt:          t.now,
		}
		t.st.CompanyMachines[out.ID] = out
		t.debit(c.ID, m.Price, TxnMachinePurchase, machineRef(out.ID))
		return nil
	})
	return out, err
}

// SetMachineActive switches a machine between active and inactive. Inactive
// machines are not billed for operation.
func (e *Engine) SetMachineActive(ctx context.Context, companyID, companyMachineID int64, active bool) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		cm, _, err := t.companyMachine(c, companyMachineID)
		if err != nil {
			return err
		}
		if cm.Status != game.MachineActive && cm.Status != game.MachineInactive {
			return game.Invalid("status", "machine %d is %s", cm.ID, cm.Status)
		}
		if !active && t.busy(cm.ID) {
			return game.Invalid("status", "machine %d has production in progress", cm.ID)
		}
		t.settleReliability(&cm, t.st.Machines[cm.MachineID])
		cm.Status = game.MachineInactive
		if active {
			cm.Status = game.MachineActive
		}
		t.st.CompanyMachines[cm.ID] = cm
		return nil
	})
}

// AssignEmployee puts an active employee on a machine. machineID zero
// unassigns.
func (e *Engine) AssignEmployee(ctx context.Context, companyID, employeeID, companyMachineID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		emp, err := t.employee(c, employeeID)
		if err != nil {
			return err
		}
		if emp.Status != game.EmployeeActive {
			return game.Invalid("status", "employee %d is %s", emp.ID, emp.Status)
		}
		if companyMachineID != 0 {
			if _, _, err := t.companyMachine(c, companyMachineID); err != nil {
				return err
			}
		}
		emp.MachineID = companyMachineID
		t.st.Employees[emp.ID] = emp
		return nil
	})
}

func crewOf(st *store.State, cm game.CompanyMachine) []game.Employee {
	var crew []game.Employee
	for _, emp := range st.EmployeesOf(cm.CompanyID) {
		if emp.Status == game.EmployeeActive && emp.MachineID == cm.ID {
			crew = append(crew, emp)
		}
	}
	return crew
}

// ValidateAssignment checks that the machine's crew covers every required
// profile headcount.
func ValidateAssignment(st *store.State, cm game.CompanyMachine) error {
	m, ok := st.Machines[cm.MachineID]
	if !ok {
		return game.NotFound("machine", cm.MachineID)
	}
	crew := crewOf(st, cm)
	for _, req := range m.Requirements {
		have := 0
		for _, emp := range crew {
			if emp.Profile == req.Profile {
				have++
			}
		}
		if have < req.Count {
			return game.Invalid("crew", "machine %d needs %d %s, has %d", cm.ID, req.Count, req.Profile, have)
		}
	}
	return nil
}

func (t *tx) busy(companyMachineID int64) bool {
	for _, o := range t.st.ProductionOrders {
		if o.MachineID == companyMachineID && o.Status == game.ProductionInProgress {
			return true
		}
	}
	return false
}

// crewEfficiency averages effective efficiency weighted by mood. A machine
// without crew requirements runs at one.
func crewEfficiency(st *store.State, crew []game.Employee) float64 {
	if len(crew) == 0 {
		return 1
	}
	var sum float64
	for _, emp := range crew {
		sum += EffectiveEfficiency(st, emp) * (0.5 + 0.5*emp.Mood)
	}
	return sum / float64(len(crew))
}

// StartProduction consumes the inputs for qty units and schedules their
// completion. Efficiency and quality are fixed for the life of the order.
func (e *Engine) StartProduction(ctx context.Context, companyID, companyMachineID int64, qty decimal.Decimal) (game.ProductionOrder, error) {
	var out game.ProductionOrder
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		cm, m, err := t.companyMachine(c, companyMachineID)
		if err != nil {
			return err
		}
		if cm.Status != game.MachineActive {
			return game.Invalid("status", "machine %d is %s", cm.ID, cm.Status)
		}
		if t.busy(cm.ID) {
			return game.Invalid("machine", "machine %d already has production in progress", cm.ID)
		}
		if !qty.IsPositive() {
			return game.Invalid("quantity", "must be positive")
		}
		if !m.UnitsPerDay.IsPositive() {
			return game.Invalid("machine", "machine %s has no throughput", m.Name)
		}
		if err := ValidateAssignment(t.st, cm); err != nil {
			return err
		}
		product, ok := t.st.Products[m.ProductID]
		if !ok {
			return game.NotFound("product", m.ProductID)
		}
		for _, in := range product.Inputs {
			need := game.RoundQuantity(in.Quantity.Mul(qty))
			if have := t.availableStock(c.ID, in.ProductID); have.LessThan(need) {
				return game.Invalid("inputs", "need %s of product %d, have %s", need, in.ProductID, have)
			}
		}

		t.settleReliability(&cm, m)
		t.st.CompanyMachines[cm.ID] = cm
		eff := crewEfficiency(t.st, crewOf(t.st, cm))
		if eff <= 0 {
			return game.Invalid("crew", "machine %d crew has no efficiency", cm.ID)
		}
		quality := game.ClampFloat(0.6+0.4*cm.Reliability+0.02*float64(c.ResearchLevel), 0, 1)
		span, err := game.DaysWithin("quantity", qty.Div(m.UnitsPerDay.Mul(decimal.NewFromFloat(eff))))
		if err != nil {
			return err
		}

		out = game.ProductionOrder{
			ID:               t.st.NextID(),
			CompanyID:        c.ID,
			MachineID:        cm.ID,
			ProductID:        product.ID,
			Quantity:         game.RoundQuantity(qty),
			QualityFactor:    decimal.NewFromFloat(quality).Round(4),
			EfficiencyFactor: decimal.NewFromFloat(eff).Round(4),
			StartedAt:        t.now,
			CompletesAt:      t.now.Add(span),
			Status:           game.ProductionInProgress,
		}
		t.st.ProductionOrders[out.ID] = out
		ref := fmt.Sprintf("production:%d", out.ID)
		for _, in := range product.Inputs {
			t.consumeStock(c.ID, in.ProductID, in.Quantity.Mul(qty), game.MovementOut, ref)
		}
		return nil
	})
	return out, err
}

// CompleteProduction finishes due orders, books quantity x quality into stock
// and accrues the carbon footprint.
func (e *Engine) CompleteProduction(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, o := range t.st.ProductionOrdersOf(c.ID) {
			if o.Status != game.ProductionInProgress || o.CompletesAt.After(t.now) {
				continue
			}
			now := t.now
			o.Status = game.ProductionCompleted
			o.FinishedAt = &now
			t.st.ProductionOrders[o.ID] = o

			produced := game.RoundQuantity(o.Quantity.Mul(o.QualityFactor))
			ref := fmt.Sprintf("production:%d", o.ID)
			t.receiveStock(c.ID, o.ProductID, produced, ref)

			if cm, ok := t.st.CompanyMachines[o.MachineID]; ok {
				if m, ok := t.st.Machines[cm.MachineID]; ok {
					co := t.company(c.ID)
					co.CarbonFootprint = co.CarbonFootprint.Add(o.Quantity.Mul(m.CarbonPerUnit))
					t.putCompany(co)
				}
			}
			t.notifyCompany(c, "production.completed", "production.completed:"+strconv.FormatInt(o.ID, 10), map[string]string{
				"order_id": strconv.FormatInt(o.ID, 10),
				"produced": produced.String(),
			})
		}
		return nil
	})
}

// CalculateMachinesValue depreciates book value by the daily rate for the
// time elapsed since the last valuation.
func (e *Engine) CalculateMachinesValue(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, cm := range t.st.MachinesOf(c.ID) {
			m, ok := t.st.Machines[cm.MachineID]
			if !ok {
				continue
			}
			days := game.ElapsedDays(cm.ValuedAt, t.now)
			if days <= 0 {
				continue
			}
			keep := math.Pow(1-game.ClampFloat(m.DepreciationRateDay.InexactFloat64(), 0, 1), days)
			cm.Value = game.MaxDecimal(decimal.Zero, game.RoundMoney(cm.Value.Mul(decimal.NewFromFloat(keep))))
			cm.ValuedAt = t.now
			t.st.CompanyMachines[cm.ID] = cm
		}
		return nil
	})
}

// PayMachineOperationCost bills the weekly operating cost of active machines.
func (e *Engine) PayMachineOperationCost(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		week := game.WeekKey(t.now)
		if !t.claimPeriod(c.ID, "machines.pay_operation_costs", week) {
			return nil
		}
		for _, cm := range t.st.MachinesOf(c.ID) {
			if cm.Status != game.MachineActive {
				continue
			}
			if m, ok := t.st.Machines[cm.MachineID]; ok {
				t.debit(c.ID, m.OperationCostWeek, TxnMachineOperation, machineRef(cm.ID)+":"+week)
			}
		}
		return nil
	})
}
