package sim

import (
	"context"
	"fmt"
	"strconv"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

// BreakdownThreshold is the reliability under which a breakdown event takes a
// machine out.
const BreakdownThreshold = 0.5

// settleReliability applies wear for the time an active machine ran since the
// last update. A machine loses all reliability over ReliabilityDecayDays.
func (t *tx) settleReliability(cm *game.CompanyMachine, m game.Machine) {
	if cm.Status == game.MachineActive && m.ReliabilityDecayDays > 0 {
		days := game.ElapsedDays(cm.ReliabilityUpdatedAt, t.now)
		cm.Reliability = game.ClampFloat(cm.Reliability-days/m.ReliabilityDecayDays, 0, 1)
	}
	if t.now.After(cm.ReliabilityUpdatedAt) {
		cm.ReliabilityUpdatedAt = t.now
	}
}

func (e *Engine) ProcessMachinesReliability(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, cm := range t.st.MachinesOf(c.ID) {
			t.settleReliability(&cm, t.st.Machines[cm.MachineID])
			t.st.CompanyMachines[cm.ID] = cm
		}
		return nil
	})
}

// ValidateMaintenance rejects machines already in maintenance, broken beyond
// repair (no book value left) or busy producing.
func ValidateMaintenance(st *store.State, cm game.CompanyMachine) error {
	switch cm.Status {
	case game.MachineMaintenance:
		return game.Invalid("status", "machine %d is already under maintenance", cm.ID)
	case game.MachineBroken:
		if !cm.Value.IsPositive() {
			return game.Invalid("status", "machine %d is broken beyond repair", cm.ID)
		}
	}
	for _, o := range st.ProductionOrders {
		if o.MachineID == cm.ID && o.Status == game.ProductionInProgress {
			return game.Invalid("status", "machine %d has production in progress", cm.ID)
		}
	}
	return nil
}

// StartMaintenance pays for and starts servicing a machine. Broken machines
// are repaired the same way.
func (e *Engine) StartMaintenance(ctx context.Context, companyID, companyMachineID int64) (game.Maintenance, error) {
	var out game.Maintenance
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		cm, m, err := t.companyMachine(c, companyMachineID)
		if err != nil {
			return err
		}
		if err := ValidateMaintenance(t.st, cm); err != nil {
			return err
		}
		span, err := game.DaysWithin("machine", m.MaintenanceDays)
		if err != nil {
			return err
		}
		if err := t.requireFunds(c, m.MaintenanceCost); err != nil {
			return err
		}
		t.settleReliability(&cm, m)
		cm.Status = game.MachineMaintenance
		t.st.CompanyMachines[cm.ID] = cm

		out = game.Maintenance{
			ID:          t.st.NextID(),
			CompanyID:   c.ID,
			MachineID:   cm.ID,
			Cost:        m.MaintenanceCost,
			StartedAt:   t.now,
			CompletesAt: t.now.Add(span),
			Status:      game.MaintenanceInProgress,
		}
		t.st.Maintenances[out.ID] = out
		t.debit(c.ID, m.MaintenanceCost, TxnMaintenance, machineRef(cm.ID))
		return nil
	})
	return out, err
}

// CompleteMaintenance returns serviced machines to work at full reliability.
func (e *Engine) CompleteMaintenance(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, mt := range t.st.MaintenancesOf(c.ID) {
			if mt.Status != game.MaintenanceInProgress || mt.CompletesAt.After(t.now) {
				continue
			}
			mt.Status = game.MaintenanceCompleted
			t.st.Maintenances[mt.ID] = mt

			cm, ok := t.st.CompanyMachines[mt.MachineID]
			if !ok {
				continue
			}
			cm.Status = game.MachineActive
			cm.Reliability = 1
			cm.ReliabilityUpdatedAt = t.now
			t.st.CompanyMachines[cm.ID] = cm
			t.notifyCompany(c, "maintenance.completed", fmt.Sprintf("maintenance.completed:%d", mt.ID), map[string]string{
				"machine_id": strconv.FormatInt(cm.ID, 10),
			})
		}
		return nil
	})
}

// BreakDownMachines breaks every active machine whose reliability is below
// threshold and cancels its running order. It returns the broken machine IDs.
func (e *Engine) BreakDownMachines(ctx context.Context, companyID int64, threshold float64, ref string) ([]int64, error) {
	var broken []int64
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, cm := range t.st.MachinesOf(c.ID) {
			if cm.Status != game.MachineActive {
				continue
			}
			t.settleReliability(&cm, t.st.Machines[cm.MachineID])
			t.st.CompanyMachines[cm.ID] = cm
			if cm.Reliability >= threshold {
				continue
			}
			cm.Status = game.MachineBroken
			t.st.CompanyMachines[cm.ID] = cm
			for _, o := range t.st.ProductionOrdersOf(c.ID) {
				if o.MachineID == cm.ID && o.Status == game.ProductionInProgress {
					now := t.now
					o.Status = game.ProductionCancelled
					o.FinishedAt = &now
					t.st.ProductionOrders[o.ID] = o
				}
			}
			broken = append(broken, cm.ID)
			t.notifyCompany(c, "machine.broken", fmt.Sprintf("machine.broken:%d:%s", cm.ID, ref), map[string]string{
				"machine_id": strconv.FormatInt(cm.ID, 10),
			})
		}
		return nil
	})
	return broken, err
}
