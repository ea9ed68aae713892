package sim

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
)

var applicantNames = []string{
	"Amina", "Yacine", "Sara", "Karim", "Lina", "Walid", "Nour", "Rayan",
	"Imane", "Sofiane", "Meriem", "Anis", "Ines", "Bilal", "Selma", "Hamza",
}

// GenerateApplications adds a few applicants per profile for the week.
func (e *Engine) GenerateApplications(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		if !t.claimPeriod(c.ID, "employees.generate_applications", game.WeekKey(t.now)) {
			return nil
		}
		for _, name := range sortedProfileNames(t) {
			if err := t.generateApplicants(c, t.st.Profiles[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

func sortedProfileNames(t *tx) []string {
	return slices.Sorted(maps.Keys(t.st.Profiles))
}

func (t *tx) generateApplicants(c game.Company, p game.Profile) error {
	n, err := t.rng.IntBetween(0, 2)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		salary, err := t.rng.Uniform(p.MinSalary, p.MaxSalary, 0)
		if err != nil {
			return fmt.Errorf("profile %s salary: %w", p.Name, err)
		}
		efficiency, _ := t.rng.UniformBetween(0.6, 1.0)
		mood, _ := t.rng.UniformBetween(0.7, 1.0)
		decay, _ := t.rng.UniformBetween(0.002, 0.01)
		window, _ := t.rng.IntBetween(3, 10)
		first, _ := t.rng.IntBetween(0, len(applicantNames)-1)

		id := t.st.NextID()
		t.st.Employees[id] = game.Employee{
			ID:              id,
			CompanyID:       c.ID,
			Name:            applicantNames[first],
			Profile:         p.Name,
			Status:          game.EmployeeApplied,
			SalaryMonth:     salary,
			Efficiency:      efficiency,
			Mood:            mood,
			MoodDecayPerDay: decay,
			AppliedAt:       t.now,
			TimelimitDays:   window,
			MoodUpdatedAt:   t.now,
		}
	}
	return nil
}

func (t *tx) employee(c game.Company, id int64) (game.Employee, error) {
	emp, ok := t.st.Employees[id]
	if !ok || emp.CompanyID != c.ID {
		return game.Employee{}, game.NotFound("employee", id)
	}
	return emp, nil
}

func applicationExpiry(emp game.Employee) time.Time {
	return emp.AppliedAt.Add(time.Duration(emp.TimelimitDays) * game.Day)
}

// HireApplicant turns a pending applicant into an active employee.
func (e *Engine) HireApplicant(ctx context.Context, companyID, employeeID int64) (game.Employee, error) {
	var out game.Employee
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		emp, err := t.employee(c, employeeID)
		if err != nil {
			return err
		}
		if emp.Status != game.EmployeeApplied {
			return game.Invalid("status", "employee %d is %s", emp.ID, emp.Status)
		}
		if !t.now.Before(applicationExpiry(emp)) {
			return game.Invalid("application", "application %d has expired", emp.ID)
		}
		now := t.now
		emp.Status = game.EmployeeActive
		emp.HiredAt = &now
		emp.MoodUpdatedAt = now
		t.st.Employees[emp.ID] = emp
		out = emp
		return nil
	})
	return out, err
}

// FireEmployee ends an active employment.
func (e *Engine) FireEmployee(ctx context.Context, companyID, employeeID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		emp, err := t.employee(c, employeeID)
		if err != nil {
			return err
		}
		if emp.Status != game.EmployeeActive {
			return game.Invalid("status", "employee %d is %s", emp.ID, emp.Status)
		}
		t.endEmployment(emp, game.EmployeeFired)
		return nil
	})
}

func (t *tx) endEmployment(emp game.Employee, status game.EmployeeStatus) {
	now := t.now
	emp.Status = status
	emp.LeftAt = &now
	emp.MachineID = 0
	t.st.Employees[emp.ID] = emp
}

// ValidatePromotion requires an active employee and a salary that does not drop.
func ValidatePromotion(emp game.Employee, newSalary decimal.Decimal) error {
	if emp.Status != game.EmployeeActive {
		return game.Invalid("status", "employee %d is %s", emp.ID, emp.Status)
	}
	if newSalary.LessThan(emp.SalaryMonth) {
		return game.Invalid("salary", "new salary %s is below current %s", newSalary, emp.SalaryMonth)
	}
	return nil
}

// PromoteEmployee raises a salary. A raise lifts mood by a tenth.
func (e *Engine) PromoteEmployee(ctx context.Context, companyID, employeeID int64, newSalary decimal.Decimal) (game.Employee, error) {
	var out game.Employee
	err := e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		emp, err := t.employee(c, employeeID)
		if err != nil {
			return err
		}
		if err := ValidatePromotion(emp, newSalary); err != nil {
			return err
		}
		t.settleMood(&emp)
		if newSalary.GreaterThan(emp.SalaryMonth) {
			emp.Mood = game.ClampFloat(emp.Mood+0.1, 0, 1)
		}
		emp.SalaryMonth = game.RoundMoney(newSalary)
		t.st.Employees[emp.ID] = emp
		out = emp
		return nil
	})
	return out, err
}

// ExpireApplications deletes applicants whose window has closed.
func (e *Engine) ExpireApplications(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, emp := range t.st.EmployeesOf(c.ID) {
			if emp.Status == game.EmployeeApplied && !t.now.Before(applicationExpiry(emp)) {
				delete(t.st.Employees, emp.ID)
			}
		}
		return nil
	})
}

// settleMood applies the decay accrued since the last update.
func (t *tx) settleMood(emp *game.Employee) {
	days := game.ElapsedDays(emp.MoodUpdatedAt, t.now)
	emp.Mood = game.ClampFloat(emp.Mood-emp.MoodDecayPerDay*days, 0, 1)
	if t.now.After(emp.MoodUpdatedAt) {
		emp.MoodUpdatedAt = t.now
	}
}

// ProcessEmployeesMood decays the mood of active staff. Anyone reaching zero
// resigns.
func (e *Engine) ProcessEmployeesMood(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		for _, emp := range t.st.EmployeesOf(c.ID) {
			if emp.Status != game.EmployeeActive {
				continue
			}
			t.settleMood(&emp)
			t.st.Employees[emp.ID] = emp
			if emp.Mood > 0 {
				continue
			}
			t.endEmployment(emp, game.EmployeeResigned)
			t.notifyCompany(c, "employee.resigned", fmt.Sprintf("employee.resigned:%d", emp.ID), map[string]string{
				"employee_id": strconv.FormatInt(emp.ID, 10),
				"name":        emp.Name,
			})
		}
		return nil
	})
}

// PaySalaries debits the month's salary of every active employee once per
// calendar month.
func (e *Engine) PaySalaries(ctx context.Context, companyID int64) error {
	return e.withCompany(ctx, companyID, func(t *tx, c game.Company) error {
		month := game.MonthKey(t.now)
		if !t.claimPeriod(c.ID, "salaries.pay", month) {
			return nil
		}
		for _, emp := range t.st.EmployeesOf(c.ID) {
			if emp.Status != game.EmployeeActive {
				continue
			}
			t.debit(c.ID, emp.SalaryMonth, TxnSalary, fmt.Sprintf("employee:%d:%s", emp.ID, month))
		}
		return nil
	})
}
