package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"tycoon/internal/game"
	"tycoon/internal/store"
	"tycoon/internal/testutil"
)

func TestPaySalariesOncePerMonth(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	hireOperator(t, st, testutil.CompanyAcme, "400")
	hireOperator(t, st, testutil.CompanyAcme, "350.50")

	for i := 0; i < 3; i++ {
		if err := e.PaySalaries(ctx, testutil.CompanyAcme); err != nil {
			t.Fatal(err)
		}
	}
	wantDecimal(t, "funds in January", fundsOf(t, st, testutil.CompanyAcme), "9249.50")

	testutil.SetClock(t, st, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err := e.PaySalaries(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	wantDecimal(t, "funds in February", fundsOf(t, st, testutil.CompanyAcme), "8499.00")
	wantDecimal(t, "other company", fundsOf(t, st, testutil.CompanyGlobex), "10000")
}

func TestApplicationsHireAndExpire(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	// Keep generating weekly until someone applies.
	var applicants []game.Employee
	for week := 0; week < 20 && len(applicants) == 0; week++ {
		testutil.SetClock(t, st, at(float64(7*week)))
		if err := e.GenerateApplications(ctx, testutil.CompanyAcme); err != nil {
			t.Fatal(err)
		}
		testutil.Read(t, st, func(s *store.State) {
			for _, emp := range s.EmployeesOf(testutil.CompanyAcme) {
				if emp.Status == game.EmployeeApplied {
					applicants = append(applicants, emp)
				}
			}
		})
	}
	if len(applicants) == 0 {
		t.Fatal("no applications generated")
	}
	a := applicants[0]
	maxSalary := testutil.D("0")
	testutil.Read(t, st, func(s *store.State) {
		prof := s.Profiles[a.Profile]
		if a.SalaryMonth.LessThan(prof.MinSalary) || a.SalaryMonth.GreaterThan(prof.MaxSalary) {
			t.Fatalf("salary %s outside profile range", a.SalaryMonth)
		}
		maxSalary = prof.MaxSalary
	})

	hired, err := e.HireApplicant(ctx, testutil.CompanyAcme, a.ID)
	if err != nil {
		t.Fatalf("hire: %v", err)
	}
	if hired.Status != game.EmployeeActive || hired.HiredAt == nil {
		t.Fatalf("hired = %+v", hired)
	}
	if _, err := e.HireApplicant(ctx, testutil.CompanyAcme, a.ID); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("rehire err = %v", err)
	}
	if _, err := e.PromoteEmployee(ctx, testutil.CompanyAcme, a.ID, hired.SalaryMonth.Sub(testutil.D("1"))); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("pay cut err = %v", err)
	}
	promoted, err := e.PromoteEmployee(ctx, testutil.CompanyAcme, a.ID, maxSalary.Add(testutil.D("100")))
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Mood < hired.Mood {
		t.Fatalf("mood fell on raise: %v -> %v", hired.Mood, promoted.Mood)
	}

	testutil.SetClock(t, st, at(400))
	if err := e.ExpireApplications(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		for _, emp := range s.EmployeesOf(testutil.CompanyAcme) {
			if emp.Status == game.EmployeeApplied {
				t.Fatalf("applicant %d survived expiry", emp.ID)
			}
		}
		if _, ok := s.Employees[a.ID]; !ok {
			t.Fatal("hired employee was removed")
		}
	})
}

func TestMoodDecayEndsInResignation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	emp := hireOperator(t, st, testutil.CompanyAcme, "400")
	if err := st.Update(ctx, func(s *store.State) error {
		v := s.Employees[emp.ID]
		v.Mood = 0.5
		v.MoodDecayPerDay = 0.1
		s.Employees[v.ID] = v
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	testutil.SetClock(t, st, at(2))
	if err := e.ProcessEmployeesMood(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		got := s.Employees[emp.ID]
		if got.Status != game.EmployeeActive || got.Mood < 0.29 || got.Mood > 0.31 {
			t.Fatalf("after 2 days: %+v", got)
		}
	})

	testutil.SetClock(t, st, at(6))
	if err := e.ProcessEmployeesMood(ctx, testutil.CompanyAcme); err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		got := s.Employees[emp.ID]
		if got.Status != game.EmployeeResigned || got.LeftAt == nil {
			t.Fatalf("after 6 days: %+v", got)
		}
		kinds := map[string]bool{}
		for _, n := range s.NotificationsOf(testutil.UserAlice) {
			kinds[n.Kind] = true
		}
		if !kinds["employee.resigned"] {
			t.Fatal("no resignation notification")
		}
	})
}

func TestFireEmployeeUnassignsMachine(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	cm, err := e.BuyMachine(ctx, testutil.CompanyAcme, testutil.MachineLoom)
	if err != nil {
		t.Fatal(err)
	}
	emp := hireOperator(t, st, testutil.CompanyAcme, "400")
	if err := e.AssignEmployee(ctx, testutil.CompanyAcme, emp.ID, cm.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.FireEmployee(ctx, testutil.CompanyAcme, emp.ID); err != nil {
		t.Fatal(err)
	}
	testutil.Read(t, st, func(s *store.State) {
		got := s.Employees[emp.ID]
		if got.Status != game.EmployeeFired || got.MachineID != 0 {
			t.Fatalf("fired = %+v", got)
		}
	})
	if err := e.FireEmployee(ctx, testutil.CompanyAcme, emp.ID); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("second fire err = %v", err)
	}
}
