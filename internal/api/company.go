package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tycoon/internal/game"
	"tycoon/internal/store"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.engine.CreateUser(r.Context(), strings.TrimSpace(in.Name), strings.TrimSpace(in.Email))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID   int64           `json:"user_id"`
		Name     string          `json:"name"`
		WilayaID int64           `json:"wilaya_id"`
		Funds    decimal.Decimal `json:"funds"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.engine.CreateCompany(r.Context(), in.UserID, strings.TrimSpace(in.Name), in.WilayaID, in.Funds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCompanySummary(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	out, err := s.engine.CompanySummary(r.Context(), companyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// companyView runs fn on a read-only state after checking the company exists.
func (s *Server) companyView(w http.ResponseWriter, r *http.Request, fn func(st *store.State, c game.Company) any) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var out any
	err := s.store.View(r.Context(), func(st *store.State) error {
		c, err := st.Company(companyID)
		if err != nil {
			return err
		}
		out = fn(st, c)
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompanySales(w http.ResponseWriter, r *http.Request) {
	status := game.SaleStatus(r.URL.Query().Get("status"))
	s.companyView(w, r, func(st *store.State, c game.Company) any {
		sales := st.SalesOf(c.ID)
		if status != "" {
			sales = slices.DeleteFunc(sales, func(x game.Sale) bool { return x.Status != status })
		}
		return map[string]any{"sales": sales}
	})
}

func (s *Server) handleCompanyEmployees(w http.ResponseWriter, r *http.Request) {
	status := game.EmployeeStatus(r.URL.Query().Get("status"))
	s.companyView(w, r, func(st *store.State, c game.Company) any {
		employees := st.EmployeesOf(c.ID)
		if status != "" {
			employees = slices.DeleteFunc(employees, func(x game.Employee) bool { return x.Status != status })
		}
		return map[string]any{"employees": employees}
	})
}

func (s *Server) handleCompanyNotifications(w http.ResponseWriter, r *http.Request) {
	s.companyView(w, r, func(st *store.State, c game.Company) any {
		return map[string]any{"notifications": st.NotificationsOf(c.UserID)}
	})
}

type purchaseInput struct {
	SupplierID int64           `json:"supplier_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

func (s *Server) handleQuotePurchase(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in purchaseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := s.engine.QuotePurchase(r.Context(), companyID, in.SupplierID, in.ProductID, in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in purchaseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.engine.CreatePurchase(r.Context(), companyID, in.SupplierID, in.ProductID, in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleConfirmSale(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	saleID, ok := pathID(r, "sale_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	sale, err := s.engine.ConfirmSale(r.Context(), companyID, saleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// companyAndEmployee parses the two path IDs every staff route carries.
func companyAndEmployee(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return 0, 0, false
	}
	employeeID, ok := pathID(r, "employee_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid employee id")
		return 0, 0, false
	}
	return companyID, employeeID, true
}

func (s *Server) handleHire(w http.ResponseWriter, r *http.Request) {
	companyID, employeeID, ok := companyAndEmployee(w, r)
	if !ok {
		return
	}
	emp, err := s.engine.HireApplicant(r.Context(), companyID, employeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	companyID, employeeID, ok := companyAndEmployee(w, r)
	if !ok {
		return
	}
	if err := s.engine.FireEmployee(r.Context(), companyID, employeeID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	companyID, employeeID, ok := companyAndEmployee(w, r)
	if !ok {
		return
	}
	var in struct {
		SalaryMonth decimal.Decimal `json:"salary_month"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	emp, err := s.engine.PromoteEmployee(r.Context(), companyID, employeeID, in.SalaryMonth)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	companyID, employeeID, ok := companyAndEmployee(w, r)
	if !ok {
		return
	}
	var in struct {
		MachineID int64 `json:"machine_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.AssignEmployee(r.Context(), companyID, employeeID, in.MachineID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBuyMachine(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		MachineID int64 `json:"machine_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.engine.BuyMachine(r.Context(), companyID, in.MachineID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func companyAndMachine(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return 0, 0, false
	}
	machineID, ok := pathID(r, "machine_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid machine id")
		return 0, 0, false
	}
	return companyID, machineID, true
}

func (s *Server) handleMachineActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, machineID, ok := companyAndMachine(w, r)
		if !ok {
			return
		}
		if err := s.engine.SetMachineActive(r.Context(), companyID, machineID, active); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleStartProduction(w http.ResponseWriter, r *http.Request) {
	companyID, machineID, ok := companyAndMachine(w, r)
	if !ok {
		return
	}
	var in struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := s.engine.StartProduction(r.Context(), companyID, machineID, in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleStartMaintenance(w http.ResponseWriter, r *http.Request) {
	companyID, machineID, ok := companyAndMachine(w, r)
	if !ok {
		return
	}
	m, err := s.engine.StartMaintenance(r.Context(), companyID, machineID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleStartResearch(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		TechnologyID int64 `json:"technology_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ct, err := s.engine.StartResearch(r.Context(), companyID, in.TechnologyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ct)
}

func (s *Server) handleBuyAd(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		PackageID int64 `json:"package_id"`
		ProductID int64 `json:"product_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ad, err := s.engine.BuyAd(r.Context(), companyID, in.PackageID, in.ProductID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ad)
}

func (s *Server) handleTakeLoan(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		BankID int64           `json:"bank_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	loan, err := s.engine.TakeLoan(r.Context(), companyID, in.BankID, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}
