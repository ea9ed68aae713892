package game

import (
	"time"

	"github.com/shopspring/decimal"
)

type Clock struct {
	CurrentTime time.Time       `json:"current_time"`
	SpeedDays   decimal.Decimal `json:"speed_days"`
	Running     bool            `json:"running"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Reference data. Shared across companies and only mutated by world events and
// system-wide periodic tasks.

type Country struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	CustomsRate   decimal.Decimal `json:"customs_rate"`
	ImportAllowed bool            `json:"import_allowed"`
	Local         bool            `json:"local"`
}

type Wilaya struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	MinShippingCost  decimal.Decimal `json:"min_shipping_cost"`
	AvgShippingCost  decimal.Decimal `json:"avg_shipping_cost"`
	MaxShippingCost  decimal.Decimal `json:"max_shipping_cost"`
	RealShippingCost decimal.Decimal `json:"real_shipping_cost"`
	MinShippingDays  decimal.Decimal `json:"min_shipping_days"`
	AvgShippingDays  decimal.Decimal `json:"avg_shipping_days"`
	MaxShippingDays  decimal.Decimal `json:"max_shipping_days"`
	RealShippingDays decimal.Decimal `json:"real_shipping_days"`
}

type Supplier struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	CountryID        int64           `json:"country_id"`
	Available        bool            `json:"available"`
	MinOrderQuantity decimal.Decimal `json:"min_order_quantity"`
	MinShippingCost  decimal.Decimal `json:"min_shipping_cost"`
	AvgShippingCost  decimal.Decimal `json:"avg_shipping_cost"`
	MaxShippingCost  decimal.Decimal `json:"max_shipping_cost"`
	RealShippingCost decimal.Decimal `json:"real_shipping_cost"`
	MinShippingDays  decimal.Decimal `json:"min_shipping_days"`
	AvgShippingDays  decimal.Decimal `json:"avg_shipping_days"`
	MaxShippingDays  decimal.Decimal `json:"max_shipping_days"`
	RealShippingDays decimal.Decimal `json:"real_shipping_days"`
}

type SupplierProduct struct {
	ID         int64           `json:"id"`
	SupplierID int64           `json:"supplier_id"`
	ProductID  int64           `json:"product_id"`
	MinPrice   decimal.Decimal `json:"min_price"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	MaxPrice   decimal.Decimal `json:"max_price"`
	RealPrice  decimal.Decimal `json:"real_price"`
}

type ProductKind string

const (
	ProductRaw      ProductKind = "raw"
	ProductFinished ProductKind = "finished"
)

type ProductInput struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Kind          ProductKind     `json:"kind"`
	StorageCost   decimal.Decimal `json:"storage_cost"`
	HasExpiration bool            `json:"has_expiration"`
	ShelfLifeDays int             `json:"shelf_life_days"`
	Inputs        []ProductInput  `json:"inputs,omitempty"`
}

type ProductDemand struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	WilayaID      int64           `json:"wilaya_id"`
	MinQuantity   decimal.Decimal `json:"min_quantity"`
	MaxQuantity   decimal.Decimal `json:"max_quantity"`
	MinPrice      decimal.Decimal `json:"min_price"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	MaxPrice      decimal.Decimal `json:"max_price"`
	TimelimitDays int             `json:"timelimit_days"`
}

type MachineRequirement struct {
	Profile string `json:"profile"`
	Count   int    `json:"count"`
}

type Machine struct {
	ID                   int64                `json:"id"`
	Name                 string               `json:"name"`
	Price                decimal.Decimal      `json:"price"`
	OperationCostWeek    decimal.Decimal      `json:"operation_cost_week"`
	ReliabilityDecayDays float64              `json:"reliability_decay_days"`
	DepreciationRateDay  decimal.Decimal      `json:"depreciation_rate_day"`
	MaintenanceCost      decimal.Decimal      `json:"maintenance_cost"`
	MaintenanceDays      decimal.Decimal      `json:"maintenance_days"`
	ProductID            int64                `json:"product_id"`
	UnitsPerDay          decimal.Decimal      `json:"units_per_day"`
	CarbonPerUnit        decimal.Decimal      `json:"carbon_per_unit"`
	Requirements         []MachineRequirement `json:"requirements,omitempty"`
}

type Bank struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	AnnualRate     decimal.Decimal `json:"annual_rate"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	DurationMonths int             `json:"duration_months"`
}

type Technology struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Level        int             `json:"level"`
	Cost         decimal.Decimal `json:"cost"`
	ResearchDays decimal.Decimal `json:"research_days"`
}

type AdPackage struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays decimal.Decimal `json:"duration_days"`
	DemandBoost  decimal.Decimal `json:"demand_boost"`
}

type Profile struct {
	Name      string          `json:"name"`
	MinSalary decimal.Decimal `json:"min_salary"`
	MaxSalary decimal.Decimal `json:"max_salary"`
}

// Company-scoped entities. Company is the aggregate root for all of them.

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Company struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Name            string          `json:"name"`
	WilayaID        int64           `json:"wilaya_id"`
	Funds           decimal.Decimal `json:"funds"`
	CarbonFootprint decimal.Decimal `json:"carbon_footprint"`
	ResearchLevel   int             `json:"research_level"`
	CreatedAt       time.Time       `json:"created_at"`
}

type EmployeeStatus string

const (
	EmployeeApplied  EmployeeStatus = "applied"
	EmployeeActive   EmployeeStatus = "active"
	EmployeeResigned EmployeeStatus = "resigned"
	EmployeeFired    EmployeeStatus = "fired"
)

type Employee struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	Name            string          `json:"name"`
	Profile         string          `json:"profile"`
	Status          EmployeeStatus  `json:"status"`
	SalaryMonth     decimal.Decimal `json:"salary_month"`
	Efficiency      float64         `json:"efficiency"`
	Mood            float64         `json:"mood"`
	MoodDecayPerDay float64         `json:"mood_decay_per_day"`
	AppliedAt       time.Time       `json:"applied_at"`
	TimelimitDays   int             `json:"timelimit_days"`
	HiredAt         *time.Time      `json:"hired_at,omitempty"`
	LeftAt          *time.Time      `json:"left_at,omitempty"`
	MachineID       int64           `json:"machine_id,omitempty"`
	MoodUpdatedAt   time.Time       `json:"mood_updated_at"`
}

type MachineStatus string

const (
	MachineInactive    MachineStatus = "inactive"
	MachineActive      MachineStatus = "active"
	MachineBroken      MachineStatus = "broken"
	MachineMaintenance MachineStatus = "maintenance"
)

type CompanyMachine struct {
	ID                   int64           `json:"id"`
	CompanyID            int64           `json:"company_id"`
	MachineID            int64           `json:"machine_id"`
	Status               MachineStatus   `json:"status"`
	Reliability          float64         `json:"reliability"`
	Value                decimal.Decimal `json:"value"`
	ReliabilityUpdatedAt time.Time       `json:"reliability_updated_at"`
	ValuedAt             time.Time       `json:"valued_at"`
	PurchasedAt          time.Time       `json:"purchased_at"`
}

type ProductionStatus string

const (
	ProductionInProgress ProductionStatus = "in_progress"
	ProductionCompleted  ProductionStatus = "completed"
	ProductionCancelled  ProductionStatus = "cancelled"
)

type ProductionOrder struct {
	ID               int64            `json:"id"`
	CompanyID        int64            `json:"company_id"`
	MachineID        int64            `json:"machine_id"`
	ProductID        int64            `json:"product_id"`
	Quantity         decimal.Decimal  `json:"quantity"`
	QualityFactor    decimal.Decimal  `json:"quality_factor"`
	EfficiencyFactor decimal.Decimal  `json:"efficiency_factor"`
	StartedAt        time.Time        `json:"started_at"`
	CompletesAt      time.Time        `json:"completes_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
	Status           ProductionStatus `json:"status"`
}

type MaintenanceStatus string

const (
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
)

type Maintenance struct {
	ID          int64             `json:"id"`
	CompanyID   int64             `json:"company_id"`
	MachineID   int64             `json:"machine_id"`
	Cost        decimal.Decimal   `json:"cost"`
	StartedAt   time.Time         `json:"started_at"`
	CompletesAt time.Time         `json:"completes_at"`
	Status      MaintenanceStatus `json:"status"`
}

type CompanyProduct struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	ProductID      int64           `json:"product_id"`
	AvailableStock decimal.Decimal `json:"available_stock"`
}

type MovementType string

const (
	MovementIn      MovementType = "in"
	MovementOut     MovementType = "out"
	MovementDamaged MovementType = "damaged"
	MovementExpired MovementType = "expired"
)

// InventoryMovement is a ledger entry. Only CurrentQuantity of an "in"
// movement changes after creation.
type InventoryMovement struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	ProductID        int64           `json:"product_id"`
	Type             MovementType    `json:"type"`
	OriginalQuantity decimal.Decimal `json:"original_quantity"`
	CurrentQuantity  decimal.Decimal `json:"current_quantity"`
	Reference        string          `json:"reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type PurchaseStatus string

const (
	PurchaseOrdered   PurchaseStatus = "ordered"
	PurchaseConfirmed PurchaseStatus = "confirmed"
	PurchaseDelivered PurchaseStatus = "delivered"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

type Purchase struct {
	ID                   int64           `json:"id"`
	CompanyID            int64           `json:"company_id"`
	SupplierID           int64           `json:"supplier_id"`
	ProductID            int64           `json:"product_id"`
	Quantity             decimal.Decimal `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	ShippingCost         decimal.Decimal `json:"shipping_cost"`
	CustomsCost          decimal.Decimal `json:"customs_cost"`
	TotalCost            decimal.Decimal `json:"total_cost"`
	OrderedAt            time.Time       `json:"ordered_at"`
	EstimatedDeliveredAt time.Time       `json:"estimated_delivered_at"`
	RealDeliveredAt      time.Time       `json:"real_delivered_at"`
	DeliveredAt          *time.Time      `json:"delivered_at,omitempty"`
	DelayNotified        bool            `json:"delay_notified"`
	Status               PurchaseStatus  `json:"status"`
}

type SaleStatus string

const (
	SaleInitiated SaleStatus = "initiated"
	SaleConfirmed SaleStatus = "confirmed"
	SaleDelivered SaleStatus = "delivered"
	SaleCancelled SaleStatus = "cancelled"
)

type Sale struct {
	ID                   int64           `json:"id"`
	CompanyID            int64           `json:"company_id"`
	ProductID            int64           `json:"product_id"`
	WilayaID             int64           `json:"wilaya_id"`
	Quantity             decimal.Decimal `json:"quantity"`
	SalePrice            decimal.Decimal `json:"sale_price"`
	ShippingCost         decimal.Decimal `json:"shipping_cost"`
	ShippingDays         decimal.Decimal `json:"shipping_days"`
	InitiatedAt          time.Time       `json:"initiated_at"`
	TimelimitDays        int             `json:"timelimit_days"`
	ConfirmedAt          *time.Time      `json:"confirmed_at,omitempty"`
	EstimatedDeliveredAt time.Time       `json:"estimated_delivered_at"`
	RealDeliveredAt      time.Time       `json:"real_delivered_at"`
	DeliveredAt          *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	DelayNotified        bool            `json:"delay_notified"`
	Status               SaleStatus      `json:"status"`
}

// ExpiresAt is the instant an initiated sale becomes cancellable.
func (s Sale) ExpiresAt() time.Time {
	return s.InitiatedAt.Add(time.Duration(s.TimelimitDays) * Day)
}

type LoanStatus string

const (
	LoanActive LoanStatus = "active"
	LoanPaid   LoanStatus = "paid"
)

type Loan struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	BankID         int64           `json:"bank_id"`
	Principal      decimal.Decimal `json:"principal"`
	Remaining      decimal.Decimal `json:"remaining"`
	AnnualRate     decimal.Decimal `json:"annual_rate"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	MonthsLeft     int             `json:"months_left"`
	StartedAt      time.Time       `json:"started_at"`
	NextDueAt      time.Time       `json:"next_due_at"`
	Status         LoanStatus      `json:"status"`
}

type ResearchStatus string

const (
	ResearchInProgress ResearchStatus = "researching"
	ResearchDone       ResearchStatus = "researched"
)

type CompanyTechnology struct {
	ID           int64          `json:"id"`
	CompanyID    int64          `json:"company_id"`
	TechnologyID int64          `json:"technology_id"`
	StartedAt    time.Time      `json:"started_at"`
	CompletesAt  time.Time      `json:"completes_at"`
	Status       ResearchStatus `json:"status"`
}

type AdStatus string

const (
	AdActive    AdStatus = "active"
	AdCompleted AdStatus = "completed"
)

type Ad struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	PackageID int64     `json:"package_id"`
	ProductID int64     `json:"product_id"`
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    AdStatus  `json:"status"`
}

// Transaction is a signed entry in a company's financial ledger.
type Transaction struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	At        time.Time       `json:"at"`
}

type Notification struct {
	ID        int64             `json:"id"`
	UserID    *int64            `json:"user_id,omitempty"`
	Kind      string            `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	DedupKey  string            `json:"dedup_key,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
}

// World events.

type TargetKind string

const (
	TargetCountry         TargetKind = "country"
	TargetWilaya          TargetKind = "wilaya"
	TargetSupplier        TargetKind = "supplier"
	TargetSupplierProduct TargetKind = "supplier_product"
	TargetEmployee        TargetKind = "employee"
	TargetCompany         TargetKind = "company"
)

type Field string

const (
	FieldShippingCost  Field = "shipping_cost"
	FieldShippingTime  Field = "shipping_time"
	FieldPrice         Field = "price"
	FieldCustomsRate   Field = "customs_rate"
	FieldImportAllowed Field = "import_allowed"
	FieldEfficiency    Field = "efficiency"
)

type Target struct {
	Kind TargetKind `json:"kind"`
	ID   int64      `json:"id"`
}

// Modifier is one stacked multiplicative adjustment owned by a world event.
// Effective value = base value x product of the factors of active modifiers.
type Modifier struct {
	ID      int64           `json:"id"`
	EventID int64           `json:"event_id"`
	Target  Target          `json:"target"`
	Field   Field           `json:"field"`
	Factor  decimal.Decimal `json:"factor"`
}

type WorldEvent struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"`
	Rate       decimal.Decimal `json:"rate"`
	CountryIDs []int64         `json:"country_ids,omitempty"`
	ProductIDs []int64         `json:"product_ids,omitempty"`
	CompanyIDs []int64         `json:"company_ids,omitempty"`
	Summary    string          `json:"summary"`
	AppliedAt  time.Time       `json:"applied_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	Active     bool            `json:"active"`
	ReversedAt *time.Time      `json:"reversed_at,omitempty"`
}
