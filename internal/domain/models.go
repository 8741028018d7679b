package domain

// DateLayout is the text format of every *_date column.
const DateLayout = "2006-01-02"

// MaxQuantity is the largest stock or line quantity a row can hold (the
// INTEGER column range).
const MaxQuantity = 1<<31 - 1

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// RecordState is the three-way outcome of looking up a soft-deletable row by
// its unique name.
type RecordState int

const (
	StateAbsent RecordState = iota
	StateInactive
	StateActive
)

func (s RecordState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return "absent"
	}
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// User is the persistence model for credentials. The hash never leaves the
// process.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=admin staff"`
}

type Flavor struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (f *Flavor) State() RecordState {
	if f == nil {
		return StateAbsent
	}
	if f.Active {
		return StateActive
	}
	return StateInactive
}

type FlavorStock struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
	Low   bool   `json:"low"`
}

type FlavorCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type FlavorAddResult struct {
	Flavor      Flavor `json:"flavor"`
	Reactivated bool   `json:"reactivated"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0,lte=2147483647"`
}

type StockOverview struct {
	Threshold  int           `json:"threshold"`
	TotalStock int           `json:"total_stock"`
	LowCount   int           `json:"low_count"`
	Flavors    []FlavorStock `json:"flavors"`
	LowStock   []FlavorStock `json:"low_stock"`
}

type Customer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Shop   string `json:"shop"`
	Area   string `json:"area"`
	Active bool   `json:"active"`
}

func (c *Customer) State() RecordState {
	if c == nil {
		return StateAbsent
	}
	if c.Active {
		return StateActive
	}
	return StateInactive
}

type CustomerInput struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Shop  string `json:"shop"`
	Area  string `json:"area"`
}

type CustomerUpdate struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Shop  *string `json:"shop,omitempty"`
	Area  *string `json:"area,omitempty"`
}

type CustomerAddResult struct {
	Customer    Customer `json:"customer"`
	Reactivated bool     `json:"reactivated"`
}

type SaleLine struct {
	FlavorID int64 `json:"flavor_id" validate:"gt=0"`
	Quantity int   `json:"quantity" validate:"gt=0,lte=2147483647"`
}

type SaleRequest struct {
	CustomerID int64      `json:"customer_id" validate:"gt=0"`
	TotalBoxes int        `json:"total_boxes" validate:"gte=0"`
	Items      []SaleLine `json:"items" validate:"dive"`
}

type SaleItem struct {
	ID       int64 `json:"id"`
	SaleID   int64 `json:"sale_id"`
	FlavorID int64 `json:"flavor_id"`
	Quantity int   `json:"quantity"`
}

type Sale struct {
	ID         int64      `json:"id"`
	CustomerID int64      `json:"customer_id"`
	TotalBoxes int        `json:"total_boxes"`
	SaleDate   string     `json:"sale_date"`
	CreatedBy  string     `json:"created_by"`
	Items      []SaleItem `json:"items"`
}

// SaleHistoryRow is one line item joined with its sale, customer and flavor.
type SaleHistoryRow struct {
	SaleID     int64  `json:"sale_id"`
	SaleDate   string `json:"sale_date"`
	Customer   string `json:"customer"`
	Flavor     string `json:"flavor"`
	Quantity   int    `json:"quantity"`
	TotalBoxes int    `json:"total_boxes"`
	CreatedBy  string `json:"created_by"`
}

type ReturnInput struct {
	CustomerName   string `json:"customer_name"`
	ReturnedBoxes  int    `json:"returned_boxes" validate:"gte=0"`
	DamagedBoxes   int    `json:"damaged_boxes" validate:"gte=0"`
	DamagedBottles int    `json:"damaged_bottles" validate:"gte=0"`
	Note           string `json:"note"`
}

type Return struct {
	ID             int64  `json:"id"`
	CustomerName   string `json:"customer_name"`
	ReturnDate     string `json:"return_date"`
	ReturnedBoxes  int    `json:"returned_boxes"`
	DamagedBoxes   int    `json:"damaged_boxes"`
	DamagedBottles int    `json:"damaged_bottles"`
	Note           string `json:"note"`
	CreatedBy      string `json:"created_by"`
}

type ActivityLog struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Action   string `json:"action"`
	LogDate  string `json:"log_date"`
}
