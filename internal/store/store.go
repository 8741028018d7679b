package store

import (
	"context"

	"sodaledger/backend/internal/domain"
)

// Repository is the storage contract of the ledger. Implementations return
// the sentinel errors of package domain; every call reads committed state.
type Repository interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error

	// FindFlavorByName looks up a flavor regardless of its active flag and
	// returns (nil, nil) when no row holds the name.
	FindFlavorByName(ctx context.Context, name string) (*domain.Flavor, error)
	GetFlavor(ctx context.Context, id int64) (*domain.Flavor, error)
	CreateFlavor(ctx context.Context, name string) (*domain.Flavor, error)
	ReactivateFlavor(ctx context.Context, id int64) (*domain.Flavor, error)
	DeactivateFlavor(ctx context.Context, id int64) (*domain.Flavor, error)
	ListActiveFlavorStock(ctx context.Context) ([]domain.FlavorStock, error)

	RestockFlavor(ctx context.Context, flavorID int64, qty int) (int, error)
	// DeductStock checks and decrements in one atomic step.
	DeductStock(ctx context.Context, flavorID int64, qty int) (int, error)

	FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ReactivateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeactivateCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	ListActiveCustomers(ctx context.Context) ([]domain.Customer, error)

	// CreateSale writes the header, the lines and every stock decrement as
	// one unit. On error nothing is visible.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSaleHistory(ctx context.Context, limit int) ([]domain.SaleHistoryRow, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	ListReturns(ctx context.Context, limit int) ([]domain.Return, error)

	AppendActivity(ctx context.Context, entry domain.ActivityLog) error
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error)
}
