package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"sodaledger/backend/internal/domain"
)

// Store keeps the whole ledger behind one lock so each call observes and
// leaves a consistent state, mirroring the transactional guarantees of the
// postgres store.
type Store struct {
	mu              sync.RWMutex
	usersByUsername map[string]domain.User
	flavorsByID     map[int64]domain.Flavor
	flavorIDByName  map[string]int64
	inventory       map[int64]int
	customersByID   map[int64]domain.Customer
	customerByName  map[string]int64
	sales           []domain.Sale
	returns         []domain.Return
	activity        []domain.ActivityLog

	nextUserID     int64
	nextFlavorID   int64
	nextCustomerID int64
	nextSaleID     int64
	nextItemID     int64
	nextReturnID   int64
	nextLogID      int64
}

func New() *Store {
	return &Store{
		usersByUsername: make(map[string]domain.User),
		flavorsByID:     make(map[int64]domain.Flavor),
		flavorIDByName:  make(map[string]int64),
		inventory:       make(map[int64]int),
		customersByID:   make(map[int64]domain.Customer),
		customerByName:  make(map[string]int64),
		sales:           make([]domain.Sale, 0, 64),
		returns:         make([]domain.Return, 0, 16),
		activity:        make([]domain.ActivityLog, 0, 128),
	}
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usersByUsername), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || user.PasswordHash == "" {
		return nil, domain.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return nil, domain.ErrDuplicateUsername
	}
	s.nextUserID++
	user.ID = s.nextUserID
	s.usersByUsername[user.Username] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return cmpInt64(a.ID, b.ID)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if passwordHash == "" {
		return domain.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return domain.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) FindFlavorByName(_ context.Context, name string) (*domain.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.flavorIDByName[name]
	if !exists {
		return nil, nil
	}
	flavor := s.flavorsByID[id]
	return &flavor, nil
}

func (s *Store) GetFlavor(_ context.Context, id int64) (*domain.Flavor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flavor, exists := s.flavorsByID[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &flavor, nil
}

func (s *Store) CreateFlavor(_ context.Context, name string) (*domain.Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, domain.ErrValidation
	}
	if _, exists := s.flavorIDByName[name]; exists {
		return nil, domain.ErrAlreadyExists
	}
	s.nextFlavorID++
	flavor := domain.Flavor{ID: s.nextFlavorID, Name: name, Active: true}
	s.flavorsByID[flavor.ID] = flavor
	s.flavorIDByName[name] = flavor.ID
	s.inventory[flavor.ID] = 0
	return &flavor, nil
}

func (s *Store) ReactivateFlavor(_ context.Context, id int64) (*domain.Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flavor, exists := s.flavorsByID[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if flavor.Active {
		return nil, domain.ErrAlreadyExists
	}
	flavor.Active = true
	s.flavorsByID[id] = flavor
	s.inventory[id] = 0
	return &flavor, nil
}

func (s *Store) DeactivateFlavor(_ context.Context, id int64) (*domain.Flavor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flavor, exists := s.flavorsByID[id]
	if !exists || !flavor.Active {
		return nil, domain.ErrNotFound
	}
	flavor.Active = false
	s.flavorsByID[id] = flavor
	return &flavor, nil
}

func (s *Store) ListActiveFlavorStock(_ context.Context) ([]domain.FlavorStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FlavorStock, 0, len(s.flavorsByID))
	for _, flavor := range s.flavorsByID {
		if !flavor.Active {
			continue
		}
		result = append(result, domain.FlavorStock{ID: flavor.ID, Name: flavor.Name, Stock: s.inventory[flavor.ID]})
	}
	slices.SortFunc(result, func(a, b domain.FlavorStock) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) RestockFlavor(_ context.Context, flavorID int64, qty int) (int, error) {
	if qty < 1 || qty > domain.MaxQuantity {
		return 0, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.flavorActive(flavorID) {
		return 0, domain.ErrNotFound
	}
	if s.inventory[flavorID] > domain.MaxQuantity-qty {
		return 0, domain.ErrInvalidQuantity
	}
	s.inventory[flavorID] += qty
	return s.inventory[flavorID], nil
}

func (s *Store) DeductStock(_ context.Context, flavorID int64, qty int) (int, error) {
	if qty < 1 || qty > domain.MaxQuantity {
		return 0, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.flavorActive(flavorID) {
		return 0, domain.ErrNotFound
	}
	if s.inventory[flavorID] < qty {
		return 0, domain.ErrInsufficientStock
	}
	s.inventory[flavorID] -= qty
	return s.inventory[flavorID], nil
}

func (s *Store) FindCustomerByName(_ context.Context, name string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.customerByName[name]
	if !exists {
		return nil, nil
	}
	customer := s.customersByID[id]
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, domain.ErrValidation
	}
	if _, exists := s.customerByName[customer.Name]; exists {
		return nil, domain.ErrAlreadyExists
	}
	s.nextCustomerID++
	customer.ID = s.nextCustomerID
	customer.Active = true
	s.customersByID[customer.ID] = customer
	s.customerByName[customer.Name] = customer.ID
	created := customer
	return &created, nil
}

func (s *Store) ReactivateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customersByID[customer.ID]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if existing.Active {
		return nil, domain.ErrAlreadyExists
	}
	existing.Phone = customer.Phone
	existing.Shop = customer.Shop
	existing.Area = customer.Area
	existing.Active = true
	s.customersByID[existing.ID] = existing
	return &existing, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customersByID[customer.ID]
	if !exists || !existing.Active {
		return nil, domain.ErrNotFound
	}
	if customer.Name == "" {
		return nil, domain.ErrValidation
	}
	if customer.Name != existing.Name {
		if _, taken := s.customerByName[customer.Name]; taken {
			return nil, domain.ErrAlreadyExists
		}
		delete(s.customerByName, existing.Name)
		s.customerByName[customer.Name] = existing.ID
	}
	customer.Active = true
	s.customersByID[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeactivateCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[id]
	if !exists || !customer.Active {
		return nil, domain.ErrNotFound
	}
	customer.Active = false
	s.customersByID[id] = customer
	return &customer, nil
}

func (s *Store) ListActiveCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		if customer.Active {
			result = append(result, customer)
		}
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpInt64(b.ID, a.ID)
	})
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, domain.ErrEmptySale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[sale.CustomerID]
	if !exists || !customer.Active {
		return nil, domain.ErrNotFound
	}

	// Validate every line before touching stock so a failure leaves no trace.
	needed := make(map[int64]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 || item.Quantity > domain.MaxQuantity {
			return nil, domain.ErrInvalidQuantity
		}
		if !s.flavorActive(item.FlavorID) {
			return nil, domain.ErrNotFound
		}
		if needed[item.FlavorID] > domain.MaxQuantity-item.Quantity {
			return nil, domain.ErrInvalidQuantity
		}
		needed[item.FlavorID] += item.Quantity
	}
	for flavorID, qty := range needed {
		if s.inventory[flavorID] < qty {
			return nil, domain.ErrInsufficientStock
		}
	}

	s.nextSaleID++
	sale.ID = s.nextSaleID
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.SaleID = sale.ID
		s.inventory[item.FlavorID] -= item.Quantity
		items = append(items, item)
	}
	sale.Items = items
	s.sales = append(s.sales, sale)

	return cloneSale(sale), nil
}

func (s *Store) ListSaleHistory(_ context.Context, limit int) ([]domain.SaleHistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.SaleHistoryRow, 0, 64)
	for i := len(s.sales) - 1; i >= 0; i-- {
		sale := s.sales[i]
		customer, ok := s.customersByID[sale.CustomerID]
		if !ok {
			continue
		}
		for _, item := range sale.Items {
			if limit > 0 && len(rows) >= limit {
				return rows, nil
			}
			flavor, ok := s.flavorsByID[item.FlavorID]
			if !ok {
				continue
			}
			rows = append(rows, domain.SaleHistoryRow{
				SaleID:     sale.ID,
				SaleDate:   sale.SaleDate,
				Customer:   customer.Name,
				Flavor:     flavor.Name,
				Quantity:   item.Quantity,
				TotalBoxes: sale.TotalBoxes,
				CreatedBy:  sale.CreatedBy,
			})
		}
	}
	return rows, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ReturnedBoxes < 0 || ret.DamagedBoxes < 0 || ret.DamagedBottles < 0 {
		return nil, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextReturnID++
	ret.ID = s.nextReturnID
	s.returns = append(s.returns, ret)
	created := ret
	return &created, nil
}

func (s *Store) ListReturns(_ context.Context, limit int) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, len(s.returns))
	for i := len(s.returns) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, s.returns[i])
	}
	return result, nil
}

func (s *Store) AppendActivity(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	entry.ID = s.nextLogID
	s.activity = append(s.activity, entry)
	return nil
}

func (s *Store) ListActivity(_ context.Context, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ActivityLog, 0, len(s.activity))
	for i := len(s.activity) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, s.activity[i])
	}
	return result, nil
}

// flavorActive must be called with s.mu held.
func (s *Store) flavorActive(id int64) bool {
	flavor, exists := s.flavorsByID[id]
	return exists && flavor.Active
}

func cmpInt64(a int64, b int64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) *domain.Sale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}
