package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sodaledger/backend/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Username == "" || user.PasswordHash == "" {
		return nil, domain.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role)
		VALUES ($1,$2,$3)
		RETURNING id
	`, user.Username, user.PasswordHash, user.Role).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateUsername
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, role
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Role); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	if passwordHash == "" {
		return domain.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) FindFlavorByName(ctx context.Context, name string) (*domain.Flavor, error) {
	var flavor domain.Flavor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active
		FROM flavors
		WHERE name = $1
	`, name).Scan(&flavor.ID, &flavor.Name, &flavor.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &flavor, nil
}

func (s *Store) GetFlavor(ctx context.Context, id int64) (*domain.Flavor, error) {
	var flavor domain.Flavor
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active
		FROM flavors
		WHERE id = $1
	`, id).Scan(&flavor.ID, &flavor.Name, &flavor.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &flavor, nil
}

func (s *Store) CreateFlavor(ctx context.Context, name string) (*domain.Flavor, error) {
	if name == "" {
		return nil, domain.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	flavor := domain.Flavor{Name: name, Active: true}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO flavors (name, active)
		VALUES ($1, TRUE)
		RETURNING id
	`, name).Scan(&flavor.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}

	if err := resetInventory(ctx, tx, flavor.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &flavor, nil
}

func (s *Store) ReactivateFlavor(ctx context.Context, id int64) (*domain.Flavor, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	flavor := domain.Flavor{ID: id, Active: true}
	err = tx.QueryRowContext(ctx, `
		UPDATE flavors
		SET active = TRUE
		WHERE id = $1 AND active = FALSE
		RETURNING name
	`, id).Scan(&flavor.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the row is gone or another request reactivated it first.
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM flavors WHERE id = $1)`, id).Scan(&exists); err != nil {
				return nil, err
			}
			if exists {
				return nil, domain.ErrAlreadyExists
			}
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := resetInventory(ctx, tx, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &flavor, nil
}

func (s *Store) DeactivateFlavor(ctx context.Context, id int64) (*domain.Flavor, error) {
	flavor := domain.Flavor{ID: id}
	err := s.db.QueryRowContext(ctx, `
		UPDATE flavors
		SET active = FALSE
		WHERE id = $1 AND active = TRUE
		RETURNING name
	`, id).Scan(&flavor.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &flavor, nil
}

func (s *Store) ListActiveFlavorStock(ctx context.Context) ([]domain.FlavorStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, COALESCE(i.stock, 0)
		FROM flavors f
		LEFT JOIN inventory i ON i.flavor_id = f.id
		WHERE f.active = TRUE
		ORDER BY f.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.FlavorStock, 0, 32)
	for rows.Next() {
		var fs domain.FlavorStock
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.Stock); err != nil {
			return nil, err
		}
		result = append(result, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) RestockFlavor(ctx context.Context, flavorID int64, qty int) (int, error) {
	if qty < 1 || qty > domain.MaxQuantity {
		return 0, domain.ErrInvalidQuantity
	}

	var stock int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory (flavor_id, stock)
		SELECT id, $2 FROM flavors WHERE id = $1 AND active = TRUE
		ON CONFLICT (flavor_id)
		DO UPDATE SET stock = inventory.stock + EXCLUDED.stock
		RETURNING stock
	`, flavorID, qty).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		if isOutOfRange(err) {
			return 0, domain.ErrInvalidQuantity
		}
		return 0, err
	}
	return stock, nil
}

func (s *Store) DeductStock(ctx context.Context, flavorID int64, qty int) (int, error) {
	if qty < 1 || qty > domain.MaxQuantity {
		return 0, domain.ErrInvalidQuantity
	}
	return deductStock(ctx, s.db, flavorID, qty)
}

func (s *Store) FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, shop, area, active
		FROM customers
		WHERE name = $1
	`, name).Scan(&c.ID, &c.Name, &c.Phone, &c.Shop, &c.Area, &c.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, shop, area, active
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Shop, &c.Area, &c.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, domain.ErrValidation
	}

	customer.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, shop, area, active)
		VALUES ($1,$2,$3,$4,TRUE)
		RETURNING id
	`, customer.Name, customer.Phone, customer.Shop, customer.Area).Scan(&customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ReactivateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET phone = $2, shop = $3, area = $4, active = TRUE
		WHERE id = $1 AND active = FALSE
		RETURNING id, name, phone, shop, area, active
	`, customer.ID, customer.Phone, customer.Shop, customer.Area).Scan(&c.ID, &c.Name, &c.Phone, &c.Shop, &c.Area, &c.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, customer.ID).Scan(&exists); err != nil {
				return nil, err
			}
			if exists {
				return nil, domain.ErrAlreadyExists
			}
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, domain.ErrValidation
	}

	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, shop = $4, area = $5
		WHERE id = $1 AND active = TRUE
		RETURNING id, name, phone, shop, area, active
	`, customer.ID, customer.Name, customer.Phone, customer.Shop, customer.Area).Scan(&c.ID, &c.Name, &c.Phone, &c.Shop, &c.Area, &c.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeactivateCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET active = FALSE
		WHERE id = $1 AND active = TRUE
		RETURNING id, name, phone, shop, area, active
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Shop, &c.Area, &c.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListActiveCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, shop, area, active
		FROM customers
		WHERE active = TRUE
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Shop, &c.Area, &c.Active); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, domain.ErrEmptySale
	}
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
	}

	// Read committed lets the conditional decrement below re-check stock
	// against the latest committed row, so a losing concurrent sale sees
	// insufficient stock instead of a serialization failure.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerActive bool
	if err := tx.QueryRowContext(ctx, `
		SELECT active FROM customers WHERE id = $1 FOR SHARE
	`, sale.CustomerID).Scan(&customerActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if !customerActive {
		return nil, domain.ErrNotFound
	}

	needed := make(map[int64]int, len(sale.Items))
	for _, item := range sale.Items {
		needed[item.FlavorID] += item.Quantity
	}
	flavorIDs := make([]int64, 0, len(needed))
	for id := range needed {
		flavorIDs = append(flavorIDs, id)
	}
	// Fixed lock order across sales.
	sort.Slice(flavorIDs, func(i, j int) bool { return flavorIDs[i] < flavorIDs[j] })

	for _, flavorID := range flavorIDs {
		if _, err := deductStock(ctx, tx, flavorID, needed[flavorID]); err != nil {
			return nil, err
		}
	}

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO sales (customer_id, total_boxes, sale_date, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, sale.CustomerID, sale.TotalBoxes, sale.SaleDate, sale.CreatedBy).Scan(&sale.ID); err != nil {
		return nil, err
	}

	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		item.SaleID = sale.ID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, flavor_id, quantity)
			VALUES ($1,$2,$3)
			RETURNING id
		`, item.SaleID, item.FlavorID, item.Quantity).Scan(&item.ID); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sale.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSaleHistory(ctx context.Context, limit int) ([]domain.SaleHistoryRow, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.sale_date, c.name, f.name, si.quantity, s.total_boxes, s.created_by
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		JOIN sale_items si ON si.sale_id = s.id
		JOIN flavors f ON f.id = si.flavor_id
		ORDER BY s.id DESC, si.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.SaleHistoryRow, 0, limit)
	for rows.Next() {
		var row domain.SaleHistoryRow
		if err := rows.Scan(&row.SaleID, &row.SaleDate, &row.Customer, &row.Flavor, &row.Quantity, &row.TotalBoxes, &row.CreatedBy); err != nil {
			return nil, err
		}
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ReturnedBoxes < 0 || ret.DamagedBoxes < 0 || ret.DamagedBottles < 0 {
		return nil, domain.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO returns (customer_name, return_date, returned_boxes, damaged_boxes, damaged_bottles, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, ret.CustomerName, ret.ReturnDate, ret.ReturnedBoxes, ret.DamagedBoxes, ret.DamagedBottles, ret.Note, ret.CreatedBy).Scan(&ret.ID)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context, limit int) ([]domain.Return, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, return_date, returned_boxes, damaged_boxes, damaged_bottles, note, created_by
		FROM returns
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Return, 0, limit)
	for rows.Next() {
		var r domain.Return
		if err := rows.Scan(&r.ID, &r.CustomerName, &r.ReturnDate, &r.ReturnedBoxes, &r.DamagedBoxes, &r.DamagedBottles, &r.Note, &r.CreatedBy); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AppendActivity(ctx context.Context, entry domain.ActivityLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (username, action, log_date)
		VALUES ($1,$2,$3)
	`, entry.Username, entry.Action, entry.LogDate)
	return err
}

func (s *Store) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, action, log_date
		FROM activity_logs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ActivityLog, 0, limit)
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Action, &entry.LogDate); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// deductStock decrements only when the flavor is active and holds enough
// stock. A miss is classified afterwards without changing anything.
func deductStock(ctx context.Context, q rowQuerier, flavorID int64, qty int) (int, error) {
	var remaining int
	err := q.QueryRowContext(ctx, `
		UPDATE inventory i
		SET stock = i.stock - $2
		FROM flavors f
		WHERE i.flavor_id = $1 AND f.id = i.flavor_id AND f.active = TRUE AND i.stock >= $2
		RETURNING i.stock
	`, flavorID, qty).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// A flavor without an inventory row holds zero stock.
	var active bool
	err = q.QueryRowContext(ctx, `
		SELECT f.active
		FROM flavors f
		LEFT JOIN inventory i ON i.flavor_id = f.id
		WHERE f.id = $1
	`, flavorID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	if !active {
		return 0, domain.ErrNotFound
	}
	return 0, domain.ErrInsufficientStock
}

func resetInventory(ctx context.Context, tx *sql.Tx, flavorID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory (flavor_id, stock)
		VALUES ($1, 0)
		ON CONFLICT (flavor_id)
		DO UPDATE SET stock = 0
	`, flavorID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isOutOfRange reports a numeric overflow of an INTEGER column.
func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22003"
	}
	return false
}
