package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/pkg/models"
)

var (
	ErrNotFound         = errors.New("product not found")
	ErrDuplicateBarcode = errors.New("barcode already registered")
)

// InsufficientStockError reports a failed conditional decrement with the
// quantities involved, so the API can name them to the client.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// Store is the product catalog backed by postgres. Products are never
// physically deleted; Deactivate flips the active flag and the barcode
// stays reserved.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewStore(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const productColumns = `id, name, description, unit_price, barcode, category, stock_quantity, image_url, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.UnitPrice, &p.Barcode,
		&p.Category, &p.StockQuantity, &p.ImageURL, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (s *Store) GetByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE barcode = $1`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, barcode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by barcode: %w", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	conditions := []string{}
	args := []interface{}{}

	if filter.ActiveOnly {
		conditions = append(conditions, "active = true")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR barcode ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) Create(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Active = true

	query := `
		INSERT INTO products (id, name, description, unit_price, barcode, category, stock_quantity, image_url, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, p.ID, p.Name, p.Description, p.UnitPrice,
		p.Barcode, p.Category, p.StockQuantity, p.ImageURL, p.Active).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateBarcode
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": p.ID,
		"barcode":    p.Barcode,
	}).Info("Product created")
	return nil
}

func (s *Store) Update(ctx context.Context, id string, u models.ProductUpdate) (*models.Product, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.UnitPrice != nil {
		add("unit_price", *u.UnitPrice)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.StockQuantity != nil {
		add("stock_quantity", *u.StockQuantity)
	}
	if u.ImageURL != nil {
		add("image_url", *u.ImageURL)
	}
	if u.Active != nil {
		add("active", *u.Active)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d RETURNING `+productColumns,
		strings.Join(sets, ", "), len(args))

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

func (s *Store) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.WithField("product_id", id).Info("Product deactivated")
	return nil
}

// AdjustStock adds qty (may be negative for corrections, floored at zero
// by the same conditional guard used at checkout).
func (s *Store) AdjustStock(ctx context.Context, id string, qty int) (*models.Product, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING ` + productColumns
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id, qty))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}
	return p, nil
}

// DecrementStock is the standalone variant of the checkout-path decrement.
func (s *Store) DecrementStock(ctx context.Context, id string, qty int) error {
	return decrementStock(ctx, s.db, id, qty)
}

// DecrementStockTx runs the conditional decrement inside the caller's
// transaction so it commits or aborts with the rest of the order.
func DecrementStockTx(ctx context.Context, tx *sql.Tx, id string, qty int) error {
	return decrementStock(ctx, tx, id, qty)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// decrementStock is a single conditional UPDATE: the stock check and the
// write are one statement, so two concurrent decrements can never drive
// stock negative.
func decrementStock(ctx context.Context, db execer, id string, qty int) error {
	res, err := db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND active = true AND stock_quantity >= $2
	`, id, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read decrement result: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Distinguish a missing product from an oversell attempt.
	var available int
	err = db.QueryRowContext(ctx,
		`SELECT stock_quantity FROM products WHERE id = $1 AND active = true`, id).
		Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}
	return &InsufficientStockError{ProductID: id, Available: available, Requested: qty}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
