package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/selfcheckout/internal/catalog"
	"github.com/jogardn/selfcheckout/pkg/models"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrDuplicateKey = errors.New("idempotency key already used")
)

type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Store is the order ledger. Orders and their lines are written once;
// status is the only field that changes afterward, and qr_code_data is
// set exactly once right after commit.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewStore(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CreateOrder inserts the order row, its lines, and decrements stock for
// every line in one transaction. If any decrement finds too little stock
// the whole order rolls back and nothing is left behind.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (id, customer_id, total_amount, status, payment_method, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, order.ID, order.CustomerID, order.TotalAmount,
		order.Status, order.PaymentMethod, order.IdempotencyKey).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, product_name, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, line.OrderID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}

		if err := catalog.DecrementStockTx(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"total_amount": order.TotalAmount,
		"line_count":   len(order.Lines),
	}).Info("Order committed")
	return nil
}

// Get is scoped to the requesting customer. A cross-customer read is
// reported as not found, never as forbidden, so order ids don't leak.
func (s *Store) Get(ctx context.Context, id, customerID string) (*models.Order, error) {
	order, err := s.getWhere(ctx, `id = $1 AND customer_id = $2`, id, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetForVerification is the unscoped read behind QR verification; it
// returns ledger truth for anyone holding a payload.
func (s *Store) GetForVerification(ctx context.Context, id string) (*models.Order, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

func (s *Store) getWhere(ctx context.Context, where string, args ...interface{}) (*models.Order, error) {
	query := `
		SELECT id, customer_id, total_amount, status, COALESCE(payment_method, ''),
		       COALESCE(idempotency_key, ''), COALESCE(qr_code_data, ''), created_at, updated_at
		FROM orders WHERE ` + where
	var o models.Order
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&o.ID, &o.CustomerID, &o.TotalAmount, &o.Status, &o.PaymentMethod,
		&o.IdempotencyKey, &o.QRCodeData, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

func (s *Store) List(ctx context.Context, customerID string, filter models.OrderFilter) ([]*models.Order, error) {
	query := `
		SELECT id, customer_id, total_amount, status, COALESCE(payment_method, ''),
		       COALESCE(idempotency_key, ''), COALESCE(qr_code_data, ''), created_at, updated_at
		FROM orders WHERE customer_id = $1
	`
	args := []interface{}{customerID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
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
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		err := rows.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &o.Status, &o.PaymentMethod,
			&o.IdempotencyKey, &o.QRCodeData, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := s.loadLines(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) loadLines(ctx context.Context, order *models.Order) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price, line_total
		FROM order_lines WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.OrderLine
		err := rows.Scan(&l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	return rows.Err()
}

// SetStatus applies the transition table atomically: the UPDATE only
// matches when the current status actually allows the move.
func (s *Store) SetStatus(ctx context.Context, id, customerID, newStatus string) (*models.Order, error) {
	var froms []string
	for from, nexts := range allowedTransitions {
		for _, next := range nexts {
			if next == newStatus {
				froms = append(froms, from)
			}
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND customer_id = $2 AND status = ANY($4)
	`, id, customerID, newStatus, pq.Array(froms))
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.getWhere(ctx, `id = $1 AND customer_id = $2`, id, customerID)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{From: current.Status, To: newStatus}
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": id,
		"status":   newStatus,
	}).Info("Order status updated")
	return s.Get(ctx, id, customerID)
}

// SetQRCodeData writes the redemption payload once; a second write is a
// programming error and is refused.
func (s *Store) SetQRCodeData(ctx context.Context, id, payload string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET qr_code_data = $2, updated_at = NOW()
		WHERE id = $1 AND qr_code_data IS NULL
	`, id, payload)
	if err != nil {
		return fmt.Errorf("failed to set qr payload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("qr payload already set for order %s", id)
	}
	return nil
}

// FindByIdempotencyKey returns the order a given (customer, key) pair
// already produced, or ErrNotFound.
func (s *Store) FindByIdempotencyKey(ctx context.Context, customerID, key string) (*models.Order, error) {
	order, err := s.getWhere(ctx, `customer_id = $1 AND idempotency_key = $2`, customerID, key)
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
