package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_email, medicine_name, quantity, unit_price, total_price, status, created_at, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID,
		&o.UserEmail,
		&o.MedicineName,
		&o.Quantity,
		&o.UnitPrice,
		&o.TotalPrice,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// PlaceOrder locks the medicine row, checks stock, inserts the order and
// decrements stock in a single serializable transaction.
func (s *Postgres) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}
	name := models.NormalizeMedicineName(req.MedicineName)

	var order *models.Order

	err := database.WithRetry(ctx, s.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)",
			req.UserEmail).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return database.ErrUserNotFound
		}

		medicine, err := lockMedicine(ctx, tx, name)
		if err != nil {
			return err
		}

		if medicine.Stock < req.Quantity {
			return &database.StockError{Medicine: name, Available: medicine.Stock, Requested: req.Quantity}
		}

		total := medicine.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))

		order, err = scanOrder(tx.QueryRowContext(ctx,
			`INSERT INTO orders (id, user_email, medicine_name, quantity, unit_price, total_price, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			 RETURNING `+orderColumns,
			uuid.NewString(), req.UserEmail, name, req.Quantity, medicine.UnitPrice, total, models.OrderStatusPending))
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE medicines
			 SET stock = stock - $1,
			     updated_at = NOW()
			 WHERE name = $2
			   AND stock >= $1`,
			req.Quantity, name)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return &database.StockError{Medicine: name, Available: medicine.Stock, Requested: req.Quantity}
		}

		return nil
	})

	if err != nil {
		return nil, busy(err)
	}

	return order, nil
}

func (s *Postgres) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

func (s *Postgres) ListOrders(ctx context.Context, userEmail, cursor string, limit int) (*CursorPage[models.Order], error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	// An empty cursor id sorts before every uuid, so the first page compares on
	// created_at alone.
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_email = $1
		  AND (created_at < $2 OR (created_at = $2 AND id::text < $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, userEmail, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return Paginate(orders, limit, func(o models.Order) OrderCursor {
		return OrderCursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// CancelOrder flips a pending or processing order to cancelled and returns its
// quantity to stock in one transaction. Stock is not restored for medicines
// deleted since the order was placed.
func (s *Postgres) CancelOrder(ctx context.Context, id, owner string) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, s.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}

		if owner != "" && current.UserEmail != owner {
			return database.ErrOrderNotOwned
		}
		if !models.IsCancellable(current.Status) {
			return &database.TransitionError{OrderID: id, From: current.Status, To: models.OrderStatusCancelled}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE medicines
			 SET stock = stock + $1,
			     updated_at = NOW()
			 WHERE name = $2`,
			current.Quantity, current.MedicineName)
		if err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}

		order, err = scanOrder(tx.QueryRowContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING `+orderColumns,
			models.OrderStatusCancelled, id))
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, busy(err)
	}

	return order, nil
}

func (s *Postgres) UpdateOrderStatus(ctx context.Context, id, status string) (*models.Order, error) {
	if !models.IsValidOrderStatus(status) {
		return nil, database.ErrInvalidStatus
	}
	if status == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, id, "")
	}

	var order *models.Order

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}

		if !models.CanTransition(current.Status, status) {
			return &database.TransitionError{OrderID: id, From: current.Status, To: status}
		}

		order, err = scanOrder(tx.QueryRowContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING `+orderColumns,
			status, id))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, busy(err)
	}

	return order, nil
}

func (s *Postgres) CountOrdersByStatus(ctx context.Context, status string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}
