package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
)

const medicineColumns = `name, unit_price, stock, made_in, category, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (*models.Medicine, error) {
	m := &models.Medicine{}
	err := row.Scan(
		&m.Name,
		&m.UnitPrice,
		&m.Stock,
		&m.MadeIn,
		&m.Category,
		&m.Description,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Postgres) CreateMedicine(ctx context.Context, in *models.Medicine) (*models.Medicine, error) {
	name := models.NormalizeMedicineName(in.Name)
	if name == "" {
		return nil, database.ErrInvalidMedicineName
	}

	query := `
		INSERT INTO medicines (name, unit_price, stock, made_in, category, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (name) DO NOTHING
		RETURNING ` + medicineColumns

	m, err := scanMedicine(s.db.QueryRowContext(ctx, query,
		name,
		in.UnitPrice.Round(2),
		in.Stock,
		in.MadeIn,
		in.Category,
		in.Description,
	))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrMedicineExists
		}
		return nil, fmt.Errorf("create medicine: %w", err)
	}

	return m, nil
}

func (s *Postgres) GetMedicine(ctx context.Context, name string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE name = $1`

	m, err := scanMedicine(s.db.QueryRowContext(ctx, query, models.NormalizeMedicineName(name)))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("get medicine: %w", err)
	}

	return m, nil
}

// lockMedicine takes a row lock on a medicine without waiting. A held lock
// surfaces as a retryable 55P03 error.
func lockMedicine(ctx context.Context, tx *sql.Tx, name string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE name = $1 FOR UPDATE NOWAIT`

	m, err := scanMedicine(tx.QueryRowContext(ctx, query, name))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("lock medicine %s: %w", name, err)
	}

	return m, nil
}

func (s *Postgres) SetStock(ctx context.Context, name string, stock int) (*models.Medicine, error) {
	if stock < 0 {
		return nil, database.ErrInvalidQuantity
	}

	query := `
		UPDATE medicines
		SET stock = $1, updated_at = NOW()
		WHERE name = $2
		RETURNING ` + medicineColumns

	m, err := scanMedicine(s.db.QueryRowContext(ctx, query, stock, models.NormalizeMedicineName(name)))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("set stock: %w", err)
	}

	return m, nil
}

func (s *Postgres) AddStock(ctx context.Context, name string, quantity int) (*models.Medicine, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	query := `
		UPDATE medicines
		SET stock = stock + $1, updated_at = NOW()
		WHERE name = $2
		RETURNING ` + medicineColumns

	m, err := scanMedicine(s.db.QueryRowContext(ctx, query, quantity, models.NormalizeMedicineName(name)))
	if err != nil {
		if noRows(err) {
			return nil, database.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("add stock: %w", err)
	}

	return m, nil
}

func (s *Postgres) DeleteMedicine(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM medicines WHERE name = $1`, models.NormalizeMedicineName(name))
	if err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrMedicineNotFound
	}

	return nil
}

func (s *Postgres) CountMedicines(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM medicines`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count medicines: %w", err)
	}
	return total, nil
}

func (s *Postgres) ListMedicines(ctx context.Context, page, pageSize int) (*OffsetPage[models.Medicine], error) {
	page, pageSize = NormalizePage(page, pageSize)

	total, err := s.CountMedicines(ctx)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + medicineColumns + `
		FROM medicines
		ORDER BY created_at DESC, name
		LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	var medicines []models.Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		medicines = append(medicines, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(medicines, total, page, pageSize), nil
}
