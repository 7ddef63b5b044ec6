package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
)

func (s *Postgres) CreateUser(ctx context.Context, in *models.User) (*models.User, error) {
	user := &models.User{Orders: map[string]string{}}

	query := `
		INSERT INTO users (email, password_hash, name, age, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING email, password_hash, name, age, created_at`

	err := s.db.QueryRowContext(ctx, query, in.Email, in.PasswordHash, in.Name, in.Age).Scan(
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Age,
		&user.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// GetUser loads a user and derives the order index from the orders table.
func (s *Postgres) GetUser(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{Orders: map[string]string{}}

	query := `
		SELECT email, password_hash, name, age, created_at
		FROM users
		WHERE email = $1`

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Age,
		&user.CreatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, medicine_name FROM orders WHERE user_email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("get user orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, medicine string
		if err := rows.Scan(&id, &medicine); err != nil {
			return nil, fmt.Errorf("scan user order: %w", err)
		}
		user.Orders[id] = medicine
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return user, nil
}

func (s *Postgres) CreateAdmin(ctx context.Context, in *models.Admin) (*models.Admin, error) {
	admin := &models.Admin{}

	query := `
		INSERT INTO admins (email, password_hash, created_at)
		VALUES ($1, $2, NOW())
		RETURNING email, password_hash, created_at`

	err := s.db.QueryRowContext(ctx, query, in.Email, in.PasswordHash).Scan(
		&admin.Email,
		&admin.PasswordHash,
		&admin.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrAdminExists
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	return admin, nil
}

func (s *Postgres) GetAdmin(ctx context.Context, email string) (*models.Admin, error) {
	admin := &models.Admin{}

	err := s.db.QueryRowContext(ctx,
		`SELECT email, password_hash, created_at FROM admins WHERE email = $1`,
		email).Scan(&admin.Email, &admin.PasswordHash, &admin.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, database.ErrAdminNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}

	return admin, nil
}

func (s *Postgres) AppendChatTurns(ctx context.Context, email string, turns []models.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}

	return database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chat_turns (user_email, role, content, invocations, created_at)
			 VALUES ($1, $2, $3, $4, $5)`)
		if err != nil {
			return fmt.Errorf("prepare chat insert: %w", err)
		}
		defer stmt.Close()

		for _, turn := range turns {
			invocations := turn.Invocations
			if invocations == nil {
				invocations = []models.ToolInvocation{}
			}
			payload, err := json.Marshal(invocations)
			if err != nil {
				return fmt.Errorf("encode invocations: %w", err)
			}

			if _, err := stmt.ExecContext(ctx, email, turn.Role, turn.Content, string(payload), turn.CreatedAt); err != nil {
				return fmt.Errorf("insert chat turn: %w", err)
			}
		}

		return nil
	})
}

func (s *Postgres) ChatHistory(ctx context.Context, email string, limit int) ([]models.ChatTurn, error) {
	if limit <= 0 {
		return []models.ChatTurn{}, nil
	}

	query := `
		SELECT role, content, invocations, created_at
		FROM (
			SELECT id, role, content, invocations, created_at
			FROM chat_turns
			WHERE user_email = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	defer rows.Close()

	turns := []models.ChatTurn{}
	for rows.Next() {
		var turn models.ChatTurn
		var payload []byte
		if err := rows.Scan(&turn.Role, &turn.Content, &payload, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		if err := json.Unmarshal(payload, &turn.Invocations); err != nil {
			return nil, fmt.Errorf("decode invocations: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return turns, nil
}
