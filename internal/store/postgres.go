package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/axon-pharmacy/internal/database"
)

// Postgres implements Store on top of database/sql and lib/pq.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) DB() *sql.DB { return s.db }

// busy turns an exhausted retry into ErrLockTimeout while keeping the cause.
func busy(err error) error {
	if err == nil || !database.IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", database.ErrLockTimeout, err)
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
