package transaction

import (
	"context"
	"database/sql"
	"fmt"
)

// Manager runs functions inside a database transaction. It is backend
// neutral: both supported engines expose *sql.DB semantics.
type Manager struct {
	db *sql.DB
}

// NewManager creates a transaction manager over the given database.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// InTransaction executes fn within a transaction. The transaction is
// carried in the returned context; repositories pick it up via
// GetTxFromContext. Commit on normal return, rollback on error.
func (m *Manager) InTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}

// txKey is used as a key for storing transaction in context
type txKey struct{}

// GetTxFromContext retrieves a transaction from context.
// This is a helper function for repositories to use.
func GetTxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
