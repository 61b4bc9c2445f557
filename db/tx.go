package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/battlestacks/battlestacks/repositories"
	"github.com/lib/pq"
)

// ErrTransactionConflict is surfaced when Postgres aborts a serializable
// transaction because a concurrent writer touched the same rows
// (serialization_failure or deadlock_detected). Callers must treat it as
// transient and retry with a fresh read.
var ErrTransactionConflict = errors.New("transaction aborted due to concurrent modification")

// TxManager runs functions inside serializable transactions. Every
// read-modify-write on a tournament's slot counter goes through here, so
// concurrent admin confirmations cannot produce lost updates.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunSerializable executes fn inside a single serializable transaction.
// fn receives the transaction as an executor to thread through repository
// calls. A conflict abort is mapped to ErrTransactionConflict; the manager
// itself performs exactly one attempt.
func (m *TxManager) RunSerializable(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", mapConflict(err), rbErr)
		}
		return mapConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapConflict(err))
	}
	return nil
}

func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
		}
	}
	return err
}
