package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/battlestacks/battlestacks/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("wallet balance is insufficient")
	ErrRedemptionNotFound  = errors.New("redemption not found")
)

type WalletRepository interface {
	GetByUserID(ctx context.Context, exec SQLExecutor, userID int) (*models.Wallet, error)
	// Credit upserts the wallet row and appends the ledger entry in one shot.
	Credit(ctx context.Context, exec SQLExecutor, txn *models.WalletTransaction) error
	// Debit decrements the balance, failing with ErrInsufficientBalance
	// instead of letting it go negative.
	Debit(ctx context.Context, exec SQLExecutor, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID int, limit, offset int) ([]models.WalletTransaction, error)
	CreateRedemption(ctx context.Context, exec SQLExecutor, red *models.Redemption) error
	GetRedemptionByID(ctx context.Context, exec SQLExecutor, id int) (*models.Redemption, error)
	ListRedemptions(ctx context.Context, status *models.RedemptionStatus, limit, offset int) ([]models.Redemption, error)
	SettleRedemption(ctx context.Context, exec SQLExecutor, id int, status models.RedemptionStatus) error
}

type postgresWalletRepository struct {
	db *sql.DB
}

func NewPostgresWalletRepository(db *sql.DB) WalletRepository {
	return &postgresWalletRepository{db: db}
}

func (r *postgresWalletRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresWalletRepository) GetByUserID(ctx context.Context, exec SQLExecutor, userID int) (*models.Wallet, error) {
	executor := r.getExecutor(exec)
	query := `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`

	var w models.Wallet
	err := executor.QueryRowContext(ctx, query, userID).Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A user without ledger activity has an implicit zero wallet.
			return &models.Wallet{UserID: userID}, nil
		}
		return nil, err
	}
	return &w, nil
}

func (r *postgresWalletRepository) Credit(ctx context.Context, exec SQLExecutor, txn *models.WalletTransaction) error {
	if txn.Amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", txn.Amount)
	}
	executor := r.getExecutor(exec)

	upsert := `
		INSERT INTO wallets (user_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()`
	if _, err := executor.ExecContext(ctx, upsert, txn.UserID, txn.Amount); err != nil {
		return fmt.Errorf("failed to credit wallet for user %d: %w", txn.UserID, err)
	}

	return r.insertTransaction(ctx, executor, txn)
}

func (r *postgresWalletRepository) Debit(ctx context.Context, exec SQLExecutor, txn *models.WalletTransaction) error {
	if txn.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative, got %d", txn.Amount)
	}
	executor := r.getExecutor(exec)

	update := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = now()
		WHERE user_id = $2 AND balance + $1 >= 0`
	result, err := executor.ExecContext(ctx, update, txn.Amount, txn.UserID)
	if err != nil {
		return fmt.Errorf("failed to debit wallet for user %d: %w", txn.UserID, err)
	}
	if err := checkAffectedRows(result, ErrInsufficientBalance); err != nil {
		return err
	}

	return r.insertTransaction(ctx, executor, txn)
}

func (r *postgresWalletRepository) insertTransaction(ctx context.Context, executor SQLExecutor, txn *models.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (user_id, amount, kind, reference, tournament_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return executor.QueryRowContext(ctx, query,
		txn.UserID, txn.Amount, txn.Kind, txn.Reference, txn.TournamentID, txn.Note,
	).Scan(&txn.ID, &txn.CreatedAt)
}

func (r *postgresWalletRepository) ListTransactions(ctx context.Context, userID int, limit, offset int) ([]models.WalletTransaction, error) {
	query := `
		SELECT id, user_id, amount, kind, reference, tournament_id, note, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]models.WalletTransaction, 0)
	for rows.Next() {
		var t models.WalletTransaction
		if scanErr := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Reference, &t.TournamentID, &t.Note, &t.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *postgresWalletRepository) CreateRedemption(ctx context.Context, exec SQLExecutor, red *models.Redemption) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO redemptions (user_id, amount, upi_handle, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return executor.QueryRowContext(ctx, query,
		red.UserID, red.Amount, red.UPIHandle, red.Status,
	).Scan(&red.ID, &red.CreatedAt)
}

func (r *postgresWalletRepository) GetRedemptionByID(ctx context.Context, exec SQLExecutor, id int) (*models.Redemption, error) {
	executor := r.getExecutor(exec)
	query := `SELECT id, user_id, amount, upi_handle, status, created_at, settled_at FROM redemptions WHERE id = $1`

	var red models.Redemption
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&red.ID, &red.UserID, &red.Amount, &red.UPIHandle, &red.Status, &red.CreatedAt, &red.SettledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return &red, nil
}

func (r *postgresWalletRepository) ListRedemptions(ctx context.Context, status *models.RedemptionStatus, limit, offset int) ([]models.Redemption, error) {
	query := `SELECT id, user_id, amount, upi_handle, status, created_at, settled_at FROM redemptions WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *status)
		argID++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reds := make([]models.Redemption, 0)
	for rows.Next() {
		var red models.Redemption
		if scanErr := rows.Scan(&red.ID, &red.UserID, &red.Amount, &red.UPIHandle, &red.Status, &red.CreatedAt, &red.SettledAt); scanErr != nil {
			return nil, scanErr
		}
		reds = append(reds, red)
	}
	return reds, rows.Err()
}

func (r *postgresWalletRepository) SettleRedemption(ctx context.Context, exec SQLExecutor, id int, status models.RedemptionStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE redemptions SET status = $1, settled_at = now() WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, status, id, models.RedemptionRequested)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRedemptionNotFound)
}
