package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
	"github.com/google/uuid"
)

// WalletService exposes the prize wallet: balance, ledger, and the
// redemption flow that moves winnings back out over UPI.
type WalletService struct {
	tx       TxRunner
	repo     repositories.WalletRepository
	userRepo repositories.UserRepository
	logger   *slog.Logger
}

func NewWalletService(
	tx TxRunner,
	repo repositories.WalletRepository,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) *WalletService {
	return &WalletService{
		tx:       tx,
		repo:     repo,
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *WalletService) GetWallet(ctx context.Context, userID int) (*models.Wallet, error) {
	return s.repo.GetByUserID(ctx, nil, userID)
}

func (s *WalletService) ListTransactions(ctx context.Context, userID, limit, offset int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// RequestRedemption debits the wallet and records the payout request in one
// transaction, so the balance can never be promised twice.
func (s *WalletService) RequestRedemption(ctx context.Context, userID, amount int, upiHandle string) (*models.Redemption, error) {
	if amount <= 0 {
		return nil, ErrInvalidRedemption
	}
	upiHandle = strings.TrimSpace(upiHandle)
	if upiHandle == "" {
		// Fall back to the handle saved on the profile.
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		if user.UPIHandle == nil || *user.UPIHandle == "" {
			return nil, fmt.Errorf("%w: UPI handle is required", ErrValidationFailed)
		}
		upiHandle = *user.UPIHandle
	}

	var redemption *models.Redemption
	err := s.tx.RunSerializable(ctx, func(exec repositories.SQLExecutor) error {
		note := fmt.Sprintf("redemption to %s", upiHandle)
		txn := &models.WalletTransaction{
			UserID:    userID,
			Amount:    -amount,
			Kind:      models.TxnRedemptionDebit,
			Reference: newTransactionReference(),
			Note:      &note,
		}
		if err := s.repo.Debit(ctx, exec, txn); err != nil {
			if errors.Is(err, repositories.ErrInsufficientBalance) {
				return ErrInsufficientBalance
			}
			return err
		}

		red := &models.Redemption{
			UserID:    userID,
			Amount:    amount,
			UPIHandle: upiHandle,
			Status:    models.RedemptionRequested,
		}
		if err := s.repo.CreateRedemption(ctx, exec, red); err != nil {
			return err
		}
		redemption = red
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("redemption requested",
		slog.Int("user_id", userID),
		slog.Int("amount", amount),
		slog.Int("redemption_id", redemption.ID),
	)
	return redemption, nil
}

// SettleRedemption resolves a requested payout. Marking it paid is a pure
// status flip (the debit already happened); rejecting refunds the amount
// with a compensating credit.
func (s *WalletService) SettleRedemption(ctx context.Context, redemptionID int, status models.RedemptionStatus) (*models.Redemption, error) {
	if status != models.RedemptionPaid && status != models.RedemptionRejected {
		return nil, fmt.Errorf("%w: settlement status must be paid or rejected", ErrValidationFailed)
	}

	var redemption *models.Redemption
	err := s.tx.RunSerializable(ctx, func(exec repositories.SQLExecutor) error {
		red, err := s.repo.GetRedemptionByID(ctx, exec, redemptionID)
		if err != nil {
			if errors.Is(err, repositories.ErrRedemptionNotFound) {
				return ErrRedemptionNotFound
			}
			return err
		}

		if err := s.repo.SettleRedemption(ctx, exec, red.ID, status); err != nil {
			if errors.Is(err, repositories.ErrRedemptionNotFound) {
				// Already settled; the WHERE status guard matched nothing.
				return fmt.Errorf("%w: redemption %d is not open", ErrValidationFailed, red.ID)
			}
			return err
		}
		red.Status = status

		if status == models.RedemptionRejected {
			note := fmt.Sprintf("refund for rejected redemption %d", red.ID)
			txn := &models.WalletTransaction{
				UserID:    red.UserID,
				Amount:    red.Amount,
				Kind:      models.TxnPrizeCredit,
				Reference: newTransactionReference(),
				Note:      &note,
			}
			if err := s.repo.Credit(ctx, exec, txn); err != nil {
				return err
			}
		}

		redemption = red
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}

func (s *WalletService) ListRedemptions(ctx context.Context, status *models.RedemptionStatus, limit, offset int) ([]models.Redemption, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListRedemptions(ctx, status, limit, offset)
}

func newTransactionReference() string {
	return uuid.NewString()
}
