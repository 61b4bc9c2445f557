package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/battlestacks/battlestacks/db"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
)

// TxRunner abstracts db.TxManager so the workflow can be exercised in tests
// without a live Postgres.
type TxRunner interface {
	RunSerializable(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

const (
	maxConflictRetries = 3
	retryBaseDelay     = 25 * time.Millisecond
)

// ConfirmResult reports the state after a successful confirmation.
// SpawnedSeries is non-nil only when the confirmation filled the last slot
// and a fresh series instance was created.
type ConfirmResult struct {
	Tournament    *models.Tournament   `json:"tournament"`
	Registration  *models.Registration `json:"registration"`
	SpawnedSeries *models.Tournament   `json:"spawned_series,omitempty"`
}

// PaymentService owns the slot/payment transaction workflow: confirming a
// registration's UPI payment and the inverse mark-pending operation. Both
// keep slots_filled, the confirmed roster and the registration's payment
// status mutually consistent inside one serializable transaction.
type PaymentService struct {
	tx               TxRunner
	registrationRepo repositories.RegistrationRepository
	tournamentRepo   repositories.TournamentRepository
	logger           *slog.Logger
}

func NewPaymentService(
	tx TxRunner,
	registrationRepo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		tx:               tx,
		registrationRepo: registrationRepo,
		tournamentRepo:   tournamentRepo,
		logger:           logger,
	}
}

// ConfirmPayment marks a registration's entry fee as received. Inside one
// serializable transaction it re-reads the tournament, rejects the
// confirmation when no slot is free, flips the registration to confirmed,
// increments slots_filled and appends the team to the roster. When the last
// slot fills, the tournament moves to ongoing and a fresh upcoming copy is
// spawned as the next instance of the series.
//
// Confirming an already confirmed registration is a no-op. Conflict aborts
// are retried up to maxConflictRetries times with jittered backoff before
// being surfaced.
func (s *PaymentService) ConfirmPayment(ctx context.Context, registrationID int) (*ConfirmResult, error) {
	var result *ConfirmResult
	err := s.withConflictRetry(ctx, "confirm payment", registrationID, func() error {
		return s.tx.RunSerializable(ctx, func(exec repositories.SQLExecutor) error {
			var txErr error
			result, txErr = s.confirmInTx(ctx, exec, registrationID)
			return txErr
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentService) confirmInTx(ctx context.Context, exec repositories.SQLExecutor, registrationID int) (*ConfirmResult, error) {
	reg, err := s.registrationRepo.GetByID(ctx, exec, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, exec, reg.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	if reg.PaymentStatus == models.PaymentConfirmed {
		// Already applied; repeating the action must not double-count the slot.
		return &ConfirmResult{Tournament: tournament, Registration: reg}, nil
	}

	if tournament.SlotsFilled+1 > tournament.SlotsTotal {
		return nil, fmt.Errorf("%w: %d of %d slots taken", ErrTournamentFull, tournament.SlotsFilled, tournament.SlotsTotal)
	}

	if err := s.registrationRepo.UpdatePaymentStatus(ctx, exec, reg.ID, models.PaymentConfirmed); err != nil {
		return nil, err
	}
	reg.PaymentStatus = models.PaymentConfirmed

	team := reg.BracketTeam()
	if !tournament.ConfirmedTeams.Contains(team) {
		tournament.ConfirmedTeams = append(tournament.ConfirmedTeams, team)
	}
	tournament.SlotsFilled++
	if err := s.tournamentRepo.UpdateSlotsAndRoster(ctx, exec, tournament.ID, tournament.SlotsFilled, tournament.ConfirmedTeams); err != nil {
		return nil, err
	}

	result := &ConfirmResult{Tournament: tournament, Registration: reg}

	if tournament.IsFull() {
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournament.ID, models.StatusOngoing); err != nil {
			return nil, err
		}
		tournament.Status = models.StatusOngoing

		clone := nextSeriesInstance(tournament)
		if err := s.tournamentRepo.Create(ctx, exec, clone); err != nil {
			return nil, err
		}
		result.SpawnedSeries = clone

		s.logger.Info("tournament filled, next series instance spawned",
			slog.Int("tournament_id", tournament.ID),
			slog.Int("spawned_id", clone.ID),
			slog.Int("series_number", clone.SeriesNumber),
		)
	}

	return result, nil
}

// MarkPending reverts a confirmation: registration back to pending, slot
// counter decremented, the exactly matching roster entry removed. It is the
// precise inverse of ConfirmPayment's slot and roster effects.
//
// A series instance spawned by the original confirmation is NOT retracted:
// by the time a confirmation is reversed the next instance may already hold
// registrations of its own, so it stays as an independent tournament.
func (s *PaymentService) MarkPending(ctx context.Context, registrationID int) (*ConfirmResult, error) {
	var result *ConfirmResult
	err := s.withConflictRetry(ctx, "mark pending", registrationID, func() error {
		return s.tx.RunSerializable(ctx, func(exec repositories.SQLExecutor) error {
			var txErr error
			result, txErr = s.markPendingInTx(ctx, exec, registrationID)
			return txErr
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentService) markPendingInTx(ctx context.Context, exec repositories.SQLExecutor, registrationID int) (*ConfirmResult, error) {
	reg, err := s.registrationRepo.GetByID(ctx, exec, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, exec, reg.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	if reg.PaymentStatus == models.PaymentPending {
		return &ConfirmResult{Tournament: tournament, Registration: reg}, nil
	}

	roster, removed := tournament.ConfirmedTeams.Remove(reg.BracketTeam())
	if !removed {
		return nil, fmt.Errorf("%w: %q", ErrTeamNotFound, reg.TeamName)
	}

	if err := s.registrationRepo.UpdatePaymentStatus(ctx, exec, reg.ID, models.PaymentPending); err != nil {
		return nil, err
	}
	reg.PaymentStatus = models.PaymentPending

	tournament.ConfirmedTeams = roster
	tournament.SlotsFilled--
	if err := s.tournamentRepo.UpdateSlotsAndRoster(ctx, exec, tournament.ID, tournament.SlotsFilled, tournament.ConfirmedTeams); err != nil {
		return nil, err
	}

	return &ConfirmResult{Tournament: tournament, Registration: reg}, nil
}

// nextSeriesInstance copies a just-filled tournament into a fresh upcoming
// one: empty roster, no bracket, no winner, zero slots filled, and the
// series link advanced by one.
func nextSeriesInstance(t *models.Tournament) *models.Tournament {
	seriesID := t.ID
	if t.SeriesID != nil {
		seriesID = *t.SeriesID
	}
	seriesNumber := t.SeriesNumber
	if seriesNumber < 1 {
		seriesNumber = 1
	}

	return &models.Tournament{
		Title:          t.Title,
		Game:           t.Game,
		Mode:           t.Mode,
		RegClosesAt:    t.RegClosesAt,
		StartsAt:       t.StartsAt,
		EntryFee:       t.EntryFee,
		PrizePool:      t.PrizePool,
		SlotsTotal:     t.SlotsTotal,
		SlotsFilled:    0,
		Status:         models.StatusUpcoming,
		Rules:          t.Rules,
		ConfirmedTeams: models.BracketTeamList{},
		SeriesID:       &seriesID,
		SeriesNumber:   seriesNumber + 1,
		BannerKey:      t.BannerKey,
	}
}

// withConflictRetry re-runs op when the storage layer reports a serialization
// conflict. Each retry re-reads inside a fresh transaction, so the bounded
// loop is the whole recovery strategy for contended confirmations.
func (s *PaymentService) withConflictRetry(ctx context.Context, action string, registrationID int, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, db.ErrTransactionConflict) {
			return err
		}

		s.logger.Warn("transaction conflict, retrying",
			slog.String("action", action),
			slog.Int("registration_id", registrationID),
			slog.Int("attempt", attempt),
		)

		if attempt < maxConflictRetries {
			delay := retryBaseDelay*time.Duration(attempt) + time.Duration(rand.Int63n(int64(retryBaseDelay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
