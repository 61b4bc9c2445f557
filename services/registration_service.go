package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
)

type RegisterTeamInput struct {
	TournamentID int      `json:"tournament_id"`
	TeamName     string   `json:"team_name"`
	GameIDs      []string `json:"game_ids"`
	UPIReference string   `json:"upi_reference"`
}

// RegistrationService handles the player side: creating a pending
// registration for a tournament slot. Admin confirm / mark-pending live in
// PaymentService.
type RegistrationService struct {
	repo           repositories.RegistrationRepository
	tournamentRepo repositories.TournamentRepository
}

func NewRegistrationService(
	repo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
) *RegistrationService {
	return &RegistrationService{
		repo:           repo,
		tournamentRepo: tournamentRepo,
	}
}

// Register creates a pending registration. The capacity check here is a
// courtesy: the authoritative check happens again inside ConfirmPayment's
// transaction, since pending registrations may exceed free slots.
func (s *RegistrationService) Register(ctx context.Context, userID int, input RegisterTeamInput) (*models.Registration, error) {
	if strings.TrimSpace(input.TeamName) == "" {
		return nil, ErrTeamNameRequired
	}
	if strings.TrimSpace(input.UPIReference) == "" {
		return nil, ErrUPIReferenceMissing
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, nil, input.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	if want := tournament.Mode.PlayersPerTeam(); len(input.GameIDs) != want {
		return nil, fmt.Errorf("%w: %s mode needs %d, got %d", ErrWrongPlayerCount, tournament.Mode, want, len(input.GameIDs))
	}
	if !tournament.RegistrationOpen(time.Now()) {
		if tournament.IsFull() {
			return nil, ErrTournamentFull
		}
		return nil, ErrRegistrationClosed
	}

	existing, err := s.repo.FindByUserAndTournament(ctx, userID, input.TournamentID)
	if err != nil && !errors.Is(err, repositories.ErrRegistrationNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrRegistrationConflict
	}

	reg := &models.Registration{
		TournamentID:  input.TournamentID,
		UserID:        userID,
		TeamName:      strings.TrimSpace(input.TeamName),
		GameIDs:       input.GameIDs,
		UPIReference:  strings.TrimSpace(input.UPIReference),
		PaymentStatus: models.PaymentPending,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		if errors.Is(err, repositories.ErrRegistrationConflict) {
			return nil, ErrRegistrationConflict
		}
		return nil, err
	}
	return reg, nil
}

func (s *RegistrationService) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	reg, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (s *RegistrationService) ListByTournament(ctx context.Context, tournamentID int, status *models.PaymentStatus) ([]*models.Registration, error) {
	return s.repo.ListByTournament(ctx, tournamentID, status)
}

// FindForUser returns the caller's registration in a tournament, if any.
func (s *RegistrationService) FindForUser(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	reg, err := s.repo.FindByUserAndTournament(ctx, userID, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}
