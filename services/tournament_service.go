package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/battlestacks/battlestacks/brackets"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
	"github.com/battlestacks/battlestacks/storage"
	"github.com/google/uuid"
)

type CreateTournamentInput struct {
	Title       string          `json:"title"`
	Game        string          `json:"game"`
	Mode        models.TeamMode `json:"mode"`
	RegClosesAt time.Time       `json:"reg_closes_at"`
	StartsAt    *time.Time      `json:"starts_at"`
	EntryFee    int             `json:"entry_fee"`
	PrizePool   int             `json:"prize_pool"`
	SlotsTotal  int             `json:"slots_total"`
	Rules       []string        `json:"rules"`
}

type UpdateTournamentInput struct {
	Title       *string    `json:"title"`
	Game        *string    `json:"game"`
	RegClosesAt *time.Time `json:"reg_closes_at"`
	StartsAt    *time.Time `json:"starts_at"`
	EntryFee    *int       `json:"entry_fee"`
	PrizePool   *int       `json:"prize_pool"`
	SlotsTotal  *int       `json:"slots_total"`
	Rules       []string   `json:"rules"`
}

// TournamentService covers tournament CRUD, the admin status correction
// path, banner uploads and the deadline scheduler.
type TournamentService struct {
	repo     repositories.TournamentRepository
	uploader storage.FileUploader
	hub      *brackets.Hub
	logger   *slog.Logger
}

func NewTournamentService(
	repo repositories.TournamentRepository,
	uploader storage.FileUploader,
	hub *brackets.Hub,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		repo:     repo,
		uploader: uploader,
		hub:      hub,
		logger:   logger,
	}
}

func (s *TournamentService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateTournamentInput(input.Title, input.Mode, input.SlotsTotal, input.RegClosesAt, time.Now()); err != nil {
		return nil, err
	}

	tournament := &models.Tournament{
		Title:          input.Title,
		Game:           input.Game,
		Mode:           input.Mode,
		RegClosesAt:    input.RegClosesAt,
		StartsAt:       input.StartsAt,
		EntryFee:       input.EntryFee,
		PrizePool:      input.PrizePool,
		SlotsTotal:     input.SlotsTotal,
		SlotsFilled:    0,
		Status:         models.StatusUpcoming,
		Rules:          input.Rules,
		ConfirmedTeams: models.BracketTeamList{},
		SeriesNumber:   1,
	}

	if err := s.repo.Create(ctx, nil, tournament); err != nil {
		return nil, err
	}
	s.populateBannerURL(tournament)
	return tournament, nil
}

func (s *TournamentService) GetTournamentByID(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	s.populateBannerURL(tournament)
	return tournament, nil
}

func (s *TournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	tournaments, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range tournaments {
		s.populateBannerURL(&tournaments[i])
	}
	return tournaments, nil
}

func (s *TournamentService) UpdateTournament(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	tournament, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		tournament.Title = *input.Title
	}
	if input.Game != nil {
		tournament.Game = *input.Game
	}
	if input.RegClosesAt != nil {
		tournament.RegClosesAt = *input.RegClosesAt
	}
	if input.StartsAt != nil {
		tournament.StartsAt = input.StartsAt
	}
	if input.EntryFee != nil {
		tournament.EntryFee = *input.EntryFee
	}
	if input.PrizePool != nil {
		tournament.PrizePool = *input.PrizePool
	}
	if input.SlotsTotal != nil {
		if !isPowerOfTwoSlots(*input.SlotsTotal) {
			return nil, fmt.Errorf("%w: got %d", ErrTournamentInvalidSlots, *input.SlotsTotal)
		}
		if *input.SlotsTotal < tournament.SlotsFilled {
			return nil, fmt.Errorf("%w: %d confirmed, requested %d slots",
				ErrTournamentHasConfirmedSlots, tournament.SlotsFilled, *input.SlotsTotal)
		}
		tournament.SlotsTotal = *input.SlotsTotal
	}
	if input.Rules != nil {
		tournament.Rules = input.Rules
	}

	if err := s.repo.Update(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

// ChangeStatus moves a tournament through its lifecycle. Forward moves are
// validated; force allows an admin to correct a mistake by moving backwards.
func (s *TournamentService) ChangeStatus(ctx context.Context, id int, next models.TournamentStatus, force bool) (*models.Tournament, error) {
	if !isValidStatus(next) {
		return nil, fmt.Errorf("%w: %q", ErrTournamentInvalidStatus, next)
	}

	tournament, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !force && !isValidStatusTransition(tournament.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, tournament.Status, next)
	}

	if err := s.repo.UpdateStatus(ctx, nil, id, next); err != nil {
		return nil, err
	}
	tournament.Status = next

	s.hub.BroadcastToRoom(strconv.Itoa(id), brackets.Message{
		Type:    brackets.EventSlotsUpdated,
		Payload: tournament,
	})
	return tournament, nil
}

func (s *TournamentService) DeleteTournament(ctx context.Context, id int) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return ErrTournamentNotFound
	}
	return err
}

// UploadBanner stores the banner image and records its key on the tournament.
func (s *TournamentService) UploadBanner(ctx context.Context, id int, contentType string, reader io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("%w: banner storage is not configured", ErrValidationFailed)
	}

	tournament, err := s.GetTournamentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	key := fmt.Sprintf("tournaments/%d/banner-%s%s", id, uuid.NewString(), ext)

	result, err := s.uploader.Upload(ctx, key, contentType, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to upload banner: %w", err)
	}

	oldKey := tournament.BannerKey
	if err := s.repo.UpdateBannerKey(ctx, id, &result.Key); err != nil {
		return nil, err
	}
	tournament.BannerKey = &result.Key

	if oldKey != nil && *oldKey != result.Key {
		if delErr := s.uploader.Delete(ctx, *oldKey); delErr != nil {
			s.logger.Warn("failed to delete previous banner",
				slog.Int("tournament_id", id), slog.String("key", *oldKey), slog.Any("error", delErr))
		}
	}

	s.populateBannerURL(tournament)
	return tournament, nil
}

// CloseExpiredRegistrations flips upcoming tournaments whose deadline has
// passed to ongoing. Runs from the scheduler goroutine in main.
func (s *TournamentService) CloseExpiredRegistrations(ctx context.Context) error {
	expired, err := s.repo.ListExpiredUpcoming(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, t := range expired {
		if err := s.repo.UpdateStatus(ctx, nil, t.ID, models.StatusOngoing); err != nil {
			s.logger.Error("failed to close registration",
				slog.Int("tournament_id", t.ID), slog.Any("error", err))
			continue
		}
		s.logger.Info("registration window closed",
			slog.Int("tournament_id", t.ID),
			slog.Time("deadline", t.RegClosesAt),
			slog.Int("slots_filled", t.SlotsFilled),
		)
	}
	return nil
}

func (s *TournamentService) populateBannerURL(t *models.Tournament) {
	if t.BannerKey != nil && *t.BannerKey != "" && s.uploader != nil {
		if url := s.uploader.GetPublicURL(*t.BannerKey); url != "" {
			t.BannerURL = &url
		}
	}
}

func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported banner content type %q", contentType)
	}
}
