package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/battlestacks/battlestacks/brackets"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
	"golang.org/x/sync/errgroup"
)

// BracketService evolves a tournament's single-elimination tree and owns
// the end-of-tournament winner declaration. The engine in the brackets
// package stays pure; this service loads state, applies the engine, and
// persists and broadcasts the result.
type BracketService interface {
	GenerateBracket(ctx context.Context, tournamentID int) (*models.Tournament, error)
	ResetBracket(ctx context.Context, tournamentID int) (*models.Tournament, error)
	AdvanceWinner(ctx context.Context, tournamentID, roundIdx, matchupIdx int, winnerTeamName string) (*models.Tournament, error)
	RemoveTeam(ctx context.Context, tournamentID int, team models.BracketTeam) (*models.Tournament, error)
	DeclareWinner(ctx context.Context, tournamentID, declaredBy int) (*models.WinnerLog, error)
	GetTournamentDetails(ctx context.Context, tournamentID int) (*TournamentDetails, error)
}

// TournamentDetails is the aggregate spectators and admins fetch in one call.
type TournamentDetails struct {
	Tournament    *models.Tournament     `json:"tournament"`
	Registrations []*models.Registration `json:"registrations"`
	WinnerLog     *models.WinnerLog      `json:"winner_log,omitempty"`
}

type bracketService struct {
	tx               TxRunner
	tournamentRepo   repositories.TournamentRepository
	registrationRepo repositories.RegistrationRepository
	winnerLogRepo    repositories.WinnerLogRepository
	walletRepo       repositories.WalletRepository
	hub              *brackets.Hub
	logger           *slog.Logger
}

func NewBracketService(
	tx TxRunner,
	tournamentRepo repositories.TournamentRepository,
	registrationRepo repositories.RegistrationRepository,
	winnerLogRepo repositories.WinnerLogRepository,
	walletRepo repositories.WalletRepository,
	hub *brackets.Hub,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		tx:               tx,
		tournamentRepo:   tournamentRepo,
		registrationRepo: registrationRepo,
		winnerLogRepo:    winnerLogRepo,
		walletRepo:       walletRepo,
		hub:              hub,
		logger:           logger,
	}
}

// GenerateBracket seeds a fresh bracket from the confirmed roster. Calling
// it on a tournament that already has a bracket regenerates it, which is
// also how reset works: reset and reshuffle are the same operation.
func (s *bracketService) GenerateBracket(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	rounds, err := brackets.Generate(tournament.ConfirmedTeams, tournament.SlotsTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	if err := s.tournamentRepo.UpdateBracket(ctx, nil, tournament.ID, rounds); err != nil {
		return nil, err
	}
	tournament.Bracket = rounds

	s.broadcastBracket(tournament)
	s.logger.Info("bracket generated",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("rounds", len(rounds)),
		slog.Int("teams", len(tournament.ConfirmedTeams)),
	)
	return tournament, nil
}

func (s *bracketService) ResetBracket(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	return s.GenerateBracket(ctx, tournamentID)
}

// AdvanceWinner records the winner of one matchup by team name and seeds it
// into the next round. Selecting the recorded winner again is a no-op.
func (s *bracketService) AdvanceWinner(ctx context.Context, tournamentID, roundIdx, matchupIdx int, winnerTeamName string) (*models.Tournament, error) {
	tournament, err := s.loadTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(tournament.Bracket) == 0 {
		return nil, ErrBracketNotGenerated
	}

	winner, ok := findTeamInMatchup(tournament.Bracket, roundIdx, matchupIdx, winnerTeamName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTeamNotFound, winnerTeamName)
	}

	if err := brackets.AdvanceWinner(tournament.Bracket, roundIdx, matchupIdx, winner); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	if err := s.tournamentRepo.UpdateBracket(ctx, nil, tournament.ID, tournament.Bracket); err != nil {
		return nil, err
	}

	s.broadcastBracket(tournament)
	return tournament, nil
}

// RemoveTeam drops a confirmed team entirely: roster entry, slot, and its
// registration row go in one transaction, and any existing bracket is
// regenerated from the shrunk roster. Regeneration is the recovery path;
// an existing tree is never patched in place.
func (s *bracketService) RemoveTeam(ctx context.Context, tournamentID int, team models.BracketTeam) (*models.Tournament, error) {
	var tournament *models.Tournament
	err := s.tx.RunSerializable(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByID(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		roster, removed := t.ConfirmedTeams.Remove(team)
		if !removed {
			return fmt.Errorf("%w: %q", ErrTeamNotFound, team.TeamName)
		}

		reg, err := s.registrationRepo.FindConfirmedByTeam(ctx, exec, t.ID, team.TeamName)
		if err != nil && !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return err
		}
		if reg != nil {
			if err := s.registrationRepo.Delete(ctx, exec, reg.ID); err != nil {
				return err
			}
		}

		t.ConfirmedTeams = roster
		t.SlotsFilled--
		if err := s.tournamentRepo.UpdateSlotsAndRoster(ctx, exec, t.ID, t.SlotsFilled, t.ConfirmedTeams); err != nil {
			return err
		}

		if len(t.Bracket) > 0 {
			rounds, err := brackets.Reset(t.ConfirmedTeams, t.SlotsTotal)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrValidationFailed, err)
			}
			if err := s.tournamentRepo.UpdateBracket(ctx, exec, t.ID, rounds); err != nil {
				return err
			}
			t.Bracket = rounds
		}

		tournament = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.broadcastBracket(tournament)
	s.logger.Info("team removed from tournament",
		slog.Int("tournament_id", tournament.ID),
		slog.String("team", team.TeamName),
		slog.Int("slots_filled", tournament.SlotsFilled),
	)
	return tournament, nil
}

// DeclareWinner finalizes a tournament once the final matchup has a winner:
// one immutable winner log row, tournament status to completed with the
// winner snapshot, and the prize pool credited to the captain's wallet, all
// in a single transaction.
func (s *bracketService) DeclareWinner(ctx context.Context, tournamentID, declaredBy int) (*models.WinnerLog, error) {
	var winnerLog *models.WinnerLog
	err := s.tx.RunSerializable(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetByID(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		winner := brackets.FinalWinner(t.Bracket)
		if winner == nil {
			if len(t.Bracket) == 0 {
				return ErrBracketNotGenerated
			}
			return ErrFinalNotDecided
		}

		log := &models.WinnerLog{
			TournamentID: t.ID,
			TeamName:     winner.TeamName,
			GameIDs:      append([]string(nil), winner.GameIDs...),
			PrizeAmount:  t.PrizePool,
			DeclaredBy:   declaredBy,
		}
		if err := s.winnerLogRepo.Create(ctx, exec, log); err != nil {
			if errors.Is(err, repositories.ErrWinnerAlreadyLogged) {
				return ErrWinnerAlreadyDeclared
			}
			return err
		}

		ref := &models.WinnerRef{
			TeamName:   winner.TeamName,
			GameIDs:    log.GameIDs,
			DeclaredAt: time.Now().UTC(),
		}
		if err := s.tournamentRepo.SetWinner(ctx, exec, t.ID, ref); err != nil {
			return err
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, t.ID, models.StatusCompleted); err != nil {
			return err
		}

		reg, err := s.registrationRepo.FindConfirmedByTeam(ctx, exec, t.ID, winner.TeamName)
		if err != nil {
			if errors.Is(err, repositories.ErrRegistrationNotFound) {
				return fmt.Errorf("%w: no confirmed registration for winning team %q", ErrRegistrationNotFound, winner.TeamName)
			}
			return err
		}

		if t.PrizePool > 0 {
			note := fmt.Sprintf("prize for %s", t.Title)
			txn := &models.WalletTransaction{
				UserID:       reg.UserID,
				Amount:       t.PrizePool,
				Kind:         models.TxnPrizeCredit,
				Reference:    newTransactionReference(),
				TournamentID: &t.ID,
				Note:         &note,
			}
			if err := s.walletRepo.Credit(ctx, exec, txn); err != nil {
				return err
			}
		}

		winnerLog = log
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom(strconv.Itoa(tournamentID), brackets.Message{
		Type:    brackets.EventWinnerDeclared,
		Payload: winnerLog,
	})
	s.logger.Info("winner declared",
		slog.Int("tournament_id", tournamentID),
		slog.String("team", winnerLog.TeamName),
		slog.Int("prize", winnerLog.PrizeAmount),
	)
	return winnerLog, nil
}

// GetTournamentDetails fetches the tournament row, its registrations and
// the winner log in parallel.
func (s *bracketService) GetTournamentDetails(ctx context.Context, tournamentID int) (*TournamentDetails, error) {
	details := &TournamentDetails{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := s.loadTournament(gCtx, tournamentID)
		if err != nil {
			return err
		}
		details.Tournament = t
		return nil
	})

	g.Go(func() error {
		regs, err := s.registrationRepo.ListByTournament(gCtx, tournamentID, nil)
		if err != nil {
			return err
		}
		details.Registrations = regs
		return nil
	})

	g.Go(func() error {
		log, err := s.winnerLogRepo.GetByTournament(gCtx, nil, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrWinnerLogNotFound) {
				return nil
			}
			return err
		}
		details.WinnerLog = log
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *bracketService) loadTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func (s *bracketService) broadcastBracket(t *models.Tournament) {
	s.hub.BroadcastToRoom(strconv.Itoa(t.ID), brackets.Message{
		Type:    brackets.EventBracketUpdated,
		Payload: t.Bracket,
	})
}

func findTeamInMatchup(rounds models.BracketRounds, roundIdx, matchupIdx int, teamName string) (models.BracketTeam, bool) {
	if roundIdx < 0 || roundIdx >= len(rounds) {
		return models.BracketTeam{}, false
	}
	if matchupIdx < 0 || matchupIdx >= len(rounds[roundIdx].Matchups) {
		return models.BracketTeam{}, false
	}
	m := rounds[roundIdx].Matchups[matchupIdx]
	if m.Team1 != nil && m.Team1.TeamName == teamName {
		return *m.Team1, true
	}
	if m.Team2 != nil && m.Team2.TeamName == teamName {
		return *m.Team2, true
	}
	return models.BracketTeam{}, false
}
