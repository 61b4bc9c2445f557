package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/battlestacks/battlestacks/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrTournamentTitleTaken    = errors.New("tournament title already used in this series window")
	ErrTournamentInUse         = errors.New("tournament has registrations and cannot be deleted")
	ErrTournamentInvalidSeries = errors.New("invalid series reference")
)

type ListTournamentsFilter struct {
	Game     *string
	Mode     *models.TeamMode
	Status   *models.TournamentStatus
	SeriesID *int
	Limit    int
	Offset   int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, t *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	// UpdateSlotsAndRoster writes the counter and the roster together so the
	// slots_filled == len(confirmed_teams) invariant can never be half-applied.
	UpdateSlotsAndRoster(ctx context.Context, exec SQLExecutor, id int, slotsFilled int, roster models.BracketTeamList) error
	UpdateBracket(ctx context.Context, exec SQLExecutor, id int, bracket models.BracketRounds) error
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winner *models.WinnerRef) error
	UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error
	Delete(ctx context.Context, id int) error
	// ListExpiredUpcoming returns upcoming tournaments whose registration
	// deadline has passed, for the status scheduler.
	ListExpiredUpcoming(ctx context.Context, now time.Time) ([]*models.Tournament, error)
}

const tournamentColumns = `
	id, title, game, mode, reg_closes_at, starts_at, entry_fee, prize_pool,
	slots_total, slots_filled, status, rules, confirmed_teams, bracket,
	winner, series_id, series_number, banner_key, created_at`

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (
			title, game, mode, reg_closes_at, starts_at, entry_fee, prize_pool,
			slots_total, slots_filled, status, rules, confirmed_teams, bracket,
			series_id, series_number, banner_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Title, t.Game, t.Mode, t.RegClosesAt, t.StartsAt, t.EntryFee, t.PrizePool,
		t.SlotsTotal, t.SlotsFilled, t.Status, t.Rules, t.ConfirmedTeams, t.Bracket,
		t.SeriesID, t.SeriesNumber, t.BannerKey,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.Game, &t.Mode, &t.RegClosesAt, &t.StartsAt, &t.EntryFee, &t.PrizePool,
		&t.SlotsTotal, &t.SlotsFilled, &t.Status, &t.Rules, &t.ConfirmedTeams, &t.Bracket,
		&t.Winner, &t.SeriesID, &t.SeriesNumber, &t.BannerKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Game != nil {
		query += fmt.Sprintf(" AND game = $%d", argID)
		args = append(args, *filter.Game)
		argID++
	}
	if filter.Mode != nil {
		query += fmt.Sprintf(" AND mode = $%d", argID)
		args = append(args, *filter.Mode)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.SeriesID != nil {
		query += fmt.Sprintf(" AND (series_id = $%d OR id = $%d)", argID, argID)
		args = append(args, *filter.SeriesID)
		argID++
	}

	query += " ORDER BY reg_closes_at DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := rows.Scan(
			&t.ID, &t.Title, &t.Game, &t.Mode, &t.RegClosesAt, &t.StartsAt, &t.EntryFee, &t.PrizePool,
			&t.SlotsTotal, &t.SlotsFilled, &t.Status, &t.Rules, &t.ConfirmedTeams, &t.Bracket,
			&t.Winner, &t.SeriesID, &t.SeriesNumber, &t.BannerKey, &t.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments SET
			title = $1, game = $2, mode = $3, reg_closes_at = $4, starts_at = $5,
			entry_fee = $6, prize_pool = $7, slots_total = $8, rules = $9
		WHERE id = $10`

	result, err := r.db.ExecContext(ctx, query,
		t.Title, t.Game, t.Mode, t.RegClosesAt, t.StartsAt,
		t.EntryFee, t.PrizePool, t.SlotsTotal, t.Rules,
		t.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateSlotsAndRoster(ctx context.Context, exec SQLExecutor, id int, slotsFilled int, roster models.BracketTeamList) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET slots_filled = $1, confirmed_teams = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, slotsFilled, roster, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBracket(ctx context.Context, exec SQLExecutor, id int, bracket models.BracketRounds) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET bracket = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, bracket, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winner *models.WinnerRef) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET winner = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, winner, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	query := `UPDATE tournaments SET banner_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, bannerKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament banner key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM tournaments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListExpiredUpcoming(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE status = $1 AND reg_closes_at <= $2`

	rows, err := r.db.QueryContext(ctx, query, models.StatusUpcoming, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired upcoming tournaments: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		var t models.Tournament
		if scanErr := rows.Scan(
			&t.ID, &t.Title, &t.Game, &t.Mode, &t.RegClosesAt, &t.StartsAt, &t.EntryFee, &t.PrizePool,
			&t.SlotsTotal, &t.SlotsFilled, &t.Status, &t.Rules, &t.ConfirmedTeams, &t.Bracket,
			&t.Winner, &t.SeriesID, &t.SeriesNumber, &t.BannerKey, &t.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, &t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrTournamentTitleTaken
		case "23503":
			switch pqErr.Constraint {
			case "tournaments_series_id_fkey":
				return ErrTournamentInvalidSeries
			default:
				return ErrTournamentInUse
			}
		}
	}
	return err
}
