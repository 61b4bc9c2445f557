package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/battlestacks/battlestacks/models"
	"github.com/lib/pq"
)

var (
	ErrWinnerLogNotFound = errors.New("winner log not found")
	// ErrWinnerAlreadyLogged enforces the one-row-per-tournament rule via
	// the unique constraint on tournament_id.
	ErrWinnerAlreadyLogged = errors.New("winner already declared for this tournament")
)

type WinnerLogRepository interface {
	Create(ctx context.Context, exec SQLExecutor, log *models.WinnerLog) error
	GetByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.WinnerLog, error)
	List(ctx context.Context, limit, offset int) ([]models.WinnerLog, error)
}

type postgresWinnerLogRepository struct {
	db *sql.DB
}

func NewPostgresWinnerLogRepository(db *sql.DB) WinnerLogRepository {
	return &postgresWinnerLogRepository{db: db}
}

func (r *postgresWinnerLogRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresWinnerLogRepository) Create(ctx context.Context, exec SQLExecutor, log *models.WinnerLog) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO winner_logs (tournament_id, team_name, game_ids, prize_amount, declared_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		log.TournamentID, log.TeamName, log.GameIDs, log.PrizeAmount, log.DeclaredBy,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrWinnerAlreadyLogged
		}
		return err
	}
	return nil
}

func (r *postgresWinnerLogRepository) GetByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.WinnerLog, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, team_name, game_ids, prize_amount, declared_by, created_at
		FROM winner_logs WHERE tournament_id = $1`

	var log models.WinnerLog
	err := executor.QueryRowContext(ctx, query, tournamentID).Scan(
		&log.ID, &log.TournamentID, &log.TeamName, &log.GameIDs, &log.PrizeAmount, &log.DeclaredBy, &log.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWinnerLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *postgresWinnerLogRepository) List(ctx context.Context, limit, offset int) ([]models.WinnerLog, error) {
	query := `
		SELECT id, tournament_id, team_name, game_ids, prize_amount, declared_by, created_at
		FROM winner_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.WinnerLog, 0)
	for rows.Next() {
		var log models.WinnerLog
		if scanErr := rows.Scan(&log.ID, &log.TournamentID, &log.TeamName, &log.GameIDs, &log.PrizeAmount, &log.DeclaredBy, &log.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
