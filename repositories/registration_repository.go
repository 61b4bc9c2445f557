package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/battlestacks/battlestacks/models"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationConflict covers both a duplicate team name inside one
	// tournament and the same user registering twice.
	ErrRegistrationConflict   = errors.New("team name or user already registered for this tournament")
	ErrRegistrationInvalidRef = errors.New("registration references a missing tournament or user")
)

type RegistrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error)
	ListByTournament(ctx context.Context, tournamentID int, status *models.PaymentStatus) ([]*models.Registration, error)
	FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error)
	// FindConfirmedByTeam resolves a roster entry back to its registration,
	// used when declaring winners and removing teams.
	FindConfirmedByTeam(ctx context.Context, exec SQLExecutor, tournamentID int, teamName string) (*models.Registration, error)
	UpdatePaymentStatus(ctx context.Context, exec SQLExecutor, id int, status models.PaymentStatus) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

const registrationColumns = `
	id, tournament_id, user_id, team_name, game_ids, upi_reference, payment_status, created_at`

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (tournament_id, user_id, team_name, game_ids, upi_reference, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		reg.TournamentID, reg.UserID, reg.TeamName, reg.GameIDs, reg.UPIReference, reg.PaymentStatus,
	).Scan(&reg.ID, &reg.CreatedAt)

	return r.handleRegistrationError(err)
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE id = $1`
	return r.scanOne(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, tournamentID int, status *models.PaymentStatus) ([]*models.Registration, error) {
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	if status != nil {
		query += ` AND payment_status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		if scanErr := rows.Scan(
			&reg.ID, &reg.TournamentID, &reg.UserID, &reg.TeamName,
			&reg.GameIDs, &reg.UPIReference, &reg.PaymentStatus, &reg.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		regs = append(regs, &reg)
	}
	return regs, rows.Err()
}

func (r *postgresRegistrationRepository) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE user_id = $1 AND tournament_id = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, tournamentID))
}

func (r *postgresRegistrationRepository) FindConfirmedByTeam(ctx context.Context, exec SQLExecutor, tournamentID int, teamName string) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + registrationColumns + `
		FROM registrations
		WHERE tournament_id = $1 AND team_name = $2 AND payment_status = $3`
	return r.scanOne(executor.QueryRowContext(ctx, query, tournamentID, teamName, models.PaymentConfirmed))
}

func (r *postgresRegistrationRepository) UpdatePaymentStatus(ctx context.Context, exec SQLExecutor, id int, status models.PaymentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE registrations SET payment_status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleRegistrationError(err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM registrations WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) scanOne(row *sql.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(
		&reg.ID, &reg.TournamentID, &reg.UserID, &reg.TeamName,
		&reg.GameIDs, &reg.UPIReference, &reg.PaymentStatus, &reg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (r *postgresRegistrationRepository) handleRegistrationError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrRegistrationConflict
		case "23503":
			return ErrRegistrationInvalidRef
		}
	}
	return err
}
