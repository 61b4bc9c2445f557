package models

import (
	"time"

	"github.com/lib/pq"
)

// WinnerLog is written exactly once per tournament when the final winner is
// declared. Rows are never updated or deleted.
type WinnerLog struct {
	ID           int            `json:"id" db:"id"`
	TournamentID int            `json:"tournament_id" db:"tournament_id"`
	TeamName     string         `json:"team_name" db:"team_name"`
	GameIDs      pq.StringArray `json:"game_ids" db:"game_ids"`
	PrizeAmount  int            `json:"prize_amount" db:"prize_amount"`
	DeclaredBy   int            `json:"declared_by" db:"declared_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
