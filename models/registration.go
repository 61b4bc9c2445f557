package models

import (
	"time"

	"github.com/lib/pq"
)

// PaymentStatus of a registration's UPI entry fee.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// Registration links a user to a tournament slot they are trying to buy.
// Created by the player, mutated only by admin confirm / mark-pending, and
// deleted only as a side effect of admin team removal.
type Registration struct {
	ID            int            `json:"id" db:"id"`
	TournamentID  int            `json:"tournament_id" db:"tournament_id"`
	UserID        int            `json:"user_id" db:"user_id"`
	TeamName      string         `json:"team_name" db:"team_name"`
	GameIDs       pq.StringArray `json:"game_ids" db:"game_ids"`
	UPIReference  string         `json:"upi_reference" db:"upi_reference"`
	PaymentStatus PaymentStatus  `json:"payment_status" db:"payment_status"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// BracketTeam builds the roster entry this registration occupies once its
// payment is confirmed.
func (r *Registration) BracketTeam() BracketTeam {
	return BracketTeam{
		TeamName: r.TeamName,
		GameIDs:  append([]string(nil), r.GameIDs...),
	}
}
