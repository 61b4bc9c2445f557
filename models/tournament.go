package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// TournamentStatus matches the ENUM in the database. Transitions move
// forward only (upcoming -> ongoing -> completed); administrative
// correction through the admin status endpoint is the single exception.
type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusOngoing   TournamentStatus = "ongoing"
	StatusCompleted TournamentStatus = "completed"
)

// TeamMode determines how many player game IDs a registration carries.
type TeamMode string

const (
	ModeSolo  TeamMode = "solo"
	ModeDuo   TeamMode = "duo"
	ModeSquad TeamMode = "squad"
)

// PlayersPerTeam returns the number of game IDs a team in this mode must
// submit, or 0 for an unknown mode.
func (m TeamMode) PlayersPerTeam() int {
	switch m {
	case ModeSolo:
		return 1
	case ModeDuo:
		return 2
	case ModeSquad:
		return 4
	default:
		return 0
	}
}

// Tournament is one sellable instance. Instances sharing a template form a
// series: when the last slot fills, a fresh copy is spawned with
// series_id = coalesce(existing series_id, this id) and series_number+1.
type Tournament struct {
	ID             int              `json:"id" db:"id"`
	Title          string           `json:"title" db:"title"`
	Game           string           `json:"game" db:"game"`
	Mode           TeamMode         `json:"mode" db:"mode"`
	RegClosesAt    time.Time        `json:"reg_closes_at" db:"reg_closes_at"`
	StartsAt       *time.Time       `json:"starts_at,omitempty" db:"starts_at"`
	EntryFee       int              `json:"entry_fee" db:"entry_fee"`
	PrizePool      int              `json:"prize_pool" db:"prize_pool"`
	SlotsTotal     int              `json:"slots_total" db:"slots_total"`
	SlotsFilled    int              `json:"slots_filled" db:"slots_filled"`
	Status         TournamentStatus `json:"status" db:"status"`
	Rules          pq.StringArray   `json:"rules" db:"rules"`
	ConfirmedTeams BracketTeamList  `json:"confirmed_teams" db:"confirmed_teams"`
	Bracket        BracketRounds    `json:"bracket,omitempty" db:"bracket"`
	Winner         *WinnerRef       `json:"winner,omitempty" db:"winner"`
	SeriesID       *int             `json:"series_id,omitempty" db:"series_id"`
	SeriesNumber   int              `json:"series_number" db:"series_number"`
	BannerKey      *string          `json:"-" db:"banner_key"`
	BannerURL      *string          `json:"banner_url,omitempty" db:"-"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// IsFull reports whether every slot is taken.
func (t *Tournament) IsFull() bool {
	return t.SlotsFilled >= t.SlotsTotal
}

// RegistrationOpen reports whether a new registration may still be created.
func (t *Tournament) RegistrationOpen(now time.Time) bool {
	return t.Status == StatusUpcoming && !t.IsFull() && now.Before(t.RegClosesAt)
}

// WinnerRef is the winning team snapshot embedded on the tournament row once
// a final winner is declared. The authoritative, append-only record is the
// winner_logs table.
type WinnerRef struct {
	TeamName   string    `json:"team_name"`
	GameIDs    []string  `json:"game_ids"`
	DeclaredAt time.Time `json:"declared_at"`
}

func (w WinnerRef) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *WinnerRef) Scan(src interface{}) error {
	return scanJSON(src, w)
}
