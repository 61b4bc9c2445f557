package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// BracketTeam is one confirmed entry in a tournament. It lives inside the
// tournament document (roster and bracket are stored as JSONB), not in its
// own table.
type BracketTeam struct {
	TeamName string   `json:"team_name"`
	GameIDs  []string `json:"game_ids"`
}

// Equal reports whether two teams match exactly (name plus every game ID,
// in order). MarkPending uses this to locate the roster entry to remove.
func (t BracketTeam) Equal(other BracketTeam) bool {
	if t.TeamName != other.TeamName || len(t.GameIDs) != len(other.GameIDs) {
		return false
	}
	for i := range t.GameIDs {
		if t.GameIDs[i] != other.GameIDs[i] {
			return false
		}
	}
	return true
}

// BracketMatchup pairs two teams. A nil slot is a TBD placeholder (bye or
// winner of an earlier matchup not yet decided).
type BracketMatchup struct {
	Team1  *BracketTeam `json:"team1"`
	Team2  *BracketTeam `json:"team2"`
	Winner *BracketTeam `json:"winner,omitempty"`
}

type BracketRound struct {
	Title    string           `json:"title"`
	Matchups []BracketMatchup `json:"matchups"`
}

// BracketRounds is the full elimination tree, ordered from the first round
// to the final. Stored on the tournaments row as JSONB.
type BracketRounds []BracketRound

func (b BracketRounds) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

func (b *BracketRounds) Scan(src interface{}) error {
	return scanJSON(src, b)
}

// BracketTeamList is the confirmed roster of a tournament, JSONB-backed.
type BracketTeamList []BracketTeam

func (l BracketTeamList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]BracketTeam{})
	}
	return json.Marshal(l)
}

func (l *BracketTeamList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Contains reports whether an exactly matching team is already on the roster.
func (l BracketTeamList) Contains(team BracketTeam) bool {
	for _, t := range l {
		if t.Equal(team) {
			return true
		}
	}
	return false
}

// Remove returns the roster without the first entry matching team exactly.
// The second result is false when no entry matched.
func (l BracketTeamList) Remove(team BracketTeam) (BracketTeamList, bool) {
	for i, t := range l {
		if t.Equal(team) {
			out := make(BracketTeamList, 0, len(l)-1)
			out = append(out, l[:i]...)
			out = append(out, l[i+1:]...)
			return out, true
		}
	}
	return l, false
}

func scanJSON(src, dst interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported source type %T for JSONB scan", src)
	}
}
