package brackets

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand"

	"github.com/battlestacks/battlestacks/models"
)

var (
	// ErrInvalidSlotCount is returned when a bracket is requested for a
	// capacity that is not a power of two of at least 2.
	ErrInvalidSlotCount = errors.New("slot count must be a power of two (2, 4, 8, ...)")

	// ErrTooManyTeams is returned when the roster exceeds the slot count.
	ErrTooManyTeams = errors.New("confirmed teams exceed slot count")

	ErrMatchupOutOfRange = errors.New("round or matchup index out of range")

	// ErrMatchupNotReady is returned when a winner is selected for a
	// matchup that still has a TBD slot.
	ErrMatchupNotReady = errors.New("both matchup slots must be decided before a winner can be selected")

	// ErrTeamNotInMatchup is returned when the selected winner is neither
	// of the matchup's teams.
	ErrTeamNotInMatchup = errors.New("winning team is not part of this matchup")

	// ErrWinnerAlreadySet is returned when a different winner was already
	// recorded. Re-selecting the same winner is a no-op, not an error.
	ErrWinnerAlreadySet = errors.New("matchup already has a different winner recorded")
)

// Generate builds a fresh single-elimination tree for the given roster.
//
// The roster is padded with TBD placeholders up to slotsTotal and shuffled
// uniformly (Fisher-Yates) so first-round seeding carries no registration
// order bias. Round 1 pairs consecutive entries; every later round has half
// as many matchups, all TBD, down to a single final.
func Generate(teams []models.BracketTeam, slotsTotal int) (models.BracketRounds, error) {
	if slotsTotal < 2 || bits.OnesCount(uint(slotsTotal)) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSlotCount, slotsTotal)
	}
	if len(teams) > slotsTotal {
		return nil, fmt.Errorf("%w: %d teams for %d slots", ErrTooManyTeams, len(teams), slotsTotal)
	}

	seeded := make([]*models.BracketTeam, slotsTotal)
	for i := range teams {
		t := teams[i]
		seeded[i] = &t
	}
	rand.Shuffle(len(seeded), func(i, j int) {
		seeded[i], seeded[j] = seeded[j], seeded[i]
	})

	rounds := make(models.BracketRounds, 0, bits.TrailingZeros(uint(slotsTotal)))

	first := models.BracketRound{
		Title:    roundTitle(slotsTotal / 2),
		Matchups: make([]models.BracketMatchup, 0, slotsTotal/2),
	}
	for i := 0; i < slotsTotal; i += 2 {
		first.Matchups = append(first.Matchups, models.BracketMatchup{
			Team1: seeded[i],
			Team2: seeded[i+1],
		})
	}
	rounds = append(rounds, first)

	for n := slotsTotal / 4; n >= 1; n /= 2 {
		rounds = append(rounds, models.BracketRound{
			Title:    roundTitle(n),
			Matchups: make([]models.BracketMatchup, n),
		})
	}

	return rounds, nil
}

// AdvanceWinner records the winner of one matchup and seeds it into the next
// round, if any. Matchup i of round k feeds matchup i/2 of round k+1: slot
// one when i is even, slot two when i is odd.
//
// Re-selecting the already recorded winner is a no-op. The bracket is
// mutated in place; callers own the copy and persist it afterwards.
func AdvanceWinner(rounds models.BracketRounds, roundIdx, matchupIdx int, winner models.BracketTeam) error {
	if roundIdx < 0 || roundIdx >= len(rounds) {
		return fmt.Errorf("%w: round %d of %d", ErrMatchupOutOfRange, roundIdx, len(rounds))
	}
	round := rounds[roundIdx]
	if matchupIdx < 0 || matchupIdx >= len(round.Matchups) {
		return fmt.Errorf("%w: matchup %d of %d in %s", ErrMatchupOutOfRange, matchupIdx, len(round.Matchups), round.Title)
	}

	m := &round.Matchups[matchupIdx]
	if m.Team1 == nil || m.Team2 == nil {
		return ErrMatchupNotReady
	}
	if !m.Team1.Equal(winner) && !m.Team2.Equal(winner) {
		return fmt.Errorf("%w: %q", ErrTeamNotInMatchup, winner.TeamName)
	}
	if m.Winner != nil {
		if m.Winner.Equal(winner) {
			return nil
		}
		return fmt.Errorf("%w: %q is already through", ErrWinnerAlreadySet, m.Winner.TeamName)
	}

	w := winner
	m.Winner = &w

	if roundIdx+1 < len(rounds) {
		next := &rounds[roundIdx+1].Matchups[matchupIdx/2]
		seed := winner
		if matchupIdx%2 == 0 {
			next.Team1 = &seed
		} else {
			next.Team2 = &seed
		}
	}

	return nil
}

// Reset rebuilds the bracket from the current roster, discarding every
// recorded winner. Matchups are reshuffled: reset and reshuffle are the
// same operation.
func Reset(teams []models.BracketTeam, slotsTotal int) (models.BracketRounds, error) {
	return Generate(teams, slotsTotal)
}

// FinalWinner returns the winner of the last round's single matchup, or nil
// while the final is undecided.
func FinalWinner(rounds models.BracketRounds) *models.BracketTeam {
	if len(rounds) == 0 {
		return nil
	}
	final := rounds[len(rounds)-1]
	if len(final.Matchups) != 1 {
		return nil
	}
	return final.Matchups[0].Winner
}

func roundTitle(matchups int) string {
	switch matchups {
	case 1:
		return "Finals"
	case 2:
		return "Semi-Finals"
	case 4:
		return "Quarter-Finals"
	default:
		return fmt.Sprintf("Round of %d", matchups*2)
	}
}
