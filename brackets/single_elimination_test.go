package brackets

import (
	"fmt"
	"testing"

	"github.com/battlestacks/battlestacks/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTeams(n int) []models.BracketTeam {
	teams := make([]models.BracketTeam, n)
	for i := range teams {
		teams[i] = models.BracketTeam{
			TeamName: fmt.Sprintf("Team %d", i+1),
			GameIDs:  []string{fmt.Sprintf("GID%d", i+1)},
		}
	}
	return teams
}

func TestGenerateRejectsInvalidSlotCounts(t *testing.T) {
	testCases := []int{0, 1, 3, 5, 6, 7, 12, 100}

	for _, slots := range testCases {
		t.Run(fmt.Sprintf("slots_%d", slots), func(t *testing.T) {
			_, err := Generate(makeTeams(0), slots)
			assert.ErrorIs(t, err, ErrInvalidSlotCount)
		})
	}
}

func TestGenerateRejectsOversizedRoster(t *testing.T) {
	_, err := Generate(makeTeams(5), 4)
	assert.ErrorIs(t, err, ErrTooManyTeams)
}

func TestGenerateStructure(t *testing.T) {
	testCases := []struct {
		slots      int
		wantRounds int
		wantTitles []string
	}{
		{2, 1, []string{"Finals"}},
		{4, 2, []string{"Semi-Finals", "Finals"}},
		{8, 3, []string{"Quarter-Finals", "Semi-Finals", "Finals"}},
		{16, 4, []string{"Round of 16", "Quarter-Finals", "Semi-Finals", "Finals"}},
		{32, 5, []string{"Round of 32", "Round of 16", "Quarter-Finals", "Semi-Finals", "Finals"}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("slots_%d", tc.slots), func(t *testing.T) {
			rounds, err := Generate(makeTeams(tc.slots), tc.slots)
			require.NoError(t, err)
			require.Len(t, rounds, tc.wantRounds)

			matchups := tc.slots / 2
			for i, round := range rounds {
				assert.Equal(t, tc.wantTitles[i], round.Title)
				assert.Len(t, round.Matchups, matchups, "round %d", i)
				matchups /= 2
			}
		})
	}
}

func TestGeneratePadsShortRosterWithTBD(t *testing.T) {
	// 3 teams in a 4-slot bracket leaves exactly one TBD slot in round 1.
	rounds, err := Generate(makeTeams(3), 4)
	require.NoError(t, err)
	require.Len(t, rounds, 2)

	var filled, empty int
	for _, m := range rounds[0].Matchups {
		for _, slot := range []*models.BracketTeam{m.Team1, m.Team2} {
			if slot == nil {
				empty++
			} else {
				filled++
			}
		}
		assert.Nil(t, m.Winner)
	}
	assert.Equal(t, 3, filled)
	assert.Equal(t, 1, empty)

	// Later rounds start fully undecided.
	for _, m := range rounds[1].Matchups {
		assert.Nil(t, m.Team1)
		assert.Nil(t, m.Team2)
		assert.Nil(t, m.Winner)
	}
}

func TestGenerateKeepsEveryTeamExactlyOnce(t *testing.T) {
	teams := makeTeams(8)
	rounds, err := Generate(teams, 8)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, m := range rounds[0].Matchups {
		if m.Team1 != nil {
			seen[m.Team1.TeamName]++
		}
		if m.Team2 != nil {
			seen[m.Team2.TeamName]++
		}
	}
	require.Len(t, seen, 8)
	for name, count := range seen {
		assert.Equal(t, 1, count, "team %s", name)
	}
}

func TestGenerateShufflesUniformly(t *testing.T) {
	// With two teams in a 2-slot bracket the only degree of freedom is which
	// side of the final each lands on. Over many runs both orders must show
	// up in roughly equal measure.
	teams := makeTeams(2)

	const runs = 2000
	team1First := 0
	for i := 0; i < runs; i++ {
		rounds, err := Generate(teams, 2)
		require.NoError(t, err)
		if rounds[0].Matchups[0].Team1 != nil && rounds[0].Matchups[0].Team1.TeamName == "Team 1" {
			team1First++
		}
	}

	// ~50% with a generous tolerance; the chance of leaving this window with
	// a fair shuffle is negligible.
	assert.Greater(t, team1First, runs*35/100)
	assert.Less(t, team1First, runs*65/100)
}

func TestAdvanceWinnerPropagation(t *testing.T) {
	rounds, err := Generate(makeTeams(4), 4)
	require.NoError(t, err)

	winner0 := *rounds[0].Matchups[0].Team1
	winner1 := *rounds[0].Matchups[1].Team2

	require.NoError(t, AdvanceWinner(rounds, 0, 0, winner0))
	require.NoError(t, AdvanceWinner(rounds, 0, 1, winner1))

	final := rounds[1].Matchups[0]
	// Matchup 0 feeds slot one, matchup 1 feeds slot two.
	require.NotNil(t, final.Team1)
	require.NotNil(t, final.Team2)
	assert.True(t, final.Team1.Equal(winner0))
	assert.True(t, final.Team2.Equal(winner1))

	require.NoError(t, AdvanceWinner(rounds, 1, 0, winner1))
	got := FinalWinner(rounds)
	require.NotNil(t, got)
	assert.True(t, got.Equal(winner1))
}

func TestAdvanceWinnerIdempotent(t *testing.T) {
	rounds, err := Generate(makeTeams(4), 4)
	require.NoError(t, err)

	winner := *rounds[0].Matchups[0].Team1
	other := *rounds[0].Matchups[0].Team2

	require.NoError(t, AdvanceWinner(rounds, 0, 0, winner))
	// Same winner again is a no-op.
	require.NoError(t, AdvanceWinner(rounds, 0, 0, winner))
	// A different winner is rejected once one is recorded.
	assert.ErrorIs(t, AdvanceWinner(rounds, 0, 0, other), ErrWinnerAlreadySet)

	// The propagated seed in the next round is untouched.
	require.NotNil(t, rounds[1].Matchups[0].Team1)
	assert.True(t, rounds[1].Matchups[0].Team1.Equal(winner))
}

func TestAdvanceWinnerValidation(t *testing.T) {
	rounds, err := Generate(makeTeams(3), 4)
	require.NoError(t, err)

	someTeam := models.BracketTeam{TeamName: "Team 1", GameIDs: []string{"GID1"}}

	t.Run("round out of range", func(t *testing.T) {
		assert.ErrorIs(t, AdvanceWinner(rounds, 5, 0, someTeam), ErrMatchupOutOfRange)
		assert.ErrorIs(t, AdvanceWinner(rounds, -1, 0, someTeam), ErrMatchupOutOfRange)
	})

	t.Run("matchup out of range", func(t *testing.T) {
		assert.ErrorIs(t, AdvanceWinner(rounds, 0, 2, someTeam), ErrMatchupOutOfRange)
	})

	t.Run("matchup with TBD slot", func(t *testing.T) {
		// One of the two round-1 matchups has the padded nil slot.
		for i, m := range rounds[0].Matchups {
			if m.Team1 == nil || m.Team2 == nil {
				err := AdvanceWinner(rounds, 0, i, someTeam)
				assert.ErrorIs(t, err, ErrMatchupNotReady)
				return
			}
		}
		t.Fatal("expected a matchup with a TBD slot")
	})
}

func TestAdvanceWinnerRejectsOutsideTeam(t *testing.T) {
	rounds, err := Generate(makeTeams(2), 2)
	require.NoError(t, err)

	intruder := models.BracketTeam{TeamName: "Gatecrashers", GameIDs: []string{"X1"}}
	assert.ErrorIs(t, AdvanceWinner(rounds, 0, 0, intruder), ErrTeamNotInMatchup)
}

func TestResetDiscardsRecordedWinners(t *testing.T) {
	teams := makeTeams(4)
	rounds, err := Generate(teams, 4)
	require.NoError(t, err)
	require.NoError(t, AdvanceWinner(rounds, 0, 0, *rounds[0].Matchups[0].Team1))

	fresh, err := Reset(teams, 4)
	require.NoError(t, err)
	for _, round := range fresh {
		for _, m := range round.Matchups {
			assert.Nil(t, m.Winner)
		}
	}
}

func TestFinalWinner(t *testing.T) {
	assert.Nil(t, FinalWinner(nil))

	rounds, err := Generate(makeTeams(2), 2)
	require.NoError(t, err)
	assert.Nil(t, FinalWinner(rounds))

	champion := *rounds[0].Matchups[0].Team2
	require.NoError(t, AdvanceWinner(rounds, 0, 0, champion))
	got := FinalWinner(rounds)
	require.NotNil(t, got)
	assert.True(t, got.Equal(champion))
}
