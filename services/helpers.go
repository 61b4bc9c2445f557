package services

import (
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/battlestacks/battlestacks/models"
)

func isPowerOfTwoSlots(n int) bool {
	return n >= 2 && bits.OnesCount(uint(n)) == 1
}

func isValidMode(mode models.TeamMode) bool {
	switch mode {
	case models.ModeSolo, models.ModeDuo, models.ModeSquad:
		return true
	}
	return false
}

func isValidStatus(status models.TournamentStatus) bool {
	switch status {
	case models.StatusUpcoming, models.StatusOngoing, models.StatusCompleted:
		return true
	}
	return false
}

// isValidStatusTransition enforces the forward-only lifecycle. Backward
// moves are reserved for the admin correction endpoint, which bypasses this
// check deliberately.
func isValidStatusTransition(current, next models.TournamentStatus) bool {
	if current == next {
		return true
	}
	allowed := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusUpcoming:  {models.StatusOngoing},
		models.StatusOngoing:   {models.StatusCompleted},
		models.StatusCompleted: {},
	}
	for _, n := range allowed[current] {
		if next == n {
			return true
		}
	}
	return false
}

func validateTournamentInput(title string, mode models.TeamMode, slotsTotal int, regClosesAt time.Time, now time.Time) error {
	if strings.TrimSpace(title) == "" {
		return ErrTournamentTitleRequired
	}
	if !isValidMode(mode) {
		return fmt.Errorf("%w: %q", ErrTournamentInvalidMode, mode)
	}
	if !isPowerOfTwoSlots(slotsTotal) {
		return fmt.Errorf("%w: got %d", ErrTournamentInvalidSlots, slotsTotal)
	}
	if !regClosesAt.After(now) {
		return fmt.Errorf("%w: %s", ErrTournamentInvalidDeadline, regClosesAt.Format(time.RFC3339))
	}
	return nil
}
