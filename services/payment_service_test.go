package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/battlestacks/battlestacks/db"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTxRunner executes the transaction body directly against the in-memory
// stores. conflictsLeft makes the first N attempts fail with a serialization
// conflict to exercise the retry loop.
type fakeTxRunner struct {
	conflictsLeft int
	runs          int
}

func (f *fakeTxRunner) RunSerializable(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	f.runs++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return db.ErrTransactionConflict
	}
	return fn(nil)
}

type fakeRegistrationRepo struct {
	registrations map[int]*models.Registration
}

func (f *fakeRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	reg.ID = len(f.registrations) + 1
	f.registrations[reg.ID] = reg
	return nil
}

func (f *fakeRegistrationRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Registration, error) {
	reg, ok := f.registrations[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	copied := *reg
	return &copied, nil
}

func (f *fakeRegistrationRepo) ListByTournament(ctx context.Context, tournamentID int, status *models.PaymentStatus) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, reg := range f.registrations {
		if reg.TournamentID == tournamentID && (status == nil || reg.PaymentStatus == *status) {
			copied := *reg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRegistrationRepo) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	for _, reg := range f.registrations {
		if reg.UserID == userID && reg.TournamentID == tournamentID {
			copied := *reg
			return &copied, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (f *fakeRegistrationRepo) FindConfirmedByTeam(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, teamName string) (*models.Registration, error) {
	for _, reg := range f.registrations {
		if reg.TournamentID == tournamentID && reg.TeamName == teamName && reg.PaymentStatus == models.PaymentConfirmed {
			copied := *reg
			return &copied, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (f *fakeRegistrationRepo) UpdatePaymentStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.PaymentStatus) error {
	reg, ok := f.registrations[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.PaymentStatus = status
	return nil
}

func (f *fakeRegistrationRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	if _, ok := f.registrations[id]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	delete(f.registrations, id)
	return nil
}

type fakeTournamentRepo struct {
	tournaments map[int]*models.Tournament
	nextID      int
}

func (f *fakeTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	f.nextID++
	t.ID = f.nextID
	copied := *t
	f.tournaments[t.ID] = &copied
	return nil
}

func (f *fakeTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	t, ok := f.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	copied.ConfirmedTeams = append(models.BracketTeamList(nil), t.ConfirmedTeams...)
	return &copied, nil
}

func (f *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return nil, nil
}

func (f *fakeTournamentRepo) Update(ctx context.Context, t *models.Tournament) error {
	if _, ok := f.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	copied := *t
	f.tournaments[t.ID] = &copied
	return nil
}

func (f *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeTournamentRepo) UpdateSlotsAndRoster(ctx context.Context, exec repositories.SQLExecutor, id int, slotsFilled int, roster models.BracketTeamList) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.SlotsFilled = slotsFilled
	t.ConfirmedTeams = append(models.BracketTeamList(nil), roster...)
	return nil
}

func (f *fakeTournamentRepo) UpdateBracket(ctx context.Context, exec repositories.SQLExecutor, id int, bracket models.BracketRounds) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Bracket = bracket
	return nil
}

func (f *fakeTournamentRepo) SetWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winner *models.WinnerRef) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Winner = winner
	return nil
}

func (f *fakeTournamentRepo) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	t, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.BannerKey = bannerKey
	return nil
}

func (f *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	if _, ok := f.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(f.tournaments, id)
	return nil
}

func (f *fakeTournamentRepo) ListExpiredUpcoming(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type paymentFixture struct {
	service    *PaymentService
	tx         *fakeTxRunner
	regs       *fakeRegistrationRepo
	tournRepo  *fakeTournamentRepo
	tournament *models.Tournament
}

// newPaymentFixture seeds one upcoming tournament with the given capacity
// plus one pending registration per team name.
func newPaymentFixture(t *testing.T, slotsTotal int, teamNames ...string) *paymentFixture {
	t.Helper()

	tx := &fakeTxRunner{}
	regs := &fakeRegistrationRepo{registrations: map[int]*models.Registration{}}
	tournRepo := &fakeTournamentRepo{tournaments: map[int]*models.Tournament{}}

	tournament := &models.Tournament{
		Title:        "Friday Night Smash",
		Game:         "BGMI",
		Mode:         models.ModeSquad,
		RegClosesAt:  time.Now().Add(24 * time.Hour),
		EntryFee:     100,
		PrizePool:    1500,
		SlotsTotal:   slotsTotal,
		Status:       models.StatusUpcoming,
		SeriesNumber: 1,
	}
	require.NoError(t, tournRepo.Create(context.Background(), nil, tournament))

	for i, name := range teamNames {
		reg := &models.Registration{
			TournamentID:  tournament.ID,
			UserID:        i + 1,
			TeamName:      name,
			GameIDs:       []string{fmt.Sprintf("GID%d", i+1)},
			UPIReference:  fmt.Sprintf("UPI-%d", i+1),
			PaymentStatus: models.PaymentPending,
		}
		require.NoError(t, regs.Create(context.Background(), reg))
	}

	return &paymentFixture{
		service:    NewPaymentService(tx, regs, tournRepo, testLogger()),
		tx:         tx,
		regs:       regs,
		tournRepo:  tournRepo,
		tournament: tournament,
	}
}

// assertInvariant checks slots_filled == len(confirmed_teams) on the stored
// tournament.
func assertInvariant(t *testing.T, repo *fakeTournamentRepo, tournamentID int) {
	t.Helper()
	stored := repo.tournaments[tournamentID]
	require.NotNil(t, stored)
	assert.Equal(t, stored.SlotsFilled, len(stored.ConfirmedTeams),
		"slots_filled must equal the confirmed roster size")
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms a pending registration", func(t *testing.T) {
		f := newPaymentFixture(t, 4, "Alpha", "Bravo")

		result, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)

		assert.Equal(t, models.PaymentConfirmed, result.Registration.PaymentStatus)
		assert.Equal(t, 1, result.Tournament.SlotsFilled)
		assert.True(t, result.Tournament.ConfirmedTeams.Contains(models.BracketTeam{
			TeamName: "Alpha", GameIDs: []string{"GID1"},
		}))
		assert.Nil(t, result.SpawnedSeries)
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})

	t.Run("is idempotent", func(t *testing.T) {
		f := newPaymentFixture(t, 4, "Alpha", "Bravo")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		result, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Tournament.SlotsFilled)
		assert.Len(t, result.Tournament.ConfirmedTeams, 1)
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})

	t.Run("rejects confirmation when full and leaves no writes", func(t *testing.T) {
		f := newPaymentFixture(t, 2, "Alpha", "Bravo", "Charlie")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		_, err = f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)

		_, err = f.service.ConfirmPayment(ctx, 3)
		assert.ErrorIs(t, err, ErrTournamentFull)

		// The losing registration stays pending and the tournament is
		// untouched by the aborted attempt.
		assert.Equal(t, models.PaymentPending, f.regs.registrations[3].PaymentStatus)
		stored := f.tournRepo.tournaments[f.tournament.ID]
		assert.Equal(t, 2, stored.SlotsFilled)
		assert.Len(t, stored.ConfirmedTeams, 2)
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})

	t.Run("filling the last slot spawns the next series instance", func(t *testing.T) {
		f := newPaymentFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		result, err := f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)

		assert.Equal(t, models.StatusOngoing, result.Tournament.Status)

		clone := result.SpawnedSeries
		require.NotNil(t, clone)
		assert.NotEqual(t, f.tournament.ID, clone.ID)
		assert.Equal(t, f.tournament.Title, clone.Title)
		assert.Equal(t, models.StatusUpcoming, clone.Status)
		assert.Equal(t, 0, clone.SlotsFilled)
		assert.Empty(t, clone.ConfirmedTeams)
		assert.Nil(t, clone.Bracket)
		assert.Nil(t, clone.Winner)
		require.NotNil(t, clone.SeriesID)
		assert.Equal(t, f.tournament.ID, *clone.SeriesID)
		assert.Equal(t, 2, clone.SeriesNumber)

		// Exactly one clone: original + spawn.
		assert.Len(t, f.tournRepo.tournaments, 2)
	})

	t.Run("re-confirming after fill does not spawn twice", func(t *testing.T) {
		f := newPaymentFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		_, err = f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)
		result, err := f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)

		assert.Nil(t, result.SpawnedSeries)
		assert.Len(t, f.tournRepo.tournaments, 2)
	})

	t.Run("unknown registration", func(t *testing.T) {
		f := newPaymentFixture(t, 2, "Alpha")

		_, err := f.service.ConfirmPayment(ctx, 99)
		assert.ErrorIs(t, err, ErrRegistrationNotFound)
	})
}

func TestMarkPending(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts a confirmation exactly", func(t *testing.T) {
		f := newPaymentFixture(t, 4, "Alpha", "Bravo")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		_, err = f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)

		result, err := f.service.MarkPending(ctx, 1)
		require.NoError(t, err)

		assert.Equal(t, models.PaymentPending, result.Registration.PaymentStatus)
		assert.Equal(t, 1, result.Tournament.SlotsFilled)
		assert.False(t, result.Tournament.ConfirmedTeams.Contains(models.BracketTeam{
			TeamName: "Alpha", GameIDs: []string{"GID1"},
		}))
		// The other confirmation is untouched.
		assert.True(t, result.Tournament.ConfirmedTeams.Contains(models.BracketTeam{
			TeamName: "Bravo", GameIDs: []string{"GID2"},
		}))
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})

	t.Run("is idempotent on a pending registration", func(t *testing.T) {
		f := newPaymentFixture(t, 4, "Alpha")

		result, err := f.service.MarkPending(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, result.Registration.PaymentStatus)
		assert.Equal(t, 0, result.Tournament.SlotsFilled)
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})

	t.Run("does not retract a spawned series instance", func(t *testing.T) {
		f := newPaymentFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		_, err = f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)
		require.Len(t, f.tournRepo.tournaments, 2)

		_, err = f.service.MarkPending(ctx, 2)
		require.NoError(t, err)

		// The clone stays; only slots and roster roll back.
		assert.Len(t, f.tournRepo.tournaments, 2)
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})

	t.Run("frees a slot for another confirmation", func(t *testing.T) {
		f := newPaymentFixture(t, 2, "Alpha", "Bravo", "Charlie")

		_, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		_, err = f.service.ConfirmPayment(ctx, 2)
		require.NoError(t, err)

		_, err = f.service.MarkPending(ctx, 1)
		require.NoError(t, err)

		result, err := f.service.ConfirmPayment(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Tournament.SlotsFilled)
		assertInvariant(t, f.tournRepo, f.tournament.ID)
	})
}

func TestConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers from transient conflicts", func(t *testing.T) {
		f := newPaymentFixture(t, 4, "Alpha")
		f.tx.conflictsLeft = 2

		result, err := f.service.ConfirmPayment(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentConfirmed, result.Registration.PaymentStatus)
		assert.Equal(t, 3, f.tx.runs)
	})

	t.Run("surfaces the conflict after exhausting retries", func(t *testing.T) {
		f := newPaymentFixture(t, 4, "Alpha")
		f.tx.conflictsLeft = 10

		_, err := f.service.ConfirmPayment(ctx, 1)
		assert.ErrorIs(t, err, db.ErrTransactionConflict)
		assert.Equal(t, maxConflictRetries, f.tx.runs)

		// Nothing was applied.
		assert.Equal(t, models.PaymentPending, f.regs.registrations[1].PaymentStatus)
		assert.Equal(t, 0, f.tournRepo.tournaments[f.tournament.ID].SlotsFilled)
	})
}
