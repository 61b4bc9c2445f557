package services

import (
	"context"
	"testing"
	"time"

	"github.com/battlestacks/battlestacks/brackets"
	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWinnerLogRepo struct {
	logs map[int]*models.WinnerLog // keyed by tournament ID
}

func (f *fakeWinnerLogRepo) Create(ctx context.Context, exec repositories.SQLExecutor, log *models.WinnerLog) error {
	if _, ok := f.logs[log.TournamentID]; ok {
		return repositories.ErrWinnerAlreadyLogged
	}
	log.ID = len(f.logs) + 1
	log.CreatedAt = time.Now()
	f.logs[log.TournamentID] = log
	return nil
}

func (f *fakeWinnerLogRepo) GetByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (*models.WinnerLog, error) {
	log, ok := f.logs[tournamentID]
	if !ok {
		return nil, repositories.ErrWinnerLogNotFound
	}
	return log, nil
}

func (f *fakeWinnerLogRepo) List(ctx context.Context, limit, offset int) ([]models.WinnerLog, error) {
	return nil, nil
}

type fakeWalletRepo struct {
	balances     map[int]int
	transactions []models.WalletTransaction
	redemptions  map[int]*models.Redemption
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{
		balances:    map[int]int{},
		redemptions: map[int]*models.Redemption{},
	}
}

func (f *fakeWalletRepo) GetByUserID(ctx context.Context, exec repositories.SQLExecutor, userID int) (*models.Wallet, error) {
	return &models.Wallet{UserID: userID, Balance: f.balances[userID]}, nil
}

func (f *fakeWalletRepo) Credit(ctx context.Context, exec repositories.SQLExecutor, txn *models.WalletTransaction) error {
	f.balances[txn.UserID] += txn.Amount
	f.transactions = append(f.transactions, *txn)
	return nil
}

func (f *fakeWalletRepo) Debit(ctx context.Context, exec repositories.SQLExecutor, txn *models.WalletTransaction) error {
	if f.balances[txn.UserID]+txn.Amount < 0 {
		return repositories.ErrInsufficientBalance
	}
	f.balances[txn.UserID] += txn.Amount
	f.transactions = append(f.transactions, *txn)
	return nil
}

func (f *fakeWalletRepo) ListTransactions(ctx context.Context, userID int, limit, offset int) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	for _, txn := range f.transactions {
		if txn.UserID == userID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeWalletRepo) CreateRedemption(ctx context.Context, exec repositories.SQLExecutor, red *models.Redemption) error {
	red.ID = len(f.redemptions) + 1
	f.redemptions[red.ID] = red
	return nil
}

func (f *fakeWalletRepo) GetRedemptionByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Redemption, error) {
	red, ok := f.redemptions[id]
	if !ok {
		return nil, repositories.ErrRedemptionNotFound
	}
	copied := *red
	return &copied, nil
}

func (f *fakeWalletRepo) ListRedemptions(ctx context.Context, status *models.RedemptionStatus, limit, offset int) ([]models.Redemption, error) {
	var out []models.Redemption
	for _, red := range f.redemptions {
		if status == nil || red.Status == *status {
			out = append(out, *red)
		}
	}
	return out, nil
}

func (f *fakeWalletRepo) SettleRedemption(ctx context.Context, exec repositories.SQLExecutor, id int, status models.RedemptionStatus) error {
	red, ok := f.redemptions[id]
	if !ok {
		return repositories.ErrRedemptionNotFound
	}
	if red.Status != models.RedemptionRequested {
		return repositories.ErrRedemptionNotFound
	}
	red.Status = status
	return nil
}

type bracketFixture struct {
	service    BracketService
	tournRepo  *fakeTournamentRepo
	regs       *fakeRegistrationRepo
	winnerLogs *fakeWinnerLogRepo
	wallets    *fakeWalletRepo
	tournament *models.Tournament
}

// newBracketFixture builds a tournament with every slot confirmed, ready for
// bracket generation.
func newBracketFixture(t *testing.T, slotsTotal int, teamNames ...string) *bracketFixture {
	t.Helper()

	payment := newPaymentFixture(t, slotsTotal, teamNames...)
	ctx := context.Background()
	for id := range payment.regs.registrations {
		_, err := payment.service.ConfirmPayment(ctx, id)
		require.NoError(t, err)
	}

	winnerLogs := &fakeWinnerLogRepo{logs: map[int]*models.WinnerLog{}}
	wallets := newFakeWalletRepo()

	service := NewBracketService(
		&fakeTxRunner{},
		payment.tournRepo,
		payment.regs,
		winnerLogs,
		wallets,
		brackets.NewHub(testLogger()),
		testLogger(),
	)

	return &bracketFixture{
		service:    service,
		tournRepo:  payment.tournRepo,
		regs:       payment.regs,
		winnerLogs: winnerLogs,
		wallets:    wallets,
		tournament: payment.tournament,
	}
}

func TestGenerateBracket(t *testing.T) {
	ctx := context.Background()

	t.Run("builds and persists the tree", func(t *testing.T) {
		f := newBracketFixture(t, 4, "Alpha", "Bravo", "Charlie", "Delta")

		tournament, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)
		require.Len(t, tournament.Bracket, 2)
		assert.Equal(t, "Semi-Finals", tournament.Bracket[0].Title)
		assert.Equal(t, "Finals", tournament.Bracket[1].Title)

		stored := f.tournRepo.tournaments[f.tournament.ID]
		assert.Len(t, stored.Bracket, 2)
	})

	t.Run("reset reshuffles and clears winners", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		tournament, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)
		winnerName := tournament.Bracket[0].Matchups[0].Team1.TeamName
		_, err = f.service.AdvanceWinner(ctx, f.tournament.ID, 0, 0, winnerName)
		require.NoError(t, err)

		tournament, err = f.service.ResetBracket(ctx, f.tournament.ID)
		require.NoError(t, err)
		assert.Nil(t, tournament.Bracket[0].Matchups[0].Winner)
	})

	t.Run("unknown tournament", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.GenerateBracket(ctx, 999)
		assert.ErrorIs(t, err, ErrTournamentNotFound)
	})
}

func TestAdvanceWinnerByName(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a generated bracket", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.AdvanceWinner(ctx, f.tournament.ID, 0, 0, "Alpha")
		assert.ErrorIs(t, err, ErrBracketNotGenerated)
	})

	t.Run("advances by team name", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)

		tournament, err := f.service.AdvanceWinner(ctx, f.tournament.ID, 0, 0, "Bravo")
		require.NoError(t, err)
		require.NotNil(t, tournament.Bracket[0].Matchups[0].Winner)
		assert.Equal(t, "Bravo", tournament.Bracket[0].Matchups[0].Winner.TeamName)
	})

	t.Run("unknown team in matchup", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)

		_, err = f.service.AdvanceWinner(ctx, f.tournament.ID, 0, 0, "Nobody")
		assert.ErrorIs(t, err, ErrTeamNotFound)
	})
}

func TestRemoveTeam(t *testing.T) {
	ctx := context.Background()

	t.Run("removes roster entry, registration and regenerates bracket", func(t *testing.T) {
		f := newBracketFixture(t, 4, "Alpha", "Bravo", "Charlie", "Delta")

		_, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)

		stored := f.tournRepo.tournaments[f.tournament.ID]
		target := stored.ConfirmedTeams[0]

		tournament, err := f.service.RemoveTeam(ctx, f.tournament.ID, target)
		require.NoError(t, err)

		assert.Equal(t, 3, tournament.SlotsFilled)
		assert.False(t, tournament.ConfirmedTeams.Contains(target))
		assert.Equal(t, tournament.SlotsFilled, len(tournament.ConfirmedTeams))

		// Registration row is gone.
		_, err = f.regs.FindConfirmedByTeam(ctx, nil, f.tournament.ID, target.TeamName)
		assert.ErrorIs(t, err, repositories.ErrRegistrationNotFound)

		// Bracket regenerated from the shrunk roster: all winners cleared,
		// the removed team absent.
		for _, round := range tournament.Bracket {
			for _, m := range round.Matchups {
				assert.Nil(t, m.Winner)
				if m.Team1 != nil {
					assert.NotEqual(t, target.TeamName, m.Team1.TeamName)
				}
				if m.Team2 != nil {
					assert.NotEqual(t, target.TeamName, m.Team2.TeamName)
				}
			}
		}
	})

	t.Run("team not on roster", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.RemoveTeam(ctx, f.tournament.ID, models.BracketTeam{TeamName: "Ghosts"})
		assert.ErrorIs(t, err, ErrTeamNotFound)
	})

	t.Run("without a bracket only the roster shrinks", func(t *testing.T) {
		f := newBracketFixture(t, 4, "Alpha", "Bravo")

		stored := f.tournRepo.tournaments[f.tournament.ID]
		target := stored.ConfirmedTeams[0]

		tournament, err := f.service.RemoveTeam(ctx, f.tournament.ID, target)
		require.NoError(t, err)
		assert.Empty(t, tournament.Bracket)
		assert.Equal(t, 1, tournament.SlotsFilled)
	})
}

func TestDeclareWinner(t *testing.T) {
	ctx := context.Background()

	runFinal := func(t *testing.T, f *bracketFixture) string {
		t.Helper()
		tournament, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)
		champion := tournament.Bracket[0].Matchups[0].Team1.TeamName
		_, err = f.service.AdvanceWinner(ctx, f.tournament.ID, 0, 0, champion)
		require.NoError(t, err)
		return champion
	}

	t.Run("logs, completes and credits the prize", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")
		champion := runFinal(t, f)

		log, err := f.service.DeclareWinner(ctx, f.tournament.ID, 42)
		require.NoError(t, err)

		assert.Equal(t, champion, log.TeamName)
		assert.Equal(t, f.tournament.PrizePool, log.PrizeAmount)
		assert.Equal(t, 42, log.DeclaredBy)

		stored := f.tournRepo.tournaments[f.tournament.ID]
		assert.Equal(t, models.StatusCompleted, stored.Status)
		require.NotNil(t, stored.Winner)
		assert.Equal(t, champion, stored.Winner.TeamName)

		// Prize landed in the captain's wallet.
		reg, err := f.regs.FindConfirmedByTeam(ctx, nil, f.tournament.ID, champion)
		require.NoError(t, err)
		assert.Equal(t, f.tournament.PrizePool, f.wallets.balances[reg.UserID])
		require.Len(t, f.wallets.transactions, 1)
		assert.Equal(t, models.TxnPrizeCredit, f.wallets.transactions[0].Kind)
	})

	t.Run("declaring twice is rejected", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")
		runFinal(t, f)

		_, err := f.service.DeclareWinner(ctx, f.tournament.ID, 42)
		require.NoError(t, err)
		_, err = f.service.DeclareWinner(ctx, f.tournament.ID, 42)
		assert.ErrorIs(t, err, ErrWinnerAlreadyDeclared)

		// No double credit.
		require.Len(t, f.wallets.transactions, 1)
	})

	t.Run("final undecided", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")
		_, err := f.service.GenerateBracket(ctx, f.tournament.ID)
		require.NoError(t, err)

		_, err = f.service.DeclareWinner(ctx, f.tournament.ID, 42)
		assert.ErrorIs(t, err, ErrFinalNotDecided)
	})

	t.Run("no bracket yet", func(t *testing.T) {
		f := newBracketFixture(t, 2, "Alpha", "Bravo")

		_, err := f.service.DeclareWinner(ctx, f.tournament.ID, 42)
		assert.ErrorIs(t, err, ErrBracketNotGenerated)
	})
}

func TestGetTournamentDetails(t *testing.T) {
	ctx := context.Background()

	f := newBracketFixture(t, 2, "Alpha", "Bravo")

	details, err := f.service.GetTournamentDetails(ctx, f.tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, f.tournament.ID, details.Tournament.ID)
	assert.Len(t, details.Registrations, 2)
	assert.Nil(t, details.WinnerLog)
}
