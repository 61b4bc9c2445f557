package services

import (
	"context"
	"testing"

	"github.com/battlestacks/battlestacks/models"
	"github.com/battlestacks/battlestacks/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users map[int]*models.User
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = len(f.users) + 1
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (f *fakeUserRepo) UpdateUPIHandle(ctx context.Context, id int, upiHandle *string) error {
	user, ok := f.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.UPIHandle = upiHandle
	return nil
}

func newWalletFixture(t *testing.T, startingBalance int) (*WalletService, *fakeWalletRepo, *fakeUserRepo) {
	t.Helper()

	wallets := newFakeWalletRepo()
	users := &fakeUserRepo{users: map[int]*models.User{}}
	require.NoError(t, users.Create(context.Background(), &models.User{
		Name:  "Priya",
		Email: "priya@example.com",
		Role:  models.RolePlayer,
	}))
	wallets.balances[1] = startingBalance

	service := NewWalletService(&fakeTxRunner{}, wallets, users, testLogger())
	return service, wallets, users
}

func TestRequestRedemption(t *testing.T) {
	ctx := context.Background()

	t.Run("debits and records the request", func(t *testing.T) {
		service, wallets, _ := newWalletFixture(t, 500)

		red, err := service.RequestRedemption(ctx, 1, 300, "priya@upi")
		require.NoError(t, err)

		assert.Equal(t, models.RedemptionRequested, red.Status)
		assert.Equal(t, 300, red.Amount)
		assert.Equal(t, "priya@upi", red.UPIHandle)
		assert.Equal(t, 200, wallets.balances[1])
	})

	t.Run("rejects overdraft", func(t *testing.T) {
		service, wallets, _ := newWalletFixture(t, 100)

		_, err := service.RequestRedemption(ctx, 1, 300, "priya@upi")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, 100, wallets.balances[1])
		assert.Empty(t, wallets.redemptions)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		service, _, _ := newWalletFixture(t, 100)

		_, err := service.RequestRedemption(ctx, 1, 0, "priya@upi")
		assert.ErrorIs(t, err, ErrInvalidRedemption)
		_, err = service.RequestRedemption(ctx, 1, -50, "priya@upi")
		assert.ErrorIs(t, err, ErrInvalidRedemption)
	})

	t.Run("falls back to the profile UPI handle", func(t *testing.T) {
		service, _, users := newWalletFixture(t, 500)
		handle := "saved@upi"
		require.NoError(t, users.UpdateUPIHandle(ctx, 1, &handle))

		red, err := service.RequestRedemption(ctx, 1, 100, "  ")
		require.NoError(t, err)
		assert.Equal(t, "saved@upi", red.UPIHandle)
	})

	t.Run("no handle anywhere", func(t *testing.T) {
		service, _, _ := newWalletFixture(t, 500)

		_, err := service.RequestRedemption(ctx, 1, 100, "")
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}

func TestSettleRedemption(t *testing.T) {
	ctx := context.Background()

	t.Run("paid is a pure status flip", func(t *testing.T) {
		service, wallets, _ := newWalletFixture(t, 500)
		red, err := service.RequestRedemption(ctx, 1, 300, "priya@upi")
		require.NoError(t, err)

		settled, err := service.SettleRedemption(ctx, red.ID, models.RedemptionPaid)
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionPaid, settled.Status)
		// The debit already happened at request time.
		assert.Equal(t, 200, wallets.balances[1])
	})

	t.Run("rejected refunds the amount", func(t *testing.T) {
		service, wallets, _ := newWalletFixture(t, 500)
		red, err := service.RequestRedemption(ctx, 1, 300, "priya@upi")
		require.NoError(t, err)

		settled, err := service.SettleRedemption(ctx, red.ID, models.RedemptionRejected)
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionRejected, settled.Status)
		assert.Equal(t, 500, wallets.balances[1])
	})

	t.Run("cannot settle twice", func(t *testing.T) {
		service, _, _ := newWalletFixture(t, 500)
		red, err := service.RequestRedemption(ctx, 1, 300, "priya@upi")
		require.NoError(t, err)

		_, err = service.SettleRedemption(ctx, red.ID, models.RedemptionPaid)
		require.NoError(t, err)
		_, err = service.SettleRedemption(ctx, red.ID, models.RedemptionRejected)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("invalid settlement status", func(t *testing.T) {
		service, _, _ := newWalletFixture(t, 500)

		_, err := service.SettleRedemption(ctx, 1, models.RedemptionRequested)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("unknown redemption", func(t *testing.T) {
		service, _, _ := newWalletFixture(t, 500)

		_, err := service.SettleRedemption(ctx, 99, models.RedemptionPaid)
		assert.ErrorIs(t, err, ErrRedemptionNotFound)
	})
}
