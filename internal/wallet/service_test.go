package wallet

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepository serializes Mutate with a mutex, the in-memory equivalent of the row lock.
type fakeRepository struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*models.Wallet
	transactions map[uuid.UUID][]*models.WalletTransaction
	seq          int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		wallets:      make(map[uuid.UUID]*models.Wallet),
		transactions: make(map[uuid.UUID][]*models.WalletTransaction),
	}
}

func (f *fakeRepository) ensure(userID uuid.UUID) *models.Wallet {
	w, ok := f.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), UserID: userID, CreatedAt: time.Now()}
		f.wallets[userID] = w
	}
	return w
}

func (f *fakeRepository) Mutate(ctx context.Context, userID uuid.UUID, createIfMissing bool, fn MutateFunc) (*models.Wallet, *models.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if createIfMissing {
		f.ensure(userID)
	}
	w, ok := f.wallets[userID]
	if !ok {
		return nil, nil, ErrWalletNotFound
	}

	snapshot := *w
	e, err := fn(&snapshot)
	if err != nil {
		return nil, nil, err
	}

	f.seq++
	t := &models.WalletTransaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          e.Type,
		Amount:        e.Amount,
		Description:   e.Description,
		RideID:        e.RideID,
		BalanceBefore: w.Balance,
		BalanceAfter:  roundMoney(w.Balance + e.Amount),
		CreatedAt:     time.Unix(int64(f.seq), 0),
	}
	w.Balance = t.BalanceAfter
	f.transactions[w.ID] = append(f.transactions[w.ID], t)

	out := *w
	return &out, t, nil
}

func (f *fakeRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *f.ensure(userID)
	return &out, nil
}

func (f *fakeRepository) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.wallets[userID]; ok {
		return w.Balance, nil
	}
	return 0, nil
}

func (f *fakeRepository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := append([]*models.WalletTransaction(nil), f.transactions[walletID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return []*models.WalletTransaction{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// chronological returns the ledger oldest first.
func (f *fakeRepository) chronological(userID uuid.UUID) []*models.WalletTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.wallets[userID]
	all := append([]*models.WalletTransaction(nil), f.transactions[w.ID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all
}

func assertLedgerConsistent(t *testing.T, repo *fakeRepository, userID uuid.UUID) {
	t.Helper()
	entries := repo.chronological(userID)
	prev := 0.0
	for i, e := range entries {
		assert.InDelta(t, prev, e.BalanceBefore, 1e-9, "entry %d balance_before", i)
		assert.InDelta(t, e.BalanceBefore+e.Amount, e.BalanceAfter, 1e-9, "entry %d balance_after", i)
		prev = e.BalanceAfter
	}
	balance, err := repo.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.InDelta(t, prev, balance, 1e-9)
}

func TestCredit(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	userID := uuid.New()

	w, err := svc.Credit(context.Background(), userID, 50, models.TransactionTopUp, nil, "top-up")
	require.NoError(t, err)
	assert.Equal(t, 50.0, w.Balance)

	rideID := uuid.New()
	w, err = svc.Credit(context.Background(), userID, 12.5, models.TransactionRefund, &rideID, "refund")
	require.NoError(t, err)
	assert.Equal(t, 62.5, w.Balance)

	entries := repo.chronological(userID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TransactionRefund, entries[1].Type)
	assert.Equal(t, &rideID, entries[1].RideID)
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	svc := NewService(newFakeRepository())

	_, err := svc.Credit(context.Background(), uuid.New(), 0, models.TransactionTopUp, nil, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Credit(context.Background(), uuid.New(), 10, models.TransactionRidePayment, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransactionType)
}

func TestDebit(t *testing.T) {
	t.Run("insufficient balance", func(t *testing.T) {
		repo := newFakeRepository()
		svc := NewService(repo)
		userID := uuid.New()
		_, err := svc.TopUp(context.Background(), userID, 10)
		require.NoError(t, err)

		_, err = svc.Debit(context.Background(), userID, 10.5, nil, "ride", false)

		assert.ErrorIs(t, err, ErrInsufficientBalance)
		appErr, ok := common.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnprocessableEntity, appErr.Code)
		assert.Equal(t, CodeInsufficientBalance, appErr.ErrorCode)
		assert.Len(t, repo.chronological(userID), 1)
	})

	t.Run("missing wallet without overdraft", func(t *testing.T) {
		_, err := NewService(newFakeRepository()).Debit(context.Background(), uuid.New(), 5, nil, "ride", false)
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("overdraft creates wallet and goes negative", func(t *testing.T) {
		repo := newFakeRepository()
		userID := uuid.New()

		w, err := NewService(repo).Debit(context.Background(), userID, 1000, nil, "penalty", true)

		require.NoError(t, err)
		assert.Equal(t, -1000.0, w.Balance)
		entries := repo.chronological(userID)
		require.Len(t, entries, 1)
		assert.Equal(t, models.TransactionRidePayment, entries[0].Type)
		assert.Equal(t, -1000.0, entries[0].Amount)
	})

	t.Run("exact balance", func(t *testing.T) {
		repo := newFakeRepository()
		svc := NewService(repo)
		userID := uuid.New()
		_, _ = svc.TopUp(context.Background(), userID, 30)

		w, err := svc.Debit(context.Background(), userID, 30, nil, "ride", false)
		require.NoError(t, err)
		assert.Equal(t, 0.0, w.Balance)
	})
}

func TestWithdraw(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	userID := uuid.New()
	_, _ = svc.TopUp(context.Background(), userID, 40)

	w, err := svc.Withdraw(context.Background(), userID, 15)
	require.NoError(t, err)
	assert.Equal(t, 25.0, w.Balance)
	assert.Equal(t, models.TransactionWithdrawal, repo.chronological(userID)[1].Type)

	_, err = svc.Withdraw(context.Background(), userID, 100)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedgerConsistencyUnderConcurrency(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	userID := uuid.New()
	_, err := svc.TopUp(context.Background(), userID, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var insufficient int
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Credit(context.Background(), userID, 3, models.TransactionTopUp, nil, "top-up")
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), userID, 7, nil, "ride", false)
			if errors.Is(err, ErrInsufficientBalance) {
				mu.Lock()
				insufficient++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assertLedgerConsistent(t, repo, userID)

	balance, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	successfulDebits := 50 - insufficient
	assert.InDelta(t, 100+50*3-float64(successfulDebits)*7, balance, 1e-9)
	assert.GreaterOrEqual(t, balance, 0.0)
}

func TestGetWalletEmbedsRecentTransactions(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	userID := uuid.New()
	for i := 0; i < 25; i++ {
		_, err := svc.TopUp(context.Background(), userID, 1)
		require.NoError(t, err)
	}

	w, err := svc.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, w.Balance)
	require.Len(t, w.Transactions, recentTransactions)
	assert.Equal(t, 25.0, w.Transactions[0].BalanceAfter)

	page, total, err := svc.ListTransactions(context.Background(), userID, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Len(t, page, 5)
}

func TestGetWalletCreatesLazily(t *testing.T) {
	svc := NewService(newFakeRepository())
	w, err := svc.GetWallet(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0.0, w.Balance)
	assert.Empty(t, w.Transactions)
}

func TestBalanceWithoutWallet(t *testing.T) {
	balance, err := NewService(newFakeRepository()).Balance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)
}
