package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/mikebet/models"
)

type fakeStore struct {
	mu        sync.Mutex
	balances  map[int64]decimal.Decimal
	txs       []models.Transaction
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{balances: map[int64]decimal.Decimal{}}
}

func (f *fakeStore) IncrementBalance(_ context.Context, walletID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[walletID] = f.balances[walletID].Add(delta)
	return f.balances[walletID], nil
}

func (f *fakeStore) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	for _, x := range f.txs {
		if x.IdemKey == tx.IdemKey {
			return errors.New("duplicate idem_key")
		}
	}
	tx.TxID = int64(len(f.txs) + 1)
	f.txs = append(f.txs, *tx)
	return nil
}

func (f *fakeStore) WalletBalance(_ context.Context, walletID int64) (decimal.Decimal, error) {
	return f.balances[walletID], nil
}

func (f *fakeStore) SumTransactions(_ context.Context, walletID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, x := range f.txs {
		if x.WalletID == walletID {
			sum = sum.Add(x.Amount)
		}
	}
	return sum, nil
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCredit_PayoutUpdatesBalanceAndLog(t *testing.T) {
	s := newFakeStore()
	e := NewEffector(nil)
	wager := int64(42)

	bal, err := e.Credit(context.Background(), s, Posting{WalletID: 1, WagerID: &wager, Kind: models.TxPayout, Amount: money("45.00")})
	require.NoError(t, err)
	assert.True(t, bal.Equal(money("45")))
	require.Len(t, s.txs, 1)
	assert.Equal(t, models.TxPayout, s.txs[0].Kind)
	assert.Equal(t, &wager, s.txs[0].WagerID)
	require.NoError(t, Verify(context.Background(), s, 1))
}

func TestCredit_RejectsNonPositive(t *testing.T) {
	e := NewEffector(nil)
	_, err := e.Credit(context.Background(), newFakeStore(), Posting{WalletID: 1, Kind: models.TxRefund, Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCredit_AuditFailureIsReported(t *testing.T) {
	s := newFakeStore()
	s.appendErr = errors.New("connection reset")
	e := NewEffector(nil)

	bal, err := e.Credit(context.Background(), s, Posting{WalletID: 7, Kind: models.TxRefund, Amount: money("10")})
	require.ErrorIs(t, err, ErrAuditTrail)
	assert.True(t, bal.Equal(money("10")))
	assert.ErrorIs(t, Verify(context.Background(), s, 7), ErrBalanceDrift)
}

func TestDebit(t *testing.T) {
	s := newFakeStore()
	e := NewEffector(nil)
	ctx := context.Background()

	_, err := e.Credit(ctx, s, Posting{WalletID: 1, Kind: models.TxDeposit, Amount: money("20"), Ref: "dep-1"})
	require.NoError(t, err)

	wager := int64(9)
	bal, err := e.Debit(ctx, s, Posting{WalletID: 1, WagerID: &wager, Kind: models.TxStake, Amount: money("5")})
	require.NoError(t, err)
	assert.True(t, bal.Equal(money("15")))
	assert.True(t, s.txs[1].Amount.Equal(money("-5")))

	big := int64(10)
	_, err = e.Debit(ctx, s, Posting{WalletID: 1, WagerID: &big, Kind: models.TxStake, Amount: money("50")})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestAdjust(t *testing.T) {
	s := newFakeStore()
	e := NewEffector(nil)
	ctx := context.Background()

	_, err := e.Adjust(ctx, s, 3, money("-2.50"), "goodwill reversal")
	require.NoError(t, err)
	_, err = e.Adjust(ctx, s, 3, money("-2.50"), "goodwill reversal")
	require.NoError(t, err, "adjustments never collide on idem key")
	require.NoError(t, Verify(ctx, s, 3))

	_, err = e.Adjust(ctx, s, 3, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestIdemKey_Deterministic(t *testing.T) {
	w := int64(11)
	a := Posting{WalletID: 1, WagerID: &w, Kind: models.TxPayout}
	b := Posting{WalletID: 1, WagerID: &w, Kind: models.TxPayout}
	c := Posting{WalletID: 1, WagerID: &w, Kind: models.TxRefund}

	assert.Equal(t, a.IdemKey(), b.IdemKey())
	assert.NotEqual(t, a.IdemKey(), c.IdemKey())
}

func TestIdemKey_RefSeparatesResettlement(t *testing.T) {
	w := int64(11)
	first := Posting{WalletID: 1, WagerID: &w, Kind: models.TxPayout}
	again := Posting{WalletID: 1, WagerID: &w, Kind: models.TxPayout, Ref: "reset:1"}

	assert.NotEqual(t, first.IdemKey(), again.IdemKey())
	assert.Equal(t, again.IdemKey(), Posting{WalletID: 1, WagerID: &w, Kind: models.TxPayout, Ref: "reset:1"}.IdemKey())
}

func TestCredit_ConcurrentPostingsAreNotLost(t *testing.T) {
	s := newFakeStore()
	e := NewEffector(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := e.Credit(context.Background(), s, Posting{WalletID: 1, WagerID: &id, Kind: models.TxPayout, Amount: money("1.10")})
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	assert.True(t, s.balances[1].Equal(money("55")))
	require.NoError(t, Verify(context.Background(), s, 1))
}
