package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/ledger"
	"github.com/quantex/ledger-engine/internal/model"
	"github.com/quantex/ledger-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newStoreWithWallet(t *testing.T, balance, locked decimal.Decimal) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutUser(&model.User{ID: "u1", Email: "u1@example.com"})
	st.PutWallet(&model.Wallet{
		ID:      "w1",
		UserID:  "u1",
		Kind:    model.WalletTrading,
		Balance: balance,
		Locked:  locked,
	})
	return st
}

func walletState(t *testing.T, st *store.MemoryStore, userID string, kind model.WalletKind) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	var balance, locked decimal.Decimal
	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(context.Background(), userID, kind)
		if err != nil {
			return err
		}
		balance, locked = w.Balance, w.Locked
		return nil
	})
	if err != nil {
		t.Fatalf("read wallet: %v", err)
	}
	return balance, locked
}

func TestCreditAddsToBalance(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(0))

	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return ledger.Credit(context.Background(), tx, "u1", model.WalletTrading, d(25.5))
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	balance, locked := walletState(t, st, "u1", model.WalletTrading)
	if !balance.Equal(d(125.5)) {
		t.Errorf("balance = %s, want 125.5", balance)
	}
	if !locked.Equal(d(0)) {
		t.Errorf("locked = %s, want 0", locked)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(50))

	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return ledger.Debit(context.Background(), tx, "u1", model.WalletTrading, d(100.01))
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// The locked sub-balance must not back a debit.
	balance, locked := walletState(t, st, "u1", model.WalletTrading)
	if !balance.Equal(d(100)) || !locked.Equal(d(50)) {
		t.Errorf("wallet = %s/%s, want 100/50 untouched", balance, locked)
	}
}

func TestLockAndUnlockPreserveTotal(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(0))
	ctx := context.Background()

	err := st.WithinTx(ctx, func(tx store.Tx) error {
		return ledger.Lock(ctx, tx, "u1", model.WalletTrading, d(60))
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	balance, locked := walletState(t, st, "u1", model.WalletTrading)
	if !balance.Equal(d(40)) || !locked.Equal(d(60)) {
		t.Fatalf("after lock wallet = %s/%s, want 40/60", balance, locked)
	}

	err = st.WithinTx(ctx, func(tx store.Tx) error {
		return ledger.Unlock(ctx, tx, "u1", model.WalletTrading, d(60))
	})
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}

	balance, locked = walletState(t, st, "u1", model.WalletTrading)
	if !balance.Equal(d(100)) || !locked.Equal(d(0)) {
		t.Errorf("after unlock wallet = %s/%s, want 100/0", balance, locked)
	}
}

func TestLockMoreThanBalance(t *testing.T) {
	st := newStoreWithWallet(t, d(10), d(0))

	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return ledger.Lock(context.Background(), tx, "u1", model.WalletTrading, d(10.5))
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestUnlockMoreThanLocked(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(5))

	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return ledger.Unlock(context.Background(), tx, "u1", model.WalletTrading, d(6))
	})
	if !errors.Is(err, ledger.ErrInsufficientLocked) {
		t.Fatalf("err = %v, want ErrInsufficientLocked", err)
	}
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(100))
	ctx := context.Background()

	ops := map[string]func(tx store.Tx, amount decimal.Decimal) error{
		"credit": func(tx store.Tx, a decimal.Decimal) error {
			return ledger.Credit(ctx, tx, "u1", model.WalletTrading, a)
		},
		"debit": func(tx store.Tx, a decimal.Decimal) error {
			return ledger.Debit(ctx, tx, "u1", model.WalletTrading, a)
		},
		"lock": func(tx store.Tx, a decimal.Decimal) error {
			return ledger.Lock(ctx, tx, "u1", model.WalletTrading, a)
		},
		"unlock": func(tx store.Tx, a decimal.Decimal) error {
			return ledger.Unlock(ctx, tx, "u1", model.WalletTrading, a)
		},
	}

	for name, op := range ops {
		for _, amount := range []decimal.Decimal{d(0), d(-1)} {
			err := st.WithinTx(ctx, func(tx store.Tx) error {
				return op(tx, amount)
			})
			if !errors.Is(err, ledger.ErrInvalidAmount) {
				t.Errorf("%s(%s): err = %v, want ErrInvalidAmount", name, amount, err)
			}
		}
	}
}

func TestTransferBetweenKinds(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(0))
	st.PutWallet(&model.Wallet{
		ID:      "w2",
		UserID:  "u1",
		Kind:    model.WalletArbitrage,
		Balance: d(0),
		Locked:  d(0),
	})
	ctx := context.Background()

	err := st.WithinTx(ctx, func(tx store.Tx) error {
		return ledger.Transfer(ctx, tx, "u1", model.WalletTrading, model.WalletArbitrage, d(30))
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	tb, _ := walletState(t, st, "u1", model.WalletTrading)
	ab, _ := walletState(t, st, "u1", model.WalletArbitrage)
	if !tb.Equal(d(70)) || !ab.Equal(d(30)) {
		t.Errorf("balances = %s/%s, want 70/30", tb, ab)
	}
}

func TestTransferSameKindRejected(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(0))

	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return ledger.Transfer(context.Background(), tx, "u1", model.WalletTrading, model.WalletTrading, d(10))
	})
	if !errors.Is(err, ledger.ErrSameWallet) {
		t.Fatalf("err = %v, want ErrSameWallet", err)
	}
}

func TestMissingWallet(t *testing.T) {
	st := store.NewMemoryStore()

	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		return ledger.Credit(context.Background(), tx, "ghost", model.WalletTrading, d(1))
	})
	if !errors.Is(err, ledger.ErrNoWallet) {
		t.Fatalf("err = %v, want ErrNoWallet", err)
	}
}

func TestGetBalancesSummary(t *testing.T) {
	st := newStoreWithWallet(t, d(100), d(25))
	st.PutWallet(&model.Wallet{
		ID:      "w2",
		UserID:  "u1",
		Kind:    model.WalletArbitrage,
		Balance: d(200),
		Locked:  d(50),
	})

	svc := ledger.NewService(st)
	summary, err := svc.GetBalances(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get balances: %v", err)
	}

	if len(summary.Wallets) != 2 {
		t.Fatalf("wallets = %d, want 2", len(summary.Wallets))
	}
	if !summary.Total.Equal(d(375)) {
		t.Errorf("total = %s, want 375", summary.Total)
	}
	for _, w := range summary.Wallets {
		if !w.Total.Equal(w.Balance.Add(w.Locked)) {
			t.Errorf("wallet %s total %s != balance %s + locked %s", w.Kind, w.Total, w.Balance, w.Locked)
		}
	}
}

func TestGetBalancesNoWallets(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutUser(&model.User{ID: "u1", Email: "u1@example.com"})

	svc := ledger.NewService(st)
	_, err := svc.GetBalances(context.Background(), "u1")
	if !errors.Is(err, ledger.ErrNoWallet) {
		t.Fatalf("err = %v, want ErrNoWallet", err)
	}
}
