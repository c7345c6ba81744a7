package arbitrage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/arbitrage"
	"github.com/quantex/ledger-engine/internal/ledger"
	"github.com/quantex/ledger-engine/internal/model"
	"github.com/quantex/ledger-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newFixture seeds a user with a funded arbitrage wallet and an active
// 7-day product at 1% daily on 100..10000.
func newFixture(t *testing.T) (*store.MemoryStore, *arbitrage.Service) {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutUser(&model.User{ID: "u1", Email: "u1@example.com"})
	st.PutWallet(&model.Wallet{
		ID:      "w1",
		UserID:  "u1",
		Kind:    model.WalletArbitrage,
		Balance: d(1000),
		Locked:  d(0),
	})
	st.PutArbitrageProduct(&model.ArbitrageProduct{
		ID:            "prod1",
		Name:          "Starter 7D",
		DailyRoiRate:  d(0.01),
		DurationDays:  7,
		MinInvestment: d(100),
		MaxInvestment: d(10000),
		Active:        true,
	})
	return st, arbitrage.NewService(st, nil, 24*time.Hour)
}

func arbWallet(t *testing.T, st *store.MemoryStore, userID string) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	var balance, locked decimal.Decimal
	err := st.WithinTx(context.Background(), func(tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(context.Background(), userID, model.WalletArbitrage)
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

func TestOpenOrderLocksPrincipalAndSchedulesFirstTick(t *testing.T) {
	st, svc := newFixture(t)

	order, err := svc.OpenOrder(context.Background(), "u1", "prod1", d(500))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if order.Status != model.OrderActive {
		t.Errorf("status = %s, want ACTIVE", order.Status)
	}
	if !order.DailyRoiRate.Equal(d(0.01)) {
		t.Errorf("rate = %s, want 0.01 snapshot", order.DailyRoiRate)
	}
	if got := order.EndDate.Sub(order.StartDate); got != 7*24*time.Hour {
		t.Errorf("term = %s, want 168h", got)
	}

	balance, locked := arbWallet(t, st, "u1")
	if !balance.Equal(d(500)) || !locked.Equal(d(500)) {
		t.Errorf("wallet = %s/%s, want 500/500", balance, locked)
	}

	accruals := st.ListAccrualsByOrder(order.ID)
	if len(accruals) != 1 {
		t.Fatalf("accruals = %d, want 1", len(accruals))
	}
	first := accruals[0]
	if first.Type != model.TxInterest || first.Status != model.TxPending {
		t.Errorf("first accrual = %s/%s, want INTEREST/PENDING", first.Type, first.Status)
	}
	if want := order.StartDate.Add(24 * time.Hour); !first.TransactionDate.Equal(want) {
		t.Errorf("first due = %s, want %s", first.TransactionDate, want)
	}
}

func TestOpenOrderAmountOutOfRange(t *testing.T) {
	st, svc := newFixture(t)

	for _, amount := range []decimal.Decimal{d(99.99), d(10000.01)} {
		_, err := svc.OpenOrder(context.Background(), "u1", "prod1", amount)
		if !errors.Is(err, ledger.ErrAmountOutOfRange) {
			t.Errorf("amount %s: err = %v, want ErrAmountOutOfRange", amount, err)
		}
	}

	balance, locked := arbWallet(t, st, "u1")
	if !balance.Equal(d(1000)) || !locked.Equal(d(0)) {
		t.Errorf("wallet = %s/%s, want 1000/0 untouched", balance, locked)
	}
}

func TestOpenOrderInactiveProduct(t *testing.T) {
	st, svc := newFixture(t)
	st.PutArbitrageProduct(&model.ArbitrageProduct{
		ID:            "prod1",
		DailyRoiRate:  d(0.01),
		DurationDays:  7,
		MinInvestment: d(100),
		MaxInvestment: d(10000),
		Active:        false,
	})

	_, err := svc.OpenOrder(context.Background(), "u1", "prod1", d(500))
	if !errors.Is(err, ledger.ErrProductInactive) {
		t.Fatalf("err = %v, want ErrProductInactive", err)
	}
}

func TestOpenOrderUnknownProduct(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.OpenOrder(context.Background(), "u1", "missing", d(500))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenOrderInsufficientFunds(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.OpenOrder(context.Background(), "u1", "prod1", d(1000.5))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestCancelOrderReleasesPrincipal(t *testing.T) {
	st, svc := newFixture(t)
	ctx := context.Background()

	order, err := svc.OpenOrder(ctx, "u1", "prod1", d(500))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cancelled, err := svc.CancelOrder(ctx, "u1", order.ID, false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.OrderCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}

	balance, locked := arbWallet(t, st, "u1")
	if !balance.Equal(d(1000)) || !locked.Equal(d(0)) {
		t.Errorf("wallet = %s/%s, want 1000/0", balance, locked)
	}
}

func TestCancelOrderNotOwner(t *testing.T) {
	st, svc := newFixture(t)
	ctx := context.Background()

	order, err := svc.OpenOrder(ctx, "u1", "prod1", d(500))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = svc.CancelOrder(ctx, "intruder", order.ID, false)
	if !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	_, locked := arbWallet(t, st, "u1")
	if !locked.Equal(d(500)) {
		t.Errorf("locked = %s, want 500 still held", locked)
	}
}

func TestCancelOrderAsAdmin(t *testing.T) {
	st, svc := newFixture(t)
	ctx := context.Background()

	order, err := svc.OpenOrder(ctx, "u1", "prod1", d(500))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cancelled, err := svc.CancelOrder(ctx, "admin", order.ID, true)
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled.Status != model.OrderCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	balance, locked := arbWallet(t, st, "u1")
	if !balance.Equal(d(1000)) || !locked.Equal(d(0)) {
		t.Errorf("wallet = %s/%s, want 1000/0", balance, locked)
	}
}

func TestCancelOrderNotCancellable(t *testing.T) {
	_, svc := newFixture(t)
	ctx := context.Background()

	order, err := svc.OpenOrder(ctx, "u1", "prod1", d(500))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.CancelOrder(ctx, "u1", order.ID, false); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	_, err = svc.CancelOrder(ctx, "u1", order.ID, false)
	if !errors.Is(err, ledger.ErrNotCancellable) {
		t.Fatalf("err = %v, want ErrNotCancellable", err)
	}
}
