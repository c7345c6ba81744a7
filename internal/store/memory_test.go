package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/model"
	"github.com/quantex/ledger-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutWallet(&model.Wallet{ID: "w1", UserID: "u1", Kind: model.WalletTrading, Balance: d(100)})
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateWalletFunds(ctx, "u1", model.WalletTrading, d(0), d(0)); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, &model.Trade{ID: "t1", UserID: "u1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	// Every write inside the failed unit of work is gone.
	err = st.WithinTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(ctx, "u1", model.WalletTrading)
		if err != nil {
			return err
		}
		if !w.Balance.Equal(d(100)) {
			t.Errorf("balance = %s, want 100 restored", w.Balance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if _, err := st.GetTrade(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("trade err = %v, want ErrNotFound after rollback", err)
	}
}

func TestClaimDueAccrualsFiltersAndLimits(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []model.ArbitrageTransaction{
		{ID: "a1", OrderID: "o1", UserID: "u1", Type: model.TxInterest, Status: model.TxPending, TransactionDate: now.Add(-3 * time.Hour)},
		{ID: "a2", OrderID: "o2", UserID: "u1", Type: model.TxInterest, Status: model.TxPending, TransactionDate: now.Add(-2 * time.Hour)},
		{ID: "a3", OrderID: "o3", UserID: "u1", Type: model.TxInterest, Status: model.TxPending, TransactionDate: now.Add(-time.Hour)},
		// Not claimable: already settled, or not yet due.
		{ID: "a4", OrderID: "o4", UserID: "u1", Type: model.TxInterest, Status: model.TxSuccess, TransactionDate: now.Add(-time.Hour)},
		{ID: "a5", OrderID: "o5", UserID: "u1", Type: model.TxInterest, Status: model.TxPending, TransactionDate: now.Add(time.Hour)},
	}
	err := st.WithinTx(ctx, func(tx store.Tx) error {
		for i := range rows {
			if err := tx.InsertAccrual(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = st.WithinTx(ctx, func(tx store.Tx) error {
		claimed, err := tx.ClaimDueAccruals(ctx, now, 2)
		if err != nil {
			return err
		}
		if len(claimed) != 2 {
			t.Fatalf("claimed = %d, want 2 (limit)", len(claimed))
		}
		// Oldest due first.
		if claimed[0].ID != "a1" || claimed[1].ID != "a2" {
			t.Errorf("claimed = %s,%s, want a1,a2", claimed[0].ID, claimed[1].ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
}

func TestInsertAccrualIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	due := time.Now().UTC().Add(time.Hour)

	err := st.WithinTx(ctx, func(tx store.Tx) error {
		first := &model.ArbitrageTransaction{
			ID: "a1", OrderID: "o1", UserID: "u1",
			Type: model.TxInterest, Status: model.TxPending, TransactionDate: due,
		}
		if err := tx.InsertAccrual(ctx, first); err != nil {
			return err
		}
		// Same (order, type, due time), different row ID: swallowed.
		dup := &model.ArbitrageTransaction{
			ID: "a2", OrderID: "o1", UserID: "u1",
			Type: model.TxInterest, Status: model.TxPending, TransactionDate: due,
		}
		if err := tx.InsertAccrual(ctx, dup); err != nil {
			return err
		}
		// Same order and due time but a different type is a distinct event.
		principal := &model.ArbitrageTransaction{
			ID: "a3", OrderID: "o1", UserID: "u1",
			Type: model.TxPrincipalReturn, Status: model.TxSuccess, TransactionDate: due,
		}
		return tx.InsertAccrual(ctx, principal)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	accruals := st.ListAccrualsByOrder("o1")
	if len(accruals) != 2 {
		t.Fatalf("accruals = %d, want 2 (duplicate tick swallowed)", len(accruals))
	}
}

func TestGetUserByIdentifier(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutUser(&model.User{ID: "u1", Email: "alice@example.com", Phone: "+15550000001"})
	st.PutUser(&model.User{ID: "u2", Email: "bob@example.com"})
	ctx := context.Background()

	u, err := st.GetUserByIdentifier(ctx, "alice@example.com")
	if err != nil || u.ID != "u1" {
		t.Errorf("by email = %v/%v, want u1", u, err)
	}
	u, err = st.GetUserByIdentifier(ctx, "+15550000001")
	if err != nil || u.ID != "u1" {
		t.Errorf("by phone = %v/%v, want u1", u, err)
	}
	if _, err := st.GetUserByIdentifier(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown err = %v, want ErrNotFound", err)
	}
	// u2 has no phone; a blank identifier must not match it.
	if _, err := st.GetUserByIdentifier(ctx, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("empty err = %v, want ErrNotFound", err)
	}
}

func TestIsTransient(t *testing.T) {
	base := errors.New("connection reset")
	te := &store.TransientError{Err: base}

	if !store.IsTransient(te) {
		t.Error("TransientError not detected")
	}
	if !store.IsTransient(errors.Join(errors.New("ctx"), te)) {
		t.Error("wrapped TransientError not detected")
	}
	if store.IsTransient(base) {
		t.Error("plain error misclassified as transient")
	}
	if !errors.Is(te, base) {
		t.Error("TransientError must unwrap to its cause")
	}
}
