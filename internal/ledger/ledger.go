// Package ledger provides the wallet primitives every money movement in the
// engine goes through: credit, debit, lock, unlock, and same-user transfer.
//
// Each primitive reads the wallet row under an exclusive lock, validates,
// and writes the new balance/locked pair. Callers compose primitives inside
// one store.WithinTx scope, so a multi-step operation commits or rolls back
// as a unit. All monetary values use shopspring/decimal — never float64.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/model"
	"github.com/quantex/ledger-engine/internal/store"
)

// Credit adds amount to the wallet's available balance.
func Credit(ctx context.Context, tx store.Tx, userID string, kind model.WalletKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	w, err := getWallet(ctx, tx, userID, kind)
	if err != nil {
		return err
	}

	return tx.UpdateWalletFunds(ctx, userID, kind, w.Balance.Add(amount), w.Locked)
}

// Debit removes amount from the wallet's available balance.
func Debit(ctx context.Context, tx store.Tx, userID string, kind model.WalletKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	w, err := getWallet(ctx, tx, userID, kind)
	if err != nil {
		return err
	}
	if amount.GreaterThan(w.Balance) {
		return fmt.Errorf("debit %s from %s/%s: %w", amount, userID, kind, ErrInsufficientFunds)
	}

	return tx.UpdateWalletFunds(ctx, userID, kind, w.Balance.Sub(amount), w.Locked)
}

// Lock moves amount from the available balance into the locked sub-balance.
// The wallet total is unchanged.
func Lock(ctx context.Context, tx store.Tx, userID string, kind model.WalletKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	w, err := getWallet(ctx, tx, userID, kind)
	if err != nil {
		return err
	}
	if amount.GreaterThan(w.Balance) {
		return fmt.Errorf("lock %s in %s/%s: %w", amount, userID, kind, ErrInsufficientFunds)
	}

	return tx.UpdateWalletFunds(ctx, userID, kind, w.Balance.Sub(amount), w.Locked.Add(amount))
}

// Unlock releases amount from the locked sub-balance back to the available
// balance.
func Unlock(ctx context.Context, tx store.Tx, userID string, kind model.WalletKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	w, err := getWallet(ctx, tx, userID, kind)
	if err != nil {
		return err
	}
	if amount.GreaterThan(w.Locked) {
		return fmt.Errorf("unlock %s in %s/%s: %w", amount, userID, kind, ErrInsufficientLocked)
	}

	return tx.UpdateWalletFunds(ctx, userID, kind, w.Balance.Add(amount), w.Locked.Sub(amount))
}

// Transfer moves amount between two wallet kinds of the same user.
func Transfer(ctx context.Context, tx store.Tx, userID string, fromKind, toKind model.WalletKind, amount decimal.Decimal) error {
	if fromKind == toKind {
		return ErrSameWallet
	}
	if err := Debit(ctx, tx, userID, fromKind, amount); err != nil {
		return err
	}
	return Credit(ctx, tx, userID, toKind, amount)
}

func getWallet(ctx context.Context, tx store.Tx, userID string, kind model.WalletKind) (*model.Wallet, error) {
	w, err := tx.GetWalletForUpdate(ctx, userID, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoWallet
		}
		return nil, err
	}
	return w, nil
}

// Service exposes wallet projections. Mutations never go through Service;
// they go through the package-level primitives inside a transaction.
type Service struct {
	store store.Store
}

// NewService creates a wallet projection service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// GetBalances returns per-kind balance/locked/total plus the overall total
// for one user.
func (s *Service) GetBalances(ctx context.Context, userID string) (*model.BalanceSummary, error) {
	wallets, err := s.store.GetWallets(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, ErrNoWallet
	}

	summary := &model.BalanceSummary{UserID: userID, Total: decimal.Zero}
	for _, w := range wallets {
		total := w.Balance.Add(w.Locked)
		summary.Wallets = append(summary.Wallets, model.WalletBalance{
			Kind:    w.Kind,
			Balance: w.Balance,
			Locked:  w.Locked,
			Total:   total,
		})
		summary.Total = summary.Total.Add(total)
	}
	return summary, nil
}
