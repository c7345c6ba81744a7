// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for reference data), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TransientError marks an infrastructure failure (serialization conflict,
// deadlock, timeout, lost connection). The enclosing transaction is
// guaranteed to have rolled back; the caller may retry the whole operation.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient store error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Store is the persistence interface. Reads outside a transaction are
// point-in-time; every mutation goes through WithinTx so that a composed
// operation commits or rolls back as one unit.
type Store interface {
	// WithinTx runs fn inside a single atomic unit of work. If fn returns an
	// error, nothing fn did through tx is visible afterwards.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Reference data and projections (read-only) ---

	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByIdentifier resolves a user by email or phone.
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)

	GetWallets(ctx context.Context, userID string) ([]model.Wallet, error)

	GetTradingPair(ctx context.Context, id string) (*model.TradingPair, error)

	GetTradeOption(ctx context.Context, id string) (*model.TradeOption, error)

	GetArbitrageProduct(ctx context.Context, id string) (*model.ArbitrageProduct, error)

	GetTrade(ctx context.Context, id string) (*model.Trade, error)

	GetArbitrageOrder(ctx context.Context, id string) (*model.ArbitrageOrder, error)

	ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error)

	ListOrdersByUser(ctx context.Context, userID string) ([]model.ArbitrageOrder, error)

	ListTransfersByUser(ctx context.Context, userID string) ([]model.Transfer, error)
}

// Tx is the handle services use inside WithinTx. Row reads suffixed
// ForUpdate take an exclusive lock held until commit, serializing
// concurrent mutations of the same row.
type Tx interface {
	GetWalletForUpdate(ctx context.Context, userID string, kind model.WalletKind) (*model.Wallet, error)

	// UpdateWalletFunds writes a wallet's balance/locked pair. Only the
	// ledger primitives call this.
	UpdateWalletFunds(ctx context.Context, userID string, kind model.WalletKind, balance, locked decimal.Decimal) error

	InsertTrade(ctx context.Context, t *model.Trade) error

	GetTradeForUpdate(ctx context.Context, id string) (*model.Trade, error)

	UpdateTradeStatus(ctx context.Context, id, status, winLose string) error

	InsertArbitrageOrder(ctx context.Context, o *model.ArbitrageOrder) error

	GetArbitrageOrderForUpdate(ctx context.Context, id string) (*model.ArbitrageOrder, error)

	UpdateArbitrageOrderStatus(ctx context.Context, id, status string) error

	// AddOrderInterest increments an order's earned interest accumulator.
	AddOrderInterest(ctx context.Context, id string, amount decimal.Decimal) error

	// ClaimDueAccruals exclusively claims up to limit PENDING accrual rows
	// due at or before dueBefore, ordered by due time, skipping rows already
	// claimed by a concurrent transaction. Claimed rows stay locked until
	// the enclosing transaction ends.
	ClaimDueAccruals(ctx context.Context, dueBefore time.Time, limit int) ([]model.ArbitrageTransaction, error)

	// MarkAccrualSettled transitions a claimed row to SUCCESS with its
	// settled amount.
	MarkAccrualSettled(ctx context.Context, id string, amount decimal.Decimal) error

	// MarkAccrualFailed voids a claimed row whose order terminated before
	// the tick came due; voided rows are never reclaimed.
	MarkAccrualFailed(ctx context.Context, id string) error

	// InsertAccrual inserts a scheduled accrual row. Inserting a second row
	// with the same (order, type, transaction date) is a no-op, so
	// re-delivery cannot double-schedule.
	InsertAccrual(ctx context.Context, t *model.ArbitrageTransaction) error

	InsertTransfer(ctx context.Context, tr *model.Transfer) error
}
