// Package trade implements timed directional trades: creation with
// price/fee/option snapshots and exactly-once settlement to a terminal
// status, with the paired wallet movements applied in the same unit of work.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/events"
	"github.com/quantex/ledger-engine/internal/ledger"
	"github.com/quantex/ledger-engine/internal/metrics"
	"github.com/quantex/ledger-engine/internal/model"
	"github.com/quantex/ledger-engine/internal/store"
)

// Service handles trade creation and settlement.
// Pass nil for hub if event broadcasting is not needed.
type Service struct {
	store store.Store
	hub   *events.Hub
}

// NewService creates a new trade service.
func NewService(st store.Store, hub *events.Hub) *Service {
	return &Service{store: st, hub: hub}
}

// CreateInput is the command to open a timed trade.
type CreateInput struct {
	UserID         string
	PairID         string
	OptionID       string
	TradeType      string // "BUY" or "SELL"
	AmountQuote    decimal.Decimal
	ExecutionPrice decimal.Decimal
}

// Create opens a trade. The fee is debited in the same atomic step that
// inserts the trade row; if the owning user is in a forced demo mode the
// trade settles immediately, with the stake debited on LOSE and
// stake+profit credited on WIN.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Trade, error) {
	if in.TradeType != "BUY" && in.TradeType != "SELL" {
		return nil, fmt.Errorf("trade type must be BUY or SELL")
	}
	if !in.AmountQuote.IsPositive() || !in.ExecutionPrice.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	user, err := s.store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	pair, err := s.store.GetTradingPair(ctx, in.PairID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ledger.ErrPairInactive
		}
		return nil, err
	}
	if !pair.Active {
		return nil, ledger.ErrPairInactive
	}

	option, err := s.store.GetTradeOption(ctx, in.OptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ledger.ErrInvalidOption
		}
		return nil, err
	}
	if option.PairID != pair.ID {
		return nil, ledger.ErrInvalidOption
	}

	if in.AmountQuote.LessThan(option.MinAmountQuote) || in.AmountQuote.GreaterThan(option.MaxAmountQuote) {
		return nil, ledger.ErrAmountOutOfRange
	}

	// Snapshot everything the trade needs; later pair/option edits must not
	// retroactively change settled trades.
	t := &model.Trade{
		ID:             uuid.New().String(),
		UserID:         in.UserID,
		PairID:         pair.ID,
		Symbol:         pair.Symbol,
		BaseCurrency:   pair.BaseCurrency,
		QuoteCurrency:  pair.QuoteCurrency,
		TradeType:      in.TradeType,
		AmountQuote:    in.AmountQuote,
		ExecutionPrice: in.ExecutionPrice,
		AmountBase:     in.AmountQuote.Div(in.ExecutionPrice),
		ExpectedProfit: in.AmountQuote.Mul(option.ProfitRate),
		FeeAmount:      in.AmountQuote.Mul(pair.FeeRate),
		Status:         model.TradePending,
		WinLose:        model.WinLoseNA,
		CreatedAt:      time.Now().UTC(),
	}

	switch user.DemoOutcome {
	case model.DemoWin:
		t.Status = model.TradeResolved
		t.WinLose = model.WinLoseWin
	case model.DemoLose:
		t.Status = model.TradeResolved
		t.WinLose = model.WinLoseLose
	}

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(ctx, in.UserID, model.WalletTrading)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ledger.ErrNoWallet
			}
			return err
		}
		if w.Balance.LessThan(in.AmountQuote) {
			return ledger.ErrInsufficientFunds
		}

		if err := tx.InsertTrade(ctx, t); err != nil {
			return err
		}

		if t.FeeAmount.IsPositive() {
			if err := ledger.Debit(ctx, tx, in.UserID, model.WalletTrading, t.FeeAmount); err != nil {
				return err
			}
		}
		switch t.WinLose {
		case model.WinLoseLose:
			if err := ledger.Debit(ctx, tx, in.UserID, model.WalletTrading, t.AmountQuote); err != nil {
				return err
			}
		case model.WinLoseWin:
			if err := ledger.Credit(ctx, tx, in.UserID, model.WalletTrading, t.AmountQuote.Add(t.ExpectedProfit)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := t.Status
	if t.Status == model.TradeResolved {
		outcome = t.WinLose
	}
	metrics.TradesCreated.WithLabelValues(outcome).Inc()

	slog.Info("trade created",
		"trade_id", t.ID,
		"user", t.UserID,
		"symbol", t.Symbol,
		"type", t.TradeType,
		"amount_quote", t.AmountQuote.String(),
		"fee", t.FeeAmount.String(),
		"status", t.Status,
		"win_lose", t.WinLose,
	)

	s.hub.Broadcast(events.Event{
		Type:    events.TypeTradeCreated,
		UserID:  t.UserID,
		TradeID: t.ID,
		Status:  t.Status,
		Amount:  t.AmountQuote.String(),
	})

	return t, nil
}

// UpdateStatus settles a PENDING trade exactly once. CANCELLED refunds
// stake+fee; RESOLVED WIN credits stake+profit (the fee stays forfeited);
// RESOLVED LOSE moves nothing — the stake was consumed when the outcome was
// determined, never re-debited here. Any other current status fails with
// ErrAlreadySettled.
func (s *Service) UpdateStatus(ctx context.Context, id, newStatus, winLose string) (*model.Trade, error) {
	var updated *model.Trade

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTradeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != model.TradePending {
			return ledger.ErrAlreadySettled
		}

		switch {
		case newStatus == model.TradeCancelled:
			refund := t.AmountQuote.Add(t.FeeAmount)
			if err := ledger.Credit(ctx, tx, t.UserID, model.WalletTrading, refund); err != nil {
				return err
			}
			t.Status = model.TradeCancelled

		case newStatus == model.TradeResolved && winLose == model.WinLoseWin:
			payout := t.AmountQuote.Add(t.ExpectedProfit)
			if err := ledger.Credit(ctx, tx, t.UserID, model.WalletTrading, payout); err != nil {
				return err
			}
			t.Status = model.TradeResolved
			t.WinLose = model.WinLoseWin

		case newStatus == model.TradeResolved && winLose == model.WinLoseLose:
			t.Status = model.TradeResolved
			t.WinLose = model.WinLoseLose

		default:
			return fmt.Errorf("invalid status transition to %s/%s", newStatus, winLose)
		}

		if err := tx.UpdateTradeStatus(ctx, t.ID, t.Status, t.WinLose); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	label := updated.Status
	if updated.Status == model.TradeResolved {
		label = updated.WinLose
	}
	metrics.TradeSettlements.WithLabelValues(label).Inc()

	slog.Info("trade settled",
		"trade_id", updated.ID,
		"user", updated.UserID,
		"status", updated.Status,
		"win_lose", updated.WinLose,
	)

	s.hub.Broadcast(events.Event{
		Type:    events.TypeTradeSettled,
		UserID:  updated.UserID,
		TradeID: updated.ID,
		Status:  updated.Status,
	})

	return updated, nil
}
