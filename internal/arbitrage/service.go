// Package arbitrage implements the fixed-term interest product lifecycle:
// opening orders that lock principal, cancelling them, and the recurring
// accrual batch processor that pays interest and releases principal at
// maturity.
//
// All monetary values use shopspring/decimal — never float64 for money.
package arbitrage

import (
	"context"
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

// Service handles arbitrage order opening and cancellation.
// Pass nil for hub if event broadcasting is not needed.
type Service struct {
	store store.Store
	hub   *events.Hub

	// tickInterval is the spacing between interest accruals. Injected so
	// the accrual loop is testable without waiting real days.
	tickInterval time.Duration
}

// NewService creates a new arbitrage order service.
func NewService(st store.Store, hub *events.Hub, tickInterval time.Duration) *Service {
	return &Service{store: st, hub: hub, tickInterval: tickInterval}
}

// OpenOrder locks amount of the user's arbitrage wallet balance into a new
// ACTIVE order and schedules its first interest accrual, all in one atomic
// step.
func (s *Service) OpenOrder(ctx context.Context, userID, productID string, amount decimal.Decimal) (*model.ArbitrageOrder, error) {
	product, err := s.store.GetArbitrageProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, ledger.ErrProductInactive
	}

	if amount.LessThan(product.MinInvestment) || amount.GreaterThan(product.MaxInvestment) {
		return nil, ledger.ErrAmountOutOfRange
	}

	now := time.Now().UTC()
	order := &model.ArbitrageOrder{
		ID:             uuid.New().String(),
		UserID:         userID,
		ProductID:      product.ID,
		Amount:         amount,
		DailyRoiRate:   product.DailyRoiRate,
		DurationDays:   product.DurationDays,
		StartDate:      now,
		EndDate:        now.AddDate(0, 0, product.DurationDays),
		EarnedInterest: decimal.Zero,
		Status:         model.OrderActive,
	}

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := ledger.Lock(ctx, tx, userID, model.WalletArbitrage, amount); err != nil {
			return err
		}
		if err := tx.InsertArbitrageOrder(ctx, order); err != nil {
			return err
		}
		return tx.InsertAccrual(ctx, &model.ArbitrageTransaction{
			ID:              uuid.New().String(),
			OrderID:         order.ID,
			UserID:          userID,
			Amount:          decimal.Zero,
			Type:            model.TxInterest,
			Status:          model.TxPending,
			TransactionDate: now.Add(s.tickInterval),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersOpened.Inc()

	slog.Info("arbitrage order opened",
		"order_id", order.ID,
		"user", userID,
		"product", product.ID,
		"amount", amount.String(),
		"end_date", order.EndDate,
	)

	s.hub.Broadcast(events.Event{
		Type:    events.TypeOrderOpened,
		UserID:  userID,
		OrderID: order.ID,
		Amount:  amount.String(),
	})

	return order, nil
}

// CancelOrder terminates an ACTIVE order, releasing the locked principal
// back to the wallet balance. It commutes safely with a concurrent maturity
// in the accrual processor: whichever commits first wins, the other sees a
// non-ACTIVE order.
func (s *Service) CancelOrder(ctx context.Context, requesterID, orderID string, asAdmin bool) (*model.ArbitrageOrder, error) {
	var cancelled *model.ArbitrageOrder

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		order, err := tx.GetArbitrageOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != requesterID && !asAdmin {
			return ledger.ErrNotOwner
		}
		if order.Status != model.OrderActive {
			return ledger.ErrNotCancellable
		}

		if err := ledger.Unlock(ctx, tx, order.UserID, model.WalletArbitrage, order.Amount); err != nil {
			return err
		}
		if err := tx.UpdateArbitrageOrderStatus(ctx, order.ID, model.OrderCancelled); err != nil {
			return err
		}
		order.Status = model.OrderCancelled
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersTerminated.WithLabelValues(model.OrderCancelled).Inc()

	slog.Info("arbitrage order cancelled",
		"order_id", cancelled.ID,
		"user", cancelled.UserID,
		"amount", cancelled.Amount.String(),
		"by_admin", asAdmin,
	)

	s.hub.Broadcast(events.Event{
		Type:    events.TypeOrderCancelled,
		UserID:  cancelled.UserID,
		OrderID: cancelled.ID,
		Amount:  cancelled.Amount.String(),
	})

	return cancelled, nil
}
