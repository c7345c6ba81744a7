package arbitrage

import (
	"context"
	"errors"
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

// Processor is the recurring accrual batch job. Each cycle runs as one
// transaction: claim due PENDING accruals with an exclusive non-blocking
// lock, settle them, credit wallets, accumulate order interest, then either
// schedule the next tick or mature the order and release its principal.
//
// Two concurrent Processor runs partition the backlog between them: the
// claim skips rows another transaction holds, so no row is ever settled
// twice and neither run blocks on the other.
type Processor struct {
	store        store.Store
	hub          *events.Hub
	tickInterval time.Duration
	batchLimit   int

	now func() time.Time // injectable clock
}

// NewProcessor creates an accrual batch processor.
func NewProcessor(st store.Store, hub *events.Hub, tickInterval time.Duration, batchLimit int) *Processor {
	return &Processor{
		store:        st,
		hub:          hub,
		tickInterval: tickInterval,
		batchLimit:   batchLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run drains the due backlog: it repeats cycles until one claims fewer than
// the batch limit. Returns the total number of rows settled. A cycle error
// stops the run; the failed cycle's rows stay PENDING and are retried on
// the next trigger.
func (p *Processor) Run(ctx context.Context) (int, error) {
	total := 0
	for {
		start := time.Now()
		claimed, err := p.runCycle(ctx)
		metrics.AccrualCycleDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.AccrualCycles.WithLabelValues("error").Inc()
			slog.Error("accrual cycle failed",
				"err", err,
				"transient", store.IsTransient(err),
				"settled_so_far", total,
			)
			return total, err
		}
		if claimed == 0 {
			metrics.AccrualCycles.WithLabelValues("empty").Inc()
			return total, nil
		}

		metrics.AccrualCycles.WithLabelValues("ok").Inc()
		metrics.AccrualRowsSettled.Add(float64(claimed))
		total += claimed

		if claimed < p.batchLimit {
			return total, nil
		}
	}
}

// runCycle executes one claim/settle/credit/advance unit of work and
// returns how many rows it claimed.
func (p *Processor) runCycle(ctx context.Context) (int, error) {
	now := p.now()
	claimed := 0
	var completed []*model.ArbitrageOrder

	err := p.store.WithinTx(ctx, func(tx store.Tx) error {
		rows, err := tx.ClaimDueAccruals(ctx, now, p.batchLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		claimed = len(rows)

		// Lock the owning orders; their rate and end date drive settlement.
		orders := make(map[string]*model.ArbitrageOrder)
		for _, row := range rows {
			if _, ok := orders[row.OrderID]; ok {
				continue
			}
			order, err := tx.GetArbitrageOrderForUpdate(ctx, row.OrderID)
			if err != nil {
				return err
			}
			orders[row.OrderID] = order
		}

		// Settle each claimed row at the order's current daily rate. Rows
		// whose order already terminated (cancelled before the tick came
		// due) are voided: no payout, no next tick.
		credits := make(map[string]decimal.Decimal)  // userID → interest sum
		interest := make(map[string]decimal.Decimal) // orderID → interest sum
		voided := make(map[string]bool)              // row ID → skipped
		for _, row := range rows {
			order := orders[row.OrderID]
			if order.Status != model.OrderActive {
				if err := tx.MarkAccrualFailed(ctx, row.ID); err != nil {
					return err
				}
				voided[row.ID] = true
				continue
			}
			payout := order.Amount.Mul(order.DailyRoiRate)
			if err := tx.MarkAccrualSettled(ctx, row.ID, payout); err != nil {
				return err
			}
			credits[row.UserID] = credits[row.UserID].Add(payout)
			interest[row.OrderID] = interest[row.OrderID].Add(payout)
		}

		// One aggregate wallet credit per affected user.
		for userID, amount := range credits {
			if err := ledger.Credit(ctx, tx, userID, model.WalletArbitrage, amount); err != nil {
				return err
			}
		}
		for orderID, amount := range interest {
			if err := tx.AddOrderInterest(ctx, orderID, amount); err != nil {
				return err
			}
		}

		// Advance or finish each order based on the row's due time.
		unlocks := make(map[string]decimal.Decimal) // userID → principal sum
		for _, row := range rows {
			if voided[row.ID] {
				continue
			}
			order := orders[row.OrderID]

			if row.TransactionDate.Add(p.tickInterval).After(order.EndDate) {
				// Maturity. Guard on ACTIVE: an earlier row in this batch may
				// already have completed the order and released its principal.
				if order.Status != model.OrderActive {
					continue
				}
				if err := tx.UpdateArbitrageOrderStatus(ctx, order.ID, model.OrderCompleted); err != nil {
					return err
				}
				order.Status = model.OrderCompleted
				unlocks[order.UserID] = unlocks[order.UserID].Add(order.Amount)
				completed = append(completed, order)

				if err := tx.InsertAccrual(ctx, &model.ArbitrageTransaction{
					ID:              uuid.New().String(),
					OrderID:         order.ID,
					UserID:          order.UserID,
					Amount:          order.Amount,
					Type:            model.TxPrincipalReturn,
					Status:          model.TxSuccess,
					TransactionDate: order.EndDate,
				}); err != nil {
					return err
				}
				continue
			}

			// Not yet mature: schedule the next tick. The uniqueness on
			// (order, type, due time) makes this a no-op on re-delivery.
			if err := tx.InsertAccrual(ctx, &model.ArbitrageTransaction{
				ID:              uuid.New().String(),
				OrderID:         order.ID,
				UserID:          order.UserID,
				Amount:          decimal.Zero,
				Type:            model.TxInterest,
				Status:          model.TxPending,
				TransactionDate: row.TransactionDate.Add(p.tickInterval),
			}); err != nil {
				return err
			}
		}

		// One aggregate principal release per user with matured orders.
		for userID, amount := range unlocks {
			if err := ledger.Unlock(ctx, tx, userID, model.WalletArbitrage, amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if claimed > 0 {
		slog.Info("accrual cycle settled",
			"claimed", claimed,
			"completed_orders", len(completed),
			"as_of", now,
		)
	}
	for _, order := range completed {
		metrics.OrdersTerminated.WithLabelValues(model.OrderCompleted).Inc()
		p.hub.Broadcast(events.Event{
			Type:    events.TypeOrderCompleted,
			UserID:  order.UserID,
			OrderID: order.ID,
			Amount:  order.Amount.String(),
		})
	}
	return claimed, nil
}

// RunEvery blocks, triggering a drain run on every tick of interval until
// ctx is cancelled. Errors are logged and swallowed: the failed cycle's
// rows are still PENDING and the next trigger retries them.
func (p *Processor) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("accrual processor started",
		"poll_interval", interval,
		"tick_interval", p.tickInterval,
		"batch_limit", p.batchLimit,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("accrual processor stopped")
			return
		case <-ticker.C:
			if _, err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("accrual run failed", "err", err)
			}
		}
	}
}
