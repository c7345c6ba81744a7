// Package transfer implements one-shot peer-to-peer moves between two
// users' trading wallets.
package transfer

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

// Service handles peer transfers.
// Pass nil for hub if event broadcasting is not needed.
type Service struct {
	store store.Store
	hub   *events.Hub
}

// NewService creates a new transfer service.
func NewService(st store.Store, hub *events.Hub) *Service {
	return &Service{store: st, hub: hub}
}

// Initiate resolves the recipient by email or phone, then atomically debits
// the sender's trading wallet, credits the recipient's, and records the
// transfer. No partial-transfer state is ever observable.
func (s *Service) Initiate(ctx context.Context, senderID, recipientIdentifier string, amount decimal.Decimal) (*model.Transfer, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}

	recipient, err := s.store.GetUserByIdentifier(ctx, recipientIdentifier)
	if err != nil {
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, ledger.ErrSameUser
	}

	tr := &model.Transfer{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipient.ID,
		Amount:      amount,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := ledger.Debit(ctx, tx, senderID, model.WalletTrading, amount); err != nil {
			return err
		}
		if err := ledger.Credit(ctx, tx, recipient.ID, model.WalletTrading, amount); err != nil {
			return err
		}
		return tx.InsertTransfer(ctx, tr)
	})
	if err != nil {
		return nil, err
	}

	metrics.Transfers.Inc()

	slog.Info("transfer completed",
		"transfer_id", tr.ID,
		"sender", senderID,
		"recipient", recipient.ID,
		"amount", amount.String(),
	)

	s.hub.Broadcast(events.Event{
		Type:   events.TypeTransferCompleted,
		UserID: senderID,
		Amount: amount.String(),
	})

	return tr, nil
}
