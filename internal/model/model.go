// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletKind identifies one of a user's two segregated balance pools.
type WalletKind string

const (
	WalletTrading   WalletKind = "TRADING"
	WalletArbitrage WalletKind = "ARBITRAGE"
)

// DemoOutcome forces the result of trades placed by a demo-mode user.
type DemoOutcome string

const (
	DemoNone DemoOutcome = "NONE"
	DemoWin  DemoOutcome = "WIN"
	DemoLose DemoOutcome = "LOSE"
)

// Trade status values.
const (
	TradePending   = "PENDING"
	TradeResolved  = "RESOLVED"
	TradeCancelled = "CANCELLED"
)

// Win/lose determination for a resolved trade.
const (
	WinLoseNA   = "NA"
	WinLoseWin  = "WIN"
	WinLoseLose = "LOSE"
)

// Arbitrage order status values.
const (
	OrderActive    = "ACTIVE"
	OrderCompleted = "COMPLETED"
	OrderCancelled = "CANCELLED"
)

// Arbitrage transaction types and statuses.
const (
	TxInterest        = "INTEREST"
	TxPrincipalReturn = "PRINCIPAL_RETURN"

	TxPending = "PENDING"
	TxSuccess = "SUCCESS"
	TxFailed  = "FAILED"
)

// User carries only what the engine needs: identity, contact identifiers
// for transfer resolution, and the demo forced-outcome flag.
type User struct {
	ID          string      `json:"id" db:"id"`
	Email       string      `json:"email" db:"email"`
	Phone       string      `json:"phone" db:"phone"`
	IsAdmin     bool        `json:"is_admin" db:"is_admin"`
	DemoOutcome DemoOutcome `json:"demo_outcome" db:"demo_outcome"`
}

// Wallet is one balance pool of one user. Balance and Locked are only ever
// changed through the ledger primitives, inside a transaction.
type Wallet struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Kind      WalletKind      `json:"kind" db:"kind"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Locked    decimal.Decimal `json:"locked" db:"locked"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TradingPair is reference data for timed trades. Its symbol/fee fields are
// copied into each trade at creation so later edits never change history.
type TradingPair struct {
	ID            string          `json:"id" db:"id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	BaseCurrency  string          `json:"base_currency" db:"base_currency"`
	QuoteCurrency string          `json:"quote_currency" db:"quote_currency"`
	FeeRate       decimal.Decimal `json:"fee_rate" db:"fee_rate"`
	Active        bool            `json:"active" db:"active"`
}

// TradeOption is one duration/payout choice for a trading pair.
type TradeOption struct {
	ID             string          `json:"id" db:"id"`
	PairID         string          `json:"pair_id" db:"pair_id"`
	DurationSec    int             `json:"duration_sec" db:"duration_sec"`
	ProfitRate     decimal.Decimal `json:"profit_rate" db:"profit_rate"`
	MinAmountQuote decimal.Decimal `json:"min_amount_quote" db:"min_amount_quote"`
	MaxAmountQuote decimal.Decimal `json:"max_amount_quote" db:"max_amount_quote"`
}

// Trade is a single timed directional position. Pair, fee and profit values
// are snapshots taken at creation time.
type Trade struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	PairID         string          `json:"pair_id" db:"pair_id"`
	Symbol         string          `json:"symbol" db:"symbol"`
	BaseCurrency   string          `json:"base_currency" db:"base_currency"`
	QuoteCurrency  string          `json:"quote_currency" db:"quote_currency"`
	TradeType      string          `json:"trade_type" db:"trade_type"` // "BUY" or "SELL"
	AmountQuote    decimal.Decimal `json:"amount_quote" db:"amount_quote"`
	ExecutionPrice decimal.Decimal `json:"execution_price" db:"execution_price"`
	AmountBase     decimal.Decimal `json:"amount_base" db:"amount_base"`
	ExpectedProfit decimal.Decimal `json:"expected_profit" db:"expected_profit"`
	FeeAmount      decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	Status         string          `json:"status" db:"status"`
	WinLose        string          `json:"win_lose" db:"win_lose"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// ArbitrageProduct is reference data for fixed-term interest products.
type ArbitrageProduct struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	DailyRoiRate  decimal.Decimal `json:"daily_roi_rate" db:"daily_roi_rate"`
	DurationDays  int             `json:"duration_days" db:"duration_days"`
	MinInvestment decimal.Decimal `json:"min_investment" db:"min_investment"`
	MaxInvestment decimal.Decimal `json:"max_investment" db:"max_investment"`
	Active        bool            `json:"active" db:"active"`
}

// ArbitrageOrder is a fixed-duration interest-bearing lock of principal.
// EarnedInterest only ever increases; it is advanced by the accrual processor.
type ArbitrageOrder struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"user_id" db:"user_id"`
	ProductID      string          `json:"product_id" db:"product_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	DailyRoiRate   decimal.Decimal `json:"daily_roi_rate" db:"daily_roi_rate"`
	DurationDays   int             `json:"duration_days" db:"duration_days"`
	StartDate      time.Time       `json:"start_date" db:"start_date"`
	EndDate        time.Time       `json:"end_date" db:"end_date"`
	EarnedInterest decimal.Decimal `json:"earned_interest" db:"earned_interest"`
	Status         string          `json:"status" db:"status"`
}

// ArbitrageTransaction is one accrual tick or one principal-return event.
// A PENDING row is work owed to the accrual processor; the unique
// (order_id, type, transaction_date) triple makes re-scheduling idempotent.
type ArbitrageTransaction struct {
	ID              string          `json:"id" db:"id"`
	OrderID         string          `json:"order_id" db:"order_id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Type            string          `json:"type" db:"type"`
	Status          string          `json:"status" db:"status"`
	TransactionDate time.Time       `json:"transaction_date" db:"transaction_date"`
}

// Transfer is an immutable record of a completed peer-to-peer move.
type Transfer struct {
	ID          string          `json:"id" db:"id"`
	SenderID    string          `json:"sender_id" db:"sender_id"`
	RecipientID string          `json:"recipient_id" db:"recipient_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// WalletBalance is the read-only projection of one wallet.
type WalletBalance struct {
	Kind    WalletKind      `json:"kind"`
	Balance decimal.Decimal `json:"balance"`
	Locked  decimal.Decimal `json:"locked"`
	Total   decimal.Decimal `json:"total"`
}

// BalanceSummary aggregates all of a user's wallets.
type BalanceSummary struct {
	UserID  string          `json:"user_id"`
	Wallets []WalletBalance `json:"wallets"`
	Total   decimal.Decimal `json:"total"`
}
