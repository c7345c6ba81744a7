package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithinTx runs fn inside one database transaction. Any error rolls the
// transaction back; infrastructure failures come back as TransientError so
// callers can distinguish them from business failures.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return &TransientError{Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// classify maps driver-level failures to TransientError and leaves
// business errors (and ErrNotFound) untouched.
func classify(err error) error {
	if err == nil || IsTransient(err) || errors.Is(err, ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"57014", // query_canceled (statement timeout)
			"08000", "08003", "08006": // connection failures
			return &TransientError{Err: err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Err: err}
	}
	return err
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// --- Read-only Store methods ---

const userColumns = `id, email, phone, is_admin, demo_outcome`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.IsAdmin, &u.DemoOutcome); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "user "+id)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR phone = $1`, identifier))
	if err != nil {
		return nil, notFoundOr(err, "user by identifier")
	}
	return u, nil
}

func (s *PostgresStore) GetWallets(ctx context.Context, userID string) ([]model.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, kind, balance::TEXT, locked::TEXT, updated_at
		 FROM wallets WHERE user_id = $1 ORDER BY kind`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		var w model.Wallet
		var balance, locked string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Kind, &balance, &locked, &w.UpdatedAt); err != nil {
			return nil, err
		}
		w.Balance, _ = decimal.NewFromString(balance)
		w.Locked, _ = decimal.NewFromString(locked)
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func (s *PostgresStore) GetTradingPair(ctx context.Context, id string) (*model.TradingPair, error) {
	var p model.TradingPair
	var feeRate string

	err := s.pool.QueryRow(ctx,
		`SELECT id, symbol, base_currency, quote_currency, fee_rate::TEXT, active
		 FROM trading_pairs WHERE id = $1`, id).
		Scan(&p.ID, &p.Symbol, &p.BaseCurrency, &p.QuoteCurrency, &feeRate, &p.Active)
	if err != nil {
		return nil, notFoundOr(err, "trading pair "+id)
	}

	p.FeeRate, _ = decimal.NewFromString(feeRate)
	return &p, nil
}

func (s *PostgresStore) GetTradeOption(ctx context.Context, id string) (*model.TradeOption, error) {
	var o model.TradeOption
	var profitRate, minAmount, maxAmount string

	err := s.pool.QueryRow(ctx,
		`SELECT id, pair_id, duration_sec, profit_rate::TEXT,
		        min_amount_quote::TEXT, max_amount_quote::TEXT
		 FROM trade_options WHERE id = $1`, id).
		Scan(&o.ID, &o.PairID, &o.DurationSec, &profitRate, &minAmount, &maxAmount)
	if err != nil {
		return nil, notFoundOr(err, "trade option "+id)
	}

	o.ProfitRate, _ = decimal.NewFromString(profitRate)
	o.MinAmountQuote, _ = decimal.NewFromString(minAmount)
	o.MaxAmountQuote, _ = decimal.NewFromString(maxAmount)
	return &o, nil
}

func (s *PostgresStore) GetArbitrageProduct(ctx context.Context, id string) (*model.ArbitrageProduct, error) {
	var p model.ArbitrageProduct
	var roi, minInv, maxInv string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, daily_roi_rate::TEXT, duration_days,
		        min_investment::TEXT, max_investment::TEXT, active
		 FROM arbitrage_products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &roi, &p.DurationDays, &minInv, &maxInv, &p.Active)
	if err != nil {
		return nil, notFoundOr(err, "arbitrage product "+id)
	}

	p.DailyRoiRate, _ = decimal.NewFromString(roi)
	p.MinInvestment, _ = decimal.NewFromString(minInv)
	p.MaxInvestment, _ = decimal.NewFromString(maxInv)
	return &p, nil
}

const tradeColumns = `id, user_id, pair_id, symbol, base_currency, quote_currency,
	trade_type, amount_quote::TEXT, execution_price::TEXT, amount_base::TEXT,
	expected_profit::TEXT, fee_amount::TEXT, status, win_lose, created_at`

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	var amountQuote, price, amountBase, profit, fee string

	if err := row.Scan(&t.ID, &t.UserID, &t.PairID, &t.Symbol, &t.BaseCurrency,
		&t.QuoteCurrency, &t.TradeType, &amountQuote, &price, &amountBase,
		&profit, &fee, &t.Status, &t.WinLose, &t.CreatedAt); err != nil {
		return nil, err
	}

	t.AmountQuote, _ = decimal.NewFromString(amountQuote)
	t.ExecutionPrice, _ = decimal.NewFromString(price)
	t.AmountBase, _ = decimal.NewFromString(amountBase)
	t.ExpectedProfit, _ = decimal.NewFromString(profit)
	t.FeeAmount, _ = decimal.NewFromString(fee)
	return &t, nil
}

func (s *PostgresStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	t, err := scanTrade(s.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "trade "+id)
	}
	return t, nil
}

func (s *PostgresStore) ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

const orderColumns = `id, user_id, product_id, amount::TEXT, daily_roi_rate::TEXT,
	duration_days, start_date, end_date, earned_interest::TEXT, status`

func scanOrder(row pgx.Row) (*model.ArbitrageOrder, error) {
	var o model.ArbitrageOrder
	var amount, roi, interest string

	if err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &amount, &roi,
		&o.DurationDays, &o.StartDate, &o.EndDate, &interest, &o.Status); err != nil {
		return nil, err
	}

	o.Amount, _ = decimal.NewFromString(amount)
	o.DailyRoiRate, _ = decimal.NewFromString(roi)
	o.EarnedInterest, _ = decimal.NewFromString(interest)
	return &o, nil
}

func (s *PostgresStore) GetArbitrageOrder(ctx context.Context, id string) (*model.ArbitrageOrder, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM arbitrage_orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "arbitrage order "+id)
	}
	return o, nil
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.ArbitrageOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM arbitrage_orders WHERE user_id = $1 ORDER BY start_date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.ArbitrageOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) ListTransfersByUser(ctx context.Context, userID string) ([]model.Transfer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, recipient_id, amount::TEXT, created_at
		 FROM transfers WHERE sender_id = $1 OR recipient_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		var tr model.Transfer
		var amount string
		if err := rows.Scan(&tr.ID, &tr.SenderID, &tr.RecipientID, &amount, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Amount, _ = decimal.NewFromString(amount)
		transfers = append(transfers, tr)
	}
	return transfers, rows.Err()
}

// --- Tx implementation ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetWalletForUpdate(ctx context.Context, userID string, kind model.WalletKind) (*model.Wallet, error) {
	var w model.Wallet
	var balance, locked string

	err := t.tx.QueryRow(ctx,
		`SELECT id, user_id, kind, balance::TEXT, locked::TEXT, updated_at
		 FROM wallets WHERE user_id = $1 AND kind = $2
		 FOR UPDATE`, userID, kind).
		Scan(&w.ID, &w.UserID, &w.Kind, &balance, &locked, &w.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("wallet %s/%s", userID, kind))
	}

	w.Balance, _ = decimal.NewFromString(balance)
	w.Locked, _ = decimal.NewFromString(locked)
	return &w, nil
}

func (t *pgTx) UpdateWalletFunds(ctx context.Context, userID string, kind model.WalletKind, balance, locked decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets SET balance = $3::NUMERIC, locked = $4::NUMERIC, updated_at = NOW()
		 WHERE user_id = $1 AND kind = $2`,
		userID, kind, balance.String(), locked.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s/%s: %w", userID, kind, ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (id, user_id, pair_id, symbol, base_currency, quote_currency,
		    trade_type, amount_quote, execution_price, amount_base, expected_profit,
		    fee_amount, status, win_lose, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		    $11::NUMERIC, $12::NUMERIC, $13, $14, $15)`,
		tr.ID, tr.UserID, tr.PairID, tr.Symbol, tr.BaseCurrency, tr.QuoteCurrency,
		tr.TradeType, tr.AmountQuote.String(), tr.ExecutionPrice.String(),
		tr.AmountBase.String(), tr.ExpectedProfit.String(), tr.FeeAmount.String(),
		tr.Status, tr.WinLose, tr.CreatedAt)
	return err
}

func (t *pgTx) GetTradeForUpdate(ctx context.Context, id string) (*model.Trade, error) {
	tr, err := scanTrade(t.tx.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "trade "+id)
	}
	return tr, nil
}

func (t *pgTx) UpdateTradeStatus(ctx context.Context, id, status, winLose string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE trades SET status = $2, win_lose = $3 WHERE id = $1`,
		id, status, winLose)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertArbitrageOrder(ctx context.Context, o *model.ArbitrageOrder) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO arbitrage_orders (id, user_id, product_id, amount, daily_roi_rate,
		    duration_days, start_date, end_date, earned_interest, status)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9::NUMERIC, $10)`,
		o.ID, o.UserID, o.ProductID, o.Amount.String(), o.DailyRoiRate.String(),
		o.DurationDays, o.StartDate, o.EndDate, o.EarnedInterest.String(), o.Status)
	return err
}

func (t *pgTx) GetArbitrageOrderForUpdate(ctx context.Context, id string) (*model.ArbitrageOrder, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM arbitrage_orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "arbitrage order "+id)
	}
	return o, nil
}

func (t *pgTx) UpdateArbitrageOrderStatus(ctx context.Context, id, status string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE arbitrage_orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("arbitrage order %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) AddOrderInterest(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE arbitrage_orders SET earned_interest = earned_interest + $2::NUMERIC
		 WHERE id = $1`, id, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("arbitrage order %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimDueAccruals takes exclusive row locks without waiting on rows a
// concurrent cycle already holds, so overlapping batch runs partition the
// pending backlog instead of double-processing it.
func (t *pgTx) ClaimDueAccruals(ctx context.Context, dueBefore time.Time, limit int) ([]model.ArbitrageTransaction, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, order_id, user_id, amount::TEXT, type, status, transaction_date
		 FROM arbitrage_transactions
		 WHERE status = $1 AND transaction_date <= $2
		 ORDER BY transaction_date
		 FOR UPDATE SKIP LOCKED
		 LIMIT $3`,
		model.TxPending, dueBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []model.ArbitrageTransaction
	for rows.Next() {
		var a model.ArbitrageTransaction
		var amount string
		if err := rows.Scan(&a.ID, &a.OrderID, &a.UserID, &amount, &a.Type,
			&a.Status, &a.TransactionDate); err != nil {
			return nil, err
		}
		a.Amount, _ = decimal.NewFromString(amount)
		claimed = append(claimed, a)
	}
	return claimed, rows.Err()
}

func (t *pgTx) MarkAccrualSettled(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE arbitrage_transactions SET status = $2, amount = $3::NUMERIC
		 WHERE id = $1`,
		id, model.TxSuccess, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accrual %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) MarkAccrualFailed(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE arbitrage_transactions SET status = $2 WHERE id = $1`,
		id, model.TxFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("accrual %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertAccrual schedules an accrual row. The unique index on
// (order_id, type, transaction_date) plus ON CONFLICT DO NOTHING makes
// retried cycles unable to double-schedule the same tick.
func (t *pgTx) InsertAccrual(ctx context.Context, a *model.ArbitrageTransaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO arbitrage_transactions (id, order_id, user_id, amount, type, status, transaction_date)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)
		 ON CONFLICT (order_id, type, transaction_date) DO NOTHING`,
		a.ID, a.OrderID, a.UserID, a.Amount.String(), a.Type, a.Status, a.TransactionDate)
	return err
}

func (t *pgTx) InsertTransfer(ctx context.Context, tr *model.Transfer) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transfers (id, sender_id, recipient_id, amount, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		tr.ID, tr.SenderID, tr.RecipientID, tr.Amount.String(), tr.CreatedAt)
	return err
}
