package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. WithinTx holds the store lock for the whole unit of work and
// restores a snapshot on error, so a failed operation leaves no trace —
// the same commit-or-nothing contract the PostgreSQL store gets from
// transactions.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]*model.User
	wallets   map[string]*model.Wallet // key: userID|kind
	pairs     map[string]*model.TradingPair
	options   map[string]*model.TradeOption
	products  map[string]*model.ArbitrageProduct
	trades    map[string]*model.Trade
	orders    map[string]*model.ArbitrageOrder
	accruals  map[string]*model.ArbitrageTransaction
	accrualBy map[string]string // orderID|type|dueUnixNano → accrual ID (uniqueness)
	transfers []model.Transfer
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*model.User),
		wallets:   make(map[string]*model.Wallet),
		pairs:     make(map[string]*model.TradingPair),
		options:   make(map[string]*model.TradeOption),
		products:  make(map[string]*model.ArbitrageProduct),
		trades:    make(map[string]*model.Trade),
		orders:    make(map[string]*model.ArbitrageOrder),
		accruals:  make(map[string]*model.ArbitrageTransaction),
		accrualBy: make(map[string]string),
	}
}

func walletKey(userID string, kind model.WalletKind) string {
	return userID + "|" + string(kind)
}

func accrualKey(orderID, txType string, due time.Time) string {
	return fmt.Sprintf("%s|%s|%d", orderID, txType, due.UnixNano())
}

// --- Seeding (concrete-type methods, used by tests and dev mode) ---

func (s *MemoryStore) PutUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[u.ID] = &c
}

func (s *MemoryStore) PutWallet(w *model.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *w
	s.wallets[walletKey(w.UserID, w.Kind)] = &c
}

func (s *MemoryStore) PutTradingPair(p *model.TradingPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.pairs[p.ID] = &c
}

func (s *MemoryStore) PutTradeOption(o *model.TradeOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	s.options[o.ID] = &c
}

func (s *MemoryStore) PutArbitrageProduct(p *model.ArbitrageProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.products[p.ID] = &c
}

// --- Snapshot support for WithinTx rollback ---

type memSnapshot struct {
	users     map[string]*model.User
	wallets   map[string]*model.Wallet
	pairs     map[string]*model.TradingPair
	options   map[string]*model.TradeOption
	products  map[string]*model.ArbitrageProduct
	trades    map[string]*model.Trade
	orders    map[string]*model.ArbitrageOrder
	accruals  map[string]*model.ArbitrageTransaction
	accrualBy map[string]string
	transfers []model.Transfer
}

func (s *MemoryStore) snapshot() *memSnapshot {
	snap := &memSnapshot{
		users:     make(map[string]*model.User, len(s.users)),
		wallets:   make(map[string]*model.Wallet, len(s.wallets)),
		pairs:     make(map[string]*model.TradingPair, len(s.pairs)),
		options:   make(map[string]*model.TradeOption, len(s.options)),
		products:  make(map[string]*model.ArbitrageProduct, len(s.products)),
		trades:    make(map[string]*model.Trade, len(s.trades)),
		orders:    make(map[string]*model.ArbitrageOrder, len(s.orders)),
		accruals:  make(map[string]*model.ArbitrageTransaction, len(s.accruals)),
		accrualBy: make(map[string]string, len(s.accrualBy)),
		transfers: append([]model.Transfer(nil), s.transfers...),
	}
	for k, v := range s.users {
		c := *v
		snap.users[k] = &c
	}
	for k, v := range s.wallets {
		c := *v
		snap.wallets[k] = &c
	}
	for k, v := range s.pairs {
		c := *v
		snap.pairs[k] = &c
	}
	for k, v := range s.options {
		c := *v
		snap.options[k] = &c
	}
	for k, v := range s.products {
		c := *v
		snap.products[k] = &c
	}
	for k, v := range s.trades {
		c := *v
		snap.trades[k] = &c
	}
	for k, v := range s.orders {
		c := *v
		snap.orders[k] = &c
	}
	for k, v := range s.accruals {
		c := *v
		snap.accruals[k] = &c
	}
	for k, v := range s.accrualBy {
		snap.accrualBy[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap *memSnapshot) {
	s.users = snap.users
	s.wallets = snap.wallets
	s.pairs = snap.pairs
	s.options = snap.options
	s.products = snap.products
	s.trades = snap.trades
	s.orders = snap.orders
	s.accruals = snap.accruals
	s.accrualBy = snap.accrualBy
	s.transfers = snap.transfers
}

// WithinTx serializes all units of work behind one lock. Concurrent callers
// block rather than interleave, which gives the same row-level exclusion
// guarantees the SQL store provides, at test scale.
func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// --- Read-only Store methods ---

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identifier == "" {
		return nil, fmt.Errorf("empty identifier: %w", ErrNotFound)
	}
	for _, u := range s.users {
		if u.Email == identifier || u.Phone == identifier {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", identifier, ErrNotFound)
}

func (s *MemoryStore) GetWallets(_ context.Context, userID string) ([]model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wallets []model.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			wallets = append(wallets, *w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Kind < wallets[j].Kind })
	return wallets, nil
}

func (s *MemoryStore) GetTradingPair(_ context.Context, id string) (*model.TradingPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pairs[id]
	if !ok {
		return nil, fmt.Errorf("trading pair %s: %w", id, ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) GetTradeOption(_ context.Context, id string) (*model.TradeOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.options[id]
	if !ok {
		return nil, fmt.Errorf("trade option %s: %w", id, ErrNotFound)
	}
	c := *o
	return &c, nil
}

func (s *MemoryStore) GetArbitrageProduct(_ context.Context, id string) (*model.ArbitrageProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("arbitrage product %s: %w", id, ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) GetTrade(_ context.Context, id string) (*model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *MemoryStore) GetArbitrageOrder(_ context.Context, id string) (*model.ArbitrageOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("arbitrage order %s: %w", id, ErrNotFound)
	}
	c := *o
	return &c, nil
}

func (s *MemoryStore) ListTradesByUser(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			trades = append(trades, *t)
		}
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.Before(trades[j].CreatedAt) })
	return trades, nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID string) ([]model.ArbitrageOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []model.ArbitrageOrder
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].StartDate.Before(orders[j].StartDate) })
	return orders, nil
}

func (s *MemoryStore) ListTransfersByUser(_ context.Context, userID string) ([]model.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.Transfer
	for _, tr := range s.transfers {
		if tr.SenderID == userID || tr.RecipientID == userID {
			result = append(result, tr)
		}
	}
	return result, nil
}

// ListAccrualsByOrder returns an order's accrual rows ordered by due time.
// Test/diagnostic helper, not part of the Store interface.
func (s *MemoryStore) ListAccrualsByOrder(orderID string) []model.ArbitrageTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []model.ArbitrageTransaction
	for _, a := range s.accruals {
		if a.OrderID == orderID {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TransactionDate.Before(result[j].TransactionDate)
	})
	return result
}

// CountAccruals returns the number of accrual rows in the given status.
func (s *MemoryStore) CountAccruals(status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.accruals {
		if a.Status == status {
			n++
		}
	}
	return n
}

// --- Tx implementation ---

// memTx mutates the store directly; the store lock is already held by
// WithinTx and the pre-taken snapshot covers rollback.
type memTx struct {
	s *MemoryStore
}

func (t *memTx) GetWalletForUpdate(_ context.Context, userID string, kind model.WalletKind) (*model.Wallet, error) {
	w, ok := t.s.wallets[walletKey(userID, kind)]
	if !ok {
		return nil, fmt.Errorf("wallet %s/%s: %w", userID, kind, ErrNotFound)
	}
	c := *w
	return &c, nil
}

func (t *memTx) UpdateWalletFunds(_ context.Context, userID string, kind model.WalletKind, balance, locked decimal.Decimal) error {
	w, ok := t.s.wallets[walletKey(userID, kind)]
	if !ok {
		return fmt.Errorf("wallet %s/%s: %w", userID, kind, ErrNotFound)
	}
	w.Balance = balance
	w.Locked = locked
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) InsertTrade(_ context.Context, tr *model.Trade) error {
	if _, exists := t.s.trades[tr.ID]; exists {
		return fmt.Errorf("trade %s already exists", tr.ID)
	}
	c := *tr
	t.s.trades[tr.ID] = &c
	return nil
}

func (t *memTx) GetTradeForUpdate(_ context.Context, id string) (*model.Trade, error) {
	tr, ok := t.s.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	c := *tr
	return &c, nil
}

func (t *memTx) UpdateTradeStatus(_ context.Context, id, status, winLose string) error {
	tr, ok := t.s.trades[id]
	if !ok {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	tr.Status = status
	tr.WinLose = winLose
	return nil
}

func (t *memTx) InsertArbitrageOrder(_ context.Context, o *model.ArbitrageOrder) error {
	if _, exists := t.s.orders[o.ID]; exists {
		return fmt.Errorf("arbitrage order %s already exists", o.ID)
	}
	c := *o
	t.s.orders[o.ID] = &c
	return nil
}

func (t *memTx) GetArbitrageOrderForUpdate(_ context.Context, id string) (*model.ArbitrageOrder, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("arbitrage order %s: %w", id, ErrNotFound)
	}
	c := *o
	return &c, nil
}

func (t *memTx) UpdateArbitrageOrderStatus(_ context.Context, id, status string) error {
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("arbitrage order %s: %w", id, ErrNotFound)
	}
	o.Status = status
	return nil
}

func (t *memTx) AddOrderInterest(_ context.Context, id string, amount decimal.Decimal) error {
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("arbitrage order %s: %w", id, ErrNotFound)
	}
	o.EarnedInterest = o.EarnedInterest.Add(amount)
	return nil
}

func (t *memTx) ClaimDueAccruals(_ context.Context, dueBefore time.Time, limit int) ([]model.ArbitrageTransaction, error) {
	// The store lock serializes whole cycles, so a concurrent cycle only
	// runs after this one commits and sees these rows already settled —
	// the same partition-not-duplicate outcome SKIP LOCKED gives in SQL.
	var due []model.ArbitrageTransaction
	for _, a := range t.s.accruals {
		if a.Status == model.TxPending && !a.TransactionDate.After(dueBefore) {
			due = append(due, *a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].TransactionDate.Before(due[j].TransactionDate)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (t *memTx) MarkAccrualSettled(_ context.Context, id string, amount decimal.Decimal) error {
	a, ok := t.s.accruals[id]
	if !ok {
		return fmt.Errorf("accrual %s: %w", id, ErrNotFound)
	}
	a.Status = model.TxSuccess
	a.Amount = amount
	return nil
}

func (t *memTx) MarkAccrualFailed(_ context.Context, id string) error {
	a, ok := t.s.accruals[id]
	if !ok {
		return fmt.Errorf("accrual %s: %w", id, ErrNotFound)
	}
	a.Status = model.TxFailed
	return nil
}

func (t *memTx) InsertAccrual(_ context.Context, a *model.ArbitrageTransaction) error {
	key := accrualKey(a.OrderID, a.Type, a.TransactionDate)
	if _, exists := t.s.accrualBy[key]; exists {
		return nil // idempotent re-delivery
	}
	c := *a
	t.s.accruals[a.ID] = &c
	t.s.accrualBy[key] = a.ID
	return nil
}

func (t *memTx) InsertTransfer(_ context.Context, tr *model.Transfer) error {
	t.s.transfers = append(t.s.transfers, *tr)
	return nil
}
