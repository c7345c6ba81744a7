package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantex/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for reference data: users, trading pairs, trade options, and
// arbitrage products. Wallet, trade, order and accrual state is never
// cached — those rows are re-read inside each transaction by design.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// WithinTx passes through; transactional state is never cached.
func (s *CachedStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.primary.WithinTx(ctx, fn)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if s.cacheGet(ctx, userKey(id), &u) {
		return &u, nil
	}

	user, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, userKey(id), user)
	return user, nil
}

func (s *CachedStore) GetTradingPair(ctx context.Context, id string) (*model.TradingPair, error) {
	var p model.TradingPair
	if s.cacheGet(ctx, pairKey(id), &p) {
		return &p, nil
	}

	pair, err := s.primary.GetTradingPair(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, pairKey(id), pair)
	return pair, nil
}

func (s *CachedStore) GetTradeOption(ctx context.Context, id string) (*model.TradeOption, error) {
	var o model.TradeOption
	if s.cacheGet(ctx, optionKey(id), &o) {
		return &o, nil
	}

	option, err := s.primary.GetTradeOption(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, optionKey(id), option)
	return option, nil
}

func (s *CachedStore) GetArbitrageProduct(ctx context.Context, id string) (*model.ArbitrageProduct, error) {
	var p model.ArbitrageProduct
	if s.cacheGet(ctx, productKey(id), &p) {
		return &p, nil
	}

	product, err := s.primary.GetArbitrageProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, productKey(id), product)
	return product, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return s.primary.GetUserByIdentifier(ctx, identifier)
}

func (s *CachedStore) GetWallets(ctx context.Context, userID string) ([]model.Wallet, error) {
	return s.primary.GetWallets(ctx, userID)
}

func (s *CachedStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	return s.primary.GetTrade(ctx, id)
}

func (s *CachedStore) GetArbitrageOrder(ctx context.Context, id string) (*model.ArbitrageOrder, error) {
	return s.primary.GetArbitrageOrder(ctx, id)
}

func (s *CachedStore) ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.primary.ListTradesByUser(ctx, userID)
}

func (s *CachedStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.ArbitrageOrder, error) {
	return s.primary.ListOrdersByUser(ctx, userID)
}

func (s *CachedStore) ListTransfersByUser(ctx context.Context, userID string) ([]model.Transfer, error) {
	return s.primary.ListTransfersByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheGet(ctx context.Context, key string, dest any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *CachedStore) cacheSet(ctx context.Context, key string, value any) {
	if data, err := json.Marshal(value); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func userKey(id string) string    { return fmt.Sprintf("user:%s", id) }
func pairKey(id string) string    { return fmt.Sprintf("pair:%s", id) }
func optionKey(id string) string  { return fmt.Sprintf("option:%s", id) }
func productKey(id string) string { return fmt.Sprintf("product:%s", id) }
