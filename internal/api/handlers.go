// Package api maps the engine's operations onto HTTP routes. It is thin
// wiring: handlers decode a request, call the core, and translate taxonomy
// errors to statuses. Request schema validation and authentication live in
// the surrounding system.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quantex/ledger-engine/internal/arbitrage"
	"github.com/quantex/ledger-engine/internal/ledger"
	"github.com/quantex/ledger-engine/internal/store"
	"github.com/quantex/ledger-engine/internal/trade"
	"github.com/quantex/ledger-engine/internal/transfer"
)

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Store     store.Store
	Wallets   *ledger.Service
	Trades    *trade.Service
	Orders    *arbitrage.Service
	Transfers *transfer.Service
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, wallets *ledger.Service, trades *trade.Service, orders *arbitrage.Service, transfers *transfer.Service) *Handler {
	return &Handler{
		Store:     st,
		Wallets:   wallets,
		Trades:    trades,
		Orders:    orders,
		Transfers: transfers,
	}
}

// Routes mounts all engine routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/wallets/{userID}", h.GetBalances)

	r.Post("/trades", h.CreateTrade)
	r.Get("/trades/{tradeID}", h.GetTrade)
	r.Put("/trades/{tradeID}/status", h.UpdateTradeStatus)
	r.Get("/users/{userID}/trades", h.ListTrades)

	r.Post("/arbitrage/orders", h.OpenOrder)
	r.Get("/arbitrage/orders/{orderID}", h.GetOrder)
	r.Delete("/arbitrage/orders/{orderID}", h.CancelOrder)
	r.Get("/users/{userID}/arbitrage/orders", h.ListOrders)

	r.Post("/transfers", h.InitiateTransfer)
	r.Get("/users/{userID}/transfers", h.ListTransfers)
}

// GetBalances handles GET /wallets/{userID}.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Wallets.GetBalances(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CreateTrade handles POST /trades.
func (h *Handler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string          `json:"user_id"`
		PairID         string          `json:"pair_id"`
		OptionID       string          `json:"option_id"`
		TradeType      string          `json:"trade_type"`
		AmountQuote    decimal.Decimal `json:"amount_quote"`
		ExecutionPrice decimal.Decimal `json:"execution_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.Trades.Create(r.Context(), trade.CreateInput{
		UserID:         req.UserID,
		PairID:         req.PairID,
		OptionID:       req.OptionID,
		TradeType:      req.TradeType,
		AmountQuote:    req.AmountQuote,
		ExecutionPrice: req.ExecutionPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTrade handles GET /trades/{tradeID}.
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTrade(r.Context(), chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTradeStatus handles PUT /trades/{tradeID}/status.
func (h *Handler) UpdateTradeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status  string `json:"status"`
		WinLose string `json:"win_lose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.Trades.UpdateStatus(r.Context(), chi.URLParam(r, "tradeID"), req.Status, req.WinLose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTrades handles GET /users/{userID}/trades.
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.Store.ListTradesByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// OpenOrder handles POST /arbitrage/orders.
func (h *Handler) OpenOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string          `json:"user_id"`
		ProductID string          `json:"product_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.Orders.OpenOrder(r.Context(), req.UserID, req.ProductID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /arbitrage/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Store.GetArbitrageOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder handles DELETE /arbitrage/orders/{orderID}. The requester and
// admin flag come from headers set by the (out of scope) auth layer.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	requesterID := r.Header.Get("X-User-ID")
	asAdmin := r.Header.Get("X-Admin") == "true"

	order, err := h.Orders.CancelOrder(r.Context(), requesterID, chi.URLParam(r, "orderID"), asAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /users/{userID}/arbitrage/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.ListOrdersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// InitiateTransfer handles POST /transfers.
func (h *Handler) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID  string          `json:"sender_id"`
		Recipient string          `json:"recipient"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tr, err := h.Transfers.Initiate(r.Context(), req.SenderID, req.Recipient, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

// ListTransfers handles GET /users/{userID}/transfers.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.Store.ListTransfersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError translates taxonomy errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, ledger.ErrNoWallet):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientLocked),
		errors.Is(err, ledger.ErrAlreadySettled),
		errors.Is(err, ledger.ErrNotCancellable),
		errors.Is(err, ledger.ErrPairInactive),
		errors.Is(err, ledger.ErrProductInactive):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAmountOutOfRange),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidOption),
		errors.Is(err, ledger.ErrSameWallet),
		errors.Is(err, ledger.ErrSameUser):
		return http.StatusBadRequest
	case store.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
