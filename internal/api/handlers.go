package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ycoin/marketsim/internal/auth"
	"github.com/ycoin/marketsim/internal/engine"
	"github.com/ycoin/marketsim/internal/models"
)

type ctxKey string

const ctxUser ctxKey = "username"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Core        *engine.Core
	AuthService *auth.Service
}

// NewHandler creates a new handler
func NewHandler(core *engine.Core, authService *auth.Service) *Handler {
	return &Handler{Core: core, AuthService: authService}
}

// fmtAmount renders a float with fixed decimal places, rounding half up.
func fmtAmount(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, models.ErrUnknownUser):
		status = http.StatusNotFound
	case models.IsInsufficientFunds(err):
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	user, err := h.AuthService.Register(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		username, err := h.AuthService.UserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUser, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUser(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(ctxUser).(string)
	return username, ok && username != ""
}

// GetWallet returns the caller's balances and portfolio valuation.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	cash, coin, coinValue, total, err := h.Core.Portfolio(username)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"cash":       cash,
		"coin":       coin,
		"coin_value": fmtAmount(coinValue, 2),
		"total":      fmtAmount(total, 2),
		"price":      fmtAmount(h.Core.CurrentPrice(), 4),
	})
}

// DealerBuy executes an instant purchase at the dealer venue.
func (h *Handler) DealerBuy(w http.ResponseWriter, r *http.Request) {
	h.dealerTrade(w, r, h.Core.DealerBuy)
}

// DealerSell executes an instant sale at the dealer venue.
func (h *Handler) DealerSell(w http.ResponseWriter, r *http.Request) {
	h.dealerTrade(w, r, h.Core.DealerSell)
}

func (h *Handler) dealerTrade(w http.ResponseWriter, r *http.Request, exec func(string, float64) (models.Trade, error)) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Quantity float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	trade, err := exec(username, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	fee := trade.FeeBuyer + trade.FeeSeller
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"trade":    trade,
		"price":    fmtAmount(trade.Price, 4),
		"quantity": fmtAmount(trade.Quantity, 6),
		"fee":      fmtAmount(fee, 2),
	})
}

// PlaceOrder handles order placement; a matching pass runs immediately.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Side     string  `json:"side"`
		Price    float64 `json:"price"`
		Quantity float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Side != models.SideBuy && req.Side != models.SideSell {
		http.Error(w, `{"error": "Side must be 'buy' or 'sell'"}`, http.StatusBadRequest)
		return
	}
	if req.Price <= 0 || req.Quantity <= 0 {
		http.Error(w, `{"error": "Price and quantity must be positive"}`, http.StatusBadRequest)
		return
	}

	res, err := h.Core.PlaceOrder(username, req.Side, req.Price, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"message":  "Order placed",
		"order_id": res.OrderID,
		"matched":  len(res.Trades),
	}
	if res.Advisory != "" {
		resp["advisory"] = res.Advisory
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// RunMatching triggers a matching pass on demand.
func (h *Handler) RunMatching(w http.ResponseWriter, r *http.Request) {
	trades := h.Core.RunMatching()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"matched": len(trades),
		"trades":  trades,
	})
}

// GetUserOrders retrieves the caller's open orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(h.Core.UserOrders(username))
}

// GetOrderBook retrieves the current order book
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	buyOrders, sellOrders := h.Core.OrderBook()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"buy_orders":  buyOrders,
		"sell_orders": sellOrders,
	})
}

// GetTrades retrieves executed trades, optionally filtered by venue.
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	venue := r.URL.Query().Get("venue")
	if venue != "" && venue != models.VenueDealer && venue != models.VenueExchange {
		http.Error(w, `{"error": "Venue must be 'dealer' or 'exchange'"}`, http.StatusBadRequest)
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "Invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	json.NewEncoder(w).Encode(h.Core.Trades(venue, limit))
}

// GetUserTrades retrieves the caller's trade history
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(h.Core.UserTrades(username, 0))
}

// GetPriceHistory returns the reference price series.
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"current": h.Core.CurrentPrice(),
		"history": h.Core.PriceHistory(),
	})
}

// CancelOrder cancels an open order owned by the caller
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	if err := h.Core.CancelOrder(username, orderID); err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Order canceled"})
}

// ClearAll handles the privileged bulk clear of trades and orders.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	username, ok := requestUser(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if err := h.Core.ClearAll(username); err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "All trades and open orders cleared"})
}
