package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"toilex/internal/config"
	"toilex/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	market *market.Service
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, svc *market.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		market: svc,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1/{tenant}", func(r chi.Router) {
		r.Get("/stocks", s.handleStocksList)
		r.Get("/stocks/{ticker}", s.handleStockDetail)
		r.Get("/stocks/{ticker}/history", s.handleStockHistory)
		r.Post("/register", s.handleRegister)
		r.Delete("/accounts/{user}", s.handleDeleteAccount)
		r.Post("/orders", s.handleOrder)
		r.Post("/gifts", s.handleGift)
		r.Get("/portfolio/{user}", s.handlePortfolio)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/settings", s.handleSettingsList)

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Put("/settings/{key}", s.handleSetSetting)
			r.Post("/admin/stocks", s.handleAddStock)
			r.Delete("/admin/stocks/{ticker}", s.handleRemoveStock)
			r.Post("/admin/stocks/{ticker}/price", s.handleSetPrice)
			r.Post("/admin/stocks/{ticker}/risk", s.handleSetRisk)
			r.Post("/admin/crash", s.handleCrash)
			r.Post("/admin/reset", s.handleReset)
		})
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tenantParam(r *http.Request) string {
	return chi.URLParam(r, "tenant")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		User string `json:"user"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.User = strings.TrimSpace(in.User)
	if in.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	acct, err := s.market.Register(r.Context(), tenantParam(r), in.User)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.market.DeleteAccount(r.Context(), tenantParam(r), chi.URLParam(r, "user")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStocksList(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.ListStocks(r.Context(), tenantParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stocks": out})
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.GetStock(r.Context(), tenantParam(r), chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	lookback := 24 * time.Hour
	if v := strings.TrimSpace(r.URL.Query().Get("lookback")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid lookback")
			return
		}
		lookback = d
	}
	out, err := s.market.PriceHistory(r.Context(), tenantParam(r), chi.URLParam(r, "ticker"), lookback)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": out})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		User     string `json:"user"`
		Ticker   string `json:"ticker"`
		Side     string `json:"side"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var (
		result market.TradeResult
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(in.Side)) {
	case "buy":
		result, err = s.market.Buy(r.Context(), tenantParam(r), in.User, in.Ticker, in.Quantity, idempotencyKey(r))
	case "sell":
		result, err = s.market.Sell(r.Context(), tenantParam(r), in.User, in.Ticker, in.Quantity, idempotencyKey(r))
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGift(w http.ResponseWriter, r *http.Request) {
	var in struct {
		From       string `json:"from"`
		To         string `json:"to"`
		CashMicros int64  `json:"cash_micros"`
		Ticker     string `json:"ticker"`
		Quantity   int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.market.Gift(r.Context(), tenantParam(r), in.From, in.To, market.GiftPayload{
		CashMicros: in.CashMicros,
		Ticker:     in.Ticker,
		Quantity:   in.Quantity,
	}, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.Portfolio(r.Context(), tenantParam(r), chi.URLParam(r, "user"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	out, err := s.market.Leaderboard(r.Context(), tenantParam(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleSettingsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.ListSettings(r.Context(), tenantParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": out})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.market.SetSetting(r.Context(), tenantParam(r), chi.URLParam(r, "key"), in.Value); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Ticker      string `json:"ticker"`
		Name        string `json:"name"`
		PriceMicros int64  `json:"price_micros"`
		Risk        string `json:"risk"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	risk, err := market.ParseRisk(in.Risk)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.market.AddStock(r.Context(), tenantParam(r), market.AddStockInput{
		Ticker:      in.Ticker,
		Name:        in.Name,
		PriceMicros: in.PriceMicros,
		Risk:        risk,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRemoveStock(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.RemoveStock(r.Context(), tenantParam(r), chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PriceMicros int64 `json:"price_micros"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.market.SetPrice(r.Context(), tenantParam(r), chi.URLParam(r, "ticker"), in.PriceMicros)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetRisk(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Risk string `json:"risk"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	risk, err := market.ParseRisk(in.Risk)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.market.SetRisk(r.Context(), tenantParam(r), chi.URLParam(r, "ticker"), risk)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCrash(w http.ResponseWriter, r *http.Request) {
	out, err := s.market.MarketCrash(r.Context(), tenantParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.market.ResetStocks(r.Context(), tenantParam(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrDuplicateIdempotency), errors.Is(err, market.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrInsufficientFunds),
		errors.Is(err, market.ErrInsufficientShares),
		errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidTicker),
		errors.Is(err, market.ErrInvalidRisk),
		errors.Is(err, market.ErrSelfGift),
		errors.Is(err, market.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrUnknownSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrCrashCooldown):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, market.ErrStockNotFound), errors.Is(err, market.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
