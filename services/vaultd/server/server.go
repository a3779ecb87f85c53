package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
	"github.com/Laura-bmk/KipuBankV3/observability"
	"github.com/Laura-bmk/KipuBankV3/services/vaultd/storage"
)

// FeedDialer resolves a feed contract address into a price feed client. The
// admin rotation handler uses it to build the replacement feed.
type FeedDialer func(contract common.Address) (vault.PriceFeed, error)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
}

// Server hosts the vault HTTP API.
type Server struct {
	cfg     Config
	bank    *vault.Bank
	store   *storage.Store
	logger  *slog.Logger
	auth    *Authenticator
	dial    FeedDialer
	metrics *observability.VaultMetrics
}

// New constructs a configured server.
func New(cfg Config, bank *vault.Bank, store *storage.Store, logger *slog.Logger, auth *Authenticator, dial FeedDialer) (*Server, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.Vault()
	bank.Oracle().SetReadingHook(func(_ vault.PriceReading, age time.Duration) {
		metrics.RecordOracleAge(age)
	})
	return &Server{
		cfg:     cfg,
		bank:    bank,
		store:   store,
		logger:  logger,
		auth:    auth,
		dial:    dial,
		metrics: metrics,
	}, nil
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Use(observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/accounts/{address}/balances", s.handleBalances)
		r.Get("/bank/value", s.handleBankValue)
		r.Get("/bank/events", s.handleEvents)
		r.Get("/routes/{token}", s.handleRoute)
		r.Get("/quotes/{token}", s.handleQuote)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/deposits/native", s.handleDepositNative)
			r.Post("/deposits/unit", s.handleDepositUnit)
			r.Post("/deposits/token", s.handleDepositToken)
			r.Post("/withdrawals/native", s.handleWithdrawNative)
			r.Post("/withdrawals/unit", s.handleWithdrawUnit)
			r.Put("/admin/slippage", s.handleSetSlippage)
			r.Put("/admin/pricefeed", s.handleSetPriceFeed)
		})
	})

	return otelhttp.NewHandler(r, "vaultd.http")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		observability.Service().Observe(r.URL.Path, wrapped.Status(), time.Since(start))
	})
}

type mutationRequest struct {
	Depositor string `json:"depositor"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount"`
}

type mutationResponse struct {
	Depositor  string `json:"depositor"`
	Class      string `json:"class,omitempty"`
	RawAmount  string `json:"raw_amount"`
	Normalized string `json:"normalized"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDepositNative(w http.ResponseWriter, r *http.Request) {
	depositor, amount, ok := s.decodeMutation(w, r)
	if !ok {
		return
	}
	normalized, err := s.bank.DepositNative(r.Context(), depositor, amount)
	if err != nil {
		s.writeVaultError(w, r, "deposit_native", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Depositor:  depositor.Hex(),
		Class:      string(vault.AssetClassNative),
		RawAmount:  amount.String(),
		Normalized: normalized.String(),
	})
}

func (s *Server) handleDepositUnit(w http.ResponseWriter, r *http.Request) {
	depositor, amount, ok := s.decodeMutation(w, r)
	if !ok {
		return
	}
	normalized, err := s.bank.DepositUnitOfAccount(r.Context(), depositor, amount)
	if err != nil {
		s.writeVaultError(w, r, "deposit_unit", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Depositor:  depositor.Hex(),
		Class:      string(vault.AssetClassUnitOfAccount),
		RawAmount:  amount.String(),
		Normalized: normalized.String(),
	})
}

func (s *Server) handleDepositToken(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	depositor, ok := parseHexAddress(req.Depositor)
	if !ok {
		http.Error(w, "invalid depositor address", http.StatusBadRequest)
		return
	}
	token, ok := parseHexAddress(req.Token)
	if !ok {
		http.Error(w, "invalid token address", http.StatusBadRequest)
		return
	}
	amount, ok := parsePositiveAmount(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	normalized, err := s.bank.DepositToken(r.Context(), depositor, token, amount)
	if err != nil {
		if errors.Is(err, vault.ErrSwapFailed) {
			s.metrics.RecordSwap(s.routeKind(r.Context(), token), err)
		}
		s.writeVaultError(w, r, "deposit_token", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Depositor:  depositor.Hex(),
		Class:      string(vault.AssetClassUnitOfAccount),
		RawAmount:  amount.String(),
		Normalized: normalized.String(),
	})
}

func (s *Server) handleWithdrawNative(w http.ResponseWriter, r *http.Request) {
	depositor, amount, ok := s.decodeMutation(w, r)
	if !ok {
		return
	}
	normalized, err := s.bank.WithdrawNative(r.Context(), depositor, amount)
	if err != nil {
		s.writeVaultError(w, r, "withdraw_native", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Depositor:  depositor.Hex(),
		Class:      string(vault.AssetClassNative),
		RawAmount:  amount.String(),
		Normalized: normalized.String(),
	})
}

func (s *Server) handleWithdrawUnit(w http.ResponseWriter, r *http.Request) {
	depositor, amount, ok := s.decodeMutation(w, r)
	if !ok {
		return
	}
	normalized, err := s.bank.WithdrawUnitOfAccount(r.Context(), depositor, amount)
	if err != nil {
		s.writeVaultError(w, r, "withdraw_unit", err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{
		Depositor:  depositor.Hex(),
		Class:      string(vault.AssetClassUnitOfAccount),
		RawAmount:  amount.String(),
		Normalized: normalized.String(),
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	depositor, ok := parseHexAddress(chi.URLParam(r, "address"))
	if !ok {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	balances := make(map[string]string, len(vault.AssetClasses()))
	for _, class := range vault.AssetClasses() {
		balance, err := s.bank.BalanceOf(depositor, class)
		if err != nil {
			s.writeVaultError(w, r, "balances", err)
			return
		}
		balances[string(class)] = balance.String()
	}
	total, err := s.bank.TotalOf(depositor)
	if err != nil {
		s.writeVaultError(w, r, "balances", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"depositor": depositor.Hex(),
		"balances":  balances,
		"total":     total.String(),
	})
}

func (s *Server) handleBankValue(w http.ResponseWriter, r *http.Request) {
	value, err := s.bank.TotalBankValue()
	if err != nil {
		s.writeVaultError(w, r, "bank_value", err)
		return
	}
	deposits, withdrawals, err := s.bank.Counters()
	if err != nil {
		s.writeVaultError(w, r, "bank_value", err)
		return
	}
	s.metrics.SetBankValue(value)
	writeJSON(w, http.StatusOK, map[string]any{
		"total_value": value.String(),
		"bank_cap":    s.bank.BankCap().String(),
		"deposits":    deposits,
		"withdrawals": withdrawals,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "audit trail unavailable", http.StatusNotFound)
		return
	}
	events, err := s.store.RecentEvents(r.Context(), 100)
	if err != nil {
		s.logger.Error("load events", "error", err)
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	type eventRow struct {
		ID         int64     `json:"id"`
		Type       string    `json:"type"`
		Attributes string    `json:"attributes"`
		RecordedAt time.Time `json:"recorded_at"`
	}
	rows := make([]eventRow, 0, len(events))
	for _, event := range events {
		rows = append(rows, eventRow{
			ID:         event.ID,
			Type:       event.EventType,
			Attributes: event.Attributes,
			RecordedAt: event.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": rows})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	token, ok := parseHexAddress(chi.URLParam(r, "token"))
	if !ok {
		http.Error(w, "invalid token address", http.StatusBadRequest)
		return
	}
	routable, err := s.bank.HasRoute(r.Context(), token)
	if err != nil {
		s.writeVaultError(w, r, "routes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token.Hex(),
		"routable": routable,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	token, ok := parseHexAddress(chi.URLParam(r, "token"))
	if !ok {
		http.Error(w, "invalid token address", http.StatusBadRequest)
		return
	}
	amount, ok := parsePositiveAmount(r.URL.Query().Get("amount"))
	if !ok {
		http.Error(w, "amount query parameter required", http.StatusBadRequest)
		return
	}
	estimate, err := s.bank.QuoteSwap(r.Context(), token, amount)
	if err != nil {
		s.writeVaultError(w, r, "quotes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token.Hex(),
		"amount_in": amount.String(),
		"estimate":  estimate.String(),
	})
}

func (s *Server) handleSetSlippage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bps uint64 `json:"bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.bank.SetSlippageTolerance(r.Context(), s.bank.Owner(), req.Bps); err != nil {
		s.writeVaultError(w, r, "admin_slippage", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slippage_bps": s.bank.SlippageTolerance()})
}

func (s *Server) handleSetPriceFeed(w http.ResponseWriter, r *http.Request) {
	if s.dial == nil {
		http.Error(w, "feed rotation unavailable", http.StatusNotImplemented)
		return
	}
	var req struct {
		Feed string `json:"feed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	contract, ok := parseHexAddress(req.Feed)
	if !ok {
		http.Error(w, "invalid feed address", http.StatusBadRequest)
		return
	}
	feed, err := s.dial(contract)
	if err != nil {
		s.logger.Error("dial replacement feed", "error", err)
		http.Error(w, "failed to reach feed", http.StatusBadGateway)
		return
	}
	if err := s.bank.SetPriceFeed(r.Context(), s.bank.Owner(), feed); err != nil {
		s.writeVaultError(w, r, "admin_pricefeed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": contract.Hex()})
}

// routeKind resolves the tier name for swap metrics, "unknown" when the route
// can no longer be determined.
func (s *Server) routeKind(ctx context.Context, token common.Address) string {
	path, err := s.bank.Router().SelectPath(ctx, token)
	if err != nil {
		return "unknown"
	}
	return path.Kind()
}

func (s *Server) decodeMutation(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return common.Address{}, nil, false
	}
	depositor, ok := parseHexAddress(req.Depositor)
	if !ok {
		http.Error(w, "invalid depositor address", http.StatusBadRequest)
		return common.Address{}, nil, false
	}
	amount, ok := parsePositiveAmount(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return common.Address{}, nil, false
	}
	return depositor, amount, true
}

// writeVaultError translates engine errors into HTTP statuses and feeds the
// rejection metrics.
func (s *Server) writeVaultError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, reason := classifyVaultError(err)
	if status != http.StatusInternalServerError {
		s.metrics.RecordRejection(operation, reason)
	}
	s.logger.Warn("vault operation rejected", "operation", operation, "reason", reason, "error", err.Error())
	writeJSON(w, status, map[string]string{"error": err.Error(), "reason": reason})
}

func classifyVaultError(err error) (int, string) {
	var limitErr *vault.LimitExceededError
	var capErr *vault.BankCapError
	var balanceErr *vault.InsufficientBalanceError
	var slippageErr *vault.InvalidSlippageError
	var staleErr *vault.StalePriceError
	switch {
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidAsset),
		errors.Is(err, vault.ErrInvalidDepositor):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &slippageErr):
		return http.StatusBadRequest, "invalid_slippage"
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.As(err, &limitErr):
		return http.StatusUnprocessableEntity, "tx_limit"
	case errors.As(err, &capErr):
		return http.StatusUnprocessableEntity, "bank_cap"
	case errors.As(err, &balanceErr):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, vault.ErrNoRoute):
		return http.StatusUnprocessableEntity, "no_route"
	case errors.As(err, &staleErr), errors.Is(err, vault.ErrStalePrice):
		return http.StatusServiceUnavailable, "stale_price"
	case errors.Is(err, vault.ErrOracleUnavailable), errors.Is(err, vault.ErrInvalidPrice):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	case errors.Is(err, vault.ErrReentrancy):
		return http.StatusConflict, "reentrancy"
	case errors.Is(err, vault.ErrSwapFailed):
		return http.StatusBadGateway, "swap_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func parseHexAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

func parsePositiveAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
