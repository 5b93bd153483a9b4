package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"PoolLedger/internal/core"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server is the HTTP/JSON API over the engine and the query service.
// Mutating endpoints funnel into the engine one at a time through the
// transaction guard; a concurrent mutation gets 409 reentrant_call.
type Server struct {
	addr   string
	engine *core.Engine
	query  *query.QueryService
	health *observability.HealthChecker
	log    zerolog.Logger
}

func NewServer(addr string, engine *core.Engine, qs *query.QueryService, health *observability.HealthChecker) *Server {
	return &Server{
		addr:   addr,
		engine: engine,
		query:  qs,
		health: health,
		log:    observability.NewLogger("http"),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deposits", s.handleDeposit)
		r.Post("/deposits/bulk", s.handleBulkDeposit)
		r.Post("/withdrawals", s.handleWithdraw)
		r.Post("/withdrawals/all", s.handleWithdrawAll)
		r.Post("/withdrawals/partial", s.handleWithdrawPartial)

		r.Route("/admin", func(r chi.Router) {
			r.Put("/minimum-deposit", s.handleSetMinimumDeposit)
			r.Put("/fee", s.handleSetFee)
			r.Put("/lock-period", s.handleSetLockPeriod)
			r.Put("/treasury", s.handleSetTreasury)
			r.Put("/paused", s.handleSetPaused)
			r.Put("/blacklist", s.handleSetBlacklist)
			r.Put("/fee-exempt", s.handleSetFeeExempt)
			r.Put("/operators", s.handleSetOperator)
			r.Post("/sweep", s.handleSweep)
			r.Post("/emergency-withdraw", s.handleEmergencyWithdraw)
			r.Post("/rescue", s.handleRescue)
			r.Get("/integrity", s.handleIntegrity)
		})

		r.Get("/accounts/{id}", s.handleAccountInfo)
		r.Get("/accounts/{id}/withdrawable", s.handleWithdrawable)
		r.Get("/accounts/{id}/records", s.handleAccountRecords)
		r.Get("/pool/stats", s.handlePoolStats)
		r.Get("/pool/solvency", s.handleSolvency)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// === Funds movement ===

type depositRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, ok := s.parseID(w, req.Account, "account")
	if !ok {
		return
	}

	res, err := s.engine.Deposit(r.Context(), requestID(r), account, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":     res.Account,
		"requested":   res.Requested,
		"received":    res.Received,
		"new_balance": res.NewBalance,
		"sequence":    res.Sequence,
	})
}

type bulkDepositRequest struct {
	Accounts []string `json:"accounts"`
	Amounts  []int64  `json:"amounts"`
}

func (s *Server) handleBulkDeposit(w http.ResponseWriter, r *http.Request) {
	var req bulkDepositRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	accounts := make([]uuid.UUID, 0, len(req.Accounts))
	for _, raw := range req.Accounts {
		id, ok := s.parseID(w, raw, "account")
		if !ok {
			return
		}
		accounts = append(accounts, id)
	}

	res, err := s.engine.BulkDeposit(r.Context(), requestID(r), caller, accounts, req.Amounts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":          res.Count,
		"total_received": res.TotalReceived,
		"sequence":       res.Sequence,
	})
}

type withdrawRequest struct {
	Account    string `json:"account"`
	Amount     int64  `json:"amount,omitempty"`
	Percentage int64  `json:"percentage,omitempty"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.withdraw(w, r, func(ctx context.Context, reqID, account uuid.UUID, req withdrawRequest) (*core.WithdrawResult, error) {
		return s.engine.Withdraw(ctx, reqID, account, req.Amount)
	})
}

func (s *Server) handleWithdrawAll(w http.ResponseWriter, r *http.Request) {
	s.withdraw(w, r, func(ctx context.Context, reqID, account uuid.UUID, req withdrawRequest) (*core.WithdrawResult, error) {
		return s.engine.WithdrawAll(ctx, reqID, account)
	})
}

func (s *Server) handleWithdrawPartial(w http.ResponseWriter, r *http.Request) {
	s.withdraw(w, r, func(ctx context.Context, reqID, account uuid.UUID, req withdrawRequest) (*core.WithdrawResult, error) {
		return s.engine.WithdrawPartial(ctx, reqID, account, req.Percentage)
	})
}

func (s *Server) withdraw(
	w http.ResponseWriter,
	r *http.Request,
	call func(context.Context, uuid.UUID, uuid.UUID, withdrawRequest) (*core.WithdrawResult, error),
) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	account, ok := s.parseID(w, req.Account, "account")
	if !ok {
		return
	}

	res, err := call(r.Context(), requestID(r), account, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":     res.Account,
		"gross":       res.Gross,
		"fee":         res.Fee,
		"net":         res.Net,
		"new_balance": res.NewBalance,
		"sequence":    res.Sequence,
	})
}

// === Admin ===

type setValueRequest struct {
	Value int64 `json:"value"`
}

func (s *Server) handleSetMinimumDeposit(w http.ResponseWriter, r *http.Request) {
	s.setInt64(w, r, s.engine.SetMinimumDeposit)
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	s.setInt64(w, r, s.engine.SetWithdrawalFee)
}

func (s *Server) setInt64(w http.ResponseWriter, r *http.Request, set func(uuid.UUID, uuid.UUID, int64) (int64, error)) {
	var req setValueRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	old, err := set(requestID(r), caller, req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"old": old, "new": req.Value})
}

func (s *Server) handleSetLockPeriod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int64 `json:"seconds"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	old, err := s.engine.SetLockPeriod(requestID(r), caller, time.Duration(req.Seconds)*time.Second)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"old_seconds": int64(old / time.Second),
		"new_seconds": req.Seconds,
	})
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Treasury string `json:"treasury"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	treasury, ok := s.parseID(w, req.Treasury, "treasury")
	if !ok {
		return
	}

	if err := s.engine.SetTreasury(requestID(r), caller, treasury); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"treasury": treasury})
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused bool `json:"paused"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	old, err := s.engine.SetPaused(requestID(r), caller, req.Paused)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"old": old, "new": req.Paused})
}

type accessRequest struct {
	Account string `json:"account"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleSetBlacklist(w http.ResponseWriter, r *http.Request) {
	s.setAccess(w, r, s.engine.SetBlacklisted)
}

func (s *Server) handleSetFeeExempt(w http.ResponseWriter, r *http.Request) {
	s.setAccess(w, r, s.engine.SetFeeExempt)
}

func (s *Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	s.setAccess(w, r, s.engine.SetOperator)
}

func (s *Server) setAccess(w http.ResponseWriter, r *http.Request, set func(uuid.UUID, uuid.UUID, uuid.UUID, bool) error) {
	var req accessRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	account, ok := s.parseID(w, req.Account, "account")
	if !ok {
		return
	}

	if err := set(requestID(r), caller, account, req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"account": account, "enabled": req.Enabled})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	res, err := s.engine.SweepCollectedFees(r.Context(), requestID(r), caller, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"treasury":       res.Treasury,
		"amount":         res.Amount,
		"remaining_fees": res.RemainingFees,
		"sequence":       res.Sequence,
	})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	res, err := s.engine.EmergencyWithdraw(r.Context(), requestID(r), caller, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"recipient":      res.Recipient,
		"amount":         res.Amount,
		"pool_balance":   res.PoolBalance,
		"fees_protected": res.FeesProtected,
		"sequence":       res.Sequence,
	})
}

func (s *Server) handleRescue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset  string `json:"asset"`
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	to, ok := s.parseID(w, req.To, "to")
	if !ok {
		return
	}

	res, err := s.engine.RescueForeignAsset(r.Context(), requestID(r), caller, req.Asset, to, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"asset":     res.Asset,
		"recipient": res.Recipient,
		"amount":    res.Amount,
		"sequence":  res.Sequence,
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.query.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// === Views ===

func (s *Server) handleAccountInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}

	info := s.engine.AccountInfo(id)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":           info.Account,
		"balance":           info.Balance,
		"last_deposit_time": info.LastDepositTime,
		"locked":            info.Locked,
		"estimated_fee":     info.EstimatedFee,
		"withdrawable":      info.Withdrawable,
	})
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}

	info := s.engine.AccountInfo(id)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":       info.Account,
		"withdrawable":  info.Withdrawable,
		"estimated_fee": info.EstimatedFee,
		"locked":        info.Locked,
	})
}

func (s *Server) handleAccountRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, chi.URLParam(r, "id"), "id")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(r, "offset", 0)

	records, err := s.query.ListAccountRecords(r.Context(), id, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account": id,
		"records": records,
	})
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	available, err := s.engine.PoolAvailable(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_users":     stats.TotalUsers,
		"total_deposits":  stats.TotalDeposits,
		"collected_fees":  stats.CollectedFees,
		"pool_balance":    stats.PoolBalance,
		"average_balance": stats.AverageBalance,
		"available":       available,
		"sequence":        s.engine.Sequence(),
	})
}

func (s *Server) handleSolvency(w http.ResponseWriter, r *http.Request) {
	err := s.engine.CheckSolvency(r.Context())
	resp := map[string]any{"solvent": err == nil}
	if err != nil {
		resp["detail"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// === Helpers ===

// requestID reads the client idempotency key. Absent or malformed means no
// dedup for this request.
func requestID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get("X-Request-ID"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// caller reads the authenticated caller identity from the X-Caller-ID
// header. Identity verification is the deployment's concern (mTLS or an
// authenticating proxy); the engine enforces authorization.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Caller-ID"))
	if err != nil {
		s.writeErrorCode(w, http.StatusForbidden, "not_authorized", "missing or malformed X-Caller-ID header")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) parseID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "zero_account", field+" is not a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return def
	}
	return i
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorCode(w, statusFor(err), core.ErrorCode(err), err.Error())
}

func (s *Server) writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	s.writeJSON(w, status, body)
}

// statusFor maps engine errors onto HTTP statuses: bad input 400, missing
// capability 403, busy or duplicate 409, failed precondition 422.
func statusFor(err error) int {
	switch core.ErrorCode(err) {
	case "amount_zero", "zero_account", "length_mismatch", "fee_above_cap", "invalid_percentage":
		return http.StatusBadRequest
	case "not_authorized", "blacklisted":
		return http.StatusForbidden
	case "reentrant_call", "duplicate_request", "paused", "not_paused":
		return http.StatusConflict
	case "insufficient_balance", "amount_below_minimum", "withdrawal_locked",
		"no_pool_balance", "sweep_exceeds_fees", "rescue_not_allowed", "treasury_not_set":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
