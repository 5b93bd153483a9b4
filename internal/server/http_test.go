package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"PoolLedger/internal/access"
	"PoolLedger/internal/core"
	"PoolLedger/internal/ledger"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/server"
	"PoolLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverEnv struct {
	router http.Handler
	gw     *testutil.FakeGateway
	owner  uuid.UUID
	pool   uuid.UUID
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()

	owner := uuid.New()
	pool := uuid.New()
	gw := testutil.NewFakeGateway(pool)

	led := ledger.New(ledger.Config{
		MinimumDeposit:     100,
		WithdrawalFeeBps:   50,
		ProtectFeesOnDrain: true,
	})
	reg := access.NewRegistry(owner)

	persistChan := make(chan core.Output, 256)
	streamChan := make(chan core.Output, 256)
	engine := core.NewEngine(led, reg, gw, nil, nil, pool, "USDC", persistChan, streamChan)

	health := observability.NewHealthChecker()
	health.SetReady(true)

	srv := server.NewServer(":0", engine, nil, health)
	return &serverEnv{
		router: srv.Router(),
		gw:     gw,
		owner:  owner,
		pool:   pool,
	}
}

func (env *serverEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func asOwner(env *serverEnv) map[string]string {
	return map[string]string{"X-Caller-ID": env.owner.String()}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error body, got %s", rec.Body.String())
	return errObj["code"].(string)
}

func TestDeposit_OK(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(),
		"amount":  1_000,
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1_000), body["received"])
	assert.Equal(t, float64(1_000), body["new_balance"])
	assert.Equal(t, int64(9_000), env.gw.Balance(account))
}

func TestDeposit_MalformedBody(t *testing.T) {
	env := newServerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeposit_AmountZero(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": uuid.New().String(),
		"amount":  0,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount_zero", errorCode(t, rec))
}

func TestWithdraw_FeeApplied(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/withdrawals", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(5), body["fee"])
	assert.Equal(t, float64(995), body["net"])
	assert.Equal(t, float64(0), body["new_balance"])
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/withdrawals", map[string]any{
		"account": uuid.New().String(), "amount": 500,
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_balance", errorCode(t, rec))
}

func TestWithdrawPartial_InvalidPercentage(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/withdrawals/partial", map[string]any{
		"account": uuid.New().String(), "percentage": 150,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_percentage", errorCode(t, rec))
}

func TestAdmin_MissingCallerHeader(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/admin/fee", map[string]any{"value": 100}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_authorized", errorCode(t, rec))
}

func TestAdmin_NonOwnerRejected(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/admin/fee", map[string]any{"value": 100},
		map[string]string{"X-Caller-ID": uuid.New().String()})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_authorized", errorCode(t, rec))
}

func TestAdmin_SetFee(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/admin/fee", map[string]any{"value": 100}, asOwner(env))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(50), body["old"])
	assert.Equal(t, float64(100), body["new"])
}

func TestAdmin_SetFeeAboveCap(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/admin/fee", map[string]any{"value": 1_001}, asOwner(env))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fee_above_cap", errorCode(t, rec))
}

func TestAdmin_PauseBlocksDeposits(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPut, "/v1/admin/paused", map[string]any{"paused": true}, asOwner(env))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "paused", errorCode(t, rec))
}

func TestAdmin_BlacklistBlocksAccount(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPut, "/v1/admin/blacklist", map[string]any{
		"account": account.String(), "enabled": true,
	}, asOwner(env))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "blacklisted", errorCode(t, rec))
}

func TestAdmin_SweepWithoutTreasury(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/admin/sweep", map[string]any{"amount": 1}, asOwner(env))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "treasury_not_set", errorCode(t, rec))
}

func TestAdmin_EmergencyWithdrawRequiresPause(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/admin/emergency-withdraw",
		map[string]any{"amount": 100}, asOwner(env))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_paused", errorCode(t, rec))
}

func TestAdmin_RescuePooledAssetRejected(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/admin/rescue", map[string]any{
		"asset": "USDC", "to": uuid.New().String(), "amount": 100,
	}, asOwner(env))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "rescue_not_allowed", errorCode(t, rec))
}

func TestBulkDeposit_OK(t *testing.T) {
	env := newServerEnv(t)
	a, b := uuid.New(), uuid.New()
	env.gw.Fund(env.owner, 10_000)

	rec := env.do(t, http.MethodPost, "/v1/deposits/bulk", map[string]any{
		"accounts": []string{a.String(), b.String()},
		"amounts":  []int64{500, 700},
	}, asOwner(env))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(1_200), body["total_received"])
}

func TestBulkDeposit_RequiresAuthorization(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/deposits/bulk", map[string]any{
		"accounts": []string{uuid.New().String()},
		"amounts":  []int64{500},
	}, map[string]string{"X-Caller-ID": uuid.New().String()})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_authorized", errorCode(t, rec))
}

func TestAccountViews(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 2_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/accounts/"+account.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2_000), body["balance"])
	assert.Equal(t, float64(10), body["estimated_fee"])
	assert.Equal(t, float64(1_990), body["withdrawable"])

	rec = env.do(t, http.MethodGet, "/v1/accounts/"+account.String()+"/withdrawable", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(1_990), body["withdrawable"])
}

func TestAccountView_BadID(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/accounts/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPoolStatsAndSolvency(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 3_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/pool/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total_users"])
	assert.Equal(t, float64(3_000), body["total_deposits"])
	assert.Equal(t, float64(3_000), body["pool_balance"])

	rec = env.do(t, http.MethodGet, "/v1/pool/solvency", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["solvent"])
}

func TestIdempotency_DuplicateRequestID(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	reqID := uuid.New().String()
	headers := map[string]string{"X-Request-ID": reqID}

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, headers)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_request", errorCode(t, rec))
}

func TestHealthEndpoints(t *testing.T) {
	env := newServerEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWithdrawAll_EmptiesAccount(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 4_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/withdrawals/all", map[string]any{
		"account": account.String(),
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(4_000), body["gross"])
	assert.Equal(t, float64(0), body["new_balance"])

	// 4000 - 20 fee returned to the account
	assert.Equal(t, int64(6_000+3_980), env.gw.Balance(account))
}

func TestLockPeriod_BlocksEarlyWithdrawal(t *testing.T) {
	env := newServerEnv(t)
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPut, "/v1/admin/lock-period",
		map[string]any{"seconds": 3_600}, asOwner(env))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 1_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/withdrawals", map[string]any{
		"account": account.String(), "amount": 500,
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "withdrawal_locked", errorCode(t, rec))
}

func TestTreasuryAndSweepFlow(t *testing.T) {
	env := newServerEnv(t)
	treasury := uuid.New()
	account := uuid.New()
	env.gw.Fund(account, 10_000)

	rec := env.do(t, http.MethodPut, "/v1/admin/treasury",
		map[string]any{"treasury": treasury.String()}, asOwner(env))
	require.Equal(t, http.StatusOK, rec.Code)

	// Deposit then withdraw to accrue fees.
	rec = env.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account": account.String(), "amount": 2_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/v1/withdrawals", map[string]any{
		"account": account.String(), "amount": 2_000,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/sweep", map[string]any{"amount": 10}, asOwner(env))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["amount"])
	assert.Equal(t, float64(0), body["remaining_fees"])
	assert.Equal(t, int64(10), env.gw.Balance(treasury))
}

func TestRescueForeignAsset_OK(t *testing.T) {
	env := newServerEnv(t)
	to := uuid.New()

	rec := env.do(t, http.MethodPost, "/v1/admin/rescue", map[string]any{
		"asset": "WETH", "to": to.String(), "amount": 777,
	}, asOwner(env))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.gw.ForeignPushes, 1)
	push := env.gw.ForeignPushes[0]
	assert.Equal(t, "WETH", push.Asset)
	assert.Equal(t, to, push.To)
	assert.Equal(t, int64(777), push.Amount)
}
