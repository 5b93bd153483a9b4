package core

import (
	"PoolLedger/internal/access"
	"PoolLedger/internal/event"
	"PoolLedger/internal/gateway"
	"PoolLedger/internal/ledger"
	"PoolLedger/internal/observability"
	"PoolLedger/internal/policy"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Engine applies every pool operation in checks → effects → interaction
// order. The transaction guard is the sole serializer for mutating handlers:
// a second call while one is in flight — including a gateway callback
// re-entering the engine — fails with ErrReentrantCall. View queries bypass
// the guard and read through the ledger's own lock.
type Engine struct {
	ledger      *ledger.Ledger
	access      *access.Registry
	validator   *ledger.InvariantValidator
	gw          gateway.Gateway
	guard       *TransactionGuard
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	poolAccount uuid.UUID
	assetCode   string
	clock       func() time.Time

	sequence atomic.Int64
	hashMu   sync.Mutex
	hasher   *StateHasher

	persistChan chan<- Output
	streamChan  chan<- Output
}

// Output is what the engine emits per applied operation: the envelope for
// the record log and the decoded record for stream consumers.
type Output struct {
	Envelope *event.RecordEnvelope
	Record   event.Record
}

func NewEngine(
	led *ledger.Ledger,
	reg *access.Registry,
	gw gateway.Gateway,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	poolAccount uuid.UUID,
	assetCode string,
	persistChan, streamChan chan<- Output,
) *Engine {
	return &Engine{
		ledger:      led,
		access:      reg,
		validator:   ledger.NewInvariantValidator(led),
		gw:          gw,
		guard:       NewTransactionGuard(),
		idempotency: NewIdempotencyChecker(1_000_000, dbChecker),
		hasher:      NewStateHasher(),
		metrics:     metrics,
		poolAccount: poolAccount,
		assetCode:   assetCode,
		clock:       time.Now,
		persistChan: persistChan,
		streamChan:  streamChan,
	}
}

// SetClock replaces the engine clock. Tests use this to pin time.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// === Deposits ===

type DepositResult struct {
	Account    uuid.UUID
	Requested  int64
	Received   int64
	NewBalance int64
	Sequence   int64
}

// Deposit pulls `amount` from the account through the gateway and credits
// what actually arrived. A delivery below the minimum deposit is pushed back
// in full and the call fails with no ledger effect.
func (e *Engine) Deposit(ctx context.Context, requestID, account uuid.UUID, amount int64) (res *DepositResult, err error) {
	start := time.Now()
	defer func() { e.observe("deposit", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeDeposit, requestID); err != nil {
		return nil, err
	}

	cfg := e.ledger.Config()
	switch {
	case cfg.Paused:
		return nil, ErrPaused
	case account == uuid.Nil:
		return nil, ErrZeroAccount
	case e.access.IsBlacklisted(account):
		return nil, ErrBlacklisted
	case amount <= 0:
		return nil, ErrAmountZero
	}

	received, err := e.gatewayPull(ctx, account, amount)
	if err != nil {
		return nil, fmt.Errorf("gateway pull: %w", err)
	}

	if received <= 0 || received < cfg.MinimumDeposit {
		// Compensating interaction: the pulled funds go back before the
		// call is rejected, leaving no ledger effect.
		if received > 0 {
			if pushErr := e.gatewayPush(ctx, account, received); pushErr != nil {
				return nil, fmt.Errorf("refund of below-minimum deposit: %w", pushErr)
			}
		}
		return nil, ErrAmountBelowMinimum
	}

	now := e.clock()
	newBalance := e.ledger.Credit(account, received, now)
	e.postCheckInvariants()

	rec := &event.DepositRecord{
		Account:    account,
		Requested:  amount,
		Received:   received,
		NewBalance: newBalance,
	}
	seq := e.emit(requestID, rec, now)

	return &DepositResult{
		Account:    account,
		Requested:  amount,
		Received:   received,
		NewBalance: newBalance,
		Sequence:   seq,
	}, nil
}

type BulkDepositResult struct {
	Count         int
	TotalReceived int64
	Sequence      int64
}

// BulkDeposit pulls one entry per account from the caller and credits all
// entries as a single atomic batch. Phase 1 pulls and validates every entry,
// pushing everything back to the caller on the first failure; phase 2 applies
// all credits under one ledger lock. There is no partial commit.
func (e *Engine) BulkDeposit(ctx context.Context, requestID, caller uuid.UUID, accounts []uuid.UUID, amounts []int64) (res *BulkDepositResult, err error) {
	start := time.Now()
	defer func() { e.observe("bulk_deposit", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeBulkDeposit, requestID); err != nil {
		return nil, err
	}

	cfg := e.ledger.Config()
	switch {
	case cfg.Paused:
		return nil, ErrPaused
	case !e.access.IsAuthorizedOrOwner(caller):
		return nil, ErrNotAuthorized
	case len(accounts) != len(amounts):
		return nil, ErrLengthMismatch
	case len(accounts) == 0:
		return nil, ErrAmountZero
	}

	for i := range accounts {
		switch {
		case accounts[i] == uuid.Nil:
			return nil, ErrZeroAccount
		case amounts[i] <= 0:
			return nil, ErrAmountZero
		case e.access.IsBlacklisted(accounts[i]):
			return nil, ErrBlacklisted
		}
	}

	// Phase 1: pull every entry from the caller. Any failure refunds all
	// funds pulled so far and fails the whole call.
	received := make([]int64, len(accounts))
	var pulled int64
	for i := range accounts {
		got, pullErr := e.gatewayPull(ctx, caller, amounts[i])
		if pullErr == nil && (got <= 0 || got < cfg.MinimumDeposit) {
			pulled += got
			pullErr = ErrAmountBelowMinimum
		}
		if pullErr != nil {
			if pulled > 0 {
				if pushErr := e.gatewayPush(ctx, caller, pulled); pushErr != nil {
					return nil, fmt.Errorf("refund after failed bulk entry %d: %w", i, pushErr)
				}
			}
			if pullErr == ErrAmountBelowMinimum {
				return nil, pullErr
			}
			return nil, fmt.Errorf("gateway pull for bulk entry %d: %w", i, pullErr)
		}
		received[i] = got
		pulled += got
	}

	// Phase 2: credit all entries as one effects block.
	now := e.clock()
	newBalances := e.ledger.CreditAll(accounts, received, now)
	e.postCheckInvariants()

	entries := make([]event.BulkEntry, len(accounts))
	for i := range accounts {
		entries[i] = event.BulkEntry{
			Account:    accounts[i],
			Requested:  amounts[i],
			Received:   received[i],
			NewBalance: newBalances[i],
		}
	}
	rec := &event.BulkDepositRecord{
		Funder:        caller,
		Count:         len(accounts),
		TotalReceived: pulled,
		Entries:       entries,
	}
	seq := e.emit(requestID, rec, now)

	return &BulkDepositResult{
		Count:         len(accounts),
		TotalReceived: pulled,
		Sequence:      seq,
	}, nil
}

// === Withdrawals ===

type WithdrawResult struct {
	Account    uuid.UUID
	Gross      int64
	Fee        int64
	Net        int64
	NewBalance int64
	Sequence   int64
}

// Withdraw debits `amount` from the account, retains the fee, and pushes the
// net through the gateway. A failed push rolls the effects back exactly, so
// the call is all-or-nothing.
func (e *Engine) Withdraw(ctx context.Context, requestID, account uuid.UUID, amount int64) (res *WithdrawResult, err error) {
	start := time.Now()
	defer func() { e.observe("withdraw", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeWithdrawal, requestID); err != nil {
		return nil, err
	}

	now := e.clock()
	fee, net, newBalance, err := e.withdrawHeld(ctx, account, amount, now)
	if err != nil {
		return nil, err
	}

	rec := &event.WithdrawalRecord{
		Account:    account,
		Gross:      amount,
		Fee:        fee,
		Net:        net,
		NewBalance: newBalance,
	}
	seq := e.emit(requestID, rec, now)

	return &WithdrawResult{
		Account:    account,
		Gross:      amount,
		Fee:        fee,
		Net:        net,
		NewBalance: newBalance,
		Sequence:   seq,
	}, nil
}

// WithdrawAll exits the account with its full balance.
func (e *Engine) WithdrawAll(ctx context.Context, requestID, account uuid.UUID) (res *WithdrawResult, err error) {
	start := time.Now()
	defer func() { e.observe("withdraw_all", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeWithdrawAll, requestID); err != nil {
		return nil, err
	}

	gross := e.ledger.Balance(account)
	if gross <= 0 {
		return nil, ErrInsufficientBalance
	}

	now := e.clock()
	fee, net, _, err := e.withdrawHeld(ctx, account, gross, now)
	if err != nil {
		return nil, err
	}

	rec := &event.WithdrawAllRecord{
		Account: account,
		Gross:   gross,
		Fee:     fee,
		Net:     net,
	}
	seq := e.emit(requestID, rec, now)

	return &WithdrawResult{
		Account:  account,
		Gross:    gross,
		Fee:      fee,
		Net:      net,
		Sequence: seq,
	}, nil
}

// WithdrawPartial withdraws floor(balance*percentage/100).
func (e *Engine) WithdrawPartial(ctx context.Context, requestID, account uuid.UUID, percentage int64) (res *WithdrawResult, err error) {
	start := time.Now()
	defer func() { e.observe("withdraw_partial", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeWithdrawal, requestID); err != nil {
		return nil, err
	}

	if percentage < 1 || percentage > 100 {
		return nil, ErrInvalidPercentage
	}

	gross := e.ledger.Balance(account) * percentage / 100
	if gross <= 0 {
		return nil, ErrAmountZero
	}

	now := e.clock()
	fee, net, newBalance, err := e.withdrawHeld(ctx, account, gross, now)
	if err != nil {
		return nil, err
	}

	rec := &event.WithdrawalRecord{
		Account:    account,
		Gross:      gross,
		Fee:        fee,
		Net:        net,
		NewBalance: newBalance,
	}
	seq := e.emit(requestID, rec, now)

	return &WithdrawResult{
		Account:    account,
		Gross:      gross,
		Fee:        fee,
		Net:        net,
		NewBalance: newBalance,
		Sequence:   seq,
	}, nil
}

// withdrawHeld runs the shared withdrawal pipeline. The caller holds the
// guard and has deduplicated the request.
func (e *Engine) withdrawHeld(ctx context.Context, account uuid.UUID, gross int64, now time.Time) (fee, net, newBalance int64, err error) {
	cfg := e.ledger.Config()
	switch {
	case cfg.Paused:
		return 0, 0, 0, ErrPaused
	case account == uuid.Nil:
		return 0, 0, 0, ErrZeroAccount
	case e.access.IsBlacklisted(account):
		return 0, 0, 0, ErrBlacklisted
	case gross <= 0:
		return 0, 0, 0, ErrAmountZero
	}

	if e.ledger.Balance(account) < gross {
		return 0, 0, 0, ErrInsufficientBalance
	}

	lastDeposit, ok := e.ledger.LastDepositTime(account)
	if !ok {
		return 0, 0, 0, ErrInsufficientBalance
	}
	if !policy.Withdrawable(lastDeposit, cfg.LockPeriod, now) {
		return 0, 0, 0, ErrWithdrawalLocked
	}

	if !e.access.IsFeeExempt(account) {
		fee = policy.ComputeFee(gross, cfg.WithdrawalFeeBps)
	}
	net = gross - fee

	// Solvency precheck: the pool must cover the payout plus every fee
	// claim, including the one this withdrawal adds.
	poolBalance, err := e.gatewayBalanceOf(ctx, e.poolAccount)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("gateway balance: %w", err)
	}
	_, fees, _ := e.ledger.Totals()
	if poolBalance < net+fees+fee {
		return 0, 0, 0, ErrNoPoolBalance
	}

	newBalance, err = e.ledger.ApplyWithdrawal(account, gross, fee)
	if err != nil {
		return 0, 0, 0, ErrInsufficientBalance
	}

	if err = e.gatewayPush(ctx, account, net); err != nil {
		e.ledger.RevertWithdrawal(account, gross, fee)
		return 0, 0, 0, fmt.Errorf("gateway push: %w", err)
	}

	e.postCheckInvariants()
	return fee, net, newBalance, nil
}

// === Owner operations ===

type SweepResult struct {
	Treasury      uuid.UUID
	Amount        int64
	RemainingFees int64
	Sequence      int64
}

// SweepCollectedFees pushes up to the collected fee total to the treasury.
func (e *Engine) SweepCollectedFees(ctx context.Context, requestID, caller uuid.UUID, amount int64) (res *SweepResult, err error) {
	start := time.Now()
	defer func() { e.observe("sweep_fees", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeFeeSweep, requestID); err != nil {
		return nil, err
	}

	cfg := e.ledger.Config()
	switch {
	case !e.access.IsOwner(caller):
		return nil, ErrNotAuthorized
	case cfg.Paused:
		return nil, ErrPaused
	case cfg.Treasury == uuid.Nil:
		return nil, ErrTreasuryNotSet
	case amount <= 0:
		return nil, ErrAmountZero
	}

	_, fees, _ := e.ledger.Totals()
	if amount > fees {
		return nil, ErrSweepExceedsFees
	}

	if err = e.ledger.DeductFees(amount); err != nil {
		return nil, ErrSweepExceedsFees
	}
	if err = e.gatewayPush(ctx, cfg.Treasury, amount); err != nil {
		e.ledger.RestoreFees(amount)
		return nil, fmt.Errorf("gateway push: %w", err)
	}
	e.postCheckInvariants()

	now := e.clock()
	rec := &event.FeeSweepRecord{
		Treasury:      cfg.Treasury,
		Amount:        amount,
		RemainingFees: fees - amount,
	}
	seq := e.emit(requestID, rec, now)

	return &SweepResult{
		Treasury:      cfg.Treasury,
		Amount:        amount,
		RemainingFees: fees - amount,
		Sequence:      seq,
	}, nil
}

type EmergencyWithdrawResult struct {
	Recipient     uuid.UUID
	Amount        int64
	PoolBalance   int64
	FeesProtected bool
	Sequence      int64
}

// EmergencyWithdraw drains pool funds to the owner while the pool is paused.
// Depositor claims are NOT adjusted — this is the one sanctioned break of the
// solvency invariant. With fee protection enabled the drain is capped at the
// pool balance minus collected fees.
func (e *Engine) EmergencyWithdraw(ctx context.Context, requestID, caller uuid.UUID, amount int64) (res *EmergencyWithdrawResult, err error) {
	start := time.Now()
	defer func() { e.observe("emergency_withdraw", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeEmergencyWithdraw, requestID); err != nil {
		return nil, err
	}

	cfg := e.ledger.Config()
	switch {
	case !e.access.IsOwner(caller):
		return nil, ErrNotAuthorized
	case !cfg.Paused:
		return nil, ErrNotPaused
	case amount <= 0:
		return nil, ErrAmountZero
	}

	poolBalance, err := e.gatewayBalanceOf(ctx, e.poolAccount)
	if err != nil {
		return nil, fmt.Errorf("gateway balance: %w", err)
	}

	limit := poolBalance
	if cfg.ProtectFeesOnDrain {
		_, fees, _ := e.ledger.Totals()
		limit = poolBalance - fees
	}
	if limit <= 0 {
		return nil, ErrNoPoolBalance
	}
	if amount > limit {
		amount = limit
	}

	if err = e.gatewayPush(ctx, caller, amount); err != nil {
		return nil, fmt.Errorf("gateway push: %w", err)
	}

	now := e.clock()
	rec := &event.EmergencyWithdrawRecord{
		Recipient:     caller,
		Amount:        amount,
		PoolBalance:   poolBalance,
		FeesProtected: cfg.ProtectFeesOnDrain,
	}
	seq := e.emit(requestID, rec, now)

	return &EmergencyWithdrawResult{
		Recipient:     caller,
		Amount:        amount,
		PoolBalance:   poolBalance,
		FeesProtected: cfg.ProtectFeesOnDrain,
		Sequence:      seq,
	}, nil
}

type RescueResult struct {
	Asset     string
	Recipient uuid.UUID
	Amount    int64
	Sequence  int64
}

// RescueForeignAsset pushes a stranded foreign asset out of the pool account.
// The pooled asset itself is never movable through this path.
func (e *Engine) RescueForeignAsset(ctx context.Context, requestID, caller uuid.UUID, asset string, to uuid.UUID, amount int64) (res *RescueResult, err error) {
	start := time.Now()
	defer func() { e.observe("rescue", start, err) }()

	if !e.guard.TryAcquire() {
		return nil, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeRescue, requestID); err != nil {
		return nil, err
	}

	cfg := e.ledger.Config()
	switch {
	case !e.access.IsOwner(caller):
		return nil, ErrNotAuthorized
	case cfg.Paused:
		return nil, ErrPaused
	case asset == "" || asset == e.assetCode:
		return nil, ErrRescueNotAllowed
	case to == uuid.Nil:
		return nil, ErrZeroAccount
	case amount <= 0:
		return nil, ErrAmountZero
	}

	if err = e.gatewayPushForeign(ctx, asset, to, amount); err != nil {
		return nil, fmt.Errorf("gateway push foreign: %w", err)
	}

	now := e.clock()
	rec := &event.RescueRecord{
		Asset:     asset,
		Recipient: to,
		Amount:    amount,
	}
	seq := e.emit(requestID, rec, now)

	return &RescueResult{
		Asset:     asset,
		Recipient: to,
		Amount:    amount,
		Sequence:  seq,
	}, nil
}

// === Admin setters (owner-only, immediate effect) ===

func (e *Engine) SetMinimumDeposit(requestID, caller uuid.UUID, value int64) (old int64, err error) {
	defer func() { e.observe("set_minimum_deposit", time.Now(), err) }()

	if !e.guard.TryAcquire() {
		return 0, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeConfigChange, requestID); err != nil {
		return 0, err
	}
	if !e.access.IsOwner(caller) {
		return 0, ErrNotAuthorized
	}
	if value < 0 {
		return 0, ErrAmountZero
	}

	old = e.ledger.SetMinimumDeposit(value)
	e.emit(requestID, &event.ConfigChangeRecord{Param: "minimum_deposit", Old: old, New: value}, e.clock())
	return old, nil
}

func (e *Engine) SetWithdrawalFee(requestID, caller uuid.UUID, feeBps int64) (old int64, err error) {
	defer func() { e.observe("set_fee", time.Now(), err) }()

	if !e.guard.TryAcquire() {
		return 0, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeConfigChange, requestID); err != nil {
		return 0, err
	}
	if !e.access.IsOwner(caller) {
		return 0, ErrNotAuthorized
	}
	if !policy.ValidFeeRate(feeBps) {
		return 0, ErrFeeAboveCap
	}

	old = e.ledger.SetWithdrawalFeeBps(feeBps)
	e.emit(requestID, &event.ConfigChangeRecord{Param: "withdrawal_fee_bps", Old: old, New: feeBps}, e.clock())
	return old, nil
}

func (e *Engine) SetLockPeriod(requestID, caller uuid.UUID, period time.Duration) (old time.Duration, err error) {
	defer func() { e.observe("set_lock_period", time.Now(), err) }()

	if !e.guard.TryAcquire() {
		return 0, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeConfigChange, requestID); err != nil {
		return 0, err
	}
	if !e.access.IsOwner(caller) {
		return 0, ErrNotAuthorized
	}
	if period < 0 {
		return 0, ErrAmountZero
	}

	old = e.ledger.SetLockPeriod(period)
	e.emit(requestID, &event.ConfigChangeRecord{
		Param: "lock_period_seconds",
		Old:   int64(old / time.Second),
		New:   int64(period / time.Second),
	}, e.clock())
	return old, nil
}

func (e *Engine) SetTreasury(requestID, caller, treasury uuid.UUID) (err error) {
	defer func() { e.observe("set_treasury", time.Now(), err) }()

	if !e.guard.TryAcquire() {
		return ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeTreasuryChange, requestID); err != nil {
		return err
	}
	if !e.access.IsOwner(caller) {
		return ErrNotAuthorized
	}
	if treasury == uuid.Nil {
		return ErrZeroAccount
	}

	old := e.ledger.SetTreasury(treasury)
	e.emit(requestID, &event.TreasuryChangeRecord{Old: old, New: treasury}, e.clock())
	return nil
}

func (e *Engine) SetPaused(requestID, caller uuid.UUID, paused bool) (old bool, err error) {
	defer func() { e.observe("set_paused", time.Now(), err) }()

	if !e.guard.TryAcquire() {
		return false, ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeConfigChange, requestID); err != nil {
		return false, err
	}
	if !e.access.IsOwner(caller) {
		return false, ErrNotAuthorized
	}

	old = e.ledger.SetPaused(paused)
	e.emit(requestID, &event.ConfigChangeRecord{
		Param: "paused",
		Old:   boolToInt64(old),
		New:   boolToInt64(paused),
	}, e.clock())
	return old, nil
}

func (e *Engine) SetOperator(requestID, caller, account uuid.UUID, enabled bool) error {
	return e.setAccess("operator", requestID, caller, account, enabled, e.access.SetOperator)
}

func (e *Engine) SetBlacklisted(requestID, caller, account uuid.UUID, enabled bool) error {
	return e.setAccess("blacklist", requestID, caller, account, enabled, e.access.SetBlacklisted)
}

func (e *Engine) SetFeeExempt(requestID, caller, account uuid.UUID, enabled bool) error {
	return e.setAccess("fee_exempt", requestID, caller, account, enabled, e.access.SetFeeExempt)
}

func (e *Engine) setAccess(kind string, requestID, caller, account uuid.UUID, enabled bool, set func(uuid.UUID, bool) bool) (err error) {
	defer func() { e.observe("set_"+kind, time.Now(), err) }()

	if !e.guard.TryAcquire() {
		return ErrReentrantCall
	}
	defer e.guard.Release()

	if err = e.checkDuplicate(event.RecordTypeAccessChange, requestID); err != nil {
		return err
	}
	if !e.access.IsOwner(caller) {
		return ErrNotAuthorized
	}
	if account == uuid.Nil {
		return ErrZeroAccount
	}

	was := set(account, enabled)
	e.emit(requestID, &event.AccessChangeRecord{
		Kind:       kind,
		Account:    account,
		Enabled:    enabled,
		WasEnabled: was,
	}, e.clock())
	return nil
}

// === Views (no guard — ledger read locks only) ===

type AccountInfo struct {
	Account         uuid.UUID
	Balance         int64
	LastDepositTime time.Time
	Locked          bool
	EstimatedFee    int64
	Withdrawable    int64
}

// AccountInfo reports the account's balance and what a full withdrawal would
// pay out right now. Lock status is reported alongside, not applied to the
// amount.
func (e *Engine) AccountInfo(id uuid.UUID) *AccountInfo {
	cfg := e.ledger.Config()
	balance := e.ledger.Balance(id)

	var fee int64
	if !e.access.IsFeeExempt(id) {
		fee = policy.ComputeFee(balance, cfg.WithdrawalFeeBps)
	}

	info := &AccountInfo{
		Account:      id,
		Balance:      balance,
		EstimatedFee: fee,
		Withdrawable: balance - fee,
	}
	if last, ok := e.ledger.LastDepositTime(id); ok {
		info.LastDepositTime = last
		info.Locked = !policy.Withdrawable(last, cfg.LockPeriod, e.clock())
	}
	return info
}

type PoolStats struct {
	TotalUsers     int64
	TotalDeposits  int64
	CollectedFees  int64
	PoolBalance    int64
	AverageBalance int64
}

// Stats aggregates the pool-wide view, including the custodian's balance.
func (e *Engine) Stats(ctx context.Context) (*PoolStats, error) {
	poolBalance, err := e.gatewayBalanceOf(ctx, e.poolAccount)
	if err != nil {
		return nil, fmt.Errorf("gateway balance: %w", err)
	}

	deposits, fees, users := e.ledger.Totals()
	stats := &PoolStats{
		TotalUsers:    users,
		TotalDeposits: deposits,
		CollectedFees: fees,
		PoolBalance:   poolBalance,
	}
	if users > 0 {
		stats.AverageBalance = deposits / users
	}
	return stats, nil
}

// PoolAvailable reports the pool balance net of fee claims, floored at zero.
func (e *Engine) PoolAvailable(ctx context.Context) (int64, error) {
	poolBalance, err := e.gatewayBalanceOf(ctx, e.poolAccount)
	if err != nil {
		return 0, fmt.Errorf("gateway balance: %w", err)
	}
	_, fees, _ := e.ledger.Totals()
	available := poolBalance - fees
	if available < 0 {
		available = 0
	}
	return available, nil
}

// CheckSolvency verifies the pool holds at least every depositor and fee
// claim.
func (e *Engine) CheckSolvency(ctx context.Context) error {
	poolBalance, err := e.gatewayBalanceOf(ctx, e.poolAccount)
	if err != nil {
		return fmt.Errorf("gateway balance: %w", err)
	}
	return e.validator.ValidateSolvency(poolBalance)
}

// Sequence returns the next sequence the engine will assign.
func (e *Engine) Sequence() int64 {
	return e.sequence.Load()
}

// StateHash returns the current state-hash chain tip.
func (e *Engine) StateHash() [32]byte {
	e.hashMu.Lock()
	defer e.hashMu.Unlock()
	return e.hasher.GetPrevHash()
}

// === Emission pipeline ===

func (e *Engine) emit(requestID uuid.UUID, rec event.Record, now time.Time) int64 {
	payload, err := event.Marshal(rec)
	if err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}

	recordID := requestID
	if recordID == uuid.Nil {
		recordID = uuid.New()
	}

	seq := e.sequence.Load()
	digest := e.computeStateDigest(rec.AccountID())

	e.hashMu.Lock()
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(seq, digest)
	e.hashMu.Unlock()

	envelope := &event.RecordEnvelope{
		Sequence:  seq,
		RecordID:  recordID,
		Type:      rec.RecordType(),
		Account:   rec.AccountID(),
		Timestamp: now,
		Payload:   payload,
		StateHash: stateHash,
		PrevHash:  prevHash,
	}
	e.sequence.Store(seq + 1)

	output := Output{Envelope: envelope, Record: rec}

	// Persistence: blocking send — the engine stalls until the persistence
	// worker drains. This guarantees no record is lost.
	e.persistChan <- output

	// Streaming: non-blocking send — drop on full. Stream consumers can
	// catch up from the record log.
	select {
	case e.streamChan <- output:
	default:
		if e.metrics != nil {
			e.metrics.StreamDropped.Inc()
		}
	}

	if requestID != uuid.Nil {
		e.idempotency.MarkProcessed(rec.RecordType().String(), requestID.String())
	}

	if e.metrics != nil {
		deposits, fees, users := e.ledger.Totals()
		e.metrics.EngineSequence.Set(float64(seq + 1))
		e.metrics.PoolTotalDeposits.Set(float64(deposits))
		e.metrics.PoolCollectedFees.Set(float64(fees))
		e.metrics.PoolTotalUsers.Set(float64(users))
	}

	return seq
}

// computeStateDigest builds the canonical bytes hashed into the chain: the
// affected account's id and balance (when there is one) followed by the pool
// totals.
func (e *Engine) computeStateDigest(account *uuid.UUID) []byte {
	digest := make([]byte, 0, 64)

	if account != nil {
		digest = append(digest, account[:]...)
		digest = appendInt64LE(digest, e.ledger.Balance(*account))
	}

	deposits, fees, users := e.ledger.Totals()
	digest = appendInt64LE(digest, deposits)
	digest = appendInt64LE(digest, fees)
	digest = appendInt64LE(digest, users)
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (e *Engine) checkDuplicate(op event.RecordType, requestID uuid.UUID) error {
	if requestID == uuid.Nil {
		return nil
	}
	if e.idempotency.IsDuplicate(op.String(), requestID.String()) {
		return ErrDuplicateRequest
	}
	return nil
}

func (e *Engine) postCheckInvariants() {
	if err := e.validator.ValidateConservation(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
	if err := e.validator.ValidateNonNegativeTotals(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil {
		e.metrics.OpsRejected.WithLabelValues(op, ErrorCode(err)).Inc()
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// === Gateway wrappers (instrumented) ===

func (e *Engine) gatewayPull(ctx context.Context, from uuid.UUID, requested int64) (int64, error) {
	start := time.Now()
	received, err := e.gw.Pull(ctx, from, requested)
	e.observeGateway("pull", start, err)
	return received, err
}

func (e *Engine) gatewayPush(ctx context.Context, to uuid.UUID, amount int64) error {
	start := time.Now()
	err := e.gw.Push(ctx, to, amount)
	e.observeGateway("push", start, err)
	return err
}

func (e *Engine) gatewayPushForeign(ctx context.Context, asset string, to uuid.UUID, amount int64) error {
	start := time.Now()
	err := e.gw.PushForeign(ctx, asset, to, amount)
	e.observeGateway("push_foreign", start, err)
	return err
}

func (e *Engine) gatewayBalanceOf(ctx context.Context, holder uuid.UUID) (int64, error) {
	start := time.Now()
	balance, err := e.gw.BalanceOf(ctx, holder)
	e.observeGateway("balance_of", start, err)
	return balance, err
}

func (e *Engine) observeGateway(call string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.GatewayCallDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.GatewayErrors.WithLabelValues(call).Inc()
	}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
