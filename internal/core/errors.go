package core

import "errors"

// Validation failures
var (
	ErrAmountZero        = errors.New("amount must be positive")
	ErrZeroAccount       = errors.New("account must not be the zero id")
	ErrLengthMismatch    = errors.New("accounts and amounts length mismatch")
	ErrFeeAboveCap       = errors.New("fee rate above cap")
	ErrInvalidPercentage = errors.New("percentage must be between 1 and 100")
)

// State preconditions
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAmountBelowMinimum  = errors.New("received amount below minimum deposit")
	ErrWithdrawalLocked    = errors.New("withdrawal locked until lock period elapses")
	ErrBlacklisted         = errors.New("account is blacklisted")
	ErrNotAuthorized       = errors.New("caller not authorized")
	ErrPaused              = errors.New("pool is paused")
	ErrNotPaused           = errors.New("pool is not paused")
)

// Pool-level failures
var (
	ErrNoPoolBalance    = errors.New("pool balance insufficient")
	ErrSweepExceedsFees = errors.New("sweep amount exceeds collected fees")
	ErrRescueNotAllowed = errors.New("pooled asset cannot be rescued")
	ErrTreasuryNotSet   = errors.New("treasury not set")
)

// Concurrency / dedup
var (
	ErrReentrantCall    = errors.New("reentrant call rejected")
	ErrDuplicateRequest = errors.New("duplicate request")
)

// ErrorCode returns the stable machine-readable code for a handler error.
// The HTTP layer and the rejection metrics both key on these.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAmountZero):
		return "amount_zero"
	case errors.Is(err, ErrZeroAccount):
		return "zero_account"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrFeeAboveCap):
		return "fee_above_cap"
	case errors.Is(err, ErrInvalidPercentage):
		return "invalid_percentage"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrAmountBelowMinimum):
		return "amount_below_minimum"
	case errors.Is(err, ErrWithdrawalLocked):
		return "withdrawal_locked"
	case errors.Is(err, ErrBlacklisted):
		return "blacklisted"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrNotPaused):
		return "not_paused"
	case errors.Is(err, ErrNoPoolBalance):
		return "no_pool_balance"
	case errors.Is(err, ErrSweepExceedsFees):
		return "sweep_exceeds_fees"
	case errors.Is(err, ErrRescueNotAllowed):
		return "rescue_not_allowed"
	case errors.Is(err, ErrTreasuryNotSet):
		return "treasury_not_set"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant_call"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	default:
		return "internal"
	}
}
