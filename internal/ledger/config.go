package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Config is the pool-wide policy. All fields take effect immediately when
// changed; there is no versioning or rollback.
type Config struct {
	// MinimumDeposit is compared against the amount actually received from
	// the gateway, not the amount requested.
	MinimumDeposit int64

	// WithdrawalFeeBps is the withdrawal fee in basis points. Validated
	// against the policy cap at configuration time.
	WithdrawalFeeBps int64

	// LockPeriod is the time that must elapse after an account's most
	// recent deposit before it may withdraw.
	LockPeriod time.Duration

	// Treasury receives swept fees. uuid.Nil means unset; sweeping
	// requires it to be set.
	Treasury uuid.UUID

	// Paused blocks every funds-moving handler except emergencyWithdraw,
	// which requires it.
	Paused bool

	// ProtectFeesOnDrain caps emergencyWithdraw at the pool balance minus
	// collected fees, preserving the treasury's share even during a drain.
	ProtectFeesOnDrain bool
}

// ConfigSnapshot is the serializable form of the pool config.
type ConfigSnapshot struct {
	MinimumDeposit     int64  `json:"minimum_deposit"`
	WithdrawalFeeBps   int64  `json:"withdrawal_fee_bps"`
	LockPeriodSeconds  int64  `json:"lock_period_seconds"`
	Treasury           string `json:"treasury"`
	Paused             bool   `json:"paused"`
	ProtectFeesOnDrain bool   `json:"protect_fees_on_drain"`
}
