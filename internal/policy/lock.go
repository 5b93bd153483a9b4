package policy

import "time"

// Withdrawable reports whether a withdrawal is permitted at `now` given the
// account's most recent deposit time. The boundary is inclusive: at exactly
// lastDeposit + lockPeriod the withdrawal is allowed.
//
// The lock is evaluated against the latest deposit, not account creation —
// every deposit (including bulk deposits credited on the account's behalf)
// resets the lock.
func Withdrawable(lastDeposit time.Time, lockPeriod time.Duration, now time.Time) bool {
	return !now.Before(lastDeposit.Add(lockPeriod))
}
