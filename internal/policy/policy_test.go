package policy_test

import (
	"PoolLedger/internal/policy"
	"testing"
	"time"
)

func TestComputeFee_Scenario(t *testing.T) {
	// 0.5% of 1000 = 5
	fee := policy.ComputeFee(1000, 50)
	if fee != 5 {
		t.Errorf("got %d, want 5", fee)
	}
}

func TestComputeFee_FloorsDown(t *testing.T) {
	// 0.5% of 199 = 0.995 -> 0
	if fee := policy.ComputeFee(199, 50); fee != 0 {
		t.Errorf("got %d, want 0", fee)
	}
}

func TestComputeFee_Bound(t *testing.T) {
	amounts := []int64{0, 1, 99, 1000, 123_456_789}
	rates := []int64{0, 1, 50, 500, policy.MaxFeeBasisPoints}

	for _, amount := range amounts {
		for _, bps := range rates {
			fee := policy.ComputeFee(amount, bps)
			if fee < 0 || fee > amount {
				t.Errorf("fee out of bound: amount=%d bps=%d fee=%d", amount, bps, fee)
			}
		}
	}
}

func TestComputeFee_LargeAmountNoOverflow(t *testing.T) {
	// amount * feeBps would exceed int64; the split computation must not.
	const amount = int64(1) << 60

	fee := policy.ComputeFee(amount, policy.MaxFeeBasisPoints)
	want := amount / 10 // 1000 bps
	if fee != want {
		t.Errorf("got %d, want %d", fee, want)
	}
	if fee < 0 || fee > amount {
		t.Errorf("fee out of bound: %d", fee)
	}
}

func TestComputeFee_MaxRateIsTenPercent(t *testing.T) {
	if fee := policy.ComputeFee(10_000, policy.MaxFeeBasisPoints); fee != 1_000 {
		t.Errorf("got %d, want 1000", fee)
	}
}

func TestValidFeeRate(t *testing.T) {
	if !policy.ValidFeeRate(0) || !policy.ValidFeeRate(policy.MaxFeeBasisPoints) {
		t.Error("0 and cap should be valid")
	}
	if policy.ValidFeeRate(policy.MaxFeeBasisPoints + 1) {
		t.Error("above cap should be invalid")
	}
	if policy.ValidFeeRate(-1) {
		t.Error("negative rate should be invalid")
	}
}

func TestWithdrawable_BeforeLockExpires(t *testing.T) {
	deposit := time.Unix(1_000_000, 0)
	now := deposit.Add(59 * time.Second)

	if policy.Withdrawable(deposit, time.Minute, now) {
		t.Error("withdrawal should be locked before the period elapses")
	}
}

func TestWithdrawable_BoundaryInclusive(t *testing.T) {
	deposit := time.Unix(1_000_000, 0)
	now := deposit.Add(time.Minute)

	if !policy.Withdrawable(deposit, time.Minute, now) {
		t.Error("withdrawal should be permitted at exactly lastDeposit + lockPeriod")
	}
}

func TestWithdrawable_ZeroLockPeriod(t *testing.T) {
	deposit := time.Unix(1_000_000, 0)

	if !policy.Withdrawable(deposit, 0, deposit) {
		t.Error("zero lock period should permit immediate withdrawal")
	}
}
