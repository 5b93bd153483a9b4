package policy

// Basis-point fee arithmetic for withdrawals.
// The rate itself is validated at configuration time (SetWithdrawalFee);
// ComputeFee never fails.

const (
	// MaxFeeBasisPoints is the hard cap on the withdrawal fee rate (10%).
	MaxFeeBasisPoints int64 = 1000

	// BasisPointDenominator converts basis points to a fraction.
	BasisPointDenominator int64 = 10_000
)

// ComputeFee returns floor(amount * feeBps / 10000).
// For any amount >= 0 and feeBps within the cap, 0 <= fee <= amount.
// Split into whole and remainder parts so the product cannot overflow
// int64 for any representable balance.
func ComputeFee(amount, feeBps int64) int64 {
	whole := amount / BasisPointDenominator
	rem := amount % BasisPointDenominator
	return whole*feeBps + rem*feeBps/BasisPointDenominator
}

// ValidFeeRate reports whether a fee rate is within [0, MaxFeeBasisPoints].
func ValidFeeRate(feeBps int64) bool {
	return feeBps >= 0 && feeBps <= MaxFeeBasisPoints
}
