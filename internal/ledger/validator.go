package ledger

import "fmt"

// InvariantValidator checks ledger invariants.
type InvariantValidator struct {
	ledger *Ledger
}

func NewInvariantValidator(l *Ledger) *InvariantValidator {
	return &InvariantValidator{ledger: l}
}

// ValidateConservation verifies totalDeposits == Σ balance(account).
func (v *InvariantValidator) ValidateConservation() error {
	v.ledger.mu.RLock()
	defer v.ledger.mu.RUnlock()

	var sum int64
	for _, acct := range v.ledger.accounts {
		if acct.Balance < 0 {
			return fmt.Errorf("account %s has negative balance: %d", acct.ID, acct.Balance)
		}
		sum += acct.Balance
	}

	if sum != v.ledger.totalDeposits {
		return fmt.Errorf("conservation violated: sum of balances %d != totalDeposits %d",
			sum, v.ledger.totalDeposits)
	}
	return nil
}

// ValidateNonNegativeTotals verifies totalDeposits and collectedFees are >= 0.
func (v *InvariantValidator) ValidateNonNegativeTotals() error {
	v.ledger.mu.RLock()
	defer v.ledger.mu.RUnlock()

	if v.ledger.totalDeposits < 0 {
		return fmt.Errorf("totalDeposits is negative: %d", v.ledger.totalDeposits)
	}
	if v.ledger.collectedFees < 0 {
		return fmt.Errorf("collectedFees is negative: %d", v.ledger.collectedFees)
	}
	return nil
}

// ValidateSolvency verifies poolBalance >= totalDeposits + collectedFees.
// The pool balance is read from the gateway by the caller — the validator
// stays free of I/O.
func (v *InvariantValidator) ValidateSolvency(poolBalance int64) error {
	v.ledger.mu.RLock()
	defer v.ledger.mu.RUnlock()

	required := v.ledger.totalDeposits + v.ledger.collectedFees
	if poolBalance < required {
		return fmt.Errorf("solvency violated: pool holds %d, claims total %d", poolBalance, required)
	}
	return nil
}
