package ledger_test

import (
	"PoolLedger/internal/ledger"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newLedger() *ledger.Ledger {
	return ledger.New(ledger.Config{
		MinimumDeposit:   100,
		WithdrawalFeeBps: 50,
	})
}

func TestCredit_CreatesAccountOnce(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	now := time.Unix(1_000_000, 0)

	newBal := l.Credit(id, 500, now)
	if newBal != 500 {
		t.Errorf("balance: got %d, want 500", newBal)
	}

	_, _, users := l.Totals()
	if users != 1 {
		t.Errorf("totalUsers: got %d, want 1", users)
	}

	// Second deposit must not increment totalUsers
	l.Credit(id, 300, now.Add(time.Minute))
	_, _, users = l.Totals()
	if users != 1 {
		t.Errorf("totalUsers after second deposit: got %d, want 1", users)
	}
}

func TestCredit_RefreshesLastDepositTime(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	first := time.Unix(1_000_000, 0)
	second := first.Add(time.Hour)

	l.Credit(id, 500, first)
	l.Credit(id, 500, second)

	got, ok := l.LastDepositTime(id)
	if !ok {
		t.Fatal("account should exist")
	}
	if !got.Equal(second) {
		t.Errorf("lastDepositTime: got %v, want %v", got, second)
	}
}

func TestApplyWithdrawal_MovesFeeToCollected(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	l.Credit(id, 1000, time.Unix(1_000_000, 0))

	newBal, err := l.ApplyWithdrawal(id, 1000, 5)
	if err != nil {
		t.Fatalf("ApplyWithdrawal: %v", err)
	}
	if newBal != 0 {
		t.Errorf("balance: got %d, want 0", newBal)
	}

	deposits, fees, _ := l.Totals()
	if deposits != 0 {
		t.Errorf("totalDeposits: got %d, want 0", deposits)
	}
	if fees != 5 {
		t.Errorf("collectedFees: got %d, want 5", fees)
	}
}

func TestApplyWithdrawal_RejectsOverdraw(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	l.Credit(id, 100, time.Unix(1_000_000, 0))

	if _, err := l.ApplyWithdrawal(id, 101, 0); err == nil {
		t.Error("expected error for withdrawal above balance")
	}
}

func TestRevertWithdrawal_RestoresExactly(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	l.Credit(id, 1000, time.Unix(1_000_000, 0))

	if _, err := l.ApplyWithdrawal(id, 400, 2); err != nil {
		t.Fatalf("ApplyWithdrawal: %v", err)
	}
	l.RevertWithdrawal(id, 400, 2)

	if bal := l.Balance(id); bal != 1000 {
		t.Errorf("balance: got %d, want 1000", bal)
	}
	deposits, fees, _ := l.Totals()
	if deposits != 1000 || fees != 0 {
		t.Errorf("totals: got deposits=%d fees=%d, want 1000/0", deposits, fees)
	}
}

func TestDeductFees_RejectsOversweep(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	l.Credit(id, 1000, time.Unix(1_000_000, 0))
	l.ApplyWithdrawal(id, 1000, 5)

	if err := l.DeductFees(6); err == nil {
		t.Error("expected error for sweep above collected fees")
	}
	if err := l.DeductFees(5); err != nil {
		t.Errorf("sweep of exactly collected fees should pass: %v", err)
	}
}

func TestConservation_HoldsAcrossOperations(t *testing.T) {
	l := newLedger()
	v := ledger.NewInvariantValidator(l)
	now := time.Unix(1_000_000, 0)

	a, b := uuid.New(), uuid.New()
	l.Credit(a, 700, now)
	l.Credit(b, 300, now)
	l.ApplyWithdrawal(a, 200, 1)
	l.Credit(a, 50, now.Add(time.Second))

	if err := v.ValidateConservation(); err != nil {
		t.Errorf("conservation should hold: %v", err)
	}
	if err := v.ValidateNonNegativeTotals(); err != nil {
		t.Errorf("totals should be non-negative: %v", err)
	}
}

func TestValidateSolvency(t *testing.T) {
	l := newLedger()
	v := ledger.NewInvariantValidator(l)
	l.Credit(uuid.New(), 1000, time.Unix(1_000_000, 0))

	if err := v.ValidateSolvency(1000); err != nil {
		t.Errorf("pool holding exactly the claims should be solvent: %v", err)
	}
	if err := v.ValidateSolvency(999); err == nil {
		t.Error("pool holding less than claims should be insolvent")
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	l := newLedger()
	id := uuid.New()
	now := time.Unix(1_000_000, 0).UTC()
	l.Credit(id, 1000, now)
	l.ApplyWithdrawal(id, 200, 1)
	l.SetTreasury(uuid.New())
	l.SetPaused(true)

	accounts, cfg, deposits, fees, users := l.Snapshot()

	restored := ledger.New(ledger.Config{})
	if err := restored.Restore(accounts, cfg, deposits, fees, users); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.Balance(id) != 800 {
		t.Errorf("balance: got %d, want 800", restored.Balance(id))
	}
	gotDeposits, gotFees, gotUsers := restored.Totals()
	if gotDeposits != 800 || gotFees != 1 || gotUsers != 1 {
		t.Errorf("totals: got %d/%d/%d, want 800/1/1", gotDeposits, gotFees, gotUsers)
	}
	if !restored.Config().Paused {
		t.Error("paused flag lost in round trip")
	}
	ts, ok := restored.LastDepositTime(id)
	if !ok || !ts.Equal(now) {
		t.Errorf("lastDepositTime: got %v, want %v", ts, now)
	}
}
