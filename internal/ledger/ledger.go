package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger is the central mutable store: per-account balances and timestamps,
// pool-wide totals, and pool configuration. The engine serializes all writers
// through the transaction guard; the internal RWMutex exists so that view
// queries can read concurrently without observing a torn update — every
// effects block is applied (and, on interaction failure, reverted) under one
// write lock.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account

	totalDeposits int64
	collectedFees int64
	totalUsers    int64

	cfg Config
}

func New(cfg Config) *Ledger {
	return &Ledger{
		accounts: make(map[uuid.UUID]*Account),
		cfg:      cfg,
	}
}

// === Balance effects ===

// Credit adds `amount` to the account's balance and totalDeposits, creating
// the record (and incrementing totalUsers) on the account's first deposit.
// lastDepositTime is always refreshed — deposits reset the withdrawal lock.
func (l *Ledger) Credit(id uuid.UUID, amount int64, now time.Time) (newBalance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditLocked(id, amount, now)
}

// CreditAll applies a batch of credits as one effects block, so a reader can
// never observe a partially applied batch.
func (l *Ledger) CreditAll(ids []uuid.UUID, amounts []int64, now time.Time) (newBalances []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	newBalances = make([]int64, len(ids))
	for i := range ids {
		newBalances[i] = l.creditLocked(ids[i], amounts[i], now)
	}
	return newBalances
}

func (l *Ledger) creditLocked(id uuid.UUID, amount int64, now time.Time) int64 {
	acct, ok := l.accounts[id]
	if !ok {
		acct = &Account{ID: id}
		l.accounts[id] = acct
		l.totalUsers++
	}

	acct.Balance += amount
	acct.LastDepositTime = now
	l.totalDeposits += amount
	return acct.Balance
}

// ApplyWithdrawal decrements the account balance and totalDeposits by the
// gross amount and moves the fee into collectedFees. The preconditions are
// re-checked under the lock; the engine validates them first.
func (l *Ledger) ApplyWithdrawal(id uuid.UUID, gross, fee int64) (newBalance int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[id]
	if !ok || acct.Balance < gross {
		return 0, fmt.Errorf("account %s balance below withdrawal amount %d", id, gross)
	}

	acct.Balance -= gross
	l.totalDeposits -= gross
	l.collectedFees += fee
	return acct.Balance, nil
}

// RevertWithdrawal undoes ApplyWithdrawal after a failed gateway push,
// restoring the account balance, totalDeposits, and collectedFees exactly.
// lastDepositTime is untouched by withdrawals, so nothing else needs saving.
func (l *Ledger) RevertWithdrawal(id uuid.UUID, gross, fee int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acct, ok := l.accounts[id]; ok {
		acct.Balance += gross
	}
	l.totalDeposits += gross
	l.collectedFees -= fee
}

// DeductFees removes a swept amount from collectedFees.
func (l *Ledger) DeductFees(amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount > l.collectedFees {
		return fmt.Errorf("sweep amount %d exceeds collected fees %d", amount, l.collectedFees)
	}
	l.collectedFees -= amount
	return nil
}

// RestoreFees re-adds a swept amount after a failed treasury push.
func (l *Ledger) RestoreFees(amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collectedFees += amount
}

// === Views ===

// Balance returns the account's current balance (zero for unknown accounts).
func (l *Ledger) Balance(id uuid.UUID) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if acct, ok := l.accounts[id]; ok {
		return acct.Balance
	}
	return 0
}

// LastDepositTime returns the account's most recent deposit time and whether
// the account exists.
func (l *Ledger) LastDepositTime(id uuid.UUID) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if acct, ok := l.accounts[id]; ok {
		return acct.LastDepositTime, true
	}
	return time.Time{}, false
}

// Totals returns (totalDeposits, collectedFees, totalUsers) as one
// consistent read.
func (l *Ledger) Totals() (deposits, fees, users int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalDeposits, l.collectedFees, l.totalUsers
}

// Config returns a copy of the current pool configuration.
func (l *Ledger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// === Config setters (validation happens in the engine) ===

func (l *Ledger) SetMinimumDeposit(v int64) (old int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, l.cfg.MinimumDeposit = l.cfg.MinimumDeposit, v
	return old
}

func (l *Ledger) SetWithdrawalFeeBps(v int64) (old int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, l.cfg.WithdrawalFeeBps = l.cfg.WithdrawalFeeBps, v
	return old
}

func (l *Ledger) SetLockPeriod(v time.Duration) (old time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, l.cfg.LockPeriod = l.cfg.LockPeriod, v
	return old
}

func (l *Ledger) SetTreasury(v uuid.UUID) (old uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, l.cfg.Treasury = l.cfg.Treasury, v
	return old
}

func (l *Ledger) SetPaused(v bool) (old bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, l.cfg.Paused = l.cfg.Paused, v
	return old
}

// === Snapshot / restore ===

// Snapshot returns serializable copies of all accounts, totals, and config.
func (l *Ledger) Snapshot() ([]AccountSnapshot, ConfigSnapshot, int64, int64, int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts := make([]AccountSnapshot, 0, len(l.accounts))
	for _, acct := range l.accounts {
		accounts = append(accounts, AccountSnapshot{
			ID:              acct.ID.String(),
			Balance:         acct.Balance,
			LastDepositUnix: acct.LastDepositTime.Unix(),
		})
	}

	cfg := ConfigSnapshot{
		MinimumDeposit:     l.cfg.MinimumDeposit,
		WithdrawalFeeBps:   l.cfg.WithdrawalFeeBps,
		LockPeriodSeconds:  int64(l.cfg.LockPeriod / time.Second),
		Treasury:           l.cfg.Treasury.String(),
		Paused:             l.cfg.Paused,
		ProtectFeesOnDrain: l.cfg.ProtectFeesOnDrain,
	}

	return accounts, cfg, l.totalDeposits, l.collectedFees, l.totalUsers
}

// Restore replaces the ledger's state from snapshot data.
func (l *Ledger) Restore(accounts []AccountSnapshot, cfg ConfigSnapshot, deposits, fees, users int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[uuid.UUID]*Account, len(accounts))
	for _, snap := range accounts {
		id, err := uuid.Parse(snap.ID)
		if err != nil {
			return fmt.Errorf("parse account id %q: %w", snap.ID, err)
		}
		l.accounts[id] = &Account{
			ID:              id,
			Balance:         snap.Balance,
			LastDepositTime: time.Unix(snap.LastDepositUnix, 0).UTC(),
		}
	}

	treasury, err := uuid.Parse(cfg.Treasury)
	if err != nil {
		return fmt.Errorf("parse treasury %q: %w", cfg.Treasury, err)
	}

	l.cfg = Config{
		MinimumDeposit:     cfg.MinimumDeposit,
		WithdrawalFeeBps:   cfg.WithdrawalFeeBps,
		LockPeriod:         time.Duration(cfg.LockPeriodSeconds) * time.Second,
		Treasury:           treasury,
		Paused:             cfg.Paused,
		ProtectFeesOnDrain: cfg.ProtectFeesOnDrain,
	}

	l.totalDeposits = deposits
	l.collectedFees = fees
	l.totalUsers = users
	return nil
}
