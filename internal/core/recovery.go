package core

import (
	"PoolLedger/internal/access"
	"PoolLedger/internal/event"
	"PoolLedger/internal/ledger"
	"fmt"
	"time"
)

// SnapshotState holds the serializable in-memory state for warm restart.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence      int64
	StateHash     [32]byte
	Accounts      []ledger.AccountSnapshot
	Config        ledger.ConfigSnapshot
	TotalDeposits int64
	CollectedFees int64
	TotalUsers    int64
	Access        access.Sets
	RequestKeys   []string
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	accounts, cfg, deposits, fees, users := e.ledger.Snapshot()

	return &SnapshotState{
		Sequence:      e.sequence.Load() - 1, // Last processed sequence
		StateHash:     e.StateHash(),
		Accounts:      accounts,
		Config:        cfg,
		TotalDeposits: deposits,
		CollectedFees: fees,
		TotalUsers:    users,
		Access:        e.access.Snapshot(),
		RequestKeys:   e.idempotency.lru.GetAllKeys(),
	}
}

// RestoreFromSnapshot restores the engine's in-memory state from a snapshot.
// On warm restart: load the latest snapshot, then replay records after it.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	if err := e.ledger.Restore(snap.Accounts, snap.Config, snap.TotalDeposits, snap.CollectedFees, snap.TotalUsers); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	e.access.Restore(snap.Access)

	e.sequence.Store(snap.Sequence + 1) // Next sequence to assign

	e.hashMu.Lock()
	e.hasher.SetPrevHash(snap.StateHash)
	e.hashMu.Unlock()

	e.WarmLRU(snap.RequestKeys)
	return nil
}

// WarmLRU loads recent request keys into the LRU cache, avoiding cold-path
// DB lookups for recently processed requests.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// ReplayRecord re-applies a logged record's effects during warm restart.
// Records are facts: no checks, no gateway interactions — only the ledger
// and registry effects they describe, plus sequence and hash-chain tracking.
func (e *Engine) ReplayRecord(env *event.RecordEnvelope) error {
	rec, err := event.ParsePayload(env.Type, env.Payload)
	if err != nil {
		return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
	}

	switch r := rec.(type) {
	case *event.DepositRecord:
		e.ledger.Credit(r.Account, r.Received, env.Timestamp)

	case *event.WithdrawalRecord:
		if _, err := e.ledger.ApplyWithdrawal(r.Account, r.Gross, r.Fee); err != nil {
			return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
		}

	case *event.WithdrawAllRecord:
		if _, err := e.ledger.ApplyWithdrawal(r.Account, r.Gross, r.Fee); err != nil {
			return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
		}

	case *event.BulkDepositRecord:
		for _, entry := range r.Entries {
			e.ledger.Credit(entry.Account, entry.Received, env.Timestamp)
		}

	case *event.ConfigChangeRecord:
		switch r.Param {
		case "minimum_deposit":
			e.ledger.SetMinimumDeposit(r.New)
		case "withdrawal_fee_bps":
			e.ledger.SetWithdrawalFeeBps(r.New)
		case "lock_period_seconds":
			e.ledger.SetLockPeriod(time.Duration(r.New) * time.Second)
		case "paused":
			e.ledger.SetPaused(r.New == 1)
		default:
			return fmt.Errorf("replay sequence %d: unknown config param %q", env.Sequence, r.Param)
		}

	case *event.TreasuryChangeRecord:
		e.ledger.SetTreasury(r.New)

	case *event.AccessChangeRecord:
		switch r.Kind {
		case "operator":
			e.access.SetOperator(r.Account, r.Enabled)
		case "blacklist":
			e.access.SetBlacklisted(r.Account, r.Enabled)
		case "fee_exempt":
			e.access.SetFeeExempt(r.Account, r.Enabled)
		default:
			return fmt.Errorf("replay sequence %d: unknown access kind %q", env.Sequence, r.Kind)
		}

	case *event.FeeSweepRecord:
		if err := e.ledger.DeductFees(r.Amount); err != nil {
			return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
		}

	case *event.EmergencyWithdrawRecord, *event.RescueRecord:
		// Pool-external movements: no ledger effect to re-apply.

	default:
		return fmt.Errorf("replay sequence %d: unhandled record type %s", env.Sequence, env.Type)
	}

	e.sequence.Store(env.Sequence + 1)

	e.hashMu.Lock()
	e.hasher.SetPrevHash(env.StateHash)
	e.hashMu.Unlock()

	e.idempotency.MarkProcessed(env.Type.String(), env.RecordID.String())
	return nil
}
