package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"PoolLedger/internal/access"
	"PoolLedger/internal/core"
	"PoolLedger/internal/ledger"

	"github.com/google/uuid"
)

// SnapshotManager creates and loads pool-state snapshots for warm restart.
// On startup: load the latest snapshot, then replay records from
// snapshot.sequence+1.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the JSON-encoded full pool state at a point in time.
type SnapshotData struct {
	Sequence      int64                    `json:"sequence"`
	StateHash     []byte                   `json:"state_hash"`
	Accounts      []ledger.AccountSnapshot `json:"accounts"`
	Config        ledger.ConfigSnapshot    `json:"config"`
	TotalDeposits int64                    `json:"total_deposits"`
	CollectedFees int64                    `json:"collected_fees"`
	TotalUsers    int64                    `json:"total_users"`
	Access        access.Sets              `json:"access"`
	RequestKeys   []string                 `json:"request_keys"`
	CreatedAt     time.Time                `json:"created_at"`
}

// FromEngineState converts the engine's typed snapshot into storable form.
func FromEngineState(s *core.SnapshotState, createdAt time.Time) *SnapshotData {
	return &SnapshotData{
		Sequence:      s.Sequence,
		StateHash:     s.StateHash[:],
		Accounts:      s.Accounts,
		Config:        s.Config,
		TotalDeposits: s.TotalDeposits,
		CollectedFees: s.CollectedFees,
		TotalUsers:    s.TotalUsers,
		Access:        s.Access,
		RequestKeys:   s.RequestKeys,
		CreatedAt:     createdAt,
	}
}

// ToEngineState converts stored snapshot data back into the engine's form.
func (snap *SnapshotData) ToEngineState() (*core.SnapshotState, error) {
	if len(snap.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot %d: malformed state hash", snap.Sequence)
	}

	state := &core.SnapshotState{
		Sequence:      snap.Sequence,
		Accounts:      snap.Accounts,
		Config:        snap.Config,
		TotalDeposits: snap.TotalDeposits,
		CollectedFees: snap.CollectedFees,
		TotalUsers:    snap.TotalUsers,
		Access:        snap.Access,
		RequestKeys:   snap.RequestKeys,
	}
	copy(state.StateHash[:], snap.StateHash)
	return state, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and on graceful shutdown.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO record_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. Returns
// (nil, nil) on a cold start with no snapshot.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM record_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE record_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadRecordsFrom loads records from a given sequence for replay.
func (sm *SnapshotManager) LoadRecordsFrom(ctx context.Context, fromSequence int64, limit int) ([]RecordRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, record_type, request_key, account, payload,
		       state_hash, prev_hash, timestamp
		FROM record_log.records
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(
			&r.Sequence, &r.RecordType, &r.RequestKey, &r.Account,
			&r.Payload, &r.StateHash, &r.PrevHash, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// GetLatestSequence returns the highest sequence in the record log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM record_log.records
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty record log
	}
	return seq.Int64, nil
}
