package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"PoolLedger/internal/core"
	"PoolLedger/internal/event"
	"time"

	"github.com/google/uuid"
)

// RecordLogWriter writes record envelopes to Postgres using multi-row INSERT.
// ON CONFLICT (sequence) DO NOTHING keeps retried batches idempotent.
type RecordLogWriter struct {
	db *sql.DB
}

// RecordRow represents a row in record_log.records
type RecordRow struct {
	Sequence   int64
	RecordType string
	RequestKey string
	Account    *string
	Payload    []byte
	StateHash  []byte
	PrevHash   []byte
	Timestamp  time.Time
}

// RowFromOutput converts an engine output into its storable row.
func RowFromOutput(out core.Output) RecordRow {
	env := out.Envelope

	var account *string
	if env.Account != nil {
		s := env.Account.String()
		account = &s
	}

	return RecordRow{
		Sequence:   env.Sequence,
		RecordType: env.Type.String(),
		RequestKey: env.RecordID.String(),
		Account:    account,
		Payload:    env.Payload,
		StateHash:  env.StateHash[:],
		PrevHash:   env.PrevHash[:],
		Timestamp:  env.Timestamp,
	}
}

func NewRecordLogWriter(db *sql.DB) *RecordLogWriter {
	return &RecordLogWriter{db: db}
}

// WriteBatch writes a batch of records inside the given transaction.
func (w *RecordLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, records []RecordRow) error {
	if len(records) == 0 {
		return nil
	}

	query := `INSERT INTO record_log.records
		(sequence, record_type, request_key, account, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*8)

	for i, r := range records {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			r.Sequence, r.RecordType, r.RequestKey, r.Account,
			string(r.Payload), r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// EnvelopeFromRow reconstructs the typed envelope for replay.
func EnvelopeFromRow(r RecordRow) (*event.RecordEnvelope, error) {
	recordType, err := parseRecordType(r.RecordType)
	if err != nil {
		return nil, err
	}

	env := &event.RecordEnvelope{
		Sequence:  r.Sequence,
		Type:      recordType,
		Timestamp: r.Timestamp,
		Payload:   r.Payload,
	}

	if env.RecordID, err = uuid.Parse(r.RequestKey); err != nil {
		return nil, fmt.Errorf("row %d: request key: %w", r.Sequence, err)
	}
	if r.Account != nil {
		id, err := uuid.Parse(*r.Account)
		if err != nil {
			return nil, fmt.Errorf("row %d: account: %w", r.Sequence, err)
		}
		env.Account = &id
	}

	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("row %d: malformed hash", r.Sequence)
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)

	return env, nil
}

func parseRecordType(s string) (event.RecordType, error) {
	for rt := event.RecordTypeDeposit; rt <= event.RecordTypeRescue; rt++ {
		if rt.String() == s {
			return rt, nil
		}
	}
	return event.RecordTypeUnknown, fmt.Errorf("unknown record type %q", s)
}
