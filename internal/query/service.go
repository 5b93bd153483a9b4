package query

import (
	"context"
	"database/sql"
	"time"

	"PoolLedger/internal/observability"

	"github.com/google/uuid"
)

// QueryService serves read-only history from the record log. Live state
// (balances, totals, config) is answered by the engine directly; this
// service covers everything that needs the durable log.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// ListAccountRecords returns records touching one account, newest first.
func (qs *QueryService) ListAccountRecords(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	offset int,
) ([]RecordResponse, error) {
	start := time.Now()

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, record_type, request_key, account, payload,
		       state_hash, prev_hash, timestamp
		FROM record_log.records
		WHERE account = $1
		ORDER BY sequence DESC
		LIMIT $2 OFFSET $3
	`, account, limit, offset)
	if err != nil {
		qs.observe("account_records", start, err)
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	qs.observe("account_records", start, err)
	return records, err
}

// ListRecords returns records from a given sequence, oldest first.
func (qs *QueryService) ListRecords(
	ctx context.Context,
	fromSequence int64,
	limit int,
) ([]RecordResponse, error) {
	start := time.Now()

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, record_type, request_key, account, payload,
		       state_hash, prev_hash, timestamp
		FROM record_log.records
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		qs.observe("records", start, err)
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	qs.observe("records", start, err)
	return records, err
}

// VerifyIntegrity walks the record log checking that each record's
// prev_hash matches the previous record's state_hash.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	start := time.Now()
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT r.sequence
		FROM record_log.records r
		JOIN record_log.records prev ON prev.sequence = r.sequence - 1
		WHERE r.prev_hash != prev.state_hash
		ORDER BY r.sequence
		LIMIT 10
	`)
	if err != nil {
		qs.observe("verify_integrity", start, err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			qs.observe("verify_integrity", start, err)
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		qs.observe("verify_integrity", start, err)
		return nil, err
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0), COUNT(*)
		FROM record_log.records
	`).Scan(&report.LatestSequence, &report.RecordsChecked)
	if err != nil {
		qs.observe("verify_integrity", start, err)
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	qs.observe("verify_integrity", start, nil)
	return report, nil
}

// LatestSequence returns the highest persisted sequence, 0 if empty.
func (qs *QueryService) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := qs.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM record_log.records
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func scanRecords(rows *sql.Rows) ([]RecordResponse, error) {
	var records []RecordResponse
	for rows.Next() {
		var r RecordResponse
		if err := rows.Scan(
			&r.Sequence, &r.RecordType, &r.RecordID, &r.Account,
			&r.Payload, &r.StateHash, &r.PrevHash, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (qs *QueryService) observe(endpoint string, start time.Time, err error) {
	if qs.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
