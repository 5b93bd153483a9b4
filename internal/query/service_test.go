package query_test

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"PoolLedger/internal/persistence"
	"PoolLedger/internal/query"
	"PoolLedger/internal/testutil"

	"github.com/google/uuid"
)

func TestQueryService_RecordLog(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	account := uuid.New()
	accountStr := account.String()

	// Three records with a valid hash chain.
	var rows []persistence.RecordRow
	prev := sha256.Sum256([]byte("genesis"))
	for seq := int64(0); seq < 3; seq++ {
		state := sha256.Sum256([]byte{byte(seq)})
		row := persistence.RecordRow{
			Sequence:   seq,
			RecordType: "Deposit",
			RequestKey: uuid.New().String(),
			Payload:    []byte(`{"requested":100}`),
			StateHash:  state[:],
			PrevHash:   prev[:],
			Timestamp:  time.Now().UTC(),
		}
		if seq != 1 {
			row.Account = &accountStr
		}
		rows = append(rows, row)
		prev = state
	}

	writer := persistence.NewRecordLogWriter(db)
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteBatch(ctx, tx, rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	qs := query.NewQueryService(db, nil)

	all, err := qs.ListRecords(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Sequence != 0 || all[2].Sequence != 2 {
		t.Errorf("records out of order: %d..%d", all[0].Sequence, all[2].Sequence)
	}

	byAccount, err := qs.ListAccountRecords(ctx, account, 10, 0)
	if err != nil {
		t.Fatalf("list account records: %v", err)
	}
	if len(byAccount) != 2 {
		t.Fatalf("expected 2 account records, got %d", len(byAccount))
	}
	if byAccount[0].Sequence != 2 {
		t.Errorf("expected newest first, got sequence %d", byAccount[0].Sequence)
	}

	seq, err := qs.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if seq != 2 {
		t.Errorf("latest sequence = %d, want 2", seq)
	}

	report, err := qs.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if !report.IsHealthy {
		t.Errorf("expected healthy chain, breaks at %v", report.HashChainBreaks)
	}
	if report.RecordsChecked != 3 {
		t.Errorf("records checked = %d, want 3", report.RecordsChecked)
	}

	// Break the chain and verify detection.
	bogus := sha256.Sum256([]byte("bogus"))
	if _, err := db.Exec(
		`UPDATE record_log.records SET prev_hash = $1 WHERE sequence = 2`, bogus[:],
	); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	report, err = qs.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if report.IsHealthy {
		t.Error("expected unhealthy chain after corruption")
	}
	if len(report.HashChainBreaks) != 1 || report.HashChainBreaks[0] != 2 {
		t.Errorf("expected break at 2, got %v", report.HashChainBreaks)
	}
}
