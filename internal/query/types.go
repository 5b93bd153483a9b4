package query

import (
	"encoding/json"
	"time"
)

// RecordResponse is one record-log entry as served to API clients.
type RecordResponse struct {
	Sequence   int64           `json:"sequence"`
	RecordType string          `json:"record_type"`
	RecordID   string          `json:"record_id"`
	Account    *string         `json:"account,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	StateHash  []byte          `json:"state_hash"`
	PrevHash   []byte          `json:"prev_hash"`
	Timestamp  time.Time       `json:"timestamp"`
}

// IntegrityReport summarizes a hash-chain walk over the record log.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	LatestSequence  int64   `json:"latest_sequence"`
	RecordsChecked  int64   `json:"records_checked"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
