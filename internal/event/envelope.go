package event

import (
	"time"

	"github.com/google/uuid"
)

// RecordType discriminator for record payloads
type RecordType int32

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeDeposit
	RecordTypeWithdrawal
	RecordTypeWithdrawAll
	RecordTypeBulkDeposit
	RecordTypeConfigChange
	RecordTypeTreasuryChange
	RecordTypeAccessChange
	RecordTypeFeeSweep
	RecordTypeEmergencyWithdraw
	RecordTypeRescue
)

// RecordEnvelope wraps every record in the log
type RecordEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key supplied by the caller
	RecordID uuid.UUID

	// Record type discriminator
	Type RecordType

	// Primary account the record concerns (nil for pool-wide records)
	Account *uuid.UUID

	// Engine clock at apply time
	Timestamp time.Time

	// JSON-encoded record-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this record
	StateHash [32]byte

	// Previous record's state hash (chain integrity)
	PrevHash [32]byte
}

// Record is the interface all record payloads implement
type Record interface {
	// RecordType returns the discriminator
	RecordType() RecordType

	// AccountID returns the primary account (nil for pool-wide records)
	AccountID() *uuid.UUID
}

func (rt RecordType) String() string {
	switch rt {
	case RecordTypeDeposit:
		return "Deposit"
	case RecordTypeWithdrawal:
		return "Withdrawal"
	case RecordTypeWithdrawAll:
		return "WithdrawAll"
	case RecordTypeBulkDeposit:
		return "BulkDeposit"
	case RecordTypeConfigChange:
		return "ConfigChange"
	case RecordTypeTreasuryChange:
		return "TreasuryChange"
	case RecordTypeAccessChange:
		return "AccessChange"
	case RecordTypeFeeSweep:
		return "FeeSweep"
	case RecordTypeEmergencyWithdraw:
		return "EmergencyWithdraw"
	case RecordTypeRescue:
		return "Rescue"
	default:
		return "Unknown"
	}
}
