package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Account is the per-depositor record. It is created on the account's first
// nonzero deposit and never deleted — a balance that returns to zero leaves
// the record (and the totalUsers count) in place.
type Account struct {
	ID              uuid.UUID
	Balance         int64
	LastDepositTime time.Time
}

// AccountSnapshot is the serializable form of an account record.
type AccountSnapshot struct {
	ID              string `json:"id"`
	Balance         int64  `json:"balance"`
	LastDepositUnix int64  `json:"last_deposit_unix"`
}
