package event

import "github.com/google/uuid"

// DepositRecord is emitted after a confirmed single-account deposit.
// Received is the amount the gateway actually delivered, which the ledger
// credits; Requested is kept for audit of skimming custodians.
type DepositRecord struct {
	Account    uuid.UUID `json:"account"`
	Requested  int64     `json:"requested"`
	Received   int64     `json:"received"`
	NewBalance int64     `json:"new_balance"`
}

func (r *DepositRecord) RecordType() RecordType { return RecordTypeDeposit }
func (r *DepositRecord) AccountID() *uuid.UUID  { return &r.Account }

// WithdrawalRecord is emitted after a confirmed withdrawal.
// Gross = Fee + Net always holds.
type WithdrawalRecord struct {
	Account    uuid.UUID `json:"account"`
	Gross      int64     `json:"gross"`
	Fee        int64     `json:"fee"`
	Net        int64     `json:"net"`
	NewBalance int64     `json:"new_balance"`
}

func (r *WithdrawalRecord) RecordType() RecordType { return RecordTypeWithdrawal }
func (r *WithdrawalRecord) AccountID() *uuid.UUID  { return &r.Account }

// WithdrawAllRecord is emitted when an account exits with its full balance.
type WithdrawAllRecord struct {
	Account uuid.UUID `json:"account"`
	Gross   int64     `json:"gross"`
	Fee     int64     `json:"fee"`
	Net     int64     `json:"net"`
}

func (r *WithdrawAllRecord) RecordType() RecordType { return RecordTypeWithdrawAll }
func (r *WithdrawAllRecord) AccountID() *uuid.UUID  { return &r.Account }

// BulkEntry is one credit inside a bulk deposit.
type BulkEntry struct {
	Account    uuid.UUID `json:"account"`
	Requested  int64     `json:"requested"`
	Received   int64     `json:"received"`
	NewBalance int64     `json:"new_balance"`
}

// BulkDepositRecord is emitted once per confirmed bulk deposit. Entries carry
// per-account detail so replay can reconstruct every balance from the one
// record.
type BulkDepositRecord struct {
	Funder        uuid.UUID   `json:"funder"`
	Count         int         `json:"count"`
	TotalReceived int64       `json:"total_received"`
	Entries       []BulkEntry `json:"entries"`
}

func (r *BulkDepositRecord) RecordType() RecordType { return RecordTypeBulkDeposit }
func (r *BulkDepositRecord) AccountID() *uuid.UUID  { return &r.Funder }

// ConfigChangeRecord is emitted for numeric policy changes. Param is one of
// "minimum_deposit", "withdrawal_fee_bps", "lock_period_seconds", "paused"
// (0/1 encoded).
type ConfigChangeRecord struct {
	Param string `json:"param"`
	Old   int64  `json:"old"`
	New   int64  `json:"new"`
}

func (r *ConfigChangeRecord) RecordType() RecordType { return RecordTypeConfigChange }
func (r *ConfigChangeRecord) AccountID() *uuid.UUID  { return nil }

// TreasuryChangeRecord is emitted when the fee treasury is repointed.
type TreasuryChangeRecord struct {
	Old uuid.UUID `json:"old"`
	New uuid.UUID `json:"new"`
}

func (r *TreasuryChangeRecord) RecordType() RecordType { return RecordTypeTreasuryChange }
func (r *TreasuryChangeRecord) AccountID() *uuid.UUID  { return nil }

// AccessChangeRecord is emitted for registry mutations. Kind is one of
// "operator", "blacklist", "fee_exempt".
type AccessChangeRecord struct {
	Kind       string    `json:"kind"`
	Account    uuid.UUID `json:"account"`
	Enabled    bool      `json:"enabled"`
	WasEnabled bool      `json:"was_enabled"`
}

func (r *AccessChangeRecord) RecordType() RecordType { return RecordTypeAccessChange }
func (r *AccessChangeRecord) AccountID() *uuid.UUID  { return &r.Account }

// FeeSweepRecord is emitted after collected fees are pushed to the treasury.
type FeeSweepRecord struct {
	Treasury      uuid.UUID `json:"treasury"`
	Amount        int64     `json:"amount"`
	RemainingFees int64     `json:"remaining_fees"`
}

func (r *FeeSweepRecord) RecordType() RecordType { return RecordTypeFeeSweep }
func (r *FeeSweepRecord) AccountID() *uuid.UUID  { return nil }

// EmergencyWithdrawRecord is emitted after an owner drain of the paused pool.
// Depositor claims are NOT adjusted; the record marks the solvency break.
type EmergencyWithdrawRecord struct {
	Recipient     uuid.UUID `json:"recipient"`
	Amount        int64     `json:"amount"`
	PoolBalance   int64     `json:"pool_balance"`
	FeesProtected bool      `json:"fees_protected"`
}

func (r *EmergencyWithdrawRecord) RecordType() RecordType { return RecordTypeEmergencyWithdraw }
func (r *EmergencyWithdrawRecord) AccountID() *uuid.UUID  { return nil }

// RescueRecord is emitted after a foreign-asset transfer out of the pool
// account. The pooled asset is never rescuable.
type RescueRecord struct {
	Asset     string    `json:"asset"`
	Recipient uuid.UUID `json:"recipient"`
	Amount    int64     `json:"amount"`
}

func (r *RescueRecord) RecordType() RecordType { return RecordTypeRescue }
func (r *RescueRecord) AccountID() *uuid.UUID  { return nil }
