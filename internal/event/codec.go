package event

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes a record payload for the envelope.
func Marshal(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", r.RecordType(), err)
	}
	return data, nil
}

// ParsePayload decodes a stored payload back into its concrete record type.
// Used by replay and by the query service.
func ParsePayload(rt RecordType, data []byte) (Record, error) {
	var r Record
	switch rt {
	case RecordTypeDeposit:
		r = &DepositRecord{}
	case RecordTypeWithdrawal:
		r = &WithdrawalRecord{}
	case RecordTypeWithdrawAll:
		r = &WithdrawAllRecord{}
	case RecordTypeBulkDeposit:
		r = &BulkDepositRecord{}
	case RecordTypeConfigChange:
		r = &ConfigChangeRecord{}
	case RecordTypeTreasuryChange:
		r = &TreasuryChangeRecord{}
	case RecordTypeAccessChange:
		r = &AccessChangeRecord{}
	case RecordTypeFeeSweep:
		r = &FeeSweepRecord{}
	case RecordTypeEmergencyWithdraw:
		r = &EmergencyWithdrawRecord{}
	case RecordTypeRescue:
		r = &RescueRecord{}
	default:
		return nil, fmt.Errorf("unknown record type %d", rt)
	}

	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("unmarshal %s record: %w", rt, err)
	}
	return r, nil
}
