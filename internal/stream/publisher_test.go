package stream_test

import (
	"testing"

	"PoolLedger/internal/event"
	"PoolLedger/internal/stream"
)

func TestSubjectToken(t *testing.T) {
	cases := []struct {
		in   event.RecordType
		want string
	}{
		{event.RecordTypeDeposit, "deposit"},
		{event.RecordTypeWithdrawal, "withdrawal"},
		{event.RecordTypeWithdrawAll, "withdraw_all"},
		{event.RecordTypeBulkDeposit, "bulk_deposit"},
		{event.RecordTypeConfigChange, "config_change"},
		{event.RecordTypeEmergencyWithdraw, "emergency_withdraw"},
		{event.RecordTypeRescue, "rescue"},
	}

	for _, c := range cases {
		if got := stream.SubjectToken(c.in); got != c.want {
			t.Errorf("SubjectToken(%s) = %q, want %q", c.in, got, c.want)
		}
	}
}
