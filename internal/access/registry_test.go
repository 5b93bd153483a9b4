package access_test

import (
	"PoolLedger/internal/access"
	"testing"

	"github.com/google/uuid"
)

func TestRegistry_OwnerChecks(t *testing.T) {
	owner := uuid.New()
	r := access.NewRegistry(owner)

	if !r.IsOwner(owner) {
		t.Error("owner should pass IsOwner")
	}
	if r.IsOwner(uuid.New()) {
		t.Error("random account should not pass IsOwner")
	}
	if !r.IsAuthorizedOrOwner(owner) {
		t.Error("owner should pass IsAuthorizedOrOwner")
	}
}

func TestRegistry_OperatorToggle(t *testing.T) {
	r := access.NewRegistry(uuid.New())
	op := uuid.New()

	if r.IsAuthorizedOrOwner(op) {
		t.Error("account should not be authorized before toggle")
	}

	prev := r.SetOperator(op, true)
	if prev {
		t.Error("previous value should be false")
	}
	if !r.IsAuthorizedOrOwner(op) {
		t.Error("account should be authorized after toggle")
	}

	prev = r.SetOperator(op, false)
	if !prev {
		t.Error("previous value should be true")
	}
	if r.IsAuthorizedOrOwner(op) {
		t.Error("authorization revocation should take effect immediately")
	}
}

func TestRegistry_BlacklistToggle(t *testing.T) {
	r := access.NewRegistry(uuid.New())
	acct := uuid.New()

	r.SetBlacklisted(acct, true)
	if !r.IsBlacklisted(acct) {
		t.Error("account should be blacklisted")
	}

	r.SetBlacklisted(acct, false)
	if r.IsBlacklisted(acct) {
		t.Error("blacklist removal should take effect immediately")
	}
}

func TestRegistry_FeeExemptToggle(t *testing.T) {
	r := access.NewRegistry(uuid.New())
	acct := uuid.New()

	if r.IsFeeExempt(acct) {
		t.Error("accounts are not exempt by default")
	}
	r.SetFeeExempt(acct, true)
	if !r.IsFeeExempt(acct) {
		t.Error("account should be fee exempt after toggle")
	}
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := access.NewRegistry(uuid.New())
	op := uuid.New()
	bad := uuid.New()
	exempt := uuid.New()

	r.SetOperator(op, true)
	r.SetBlacklisted(bad, true)
	r.SetFeeExempt(exempt, true)

	snap := r.Snapshot()

	restored := access.NewRegistry(r.Owner())
	restored.Restore(snap)

	if !restored.IsAuthorizedOrOwner(op) {
		t.Error("operator lost in snapshot round trip")
	}
	if !restored.IsBlacklisted(bad) {
		t.Error("blacklist lost in snapshot round trip")
	}
	if !restored.IsFeeExempt(exempt) {
		t.Error("fee exemption lost in snapshot round trip")
	}
}
