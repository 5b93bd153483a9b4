package access

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds the pool's capability sets: the owner, the authorized
// operator set, the blacklist, and the fee-exempt set. The four predicates
// are orthogonal booleans over the account keyspace — there is no role
// hierarchy. All membership changes are owner-only (enforced by the engine)
// and take effect immediately for subsequent operations.
type Registry struct {
	mu        sync.RWMutex
	owner     uuid.UUID
	operators map[uuid.UUID]bool
	blacklist map[uuid.UUID]bool
	feeExempt map[uuid.UUID]bool
}

func NewRegistry(owner uuid.UUID) *Registry {
	return &Registry{
		owner:     owner,
		operators: make(map[uuid.UUID]bool),
		blacklist: make(map[uuid.UUID]bool),
		feeExempt: make(map[uuid.UUID]bool),
	}
}

// Owner returns the pool owner account.
func (r *Registry) Owner() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// IsOwner reports whether the account is the pool owner.
func (r *Registry) IsOwner(account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return account == r.owner
}

// IsAuthorizedOrOwner reports whether the account may perform bulk
// operations: the owner or an explicitly authorized operator.
func (r *Registry) IsAuthorizedOrOwner(account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return account == r.owner || r.operators[account]
}

// IsBlacklisted reports whether the account is blocked from deposits and
// withdrawals.
func (r *Registry) IsBlacklisted(account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blacklist[account]
}

// IsFeeExempt reports whether withdrawals by the account carry no fee.
func (r *Registry) IsFeeExempt(account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeExempt[account]
}

// SetOperator toggles operator authorization and returns the previous value.
func (r *Registry) SetOperator(account uuid.UUID, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.operators[account]
	if enabled {
		r.operators[account] = true
	} else {
		delete(r.operators, account)
	}
	return prev
}

// SetBlacklisted toggles blacklist membership and returns the previous value.
func (r *Registry) SetBlacklisted(account uuid.UUID, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.blacklist[account]
	if enabled {
		r.blacklist[account] = true
	} else {
		delete(r.blacklist, account)
	}
	return prev
}

// SetFeeExempt toggles fee exemption and returns the previous value.
func (r *Registry) SetFeeExempt(account uuid.UUID, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.feeExempt[account]
	if enabled {
		r.feeExempt[account] = true
	} else {
		delete(r.feeExempt, account)
	}
	return prev
}

// Sets is a serializable copy of the three membership sets, used for
// snapshots.
type Sets struct {
	Operators []uuid.UUID `json:"operators"`
	Blacklist []uuid.UUID `json:"blacklist"`
	FeeExempt []uuid.UUID `json:"fee_exempt"`
}

// Snapshot returns a copy of all membership sets.
func (r *Registry) Snapshot() Sets {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Sets{
		Operators: keys(r.operators),
		Blacklist: keys(r.blacklist),
		FeeExempt: keys(r.feeExempt),
	}
}

// Restore replaces the membership sets from a snapshot.
func (r *Registry) Restore(s Sets) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.operators = fromKeys(s.Operators)
	r.blacklist = fromKeys(s.Blacklist)
	r.feeExempt = fromKeys(s.FeeExempt)
}

func keys(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func fromKeys(ids []uuid.UUID) map[uuid.UUID]bool {
	m := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
