package core

import "sync/atomic"

// TransactionGuard is the pool-wide mutual exclusion flag. Every funds-moving
// handler acquires it on entry and releases it on every exit path; a call that
// arrives while the flag is held — including a gateway callback re-entering
// the engine mid-operation — fails fast with ErrReentrantCall instead of
// queueing. The guard is the sole serializer for mutating operations.
type TransactionGuard struct {
	held atomic.Bool
}

func NewTransactionGuard() *TransactionGuard {
	return &TransactionGuard{}
}

// TryAcquire takes the guard if free. Returns false when another operation
// (or a reentrant callback of this one) already holds it.
func (g *TransactionGuard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the guard.
func (g *TransactionGuard) Release() {
	g.held.Store(false)
}

// Held reports whether an operation is in flight.
func (g *TransactionGuard) Held() bool {
	return g.held.Load()
}
