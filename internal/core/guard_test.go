package core_test

import (
	"PoolLedger/internal/core"
	"testing"
)

func TestTransactionGuard_MutualExclusion(t *testing.T) {
	g := core.NewTransactionGuard()

	if !g.TryAcquire() {
		t.Fatal("fresh guard should acquire")
	}
	if g.TryAcquire() {
		t.Error("second acquire while held should fail")
	}
	if !g.Held() {
		t.Error("guard should report held")
	}

	g.Release()
	if g.Held() {
		t.Error("guard should report free after release")
	}
	if !g.TryAcquire() {
		t.Error("acquire after release should pass")
	}
}

func TestIdempotencyLRU_EvictsOldest(t *testing.T) {
	lru := core.NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Add("c") // evicts "a"

	if lru.Contains("a") {
		t.Error("oldest key should be evicted")
	}
	if !lru.Contains("b") || !lru.Contains("c") {
		t.Error("recent keys should remain")
	}
	if lru.Evictions() != 1 {
		t.Errorf("evictions: got %d, want 1", lru.Evictions())
	}
}

func TestIdempotencyChecker_TwoTier(t *testing.T) {
	ic := core.NewIdempotencyChecker(10, nil)

	if ic.IsDuplicate("Deposit", "k1") {
		t.Error("unseen key should not be duplicate")
	}
	ic.MarkProcessed("Deposit", "k1")
	if !ic.IsDuplicate("Deposit", "k1") {
		t.Error("processed key should be duplicate")
	}
	if ic.IsDuplicate("Withdrawal", "k1") {
		t.Error("same key under a different op type should not collide")
	}
}
