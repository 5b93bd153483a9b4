package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ForeignPush logs one PushForeign call made against the fake gateway.
type ForeignPush struct {
	Asset  string
	To     uuid.UUID
	Amount int64
}

// FakeGateway is an in-memory asset custodian for engine tests. It moves
// balances between external accounts and the pool account, optionally skims
// a transfer fee on Pull, injects Push failures, and runs a hook inside Push
// so tests can exercise reentrant callbacks.
type FakeGateway struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	pool     uuid.UUID

	// SkimBps is deducted from every Pull delivery (fee-skimming asset).
	SkimBps int64

	// PullErr / PushErr fail the next matching call without moving funds.
	PullErr error
	PushErr error

	// OnPush runs inside Push after the transfer, before returning. Tests
	// use it to call back into the engine mid-operation.
	OnPush func(to uuid.UUID, amount int64)

	ForeignPushes []ForeignPush
}

func NewFakeGateway(pool uuid.UUID) *FakeGateway {
	return &FakeGateway{
		balances: make(map[uuid.UUID]int64),
		pool:     pool,
	}
}

// Fund sets an external account's balance.
func (g *FakeGateway) Fund(account uuid.UUID, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[account] = amount
}

// Balance reads an account's balance directly.
func (g *FakeGateway) Balance(account uuid.UUID) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[account]
}

func (g *FakeGateway) Pull(ctx context.Context, from uuid.UUID, requested int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.PullErr != nil {
		return 0, g.PullErr
	}
	if g.balances[from] < requested {
		return 0, fmt.Errorf("account %s holds %d, cannot pull %d", from, g.balances[from], requested)
	}

	received := requested - requested*g.SkimBps/10_000
	g.balances[from] -= requested
	g.balances[g.pool] += received
	return received, nil
}

func (g *FakeGateway) Push(ctx context.Context, to uuid.UUID, amount int64) error {
	g.mu.Lock()
	if g.PushErr != nil {
		err := g.PushErr
		g.mu.Unlock()
		return err
	}
	if g.balances[g.pool] < amount {
		bal := g.balances[g.pool]
		g.mu.Unlock()
		return fmt.Errorf("pool holds %d, cannot push %d", bal, amount)
	}
	g.balances[g.pool] -= amount
	g.balances[to] += amount
	hook := g.OnPush
	g.mu.Unlock()

	if hook != nil {
		hook(to, amount)
	}
	return nil
}

func (g *FakeGateway) PushForeign(ctx context.Context, asset string, to uuid.UUID, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ForeignPushes = append(g.ForeignPushes, ForeignPush{Asset: asset, To: to, Amount: amount})
	return nil
}

func (g *FakeGateway) BalanceOf(ctx context.Context, holder uuid.UUID) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[holder], nil
}
