package gateway_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"PoolLedger/internal/gateway"
	"PoolLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

func connect(t *testing.T) *nats.Conn {
	t.Helper()
	testutil.RequireIntegration(t)

	nc, err := nats.Connect(testutil.TestNATSURL())
	if err != nil {
		t.Skipf("test NATS not available: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSGateway_PullRoundTrip(t *testing.T) {
	nc := connect(t)

	from := uuid.New()
	sub, err := nc.Subscribe(gateway.SubjectPull, func(msg *nats.Msg) {
		var req struct {
			From      uuid.UUID `json:"from"`
			Requested int64     `json:"requested"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.From != from {
			t.Errorf("from = %s, want %s", req.From, from)
		}
		// Skim 10% like a fee-on-transfer asset.
		reply, _ := json.Marshal(map[string]any{"received": req.Requested * 9 / 10})
		msg.Respond(reply)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	gw := gateway.NewNATSGateway(nc, 2*time.Second)
	received, err := gw.Pull(context.Background(), from, 1_000)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if received != 900 {
		t.Errorf("received = %d, want 900", received)
	}
}

func TestNATSGateway_PushError(t *testing.T) {
	nc := connect(t)

	sub, err := nc.Subscribe(gateway.SubjectPush, func(msg *nats.Msg) {
		reply, _ := json.Marshal(map[string]any{"error": "custodian rejected transfer"})
		msg.Respond(reply)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	gw := gateway.NewNATSGateway(nc, 2*time.Second)
	err = gw.Push(context.Background(), uuid.New(), 500)
	if err == nil || err.Error() != "custodian rejected transfer" {
		t.Errorf("expected custodian error, got %v", err)
	}
}

func TestNATSGateway_TimeoutWithoutResponder(t *testing.T) {
	nc := connect(t)

	gw := gateway.NewNATSGateway(nc, 100*time.Millisecond)
	if _, err := gw.BalanceOf(context.Background(), uuid.New()); err == nil {
		t.Error("expected timeout with no responder")
	}
}
