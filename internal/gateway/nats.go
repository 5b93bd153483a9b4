package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects the custodian service answers on.
const (
	SubjectPull        = "pool.gateway.pull"
	SubjectPush        = "pool.gateway.push"
	SubjectPushForeign = "pool.gateway.push_foreign"
	SubjectBalance     = "pool.gateway.balance"
)

// NATSGateway talks to the asset custodian over NATS request-reply. Every
// call is a JSON request on one of the pool.gateway.* subjects; the reply
// carries either the result or an error string.
type NATSGateway struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSGateway(nc *nats.Conn, timeout time.Duration) *NATSGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSGateway{nc: nc, timeout: timeout}
}

type pullRequest struct {
	From      uuid.UUID `json:"from"`
	Requested int64     `json:"requested"`
}

type pullReply struct {
	Received int64  `json:"received"`
	Error    string `json:"error,omitempty"`
}

type pushRequest struct {
	To     uuid.UUID `json:"to"`
	Amount int64     `json:"amount"`
}

type pushForeignRequest struct {
	Asset  string    `json:"asset"`
	To     uuid.UUID `json:"to"`
	Amount int64     `json:"amount"`
}

type statusReply struct {
	Error string `json:"error,omitempty"`
}

type balanceRequest struct {
	Holder uuid.UUID `json:"holder"`
}

type balanceReply struct {
	Balance int64  `json:"balance"`
	Error   string `json:"error,omitempty"`
}

func (g *NATSGateway) Pull(ctx context.Context, from uuid.UUID, requested int64) (int64, error) {
	var reply pullReply
	if err := g.request(ctx, SubjectPull, pullRequest{From: from, Requested: requested}, &reply); err != nil {
		return 0, err
	}
	if reply.Error != "" {
		return 0, errors.New(reply.Error)
	}
	return reply.Received, nil
}

func (g *NATSGateway) Push(ctx context.Context, to uuid.UUID, amount int64) error {
	var reply statusReply
	if err := g.request(ctx, SubjectPush, pushRequest{To: to, Amount: amount}, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return nil
}

func (g *NATSGateway) PushForeign(ctx context.Context, asset string, to uuid.UUID, amount int64) error {
	var reply statusReply
	req := pushForeignRequest{Asset: asset, To: to, Amount: amount}
	if err := g.request(ctx, SubjectPushForeign, req, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return nil
}

func (g *NATSGateway) BalanceOf(ctx context.Context, holder uuid.UUID) (int64, error) {
	var reply balanceReply
	if err := g.request(ctx, SubjectBalance, balanceRequest{Holder: holder}, &reply); err != nil {
		return 0, err
	}
	if reply.Error != "" {
		return 0, errors.New(reply.Error)
	}
	return reply.Balance, nil
}

func (g *NATSGateway) request(ctx context.Context, subject string, req, reply any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", subject, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", subject, err)
	}

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}
