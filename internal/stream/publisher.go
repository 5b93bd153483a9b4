package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PoolLedger/internal/core"
	"PoolLedger/internal/event"
	"PoolLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// RecordStreamName is the outbound JetStream stream for processed records.
	RecordStreamName = "POOL_LEDGER_RECORDS"

	subjectPrefix = "pool.ledger.records"
)

// RecordPublisher publishes processed records to NATS for downstream
// consumers. Outbound publishing is best-effort: failures are counted but
// never block or fail the operation, consumers can always read the record
// log directly.
type RecordPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// PublishedRecord is the wire format for outbound records.
type PublishedRecord struct {
	Sequence   int64           `json:"sequence"`
	RecordType string          `json:"record_type"`
	RecordID   string          `json:"record_id"`
	Account    *string         `json:"account,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	StateHash  []byte          `json:"state_hash"`
	PrevHash   []byte          `json:"prev_hash"`
	Timestamp  time.Time       `json:"timestamp"`
}

func NewRecordPublisher(js jetstream.JetStream, inputChan <-chan core.Output, metrics *observability.Metrics) *RecordPublisher {
	return &RecordPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("stream"),
	}
}

// Run starts the outbound publisher loop.
func (p *RecordPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, out); err != nil {
				p.metrics.StreamErrors.Inc()
				p.logger.Warn().
					Int64("sequence", out.Envelope.Sequence).
					Err(err).
					Msg("outbound publish failed")
				continue
			}
			p.metrics.StreamPublished.WithLabelValues(out.Envelope.Type.String()).Inc()
		}
	}
}

func (p *RecordPublisher) publish(ctx context.Context, out core.Output) error {
	env := out.Envelope

	var account *string
	if env.Account != nil {
		s := env.Account.String()
		account = &s
	}

	rec := PublishedRecord{
		Sequence:   env.Sequence,
		RecordType: env.Type.String(),
		RecordID:   env.RecordID.String(),
		Account:    account,
		Payload:    env.Payload,
		StateHash:  env.StateHash[:],
		PrevHash:   env.PrevHash[:],
		Timestamp:  env.Timestamp,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, SubjectToken(env.Type))
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// SubjectToken converts a record type to its snake_case subject segment,
// e.g. BulkDeposit -> bulk_deposit.
func SubjectToken(t event.RecordType) string {
	name := t.String()
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EnsureRecordStream creates the outbound records stream.
func EnsureRecordStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      RecordStreamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create record stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
