package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"StrategyVault/internal/command"
	"StrategyVault/internal/event"
	"StrategyVault/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Subject layout: vault.events.<EventType>
const (
	EventSubjectPrefix = "vault.events"
	EventStream        = "VAULT_EVENTS"
)

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes vault events to NATS for downstream consumers.
// Each message carries Nats-Msg-Id = sequence, so a republish inside the
// stream's duplicate window is dropped by the server.
type OutboundPublisher struct {
	js        streamPublisher
	inputChan <-chan command.Output
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// PublishableEvent is the outbound wire form of an event envelope.
type PublishableEvent struct {
	Sequence   int64       `json:"sequence"`
	EventType  string      `json:"event_type"`
	CommandKey string      `json:"command_key"`
	Payload    event.Event `json:"payload"`
	StateHash  string      `json:"state_hash"`
	PrevHash   string      `json:"prev_hash"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewPublishableEvent(env event.Envelope) PublishableEvent {
	return PublishableEvent{
		Sequence:   env.Sequence,
		EventType:  env.EventType.String(),
		CommandKey: env.CommandKey,
		Payload:    env.Payload,
		StateHash:  hex.EncodeToString(env.StateHash[:]),
		PrevHash:   hex.EncodeToString(env.PrevHash[:]),
		Timestamp:  env.Timestamp,
	}
}

func NewOutboundPublisher(js streamPublisher, inputChan <-chan command.Output, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if out.Replayed {
				continue
			}

			for _, env := range out.Events {
				if err := op.publish(ctx, env); err != nil {
					// Non-fatal: downstream consumers can read the event log directly.
					op.logger.Warn().Err(err).Int64("seq", env.Sequence).Msg("outbound publish failed")
					if op.metrics != nil {
						op.metrics.PublishErrors.Inc()
					}
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env event.Envelope) error {
	evt := NewPublishableEvent(env)
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := EventSubjectPrefix + "." + evt.EventType
	if _, err := op.js.Publish(ctx, subject, data, jetstream.WithMsgID(strconv.FormatInt(evt.Sequence, 10))); err != nil {
		return err
	}
	if op.metrics != nil {
		op.metrics.EventsPublished.WithLabelValues(evt.EventType).Inc()
	}
	return nil
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       EventStream,
		Subjects:   []string{EventSubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", EventStream).Msg("ensured outbound stream")
	return nil
}
