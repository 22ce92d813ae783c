// Package consumer is the queue ingress adapter: it receives batched crypto
// deposit notifications and replays each element through the pipeline. The
// broker delivers at least once and possibly out of order; the pipeline is
// responsible for making that safe.
package consumer

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"settlement/internal/app/apperr"
	"settlement/internal/app/config"
	"settlement/internal/app/hooks"
	"settlement/internal/app/logger"
	"settlement/internal/app/model"
)

// DepositRunner is the pipeline surface the consumer drives.
type DepositRunner interface {
	RunDeposit(ctx context.Context, ev hooks.Event, forced bool) error
}

// depositMessage is the queue wire format: one batch of deposits observed on
// a single network.
type depositMessage struct {
	Network  string         `json:"network"`
	Deposits []depositEntry `json:"deposits"`
}

type depositEntry struct {
	Deposit     depositFields     `json:"deposit"`
	Transaction map[string]string `json:"transaction"`
}

type depositFields struct {
	UserID        string          `json:"user_id"`
	ExternalID    string          `json:"external_id"`
	Amount        decimal.Decimal `json:"amount"`
	Asset         string          `json:"currency"`
	Confirmations int             `json:"confirmations"`
}

type Consumer struct {
	cfg      config.QueueConfig
	pipeline DepositRunner
	logger   logger.Logger
}

func (c *Consumer) LoggerComponent() string {
	return "Consumer"
}

func New(cfg config.QueueConfig, pipeline DepositRunner) *Consumer {
	c := &Consumer{
		cfg:      cfg,
		pipeline: pipeline,
	}
	c.logger = logger.Global().Component(c)
	return c
}

// Run connects to the broker and consumes until ctx is cancelled. Messages
// are acked on success and on drops (unknown network, malformed payload);
// processing failures are nacked with requeue so the broker redelivers.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Properties: amqp.Table{
			"connection_name": "settlement_consumer",
		},
	})
	if err != nil {
		return errors.Wrap(err, "amqp dial")
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "amqp channel")
	}
	defer func() {
		_ = ch.Close()
	}()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return errors.Wrap(err, "qos")
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "exchange declare")
	}

	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue declare")
	}

	if err := ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return errors.Wrap(err, "queue bind")
	}

	deliveries, err := ch.Consume(q.Name, "settlement_consumer", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	c.logger.Info().Str("queue", q.Name).Msg("Consuming deposit events")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := c.HandleMessage(ctx, d.Body); err != nil {
				c.logger.Error().Err(err).Msg("Batch processing failed, requeueing")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage processes one batch sequentially. Elements that can never
// succeed (unknown network, invalid event data) are dropped with a warning;
// any other failure fails the whole message so the broker redelivers it,
// which the pipeline's idempotency makes safe.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) error {
	var msg depositMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// A payload that never parses will never parse; drop it loudly
		// instead of redelivering forever.
		c.logger.Error().Err(err).Msg("Malformed deposit message dropped")
		return nil
	}

	l := c.logger.With().Str("network", msg.Network).Int("batch_size", len(msg.Deposits)).Logger()
	l.Debug().Msg("Processing deposit batch")

	for _, entry := range msg.Deposits {
		ev := hooks.Event{
			Network:       msg.Network,
			UserID:        entry.Deposit.UserID,
			ExternalID:    entry.Deposit.ExternalID,
			Direction:     model.DirectionDeposit,
			Amount:        entry.Deposit.Amount,
			Asset:         entry.Deposit.Asset,
			Confirmations: entry.Deposit.Confirmations,
			Meta:          entry.Transaction,
		}

		if err := c.pipeline.RunDeposit(ctx, ev, false); err != nil {
			switch {
			case errors.Is(err, apperr.ErrUnknownNetwork):
				l.Warn().Str("external_id", ev.ExternalID).Msg("Deposit for unregistered network dropped")
				continue
			case errors.Is(err, apperr.ErrInvalidInput):
				// Redelivery cannot make a bad event valid.
				l.Warn().Err(err).Str("external_id", ev.ExternalID).Msg("Invalid deposit event dropped")
				continue
			}
			return errors.Wrapf(err, "deposit %s", ev.ExternalID)
		}
	}

	return nil
}
