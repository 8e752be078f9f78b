package settlement

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/metrics"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/registry"
)

const payoutConsumerName = "payout-worker"

const (
	outcomeSettled        = "settled"
	outcomeAlreadySettled = "already_settled"
	outcomeBlocked        = "blocked"
	outcomeRetried        = "retried"
	outcomeExhausted      = "exhausted"
)

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID string) (bool, error)
	Delete(ctx context.Context, consumer string, eventID string) error
}

type messageSource interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// ConsumerParams wires the payout request consumer.
type ConsumerParams struct {
	Settler      Service
	Subscription messageSource
	Idempotency  idempotencyChecker
	Tx           txRunner
	Outbox       outboxPublisher
	RetryDelay   time.Duration
	Metrics      *metrics.PayoutMetrics
	Logger       *logger.Logger
}

// Consumer settles orders named by payout.requested events.
type Consumer struct {
	settler      Service
	subscription messageSource
	idempotency  idempotencyChecker
	tx           txRunner
	outbox       outboxPublisher
	decoders     *registry.DecoderRegistry
	retryDelay   time.Duration
	metrics      *metrics.PayoutMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewConsumer builds a payout request consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Settler == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("payouts subscription required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}

	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventPayoutRequested, 1, registry.JSONDecoder[payloads.PayoutRequestedEvent]())

	return &Consumer{
		settler:      params.Settler,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		tx:           params.Tx,
		outbox:       params.Outbox,
		decoders:     decoders,
		retryDelay:   retryDelay,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.Handle(ctx, msg.ID, msg.Attributes["event_type"], msg.Data)
		if result.Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Result tells the receive loop whether to ack or nack the message.
type Result struct {
	Ack  bool
	Nack bool
}

// Handle processes one delivered message.
func (c *Consumer) Handle(ctx context.Context, messageID, eventType string, body []byte) Result {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventPayoutRequested) {
		c.logg.Info(logCtx, "skipping non-payout event")
		return Result{Ack: true}
	}

	envelope, decoded, err := c.decoders.DecodeMessage(enums.EventPayoutRequested, body)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payout request", err)
		return Result{Ack: true}
	}
	req, ok := decoded.(*payloads.PayoutRequestedEvent)
	if !ok || req.OrderID == uuid.Nil {
		c.logg.Warn(logCtx, "payout request without order id")
		return Result{Ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, payoutConsumerName, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return Result{Nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return Result{Ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": envelope.EventID,
		"order_id": req.OrderID.String(),
		"attempt":  req.Attempt,
	})
	if err := c.process(logCtx, req); err != nil {
		c.logg.Error(logCtx, "payout request handling failed", err)
		_ = c.idempotency.Delete(ctx, payoutConsumerName, envelope.EventID)
		return Result{Nack: true}
	}
	return Result{Ack: true}
}

func (c *Consumer) process(ctx context.Context, req *payloads.PayoutRequestedEvent) error {
	attempt := req.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	outcome, err := c.settler.Settle(ctx, req.OrderID)
	if err == nil {
		if clearErr := c.settler.ClearBlock(ctx, req.OrderID); clearErr != nil {
			c.logg.Warn(c.logg.WithField(ctx, "error", clearErr.Error()), "failed to clear payout block")
		}
		if outcome != nil && outcome.AlreadySettled {
			c.metrics.IncSettlement(outcomeAlreadySettled)
		} else {
			c.metrics.IncSettlement(outcomeSettled)
		}
		return nil
	}

	if IsHeldForReview(err) {
		c.logg.Warn(ctx, "payout held for operator review")
		c.metrics.IncSettlement(outcomeBlocked)
		return nil
	}

	if reason, terminal := BlockReason(err); terminal {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"reason": reason, "error": err.Error()}), "payout blocked")
		c.metrics.IncSettlement(outcomeBlocked)
		return c.settler.RecordFailure(ctx, req.OrderID, reason, err, attempt)
	}

	if attempt < req.MaxAttempts {
		delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
		next := payloads.PayoutRequestedEvent{
			OrderID:     req.OrderID,
			Attempt:     attempt + 1,
			MaxAttempts: req.MaxAttempts,
			Delay:       delay,
			ScanID:      req.ScanID,
			RequestedAt: c.now().UTC(),
		}
		if err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutRequested,
				AggregateType: enums.AggregateOrder,
				AggregateID:   req.OrderID,
				Data:          next,
				Delay:         delay,
			})
		}); err != nil {
			return err
		}
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"retry_in": delay.String(), "error": err.Error()}), "payout attempt failed, re-enqueued")
		c.metrics.IncSettlement(outcomeRetried)
		return nil
	}

	c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "payout retries exhausted")
	c.metrics.IncSettlement(outcomeExhausted)
	return c.settler.RecordFailure(ctx, req.OrderID, enums.PayoutBlockProviderFailed, err, attempt)
}
