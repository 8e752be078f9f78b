package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	"github.com/angelmondragon/packfinderz-payouts/pkg/metrics"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox/registry"
)

const publishTimeout = 15 * time.Second

const (
	outcomePublished  = "published"
	outcomeRetry      = "retry"
	outcomeDeadLetter = "dead_letter"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type dispatcher struct {
	logg        *logger.Logger
	repo        outboxRepository
	dlq         dlqRepository
	registry    registryResolver
	publishers  publisherFactory
	metrics     *metrics.OutboxMetrics
	maxAttempts int
	now         func() time.Time
}

// dispatch publishes one row and records the outcome on it. A returned error
// means the row state could not be written and the batch must roll back.
func (d *dispatcher) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	ctx = d.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := d.registry.Resolve(event)
	if err != nil {
		reason := enums.OutboxDLQReasonNonRetryable
		if errors.Is(err, registry.ErrUnsupportedEvent) {
			reason = enums.OutboxDLQReasonUnknownEvent
		}
		return d.deadLetter(ctx, tx, event, reason, err)
	}
	ctx = d.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	pubErr := d.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := d.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		d.metrics.IncDispatched(string(event.EventType), outcomePublished)
		d.logg.Info(ctx, "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if event.AttemptCount+1 >= d.maxAttempts {
		return d.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	d.logg.Warn(d.logg.WithField(ctx, "error", pubErr.Error()), "outbox publish failed, will retry")
	if err := d.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	d.metrics.IncDispatched(string(event.EventType), outcomeRetry)
	return nil
}

func (d *dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	ctx = d.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()})
	d.logg.Warn(ctx, "outbox event moved to dlq")

	entry := outbox.NewDLQEntry(event, reason, cause, d.now())
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := d.repo.MarkTerminalTx(tx, event.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	d.metrics.IncDispatched(string(event.EventType), outcomeDeadLetter)
	return nil
}

// publish sends the stored envelope verbatim. Consumers dedupe on the
// event_id attribute.
func (d *dispatcher) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := d.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": fmt.Sprintf("%d", resolved.Envelope.Version),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func gcpPublisherFactory(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
