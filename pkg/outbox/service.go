package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Data          interface{}
	Version       int
	OccurredAt    time.Time
	// Delay holds the event back from the publisher.
	Delay time.Duration
}

type eventRepository interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
	ExistsPendingTx(tx *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID) (bool, error)
}

type Service struct {
	repo   eventRepository
	logg   *logger.Logger
	source string
	now    func() time.Time
}

func NewService(repo eventRepository, logg *logger.Logger, source string) *Service {
	return &Service{repo: repo, logg: logg, source: source, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	want := event.EventType.Aggregate()
	switch {
	case want == "":
		return fmt.Errorf("unknown outbox event type %q", event.EventType)
	case event.AggregateType == "":
		event.AggregateType = want
	case event.AggregateType != want:
		return fmt.Errorf("%s is keyed by %s, not %s", event.EventType, want, event.AggregateType)
	}
	now := s.now().UTC()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	envelope, err := NewEnvelope(s.source, event.Version, event.OccurredAt, event.Data)
	if err != nil {
		return err
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
		AvailableAt:   now.Add(event.Delay),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		fields := map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
			"available_at":   row.AvailableAt,
		}
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event queued")
	}
	return nil
}

// EmitUnlessPending skips the insert when an unpublished event of the same type
// already exists for the aggregate. Reports whether a row was written.
func (s *Service) EmitUnlessPending(ctx context.Context, tx *gorm.DB, event DomainEvent) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	pending, err := s.repo.ExistsPendingTx(tx, event.EventType, event.AggregateID)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}
	if err := s.Emit(ctx, tx, event); err != nil {
		return false, err
	}
	return true, nil
}
