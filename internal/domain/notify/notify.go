// Package notify carries operator notifications and integration events out
// of the engine. Neither path may fail the operation that triggered it.
package notify

import (
	"context"
	"time"

	"stockalloc/internal/core/id"
	"stockalloc/pkg/logger"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a message for the operator who triggered an operation.
type Notification struct {
	ID        id.ID     `db:"id" json:"id"`
	Actor     string    `db:"actor" json:"actor"`
	Message   string    `db:"message" json:"message"`
	Level     Level     `db:"level" json:"level"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Event types published to integrations.
const (
	EventOrderAllocated    = "order.allocated"
	EventOrderFulfilled    = "order.fulfilled"
	EventShipmentCreated   = "shipment.created"
	EventInventoryAdjusted = "inventory.adjusted"
	EventStockLow          = "stock.low"
)

// Event is an integration event delivered to webhooks.
type Event struct {
	Type          string `json:"event"`
	AggregateType string `json:"aggregateType"`
	AggregateID   id.ID  `json:"aggregateId"`
	Data          any    `json:"data"`
}

// Notifier stores operator notifications.
type Notifier interface {
	Notify(ctx context.Context, actor, message string, level Level) error
}

// Publisher emits integration events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByActor(ctx context.Context, actor string, limit int) ([]*Notification, error)
}

// Sink bundles both channels and swallows their failures.
type Sink struct {
	notifier  Notifier
	publisher Publisher
}

// NewSink creates a sink. Either side may be nil.
func NewSink(notifier Notifier, publisher Publisher) *Sink {
	return &Sink{notifier: notifier, publisher: publisher}
}

// Notify forwards to the notifier and logs any failure.
func (s *Sink) Notify(ctx context.Context, actor, message string, level Level) {
	if s == nil || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, actor, message, level); err != nil {
		logger.Warn(ctx, "notification dropped", "level", level, "message", message, "error", err)
	}
}

// Publish forwards to the publisher and logs any failure.
func (s *Sink) Publish(ctx context.Context, evt Event) {
	if s == nil || s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logger.Warn(ctx, "event dropped", "event", evt.Type, "aggregate_id", evt.AggregateID, "error", err)
	}
}

// Service stores notifications through a repository.
type Service struct {
	repo Repository
}

// NewService creates a notification service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Notify implements Notifier.
func (s *Service) Notify(ctx context.Context, actor, message string, level Level) error {
	n := &Notification{
		ID:        id.New(),
		Actor:     actor,
		Message:   message,
		Level:     level,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	logger.Debug(ctx, "notification stored", "actor", actor, "level", level)
	return nil
}

// List returns the most recent notifications for actor.
func (s *Service) List(ctx context.Context, actor string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByActor(ctx, actor, limit)
}
