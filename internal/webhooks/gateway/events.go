package gatewaywebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/db/models"
)

// EventRepository stores raw deliveries for audit replay.
type EventRepository interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time, processingErr error) error
	MarkRejected(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed stamps processed_at on success; failures keep processed_at
// empty so a redelivery is handled again.
func (r *eventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time, processingErr error) error {
	updates := map[string]any{"processed_at": at, "processing_error": nil}
	if processingErr != nil {
		updates = map[string]any{"processed_at": nil, "processing_error": processingErr.Error()}
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkRejected closes an event that can never be applied: processed_at is
// stamped so redeliveries short-circuit, and the reason is kept for review.
func (r *eventRepository) MarkRejected(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": at, "processing_error": reason}).Error
}
