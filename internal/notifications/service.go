package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier is the fire-and-forget notification port consumed by the
// workflow orchestrator. Failures never affect ledger consistency.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error
}

// Service records every notify() call and fans it out over the configured
// channels.
type Service struct {
	db       *gorm.DB
	channels []Channel
	logger   *zap.Logger
}

// NewService creates a notification service. Channels may be empty; the
// notification record is written regardless.
func NewService(db *gorm.DB, logger *zap.Logger, channels ...Channel) *Service {
	return &Service{db: db, channels: channels, logger: logger}
}

// Notify records the notification and attempts delivery on every channel.
// Channel failures are logged per channel; only the record write itself can
// return an error, and callers treat even that as best-effort.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	notification := &SentNotification{
		UserID:    userID,
		EventType: eventType,
		Payload:   raw,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return err
	}

	anySent := false
	for _, channel := range s.channels {
		entry := &DeliveryLog{
			NotificationID: notification.ID,
			Channel:        channel.Name(),
			Status:         StatusSent,
			CreatedAt:      time.Now(),
		}
		if err := channel.Send(ctx, userID, eventType, payload); err != nil {
			entry.Status = StatusFailed
			entry.ErrorMessage = err.Error()
			s.logger.Warn("notification delivery failed",
				zap.String("channel", channel.Name()),
				zap.String("event", eventType),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		} else {
			anySent = true
		}
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			s.logger.Warn("failed to record delivery attempt", zap.Error(err))
		}
	}

	if anySent || len(s.channels) == 0 {
		notification.Status = StatusSent
	} else {
		notification.Status = StatusFailed
	}
	if err := s.db.WithContext(ctx).Save(notification).Error; err != nil {
		s.logger.Warn("failed to update notification status", zap.Error(err))
	}
	return nil
}

// NopNotifier discards notifications; used in tests and workers that do not
// fan out.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) error {
	return nil
}
