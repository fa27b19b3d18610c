package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event types emitted by the settlement core
const (
	EventBidSubmitted        = "bid_submitted"
	EventBidAccepted         = "bid_accepted"
	EventBidRejected         = "bid_rejected"
	EventBidWithdrawn        = "bid_withdrawn"
	EventInterviewScheduled  = "interview_scheduled"
	EventContractSigned      = "contract_signed"
	EventEscrowFunded        = "escrow_funded"
	EventFundsReleased       = "funds_released"
	EventProjectStateChanged = "project_state_changed"
	EventExpertInvited       = "expert_invited"
	EventEscrowRefunded      = "escrow_refunded"
)

// Delivery channels
const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelWebSocket = "websocket"
)

// Delivery statuses
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// SentNotification records every notify() call
type SentNotification struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	EventType string         `gorm:"not null" json:"event_type"`
	Payload   datatypes.JSON `json:"payload"`
	Status    string         `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeliveryLog records each per-channel delivery attempt
type DeliveryLog struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	NotificationID uuid.UUID `gorm:"type:uuid;not null;index" json:"notification_id"`
	Channel        string    `gorm:"not null" json:"channel"`
	Status         string    `gorm:"not null" json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is the wire shape pushed to realtime subscribers
type Message struct {
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}
