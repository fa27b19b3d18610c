package bids

import (
	"time"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/pkg/money"
)

// Status is the bid lifecycle status. Terminal statuses (accepted, rejected,
// withdrawn) are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Bid is an expert's priced, timed proposal on a project. An expert holds at
// most one active (pending or accepted) bid per project, and at most one bid
// per project ever becomes accepted.
type Bid struct {
	ID           uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID    uuid.UUID   `gorm:"type:uuid;not null;index:idx_bids_project_expert" json:"project_id"`
	ExpertID     uuid.UUID   `gorm:"type:uuid;not null;index:idx_bids_project_expert" json:"expert_id"`
	Amount       money.Cents `gorm:"not null" json:"amount"`
	TimelineDays int         `json:"timeline_days"`
	CoverLetter  string      `gorm:"type:text" json:"cover_letter"`
	Status       Status      `gorm:"not null;default:'pending';index" json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AcceptResult reports the outcome of an acceptance for post-commit
// notification fan-out.
type AcceptResult struct {
	Bid               *Bid
	RejectedExpertIDs []uuid.UUID
}
