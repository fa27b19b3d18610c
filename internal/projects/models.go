package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"expertmarket/marketplace-backend/pkg/money"
)

// State is the project lifecycle state
type State string

const (
	StateDraft        State = "draft"
	StateSubmitted    State = "submitted"
	StateExpertReview State = "expert_review"
	StateAccepted     State = "accepted"
	StateActive       State = "active"
	StateCompleted    State = "completed"
	StateCancelled    State = "cancelled"
	StateRejected     State = "rejected"
)

// ExpertStatus tracks the direct-invite flow on a project
type ExpertStatus string

const (
	ExpertStatusNone     ExpertStatus = "none"
	ExpertStatusPending  ExpertStatus = "pending"
	ExpertStatusAccepted ExpertStatus = "accepted"
	ExpertStatusRejected ExpertStatus = "rejected"
)

// Project represents a client project on the marketplace
type Project struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title            string         `gorm:"not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	BudgetMin        money.Cents    `json:"budget_min"`
	BudgetMax        money.Cents    `json:"budget_max"`
	State            State          `gorm:"not null;default:'draft';index" json:"state"`
	RejectionReason  string         `gorm:"type:text" json:"rejection_reason,omitempty"`
	ExpertStatus     ExpertStatus   `gorm:"not null;default:'none'" json:"expert_status"`
	InvitedExpertID  *uuid.UUID     `gorm:"type:uuid" json:"invited_expert_id,omitempty"`
	InviteExpiresAt  *time.Time     `json:"invite_expires_at,omitempty"`
	SelectedExpertID *uuid.UUID     `gorm:"type:uuid" json:"selected_expert_id,omitempty"`
	OpenForBidding   bool           `gorm:"not null;default:false" json:"open_for_bidding"`
	BiddingDeadline  *time.Time     `json:"bidding_deadline,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// StateTransition is the append-only audit record for project state changes.
// Rows are never updated or deleted.
type StateTransition struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	FromState   State          `gorm:"not null" json:"from_state"`
	ToState     State          `gorm:"not null" json:"to_state"`
	TriggeredBy *uuid.UUID     `gorm:"type:uuid" json:"triggered_by,omitempty"` // nil for system actions
	Reason      string         `gorm:"type:text" json:"reason,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Project     Project        `gorm:"foreignKey:ProjectID" json:"-"`
}

// TransitionTable is the directed transition graph for project states.
// Terminal states map to empty successor sets; rejected allows resubmission.
func TransitionTable() map[string][]string {
	return map[string][]string{
		string(StateDraft):        {string(StateSubmitted), string(StateCancelled)},
		string(StateSubmitted):    {string(StateExpertReview), string(StateCancelled)},
		string(StateExpertReview): {string(StateAccepted), string(StateRejected), string(StateCancelled)},
		string(StateAccepted):     {string(StateActive), string(StateCancelled)},
		string(StateActive):       {string(StateCompleted), string(StateCancelled)},
		string(StateCompleted):    {},
		string(StateCancelled):    {},
		string(StateRejected):     {string(StateDraft)},
	}
}
