package contracts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"expertmarket/marketplace-backend/pkg/money"
)

// Status is the contract lifecycle status
type Status string

const (
	StatusPending   Status = "pending"
	StatusSigned    Status = "signed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s is one of the five recognized statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusSigned, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// SignatureMetadata is the compliance record captured at signing time. Once
// stored it is never overwritten.
type SignatureMetadata struct {
	SignerID  uuid.UUID `json:"signer_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Consent   bool      `json:"consent"`
	ConsentAt time.Time `json:"consent_at"`
}

// Contract ties a client and an expert to agreed terms on a project
type Contract struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	ClientID          uuid.UUID      `gorm:"type:uuid;not null" json:"client_id"`
	ExpertID          uuid.UUID      `gorm:"type:uuid;not null" json:"expert_id"`
	Terms             string         `gorm:"type:text" json:"terms"`
	Amount            money.Cents    `gorm:"not null" json:"amount"`
	Status            Status         `gorm:"not null;default:'pending'" json:"status"`
	SignatureMetadata datatypes.JSON `json:"signature_metadata,omitempty"`
	SignedAt          *time.Time     `json:"signed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Signed reports whether the contract has reached signed or a later status.
func (c *Contract) Signed() bool {
	return c.SignedAt != nil
}
