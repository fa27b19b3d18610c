package vetting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VettingStatus is the review state of an expert profile
type VettingStatus string

const (
	StatusPending  VettingStatus = "pending"
	StatusVerified VettingStatus = "verified"
	StatusRejected VettingStatus = "rejected"
)

// ExpertProfile holds the platform-review state for an expert
type ExpertProfile struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	DisplayName   string        `json:"display_name"`
	VettingStatus VettingStatus `gorm:"not null;default:'pending'" json:"vetting_status"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Verifier answers the read-only "is this expert verified" query consumed
// before contract creation.
type Verifier interface {
	IsVerified(ctx context.Context, expertID uuid.UUID) (bool, error)
}

type gormVerifier struct {
	db *gorm.DB
}

// NewVerifier creates a Verifier backed by the expert profile table
func NewVerifier(db *gorm.DB) Verifier {
	return &gormVerifier{db: db}
}

func (v *gormVerifier) IsVerified(ctx context.Context, expertID uuid.UUID) (bool, error) {
	var profile ExpertProfile
	err := v.db.WithContext(ctx).First(&profile, "user_id = ?", expertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.VettingStatus == StatusVerified, nil
}
