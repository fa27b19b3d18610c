package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"expertmarket/marketplace-backend/internal/marketplace"
)

// UserContact stores the delivery addresses synced from the identity service.
type UserContact struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type gormResolver struct {
	db *gorm.DB
}

// NewResolver creates a Resolver backed by the user contact table.
func NewResolver(db *gorm.DB) Resolver {
	return &gormResolver{db: db}
}

func (r *gormResolver) EmailFor(ctx context.Context, userID uuid.UUID) (string, error) {
	contact, err := r.lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	if contact.Email == "" {
		return "", marketplace.NewError(marketplace.KindNotFound, "user %s has no email on file", userID)
	}
	return contact.Email, nil
}

func (r *gormResolver) PhoneFor(ctx context.Context, userID uuid.UUID) (string, error) {
	contact, err := r.lookup(ctx, userID)
	if err != nil {
		return "", err
	}
	if contact.Phone == "" {
		return "", marketplace.NewError(marketplace.KindNotFound, "user %s has no phone on file", userID)
	}
	return contact.Phone, nil
}

func (r *gormResolver) lookup(ctx context.Context, userID uuid.UUID) (*UserContact, error) {
	var contact UserContact
	if err := r.db.WithContext(ctx).First(&contact, "user_id = ?", userID).Error; err != nil {
		return nil, marketplace.WrapError(marketplace.KindNotFound, err, "no contact record for user %s", userID)
	}
	return &contact, nil
}
