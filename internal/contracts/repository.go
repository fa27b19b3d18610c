package contracts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"expertmarket/marketplace-backend/internal/marketplace"
)

// Repository handles all database operations for contracts
type Repository interface {
	Create(ctx context.Context, contract *Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)
	Update(ctx context.Context, contract *Contract) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Contract, error)
	HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a contract repository backed by GORM
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, contract *Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Contract, error) {
	var contract Contract
	err := r.db.WithContext(ctx).First(&contract, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "contract %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *gormRepository) Update(ctx context.Context, contract *Contract) error {
	return r.db.WithContext(ctx).Save(contract).Error
}

func (r *gormRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Contract, error) {
	var list []Contract
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Contract{}).
		Where("project_id = ? AND status IN ?", projectID, []Status{StatusSigned, StatusActive}).
		Count(&count).Error
	return count > 0, err
}
