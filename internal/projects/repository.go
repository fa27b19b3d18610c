package projects

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expertmarket/marketplace-backend/internal/marketplace"
)

// Repository handles all database operations for projects
type Repository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) error
	AppendTransition(ctx context.Context, record *StateTransition) error
	ListTransitions(ctx context.Context, projectID uuid.UUID) ([]StateTransition, error)
	ListExpiredInvites(ctx context.Context, now time.Time) ([]Project, error)

	// InTransaction runs fn against a repository bound to a single database
	// transaction; fn returning an error rolls everything back.
	InTransaction(ctx context.Context, fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a project repository backed by GORM
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "project %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetForUpdate loads a project under a row lock. Must be called inside
// InTransaction; the lock is held until commit or rollback.
func (r *gormRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "project %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) Update(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

func (r *gormRepository) AppendTransition(ctx context.Context, record *StateTransition) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) ListTransitions(ctx context.Context, projectID uuid.UUID) ([]StateTransition, error) {
	var records []StateTransition
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *gormRepository) ListExpiredInvites(ctx context.Context, now time.Time) ([]Project, error) {
	var projects []Project
	err := r.db.WithContext(ctx).
		Where("expert_status = ? AND invite_expires_at IS NOT NULL AND invite_expires_at < ?", ExpertStatusPending, now).
		Find(&projects).Error
	return projects, err
}

func (r *gormRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
