package bids

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/internal/projects"
)

// Repository handles all database operations for bids. The bid ledger shares
// the transactional store with projects: acceptance updates the project row
// and appends its audit record in the same unit of work.
type Repository interface {
	Create(ctx context.Context, bid *Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bid, error)
	Update(ctx context.Context, bid *Bid) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Bid, error)
	HasActiveBid(ctx context.Context, projectID, expertID uuid.UUID) (bool, error)
	CountAccepted(ctx context.Context, projectID uuid.UUID) (int64, error)

	GetProject(ctx context.Context, projectID uuid.UUID) (*projects.Project, error)
	GetProjectForUpdate(ctx context.Context, projectID uuid.UUID) (*projects.Project, error)
	UpdateProject(ctx context.Context, project *projects.Project) error
	AppendProjectTransition(ctx context.Context, record *projects.StateTransition) error

	// RejectOtherPending marks every pending bid on the project except
	// acceptedBidID as rejected and returns the experts whose bids were
	// rejected.
	RejectOtherPending(ctx context.Context, projectID, acceptedBidID uuid.UUID) ([]uuid.UUID, error)

	InTransaction(ctx context.Context, fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a bid repository backed by GORM
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, bid *Bid) error {
	err := r.db.WithContext(ctx).Create(bid).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// the partial unique index on active bids fired
		return marketplace.NewError(marketplace.KindDuplicateBid,
			"expert %s already has an active bid on project %s", bid.ExpertID, bid.ProjectID)
	}
	return err
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Bid, error) {
	var bid Bid
	err := r.db.WithContext(ctx).First(&bid, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "bid %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *gormRepository) Update(ctx context.Context, bid *Bid) error {
	return r.db.WithContext(ctx).Save(bid).Error
}

func (r *gormRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Bid, error) {
	var list []Bid
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) HasActiveBid(ctx context.Context, projectID, expertID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Bid{}).
		Where("project_id = ? AND expert_id = ? AND status IN ?", projectID, expertID,
			[]Status{StatusPending, StatusAccepted}).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) CountAccepted(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Bid{}).
		Where("project_id = ? AND status = ?", projectID, StatusAccepted).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) GetProject(ctx context.Context, projectID uuid.UUID) (*projects.Project, error) {
	var project projects.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "project %s not found", projectID)
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) GetProjectForUpdate(ctx context.Context, projectID uuid.UUID) (*projects.Project, error) {
	var project projects.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "project %s not found", projectID)
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) UpdateProject(ctx context.Context, project *projects.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

func (r *gormRepository) AppendProjectTransition(ctx context.Context, record *projects.StateTransition) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) RejectOtherPending(ctx context.Context, projectID, acceptedBidID uuid.UUID) ([]uuid.UUID, error) {
	var losers []Bid
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND id <> ? AND status = ?", projectID, acceptedBidID, StatusPending).
		Find(&losers).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expertIDs := make([]uuid.UUID, 0, len(losers))
	for _, b := range losers {
		expertIDs = append(expertIDs, b.ExpertID)
	}
	if len(losers) > 0 {
		err = r.db.WithContext(ctx).Model(&Bid{}).
			Where("project_id = ? AND id <> ? AND status = ?", projectID, acceptedBidID, StatusPending).
			Updates(map[string]interface{}{"status": StatusRejected, "updated_at": now}).Error
		if err != nil {
			return nil, err
		}
	}
	return expertIDs, nil
}

func (r *gormRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
