package projects

import (
	"context"
	"time"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/pkg/money"
)

// Requests

type CreateProjectRequest struct {
	OwnerID         uuid.UUID   `json:"owner_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	BudgetMin       money.Cents `json:"budget_min"`
	BudgetMax       money.Cents `json:"budget_max"`
	OpenForBidding  bool        `json:"open_for_bidding"`
	BiddingDeadline *time.Time  `json:"bidding_deadline"`
}

// Service interface
type Service interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	Transition(ctx context.Context, projectID uuid.UUID, toState State, actorID *uuid.UUID, reason string) (*Project, error)
	ListTransitions(ctx context.Context, projectID uuid.UUID) ([]StateTransition, error)

	InviteExpert(ctx context.Context, projectID, expertID, actorID uuid.UUID, ttl time.Duration) (*Project, error)
	RespondToInvite(ctx context.Context, projectID, expertID uuid.UUID, accept bool) (*Project, error)
	ExpireInvites(ctx context.Context, now time.Time) (int, error)
}

type projectService struct {
	repo         Repository
	stateMachine *StateMachineAdapter
}

// NewService creates the project lifecycle service
func NewService(repo Repository) Service {
	return &projectService{
		repo:         repo,
		stateMachine: NewStateMachineAdapter(),
	}
}

func (s *projectService) CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	if req.Title == "" {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "title is required")
	}
	if req.OwnerID == uuid.Nil {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "owner_id is required")
	}
	if req.BudgetMax > 0 && req.BudgetMin > req.BudgetMax {
		return nil, marketplace.NewError(marketplace.KindBudgetOutOfRange, "budget_min %s exceeds budget_max %s", req.BudgetMin, req.BudgetMax)
	}

	project := &Project{
		OwnerID:         req.OwnerID,
		Title:           req.Title,
		Description:     req.Description,
		BudgetMin:       req.BudgetMin,
		BudgetMax:       req.BudgetMax,
		State:           StateDraft,
		ExpertStatus:    ExpertStatusNone,
		OpenForBidding:  req.OpenForBidding,
		BiddingDeadline: req.BiddingDeadline,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *projectService) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// Transition applies a lifecycle transition. Same-state calls are an
// idempotent no-op. The state write and the audit append commit together;
// a concurrent transition on the same project surfaces as ConflictRetryable.
func (s *projectService) Transition(ctx context.Context, projectID uuid.UUID, toState State, actorID *uuid.UUID, reason string) (*Project, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if project.State == toState {
		return project, nil
	}
	if !s.stateMachine.CanTransition(project.State, toState) {
		return nil, marketplace.NewError(marketplace.KindInvalidTransition,
			"cannot transition project from %s to %s", project.State, toState)
	}

	expectedFrom := project.State
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		locked, err := tx.GetForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if locked.State != expectedFrom {
			return marketplace.NewError(marketplace.KindConflictRetryable,
				"project state changed concurrently (now %s)", locked.State)
		}

		locked.State = toState
		locked.UpdatedAt = time.Now()
		switch toState {
		case StateRejected:
			locked.RejectionReason = reason
		case StateDraft:
			// resubmission clears the previous rejection
			locked.RejectionReason = ""
		}
		if err := tx.Update(ctx, locked); err != nil {
			return err
		}

		record := &StateTransition{
			ProjectID:   projectID,
			FromState:   expectedFrom,
			ToState:     toState,
			TriggeredBy: actorID,
			Reason:      reason,
			CreatedAt:   time.Now(),
		}
		if err := tx.AppendTransition(ctx, record); err != nil {
			return err
		}

		project = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *projectService) ListTransitions(ctx context.Context, projectID uuid.UUID) ([]StateTransition, error) {
	return s.repo.ListTransitions(ctx, projectID)
}

func (s *projectService) InviteExpert(ctx context.Context, projectID, expertID, actorID uuid.UUID, ttl time.Duration) (*Project, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the project owner can invite an expert")
	}
	if project.ExpertStatus == ExpertStatusPending {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "project already has a pending invite")
	}
	if project.SelectedExpertID != nil {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "project already has a selected expert")
	}

	expiresAt := time.Now().Add(ttl)
	project.ExpertStatus = ExpertStatusPending
	project.InvitedExpertID = &expertID
	project.InviteExpiresAt = &expiresAt
	project.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *projectService) RespondToInvite(ctx context.Context, projectID, expertID uuid.UUID, accept bool) (*Project, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.ExpertStatus != ExpertStatusPending || project.InvitedExpertID == nil {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "project has no pending invite")
	}
	if *project.InvitedExpertID != expertID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "invite was issued to a different expert")
	}

	if accept {
		project.ExpertStatus = ExpertStatusAccepted
		project.SelectedExpertID = &expertID
		project.OpenForBidding = false
	} else {
		project.ExpertStatus = ExpertStatusRejected
		project.InvitedExpertID = nil
		project.InviteExpiresAt = nil
	}
	project.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// ExpireInvites cancels stale pending invites through the normal transition
// path so the audit log records the system actor and reason. Returns the
// number of projects swept.
func (s *projectService) ExpireInvites(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListExpiredInvites(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, project := range expired {
		p := project
		p.ExpertStatus = ExpertStatusNone
		p.InvitedExpertID = nil
		p.InviteExpiresAt = nil
		p.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, &p); err != nil {
			return swept, err
		}
		if _, err := s.Transition(ctx, p.ID, StateCancelled, nil, "invite expired"); err != nil {
			// a concurrent transition already moved the project on; the
			// invite fields are cleared either way
			if !marketplace.Retryable(err) && !marketplace.IsKind(err, marketplace.KindInvalidTransition) {
				return swept, err
			}
			continue
		}
		swept++
	}
	return swept, nil
}
