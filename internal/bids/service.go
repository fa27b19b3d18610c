package bids

import (
	"context"
	"time"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/internal/projects"
	"expertmarket/marketplace-backend/pkg/money"
)

// Requests

type SubmitBidRequest struct {
	ProjectID    uuid.UUID   `json:"project_id"`
	ExpertID     uuid.UUID   `json:"expert_id"`
	Amount       money.Cents `json:"amount"`
	TimelineDays int         `json:"timeline_days"`
	CoverLetter  string      `json:"cover_letter"`
}

type UpdateBidRequest struct {
	Amount       *money.Cents `json:"amount"`
	TimelineDays *int         `json:"timeline_days"`
	CoverLetter  *string      `json:"cover_letter"`
}

// Service interface
type Service interface {
	SubmitBid(ctx context.Context, req SubmitBidRequest) (*Bid, error)
	GetBid(ctx context.Context, id uuid.UUID) (*Bid, error)
	ListBids(ctx context.Context, projectID uuid.UUID) ([]Bid, error)
	AcceptBid(ctx context.Context, projectID, bidID, actorID uuid.UUID) (*AcceptResult, error)
	WithdrawBid(ctx context.Context, bidID, actorID uuid.UUID) (*Bid, error)
	UpdateBid(ctx context.Context, bidID, actorID uuid.UUID, req UpdateBidRequest) (*Bid, error)
}

type bidService struct {
	repo   Repository
	states *projects.StateMachineAdapter
}

// NewService creates the bid ledger service
func NewService(repo Repository) Service {
	return &bidService{repo: repo, states: projects.NewStateMachineAdapter()}
}

func (s *bidService) SubmitBid(ctx context.Context, req SubmitBidRequest) (*Bid, error) {
	if req.Amount <= 0 {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "bid amount must be positive")
	}

	project, err := s.repo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.OpenForBidding {
		return nil, marketplace.NewError(marketplace.KindProjectNotBiddable, "project %s is not open for bidding", project.ID)
	}
	if project.BiddingDeadline != nil && time.Now().After(*project.BiddingDeadline) {
		return nil, marketplace.NewError(marketplace.KindProjectNotBiddable, "bidding deadline for project %s has passed", project.ID)
	}
	if project.BudgetMin > 0 && req.Amount < project.BudgetMin {
		return nil, marketplace.NewError(marketplace.KindBudgetOutOfRange,
			"bid %s is below the project minimum %s", req.Amount, project.BudgetMin)
	}
	if project.BudgetMax > 0 && req.Amount > project.BudgetMax {
		return nil, marketplace.NewError(marketplace.KindBudgetOutOfRange,
			"bid %s exceeds the project maximum %s", req.Amount, project.BudgetMax)
	}

	bid := &Bid{
		ProjectID:    req.ProjectID,
		ExpertID:     req.ExpertID,
		Amount:       req.Amount,
		TimelineDays: req.TimelineDays,
		CoverLetter:  req.CoverLetter,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	// the in-transaction check catches repeats on the same connection;
	// concurrent submissions from the same expert are fenced by the
	// partial unique index on active bids, surfaced as a duplicate by
	// the repository
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		exists, err := tx.HasActiveBid(ctx, req.ProjectID, req.ExpertID)
		if err != nil {
			return err
		}
		if exists {
			return marketplace.NewError(marketplace.KindDuplicateBid,
				"expert %s already has an active bid on project %s", req.ExpertID, req.ProjectID)
		}
		return tx.Create(ctx, bid)
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *bidService) GetBid(ctx context.Context, id uuid.UUID) (*Bid, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *bidService) ListBids(ctx context.Context, projectID uuid.UUID) ([]Bid, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// AcceptBid marks exactly one bid accepted and every other pending bid on
// the project rejected, atomically. The project row lock serializes
// concurrent accept calls: the loser observes the winner's committed state
// and fails without touching anything.
func (s *bidService) AcceptBid(ctx context.Context, projectID, bidID, actorID uuid.UUID) (*AcceptResult, error) {
	bid, err := s.repo.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.ProjectID != projectID {
		return nil, marketplace.NewError(marketplace.KindNotFound, "bid %s does not belong to project %s", bidID, projectID)
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the project owner can accept a bid")
	}

	var result *AcceptResult
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		locked, err := tx.GetProjectForUpdate(ctx, projectID)
		if err != nil {
			return err
		}

		// acceptance activates the project, so the current state must have
		// an activation edge in the transition table
		if locked.State != projects.StateActive && !s.states.CanTransition(locked.State, projects.StateActive) {
			return marketplace.NewError(marketplace.KindInvalidTransition,
				"project %s is %s and cannot be activated by accepting a bid", projectID, locked.State)
		}

		accepted, err := tx.CountAccepted(ctx, projectID)
		if err != nil {
			return err
		}
		if accepted > 0 || locked.SelectedExpertID != nil {
			return marketplace.NewError(marketplace.KindInvalidState,
				"project %s already has an accepted bid", projectID)
		}

		target, err := tx.GetByID(ctx, bidID)
		if err != nil {
			return err
		}
		if target.Status != StatusPending {
			return marketplace.NewError(marketplace.KindInvalidState,
				"bid %s is %s, only pending bids can be accepted", bidID, target.Status)
		}

		now := time.Now()
		target.Status = StatusAccepted
		target.UpdatedAt = now
		if err := tx.Update(ctx, target); err != nil {
			return err
		}

		rejected, err := tx.RejectOtherPending(ctx, projectID, bidID)
		if err != nil {
			return err
		}

		fromState := locked.State
		locked.SelectedExpertID = &target.ExpertID
		locked.OpenForBidding = false
		locked.State = projects.StateActive
		locked.UpdatedAt = now
		if err := tx.UpdateProject(ctx, locked); err != nil {
			return err
		}
		if fromState != projects.StateActive {
			record := &projects.StateTransition{
				ProjectID:   projectID,
				FromState:   fromState,
				ToState:     projects.StateActive,
				TriggeredBy: &actorID,
				Reason:      "bid accepted",
				CreatedAt:   now,
			}
			if err := tx.AppendProjectTransition(ctx, record); err != nil {
				return err
			}
		}

		result = &AcceptResult{Bid: target, RejectedExpertIDs: rejected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *bidService) WithdrawBid(ctx context.Context, bidID, actorID uuid.UUID) (*Bid, error) {
	bid, err := s.repo.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.ExpertID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the bidding expert can withdraw a bid")
	}
	if bid.Status != StatusPending {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"bid %s is %s, only pending bids can be withdrawn", bidID, bid.Status)
	}

	bid.Status = StatusWithdrawn
	bid.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *bidService) UpdateBid(ctx context.Context, bidID, actorID uuid.UUID, req UpdateBidRequest) (*Bid, error) {
	bid, err := s.repo.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.ExpertID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the bidding expert can update a bid")
	}
	if bid.Status != StatusPending {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"bid %s is %s, only pending bids can be updated", bidID, bid.Status)
	}

	if req.Amount != nil {
		if *req.Amount <= 0 {
			return nil, marketplace.NewError(marketplace.KindInvalidState, "bid amount must be positive")
		}
		project, err := s.repo.GetProject(ctx, bid.ProjectID)
		if err != nil {
			return nil, err
		}
		if project.BudgetMin > 0 && *req.Amount < project.BudgetMin {
			return nil, marketplace.NewError(marketplace.KindBudgetOutOfRange,
				"bid %s is below the project minimum %s", *req.Amount, project.BudgetMin)
		}
		if project.BudgetMax > 0 && *req.Amount > project.BudgetMax {
			return nil, marketplace.NewError(marketplace.KindBudgetOutOfRange,
				"bid %s exceeds the project maximum %s", *req.Amount, project.BudgetMax)
		}
		bid.Amount = *req.Amount
	}
	if req.TimelineDays != nil {
		bid.TimelineDays = *req.TimelineDays
	}
	if req.CoverLetter != nil {
		bid.CoverLetter = *req.CoverLetter
	}

	bid.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, bid); err != nil {
		return nil, err
	}
	return bid, nil
}
