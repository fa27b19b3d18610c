package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/bids"
	"expertmarket/marketplace-backend/internal/contracts"
	"expertmarket/marketplace-backend/internal/escrow"
	"expertmarket/marketplace-backend/internal/notifications"
	"expertmarket/marketplace-backend/internal/projects"
	"expertmarket/marketplace-backend/pkg/money"
)

// Orchestrator sequences calls across the settlement components and fires
// best-effort notifications after each successful commit. It owns all
// cross-component coordination; the components never call each other.
type Orchestrator struct {
	projects  projects.Service
	bids      bids.Service
	contracts contracts.Service
	escrow    escrow.Service
	notifier  notifications.Notifier
	logger    *zap.Logger
}

// New creates the orchestrator with its collaborators injected explicitly.
func New(
	projectsSvc projects.Service,
	bidsSvc bids.Service,
	contractsSvc contracts.Service,
	escrowSvc escrow.Service,
	notifier notifications.Notifier,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		projects:  projectsSvc,
		bids:      bidsSvc,
		contracts: contractsSvc,
		escrow:    escrowSvc,
		notifier:  notifier,
		logger:    logger,
	}
}

// notify delivers best-effort: a failure is logged and never surfaced.
func (o *Orchestrator) notify(ctx context.Context, userID uuid.UUID, eventType string, payload map[string]interface{}) {
	if err := o.notifier.Notify(ctx, userID, eventType, payload); err != nil {
		o.logger.Warn("notification failed",
			zap.String("event", eventType),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

// Projects

func (o *Orchestrator) CreateProject(ctx context.Context, req projects.CreateProjectRequest) (*projects.Project, error) {
	return o.projects.CreateProject(ctx, req)
}

func (o *Orchestrator) GetProject(ctx context.Context, id uuid.UUID) (*projects.Project, error) {
	return o.projects.GetProject(ctx, id)
}

func (o *Orchestrator) TransitionProject(ctx context.Context, projectID uuid.UUID, toState projects.State, actorID *uuid.UUID, reason string) (*projects.Project, error) {
	project, err := o.projects.Transition(ctx, projectID, toState, actorID, reason)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, project.OwnerID, notifications.EventProjectStateChanged, map[string]interface{}{
		"project_id": project.ID.String(),
		"state":      string(project.State),
		"reason":     reason,
	})
	return project, nil
}

func (o *Orchestrator) InviteExpert(ctx context.Context, projectID, expertID, actorID uuid.UUID, ttl time.Duration) (*projects.Project, error) {
	project, err := o.projects.InviteExpert(ctx, projectID, expertID, actorID, ttl)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, expertID, notifications.EventExpertInvited, map[string]interface{}{
		"project_id": project.ID.String(),
		"title":      project.Title,
	})
	return project, nil
}

func (o *Orchestrator) RespondToInvite(ctx context.Context, projectID, expertID uuid.UUID, accept bool) (*projects.Project, error) {
	project, err := o.projects.RespondToInvite(ctx, projectID, expertID, accept)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, project.OwnerID, notifications.EventProjectStateChanged, map[string]interface{}{
		"project_id":      project.ID.String(),
		"expert_status":   string(project.ExpertStatus),
		"invite_accepted": accept,
	})
	return project, nil
}

// ExpireInvites is invoked by the periodic sweeper; it behaves exactly like
// any other caller of the state machine.
func (o *Orchestrator) ExpireInvites(ctx context.Context, now time.Time) (int, error) {
	return o.projects.ExpireInvites(ctx, now)
}

func (o *Orchestrator) ListTransitions(ctx context.Context, projectID uuid.UUID) ([]projects.StateTransition, error) {
	return o.projects.ListTransitions(ctx, projectID)
}

// Bids

func (o *Orchestrator) SubmitBid(ctx context.Context, req bids.SubmitBidRequest) (*bids.Bid, error) {
	bid, err := o.bids.SubmitBid(ctx, req)
	if err != nil {
		return nil, err
	}
	if project, perr := o.projects.GetProject(ctx, bid.ProjectID); perr == nil {
		o.notify(ctx, project.OwnerID, notifications.EventBidSubmitted, map[string]interface{}{
			"project_id": bid.ProjectID.String(),
			"bid_id":     bid.ID.String(),
			"amount":     bid.Amount.String(),
		})
	}
	return bid, nil
}

func (o *Orchestrator) AcceptBid(ctx context.Context, projectID, bidID, actorID uuid.UUID) (*bids.AcceptResult, error) {
	result, err := o.bids.AcceptBid(ctx, projectID, bidID, actorID)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, result.Bid.ExpertID, notifications.EventBidAccepted, map[string]interface{}{
		"project_id": projectID.String(),
		"bid_id":     result.Bid.ID.String(),
	})
	for _, expertID := range result.RejectedExpertIDs {
		o.notify(ctx, expertID, notifications.EventBidRejected, map[string]interface{}{
			"project_id": projectID.String(),
		})
	}
	return result, nil
}

func (o *Orchestrator) WithdrawBid(ctx context.Context, bidID, actorID uuid.UUID) (*bids.Bid, error) {
	bid, err := o.bids.WithdrawBid(ctx, bidID, actorID)
	if err != nil {
		return nil, err
	}
	if project, perr := o.projects.GetProject(ctx, bid.ProjectID); perr == nil {
		o.notify(ctx, project.OwnerID, notifications.EventBidWithdrawn, map[string]interface{}{
			"project_id": bid.ProjectID.String(),
			"bid_id":     bid.ID.String(),
		})
	}
	return bid, nil
}

func (o *Orchestrator) UpdateBid(ctx context.Context, bidID, actorID uuid.UUID, req bids.UpdateBidRequest) (*bids.Bid, error) {
	return o.bids.UpdateBid(ctx, bidID, actorID, req)
}

func (o *Orchestrator) ListBids(ctx context.Context, projectID uuid.UUID) ([]bids.Bid, error) {
	return o.bids.ListBids(ctx, projectID)
}

// Contracts

func (o *Orchestrator) CreateContract(ctx context.Context, req contracts.CreateContractRequest) (*contracts.Contract, error) {
	return o.contracts.CreateContract(ctx, req)
}

// SignContract captures the signature and, once both the signature is
// stored and the project can advance, moves the project toward active
// collaboration. The project transition stays out of the contract manager
// to avoid circular coupling.
func (o *Orchestrator) SignContract(ctx context.Context, contractID, actorID uuid.UUID, meta contracts.SignatureMetadata) (*contracts.Contract, error) {
	contract, err := o.contracts.SignContract(ctx, contractID, actorID, meta)
	if err != nil {
		return nil, err
	}

	project, err := o.projects.GetProject(ctx, contract.ProjectID)
	if err == nil && project.State == projects.StateAccepted {
		if _, terr := o.projects.Transition(ctx, project.ID, projects.StateActive, &actorID, "contract signed"); terr != nil {
			o.logger.Warn("project did not advance after signing",
				zap.String("project_id", project.ID.String()), zap.Error(terr))
		}
	}

	counterparty := contract.ClientID
	if actorID == contract.ClientID {
		counterparty = contract.ExpertID
	}
	o.notify(ctx, counterparty, notifications.EventContractSigned, map[string]interface{}{
		"contract_id": contract.ID.String(),
		"project_id":  contract.ProjectID.String(),
	})
	return contract, nil
}

func (o *Orchestrator) UpdateContractStatus(ctx context.Context, contractID uuid.UUID, status contracts.Status) (*contracts.Contract, error) {
	return o.contracts.UpdateContractStatus(ctx, contractID, status)
}

func (o *Orchestrator) GetContract(ctx context.Context, id uuid.UUID) (*contracts.Contract, error) {
	return o.contracts.GetContract(ctx, id)
}

func (o *Orchestrator) ListContracts(ctx context.Context, projectID uuid.UUID) ([]contracts.Contract, error) {
	return o.contracts.ListByProject(ctx, projectID)
}

// Escrow

func (o *Orchestrator) CreateEscrowAccount(ctx context.Context, projectID, actorID uuid.UUID, feePercent float64) (*escrow.Account, error) {
	return o.escrow.CreateAccount(ctx, projectID, actorID, feePercent)
}

func (o *Orchestrator) FundEscrow(ctx context.Context, projectID uuid.UUID, amount money.Cents, actorID uuid.UUID) (*escrow.FundResult, error) {
	result, err := o.escrow.FundEscrow(ctx, projectID, amount, actorID)
	if err != nil {
		return nil, err
	}
	if project, perr := o.projects.GetProject(ctx, projectID); perr == nil && project.SelectedExpertID != nil {
		o.notify(ctx, *project.SelectedExpertID, notifications.EventEscrowFunded, map[string]interface{}{
			"project_id": projectID.String(),
			"amount":     amount.String(),
		})
	}
	return result, nil
}

func (o *Orchestrator) RequestRelease(ctx context.Context, accountID uuid.UUID, amount money.Cents, milestoneID *uuid.UUID, requestedBy uuid.UUID) (*escrow.PaymentRelease, error) {
	return o.escrow.RequestRelease(ctx, accountID, amount, milestoneID, requestedBy)
}

func (o *Orchestrator) ApproveRelease(ctx context.Context, releaseID, approverID uuid.UUID) (*escrow.ReleaseResult, error) {
	result, err := o.escrow.ApproveRelease(ctx, releaseID, approverID)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, result.ExpertID, notifications.EventFundsReleased, map[string]interface{}{
		"release_id": result.Release.ID.String(),
		"amount":     result.Release.Amount.String(),
		"receives":   result.Release.ExpertReceives.String(),
		"invoice":    result.Invoice.Number,
	})
	return result, nil
}

func (o *Orchestrator) GetEscrowAccount(ctx context.Context, projectID uuid.UUID) (*escrow.Account, error) {
	return o.escrow.GetAccountByProject(ctx, projectID)
}

func (o *Orchestrator) GetEscrowAccountByID(ctx context.Context, accountID uuid.UUID) (*escrow.Account, error) {
	return o.escrow.GetAccount(ctx, accountID)
}

func (o *Orchestrator) ListEscrowTransactions(ctx context.Context, accountID uuid.UUID) ([]escrow.Transaction, error) {
	return o.escrow.ListTransactions(ctx, accountID)
}

func (o *Orchestrator) ListReleases(ctx context.Context, accountID uuid.UUID) ([]escrow.PaymentRelease, error) {
	return o.escrow.ListReleases(ctx, accountID)
}

func (o *Orchestrator) RefundEscrow(ctx context.Context, projectID, actorID uuid.UUID) (*escrow.FundResult, error) {
	result, err := o.escrow.RefundEscrow(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, result.Account.ClientID, notifications.EventEscrowRefunded, map[string]interface{}{
		"project_id": projectID.String(),
		"amount":     result.Transaction.Amount.String(),
	})
	return result, nil
}
