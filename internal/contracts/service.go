package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/internal/vetting"
	"expertmarket/marketplace-backend/pkg/money"
)

// Requests

type CreateContractRequest struct {
	ProjectID uuid.UUID   `json:"project_id"`
	ClientID  uuid.UUID   `json:"client_id"`
	ExpertID  uuid.UUID   `json:"expert_id"`
	Terms     string      `json:"terms"`
	Amount    money.Cents `json:"amount"`
}

// Service interface
type Service interface {
	CreateContract(ctx context.Context, req CreateContractRequest) (*Contract, error)
	GetContract(ctx context.Context, id uuid.UUID) (*Contract, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Contract, error)
	SignContract(ctx context.Context, contractID, actorID uuid.UUID, meta SignatureMetadata) (*Contract, error)
	UpdateContractStatus(ctx context.Context, contractID uuid.UUID, status Status) (*Contract, error)
	HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error)
}

type contractService struct {
	repo     Repository
	verifier vetting.Verifier
}

// NewService creates the contract lifecycle service
func NewService(repo Repository, verifier vetting.Verifier) Service {
	return &contractService{repo: repo, verifier: verifier}
}

func (s *contractService) CreateContract(ctx context.Context, req CreateContractRequest) (*Contract, error) {
	if req.Amount <= 0 {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "contract amount must be positive")
	}

	verified, err := s.verifier.IsVerified(ctx, req.ExpertID)
	if err != nil {
		return nil, fmt.Errorf("vetting lookup failed: %w", err)
	}
	if !verified {
		return nil, marketplace.NewError(marketplace.KindExpertNotVerified,
			"expert %s has not passed vetting", req.ExpertID)
	}

	contract := &Contract{
		ProjectID: req.ProjectID,
		ClientID:  req.ClientID,
		ExpertID:  req.ExpertID,
		Terms:     req.Terms,
		Amount:    req.Amount,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *contractService) GetContract(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *contractService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Contract, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// SignContract stamps the signature. The metadata is a compliance record:
// once SignedAt is set it is never replaced.
func (s *contractService) SignContract(ctx context.Context, contractID, actorID uuid.UUID, meta SignatureMetadata) (*Contract, error) {
	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if actorID != contract.ClientID && actorID != contract.ExpertID {
		return nil, marketplace.NewError(marketplace.KindForbidden,
			"only the contract's client or expert can sign")
	}
	if contract.Signed() {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"contract %s is already signed", contractID)
	}
	if contract.Status != StatusPending {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"contract %s is %s, only pending contracts can be signed", contractID, contract.Status)
	}
	if !meta.Consent {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "signature requires explicit consent")
	}

	meta.SignerID = actorID
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signature metadata: %w", err)
	}

	now := time.Now()
	contract.Status = StatusSigned
	contract.SignedAt = &now
	contract.SignatureMetadata = raw
	contract.UpdatedAt = now
	if err := s.repo.Update(ctx, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *contractService) UpdateContractStatus(ctx context.Context, contractID uuid.UUID, status Status) (*Contract, error) {
	if !ValidStatus(status) {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "unknown contract status %q", status)
	}

	contract, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if status == StatusSigned && !contract.Signed() {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"contract %s cannot be marked signed without a signature", contractID)
	}

	contract.Status = status
	contract.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *contractService) HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error) {
	return s.repo.HasSignedOrActive(ctx, projectID)
}
