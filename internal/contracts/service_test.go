package contracts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"expertmarket/marketplace-backend/internal/marketplace"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, contract *Contract) error {
	args := m.Called(ctx, contract)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Contract), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, contract *Contract) error {
	args := m.Called(ctx, contract)
	return args.Error(0)
}

func (m *MockRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Contract, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]Contract), args.Error(1)
}

func (m *MockRepository) HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error) {
	args := m.Called(ctx, projectID)
	return args.Bool(0), args.Error(1)
}

// MockVerifier is a mock expert vetting lookup
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) IsVerified(ctx context.Context, expertID uuid.UUID) (bool, error) {
	args := m.Called(ctx, expertID)
	return args.Bool(0), args.Error(1)
}

func TestCreateContract(t *testing.T) {
	mockRepo := new(MockRepository)
	mockVerifier := new(MockVerifier)
	service := NewService(mockRepo, mockVerifier)
	ctx := context.Background()

	expertID := uuid.New()
	mockVerifier.On("IsVerified", ctx, expertID).Return(true, nil)
	mockRepo.On("Create", ctx, mock.AnythingOfType("*contracts.Contract")).Return(nil)

	contract, err := service.CreateContract(ctx, CreateContractRequest{
		ProjectID: uuid.New(),
		ClientID:  uuid.New(),
		ExpertID:  expertID,
		Terms:     "deliverables and milestones",
		Amount:    100000,
	})

	assert.NoError(t, err)
	assert.Equal(t, StatusPending, contract.Status)
	assert.False(t, contract.Signed())
	mockRepo.AssertExpectations(t)
}

func TestCreateContractUnverifiedExpert(t *testing.T) {
	mockRepo := new(MockRepository)
	mockVerifier := new(MockVerifier)
	service := NewService(mockRepo, mockVerifier)
	ctx := context.Background()

	expertID := uuid.New()
	mockVerifier.On("IsVerified", ctx, expertID).Return(false, nil)

	_, err := service.CreateContract(ctx, CreateContractRequest{
		ProjectID: uuid.New(),
		ClientID:  uuid.New(),
		ExpertID:  expertID,
		Amount:    100000,
	})

	assert.True(t, marketplace.IsKind(err, marketplace.KindExpertNotVerified))
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSignContract(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, new(MockVerifier))
	ctx := context.Background()

	clientID := uuid.New()
	contract := &Contract{
		ID:       uuid.New(),
		ClientID: clientID,
		ExpertID: uuid.New(),
		Status:   StatusPending,
	}

	mockRepo.On("GetByID", ctx, contract.ID).Return(contract, nil)
	mockRepo.On("Update", ctx, mock.MatchedBy(func(c *Contract) bool {
		return c.Status == StatusSigned && c.SignedAt != nil && len(c.SignatureMetadata) > 0
	})).Return(nil)

	signed, err := service.SignContract(ctx, contract.ID, clientID, SignatureMetadata{
		IPAddress: "203.0.113.9",
		UserAgent: "test-agent",
		Consent:   true,
		ConsentAt: time.Now(),
	})

	assert.NoError(t, err)
	assert.True(t, signed.Signed())

	var meta SignatureMetadata
	assert.NoError(t, json.Unmarshal(signed.SignatureMetadata, &meta))
	assert.Equal(t, clientID, meta.SignerID)
	assert.Equal(t, "203.0.113.9", meta.IPAddress)
	assert.True(t, meta.Consent)
}

func TestSignContractForbiddenForThirdParty(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, new(MockVerifier))
	ctx := context.Background()

	contract := &Contract{ID: uuid.New(), ClientID: uuid.New(), ExpertID: uuid.New(), Status: StatusPending}
	mockRepo.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := service.SignContract(ctx, contract.ID, uuid.New(), SignatureMetadata{Consent: true})

	assert.True(t, marketplace.IsKind(err, marketplace.KindForbidden))
}

func TestSignContractTwice(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, new(MockVerifier))
	ctx := context.Background()

	clientID := uuid.New()
	signedAt := time.Now().Add(-time.Hour)
	contract := &Contract{
		ID:       uuid.New(),
		ClientID: clientID,
		ExpertID: uuid.New(),
		Status:   StatusSigned,
		SignedAt: &signedAt,
	}
	mockRepo.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := service.SignContract(ctx, contract.ID, clientID, SignatureMetadata{Consent: true})

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestSignContractWithoutConsent(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, new(MockVerifier))
	ctx := context.Background()

	clientID := uuid.New()
	contract := &Contract{ID: uuid.New(), ClientID: clientID, ExpertID: uuid.New(), Status: StatusPending}
	mockRepo.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := service.SignContract(ctx, contract.ID, clientID, SignatureMetadata{Consent: false})

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
}

func TestUpdateContractStatusRejectsUnsignedSigned(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, new(MockVerifier))
	ctx := context.Background()

	contract := &Contract{ID: uuid.New(), Status: StatusPending}
	mockRepo.On("GetByID", ctx, contract.ID).Return(contract, nil)

	_, err := service.UpdateContractStatus(ctx, contract.ID, StatusSigned)

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
}

func TestUpdateContractStatusUnknown(t *testing.T) {
	service := NewService(new(MockRepository), new(MockVerifier))

	_, err := service.UpdateContractStatus(context.Background(), uuid.New(), Status("frozen"))

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
}
