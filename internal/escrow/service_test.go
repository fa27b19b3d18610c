package escrow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/internal/payments"
	"expertmarket/marketplace-backend/pkg/money"
	"expertmarket/marketplace-backend/pkg/storage"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateAccount(ctx context.Context, account *Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Account), args.Error(1)
}

func (m *MockRepository) GetAccountByProject(ctx context.Context, projectID uuid.UUID) (*Account, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Account), args.Error(1)
}

func (m *MockRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Account), args.Error(1)
}

func (m *MockRepository) UpdateAccount(ctx context.Context, account *Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockRepository) AppendTransaction(ctx context.Context, tx *Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]Transaction), args.Error(1)
}

func (m *MockRepository) SumCompleted(ctx context.Context, accountID uuid.UUID, txType TransactionType) (money.Cents, error) {
	args := m.Called(ctx, accountID, txType)
	return args.Get(0).(money.Cents), args.Error(1)
}

func (m *MockRepository) CreateRelease(ctx context.Context, release *PaymentRelease) error {
	args := m.Called(ctx, release)
	return args.Error(0)
}

func (m *MockRepository) GetReleaseByID(ctx context.Context, id uuid.UUID) (*PaymentRelease, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRelease), args.Error(1)
}

func (m *MockRepository) GetReleaseForUpdate(ctx context.Context, id uuid.UUID) (*PaymentRelease, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRelease), args.Error(1)
}

func (m *MockRepository) UpdateRelease(ctx context.Context, release *PaymentRelease) error {
	args := m.Called(ctx, release)
	return args.Error(0)
}

func (m *MockRepository) ListReleases(ctx context.Context, accountID uuid.UUID) ([]PaymentRelease, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]PaymentRelease), args.Error(1)
}

func (m *MockRepository) CreateInvoice(ctx context.Context, invoice *Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockRepository) UpdateInvoice(ctx context.Context, invoice *Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(m)
}

func passthroughTx(m *MockRepository) {
	m.On("InTransaction", mock.Anything, mock.Anything).Return(nil)
}

// stubProjectSource returns a fixed ProjectInfo
type stubProjectSource struct {
	info *ProjectInfo
	err  error
}

func (s *stubProjectSource) ProjectInfo(ctx context.Context, projectID uuid.UUID) (*ProjectInfo, error) {
	return s.info, s.err
}

// stubContractSource reports a fixed signed-contract answer
type stubContractSource struct {
	signed bool
}

func (s *stubContractSource) HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error) {
	return s.signed, nil
}

func newTestService(repo Repository, gateway payments.Gateway, source ProjectSource, contracts ContractSource) Service {
	return NewService(repo, gateway, source, contracts, storage.NewMemoryClient(), "invoices-test", zap.NewNop())
}

func TestCreateAccount(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{})
	ctx := context.Background()

	mockRepo.On("GetAccountByProject", ctx, projectID).
		Return(nil, marketplace.NewError(marketplace.KindNotFound, "no account"))
	mockRepo.On("CreateAccount", ctx, mock.MatchedBy(func(a *Account) bool {
		return a.ProjectID == projectID && a.ClientID == clientID && a.PlatformFeePercent == 10 && a.Status == AccountPending
	})).Return(nil)

	account, err := service.CreateAccount(ctx, projectID, clientID, 10)

	assert.NoError(t, err)
	assert.Equal(t, AccountPending, account.Status)
	mockRepo.AssertExpectations(t)
}

func TestCreateAccountDuplicate(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{})
	ctx := context.Background()

	mockRepo.On("GetAccountByProject", ctx, projectID).Return(&Account{ID: uuid.New()}, nil)

	_, err := service.CreateAccount(ctx, projectID, clientID, 10)

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
	mockRepo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestCreateAccountFeeOutOfRange(t *testing.T) {
	service := newTestService(new(MockRepository), payments.NewMockGateway(),
		&stubProjectSource{info: &ProjectInfo{}}, &stubContractSource{})

	_, err := service.CreateAccount(context.Background(), uuid.New(), uuid.New(), 101)
	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))

	_, err = service.CreateAccount(context.Background(), uuid.New(), uuid.New(), -1)
	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
}

func TestFundEscrow(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	account := &Account{ID: uuid.New(), ProjectID: projectID, ClientID: clientID, Status: AccountPending, PlatformFeePercent: 10}
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetAccountByProject", ctx, projectID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("AppendTransaction", ctx, mock.MatchedBy(func(tx *Transaction) bool {
		return tx.Type == TxEscrowFunding && tx.Status == TxCompleted && tx.Amount == 100000 && tx.GatewayRef != ""
	})).Return(nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxEscrowFunding).Return(money.Cents(100000), nil)
	mockRepo.On("UpdateAccount", ctx, mock.MatchedBy(func(a *Account) bool {
		return a.TotalAmount == 100000 && a.Status == AccountFunded
	})).Return(nil)

	result, err := service.FundEscrow(ctx, projectID, 100000, clientID)

	assert.NoError(t, err)
	assert.Equal(t, money.Cents(100000), result.Account.TotalAmount)
	assert.Equal(t, AccountFunded, result.Account.Status)
	mockRepo.AssertExpectations(t)
}

func TestFundEscrowRequiresSignedContract(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: false})

	_, err := service.FundEscrow(context.Background(), projectID, 100000, clientID)

	assert.True(t, marketplace.IsKind(err, marketplace.KindNoActiveContract))
	mockRepo.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything)
}

func TestFundEscrowForbiddenForNonOwner(t *testing.T) {
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: uuid.New()}}
	service := newTestService(new(MockRepository), payments.NewMockGateway(), source, &stubContractSource{signed: true})

	_, err := service.FundEscrow(context.Background(), uuid.New(), 100000, uuid.New())

	assert.True(t, marketplace.IsKind(err, marketplace.KindForbidden))
}

func TestFundEscrowTerminalAccount(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	account := &Account{ID: uuid.New(), ProjectID: projectID, ClientID: clientID, Status: AccountRefunded}
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetAccountByProject", ctx, projectID).Return(account, nil)

	_, err := service.FundEscrow(ctx, projectID, 100000, clientID)

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
	mockRepo.AssertNotCalled(t, "InTransaction", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything)
}

func TestRequestReleaseComputesFeeSplit(t *testing.T) {
	mockRepo := new(MockRepository)
	account := &Account{ID: uuid.New(), Status: AccountFunded, PlatformFeePercent: 10}
	service := newTestService(mockRepo, payments.NewMockGateway(),
		&stubProjectSource{info: &ProjectInfo{}}, &stubContractSource{})
	ctx := context.Background()

	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)
	mockRepo.On("CreateRelease", ctx, mock.AnythingOfType("*escrow.PaymentRelease")).Return(nil)

	// 300.00 at 10% -> 30.00 fee, 270.00 payout
	release, err := service.RequestRelease(ctx, account.ID, 30000, nil, uuid.New())

	assert.NoError(t, err)
	assert.Equal(t, money.Cents(3000), release.PlatformFee)
	assert.Equal(t, money.Cents(27000), release.ExpertReceives)
	assert.Equal(t, release.Amount, release.PlatformFee+release.ExpertReceives)
	assert.Equal(t, ReleasePending, release.Status)
}

func TestRequestReleaseUnfundedAccount(t *testing.T) {
	mockRepo := new(MockRepository)
	account := &Account{ID: uuid.New(), Status: AccountPending, PlatformFeePercent: 10}
	service := newTestService(mockRepo, payments.NewMockGateway(),
		&stubProjectSource{info: &ProjectInfo{}}, &stubContractSource{})
	ctx := context.Background()

	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)

	_, err := service.RequestRelease(ctx, account.ID, 30000, nil, uuid.New())

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
}

func approvalFixture(expertID uuid.UUID) (*Account, *PaymentRelease, *stubProjectSource) {
	clientID := uuid.New()
	account := &Account{
		ID:                 uuid.New(),
		ProjectID:          uuid.New(),
		ClientID:           clientID,
		TotalAmount:        100000,
		Status:             AccountFunded,
		PlatformFeePercent: 10,
	}
	release := &PaymentRelease{
		ID:             uuid.New(),
		AccountID:      account.ID,
		Amount:         30000,
		PlatformFee:    3000,
		ExpertReceives: 27000,
		Status:         ReleasePending,
	}
	source := &stubProjectSource{info: &ProjectInfo{
		OwnerID:          clientID,
		SelectedExpertID: &expertID,
		Title:            "Tax advisory engagement",
	}}
	return account, release, source
}

func TestApproveRelease(t *testing.T) {
	mockRepo := new(MockRepository)
	expertID := uuid.New()
	account, release, source := approvalFixture(expertID)
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetReleaseByID", ctx, release.ID).Return(release, nil)
	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("GetReleaseForUpdate", ctx, release.ID).Return(release, nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxEscrowFunding).Return(money.Cents(100000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxPaymentRelease).Return(money.Cents(0), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxRefund).Return(money.Cents(0), nil)
	mockRepo.On("AppendTransaction", ctx, mock.MatchedBy(func(tx *Transaction) bool {
		return tx.Type == TxPaymentRelease && tx.Status == TxCompleted &&
			tx.Amount == 30000 && tx.RecipientID == expertID
	})).Return(nil)
	mockRepo.On("UpdateRelease", ctx, mock.MatchedBy(func(r *PaymentRelease) bool {
		return r.Status == ReleaseReleased && r.ApprovedBy != nil
	})).Return(nil)
	mockRepo.On("UpdateAccount", ctx, mock.MatchedBy(func(a *Account) bool {
		return a.ReleasedAmount == 30000 && a.Status == AccountFunded
	})).Return(nil)
	mockRepo.On("CreateInvoice", ctx, mock.MatchedBy(func(inv *Invoice) bool {
		return inv.Amount == 30000 && inv.PlatformFee == 3000 && inv.ExpertReceives == 27000 && inv.Number != ""
	})).Return(nil)
	mockRepo.On("UpdateInvoice", ctx, mock.AnythingOfType("*escrow.Invoice")).Return(nil)

	result, err := service.ApproveRelease(ctx, release.ID, account.ClientID)

	assert.NoError(t, err)
	assert.Equal(t, ReleaseReleased, result.Release.Status)
	assert.Equal(t, expertID, result.ExpertID)
	assert.NotEmpty(t, result.Invoice.PDFKey)
	mockRepo.AssertExpectations(t)
}

func TestApproveReleaseInsufficientBalance(t *testing.T) {
	mockRepo := new(MockRepository)
	expertID := uuid.New()
	account, release, source := approvalFixture(expertID)
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetReleaseByID", ctx, release.ID).Return(release, nil)
	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("GetReleaseForUpdate", ctx, release.ID).Return(release, nil)
	// a concurrent release already drained most of the balance
	mockRepo.On("SumCompleted", ctx, account.ID, TxEscrowFunding).Return(money.Cents(100000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxPaymentRelease).Return(money.Cents(80000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxRefund).Return(money.Cents(0), nil)

	_, err := service.ApproveRelease(ctx, release.ID, account.ClientID)

	assert.True(t, marketplace.IsKind(err, marketplace.KindInsufficientEscrowBalance))
	mockRepo.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestApproveReleaseConcurrentlySettled(t *testing.T) {
	mockRepo := new(MockRepository)
	expertID := uuid.New()
	account, release, source := approvalFixture(expertID)
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	// the pre-transaction read still sees the release pending, but a
	// concurrent approval committed first
	settled := *release
	settled.Status = ReleaseReleased

	mockRepo.On("GetReleaseByID", ctx, release.ID).Return(release, nil)
	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("GetReleaseForUpdate", ctx, release.ID).Return(&settled, nil)

	_, err := service.ApproveRelease(ctx, release.ID, account.ClientID)

	assert.True(t, marketplace.IsKind(err, marketplace.KindConflictRetryable))
	mockRepo.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "UpdateRelease", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything)
}

func TestApproveReleaseGatewayFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	expertID := uuid.New()
	account, release, source := approvalFixture(expertID)
	service := newTestService(mockRepo, payments.NewFailingGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetReleaseByID", ctx, release.ID).Return(release, nil)
	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("GetReleaseForUpdate", ctx, release.ID).Return(release, nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxEscrowFunding).Return(money.Cents(100000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxPaymentRelease).Return(money.Cents(0), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxRefund).Return(money.Cents(0), nil)
	// post-rollback the release is marked rejected
	mockRepo.On("UpdateRelease", ctx, mock.MatchedBy(func(r *PaymentRelease) bool {
		return r.Status == ReleaseRejected
	})).Return(nil)

	_, err := service.ApproveRelease(ctx, release.ID, account.ClientID)

	assert.True(t, marketplace.IsKind(err, marketplace.KindGatewayFailure))
	mockRepo.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "UpdateAccount", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestApproveReleaseForbiddenForNonClient(t *testing.T) {
	mockRepo := new(MockRepository)
	expertID := uuid.New()
	account, release, source := approvalFixture(expertID)
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetReleaseByID", ctx, release.ID).Return(release, nil)
	mockRepo.On("GetAccountByID", ctx, account.ID).Return(account, nil)

	_, err := service.ApproveRelease(ctx, release.ID, uuid.New())

	assert.True(t, marketplace.IsKind(err, marketplace.KindForbidden))
	mockRepo.AssertNotCalled(t, "InTransaction", mock.Anything, mock.Anything)
}

func TestRefundEscrow(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	account := &Account{ID: uuid.New(), ProjectID: projectID, ClientID: clientID, TotalAmount: 100000, ReleasedAmount: 30000, Status: AccountFunded}
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetAccountByProject", ctx, projectID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxEscrowFunding).Return(money.Cents(100000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxPaymentRelease).Return(money.Cents(30000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxRefund).Return(money.Cents(0), nil)
	mockRepo.On("AppendTransaction", ctx, mock.MatchedBy(func(tx *Transaction) bool {
		return tx.Type == TxRefund && tx.Amount == 70000 && tx.RecipientID == clientID
	})).Return(nil)
	mockRepo.On("UpdateAccount", ctx, mock.MatchedBy(func(a *Account) bool {
		return a.Status == AccountRefunded
	})).Return(nil)

	result, err := service.RefundEscrow(ctx, projectID, clientID)

	assert.NoError(t, err)
	assert.Equal(t, money.Cents(70000), result.Transaction.Amount)
	assert.Equal(t, AccountRefunded, result.Account.Status)
	mockRepo.AssertExpectations(t)
}

func TestRefundEscrowNoBalance(t *testing.T) {
	mockRepo := new(MockRepository)
	clientID := uuid.New()
	projectID := uuid.New()
	account := &Account{ID: uuid.New(), ProjectID: projectID, ClientID: clientID, Status: AccountReleased}
	source := &stubProjectSource{info: &ProjectInfo{OwnerID: clientID}}
	service := newTestService(mockRepo, payments.NewMockGateway(), source, &stubContractSource{signed: true})
	ctx := context.Background()

	mockRepo.On("GetAccountByProject", ctx, projectID).Return(account, nil)
	passthroughTx(mockRepo)
	mockRepo.On("GetAccountForUpdate", ctx, account.ID).Return(account, nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxEscrowFunding).Return(money.Cents(100000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxPaymentRelease).Return(money.Cents(100000), nil)
	mockRepo.On("SumCompleted", ctx, account.ID, TxRefund).Return(money.Cents(0), nil)

	_, err := service.RefundEscrow(ctx, projectID, clientID)

	assert.True(t, marketplace.IsKind(err, marketplace.KindInvalidState))
	mockRepo.AssertNotCalled(t, "AppendTransaction", mock.Anything, mock.Anything)
}
