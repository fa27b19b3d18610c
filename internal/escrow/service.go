package escrow

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/internal/payments"
	"expertmarket/marketplace-backend/pkg/money"
	"expertmarket/marketplace-backend/pkg/pdf"
	"expertmarket/marketplace-backend/pkg/storage"
)

// ProjectInfo is the slice of project state the escrow ledger needs
type ProjectInfo struct {
	OwnerID          uuid.UUID
	SelectedExpertID *uuid.UUID
	Title            string
}

// ProjectSource resolves project ownership and the selected expert
type ProjectSource interface {
	ProjectInfo(ctx context.Context, projectID uuid.UUID) (*ProjectInfo, error)
}

// ContractSource answers whether a project has a signed or active contract
type ContractSource interface {
	HasSignedOrActive(ctx context.Context, projectID uuid.UUID) (bool, error)
}

// FundResult reports a completed funding for post-commit notification
type FundResult struct {
	Account     *Account
	Transaction *Transaction
}

// ReleaseResult reports a completed release for post-commit notification
type ReleaseResult struct {
	Release  *PaymentRelease
	Account  *Account
	Invoice  *Invoice
	ExpertID uuid.UUID
}

// Service interface
type Service interface {
	CreateAccount(ctx context.Context, projectID, actorID uuid.UUID, feePercent float64) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByProject(ctx context.Context, projectID uuid.UUID) (*Account, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
	ListReleases(ctx context.Context, accountID uuid.UUID) ([]PaymentRelease, error)

	FundEscrow(ctx context.Context, projectID uuid.UUID, amount money.Cents, actorID uuid.UUID) (*FundResult, error)
	RequestRelease(ctx context.Context, accountID uuid.UUID, amount money.Cents, milestoneID *uuid.UUID, requestedBy uuid.UUID) (*PaymentRelease, error)
	ApproveRelease(ctx context.Context, releaseID, approverID uuid.UUID) (*ReleaseResult, error)
	RefundEscrow(ctx context.Context, projectID, actorID uuid.UUID) (*FundResult, error)
}

type escrowService struct {
	repo          Repository
	gateway       payments.Gateway
	projectSource ProjectSource
	contracts     ContractSource
	archive       storage.Client
	invoiceBucket string
	logger        *zap.Logger
}

// NewService creates the escrow ledger service
func NewService(repo Repository, gateway payments.Gateway, projectSource ProjectSource, contracts ContractSource, archive storage.Client, invoiceBucket string, logger *zap.Logger) Service {
	return &escrowService{
		repo:          repo,
		gateway:       gateway,
		projectSource: projectSource,
		contracts:     contracts,
		archive:       archive,
		invoiceBucket: invoiceBucket,
		logger:        logger,
	}
}

func (s *escrowService) CreateAccount(ctx context.Context, projectID, actorID uuid.UUID, feePercent float64) (*Account, error) {
	if feePercent < 0 || feePercent > 100 {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "platform fee percent must be in [0,100]")
	}

	info, err := s.projectSource.ProjectInfo(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if info.OwnerID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the project client can open escrow")
	}

	if existing, err := s.repo.GetAccountByProject(ctx, projectID); err == nil {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"project %s already has escrow account %s", projectID, existing.ID)
	} else if !marketplace.IsKind(err, marketplace.KindNotFound) {
		return nil, err
	}

	account := &Account{
		ProjectID:          projectID,
		ClientID:           actorID,
		PlatformFeePercent: feePercent,
		Status:             AccountPending,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *escrowService) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetAccountByID(ctx, id)
}

func (s *escrowService) GetAccountByProject(ctx context.Context, projectID uuid.UUID) (*Account, error) {
	return s.repo.GetAccountByProject(ctx, projectID)
}

func (s *escrowService) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID)
}

func (s *escrowService) ListReleases(ctx context.Context, accountID uuid.UUID) ([]PaymentRelease, error) {
	return s.repo.ListReleases(ctx, accountID)
}

// FundEscrow settles a client charge into the ledger. The account's funded
// total is the sum of its completed funding transactions, recomputed inside
// the same unit of work that appends the new entry.
func (s *escrowService) FundEscrow(ctx context.Context, projectID uuid.UUID, amount money.Cents, actorID uuid.UUID) (*FundResult, error) {
	if amount <= 0 {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "funding amount must be positive")
	}

	info, err := s.projectSource.ProjectInfo(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if info.OwnerID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the project client can fund escrow")
	}

	hasContract, err := s.contracts.HasSignedOrActive(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !hasContract {
		return nil, marketplace.NewError(marketplace.KindNoActiveContract,
			"project %s has no signed contract to fund against", projectID)
	}

	account, err := s.repo.GetAccountByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if account.Status != AccountPending && account.Status != AccountFunded {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"escrow account %s is %s and no longer accepts funding", account.ID, account.Status)
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, amount, map[string]string{
		"project_id": projectID.String(),
		"account_id": account.ID.String(),
	})
	if err != nil {
		return nil, marketplace.WrapError(marketplace.KindGatewayFailure, err, "funding charge failed")
	}
	if intent.Status != payments.TransferSucceeded {
		return nil, marketplace.NewError(marketplace.KindGatewayFailure,
			"funding charge %s reported %s", intent.ID, intent.Status)
	}

	result := &FundResult{}
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		locked, err := tx.GetAccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		if locked.Status != AccountPending && locked.Status != AccountFunded {
			return marketplace.NewError(marketplace.KindInvalidState,
				"escrow account %s is %s and no longer accepts funding", locked.ID, locked.Status)
		}
		entry := &Transaction{
			ProjectID:   projectID,
			AccountID:   locked.ID,
			SenderID:    actorID,
			RecipientID: locked.ID, // funds held by the platform account
			Amount:      amount,
			Type:        TxEscrowFunding,
			Status:      TxCompleted,
			GatewayRef:  intent.ID,
			CreatedAt:   time.Now(),
		}
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		funded, err := tx.SumCompleted(ctx, locked.ID, TxEscrowFunding)
		if err != nil {
			return err
		}
		locked.TotalAmount = funded
		if locked.Status == AccountPending {
			locked.Status = AccountFunded
		}
		locked.UpdatedAt = time.Now()
		if err := tx.UpdateAccount(ctx, locked); err != nil {
			return err
		}

		result.Account = locked
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestRelease computes the fee split from the account's captured fee
// percent and records a pending release. No money moves yet.
func (s *escrowService) RequestRelease(ctx context.Context, accountID uuid.UUID, amount money.Cents, milestoneID *uuid.UUID, requestedBy uuid.UUID) (*PaymentRelease, error) {
	if amount <= 0 {
		return nil, marketplace.NewError(marketplace.KindInvalidState, "release amount must be positive")
	}

	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != AccountFunded {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"escrow account %s is %s, releases require a funded account", accountID, account.Status)
	}

	fee, payout := money.SplitFee(amount, account.PlatformFeePercent)
	release := &PaymentRelease{
		AccountID:      accountID,
		MilestoneID:    milestoneID,
		Amount:         amount,
		PlatformFee:    fee,
		ExpertReceives: payout,
		RequestedBy:    requestedBy,
		Status:         ReleasePending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.repo.CreateRelease(ctx, release); err != nil {
		return nil, err
	}
	return release, nil
}

// ApproveRelease moves money. The release is re-read under a row lock inside
// the transaction, so of two overlapping approvals of the same release only
// one finds it still pending; the balance check and the ledger write share
// the same transaction under the account row lock, so overlapping approvals
// of different releases cannot jointly drain the balance. The loser fails
// before the gateway is touched. A gateway failure marks the release
// rejected and writes no transaction.
func (s *escrowService) ApproveRelease(ctx context.Context, releaseID, approverID uuid.UUID) (*ReleaseResult, error) {
	release, err := s.repo.GetReleaseByID(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.GetAccountByID(ctx, release.AccountID)
	if err != nil {
		return nil, err
	}
	if account.ClientID != approverID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the project client can approve a release")
	}
	if release.Status != ReleasePending {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"release %s is %s, only pending releases can be approved", releaseID, release.Status)
	}

	info, err := s.projectSource.ProjectInfo(ctx, account.ProjectID)
	if err != nil {
		return nil, err
	}
	if info.SelectedExpertID == nil {
		return nil, marketplace.NewError(marketplace.KindInvalidState,
			"project %s has no selected expert to pay", account.ProjectID)
	}
	expertID := *info.SelectedExpertID

	var gatewayErr error
	result := &ReleaseResult{ExpertID: expertID}
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		locked, err := tx.GetAccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}

		// the pre-transaction read may be stale: a concurrent approval can
		// have settled this release already
		fresh, err := tx.GetReleaseForUpdate(ctx, releaseID)
		if err != nil {
			return err
		}
		if fresh.Status != ReleasePending {
			return marketplace.NewError(marketplace.KindConflictRetryable,
				"release %s is %s, a concurrent approval settled it first", releaseID, fresh.Status)
		}
		release = fresh

		funded, err := tx.SumCompleted(ctx, locked.ID, TxEscrowFunding)
		if err != nil {
			return err
		}
		released, err := tx.SumCompleted(ctx, locked.ID, TxPaymentRelease)
		if err != nil {
			return err
		}
		refunded, err := tx.SumCompleted(ctx, locked.ID, TxRefund)
		if err != nil {
			return err
		}
		balance := funded - released - refunded
		if release.Amount > balance {
			return marketplace.NewError(marketplace.KindInsufficientEscrowBalance,
				"release of %s exceeds escrow balance %s", release.Amount, balance)
		}

		transfer, err := s.gateway.Transfer(ctx, release.ExpertReceives, expertID.String())
		if err != nil {
			gatewayErr = marketplace.WrapError(marketplace.KindGatewayFailure, err, "payout transfer failed")
			return gatewayErr
		}
		if transfer.Status != payments.TransferSucceeded {
			gatewayErr = marketplace.NewError(marketplace.KindGatewayFailure,
				"payout transfer %s reported %s", transfer.ID, transfer.Status)
			return gatewayErr
		}

		now := time.Now()
		entry := &Transaction{
			ProjectID:   locked.ProjectID,
			AccountID:   locked.ID,
			SenderID:    locked.ClientID,
			RecipientID: expertID,
			Amount:      release.Amount,
			Type:        TxPaymentRelease,
			Status:      TxCompleted,
			GatewayRef:  transfer.ID,
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		release.Status = ReleaseReleased
		release.ApprovedBy = &approverID
		release.UpdatedAt = now
		if err := tx.UpdateRelease(ctx, release); err != nil {
			return err
		}

		locked.ReleasedAmount = released + release.Amount
		if locked.ReleasedAmount == locked.TotalAmount {
			locked.Status = AccountReleased
		}
		locked.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, locked); err != nil {
			return err
		}

		invoice := &Invoice{
			ReleaseID:      release.ID,
			Number:         invoiceNumber(release.ID, now),
			Amount:         release.Amount,
			PlatformFee:    release.PlatformFee,
			ExpertReceives: release.ExpertReceives,
			IssuedAt:       now,
		}
		if err := tx.CreateInvoice(ctx, invoice); err != nil {
			return err
		}

		result.Release = release
		result.Account = locked
		result.Invoice = invoice
		return nil
	})
	if err != nil {
		if gatewayErr != nil {
			// the gateway refused the payout: the release is terminal, the
			// account is untouched and can serve a new request
			release.Status = ReleaseRejected
			release.UpdatedAt = time.Now()
			if updateErr := s.repo.UpdateRelease(ctx, release); updateErr != nil {
				s.logger.Error("failed to mark release rejected after gateway failure",
					zap.String("release_id", releaseID.String()), zap.Error(updateErr))
			}
		}
		return nil, err
	}

	s.archiveInvoice(ctx, result, info.Title)
	return result, nil
}

// RefundEscrow returns the remaining balance to the client when a funded
// project winds down.
func (s *escrowService) RefundEscrow(ctx context.Context, projectID, actorID uuid.UUID) (*FundResult, error) {
	info, err := s.projectSource.ProjectInfo(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if info.OwnerID != actorID {
		return nil, marketplace.NewError(marketplace.KindForbidden, "only the project client can request a refund")
	}

	account, err := s.repo.GetAccountByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var gatewayErr error
	result := &FundResult{}
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		locked, err := tx.GetAccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		funded, err := tx.SumCompleted(ctx, locked.ID, TxEscrowFunding)
		if err != nil {
			return err
		}
		released, err := tx.SumCompleted(ctx, locked.ID, TxPaymentRelease)
		if err != nil {
			return err
		}
		refunded, err := tx.SumCompleted(ctx, locked.ID, TxRefund)
		if err != nil {
			return err
		}
		balance := funded - released - refunded
		if balance <= 0 {
			return marketplace.NewError(marketplace.KindInvalidState,
				"escrow account %s has no balance to refund", locked.ID)
		}

		transfer, err := s.gateway.Transfer(ctx, balance, locked.ClientID.String())
		if err != nil {
			gatewayErr = marketplace.WrapError(marketplace.KindGatewayFailure, err, "refund transfer failed")
			return gatewayErr
		}
		if transfer.Status != payments.TransferSucceeded {
			gatewayErr = marketplace.NewError(marketplace.KindGatewayFailure,
				"refund transfer %s reported %s", transfer.ID, transfer.Status)
			return gatewayErr
		}

		now := time.Now()
		entry := &Transaction{
			ProjectID:   projectID,
			AccountID:   locked.ID,
			SenderID:    locked.ID,
			RecipientID: locked.ClientID,
			Amount:      balance,
			Type:        TxRefund,
			Status:      TxCompleted,
			GatewayRef:  transfer.ID,
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		locked.Status = AccountRefunded
		locked.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, locked); err != nil {
			return err
		}

		result.Account = locked
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// archiveInvoice renders and stores the invoice PDF. Best effort: a failure
// is logged, the settlement has already committed.
func (s *escrowService) archiveInvoice(ctx context.Context, result *ReleaseResult, projectTitle string) {
	if s.archive == nil {
		return
	}
	data, err := pdf.RenderInvoice(pdf.InvoiceData{
		Number:         result.Invoice.Number,
		IssuedAt:       result.Invoice.IssuedAt,
		ProjectTitle:   projectTitle,
		Amount:         result.Invoice.Amount.String(),
		PlatformFee:    result.Invoice.PlatformFee.String(),
		ExpertReceives: result.Invoice.ExpertReceives.String(),
	})
	if err != nil {
		s.logger.Warn("invoice pdf rendering failed", zap.String("invoice", result.Invoice.Number), zap.Error(err))
		return
	}

	key := fmt.Sprintf("invoices/%s/%s.pdf", result.Account.ProjectID, result.Invoice.Number)
	if err := s.archive.Upload(ctx, s.invoiceBucket, key, bytes.NewReader(data)); err != nil {
		s.logger.Warn("invoice archive upload failed", zap.String("invoice", result.Invoice.Number), zap.Error(err))
		return
	}

	result.Invoice.PDFKey = key
	if err := s.repo.UpdateInvoice(ctx, result.Invoice); err != nil {
		s.logger.Warn("failed to record invoice pdf key", zap.String("invoice", result.Invoice.Number), zap.Error(err))
	}
}

func invoiceNumber(releaseID uuid.UUID, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(releaseID.String(), "-", ""))[:8]
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), short)
}
