package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/pkg/money"
)

// Repository handles all database operations for the escrow ledger
type Repository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByProject(ctx context.Context, projectID uuid.UUID) (*Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error

	AppendTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
	SumCompleted(ctx context.Context, accountID uuid.UUID, txType TransactionType) (money.Cents, error)

	CreateRelease(ctx context.Context, release *PaymentRelease) error
	GetReleaseByID(ctx context.Context, id uuid.UUID) (*PaymentRelease, error)
	GetReleaseForUpdate(ctx context.Context, id uuid.UUID) (*PaymentRelease, error)
	UpdateRelease(ctx context.Context, release *PaymentRelease) error
	ListReleases(ctx context.Context, accountID uuid.UUID) ([]PaymentRelease, error)

	CreateInvoice(ctx context.Context, invoice *Invoice) error
	UpdateInvoice(ctx context.Context, invoice *Invoice) error

	InTransaction(ctx context.Context, fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an escrow repository backed by GORM
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateAccount(ctx context.Context, account *Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *gormRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "escrow account %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) GetAccountByProject(ctx context.Context, projectID uuid.UUID) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).First(&account, "project_id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "project %s has no escrow account", projectID)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountForUpdate loads an account under a row lock. Must be called
// inside InTransaction; the lock serializes concurrent settlements.
func (r *gormRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "escrow account %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) UpdateAccount(ctx context.Context, account *Account) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *gormRepository) AppendTransaction(ctx context.Context, tx *Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *gormRepository) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error) {
	var list []Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) SumCompleted(ctx context.Context, accountID uuid.UUID, txType TransactionType) (money.Cents, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("account_id = ? AND type = ? AND status = ?", accountID, txType, TxCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return money.Cents(total), err
}

func (r *gormRepository) CreateRelease(ctx context.Context, release *PaymentRelease) error {
	return r.db.WithContext(ctx).Create(release).Error
}

func (r *gormRepository) GetReleaseByID(ctx context.Context, id uuid.UUID) (*PaymentRelease, error) {
	var release PaymentRelease
	err := r.db.WithContext(ctx).First(&release, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "payment release %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// GetReleaseForUpdate loads a release under a row lock. Must be called
// inside InTransaction; the lock serializes concurrent approvals of the
// same release.
func (r *gormRepository) GetReleaseForUpdate(ctx context.Context, id uuid.UUID) (*PaymentRelease, error) {
	var release PaymentRelease
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&release, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, marketplace.NewError(marketplace.KindNotFound, "payment release %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &release, nil
}

func (r *gormRepository) UpdateRelease(ctx context.Context, release *PaymentRelease) error {
	return r.db.WithContext(ctx).Save(release).Error
}

func (r *gormRepository) ListReleases(ctx context.Context, accountID uuid.UUID) ([]PaymentRelease, error) {
	var list []PaymentRelease
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) CreateInvoice(ctx context.Context, invoice *Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *gormRepository) UpdateInvoice(ctx context.Context, invoice *Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *gormRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
