package escrow

import (
	"time"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/pkg/money"
)

// AccountStatus is the escrow account lifecycle status
type AccountStatus string

const (
	AccountPending  AccountStatus = "pending"
	AccountFunded   AccountStatus = "funded"
	AccountReleased AccountStatus = "released"
	AccountRefunded AccountStatus = "refunded"
	AccountDisputed AccountStatus = "disputed"
)

// ReleaseStatus is the payment release lifecycle status
type ReleaseStatus string

const (
	ReleasePending  ReleaseStatus = "pending"
	ReleaseApproved ReleaseStatus = "approved"
	ReleaseReleased ReleaseStatus = "released"
	ReleaseRejected ReleaseStatus = "rejected"
)

// TransactionType classifies ledger entries
type TransactionType string

const (
	TxEscrowFunding  TransactionType = "escrow_funding"
	TxPaymentRelease TransactionType = "payment_release"
	TxRefund         TransactionType = "refund"
)

// TransactionStatus is the settlement status of a ledger entry
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxRefunded  TransactionStatus = "refunded"
)

// Account is the per-project holding of client funds. TotalAmount and
// ReleasedAmount are caches derived from the transaction log; the log is the
// source of truth and the caches are recomputed from it inside every
// settlement transaction, never incremented independently.
type Account struct {
	ID                 uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID          uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"project_id"`
	ClientID           uuid.UUID     `gorm:"type:uuid;not null" json:"client_id"`
	TotalAmount        money.Cents   `gorm:"not null;default:0" json:"total_amount"`
	ReleasedAmount     money.Cents   `gorm:"not null;default:0" json:"released_amount"`
	PlatformFeePercent float64       `gorm:"not null" json:"platform_fee_percent"`
	Status             AccountStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Balance is the remaining held amount.
func (a *Account) Balance() money.Cents {
	return a.TotalAmount - a.ReleasedAmount
}

// PaymentRelease is a request to pay out part of the held funds. The fee is
// captured at request time from the account's configured percent so later
// fee-schedule changes never touch in-flight projects.
type PaymentRelease struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AccountID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"account_id"`
	MilestoneID    *uuid.UUID    `gorm:"type:uuid" json:"milestone_id,omitempty"`
	Amount         money.Cents   `gorm:"not null" json:"amount"`
	PlatformFee    money.Cents   `gorm:"not null" json:"platform_fee"`
	ExpertReceives money.Cents   `gorm:"not null" json:"expert_receives"`
	RequestedBy    uuid.UUID     `gorm:"type:uuid;not null" json:"requested_by"`
	ApprovedBy     *uuid.UUID    `gorm:"type:uuid" json:"approved_by,omitempty"`
	Status         ReleaseStatus `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Transaction is an append-only ledger entry. Rows are inserted once and
// never mutated; the account caches are sums over this table.
type Transaction struct {
	ID          uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"project_id"`
	AccountID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"account_id"`
	ContractID  *uuid.UUID        `gorm:"type:uuid" json:"contract_id,omitempty"`
	SenderID    uuid.UUID         `gorm:"type:uuid;not null" json:"sender_id"`
	RecipientID uuid.UUID         `gorm:"type:uuid;not null" json:"recipient_id"`
	Amount      money.Cents       `gorm:"not null" json:"amount"`
	Type        TransactionType   `gorm:"not null" json:"type"`
	Status      TransactionStatus `gorm:"not null" json:"status"`
	GatewayRef  string            `json:"gateway_ref,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Invoice is the billing record generated on a successful release
type Invoice struct {
	ID             uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReleaseID      uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex" json:"release_id"`
	Number         string      `gorm:"not null;uniqueIndex" json:"number"`
	Amount         money.Cents `gorm:"not null" json:"amount"`
	PlatformFee    money.Cents `gorm:"not null" json:"platform_fee"`
	ExpertReceives money.Cents `gorm:"not null" json:"expert_receives"`
	PDFKey         string      `json:"pdf_key,omitempty"`
	IssuedAt       time.Time   `json:"issued_at"`
}
