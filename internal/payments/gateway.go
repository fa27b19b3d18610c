package payments

import (
	"context"

	"github.com/google/uuid"

	"expertmarket/marketplace-backend/internal/marketplace"
	"expertmarket/marketplace-backend/pkg/money"
)

// TransferStatus is the gateway's report on a money movement
type TransferStatus string

const (
	TransferSucceeded TransferStatus = "succeeded"
	TransferFailed    TransferStatus = "failed"
)

// TransferResult is the gateway's receipt for a transfer
type TransferResult struct {
	ID     string         `json:"id"`
	Status TransferStatus `json:"status"`
}

// PaymentIntent represents a pending inbound charge
type PaymentIntent struct {
	ID     string         `json:"id"`
	Status TransferStatus `json:"status"`
}

// Gateway is the pluggable payment collaborator. Any non-success status is a
// hard failure; the settlement core never writes a ledger transaction for a
// failed gateway call.
type Gateway interface {
	Transfer(ctx context.Context, amount money.Cents, destinationAccountID string) (*TransferResult, error)
	CreatePaymentIntent(ctx context.Context, amount money.Cents, metadata map[string]string) (*PaymentIntent, error)
}

// mockGateway settles synchronously and deterministically. It stands in for
// a real provider integration.
type mockGateway struct {
	failTransfers bool
}

// NewMockGateway creates a gateway that always succeeds
func NewMockGateway() Gateway {
	return &mockGateway{}
}

// NewFailingGateway creates a gateway whose transfers always fail
func NewFailingGateway() Gateway {
	return &mockGateway{failTransfers: true}
}

func (g *mockGateway) Transfer(ctx context.Context, amount money.Cents, destinationAccountID string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, marketplace.NewError(marketplace.KindGatewayFailure, "transfer amount must be positive")
	}
	if g.failTransfers {
		return &TransferResult{ID: uuid.New().String(), Status: TransferFailed}, nil
	}
	return &TransferResult{ID: uuid.New().String(), Status: TransferSucceeded}, nil
}

func (g *mockGateway) CreatePaymentIntent(ctx context.Context, amount money.Cents, metadata map[string]string) (*PaymentIntent, error) {
	if amount <= 0 {
		return nil, marketplace.NewError(marketplace.KindGatewayFailure, "intent amount must be positive")
	}
	return &PaymentIntent{ID: uuid.New().String(), Status: TransferSucceeded}, nil
}
