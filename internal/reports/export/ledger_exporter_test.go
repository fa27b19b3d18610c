package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"

	"expertmarket/marketplace-backend/internal/escrow"
)

func TestLedgerStatement(t *testing.T) {
	account := &escrow.Account{
		ID:             uuid.New(),
		ProjectID:      uuid.New(),
		ClientID:       uuid.New(),
		TotalAmount:    100000,
		ReleasedAmount: 30000,
		Status:         escrow.AccountFunded,
	}
	txs := []escrow.Transaction{
		{
			AccountID:   account.ID,
			SenderID:    account.ClientID,
			RecipientID: account.ID,
			Amount:      100000,
			Type:        escrow.TxEscrowFunding,
			Status:      escrow.TxCompleted,
			GatewayRef:  "pi_123",
			CreatedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			AccountID:   account.ID,
			SenderID:    account.ClientID,
			RecipientID: uuid.New(),
			Amount:      30000,
			Type:        escrow.TxPaymentRelease,
			Status:      escrow.TxCompleted,
			GatewayRef:  "tr_456",
			CreatedAt:   time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	err := LedgerStatement(&buf, account, txs)
	assert.NoError(t, err)
	assert.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(&buf)
	assert.NoError(t, err)
	defer f.Close()

	amount, err := f.GetCellValue("Statement", "F2")
	assert.NoError(t, err)
	assert.Equal(t, "1000.00", amount)

	rows, err := f.GetRows("Statement")
	assert.NoError(t, err)
	// header + 2 entries + blank + 3 summary lines
	assert.GreaterOrEqual(t, len(rows), 6)
}
