package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"expertmarket/marketplace-backend/internal/escrow"
)

// LedgerStatement writes an escrow account's transaction log as an xlsx
// workbook for reconciliation.
func LedgerStatement(w io.Writer, account *escrow.Account, txs []escrow.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Statement"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Date", "Type", "Status", "Sender", "Recipient", "Amount", "Gateway Ref"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	row := 2
	for _, tx := range txs {
		values := []interface{}{
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
			string(tx.Type),
			string(tx.Status),
			tx.SenderID.String(),
			tx.RecipientID.String(),
			tx.Amount.String(),
			tx.GatewayRef,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		row++
	}

	summaryRow := row + 1
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "Funded total"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), account.TotalAmount.String()); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow+1), "Released total"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow+1), account.ReleasedAmount.String()); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow+2), "Balance"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow+2), account.Balance().String()); err != nil {
		return err
	}

	return f.Write(w)
}
