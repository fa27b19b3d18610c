package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// InvoiceData is everything the invoice template renders. Amounts arrive
// pre-formatted so the template never re-derives rounded values.
type InvoiceData struct {
	Number         string
	IssuedAt       time.Time
	ProjectTitle   string
	ClientName     string
	ExpertName     string
	Amount         string
	PlatformFee    string
	ExpertReceives string
}

// RenderInvoice produces the invoice PDF bytes.
func RenderInvoice(data InvoiceData) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	doc.Cell(0, 12, "Payment Release Invoice")
	doc.Ln(16)

	doc.SetFont("Helvetica", "", 11)
	doc.Cell(0, 7, fmt.Sprintf("Invoice number: %s", data.Number))
	doc.Ln(7)
	doc.Cell(0, 7, fmt.Sprintf("Issued: %s", data.IssuedAt.Format("2006-01-02 15:04 MST")))
	doc.Ln(12)

	if data.ProjectTitle != "" {
		doc.Cell(0, 7, fmt.Sprintf("Project: %s", data.ProjectTitle))
		doc.Ln(7)
	}
	if data.ClientName != "" {
		doc.Cell(0, 7, fmt.Sprintf("Client: %s", data.ClientName))
		doc.Ln(7)
	}
	if data.ExpertName != "" {
		doc.Cell(0, 7, fmt.Sprintf("Expert: %s", data.ExpertName))
		doc.Ln(7)
	}
	doc.Ln(5)

	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(90, 8, "Description", "1", 0, "L", false, 0, "")
	doc.CellFormat(40, 8, "Amount", "1", 1, "R", false, 0, "")

	doc.SetFont("Helvetica", "", 11)
	doc.CellFormat(90, 8, "Release amount", "1", 0, "L", false, 0, "")
	doc.CellFormat(40, 8, data.Amount, "1", 1, "R", false, 0, "")
	doc.CellFormat(90, 8, "Platform fee", "1", 0, "L", false, 0, "")
	doc.CellFormat(40, 8, data.PlatformFee, "1", 1, "R", false, 0, "")

	doc.SetFont("Helvetica", "B", 11)
	doc.CellFormat(90, 8, "Expert receives", "1", 0, "L", false, 0, "")
	doc.CellFormat(40, 8, data.ExpertReceives, "1", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
