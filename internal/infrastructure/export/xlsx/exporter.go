// Package xlsx renders expenses as an Excel workbook.
package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

const (
	sheetName   = "Expenses"
	contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// excelize built-in number format "0.00".
	numFmtTwoDecimals = 2
)

var header = []any{"Date", "Merchant", "Category", "Amount", "Currency", "Source", "Status", "Verified", "Notes"}

type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return contentType
}

// Export writes one row per expense in the given order, below a bold header.
func (e *Exporter) Export(w io.Writer, expenses []domain.Expense) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, expense := range expenses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			formatDate(expense.Date),
			deref(expense.Merchant),
			deref(expense.Category),
			amountValue(expense),
			expense.Currency,
			string(expense.Source),
			string(expense.ProcessingStatus),
			expense.IsUserVerified,
			deref(expense.Notes),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if len(expenses) > 0 {
		amounts, err := f.NewStyle(&excelize.Style{NumFmt: numFmtTwoDecimals})
		if err != nil {
			return fmt.Errorf("create amount style: %w", err)
		}
		last := fmt.Sprintf("D%d", len(expenses)+1)
		if err := f.SetCellStyle(sheetName, "D2", last, amounts); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "I", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func amountValue(expense domain.Expense) any {
	if expense.Amount == nil {
		return ""
	}
	return expense.Amount.Round(2).InexactFloat64()
}

func formatDate(date *time.Time) string {
	if date == nil {
		return ""
	}
	return date.Format(domain.DateLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
