package service

import (
	"fmt"

	"fin-analyzer/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet      = "Summary"
	transactionsSheet = "Transactions"
)

// BuildWorkbook renders a completed analysis as an XLSX workbook with a
// Summary sheet and a Transactions sheet.
func BuildWorkbook(doc *models.Document, result *models.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the summary
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(transactionsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	derived := ComputeDerived(result.StructuredData.Items, result.StructuredData.TotalAmount)
	summary := [][2]any{
		{"Document", doc.Title},
		{"Period", derived.Period},
		{"Days", derived.DayCount},
		{"Total spent", result.StructuredData.TotalAmount},
		{"Average daily spent", derived.AverageDailySpent},
		{"Main category", string(result.StructuredData.Category)},
		{"Summary", result.Summary},
		{"Advice", result.StructuredData.Advice},
		{"Model", result.Metadata.ModelID},
		{"Processed at", result.Metadata.ProcessedAt.Format("2006-01-02 15:04:05")},
	}
	for i, kv := range summary {
		if err := setRow(f, summarySheet, i+1, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 80)

	if err := setRow(f, transactionsSheet, 1, "Date", "Merchant", "Amount", "Category"); err != nil {
		return nil, err
	}
	for i, item := range result.StructuredData.Items {
		if err := setRow(f, transactionsSheet, i+2, item.Date, item.Merchant, item.Amount, string(item.Category)); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(transactionsSheet, "A", "A", 14)
	_ = f.SetColWidth(transactionsSheet, "B", "B", 36)
	_ = f.SetColWidth(transactionsSheet, "C", "D", 14)

	idx, err := f.GetSheetIndex(summarySheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
