package ledger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet    = "summary"
	categoriesSheet = "categories"
)

// BuildLedgerXLSX renders country summaries as a workbook with a summary
// sheet (one row per country) and a categories sheet (one row per country
// and category).
func BuildLedgerXLSX(summaries map[string]CountrySummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("BuildLedgerXLSX: %w", err)
	}
	if _, err := f.NewSheet(categoriesSheet); err != nil {
		return nil, fmt.Errorf("BuildLedgerXLSX: %w", err)
	}

	_ = f.SetSheetRow(summarySheet, "A1", &[]interface{}{"Country", "Currency", "Total (original)", "Total (KRW)", "Currencies"})
	_ = f.SetSheetRow(categoriesSheet, "A1", &[]interface{}{"Country", "Category", "Total (original)", "Total (KRW)"})

	row, catRow := 2, 2
	for _, country := range Countries(summaries) {
		s := summaries[country]
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summarySheet, cell, &[]interface{}{
			s.Country, s.Currency, s.TotalOriginal, s.TotalReference, strings.Join(s.Currencies, ", "),
		}); err != nil {
			return nil, fmt.Errorf("BuildLedgerXLSX: %s: %w", country, err)
		}
		row++

		for _, c := range s.Categories {
			cell, _ := excelize.CoordinatesToCellName(1, catRow)
			if err := f.SetSheetRow(categoriesSheet, cell, &[]interface{}{
				s.Country, c.Category, c.Original, c.Reference,
			}); err != nil {
				return nil, fmt.Errorf("BuildLedgerXLSX: %s/%s: %w", country, c.Category, err)
			}
			catRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("BuildLedgerXLSX: %w", err)
	}
	return buf.Bytes(), nil
}
