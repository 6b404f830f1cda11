// Package export builds spreadsheet artifacts from tabular answers and keeps
// them available for download under short-lived opaque tokens.
package export

import (
	"time"

	"github.com/xuri/excelize/v2"

	"genie-bot/internal/domain"
)

const (
	resultsSheet     = "Query Results"
	descriptionSheet = "Description"

	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Build renders a tabular result into an xlsx workbook: one "Query Results"
// sheet with the header and all rows in order, plus a "Description" sheet
// when a description is present. It returns nil when the input has no
// exportable shape; callers treat absence as "no artifact", not a failure.
func Build(columns []domain.ColumnDef, rows [][]any, description string) []byte {
	if len(columns) == 0 {
		return nil
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil
	}

	header := make([]any, len(columns))
	for i, col := range columns {
		header[i] = col.Name
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return nil
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil
		}
		if err := f.SetSheetRow(resultsSheet, cell, &rows[i]); err != nil {
			return nil
		}
	}

	if description != "" {
		if _, err := f.NewSheet(descriptionSheet); err != nil {
			return nil
		}
		if err := f.SetCellValue(descriptionSheet, "A1", "Query Description"); err != nil {
			return nil
		}
		if err := f.SetCellValue(descriptionSheet, "A2", description); err != nil {
			return nil
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil
	}
	return buf.Bytes()
}

// FilenameAt returns the artifact filename for the given generation time.
func FilenameAt(t time.Time) string {
	return "databricks_query_results_" + t.Format("20060102_150405") + ".xlsx"
}
