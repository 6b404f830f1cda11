// Package render turns structured answers into chat-safe markdown.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"genie-bot/internal/domain"
)

const (
	errorLine          = "An error occurred while processing your request."
	noDataLine         = "No data available."
	descriptionHeading = "## Query Description"
	resultsHeading     = "## Query Results"
)

var printer = message.NewPrinter(language.English)

// Format renders a structured answer for chat display. Tabular answers become
// a markdown table with type-aware cell rendering; text answers are passed
// through verbatim with a trailing blank line.
func Format(answer domain.StructuredAnswer) string {
	switch {
	case answer.Err != nil:
		return errorLine + "\n\n"
	case answer.Text != nil:
		return answer.Text.Message + "\n\n"
	case answer.Tabular != nil:
		return formatTable(answer.Tabular)
	}
	return noDataLine + "\n\n"
}

func formatTable(t *domain.TabularAnswer) string {
	var b strings.Builder
	if t.Description != "" {
		b.WriteString(descriptionHeading + "\n\n" + t.Description + "\n\n")
	}
	b.WriteString(resultsHeading + "\n\n")

	if len(t.Columns) == 0 {
		b.WriteString("Unexpected column format\n\n")
		return b.String()
	}

	names := make([]string, len(t.Columns))
	separators := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
		separators[i] = "---"
	}
	b.WriteString("| " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|" + strings.Join(separators, "|") + "|\n")

	for _, row := range t.Rows {
		cells := make([]string, 0, len(t.Columns))
		for i, value := range row {
			if i >= len(t.Columns) {
				break
			}
			cells = append(cells, formatCell(value, t.Columns[i]))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

// formatCell renders one cell using its column's type tag. Numeric parse
// failures fall back to the raw string form.
func formatCell(value any, col domain.ColumnDef) string {
	if value == nil {
		return "NULL"
	}
	raw := fmt.Sprint(value)
	switch col.TypeName {
	case "DECIMAL", "DOUBLE", "FLOAT":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return printer.Sprintf("%.2f", f)
	case "INT", "BIGINT", "LONG":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return raw
		}
		return printer.Sprintf("%d", n)
	}
	return raw
}
