package domain

// ColumnDef describes a single result column as reported by the statement
// execution backend.
type ColumnDef struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
}

// StructuredAnswer is the orchestrator's output. Exactly one of the variant
// fields is set.
type StructuredAnswer struct {
	Tabular *TabularAnswer
	Text    *TextAnswer
	Err     *ErrorAnswer
}

// TabularAnswer carries an executed query result set. Rows are positionally
// aligned with Columns.
type TabularAnswer struct {
	Columns     []ColumnDef
	Rows        [][]any
	Description string
}

// TextAnswer carries a free-text reply.
type TextAnswer struct {
	Message string
}

// ErrorAnswer carries a user-presentable failure reason.
type ErrorAnswer struct {
	Reason string
}

func NewTabularAnswer(columns []ColumnDef, rows [][]any, description string) StructuredAnswer {
	return StructuredAnswer{Tabular: &TabularAnswer{Columns: columns, Rows: rows, Description: description}}
}

func NewTextAnswer(message string) StructuredAnswer {
	return StructuredAnswer{Text: &TextAnswer{Message: message}}
}

func NewErrorAnswer(reason string) StructuredAnswer {
	return StructuredAnswer{Err: &ErrorAnswer{Reason: reason}}
}
