package domain

// GenieMessage is a completed message returned by the Genie conversation API.
type GenieMessage struct {
	ConversationID string
	MessageID      string
	Content        string
	Attachments    []GenieAttachment
	// HasQueryResult reports whether the service attached an executable
	// query result to this message.
	HasQueryResult bool
}

// GenieAttachment is one message attachment. Text holds plain-text content,
// Description holds the generated query description; either may be empty.
type GenieAttachment struct {
	ID          string
	Text        string
	Description string
}

// QueryResult references the statement execution behind a query attachment.
type QueryResult struct {
	StatementID string
}

// StatementResult is the executed result set of a statement.
type StatementResult struct {
	Columns []ColumnDef
	Rows    [][]any
}
