package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"genie-bot/internal/domain"
)

type mockGenie struct {
	startOut domain.GenieMessage
	startErr error

	queryResultOut domain.QueryResult
	queryResultErr error

	messageOut domain.GenieMessage
	messageErr error

	statementOut domain.StatementResult
	statementErr error

	startCalls       int
	queryResultCalls int
	statementCalls   int

	lastQuestion     string
	lastAttachmentID string
	lastStatementID  string
}

func (m *mockGenie) StartConversationAndWait(_ context.Context, _, question string) (domain.GenieMessage, error) {
	m.startCalls++
	m.lastQuestion = question
	return m.startOut, m.startErr
}

func (m *mockGenie) GetAttachmentQueryResult(_ context.Context, _, _, _, attachmentID string) (domain.QueryResult, error) {
	m.queryResultCalls++
	m.lastAttachmentID = attachmentID
	return m.queryResultOut, m.queryResultErr
}

func (m *mockGenie) GetMessage(_ context.Context, _, _, _ string) (domain.GenieMessage, error) {
	return m.messageOut, m.messageErr
}

func (m *mockGenie) GetStatementResult(_ context.Context, statementID string) (domain.StatementResult, error) {
	m.statementCalls++
	m.lastStatementID = statementID
	return m.statementOut, m.statementErr
}

func salesColumns() []domain.ColumnDef {
	return []domain.ColumnDef{
		{Name: "Region", TypeName: "STRING"},
		{Name: "Sales", TypeName: "INT"},
	}
}

func newTestService(t *testing.T, g GenieClient) *AskService {
	t.Helper()
	svc, err := NewAskService(g)
	require.NoError(t, err)
	return svc
}

func TestNewAskService_ValidatesDependency(t *testing.T) {
	_, err := NewAskService(nil)
	require.Error(t, err)
}

func TestAsk_TabularAnswer(t *testing.T) {
	g := &mockGenie{
		startOut: domain.GenieMessage{
			ConversationID: "conv-1",
			MessageID:      "msg-1",
			Attachments:    []domain.GenieAttachment{{ID: "att-1"}},
			HasQueryResult: true,
		},
		queryResultOut: domain.QueryResult{StatementID: "stmt-1"},
		messageOut: domain.GenieMessage{
			Content: "here are your results",
			Attachments: []domain.GenieAttachment{
				{ID: "att-1", Description: "Sales by region"},
			},
		},
		statementOut: domain.StatementResult{
			Columns: salesColumns(),
			Rows:    [][]any{{"West", "1000"}, {"East", "2000"}},
		},
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "show sales by region", SpaceID: "space-1"})
	require.Equal(t, "conv-1", out.ConversationID)
	require.NotNil(t, out.Answer.Tabular)
	require.Equal(t, salesColumns(), out.Answer.Tabular.Columns)
	require.Len(t, out.Answer.Tabular.Rows, 2)
	require.Equal(t, "Sales by region", out.Answer.Tabular.Description)
	require.Equal(t, "att-1", g.lastAttachmentID)
	require.Equal(t, "stmt-1", g.lastStatementID)
}

func TestAsk_TextAttachmentAnswer(t *testing.T) {
	g := &mockGenie{
		startOut: domain.GenieMessage{ConversationID: "conv-1", MessageID: "msg-1"},
		messageOut: domain.GenieMessage{
			Content: "raw body",
			Attachments: []domain.GenieAttachment{
				{ID: "att-1"},
				{ID: "att-2", Text: "42 orders found"},
			},
		},
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "how many orders?", SpaceID: "space-1"})
	require.NotNil(t, out.Answer.Text)
	require.Equal(t, "42 orders found", out.Answer.Text.Message)
	require.Zero(t, g.queryResultCalls)
	require.Zero(t, g.statementCalls)
}

func TestAsk_FallsBackToMessageContent(t *testing.T) {
	g := &mockGenie{
		startOut:   domain.GenieMessage{ConversationID: "conv-1", MessageID: "msg-1"},
		messageOut: domain.GenieMessage{Content: "I could not find anything."},
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "anything?", SpaceID: "space-1"})
	require.NotNil(t, out.Answer.Text)
	require.Equal(t, "I could not find anything.", out.Answer.Text.Message)
}

func TestAsk_PriorConversationIsNotReattached(t *testing.T) {
	g := &mockGenie{
		startOut:   domain.GenieMessage{ConversationID: "conv-2", MessageID: "msg-1"},
		messageOut: domain.GenieMessage{Content: "ok"},
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "next question", SpaceID: "space-1", ConversationID: "conv-1"})
	require.Equal(t, 1, g.startCalls)
	require.Equal(t, "next question", g.lastQuestion)
	// The service answers every turn with a fresh call; the returned id
	// replaces the prior one.
	require.Equal(t, "conv-2", out.ConversationID)
}

func TestAsk_StartError_ReturnsErrorAnswerWithPriorConversation(t *testing.T) {
	g := &mockGenie{startErr: errors.New("genie down")}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "hello", SpaceID: "space-1", ConversationID: "conv-1"})
	require.NotNil(t, out.Answer.Err)
	require.Equal(t, "request processing failed", out.Answer.Err.Reason)
	require.Equal(t, "conv-1", out.ConversationID)
}

func TestAsk_MidProtocolError_KeepsNewConversationID(t *testing.T) {
	g := &mockGenie{
		startOut: domain.GenieMessage{
			ConversationID: "conv-2",
			MessageID:      "msg-1",
			Attachments:    []domain.GenieAttachment{{ID: "att-1"}},
			HasQueryResult: true,
		},
		queryResultErr: errors.New("attachment fetch failed"),
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "hello", SpaceID: "space-1", ConversationID: "conv-1"})
	require.NotNil(t, out.Answer.Err)
	require.Equal(t, "conv-2", out.ConversationID)
}

func TestAsk_StatementError_ReturnsErrorAnswer(t *testing.T) {
	g := &mockGenie{
		startOut: domain.GenieMessage{
			ConversationID: "conv-1",
			MessageID:      "msg-1",
			Attachments:    []domain.GenieAttachment{{ID: "att-1"}},
			HasQueryResult: true,
		},
		queryResultOut: domain.QueryResult{StatementID: "stmt-1"},
		messageOut:     domain.GenieMessage{Content: "ok"},
		statementErr:   errors.New("warehouse stopped"),
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "hello", SpaceID: "space-1"})
	require.NotNil(t, out.Answer.Err)
}

func TestAsk_QueryResultWithoutStatement_FallsBackToText(t *testing.T) {
	g := &mockGenie{
		startOut: domain.GenieMessage{
			ConversationID: "conv-1",
			MessageID:      "msg-1",
			Attachments:    []domain.GenieAttachment{{ID: "att-1"}},
			HasQueryResult: true,
		},
		queryResultOut: domain.QueryResult{},
		messageOut:     domain.GenieMessage{Content: "no executable query"},
	}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "hello", SpaceID: "space-1"})
	require.NotNil(t, out.Answer.Text)
	require.Equal(t, "no executable query", out.Answer.Text.Message)
	require.Zero(t, g.statementCalls)
}

func TestAsk_EmptyQuestion_ReturnsErrorAnswer(t *testing.T) {
	g := &mockGenie{}
	svc := newTestService(t, g)

	out := svc.Ask(context.Background(), AskInput{Question: "   ", SpaceID: "space-1"})
	require.NotNil(t, out.Answer.Err)
	require.Zero(t, g.startCalls)
}
