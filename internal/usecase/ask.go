package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"genie-bot/internal/domain"
)

// processingFailedReason is the user-facing reason attached to every failed
// turn. Individual failures are classified and logged, never surfaced raw.
const processingFailedReason = "request processing failed"

// GenieClient is the conversational query service protocol consumed by the
// orchestrator.
type GenieClient interface {
	StartConversationAndWait(ctx context.Context, spaceID, question string) (domain.GenieMessage, error)
	GetAttachmentQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (domain.QueryResult, error)
	GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (domain.GenieMessage, error)
	GetStatementResult(ctx context.Context, statementID string) (domain.StatementResult, error)
}

type AskService struct {
	genie GenieClient
}

type AskInput struct {
	Question string
	SpaceID  string
	// ConversationID is the prior conversation for this user, if any. The
	// service answers each turn with a fresh synchronous call, so the
	// prior id is tracked but not re-attached upstream.
	ConversationID string
}

type AskOutput struct {
	Answer domain.StructuredAnswer
	// ConversationID is the most recent id returned by the service, or
	// the prior id when the turn failed before one was obtained.
	ConversationID string
}

func NewAskService(g GenieClient) (*AskService, error) {
	if g == nil {
		return nil, errors.New("usecase: genie client must not be nil")
	}
	return &AskService{genie: g}, nil
}

// Ask runs one full orchestration turn. Failures never escape: any error in
// the protocol is converted to the Error answer variant at this boundary.
func (s *AskService) Ask(ctx context.Context, in AskInput) AskOutput {
	answer, convID, err := s.ask(ctx, in)
	if err != nil {
		slog.Error("ask turn failed", "space_id", in.SpaceID, "err", err)
		return AskOutput{
			Answer:         domain.NewErrorAnswer(processingFailedReason),
			ConversationID: convID,
		}
	}
	return AskOutput{Answer: answer, ConversationID: convID}
}

func (s *AskService) ask(ctx context.Context, in AskInput) (domain.StructuredAnswer, string, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return domain.StructuredAnswer{}, in.ConversationID, newError(ErrorInvalidInput, "empty_question", nil)
	}

	initial, err := s.genie.StartConversationAndWait(ctx, in.SpaceID, question)
	if err != nil {
		return domain.StructuredAnswer{}, in.ConversationID, newError(ErrorUpstream, "genie_start_error", err)
	}
	convID := initial.ConversationID

	var queryResult domain.QueryResult
	haveQueryResult := false
	if initial.HasQueryResult && len(initial.Attachments) > 0 {
		queryResult, err = s.genie.GetAttachmentQueryResult(ctx, in.SpaceID, convID, initial.MessageID, initial.Attachments[0].ID)
		if err != nil {
			return domain.StructuredAnswer{}, convID, newError(ErrorUpstream, "genie_query_result_error", err)
		}
		haveQueryResult = true
	}

	message, err := s.genie.GetMessage(ctx, in.SpaceID, convID, initial.MessageID)
	if err != nil {
		return domain.StructuredAnswer{}, convID, newError(ErrorUpstream, "genie_message_error", err)
	}

	if haveQueryResult && queryResult.StatementID != "" {
		result, err := s.genie.GetStatementResult(ctx, queryResult.StatementID)
		if err != nil {
			return domain.StructuredAnswer{}, convID, newError(ErrorUpstream, "statement_result_error", err)
		}
		return domain.NewTabularAnswer(result.Columns, result.Rows, queryDescription(message)), convID, nil
	}

	for _, att := range message.Attachments {
		if att.Text != "" {
			return domain.NewTextAnswer(att.Text), convID, nil
		}
	}
	return domain.NewTextAnswer(message.Content), convID, nil
}

// queryDescription returns the first non-empty generated query description
// among the message attachments.
func queryDescription(message domain.GenieMessage) string {
	for _, att := range message.Attachments {
		if att.Description != "" {
			return att.Description
		}
	}
	return ""
}
