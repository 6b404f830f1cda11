// Package genie is a focused client for the Databricks Genie conversation
// API and the statement execution API behind it.
package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"genie-bot/internal/domain"
)

const (
	defaultPollInterval = time.Second
	// defaultWaitTimeout mirrors the Databricks SDK waiter bound. It caps
	// the completion poll at the client so a hung upstream cannot pin a
	// turn goroutine forever.
	defaultWaitTimeout = 20 * time.Minute
)

// Message terminal states reported by the conversation API.
const (
	statusCompleted = "COMPLETED"
	statusFailed    = "FAILED"
	statusCancelled = "CANCELLED"
)

// Getter retrieves secret material by name; satisfied by the paramstore
// client.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("genie: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to one Databricks workspace.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	getter       Getter
	tokenParam   string
	staticToken  string
	pollInterval time.Duration
	waitTimeout  time.Duration

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithStaticToken uses a fixed bearer token instead of paramstore retrieval.
func WithStaticToken(token string) Option {
	return func(c *Client) {
		c.staticToken = strings.TrimSpace(token)
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// NewClient creates a Client for the workspace at host. The bearer token is
// either supplied via WithStaticToken or fetched once per process from the
// given paramstore parameter.
func NewClient(host string, ps Getter, tokenParam string, opts ...Option) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, errors.New("genie: host must not be empty")
	}
	c := &Client{
		baseURL:      host,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		getter:       ps,
		tokenParam:   strings.TrimSpace(tokenParam),
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.staticToken == "" && (c.getter == nil || c.tokenParam == "") {
		return nil, errors.New("genie: either a static token or a paramstore getter with a parameter name is required")
	}
	return c, nil
}

// resolveToken fetches the API token on the first call and returns the cached
// result for the lifetime of the process.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	if c.staticToken != "" {
		return c.staticToken, nil
	}
	c.tokenOnce.Do(func() {
		raw, err := c.getter.GetParameter(ctx, c.tokenParam)
		if err != nil {
			c.tokenErr = fmt.Errorf("genie: fetch token from paramstore: %w", err)
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			c.tokenErr = errors.New("genie: API token is empty")
			return
		}
		c.token = raw
	})
	return c.token, c.tokenErr
}

type startConversationRequest struct {
	Content string `json:"content"`
}

type startConversationResponse struct {
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	Message        *messagePayload `json:"message"`
}

type messagePayload struct {
	ID             string              `json:"id"`
	MessageID      string              `json:"message_id"`
	ConversationID string              `json:"conversation_id"`
	Content        string              `json:"content"`
	Status         string              `json:"status"`
	Attachments    []attachmentPayload `json:"attachments"`
	QueryResult    *queryResultPayload `json:"query_result"`
}

type attachmentPayload struct {
	AttachmentID string        `json:"attachment_id"`
	Text         *textPayload  `json:"text"`
	Query        *queryPayload `json:"query"`
}

type textPayload struct {
	Content string `json:"content"`
}

type queryPayload struct {
	Description string `json:"description"`
	Query       string `json:"query"`
}

type queryResultPayload struct {
	StatementID string `json:"statement_id"`
}

type attachmentQueryResultResponse struct {
	StatementResponse *statementResponsePayload `json:"statement_response"`
}

type statementResponsePayload struct {
	StatementID string `json:"statement_id"`
}

type statementResultResponse struct {
	Manifest struct {
		Schema struct {
			Columns []domain.ColumnDef `json:"columns"`
		} `json:"schema"`
	} `json:"manifest"`
	Result struct {
		DataArray [][]any `json:"data_array"`
	} `json:"result"`
}

// StartConversationAndWait starts a conversation with the question and polls
// the created message until it reaches a terminal state.
func (c *Client) StartConversationAndWait(ctx context.Context, spaceID, question string) (domain.GenieMessage, error) {
	url := fmt.Sprintf("%s/api/2.0/genie/spaces/%s/start-conversation", c.baseURL, spaceID)
	var started startConversationResponse
	if err := c.doJSON(ctx, http.MethodPost, url, startConversationRequest{Content: question}, &started); err != nil {
		return domain.GenieMessage{}, err
	}

	conversationID := started.ConversationID
	messageID := started.MessageID
	if started.Message != nil {
		if conversationID == "" {
			conversationID = started.Message.ConversationID
		}
		if messageID == "" {
			messageID = messageIDOf(*started.Message)
		}
	}
	if conversationID == "" || messageID == "" {
		return domain.GenieMessage{}, errors.New("genie: start-conversation response missing ids")
	}

	deadline := time.Now().Add(c.waitTimeout)
	for {
		payload, err := c.getMessagePayload(ctx, spaceID, conversationID, messageID)
		if err != nil {
			return domain.GenieMessage{}, err
		}
		switch payload.Status {
		case statusCompleted:
			return toDomainMessage(payload, conversationID, messageID), nil
		case statusFailed, statusCancelled:
			return domain.GenieMessage{}, fmt.Errorf("genie: message ended in status %s", payload.Status)
		}
		if time.Now().After(deadline) {
			return domain.GenieMessage{}, errors.New("genie: timed out waiting for message completion")
		}
		select {
		case <-ctx.Done():
			return domain.GenieMessage{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// GetAttachmentQueryResult fetches the query result reference attached to a
// message.
func (c *Client) GetAttachmentQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (domain.QueryResult, error) {
	url := fmt.Sprintf("%s/api/2.0/genie/spaces/%s/conversations/%s/messages/%s/attachments/%s/query-result",
		c.baseURL, spaceID, conversationID, messageID, attachmentID)
	var out attachmentQueryResultResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return domain.QueryResult{}, err
	}
	if out.StatementResponse == nil {
		return domain.QueryResult{}, nil
	}
	return domain.QueryResult{StatementID: out.StatementResponse.StatementID}, nil
}

// GetMessage fetches the full message content and attachments.
func (c *Client) GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (domain.GenieMessage, error) {
	payload, err := c.getMessagePayload(ctx, spaceID, conversationID, messageID)
	if err != nil {
		return domain.GenieMessage{}, err
	}
	return toDomainMessage(payload, conversationID, messageID), nil
}

// GetStatementResult fetches the executed result set of a statement.
func (c *Client) GetStatementResult(ctx context.Context, statementID string) (domain.StatementResult, error) {
	url := fmt.Sprintf("%s/api/2.0/sql/statements/%s", c.baseURL, statementID)
	var out statementResultResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return domain.StatementResult{}, err
	}
	return domain.StatementResult{
		Columns: out.Manifest.Schema.Columns,
		Rows:    out.Result.DataArray,
	}, nil
}

func (c *Client) getMessagePayload(ctx context.Context, spaceID, conversationID, messageID string) (messagePayload, error) {
	url := fmt.Sprintf("%s/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
		c.baseURL, spaceID, conversationID, messageID)
	var payload messagePayload
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &payload); err != nil {
		return messagePayload{}, err
	}
	return payload, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("genie: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("genie: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genie: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("genie: read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("genie: decode response: %w", err)
	}
	return nil
}

func messageIDOf(payload messagePayload) string {
	if payload.MessageID != "" {
		return payload.MessageID
	}
	return payload.ID
}

func toDomainMessage(payload messagePayload, conversationID, messageID string) domain.GenieMessage {
	if payload.ConversationID != "" {
		conversationID = payload.ConversationID
	}
	if id := messageIDOf(payload); id != "" {
		messageID = id
	}
	msg := domain.GenieMessage{
		ConversationID: conversationID,
		MessageID:      messageID,
		Content:        payload.Content,
		HasQueryResult: payload.QueryResult != nil,
	}
	for _, att := range payload.Attachments {
		a := domain.GenieAttachment{ID: att.AttachmentID}
		if att.Text != nil {
			a.Text = att.Text.Content
		}
		if att.Query != nil {
			a.Description = att.Query.Description
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return msg
}
