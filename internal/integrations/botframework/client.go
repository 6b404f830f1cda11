// Package botframework implements the channel side of the bot: connector
// authentication, reply activities, Teams file cards, and the artifact
// upload leg.
package botframework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultLoginURL   = "https://login.microsoftonline.com"
	connectorScope    = "https://api.botframework.com/.default"
	tokenExpiryMargin = time.Minute
)

// Credentials identify the registered bot application. Empty AppID runs the
// connector unauthenticated, for local emulator use.
type Credentials struct {
	AppID       string
	AppPassword string
	TenantID    string
}

// HTTPStatusError captures non-2xx connector responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("botframework: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts activities to the Bot Framework connector on behalf of the
// bot, refreshing its service token as needed.
type Client struct {
	creds      Credentials
	httpClient *http.Client
	loginURL   string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLoginURL overrides the token endpoint base, for tests.
func WithLoginURL(loginURL string) Option {
	return func(c *Client) {
		c.loginURL = strings.TrimRight(strings.TrimSpace(loginURL), "/")
	}
}

func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if creds.AppID != "" && creds.AppPassword == "" {
		return nil, errors.New("botframework: app password required when app id is set")
	}
	c := &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		loginURL:   defaultLoginURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a valid connector token, requesting a new one via the
// client-credentials grant when the cached token is near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	tenant := c.creds.TenantID
	if tenant == "" {
		tenant = "botframework.com"
	}
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.loginURL, tenant)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.creds.AppID)
	form.Set("client_secret", c.creds.AppPassword)
	form.Set("scope", connectorScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("botframework: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("botframework: token request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(buf)}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("botframework: read token response: %w", err)
	}
	var payload tokenResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("botframework: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("botframework: empty access token in response")
	}

	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.token, nil
}

// sendActivity posts a reply activity to the conversation of the inbound
// activity.
func (c *Client) sendActivity(ctx context.Context, serviceURL, conversationID, replyToID string, activity Activity) error {
	base := strings.TrimRight(serviceURL, "/")
	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities", base, url.PathEscape(conversationID))
	if replyToID != "" {
		endpoint += "/" + url.PathEscape(replyToID)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("botframework: marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("botframework: create activity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds.AppID != "" {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("botframework: send activity: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}
