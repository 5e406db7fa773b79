package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"assistant-web/internal/domain"
)

// tokenResponse is the session payload returned by the /token endpoint.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         domain.User `json:"user"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

// errorBody covers the error shapes GoTrue has used across versions.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// APIError is a non-2xx response from the auth API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// ProviderMessage is the provider's own message, suitable for display.
func (e *APIError) ProviderMessage() string {
	return e.Message
}

// Client is a focused client for the GoTrue REST API served under
// <project-url>/auth/v1.
type Client struct {
	baseURL    string
	publicKey  string
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the project at projectURL, authenticating
// requests with the project's public key.
func NewClient(projectURL, publicKey string, opts ...Option) (*Client, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" {
		return nil, errors.New("gotrue: project url must not be empty")
	}
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, errors.New("gotrue: public key must not be empty")
	}
	c := &Client{
		baseURL:    projectURL + "/auth/v1",
		publicKey:  publicKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	return c.token(ctx, "password", passwordGrant{Email: email, Password: password})
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("gotrue: refresh token must not be empty")
	}
	return c.token(ctx, "refresh_token", refreshGrant{RefreshToken: refreshToken})
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	url := c.baseURL + "/logout"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("gotrue: create logout request: %w", err)
	}
	c.setHeaders(req, accessToken)
	if _, err := c.doJSONRequest(req); err != nil {
		return err
	}
	return nil
}

func (c *Client) token(ctx context.Context, grantType string, body any) (*domain.Session, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gotrue: marshal %s grant: %w", grantType, err)
	}

	url := c.baseURL + "/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("gotrue: create %s request: %w", grantType, err)
	}
	c.setHeaders(req, "")

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return nil, err
	}

	var payload tokenResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("gotrue: decode %s response: %w", grantType, err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("gotrue: %s response missing access token", grantType)
	}
	return c.toSession(payload), nil
}

func (c *Client) toSession(p tokenResponse) *domain.Session {
	s := &domain.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		User:         p.User,
	}
	switch {
	case p.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(p.ExpiresAt, 0).UTC()
	case p.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(p.ExpiresIn) * time.Second).UTC()
	}
	return s
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.publicKey)
	bearer := c.publicKey
	if accessToken != "" {
		bearer = accessToken
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotrue: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, parseAPIError(res.StatusCode, buf)
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gotrue: read response body: %w", err)
	}
	return buf, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = firstNonEmpty(eb.ErrorCode, eb.Error)
	if s, ok := eb.Code.(string); ok && apiErr.Code == "" {
		apiErr.Code = s
	}
	apiErr.Message = firstNonEmpty(eb.Msg, eb.ErrorDescription, eb.Message, eb.Error, http.StatusText(status))
	return apiErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
