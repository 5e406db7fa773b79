package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"assistant-web/internal/domain"
)

// DefaultAssistantFunction is the edge function that answers chat prompts.
const DefaultAssistantFunction = "asistente_eventos"

// HTTPStatusError captures non-2xx responses from an edge function.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("functions: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// TokenSource yields the access token of the signed-in user, or "" when
// there is none.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client invokes edge functions served under <project-url>/functions/v1.
type Client struct {
	baseURL    string
	publicKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(projectURL, publicKey string, opts ...Option) (*Client, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" {
		return nil, errors.New("functions: project url must not be empty")
	}
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return nil, errors.New("functions: public key must not be empty")
	}
	c := &Client{
		baseURL:    projectURL + "/functions/v1",
		publicKey:  publicKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
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
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) functionURL(name string) string {
	return c.baseURL + "/" + url.PathEscape(name)
}

// Invoke posts req to the named function. accessToken may be empty, in which
// case the call is made with the public key. A 2xx body that carries no
// ai_response, or is not JSON at all, yields an empty response rather than an
// error.
func (c *Client) Invoke(ctx context.Context, accessToken, name string, req domain.AssistantRequest) (domain.AssistantResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.AssistantResponse{}, errors.New("functions: function name must not be empty")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.AssistantResponse{}, fmt.Errorf("functions: marshal request: %w", err)
	}

	endpoint := c.functionURL(name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AssistantResponse{}, fmt.Errorf("functions: create request: %w", err)
	}
	bearer := c.publicKey
	if accessToken != "" {
		bearer = accessToken
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.publicKey)
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	raw, err := c.doRequest(httpReq, endpoint)
	if err != nil {
		return domain.AssistantResponse{}, fmt.Errorf("functions: invoke %s: %w", name, err)
	}

	var payload struct {
		AIResponse string `json:"ai_response"`
		Error      any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("assistant function returned a non-JSON body", "function", name, "err", err)
		return domain.AssistantResponse{}, nil
	}
	if payload.Error != nil {
		c.logger.Warn("assistant function reported an error", "function", name, "error", payload.Error)
	}
	return domain.AssistantResponse{AIResponse: payload.AIResponse}, nil
}

func (c *Client) doRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// Bind returns a Caller that invokes name with the tokens of one user.
func (c *Client) Bind(name string, tokens TokenSource) *Caller {
	if strings.TrimSpace(name) == "" {
		name = DefaultAssistantFunction
	}
	return &Caller{client: c, name: name, tokens: tokens}
}

// Caller invokes a fixed function on behalf of one user.
type Caller struct {
	client *Client
	name   string
	tokens TokenSource
}

func (c *Caller) Invoke(ctx context.Context, req domain.AssistantRequest) (domain.AssistantResponse, error) {
	var token string
	if c.tokens != nil {
		t, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return domain.AssistantResponse{}, fmt.Errorf("functions: resolve access token: %w", err)
		}
		token = t
	}
	return c.client.Invoke(ctx, token, c.name, req)
}
