package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	applog "penny/internal/log"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	apiKeyHeader = "x-goog-api-key"
	contentType  = "application/json"
)

// Options configures a Client. Zero values fall back to the defaults above,
// one retry and a 30s HTTP timeout.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	MaxRetries int
	RetryWait  time.Duration
	MaxWait    time.Duration
	Logger     *applog.Logger
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	retryClient *retryablehttp.Client
	logger      *applog.Logger
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewClient builds a Client. The retrying transport performs MaxRetries
// additional attempts on connection errors, 429 and 5xx answers.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = opts.HTTPClient
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = opts.RetryWait
	rc.RetryWaitMax = opts.MaxWait
	logger := opts.Logger.WithComponent(applog.ComponentGenAI)
	rc.Logger = retryLogger{logger}
	// Hand the last response back so its status can be mapped below.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		retryClient: rc,
		logger:      logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	req.Header.Set(apiKeyHeader, c.apiKey)

	c.logger.DebugContext(ctx, "Generate request", "model", c.model, "prompt", truncate(prompt, 120))

	start := time.Now()
	resp, err := c.retryClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return "", errors.Wrap(ErrTimeout, err.Error())
		}
		return "", errors.Wrap(err, "generate request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}

	c.logger.DebugContext(ctx, "Generate response",
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"size", len(respBody))

	if resp.StatusCode != http.StatusOK {
		return "", handleHTTPError(resp.StatusCode, respBody)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", &APIError{Code: "BLOCKED", Message: gr.PromptFeedback.BlockReason, StatusCode: resp.StatusCode, Err: ErrBlocked}
	}
	if len(gr.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func handleHTTPError(statusCode int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	msg := er.Error.Message
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &APIError{Code: "UNAUTHORIZED", Message: msg, StatusCode: statusCode, Err: ErrUnauthorized}
	case statusCode == http.StatusTooManyRequests:
		return &APIError{Code: "RATE_LIMITED", Message: msg, StatusCode: statusCode, Err: ErrRateLimited}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &APIError{Code: "TIMEOUT", Message: msg, StatusCode: statusCode, Err: ErrTimeout}
	case statusCode == http.StatusBadRequest:
		return &APIError{Code: "BAD_REQUEST", Message: msg, StatusCode: statusCode, Err: ErrBadRequest}
	case statusCode >= 500:
		return &APIError{
			Code:       "SERVER_ERROR",
			Message:    fmt.Sprintf("server error: %d: %s", statusCode, msg),
			StatusCode: statusCode,
			Err:        ErrServerError,
		}
	default:
		return &APIError{Code: "HTTP_ERROR", Message: fmt.Sprintf("HTTP error: %d", statusCode), StatusCode: statusCode}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// retryLogger satisfies retryablehttp.LeveledLogger. Attempt failures are
// warnings; everything else is debug.
type retryLogger struct{ *applog.Logger }

func (l retryLogger) Error(msg string, kv ...any) { l.Logger.Warn(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...any)  { l.Logger.Warn(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...any)  { l.Logger.Debug(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...any) { l.Logger.Debug(msg, kv...) }
