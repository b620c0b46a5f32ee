package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: retries,
		RetryWait:  time.Millisecond,
		MaxWait:    2 * time.Millisecond,
	})
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":` + quote(text) + `}]},"finishReason":"STOP"}]}`))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerate_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(apiKeyHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		writeText(w, `{"response":"Hi"}`)
	}, 1)

	out, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"response":"Hi"}`, out)
	assert.Equal(t, "/v1beta/models/test-model:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "hello", gotReq.Contents[0].Parts[0].Text)
}

func TestGenerate_RetriesOnceOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeText(w, "second time lucky")
	}, 1)

	out, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", out)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerate_GivesUpAfterOneRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend exploded","status":"INTERNAL"}}`))
	}, 1)

	_, err := c.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "backend exploded")
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerate_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		code   string
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, "UNAUTHORIZED"},
		{"forbidden", http.StatusForbidden, ErrUnauthorized, "UNAUTHORIZED"},
		{"bad request", http.StatusBadRequest, ErrBadRequest, "BAD_REQUEST"},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, "RATE_LIMITED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, 0)
			_, err := c.Generate(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestGenerate_BlockedAndEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}, 0)
	_, err := c.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.False(t, IsRetryable(err))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}, 0)
	_, err = c.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_ContextDeadline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeText(w, "too late")
	}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerate_NoAPIKey(t *testing.T) {
	c := NewClient(Options{})
	_, err := c.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Unconfigured{}.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAPIError_Is(t *testing.T) {
	err := &APIError{Code: "RATE_LIMITED", Err: ErrRateLimited}
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, &APIError{Code: "RATE_LIMITED"})
	assert.NotErrorIs(t, err, ErrServerError)
}
