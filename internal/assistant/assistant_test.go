package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/core"
	"penny/internal/genai"
)

func TestChat_Success(t *testing.T) {
	var gotPrompt string
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return `Here you go: {"response":"Save 200 a month.","quit":false,"name":"Alex","predictiveText1":"How?","predictiveText2":"Why?"}`, nil
	})
	a := New(gen, nil, Config{})

	res := a.Chat(context.Background(), ChatRequest{Persona: "Coach", Message: "Help me"})
	require.NoError(t, res.Err)
	assert.Equal(t, "Save 200 a month.", res.Reply.Response)
	assert.Equal(t, "Alex", res.Reply.Name)
	assert.True(t, strings.HasPrefix(gotPrompt, DefaultCatalog().Resolve("Coach").Instructions))
}

func TestChat_ExternalFailureFallsBack(t *testing.T) {
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", genai.ErrServerError
	})
	a := New(gen, nil, Config{})

	res := a.Chat(context.Background(), ChatRequest{Message: "hi", PreviousName: "Sam"})
	assert.Equal(t, FallbackReply("Sam"), res.Reply)
	assert.ErrorIs(t, res.Err, core.ErrExternalService)
	assert.ErrorIs(t, res.Err, genai.ErrServerError)
}

func TestChat_MalformedReplyFallsBack(t *testing.T) {
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "I am not JSON", nil
	})
	res := New(gen, nil, Config{}).Chat(context.Background(), ChatRequest{Message: "hi", PreviousName: "Sam"})
	assert.Equal(t, FallbackReply("Sam"), res.Reply)
	assert.ErrorIs(t, res.Err, core.ErrMalformedReply)
}

func TestChat_TimeoutFallsBack(t *testing.T) {
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	a := New(gen, nil, Config{Timeout: 10 * time.Millisecond})

	start := time.Now()
	res := a.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, FallbackResponse, res.Reply.Response)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}

func TestChat_EnforcesLength(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end. " + strings.Repeat("more ", 40)
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return `{"response":"` + long + `","quit":false,"name":"Alex"}`, nil
	})
	res := New(gen, nil, Config{MaxChars: 250}).Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, res.Err)
	assert.True(t, strings.HasSuffix(res.Reply.Response, "end."))
}

func TestChat_Unconfigured(t *testing.T) {
	res := New(nil, nil, Config{}).Chat(context.Background(), ChatRequest{Message: "hi", PreviousName: "Sam"})
	assert.Equal(t, FallbackReply("Sam"), res.Reply)
	assert.ErrorIs(t, res.Err, genai.ErrNotConfigured)
}

func TestAnalyzeGoal(t *testing.T) {
	var gotPrompt string
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "Yes, this is **achievable**.", nil
	})
	a := New(gen, nil, Config{})
	g := core.GoalRecord{Name: "Laptop", TargetAmount: decimal.NewFromInt(1200), Months: 6}
	budget := core.BudgetRecord{Income: core.AmountFromFloat(1500), MonthlyBudget: core.AmountFromFloat(1000)}

	res, err := a.AnalyzeGoal(context.Background(), "Friendly", g, budget)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.True(t, res.Assessment.Achievable)
	assert.Equal(t, "Yes, this is **achievable**.", res.Text)
	assert.Contains(t, gotPrompt, "capacity: 500.00")
}

func TestAnalyzeGoal_Failures(t *testing.T) {
	a := New(genai.Unconfigured{}, nil, Config{})
	g := core.GoalRecord{Name: "Laptop", TargetAmount: decimal.NewFromInt(1200), Months: 6}

	res, err := a.AnalyzeGoal(context.Background(), "", g, core.BudgetRecord{})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, GoalFallbackText, res.Text)
	assert.True(t, res.Assessment.Required.Equal(decimal.NewFromInt(200)))

	g.Months = 0
	_, err = a.AnalyzeGoal(context.Background(), "", g, core.BudgetRecord{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
