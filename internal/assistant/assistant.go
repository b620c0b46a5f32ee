// Package assistant builds prompts for the text-generation service and turns
// its free-text answers into structured replies.
//
// Every failure of the generation call or of reply extraction degrades to
// FallbackReply; callers always get something they can render.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"penny/internal/core"
	"penny/internal/genai"
	applog "penny/internal/log"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultMaxChars = 500

	// goal analyses are prose, not chat bubbles
	goalMaxChars = 4 * DefaultMaxChars
)

// GoalFallbackText is shown when an achievability analysis could not be generated.
const GoalFallbackText = "Penny couldn't analyse this goal right now. Your goal was still saved; try the analysis again later."

// Config tunes the generation boundary.
type Config struct {
	Timeout  time.Duration
	MaxChars int
}

// Assistant is the boundary between handlers and the generation service.
type Assistant struct {
	gen      genai.Generator
	catalog  *Catalog
	timeout  time.Duration
	maxChars int
}

func New(gen genai.Generator, catalog *Catalog, cfg Config) *Assistant {
	if gen == nil {
		gen = genai.Unconfigured{}
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	return &Assistant{gen: gen, catalog: catalog, timeout: cfg.Timeout, maxChars: cfg.MaxChars}
}

// Catalog exposes the persona catalog for selectors.
func (a *Assistant) Catalog() *Catalog { return a.catalog }

// ChatRequest is one user turn with its context.
type ChatRequest struct {
	Persona      string
	Budget       *core.BudgetRecord
	Goals        []core.GoalRecord
	History      []Message
	PreviousName string
	Message      string
}

// ChatResult carries the reply to render. Err is set, classified as
// core.ErrExternalService or core.ErrMalformedReply, when Reply is the
// fallback; it is informational only.
type ChatResult struct {
	Reply Reply
	Err   error
}

// Chat runs one turn. It never returns an error.
func (a *Assistant) Chat(ctx context.Context, req ChatRequest) ChatResult {
	persona := a.catalog.Resolve(req.Persona)
	prompt := BuildPrompt(PromptInput{
		Persona:     persona,
		Budget:      req.Budget,
		Goals:       req.Goals,
		History:     req.History,
		UserName:    req.PreviousName,
		UserMessage: req.Message,
		MaxChars:    a.maxChars,
	})

	start := time.Now()
	raw, err := a.generate(ctx, prompt)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrExternalService, err)
		a.report(ctx, "chat", string(persona.Name), err)
		return ChatResult{Reply: FallbackReply(req.PreviousName), Err: err}
	}

	reply, err := ParseReply(raw)
	if err != nil {
		a.report(ctx, "chat", string(persona.Name), err)
		return ChatResult{Reply: FallbackReply(req.PreviousName), Err: err}
	}
	if reply.Name == "" {
		reply.Name = req.PreviousName
	}
	reply = EnforceLength(reply, a.maxChars)

	applog.FromContext(ctx).WithComponent(applog.ComponentAssistant).InfoContext(ctx, "Assistant replied",
		applog.FieldPersona, persona.Name,
		applog.FieldReplyChars, len([]rune(reply.Response)),
		"quit", reply.Quit,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return ChatResult{Reply: reply}
}

// GoalAnalysis is the outcome of AnalyzeGoal.
type GoalAnalysis struct {
	Assessment core.Achievability
	Text       string
	Fallback   bool
}

// AnalyzeGoal compares the goal's monthly requirement with the budget's
// saving capacity and asks the model to explain the result. Only invalid
// goals return an error; generation failures set Fallback.
func (a *Assistant) AnalyzeGoal(ctx context.Context, persona string, g core.GoalRecord, budget core.BudgetRecord) (GoalAnalysis, error) {
	assessment, err := core.AssessGoal(g, budget)
	if err != nil {
		return GoalAnalysis{}, err
	}
	p := a.catalog.Resolve(persona)

	raw, err := a.generate(ctx, GoalPrompt(p, g, assessment))
	if err != nil {
		a.report(ctx, "analyze_goal", string(p.Name), fmt.Errorf("%w: %w", core.ErrExternalService, err))
		return GoalAnalysis{Assessment: assessment, Text: GoalFallbackText, Fallback: true}, nil
	}
	text := EnforceLength(Reply{Response: raw}, goalMaxChars).Response
	return GoalAnalysis{Assessment: assessment, Text: text}, nil
}

func (a *Assistant) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.gen.Generate(ctx, prompt)
}

func (a *Assistant) report(ctx context.Context, op, persona string, err error) {
	log := applog.FromContext(ctx).WithComponent(applog.ComponentAssistant)
	attrs := []any{applog.FieldOperation, op, applog.FieldPersona, persona, applog.FieldError, err}
	sentryLevel := sentry.LevelError
	if errors.Is(err, core.ErrMalformedReply) || errors.Is(err, genai.ErrNotConfigured) {
		sentryLevel = sentry.LevelWarning
		log.WarnContext(ctx, "Assistant fell back", attrs...)
	} else {
		log.ErrorContext(ctx, "Assistant fell back", attrs...)
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", op)
		scope.SetTag("persona", persona)
		scope.SetLevel(sentryLevel)
		hub.CaptureException(err)
	})
}
