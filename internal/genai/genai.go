// Package genai talks to the hosted text-generation service.
//
// The rest of the application depends only on Generator; Client is the
// Gemini implementation and Unconfigured stands in when no API key is set.
package genai

import "context"

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Generate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
