// Package assistant runs chat turns against a text generation backend.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion is returned when the backend answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Generator turns a prompt into reply text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EchoGenerator answers without a network call. Used for offline runs.
type EchoGenerator struct{}

func (EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("You said: %s", lastUtterance(prompt)), nil
}

// lastUtterance extracts the newest user line from a rendered prompt.
func lastUtterance(prompt string) string {
	if !strings.HasSuffix(prompt, "\nAssistant:") {
		return strings.TrimSpace(prompt)
	}
	body := strings.TrimSuffix(prompt, "\nAssistant:")
	if i := strings.LastIndex(body, "\nUser: "); i >= 0 {
		return strings.TrimSpace(body[i+len("\nUser: "):])
	}
	return strings.TrimSpace(strings.TrimPrefix(body, "User: "))
}
