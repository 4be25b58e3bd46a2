// Package llm defines the port to the pluggable LLM/embedding capability.
package llm

import "context"

// Client is the capability interface implemented by every provider variant.
type Client interface {
	// Generate produces a completion for the prompt, optionally steered by a
	// system prompt.
	Generate(ctx context.Context, system, prompt string) (string, error)

	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
