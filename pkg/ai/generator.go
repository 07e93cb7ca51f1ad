// Package ai wraps hosted text-generation APIs.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai-compat"
)

// GeneratorConfig selects and configures a provider. JSONOutput asks the
// provider for a bare JSON reply where it supports that.
type GeneratorConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	JSONOutput  bool
	Temperature *float64
}

// NewGenerator builds the configured provider. Gemini is the default.
func NewGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderGemini:
		g, err := NewGeminiGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOpenAICompat:
		g, err := NewOpenAICompatGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
