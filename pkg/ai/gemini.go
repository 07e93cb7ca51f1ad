package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-1.5-flash"
)

// GeminiGenerator calls the Gemini generateContent API.
type GeminiGenerator struct {
	apiKey      string
	baseURL     string
	model       string
	jsonOutput  bool
	temperature *float64
	httpClient  *http.Client
}

// NewGeminiGenerator builds a Gemini TextGenerator. An empty BaseURL selects
// the public endpoint and an empty Model the flash model.
func NewGeminiGenerator(cfg GeneratorConfig) (*GeminiGenerator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/")
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiGenerator{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		jsonOutput:  cfg.JSONOutput,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// GenerateText concatenates the text parts of the first candidate. A prompt
// or candidate stopped by the safety filter is reported as an error.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	if g.jsonOutput || g.temperature != nil {
		reqBody.GenerationConfig = &geminiGenerationConfig{Temperature: g.temperature}
		if g.jsonOutput {
			reqBody.GenerationConfig.ResponseMIMEType = "application/json"
		}
	}

	header := http.Header{}
	header.Set("x-goog-api-key", g.apiKey)
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)

	var resp geminiResponse
	if err := postJSON(ctx, g.httpClient, "gemini", url, header, reqBody, &resp); err != nil {
		return "", err
	}
	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", reason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", fmt.Errorf("gemini blocked response: %s", candidate.FinishReason)
	}
	var b strings.Builder
	for _, p := range candidate.Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return b.String(), nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}
