package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const defaultGenerationModel = "gemini-1.5-flash"

// GeminiGenerator produces answers through the Gemini SDK.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeneratorOption configures a GeminiGenerator
type GeneratorOption func(*GeminiGenerator)

// GeneratorWithModel overrides the generation model
func GeneratorWithModel(model string) GeneratorOption {
	return func(g *GeminiGenerator) { g.model = model }
}

// GeneratorWithTemperature overrides the sampling temperature
func GeneratorWithTemperature(t float32) GeneratorOption {
	return func(g *GeminiGenerator) { g.temperature = t }
}

// NewGeminiGenerator wraps an initialized genai client. Temperature stays
// low because answers must stick to the supplied excerpts.
func NewGeminiGenerator(client *genai.Client, opts ...GeneratorOption) *GeminiGenerator {
	g := &GeminiGenerator{
		client:      client,
		model:       defaultGenerationModel,
		temperature: 0.3,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs one completion for the prompt and returns the text parts.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyInput
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates returned", ErrGeneration)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", fmt.Errorf("%w: candidate carried no text", ErrGeneration)
	}
	return answer, nil
}
