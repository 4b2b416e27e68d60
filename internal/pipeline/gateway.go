package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/logger"
	"google.golang.org/genai"
)

// ModelGateway sends a prompt to a hosted generative model and returns its raw text.
// It is the only network dependency of the pipeline core.
type ModelGateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGateway is the ModelGateway backed by the Gemini API.
type GeminiGateway struct {
	client      *genai.Client
	model       string
	temperature float32
	hasKey      bool
}

// NewGeminiGateway creates a Gemini client for the given API key and model.
// A missing key is rejected here so that no pipeline run starts without a credential.
func NewGeminiGateway(ctx context.Context, apiKey, model string) (*GeminiGateway, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("NewGeminiGateway: %w: missing Gemini API key", domain.ErrUpstreamFailure)
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGateway: create genai client: %w", err)
	}

	return &GeminiGateway{
		client:      client,
		model:       model,
		temperature: DefaultTemperature,
		hasKey:      true,
	}, nil
}

// Generate implements ModelGateway. Every failure is reported as domain.ErrUpstreamFailure
// and is never retried here.
func (g *GeminiGateway) Generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil || !g.hasKey {
		return "", fmt.Errorf("Generate: %w: model gateway has no credential", domain.ErrUpstreamFailure)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("Generate: empty prompt")
	}

	log := logger.FromContext(ctx)

	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("Generate: %w: generate content: %v", domain.ErrUpstreamFailure, err)
	}

	if resp.UsageMetadata != nil {
		log.Debug().
			Str("model", g.model).
			Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Msg("Model call completed")
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Generate: %w: empty response from model", domain.ErrUpstreamFailure)
	}

	return text, nil
}

var _ ModelGateway = (*GeminiGateway)(nil)
