package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Generation defaults shared by both stages.
const (
	defaultTopP float32 = 0.95
	defaultTopK float32 = 40
)

// GeminiProvider implements Provider against the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	timeout time.Duration
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider dials the Gemini API with the given key. timeout bounds
// each individual request; zero means no per-request deadline.
func NewGeminiProvider(ctx context.Context, apiKey string, timeout time.Duration) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, timeout: timeout}, nil
}

// Generate issues one request. Safety blocks surface as ErrContentBlocked so
// the retry loop can classify them.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.Temperature),
		TopP:            genai.Ptr(defaultTopP),
		TopK:            genai.Ptr(defaultTopK),
		MaxOutputTokens: p.MaxOutputTokens,
		SafetySettings:  geminiSafetySettings(),
	}

	resp, err := g.client.Models.GenerateContent(ctx, p.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: candidate stopped (%s)", ErrContentBlocked, resp.Candidates[0].FinishReason)
	}
	return resp.Text(), nil
}

// geminiSafetySettings blocks medium-and-above content across the harm
// categories book generation can plausibly trip.
func geminiSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return settings
}
