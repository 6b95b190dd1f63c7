package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiSynthesizer implements RecipeSynthesizer on the Google Gemini API.
// It is selected over DeepSeek with LLM_PROVIDER=gemini.
type GeminiSynthesizer struct {
	client *genai.Client
}

// NewGeminiSynthesizer creates a Gemini-backed synthesizer.
func NewGeminiSynthesizer(ctx context.Context) (*GeminiSynthesizer, error) {
	apiKey, err := readKeyFromEnv("GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiSynthesizer{client: client}, nil
}

// Synthesize performs one recipe generation call. Permission and quota
// rejections from the API are wrapped as fatal.
func (s *GeminiSynthesizer) Synthesize(ctx context.Context, req *SynthesisRequest) (*CandidateRecipe, error) {
	model := s.client.GenerativeModel("gemini-1.5-flash")
	model.SetTemperature(float32(req.Temperature))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(synthesisSystemPrompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(buildSynthesisPrompt(req)))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
				return nil, &FatalSynthesisError{Err: err}
			}
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content generated")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("generated content is not text")
	}

	var candidate CandidateRecipe
	if err := json.Unmarshal([]byte(text), &candidate); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}

	return &candidate, nil
}

// Close closes the underlying Gemini client.
func (s *GeminiSynthesizer) Close() error {
	return s.client.Close()
}
