package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DeepSeekSynthesizer implements RecipeSynthesizer against the DeepSeek
// chat-completions API.
type DeepSeekSynthesizer struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewDeepSeekSynthesizer creates a synthesizer from the environment. The key
// comes from DEEPSEEK_API_KEY or, for secret-file deployments, the file named
// by DEEPSEEK_API_KEY_FILE.
func NewDeepSeekSynthesizer() (*DeepSeekSynthesizer, error) {
	apiKey, err := readKeyFromEnv("DEEPSEEK_API_KEY")
	if err != nil {
		return nil, err
	}

	apiURL := os.Getenv("DEEPSEEK_API_URL")
	if apiURL == "" {
		apiURL = "https://api.deepseek.com/v1/chat/completions"
	}

	return &DeepSeekSynthesizer{
		apiKey: apiKey,
		apiURL: apiURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// chatMessage is a message in the chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is a request to the DeepSeek API.
type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []chatMessage     `json:"messages"`
	ResponseFormat   map[string]string `json:"response_format"`
	Temperature      float64           `json:"temperature"`
	TopP             float64           `json:"top_p"`
	FrequencyPenalty float64           `json:"frequency_penalty"`
	PresencePenalty  float64           `json:"presence_penalty"`
}

// Synthesize performs one recipe generation call. HTTP 401/402/403 are
// credential or account failures and come back wrapped as fatal; everything
// else is retryable.
func (s *DeepSeekSynthesizer) Synthesize(ctx context.Context, req *SynthesisRequest) (*CandidateRecipe, error) {
	reqBody := chatRequest{
		Model: "deepseek-chat",
		Messages: []chatMessage{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: buildSynthesisPrompt(req)},
		},
		ResponseFormat: map[string]string{
			"type": "json_object",
		},
		Temperature:      req.Temperature,
		TopP:             0.9,
		FrequencyPenalty: 0.5, // Penalize repeated tokens
		PresencePenalty:  0.5, // Encourage new topics
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return nil, &FatalSynthesisError{
			Err: fmt.Errorf("API rejected request with status %d: %s", resp.StatusCode, string(body)),
		}
	default:
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no response from API")
	}

	var candidate CandidateRecipe
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &candidate); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}

	return &candidate, nil
}

// readKeyFromEnv reads an API key from the named environment variable or the
// file named by <name>_FILE.
func readKeyFromEnv(name string) (string, error) {
	if key := os.Getenv(name); key != "" {
		return key, nil
	}

	keyFile := os.Getenv(name + "_FILE")
	if keyFile == "" {
		return "", fmt.Errorf("%s or %s_FILE must be set", name, name)
	}

	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file: %w", err)
	}

	key := strings.TrimSpace(string(keyBytes))
	if key == "" {
		return "", fmt.Errorf("API key file is empty")
	}
	return key, nil
}
