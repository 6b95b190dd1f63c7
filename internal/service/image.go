package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/backend/internal/model"
)

// FallbackImageURL is the constant reference a recipe receives when image
// synthesis or materialization fails. Image failures never fail a recipe.
const FallbackImageURL = "https://static.platewise.io/images/recipe-placeholder.png"

const materializeTimeout = 5 * time.Minute

// imageGenerationRequest represents a request to the DALL-E API
type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	ResponseFormat string `json:"response_format"`
}

// imageGenerationResponse represents the response from the DALL-E API
type imageGenerationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// DALLESynthesizer implements ImageSynthesizer against the OpenAI images API.
// The returned URL is transient; the pipeline copies the bytes into permanent
// storage.
type DALLESynthesizer struct {
	apiKey string
	apiURL string
	client *http.Client
}

func NewDALLESynthesizer() (*DALLESynthesizer, error) {
	apiKey, err := readKeyFromEnv("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	apiURL := os.Getenv("OPENAI_IMAGES_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/images/generations"
	}

	return &DALLESynthesizer{
		apiKey: apiKey,
		apiURL: apiURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Synthesize generates one dish image and returns its transient URL.
func (s *DALLESynthesizer) Synthesize(ctx context.Context, subject string, allergyHints []string) (string, error) {
	reqBody := imageGenerationRequest{
		Model:          "dall-e-3",
		Prompt:         buildImagePrompt(subject, allergyHints),
		N:              1,
		Size:           "1024x1024",
		Quality:        "standard", // Use standard quality to control costs
		ResponseFormat: "url",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result imageGenerationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", fmt.Errorf("no image data in API response")
	}

	return result.Data[0].URL, nil
}

// buildImagePrompt creates the food-photography prompt for one dish.
func buildImagePrompt(subject string, allergyHints []string) string {
	prompt := "A professional food photography shot of " + strings.ToLower(subject)
	if len(allergyHints) > 0 {
		prompt += ", prepared without " + strings.ToLower(strings.Join(allergyHints, ", "))
	}
	prompt += ", shot with natural lighting, shallow depth of field, garnished beautifully, restaurant quality presentation, high resolution, food styling, appetizing colors"

	// Keep under the API's prompt limit.
	if len(prompt) > 900 {
		prompt = prompt[:900]
	}
	return prompt
}

// ImagePipeline materializes recipe images in the background: synthesize a
// transient image, copy its bytes into permanent storage and patch the
// recipe record. Every failure resolves to the fallback reference; nothing
// here ever delays or fails the generation response.
type ImagePipeline struct {
	db     *gorm.DB
	synth  ImageSynthesizer
	store  ImageStore
	client *http.Client

	wg sync.WaitGroup
}

func NewImagePipeline(db *gorm.DB, synth ImageSynthesizer, store ImageStore) *ImagePipeline {
	return &ImagePipeline{
		db:    db,
		synth: synth,
		store: store,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// MaterializeAsync runs materialization on a detached background context so
// it completes even when the HTTP caller has disconnected.
func (p *ImagePipeline) MaterializeAsync(recipe *model.TemporaryRecipe, allergyHints []string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), materializeTimeout)
		defer cancel()

		p.Materialize(ctx, recipe.ID, recipe.Name, allergyHints)
	}()
}

// Wait blocks until every in-flight materialization has finished.
func (p *ImagePipeline) Wait() {
	p.wg.Wait()
}

// Materialize runs the pipeline for one recipe. It never returns an error;
// failures are logged and the recipe gets the fallback reference.
func (p *ImagePipeline) Materialize(ctx context.Context, recipeID uuid.UUID, subject string, allergyHints []string) {
	transientURL, err := p.synth.Synthesize(ctx, subject, allergyHints)
	if err != nil {
		log.Printf("[ImagePipeline] image synthesis failed for %s: %v", recipeID, err)
		p.patch(ctx, recipeID, FallbackImageURL, FallbackImageURL)
		return
	}

	// The transient reference is usable right away; the permanent one
	// lands moments later.
	p.patch(ctx, recipeID, transientURL, "")

	data, err := p.fetch(ctx, transientURL)
	if err != nil {
		log.Printf("[ImagePipeline] image fetch failed for %s: %v", recipeID, err)
		p.patch(ctx, recipeID, transientURL, FallbackImageURL)
		return
	}

	key := fmt.Sprintf("recipe-images/%s.png", recipeID)
	permanentURL, err := p.store.Store(ctx, data, key)
	if err != nil {
		log.Printf("[ImagePipeline] image upload failed for %s: %v", recipeID, err)
		p.patch(ctx, recipeID, transientURL, FallbackImageURL)
		return
	}

	p.patch(ctx, recipeID, transientURL, permanentURL)
	log.Printf("[ImagePipeline] materialized image for %s: %s", recipeID, permanentURL)
}

// fetch downloads the transient image bytes.
func (p *ImagePipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image, status: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// patch updates the recipe's image references. A missing record (e.g. swept
// or rolled back while the pipeline ran) is not an error.
func (p *ImagePipeline) patch(ctx context.Context, recipeID uuid.UUID, imageURL, permanentURL string) {
	updates := map[string]interface{}{"image_url": imageURL}
	if permanentURL != "" {
		updates["permanent_image_url"] = permanentURL
	}

	err := p.db.WithContext(ctx).Model(&model.TemporaryRecipe{}).
		Where("id = ?", recipeID).
		Updates(updates).Error
	if err != nil {
		log.Printf("[ImagePipeline] failed to patch recipe %s: %v", recipeID, err)
	}
}
