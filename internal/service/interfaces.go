package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platewise/backend/internal/model"
)

// RecipeSynthesizer produces one candidate recipe per call. Implementations
// must wrap credential/permission failures in FatalSynthesisError; every
// other failure is treated as retryable by the synthesis engine.
type RecipeSynthesizer interface {
	Synthesize(ctx context.Context, req *SynthesisRequest) (*CandidateRecipe, error)
}

// ImageSynthesizer produces a transient URL for a generated image of the
// named dish. Any error sends the pipeline down the fallback path.
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, subject string, allergyHints []string) (string, error)
}

// ImageStore persists image bytes and returns a stable public URL.
type ImageStore interface {
	Store(ctx context.Context, data []byte, key string) (string, error)
}

// QuotaProvider bounds generation by subscription tier.
type QuotaProvider interface {
	AllowedDays(tier string) int
	RemainingFreeGenerations(ctx context.Context, userID uuid.UUID) (int, error)
	ConsumeGeneration(ctx context.Context, userID uuid.UUID) error
}

// RecipeLifecycle is the contract the orchestrator and the API layer use to
// manage temporary recipe records.
type RecipeLifecycle interface {
	Create(ctx context.Context, candidate *CandidateRecipe, ownerID uuid.UUID, planID *uuid.UUID, dayIndex int) (*model.TemporaryRecipe, error)
	Favorite(ctx context.Context, recipeID, ownerID uuid.UUID) (*model.TemporaryRecipe, error)
	Unfavorite(ctx context.Context, recipeID, ownerID uuid.UUID) (*model.TemporaryRecipe, error)
	Sweep(ctx context.Context, now time.Time) ([]model.TemporaryRecipe, error)
}

// ImageMaterializer runs the detached image pipeline for a saved recipe.
type ImageMaterializer interface {
	MaterializeAsync(recipe *model.TemporaryRecipe, allergyHints []string)
}
