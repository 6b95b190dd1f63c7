package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/backend/internal/model"
)

// Lifetimes of a temporary recipe in its two states.
const (
	EphemeralTTL = 48 * time.Hour
	FavoritedTTL = 365 * 24 * time.Hour
)

var (
	// ErrRecipeNotFound is returned when the target recipe id does not exist.
	ErrRecipeNotFound = errors.New("recipe not found")
	// ErrNotFavorited is returned when unfavoriting a record that is not
	// currently favorited.
	ErrNotFavorited = errors.New("recipe is not favorited")
)

// RecipeLifecycleService owns the ephemeral/permanent state of temporary
// recipes: creation with a two-day clock, the favorite/unfavorite
// transitions, and the periodic expiration sweep. Favorite-count arithmetic
// happens in SQL so concurrent favoriting across users cannot lose updates.
type RecipeLifecycleService struct {
	db *gorm.DB
}

func NewRecipeLifecycleService(db *gorm.DB) *RecipeLifecycleService {
	return &RecipeLifecycleService{db: db}
}

// Create promotes an accepted candidate into a persisted ephemeral record.
// The candidate has no identity until this point; the id is assigned here.
func (s *RecipeLifecycleService) Create(ctx context.Context, candidate *CandidateRecipe, ownerID uuid.UUID, planID *uuid.UUID, dayIndex int) (*model.TemporaryRecipe, error) {
	expiresAt := time.Now().Add(EphemeralTTL)

	recipe := &model.TemporaryRecipe{
		ID:           uuid.New(),
		Name:         candidate.Name,
		Description:  candidate.Description,
		MealSlot:     candidate.MealSlot,
		DayIndex:     dayIndex,
		PrepTime:     candidate.PrepTime,
		CookTime:     candidate.CookTime,
		Servings:     candidate.Servings,
		Complexity:   candidate.Complexity,
		Ingredients:  candidate.Ingredients,
		Instructions: candidate.Instructions,
		Tags:         candidate.Tags,
		Calories:     candidate.Calories,
		Protein:      candidate.Protein,
		Carbs:        candidate.Carbs,
		Fat:          candidate.Fat,
		Favorited:    false,
		ExpiresAt:    &expiresAt,
		UserID:       ownerID,
		MealPlanID:   planID,
	}

	if err := s.db.WithContext(ctx).Create(recipe).Error; err != nil {
		return nil, fmt.Errorf("failed to persist recipe: %w", err)
	}
	return recipe, nil
}

// Favorite marks a recipe as a keeper for the given owner. If the owner has
// no record for that recipe name yet, a permanent copy is created for them;
// an existing unfavorited sibling is flipped instead. Either way the shared
// per-name favorites count is incremented for every record carrying the
// name. Favoriting an already-favorited record is a no-op on the counter.
func (s *RecipeLifecycleService) Favorite(ctx context.Context, recipeID, ownerID uuid.UUID) (*model.TemporaryRecipe, error) {
	var result *model.TemporaryRecipe

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target model.TemporaryRecipe
		if err := tx.First(&target, "id = ?", recipeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}

		var sibling model.TemporaryRecipe
		err := tx.First(&sibling, "user_id = ? AND name = ?", ownerID, target.Name).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// The owner has no copy of this recipe; give them a
			// permanent one carrying the current shared count.
			expiresAt := time.Now().Add(FavoritedTTL)
			clone := target
			clone.ID = uuid.New()
			clone.CreatedAt = time.Time{}
			clone.UpdatedAt = time.Time{}
			clone.UserID = ownerID
			clone.MealPlanID = nil
			clone.Favorited = true
			clone.ExpiresAt = &expiresAt
			if err := tx.Create(&clone).Error; err != nil {
				return err
			}
			result = &clone
		case err != nil:
			return err
		case sibling.Favorited:
			// Idempotent under retry: no counter change.
			result = &sibling
			return nil
		default:
			expiresAt := time.Now().Add(FavoritedTTL)
			if err := tx.Model(&sibling).Updates(map[string]interface{}{
				"favorited":  true,
				"expires_at": expiresAt,
			}).Error; err != nil {
				return err
			}
			sibling.Favorited = true
			sibling.ExpiresAt = &expiresAt
			result = &sibling
		}

		// Shared popularity counter: bump every record with this name,
		// whoever owns it. The increment runs in SQL so concurrent
		// favorites cannot lose updates.
		if err := tx.Model(&model.TemporaryRecipe{}).
			Where("name = ?", target.Name).
			UpdateColumn("favorites_count", gorm.Expr("COALESCE(favorites_count, 0) + 1")).Error; err != nil {
			return err
		}
		result.FavoritesCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Unfavorite returns the owner's favorited record to the ephemeral state and
// decrements the shared per-name count, floored at zero.
func (s *RecipeLifecycleService) Unfavorite(ctx context.Context, recipeID, ownerID uuid.UUID) (*model.TemporaryRecipe, error) {
	var result *model.TemporaryRecipe

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recipe model.TemporaryRecipe
		if err := tx.First(&recipe, "id = ? AND user_id = ?", recipeID, ownerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}
		if !recipe.Favorited {
			return ErrNotFavorited
		}

		expiresAt := time.Now().Add(EphemeralTTL)
		if err := tx.Model(&recipe).Updates(map[string]interface{}{
			"favorited":  false,
			"expires_at": expiresAt,
		}).Error; err != nil {
			return err
		}

		// Floored decrement; never goes negative even under races.
		if err := tx.Model(&model.TemporaryRecipe{}).
			Where("name = ?", recipe.Name).
			UpdateColumn("favorites_count", gorm.Expr("CASE WHEN favorites_count > 0 THEN favorites_count - 1 ELSE 0 END")).Error; err != nil {
			return err
		}

		recipe.Favorited = false
		recipe.ExpiresAt = &expiresAt
		if recipe.FavoritesCount > 0 {
			recipe.FavoritesCount--
		}
		result = &recipe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Sweep purges every unfavorited record whose expiration has passed and
// returns the deleted set for auditing. Running it when nothing is expired
// is a no-op.
func (s *RecipeLifecycleService) Sweep(ctx context.Context, now time.Time) ([]model.TemporaryRecipe, error) {
	var expired []model.TemporaryRecipe

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("favorited = ? AND expires_at < ?", false, now).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(expired))
		for i, r := range expired {
			ids[i] = r.ID
		}

		// Repeat the predicates: a favorite committed between the read
		// and this delete must rescue its row.
		res := tx.Unscoped().
			Where("id IN ? AND favorited = ? AND expires_at < ?", ids, false, now).
			Delete(&model.TemporaryRecipe{})
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected != int64(len(expired)) {
			var survivors []uuid.UUID
			if err := tx.Unscoped().Model(&model.TemporaryRecipe{}).
				Where("id IN ?", ids).
				Pluck("id", &survivors).Error; err != nil {
				return err
			}
			rescued := make(map[uuid.UUID]bool, len(survivors))
			for _, id := range survivors {
				rescued[id] = true
			}
			deleted := expired[:0]
			for _, r := range expired {
				if !rescued[r.ID] {
					deleted = append(deleted, r)
				}
			}
			expired = deleted
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep failed: %w", err)
	}

	if len(expired) > 0 {
		log.Printf("[Lifecycle] swept %d expired recipes", len(expired))
	}
	return expired, nil
}

// GetRecipe fetches a single recipe by id.
func (s *RecipeLifecycleService) GetRecipe(ctx context.Context, id uuid.UUID) (*model.TemporaryRecipe, error) {
	var recipe model.TemporaryRecipe
	if err := s.db.WithContext(ctx).First(&recipe, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	return &recipe, nil
}

// ListRecipes lists a user's live recipes, newest first.
func (s *RecipeLifecycleService) ListRecipes(ctx context.Context, ownerID uuid.UUID) ([]model.TemporaryRecipe, error) {
	var recipes []model.TemporaryRecipe
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&recipes).Error
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// SlotFilled reports whether a plan already holds an accepted recipe at the
// given (day, slot) identity.
func (s *RecipeLifecycleService) SlotFilled(ctx context.Context, planID uuid.UUID, dayIndex int, mealSlot string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.TemporaryRecipe{}).
		Where("meal_plan_id = ? AND day_index = ? AND meal_slot = ?", planID, dayIndex, mealSlot).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PlanRecipeNames returns the accepted recipe names of one plan, used as the
// exclude set when regenerating a missing slot.
func (s *RecipeLifecycleService) PlanRecipeNames(ctx context.Context, planID uuid.UUID) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&model.TemporaryRecipe{}).
		Where("meal_plan_id = ?", planID).
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// DeletePlanRecipes removes every recipe of a plan, used when a batch aborts
// on a fatal synthesizer error after some slots were already persisted.
func (s *RecipeLifecycleService) DeletePlanRecipes(ctx context.Context, planID uuid.UUID) error {
	return s.db.WithContext(ctx).Unscoped().
		Delete(&model.TemporaryRecipe{}, "meal_plan_id = ?", planID).Error
}
