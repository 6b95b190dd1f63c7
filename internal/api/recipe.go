package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/backend/internal/service"
)

// RecipeHandler exposes the recipe lifecycle: listing, favoriting and
// unfavoriting.
type RecipeHandler struct {
	lifecycle *service.RecipeLifecycleService
}

func NewRecipeHandler(lifecycle *service.RecipeLifecycleService) *RecipeHandler {
	return &RecipeHandler{lifecycle: lifecycle}
}

func (h *RecipeHandler) ListRecipes(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	recipes, err := h.lifecycle.ListRecipes(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipes": recipes})
}

func (h *RecipeHandler) GetRecipe(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipe id"})
		return
	}

	recipe, err := h.lifecycle.GetRecipe(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRecipeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recipe":        recipe,
		"expiring_soon": recipe.ExpiringSoon(timeNow()),
	})
}

func (h *RecipeHandler) FavoriteRecipe(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipe id"})
		return
	}

	userID, _, ok := identity(c)
	if !ok {
		return
	}

	recipe, err := h.lifecycle.Favorite(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, service.ErrRecipeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to favorite recipe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipe": recipe})
}

func (h *RecipeHandler) UnfavoriteRecipe(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipe id"})
		return
	}

	userID, _, ok := identity(c)
	if !ok {
		return
	}

	recipe, err := h.lifecycle.Unfavorite(c.Request.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecipeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		case errors.Is(err, service.ErrNotFavorited):
			c.JSON(http.StatusConflict, gin.H{"error": "Recipe is not favorited"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unfavorite recipe"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipe": recipe})
}
