package router

import (
	"github.com/gin-gonic/gin"

	"github.com/platewise/backend/internal/api"
	"github.com/platewise/backend/internal/middleware"
)

// SetupRouter configures the application routes
func SetupRouter(
	authHandler *api.AuthHandler,
	planHandler *api.PlanHandler,
	recipeHandler *api.RecipeHandler,
	validator middleware.TokenValidator,
) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORS())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
	}

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(validator))
	{
		plans := protected.Group("/plans")
		{
			plans.POST("", planHandler.GeneratePlan)
			plans.GET("/:id", planHandler.GetPlan)
			plans.POST("/:id/regenerate", planHandler.RegenerateSlot)
		}

		recipes := protected.Group("/recipes")
		{
			recipes.GET("", recipeHandler.ListRecipes)
			recipes.GET("/:id", recipeHandler.GetRecipe)
			recipes.POST("/:id/favorite", recipeHandler.FavoriteRecipe)
			recipes.DELETE("/:id/favorite", recipeHandler.UnfavoriteRecipe)
		}
	}

	return router
}
