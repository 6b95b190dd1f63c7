package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/platewise/backend/config"
	"github.com/platewise/backend/internal/database"
	"github.com/platewise/backend/internal/service"
)

// One-shot expiration sweep, for running out of band of the API server (e.g.
// as a scheduled container job).
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := database.WaitForDatabase(cfg, 5, 2*time.Second); err != nil {
		log.Fatalf("Database unavailable: %v", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	lifecycle := service.NewRecipeLifecycleService(db)
	quota := service.NewTierQuotaService(nil)
	plans := service.NewMealPlanService(db, quota)

	service.NewSweepScheduler(lifecycle, plans).RunOnce()
}
