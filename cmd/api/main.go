package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/platewise/backend/config"
	"github.com/platewise/backend/internal/api"
	"github.com/platewise/backend/internal/database"
	"github.com/platewise/backend/internal/router"
	"github.com/platewise/backend/internal/server"
	"github.com/platewise/backend/internal/service"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := database.WaitForDatabase(cfg, 10, 2*time.Second); err != nil {
		log.Fatalf("Database unavailable: %v", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient, err := database.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	ctx := context.Background()

	var synth service.RecipeSynthesizer
	if cfg.LLMProvider == "gemini" {
		synth, err = service.NewGeminiSynthesizer(ctx)
	} else {
		synth, err = service.NewDeepSeekSynthesizer()
	}
	if err != nil {
		log.Fatalf("Failed to create recipe synthesizer: %v", err)
	}

	imageSynth, err := service.NewDALLESynthesizer()
	if err != nil {
		log.Fatalf("Failed to create image synthesizer: %v", err)
	}

	s3Config, err := config.NewS3Config(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize S3: %v", err)
	}

	lifecycle := service.NewRecipeLifecycleService(db)
	quota := service.NewTierQuotaService(redisClient)
	plans := service.NewMealPlanService(db, quota)
	images := service.NewImagePipeline(db, imageSynth, s3Config)
	engine := service.NewSynthesisEngine(synth)
	planner := service.NewPlannerService(engine, lifecycle, plans, quota, images)
	auth := service.NewAuthService(db, cfg.JWTSecret)

	sweeper := service.NewSweepScheduler(lifecycle, plans)
	if err := sweeper.Start(cfg.SweepInterval); err != nil {
		log.Fatalf("Failed to start sweep scheduler: %v", err)
	}

	engineRouter := router.SetupRouter(
		api.NewAuthHandler(auth),
		api.NewPlanHandler(planner, plans),
		api.NewRecipeHandler(lifecycle),
		auth,
	)

	srv := server.New(engineRouter, cfg.ServerHost+":"+cfg.ServerPort)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s:%s", cfg.ServerHost, cfg.ServerPort)
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-quit:
		log.Printf("Received signal: %v", sig)
	}

	log.Println("Shutting down server...")
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	// Let in-flight image materializations land before exit.
	images.Wait()
	log.Println("Server stopped")
}
