package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepScheduler runs the expiration sweeps on their own schedule,
// independent of request traffic. Both jobs are idempotent so overlapping or
// empty runs are harmless.
type SweepScheduler struct {
	cron      *cron.Cron
	lifecycle *RecipeLifecycleService
	plans     *MealPlanService
}

func NewSweepScheduler(lifecycle *RecipeLifecycleService, plans *MealPlanService) *SweepScheduler {
	return &SweepScheduler{
		cron:      cron.New(),
		lifecycle: lifecycle,
		plans:     plans,
	}
}

// Start registers the sweep at the given interval and starts the scheduler.
func (s *SweepScheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	spec := fmt.Sprintf("@every %ds", int(interval.Seconds()))
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	log.Printf("[Sweeper] scheduled expiration sweep every %s", interval)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes one sweep pass: purge expired recipes, then expire due
// plans. Also used directly by the sweep command.
func (s *SweepScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now()

	swept, err := s.lifecycle.Sweep(ctx, now)
	if err != nil {
		log.Printf("[Sweeper] recipe sweep failed: %v", err)
	} else {
		for _, r := range swept {
			log.Printf("[Sweeper] purged recipe %s (%q, expired %s)", r.ID, r.Name, r.ExpiresAt.Format(time.RFC3339))
		}
	}

	if _, err := s.plans.ExpireDue(ctx, now); err != nil {
		log.Printf("[Sweeper] plan expiration failed: %v", err)
	}
}
