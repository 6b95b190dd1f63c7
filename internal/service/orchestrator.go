package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/platewise/backend/internal/model"
	"github.com/platewise/backend/internal/types"
)

// Batch status reported to the caller.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

const defaultWorkerLimit = 4

var (
	// ErrQuotaExhausted is returned when a free-tier user has no
	// generations left today.
	ErrQuotaExhausted = errors.New("daily generation quota exhausted")
	// ErrPlanExpired is returned when regenerating a slot of an expired
	// plan; expired plans are terminal.
	ErrPlanExpired = errors.New("meal plan has expired")
	// ErrSlotAlreadyFilled is returned when regenerating a (day, slot)
	// that already holds an accepted recipe. A plan carries at most one
	// recipe per slot identity.
	ErrSlotAlreadyFilled = errors.New("slot already has an accepted recipe")
)

// MissingSlot identifies a (day, meal slot) pair the batch could not fill.
type MissingSlot struct {
	Day      int    `json:"day"`
	MealSlot string `json:"meal_slot"`
}

// GenerationResult is the outcome of one batch. Accepted plus Missing always
// covers every task of the grid.
type GenerationResult struct {
	Plan     *model.MealPlan         `json:"plan"`
	Accepted []model.TemporaryRecipe `json:"accepted"`
	Missing  []MissingSlot           `json:"missing"`
	Status   string                  `json:"status"`
}

// generationTask is one cell of the day x slot grid.
type generationTask struct {
	day  int
	slot string
}

// taskOutcome is the terminal state of one task.
type taskOutcome struct {
	task   generationTask
	recipe *model.TemporaryRecipe
	err    error
}

// PlannerService is the generation orchestrator. It fans the day x slot grid
// out over a bounded worker pool, runs every task through the synthesis
// engine, persists accepted recipes as ephemeral records and kicks off image
// materialization without waiting for it. A task that exhausts its budget
// becomes a missing slot; only a fatal synthesizer error aborts the batch.
type PlannerService struct {
	engine    *SynthesisEngine
	lifecycle *RecipeLifecycleService
	plans     *MealPlanService
	quota     QuotaProvider
	images    ImageMaterializer
	workers   int
}

func NewPlannerService(engine *SynthesisEngine, lifecycle *RecipeLifecycleService, plans *MealPlanService, quota QuotaProvider, images ImageMaterializer) *PlannerService {
	return &PlannerService{
		engine:    engine,
		lifecycle: lifecycle,
		plans:     plans,
		quota:     quota,
		images:    images,
		workers:   defaultWorkerLimit,
	}
}

// GeneratePlan runs one full batch for the user. The whole grid runs to
// completion before the result is returned; there is no mid-batch
// cancellation beyond the caller's context.
func (s *PlannerService) GeneratePlan(ctx context.Context, userID uuid.UUID, tier string, req *types.GeneratePlanRequest) (*GenerationResult, error) {
	if tier != model.TierPremium {
		remaining, err := s.quota.RemainingFreeGenerations(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check generation quota: %w", err)
		}
		if remaining <= 0 {
			return nil, ErrQuotaExhausted
		}
	}

	plan, err := s.plans.Create(ctx, userID, tier, req.Days)
	if err != nil {
		return nil, err
	}

	if err := s.quota.ConsumeGeneration(ctx, userID); err != nil {
		log.Printf("[Planner] failed to record generation usage: %v", err)
	}

	constraints := Constraints{
		Dietary:   req.Dietary,
		Allergies: req.Allergies,
		Cuisines:  req.Cuisines,
		Proteins:  req.Proteins,
	}

	tasks := make([]generationTask, 0, plan.DaysGenerated*len(MealSlots))
	for day := 0; day < plan.DaysGenerated; day++ {
		for _, slot := range MealSlots {
			tasks = append(tasks, generationTask{day: day, slot: slot})
		}
	}

	outcomes, fatalErr := s.runBatch(ctx, plan, constraints, tasks)
	if fatalErr != nil {
		// Fatal errors abort the whole batch: drop anything a faster
		// task already persisted, and the plan itself, so the caller
		// gets a clean failure.
		if err := s.lifecycle.DeletePlanRecipes(context.Background(), plan.ID); err != nil {
			log.Printf("[Planner] failed to clean up aborted batch %s: %v", plan.ID, err)
		}
		if err := s.plans.Delete(context.Background(), plan.ID); err != nil {
			log.Printf("[Planner] failed to remove aborted plan %s: %v", plan.ID, err)
		}
		return nil, fatalErr
	}

	result := &GenerationResult{Plan: plan}
	for _, out := range outcomes {
		if out.recipe != nil {
			result.Accepted = append(result.Accepted, *out.recipe)
		} else {
			result.Missing = append(result.Missing, MissingSlot{Day: out.task.day, MealSlot: out.task.slot})
		}
	}
	sortResult(result)

	result.Status = StatusPartial
	if len(result.Missing) == 0 {
		result.Status = StatusComplete
	}

	log.Printf("[Planner] batch %s finished: %d accepted, %d missing",
		plan.ID, len(result.Accepted), len(result.Missing))
	return result, nil
}

// runBatch executes every task and waits for all of them to reach a terminal
// state. The returned fatal error, if any, is the first one observed.
func (s *PlannerService) runBatch(ctx context.Context, plan *model.MealPlan, constraints Constraints, tasks []generationTask) ([]taskOutcome, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := NewNameRegistry()
	sem := make(chan struct{}, s.workers)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		outcomes  = make([]taskOutcome, 0, len(tasks))
		fatalOnce sync.Once
		fatalErr  error
	)

	for _, task := range tasks {
		wg.Add(1)
		go func(task generationTask) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out := s.runTask(batchCtx, plan, constraints, task, names)
			if out.err != nil && IsFatalSynthesisError(out.err) {
				fatalOnce.Do(func() {
					fatalErr = out.err
					cancel()
				})
			}

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(task)
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	return outcomes, nil
}

// runTask drives a single grid cell to a terminal state: an accepted,
// persisted recipe or a recorded failure.
func (s *PlannerService) runTask(ctx context.Context, plan *model.MealPlan, constraints Constraints, task generationTask, names *NameRegistry) taskOutcome {
	candidate, err := s.engine.SynthesizeOne(ctx, constraints, task.slot, names)
	if err != nil {
		return taskOutcome{task: task, err: err}
	}

	recipe, err := s.lifecycle.Create(ctx, candidate, plan.UserID, &plan.ID, task.day)
	if err != nil {
		log.Printf("[Planner] failed to persist recipe for day=%d slot=%s: %v", task.day, task.slot, err)
		return taskOutcome{task: task, err: err}
	}
	recipe.DayIndex = task.day

	if s.images != nil {
		s.images.MaterializeAsync(recipe, constraints.Allergies)
	}
	return taskOutcome{task: task, recipe: recipe}
}

// RegenerateSlot retries exactly one previously-missing (day, slot) of an
// existing plan. Every name already accepted into the plan is excluded so a
// regenerated slot can never duplicate a dish.
func (s *PlannerService) RegenerateSlot(ctx context.Context, userID uuid.UUID, planID uuid.UUID, req *types.RegenerateSlotRequest) (*model.TemporaryRecipe, error) {
	plan, err := s.plans.Get(ctx, planID, userID)
	if err != nil {
		return nil, err
	}
	if plan.IsExpired {
		return nil, ErrPlanExpired
	}
	if req.Day < 0 || req.Day >= plan.DaysGenerated {
		return nil, fmt.Errorf("day %d outside plan range 0..%d", req.Day, plan.DaysGenerated-1)
	}
	if !validMealSlot(req.MealSlot) {
		return nil, fmt.Errorf("unknown meal slot %q", req.MealSlot)
	}

	filled, err := s.lifecycle.SlotFilled(ctx, planID, req.Day, req.MealSlot)
	if err != nil {
		return nil, fmt.Errorf("failed to check slot state: %w", err)
	}
	if filled {
		return nil, ErrSlotAlreadyFilled
	}

	taken, err := s.lifecycle.PlanRecipeNames(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan recipe names: %w", err)
	}

	constraints := Constraints{
		Dietary:   req.Dietary,
		Allergies: req.Allergies,
		Cuisines:  req.Cuisines,
		Proteins:  req.Proteins,
	}

	candidate, err := s.engine.SynthesizeOne(ctx, constraints, req.MealSlot, NewNameRegistry(taken...))
	if err != nil {
		return nil, err
	}

	recipe, err := s.lifecycle.Create(ctx, candidate, userID, &planID, req.Day)
	if err != nil {
		return nil, err
	}

	if s.images != nil {
		s.images.MaterializeAsync(recipe, constraints.Allergies)
	}
	return recipe, nil
}

func validMealSlot(slot string) bool {
	for _, s := range MealSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// sortResult orders accepted recipes and missing slots by (day, slot) so the
// response is stable regardless of completion order.
func sortResult(result *GenerationResult) {
	slotRank := map[string]int{SlotBreakfast: 0, SlotLunch: 1, SlotDinner: 2}

	sort.Slice(result.Accepted, func(i, j int) bool {
		a, b := result.Accepted[i], result.Accepted[j]
		if a.DayIndex != b.DayIndex {
			return a.DayIndex < b.DayIndex
		}
		return slotRank[a.MealSlot] < slotRank[b.MealSlot]
	})
	sort.Slice(result.Missing, func(i, j int) bool {
		a, b := result.Missing[i], result.Missing[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return slotRank[a.MealSlot] < slotRank[b.MealSlot]
	})
}
