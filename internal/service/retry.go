package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Retry/relaxation budget per task. Attempts reset when the relaxation level
// advances; once both are exhausted the slot is reported missing.
const (
	defaultMaxAttempts   = 3
	defaultMaxRelaxation = 4

	baseTemperature = 0.7
	temperatureStep = 0.05
	maxTemperature  = 1.3

	defaultCallTimeout = 90 * time.Second
)

// ErrSlotExhausted means a task ran out of retry/relaxation budget without
// producing an acceptable recipe. The batch records the slot as missing and
// carries on.
var ErrSlotExhausted = errors.New("synthesis budget exhausted for slot")

// retryState is one position in the retry/relaxation grid.
type retryState struct {
	attempt int
	level   int
}

// next advances the attempt counter, rolling over into the next relaxation
// level when attempts are spent. ok is false once every level is exhausted.
func (s retryState) next(maxAttempts, maxLevels int) (retryState, bool) {
	if s.attempt < maxAttempts {
		return retryState{attempt: s.attempt + 1, level: s.level}, true
	}
	if s.level < maxLevels {
		return retryState{attempt: 1, level: s.level + 1}, true
	}
	return s, false
}

// temperature trades determinism for variety as failures accumulate: each
// consumed attempt and each relaxation level steps the sampling temperature
// up by a fixed amount.
func (s retryState) temperature() float64 {
	t := baseTemperature + temperatureStep*float64(s.attempt-1) + temperatureStep*float64(s.level-1)
	if t > maxTemperature {
		t = maxTemperature
	}
	return t
}

// SynthesisEngine drives one generation task through the external recipe
// synthesizer, retrying with escalating constraint relaxation until it gets a
// structurally valid recipe whose name it can reserve.
type SynthesisEngine struct {
	synth       RecipeSynthesizer
	maxAttempts int
	maxLevels   int
	callTimeout time.Duration
}

// NewSynthesisEngine creates an engine with the default retry budget.
func NewSynthesisEngine(synth RecipeSynthesizer) *SynthesisEngine {
	return &SynthesisEngine{
		synth:       synth,
		maxAttempts: defaultMaxAttempts,
		maxLevels:   defaultMaxRelaxation,
		callTimeout: defaultCallTimeout,
	}
}

// SynthesizeOne produces one accepted recipe for the given meal slot, or
// ErrSlotExhausted when the budget runs out. Fatal synthesizer errors
// propagate immediately. The registry supplies the exclude-name set and
// serializes name reservation across concurrent tasks.
func (e *SynthesisEngine) SynthesizeOne(ctx context.Context, constraints Constraints, mealSlot string, names *NameRegistry) (*CandidateRecipe, error) {
	state := retryState{attempt: 1, level: 1}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := e.attemptOnce(ctx, constraints, mealSlot, names, state)
		if err == nil {
			return candidate, nil
		}
		if IsFatalSynthesisError(err) {
			return nil, err
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		log.Printf("[SynthesisEngine] slot=%s attempt=%d level=%d retryable failure: %v",
			mealSlot, state.attempt, state.level, err)

		next, ok := state.next(e.maxAttempts, e.maxLevels)
		if !ok {
			return nil, ErrSlotExhausted
		}
		state = next
	}
}

// attemptOnce performs a single synthesizer call at the given retry state and
// validates the result.
func (e *SynthesisEngine) attemptOnce(ctx context.Context, constraints Constraints, mealSlot string, names *NameRegistry, state retryState) (*CandidateRecipe, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	req := &SynthesisRequest{
		Constraints:  constraints,
		MealSlot:     mealSlot,
		ExcludeNames: names.Names(),
		Temperature:  state.temperature(),
		Strictness:   state.level,
	}

	candidate, err := e.synth.Synthesize(callCtx, req)
	if err != nil {
		// A per-call timeout consumes one attempt like any other
		// retryable failure.
		return nil, err
	}

	if err := validateCandidate(candidate, mealSlot); err != nil {
		return nil, err
	}

	if !names.TryReserve(candidate.Name) {
		return nil, fmt.Errorf("recipe name %q already reserved", candidate.Name)
	}

	return candidate, nil
}

// validateCandidate applies the structural acceptance checks. A violation is
// retryable, never fatal.
func validateCandidate(c *CandidateRecipe, mealSlot string) error {
	if c == nil {
		return errors.New("synthesizer returned no recipe")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("recipe has no name")
	}
	if len(c.Ingredients) == 0 {
		return errors.New("recipe has no ingredients")
	}
	if len(c.Instructions) == 0 {
		return errors.New("recipe has no instructions")
	}
	if !strings.EqualFold(strings.TrimSpace(c.MealSlot), mealSlot) {
		return fmt.Errorf("recipe declares meal slot %q, want %q", c.MealSlot, mealSlot)
	}
	if c.Complexity < 1 || c.Complexity > 3 {
		return fmt.Errorf("recipe complexity %d outside 1..3", c.Complexity)
	}
	return nil
}
