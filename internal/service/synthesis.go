package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platewise/backend/internal/model"
)

// Meal slots of a single plan day.
const (
	SlotBreakfast = "breakfast"
	SlotLunch     = "lunch"
	SlotDinner    = "dinner"
)

// MealSlots lists the slots in day order.
var MealSlots = []string{SlotBreakfast, SlotLunch, SlotDinner}

// Constraints are the user-supplied generation constraints. Any list may be
// empty.
type Constraints struct {
	Dietary   []string
	Allergies []string
	Cuisines  []string
	Proteins  []string
}

// SynthesisRequest is one call to an external recipe synthesizer. Strictness
// runs 1..4; higher values progressively relax the name-uniqueness demand.
type SynthesisRequest struct {
	Constraints  Constraints
	MealSlot     string
	ExcludeNames []string
	Temperature  float64
	Strictness   int
}

// CandidateRecipe is a synthesized recipe before it has an identity. It only
// becomes a persisted TemporaryRecipe through the lifecycle service.
type CandidateRecipe struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	MealSlot     string             `json:"meal_slot"`
	PrepTime     string             `json:"prep_time"`
	CookTime     string             `json:"cook_time"`
	Servings     int                `json:"servings"`
	Complexity   int                `json:"complexity"`
	Ingredients  []model.Ingredient `json:"ingredients"`
	Instructions []string           `json:"instructions"`
	Tags         []string           `json:"tags"`
	Calories     float64            `json:"calories"`
	Protein      float64            `json:"protein"`
	Carbs        float64            `json:"carbs"`
	Fat          float64            `json:"fat"`
}

// FatalSynthesisError marks a synthesizer failure that must not be retried,
// e.g. rejected credentials or an exhausted account. It aborts the whole
// batch.
type FatalSynthesisError struct {
	Err error
}

func (e *FatalSynthesisError) Error() string {
	return fmt.Sprintf("fatal synthesizer error: %v", e.Err)
}

func (e *FatalSynthesisError) Unwrap() error {
	return e.Err
}

// IsFatalSynthesisError reports whether err carries a FatalSynthesisError
// anywhere in its chain.
func IsFatalSynthesisError(err error) bool {
	var fatal *FatalSynthesisError
	return errors.As(err, &fatal)
}

// synthesisSystemPrompt instructs the model to answer with the exact JSON
// shape CandidateRecipe unmarshals from.
const synthesisSystemPrompt = `You are a professional chef and nutritionist. Please provide your response in JSON format with the following structure:
{
    "name": "Recipe name",
    "description": "Brief description of the recipe",
    "meal_slot": "One of: breakfast, lunch, dinner",
    "prep_time": "Preparation time",
    "cook_time": "Cooking time",
    "servings": 4,
    "complexity": 2,
    "ingredients": [
        {"name": "flour", "amount": "2", "unit": "cups"},
        {"name": "sugar", "amount": "1", "unit": "cup"},
        {"name": "eggs", "amount": "3", "unit": "whole"}
    ],
    "instructions": [
        "Step 1: Mix the dry ingredients",
        "Step 2: Add the wet ingredients",
        "Step 3: Bake at 350°F for 30 minutes"
    ],
    "tags": ["quick", "vegetarian"],
    "calories": 350,
    "protein": 15,
    "carbs": 45,
    "fat": 12
}

Note: servings, complexity, calories, protein, carbs and fat must be numbers, not strings.
The complexity field MUST be 1, 2 or 3.
The meal_slot field MUST exactly match the requested meal slot.`

// buildSynthesisPrompt renders the user prompt for one synthesis call. The
// strictness level controls how hard the prompt insists on a never-seen
// recipe name.
func buildSynthesisPrompt(req *SynthesisRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a %s recipe.", req.MealSlot)

	if len(req.Constraints.Dietary) > 0 {
		b.WriteString(" The recipe should be suitable for: " + strings.Join(req.Constraints.Dietary, ", ") + ".")
	}
	if len(req.Constraints.Allergies) > 0 {
		b.WriteString(" Strictly avoid using: " + strings.Join(req.Constraints.Allergies, ", ") + ".")
	}
	if len(req.Constraints.Cuisines) > 0 {
		b.WriteString(" Preferred cuisines: " + strings.Join(req.Constraints.Cuisines, ", ") + ".")
	}
	if len(req.Constraints.Proteins) > 0 {
		b.WriteString(" Preferred proteins: " + strings.Join(req.Constraints.Proteins, ", ") + ".")
	}

	if len(req.ExcludeNames) > 0 {
		b.WriteString(" The following recipe names are already taken: " + strings.Join(req.ExcludeNames, "; ") + ".")
	}

	switch req.Strictness {
	case 1:
		b.WriteString(" The recipe name must be creatively unique and must not resemble any of the taken names.")
	case 2:
		b.WriteString(" The recipe may be a creative variation on a common dish, but pick a name not in the taken list.")
	case 3:
		b.WriteString(" The recipe may be a variation of an existing dish.")
	default:
		// Level 4 drops the uniqueness demand entirely; the bare
		// dietary/allergy/cuisine constraints still apply.
	}

	return b.String()
}
