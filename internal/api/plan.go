package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/backend/internal/service"
	"github.com/platewise/backend/internal/types"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// PlanHandler exposes meal plan generation.
type PlanHandler struct {
	planner *service.PlannerService
	plans   *service.MealPlanService
}

func NewPlanHandler(planner *service.PlannerService, plans *service.MealPlanService) *PlanHandler {
	return &PlanHandler{planner: planner, plans: plans}
}

// GeneratePlan starts one full generation batch and blocks until every task
// reaches a terminal state. Partial batches still return all accepted
// recipes plus the missing slots for targeted regeneration.
func (h *PlanHandler) GeneratePlan(c *gin.Context) {
	var req types.GeneratePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, tier, ok := identity(c)
	if !ok {
		return
	}

	result, err := h.planner.GeneratePlan(c.Request.Context(), userID, tier, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuotaExhausted):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case service.IsFatalSynthesisError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "recipe generation unavailable: " + err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate plan"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// RegenerateSlot retries a single missing (day, slot) of an existing plan.
func (h *PlanHandler) RegenerateSlot(c *gin.Context) {
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	var req types.RegenerateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, _, ok := identity(c)
	if !ok {
		return
	}

	recipe, err := h.planner.RegenerateSlot(c.Request.Context(), userID, planID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		case errors.Is(err, service.ErrPlanExpired):
			c.JSON(http.StatusGone, gin.H{"error": "Plan has expired"})
		case errors.Is(err, service.ErrSlotAlreadyFilled):
			c.JSON(http.StatusConflict, gin.H{"error": "Slot already has a recipe"})
		case errors.Is(err, service.ErrSlotExhausted):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not generate a recipe for this slot"})
		case service.IsFatalSynthesisError(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "recipe generation unavailable: " + err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipe": recipe})
}

// GetPlan returns a plan with its expiring-soon signal.
func (h *PlanHandler) GetPlan(c *gin.Context) {
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	userID, _, ok := identity(c)
	if !ok {
		return
	}

	plan, err := h.plans.Get(c.Request.Context(), planID, userID)
	if err != nil {
		if errors.Is(err, service.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch plan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plan":          plan,
		"expiring_soon": plan.ExpiringSoon(timeNow()),
	})
}

// identity pulls the authenticated user id and tier from the request
// context.
func identity(c *gin.Context) (uuid.UUID, string, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return uuid.Nil, "", false
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return uuid.Nil, "", false
	}

	tier, _ := c.Get("tier")
	tierStr, _ := tier.(string)
	return userID, tierStr, true
}
