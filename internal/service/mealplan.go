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

// ErrPlanNotFound is returned when the requested plan id does not exist.
var ErrPlanNotFound = errors.New("meal plan not found")

// MealPlanService creates plans and drives their expiration state machine.
// days_generated is fixed at creation from the requested day count clamped to
// the owner's tier; expiration is start date plus that many days. Expired is
// terminal.
type MealPlanService struct {
	db    *gorm.DB
	quota QuotaProvider
}

func NewMealPlanService(db *gorm.DB, quota QuotaProvider) *MealPlanService {
	return &MealPlanService{db: db, quota: quota}
}

// Create opens a new plan starting now. The returned plan's DaysGenerated may
// be lower than requestedDays when the tier allows fewer.
func (s *MealPlanService) Create(ctx context.Context, ownerID uuid.UUID, tier string, requestedDays int) (*model.MealPlan, error) {
	if requestedDays < 1 {
		return nil, fmt.Errorf("requested day count must be at least 1, got %d", requestedDays)
	}

	days := requestedDays
	if allowed := s.quota.AllowedDays(tier); days > allowed {
		days = allowed
	}

	start := time.Now().Truncate(24 * time.Hour)
	plan := &model.MealPlan{
		ID:             uuid.New(),
		UserID:         ownerID,
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, days),
		DaysGenerated:  days,
		ExpirationDate: start.AddDate(0, 0, days),
	}

	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create meal plan: %w", err)
	}
	return plan, nil
}

// Get fetches a plan by id for the given owner.
func (s *MealPlanService) Get(ctx context.Context, planID, ownerID uuid.UUID) (*model.MealPlan, error) {
	var plan model.MealPlan
	err := s.db.WithContext(ctx).First(&plan, "id = ? AND user_id = ?", planID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// Delete removes a plan record, used when an aborted batch rolls back.
func (s *MealPlanService) Delete(ctx context.Context, planID uuid.UUID) error {
	return s.db.WithContext(ctx).Unscoped().
		Delete(&model.MealPlan{}, "id = ?", planID).Error
}

// ExpireDue flips is_expired on every plan whose expiration date has passed.
// It is idempotent; re-running with nothing due changes no rows.
func (s *MealPlanService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.MealPlan{}).
		Where("is_expired = ? AND expiration_date < ?", false, now).
		UpdateColumn("is_expired", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire plans: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("[MealPlan] expired %d plans", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
