package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MealPlan is one multi-day generation batch owned by a user. DaysGenerated is
// clamped to the owner's tier at creation and never changes afterwards; an
// expired plan is terminal and regeneration starts a fresh instance.
type MealPlan struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	StartDate      time.Time      `gorm:"not null" json:"start_date"`
	EndDate        time.Time      `gorm:"not null" json:"end_date"`
	DaysGenerated  int            `gorm:"not null" json:"days_generated"`
	ExpirationDate time.Time      `gorm:"not null;index" json:"expiration_date"`
	IsExpired      bool           `gorm:"not null;default:false" json:"is_expired"`
}

func (MealPlan) TableName() string {
	return "meal_plans"
}

// ExpiringSoon reports whether the plan is within 24h of its expiration date.
// It is a read-only signal; only the sweep flips IsExpired.
func (p *MealPlan) ExpiringSoon(now time.Time) bool {
	if p.IsExpired {
		return false
	}
	return p.ExpirationDate.After(now) && p.ExpirationDate.Sub(now) <= 24*time.Hour
}
