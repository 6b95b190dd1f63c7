package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONBStringArray is a custom type for handling string arrays in JSONB
type JSONBStringArray []string

// Value implements the driver.Valuer interface
func (a JSONBStringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface
func (a *JSONBStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = JSONBStringArray{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Ingredient is a single name/amount/unit entry of a recipe
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// JSONBIngredientList stores the ingredient triples as JSONB
type JSONBIngredientList []Ingredient

// Value implements the driver.Valuer interface
func (l JSONBIngredientList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface
func (l *JSONBIngredientList) Scan(value interface{}) error {
	if value == nil {
		*l = JSONBIngredientList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// TemporaryRecipe is a generated recipe with a bounded lifetime. A fresh
// record expires two days after creation unless it gets favorited; favoriting
// extends the expiration a year out, unfavoriting puts it back on the short
// clock. FavoritesCount is shared across every record with the same name,
// regardless of owner.
type TemporaryRecipe struct {
	ID                uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	DeletedAt         gorm.DeletedAt      `gorm:"index" json:"-"`
	Name              string              `gorm:"size:255;not null;index" json:"name"`
	Description       string              `gorm:"type:text" json:"description"`
	MealSlot          string              `gorm:"size:20;not null" json:"meal_slot"`
	DayIndex          int                 `json:"day_index"`
	PrepTime          string              `gorm:"size:50" json:"prep_time"`
	CookTime          string              `gorm:"size:50" json:"cook_time"`
	Servings          int                 `json:"servings"`
	Complexity        int                 `json:"complexity"`
	Ingredients       JSONBIngredientList `gorm:"type:jsonb;not null;default:'[]'" json:"ingredients"`
	Instructions      JSONBStringArray    `gorm:"type:jsonb;not null;default:'[]'" json:"instructions"`
	Tags              JSONBStringArray    `gorm:"type:jsonb;not null;default:'[]'" json:"tags"`
	Calories          float64             `gorm:"type:float" json:"calories"`
	Protein           float64             `gorm:"type:float" json:"protein"`
	Carbs             float64             `gorm:"type:float" json:"carbs"`
	Fat               float64             `gorm:"type:float" json:"fat"`
	ImageURL          string              `gorm:"size:2048" json:"image_url"`
	PermanentImageURL string              `gorm:"size:2048" json:"permanent_image_url"`
	Favorited         bool                `gorm:"not null;default:false" json:"favorited"`
	FavoritesCount    int                 `gorm:"not null;default:0" json:"favorites_count"`
	ExpiresAt         *time.Time          `gorm:"index" json:"expires_at"`
	UserID            uuid.UUID           `gorm:"type:uuid;not null;index" json:"user_id"`
	MealPlanID        *uuid.UUID          `gorm:"type:uuid;index" json:"meal_plan_id,omitempty"`
}

func (TemporaryRecipe) TableName() string {
	return "temporary_recipes"
}

// ExpiringSoon reports whether an unfavorited recipe is inside the 24h
// warning window before its expiration.
func (r *TemporaryRecipe) ExpiringSoon(now time.Time) bool {
	if r.Favorited || r.ExpiresAt == nil {
		return false
	}
	return r.ExpiresAt.After(now) && r.ExpiresAt.Sub(now) <= 24*time.Hour
}
