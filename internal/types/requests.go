package types

// GeneratePlanRequest starts a multi-day generation batch.
type GeneratePlanRequest struct {
	Days      int      `json:"days" binding:"required,min=1"`
	Dietary   []string `json:"dietary"`
	Allergies []string `json:"allergies"`
	Cuisines  []string `json:"cuisines"`
	Proteins  []string `json:"proteins"`
}

// RegenerateSlotRequest retries a single (day, slot) that came back missing.
type RegenerateSlotRequest struct {
	Day       int      `json:"day" binding:"min=0"`
	MealSlot  string   `json:"meal_slot" binding:"required"`
	Dietary   []string `json:"dietary"`
	Allergies []string `json:"allergies"`
	Cuisines  []string `json:"cuisines"`
	Proteins  []string `json:"proteins"`
}

// LoginRequest authenticates a user.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}
