package testhelpers

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/platewise/backend/internal/model"
)

// SetupTestDB creates an isolated in-memory SQLite database with the full
// schema. Each call gets its own database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// A single connection serializes concurrent writers; SQLite locks the
	// whole database on write anyway.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access underlying database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.User{},
		&model.TemporaryRecipe{},
		&model.MealPlan{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CreateTestUser inserts a user with the given tier.
func CreateTestUser(t *testing.T, db *gorm.DB, tier string) *model.User {
	t.Helper()

	user := &model.User{
		ID:           uuid.New(),
		Name:         "Test User",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "not-a-real-hash",
		Tier:         tier,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}
