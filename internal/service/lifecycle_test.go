package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/platewise/backend/internal/model"
	"github.com/platewise/backend/internal/testhelpers"
)

func createRecipe(t *testing.T, svc *RecipeLifecycleService, ownerID uuid.UUID, name string) *model.TemporaryRecipe {
	t.Helper()
	recipe, err := svc.Create(context.Background(), validCandidate(name, SlotLunch), ownerID, nil, 0)
	require.NoError(t, err)
	return recipe
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) *model.TemporaryRecipe {
	t.Helper()
	var r model.TemporaryRecipe
	require.NoError(t, db.First(&r, "id = ?", id).Error)
	return &r
}

func TestCreateRecipe(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")

	assert.NotEqual(t, uuid.Nil, recipe.ID)
	assert.False(t, recipe.Favorited)
	assert.Equal(t, 0, recipe.FavoritesCount)
	require.NotNil(t, recipe.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(EphemeralTTL), *recipe.ExpiresAt, time.Minute)
}

func TestFavoriteOwnRecipe(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")

	got, err := svc.Favorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)

	assert.Equal(t, recipe.ID, got.ID, "owner's own record is flipped, not cloned")
	assert.True(t, got.Favorited)
	assert.Equal(t, 1, got.FavoritesCount)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(FavoritedTTL), *got.ExpiresAt, time.Minute)
}

func TestFavoriteIdempotent(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")

	_, err := svc.Favorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)
	_, err = svc.Favorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, reload(t, db, recipe.ID).FavoritesCount, "re-favoriting must not bump the counter")
}

func TestFavoriteAnotherUsersRecipe(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	alice := testhelpers.CreateTestUser(t, db, model.TierFree)
	bob := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	original := createRecipe(t, svc, alice.ID, "Veggie Omelet")

	clone, err := svc.Favorite(context.Background(), original.ID, bob.ID)
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, clone.ID, "the other user gets their own copy")
	assert.Equal(t, bob.ID, clone.UserID)
	assert.True(t, clone.Favorited)
	assert.Nil(t, clone.MealPlanID)

	// The count is shared per name: both records see 1.
	assert.Equal(t, 1, reload(t, db, original.ID).FavoritesCount)
	assert.Equal(t, 1, reload(t, db, clone.ID).FavoritesCount)

	// Alice favoriting her own copy takes the shared count to 2 on both.
	_, err = svc.Favorite(context.Background(), original.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reload(t, db, original.ID).FavoritesCount)
	assert.Equal(t, 2, reload(t, db, clone.ID).FavoritesCount)
}

func TestFavoriteNotFound(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	_, err := svc.Favorite(context.Background(), uuid.New(), user.ID)
	assert.ErrorIs(t, err, ErrRecipeNotFound)
}

func TestUnfavorite(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")
	_, err := svc.Favorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)

	got, err := svc.Unfavorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)

	assert.False(t, got.Favorited)
	assert.Equal(t, 0, got.FavoritesCount)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(EphemeralTTL), *got.ExpiresAt, time.Minute,
		"unfavoriting puts the record back on the short clock")
}

func TestUnfavoriteNetZero(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")

	for i := 0; i < 3; i++ {
		_, err := svc.Favorite(context.Background(), recipe.ID, user.ID)
		require.NoError(t, err)
		_, err = svc.Unfavorite(context.Background(), recipe.ID, user.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, reload(t, db, recipe.ID).FavoritesCount)
}

func TestUnfavoriteRequiresFavorited(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	other := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")

	_, err := svc.Unfavorite(context.Background(), recipe.ID, user.ID)
	assert.ErrorIs(t, err, ErrNotFavorited)

	// Another user cannot unfavorite a record they do not own.
	_, err = svc.Unfavorite(context.Background(), recipe.ID, other.ID)
	assert.ErrorIs(t, err, ErrRecipeNotFound)
}

func TestUnfavoriteCountFlooredAtZero(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Lentil Soup")

	// Force an inconsistent state: favorited with a zero count.
	require.NoError(t, db.Model(&model.TemporaryRecipe{}).
		Where("id = ?", recipe.ID).
		Updates(map[string]interface{}{"favorited": true, "favorites_count": 0}).Error)

	got, err := svc.Unfavorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FavoritesCount)
	assert.Equal(t, 0, reload(t, db, recipe.ID).FavoritesCount, "the count never goes negative")
}

func TestSweep(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	expired := createRecipe(t, svc, user.ID, "Stale Porridge")
	fresh := createRecipe(t, svc, user.ID, "Fresh Salad")
	kept := createRecipe(t, svc, user.ID, "Favorite Curry")
	_, err := svc.Favorite(context.Background(), kept.ID, user.ID)
	require.NoError(t, err)

	// Age the first record past its expiration.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.TemporaryRecipe{}).
		Where("id = ?", expired.ID).
		UpdateColumn("expires_at", past).Error)

	purged, err := svc.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, purged, 1)
	assert.Equal(t, expired.ID, purged[0].ID)

	assert.ErrorIs(t, db.First(&model.TemporaryRecipe{}, "id = ?", expired.ID).Error, gorm.ErrRecordNotFound)
	assert.NotNil(t, reload(t, db, fresh.ID))
	assert.NotNil(t, reload(t, db, kept.ID))

	// Idempotent: a second sweep finds nothing.
	purged, err = svc.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, purged)
}

func TestSweepSkipsFavoritedEvenWhenPastDue(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	recipe := createRecipe(t, svc, user.ID, "Heirloom Stew")
	_, err := svc.Favorite(context.Background(), recipe.ID, user.ID)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.TemporaryRecipe{}).
		Where("id = ?", recipe.ID).
		UpdateColumn("expires_at", past).Error)

	purged, err := svc.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, purged, "favorited records are never swept")
}

func TestSweepSparesRowFavoritedMidSweep(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	doomed := createRecipe(t, svc, user.ID, "Doomed Hash")
	rescued := createRecipe(t, svc, user.ID, "Rescued Pie")

	past := time.Now().Add(-time.Hour)
	for _, id := range []uuid.UUID{doomed.ID, rescued.ID} {
		require.NoError(t, db.Model(&model.TemporaryRecipe{}).
			Where("id = ?", id).
			UpdateColumn("expires_at", past).Error)
	}

	// Flip one row to favorited after the sweep has read its candidates
	// but before it deletes them, like a favorite committing mid-sweep.
	flipped := false
	future := time.Now().Add(FavoritedTTL)
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("favorite_during_sweep", func(tx *gorm.DB) {
		if flipped {
			return
		}
		flipped = true
		err := tx.Session(&gorm.Session{NewDB: true}).Model(&model.TemporaryRecipe{}).
			Where("id = ?", rescued.ID).
			Updates(map[string]interface{}{"favorited": true, "expires_at": future}).Error
		assert.NoError(t, err)
	}))
	defer func() {
		require.NoError(t, db.Callback().Delete().Remove("favorite_during_sweep"))
	}()

	purged, err := svc.Sweep(context.Background(), time.Now())
	require.NoError(t, err)

	// Only the still-unfavorited row goes, and the audit set matches.
	require.Len(t, purged, 1)
	assert.Equal(t, doomed.ID, purged[0].ID)

	got := reload(t, db, rescued.ID)
	assert.True(t, got.Favorited)
	assert.ErrorIs(t, db.First(&model.TemporaryRecipe{}, "id = ?", doomed.ID).Error, gorm.ErrRecordNotFound)
}

func TestPlanRecipeNames(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	planID := uuid.New()
	for _, name := range []string{"Dish A", "Dish B"} {
		_, err := svc.Create(context.Background(), validCandidate(name, SlotLunch), user.ID, &planID, 0)
		require.NoError(t, err)
	}
	createRecipe(t, svc, user.ID, "Unrelated Dish")

	names, err := svc.PlanRecipeNames(context.Background(), planID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Dish A", "Dish B"}, names)
}

func TestDeletePlanRecipes(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	user := testhelpers.CreateTestUser(t, db, model.TierFree)
	svc := NewRecipeLifecycleService(db)

	planID := uuid.New()
	_, err := svc.Create(context.Background(), validCandidate("Doomed Dish", SlotLunch), user.ID, &planID, 0)
	require.NoError(t, err)
	survivor := createRecipe(t, svc, user.ID, "Unrelated Dish")

	require.NoError(t, svc.DeletePlanRecipes(context.Background(), planID))

	var count int64
	db.Model(&model.TemporaryRecipe{}).Where("meal_plan_id = ?", planID).Count(&count)
	assert.Equal(t, int64(0), count)
	assert.NotNil(t, reload(t, db, survivor.ID))
}

func TestExpiringSoon(t *testing.T) {
	now := time.Now()

	soon := now.Add(12 * time.Hour)
	r := &model.TemporaryRecipe{ExpiresAt: &soon}
	assert.True(t, r.ExpiringSoon(now))

	far := now.Add(40 * time.Hour)
	r = &model.TemporaryRecipe{ExpiresAt: &far}
	assert.False(t, r.ExpiringSoon(now))

	r = &model.TemporaryRecipe{ExpiresAt: &soon, Favorited: true}
	assert.False(t, r.ExpiringSoon(now), "favorited records never warn")

	r = &model.TemporaryRecipe{}
	assert.False(t, r.ExpiringSoon(now))
}
