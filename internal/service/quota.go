package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/platewise/backend/internal/model"
)

// Day allowances per tier and the free tier's daily generation allowance.
const (
	FreeTierDays    = 2
	PremiumTierDays = 7

	freeDailyGenerations = 3
)

// TierQuotaService answers how much generation a user's subscription tier
// buys. Free-tier usage counters live in redis with a daily TTL so they reset
// on their own.
type TierQuotaService struct {
	redis *redis.Client
}

func NewTierQuotaService(redisClient *redis.Client) *TierQuotaService {
	return &TierQuotaService{redis: redisClient}
}

// AllowedDays returns the plan length cap for a tier. Unknown tiers get the
// free allowance.
func (s *TierQuotaService) AllowedDays(tier string) int {
	if tier == model.TierPremium {
		return PremiumTierDays
	}
	return FreeTierDays
}

// RemainingFreeGenerations reports how many batches the user may still start
// today.
func (s *TierQuotaService) RemainingFreeGenerations(ctx context.Context, userID uuid.UUID) (int, error) {
	used, err := s.redis.Get(ctx, quotaKey(userID)).Int()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to read generation counter: %w", err)
	}

	remaining := freeDailyGenerations - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ConsumeGeneration records one started batch against today's allowance.
func (s *TierQuotaService) ConsumeGeneration(ctx context.Context, userID uuid.UUID) error {
	key := quotaKey(userID)

	used, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to bump generation counter: %w", err)
	}
	if used == 1 {
		// First use today starts the daily window.
		if err := s.redis.Expire(ctx, key, 24*time.Hour).Err(); err != nil {
			return fmt.Errorf("failed to set counter TTL: %w", err)
		}
	}
	return nil
}

func quotaKey(userID uuid.UUID) string {
	return fmt.Sprintf("quota:generations:%s", userID)
}
