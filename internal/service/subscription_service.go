package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type subscriptionRepository interface {
	FindByUser(ctx context.Context, userID string) (*models.Subscription, error)
	Upsert(ctx context.Context, sub *models.Subscription) error
	Quota(ctx context.Context, userID string) (*models.MessageQuota, error)
	ResetQuota(ctx context.Context, userID string, day time.Time) error
	IncrementQuota(ctx context.Context, userID string) error
}

// SubscriptionStatus is the payload for the "my subscription" screen.
type SubscriptionStatus struct {
	Tier              models.Tier `json:"tier"`
	IsActive          bool        `json:"is_active"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
	DaysRemaining     int         `json:"days_remaining"`
	DailyMessageLimit int         `json:"daily_message_limit"`
	MessagesSentToday int         `json:"messages_sent_today"`
}

// SubscriptionService reads and maintains the per-user subscription row and
// the daily chat quota. An expired paid subscription reads as FREE.
type SubscriptionService struct {
	repo   subscriptionRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewSubscriptionService constructs the subscription service.
func NewSubscriptionService(repo subscriptionRepository, logger *zap.Logger) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Status resolves the caller's current tier, lazily resetting the daily
// counter when the stored date has fallen behind.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	now := s.now()

	tier := models.TierFree
	var expiresAt *time.Time
	active := true

	sub, err := s.repo.FindByUser(ctx, userID)
	switch {
	case err == nil:
		if sub.Covers(now) {
			tier = sub.Tier
			expiresAt = sub.ExpiresAt
		} else if sub.Tier.Paid() && sub.Expired(now) {
			expiresAt = sub.ExpiresAt
		}
		active = sub.IsActive
	case errors.Is(err, sql.ErrNoRows):
		// Legacy accounts may predate the seeded FREE row.
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}

	quota, err := s.currentQuota(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	daysRemaining := 0
	if tier.Paid() && expiresAt != nil {
		daysRemaining = int(expiresAt.Sub(now).Hours() / 24)
		if daysRemaining < 0 {
			daysRemaining = 0
		}
	}

	return &SubscriptionStatus{
		Tier:              tier,
		IsActive:          active,
		ExpiresAt:         expiresAt,
		DaysRemaining:     daysRemaining,
		DailyMessageLimit: tier.MessageLimit(),
		MessagesSentToday: quota.MessagesSentToday,
	}, nil
}

// EffectiveTier returns the tier currently in force, treating expired paid
// subscriptions as FREE.
func (s *SubscriptionService) EffectiveTier(ctx context.Context, userID string) (models.Tier, error) {
	sub, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TierFree, nil
		}
		return models.TierFree, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	if sub.Covers(s.now()) {
		return sub.Tier, nil
	}
	return models.TierFree, nil
}

// ConsumeMessage spends one unit of the caller's daily chat allowance.
func (s *SubscriptionService) ConsumeMessage(ctx context.Context, userID string) error {
	now := s.now()
	tier, err := s.EffectiveTier(ctx, userID)
	if err != nil {
		return err
	}
	quota, err := s.currentQuota(ctx, userID, now)
	if err != nil {
		return err
	}
	if quota.MessagesSentToday >= tier.MessageLimit() {
		return appErrors.Clone(appErrors.ErrQuotaExceeded, "daily message limit reached")
	}
	if err := s.repo.IncrementQuota(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to spend message quota")
	}
	return nil
}

func (s *SubscriptionService) currentQuota(ctx context.Context, userID string, now time.Time) (*models.MessageQuota, error) {
	quota, err := s.repo.Quota(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message quota")
	}
	today := now.Truncate(24 * time.Hour)
	if quota.LastResetDate.Before(today) {
		if err := s.repo.ResetQuota(ctx, userID, today); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset message quota")
		}
		quota.MessagesSentToday = 0
		quota.LastResetDate = today
	}
	return quota, nil
}

// MessagesRemaining is the chat allowance snapshot shown before the
// composer.
type MessagesRemaining struct {
	Remaining  int         `json:"remaining"`
	TotalToday int         `json:"total_today"`
	Tier       models.Tier `json:"tier"`
}

// RemainingMessages reports how much of today's chat allowance is left.
func (s *SubscriptionService) RemainingMessages(ctx context.Context, userID string) (*MessagesRemaining, error) {
	now := s.now()
	tier, err := s.EffectiveTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	quota, err := s.currentQuota(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	remaining := tier.MessageLimit() - quota.MessagesSentToday
	if remaining < 0 {
		remaining = 0
	}
	return &MessagesRemaining{
		Remaining:  remaining,
		TotalToday: quota.MessagesSentToday,
		Tier:       tier,
	}, nil
}

// Plans returns the static paywall metadata.
func (s *SubscriptionService) Plans() []models.SubscriptionPlan {
	days := int(models.SubscriptionTerm.Hours() / 24)
	return []models.SubscriptionPlan{
		{Tier: models.TierFree, Label: "Free", Price: 0, DurationDays: 0, MessageLimit: models.TierFree.MessageLimit()},
		{Tier: models.TierGold, Label: "Gold", Price: 299, DurationDays: days, MessageLimit: models.TierGold.MessageLimit()},
		{Tier: models.TierDiamond, Label: "Diamond", Price: 599, DurationDays: days, MessageLimit: models.TierDiamond.MessageLimit()},
	}
}
