package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kripas1369/pdf-backend/internal/models"
)

// SubscriptionRepository handles the per-user subscription row and the daily
// chat message quota.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository creates a new repository instance.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindByUser returns the user's subscription row.
func (r *SubscriptionRepository) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	const query = `SELECT id, user_id, tier, started_at, expires_at, is_active, last_payment_id
		FROM subscriptions WHERE user_id = $1`
	var sub models.Subscription
	if err := r.db.GetContext(ctx, &sub, query, userID); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert replaces the user's subscription row. Each user holds at most one.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.StartedAt.IsZero() {
		sub.StartedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subscriptions (id, user_id, tier, started_at, expires_at, is_active, last_payment_id)
		VALUES (:id, :user_id, :tier, :started_at, :expires_at, :is_active, :last_payment_id)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			started_at = EXCLUDED.started_at,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active,
			last_payment_id = EXCLUDED.last_payment_id`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Quota returns the user's message quota row, creating a zeroed one when
// missing.
func (r *SubscriptionRepository) Quota(ctx context.Context, userID string) (*models.MessageQuota, error) {
	const query = `INSERT INTO message_quotas (user_id, messages_sent_today, last_reset_date)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, messages_sent_today, last_reset_date`
	var quota models.MessageQuota
	if err := r.db.GetContext(ctx, &quota, query, userID, time.Now().UTC().Truncate(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("load message quota: %w", err)
	}
	return &quota, nil
}

// ResetQuota zeroes the daily counter and stamps the reset date.
func (r *SubscriptionRepository) ResetQuota(ctx context.Context, userID string, day time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE message_quotas SET messages_sent_today = 0, last_reset_date = $2 WHERE user_id = $1`,
		userID, day)
	if err != nil {
		return fmt.Errorf("reset message quota: %w", err)
	}
	return nil
}

// IncrementQuota bumps the daily counter by one.
func (r *SubscriptionRepository) IncrementQuota(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE message_quotas SET messages_sent_today = messages_sent_today + 1 WHERE user_id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("increment message quota: %w", err)
	}
	return nil
}
