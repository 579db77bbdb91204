package models

import "time"

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierGold    Tier = "GOLD"
	TierDiamond Tier = "DIAMOND"
)

// SubscriptionTerm is the fixed validity window for paid tiers.
const SubscriptionTerm = 180 * 24 * time.Hour

// MessageLimit returns the daily chat message allowance for the tier.
func (t Tier) MessageLimit() int {
	switch t {
	case TierGold:
		return 50
	case TierDiamond:
		return 999999
	default:
		return 2
	}
}

// Paid reports whether the tier requires payment.
func (t Tier) Paid() bool {
	return t == TierGold || t == TierDiamond
}

// Subscription is the single per-user subscription row. Paid tiers carry an
// expiry; the row is replaced, not appended, on each approved payment.
type Subscription struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	Tier          Tier       `db:"tier" json:"tier"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	LastPaymentID *string    `db:"last_payment_id" json:"last_payment_id,omitempty"`
}

// Expired reports whether a paid subscription has lapsed. A missing expiry
// (free tier) never expires.
func (s *Subscription) Expired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// Covers reports whether the subscription currently grants blanket premium
// access.
func (s *Subscription) Covers(now time.Time) bool {
	return s != nil && s.Tier.Paid() && s.IsActive && !s.Expired(now)
}

// MessageQuota tracks a user's daily chat allowance. The counter resets
// lazily when the stored date falls behind today.
type MessageQuota struct {
	UserID            string    `db:"user_id" json:"user_id"`
	MessagesSentToday int       `db:"messages_sent_today" json:"messages_sent_today"`
	LastResetDate     time.Time `db:"last_reset_date" json:"last_reset_date"`
}

// SubscriptionPlan is static tier metadata for the paywall.
type SubscriptionPlan struct {
	Tier         Tier    `json:"tier"`
	Label        string  `json:"label"`
	Price        float64 `json:"price"`
	DurationDays int     `json:"duration_days"`
	MessageLimit int     `json:"daily_message_limit"`
}
