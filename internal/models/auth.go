package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a new account keyed by phone number.
type RegisterRequest struct {
	Phone        string `json:"phone" validate:"required,min=7,max=15"`
	Password     string `json:"password" validate:"required,min=6"`
	Name         string `json:"name" validate:"max=100"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=20"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Phone     string `json:"phone" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ForgotPasswordRequest initiates the OTP reset flow.
type ForgotPasswordRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// ResetPasswordRequest completes the OTP reset flow.
type ResetPasswordRequest struct {
	Phone       string `json:"phone" validate:"required"`
	OTP         string `json:"otp" validate:"required,len=6"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// UpdateProfileRequest modifies the caller's profile fields.
type UpdateProfileRequest struct {
	Name string `json:"name" validate:"max=100"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID           string   `json:"id"`
	Phone        string   `json:"phone"`
	Name         string   `json:"name"`
	Role         UserRole `json:"role"`
	ReferralCode string   `json:"referral_code"`
	IsVerified   bool     `json:"is_verified"`
}

// JWTClaims embeds registered claims plus application identity.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Phone  string   `json:"phone"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// RefreshToken is an opaque long-lived credential stored server side.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress string     `db:"ip_address" json:"-"`
	UserAgent string     `db:"user_agent" json:"-"`
}

// OTPTTL bounds how long a password-reset code stays usable.
const (
	OTPTTL         = 5 * time.Minute
	OTPMaxAttempts = 3
)

// OTP is a short-lived password-reset code delivered out of band.
type OTP struct {
	ID        string    `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	IsUsed    bool      `db:"is_used" json:"is_used"`
	Attempts  int       `db:"attempts" json:"attempts"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Valid reports whether the OTP can still be redeemed.
func (o *OTP) Valid(now time.Time) bool {
	return !o.IsUsed && now.Before(o.ExpiresAt) && o.Attempts < OTPMaxAttempts
}
