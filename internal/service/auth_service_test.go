package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type mockAuthRepo struct {
	usersByPhone  map[string]*models.User
	usersByCode   map[string]*models.User
	created       []*models.User
	refreshTokens map[string]*models.RefreshToken
	otps          map[string]*models.OTP
	revokedAll    []string
	passwords     map[string]string
}

func (m *mockAuthRepo) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	u, ok := m.usersByPhone[phone]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.usersByPhone {
		if u.ID == id {
			return u, nil
		}
	}
	for _, u := range m.created {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	u, ok := m.usersByCode[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	_, ok := m.usersByPhone[phone]
	return ok, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.passwords == nil {
		m.passwords = make(map[string]string)
	}
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateOTP(ctx context.Context, otp *models.OTP) error {
	if m.otps == nil {
		m.otps = make(map[string]*models.OTP)
	}
	if otp.ID == "" {
		otp.ID = "otp-" + otp.Phone
	}
	m.otps[otp.Phone] = otp
	return nil
}

func (m *mockAuthRepo) LatestOTP(ctx context.Context, phone string) (*models.OTP, error) {
	otp, ok := m.otps[phone]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return otp, nil
}

func (m *mockAuthRepo) MarkOTPUsed(ctx context.Context, id string) error {
	for _, otp := range m.otps {
		if otp.ID == id {
			otp.IsUsed = true
		}
	}
	return nil
}

func (m *mockAuthRepo) IncrementOTPAttempts(ctx context.Context, id string) error {
	for _, otp := range m.otps {
		if otp.ID == id {
			otp.Attempts++
		}
	}
	return nil
}

type mockAuthSubs struct {
	upserts []*models.Subscription
}

func (m *mockAuthSubs) Upsert(ctx context.Context, sub *models.Subscription) error {
	m.upserts = append(m.upserts, sub)
	return nil
}

type recordingOTPSender struct {
	codes map[string]string
}

func (r *recordingOTPSender) SendOTP(ctx context.Context, phone, code string) error {
	if r.codes == nil {
		r.codes = make(map[string]string)
	}
	r.codes[phone] = code
	return nil
}

func newAuthService(repo *mockAuthRepo, subs *mockAuthSubs, sender OTPSender) *AuthService {
	if subs == nil {
		subs = &mockAuthSubs{}
	}
	return NewAuthService(repo, subs, sender, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "test",
	})
}

func TestAuthRegisterIssuesReferralCodeAndFreeTier(t *testing.T) {
	repo := &mockAuthRepo{}
	subs := &mockAuthSubs{}
	svc := newAuthService(repo, subs, nil)

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Phone:    "9841234567",
		Password: "password",
		Name:     "Asha",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	require.Len(t, repo.created, 1)
	user := repo.created[0]
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Regexp(t, regexp.MustCompile(`^SATHI234567\d{2}$`), user.ReferralCode)

	require.Len(t, subs.upserts, 1)
	assert.Equal(t, models.TierFree, subs.upserts[0].Tier)
	assert.Equal(t, user.ID, subs.upserts[0].UserID)
}

func TestAuthRegisterDuplicatePhone(t *testing.T) {
	repo := &mockAuthRepo{usersByPhone: map[string]*models.User{
		"9841234567": {ID: "u1", Phone: "9841234567"},
	}}
	svc := newAuthService(repo, nil, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Phone: "9841234567", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthRegisterUnknownReferralCodeIgnored(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthService(repo, nil, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Phone:        "9841234567",
		Password:     "password",
		ReferralCode: "SATHI00000000",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Nil(t, repo.created[0].ReferredBy)
}

func TestAuthRegisterKnownReferralCodeRecorded(t *testing.T) {
	referrer := &models.User{ID: "ref-1", ReferralCode: "SATHI11223344"}
	repo := &mockAuthRepo{usersByCode: map[string]*models.User{referrer.ReferralCode: referrer}}
	svc := newAuthService(repo, nil, nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Phone:        "9841234567",
		Password:     "password",
		ReferralCode: referrer.ReferralCode,
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	require.NotNil(t, repo.created[0].ReferredBy)
	assert.Equal(t, "ref-1", *repo.created[0].ReferredBy)
}

func TestAuthLoginSuccess(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{usersByPhone: map[string]*models.User{
		"9841234567": {ID: "u1", Phone: "9841234567", PasswordHash: string(hash), Active: true, Role: models.RoleStudent},
	}}
	svc := newAuthService(repo, nil, nil)

	res, err := svc.Login(context.Background(), models.LoginRequest{Phone: "9841234567", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, repo.refreshTokens)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{usersByPhone: map[string]*models.User{
		"9841234567": {ID: "u1", Phone: "9841234567", PasswordHash: string(hash), Active: true},
	}}
	svc := newAuthService(repo, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Phone: "9841234567", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginSingleSessionRevokesPrevious(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{usersByPhone: map[string]*models.User{
		"9841234567": {ID: "u1", Phone: "9841234567", PasswordHash: string(hash), Active: true},
	}}
	svc := NewAuthService(repo, &mockAuthSubs{}, nil, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		SingleSession:      true,
	})

	_, err := svc.Login(context.Background(), models.LoginRequest{Phone: "9841234567", Password: "password"})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "u1")
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{usersByPhone: map[string]*models.User{
		"9841234567": {ID: "u1", Phone: "9841234567", PasswordHash: string(hash), Active: false},
	}}
	svc := newAuthService(repo, nil, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Phone: "9841234567", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshTokenRotates(t *testing.T) {
	user := &models.User{ID: "u1", Phone: "9841234567", Active: true, Role: models.RoleStudent}
	repo := &mockAuthRepo{
		usersByPhone: map[string]*models.User{user.Phone: user},
		refreshTokens: map[string]*models.RefreshToken{
			"old-token": {ID: "rt1", UserID: "u1", Token: "old-token", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}
	svc := newAuthService(repo, nil, nil)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["old-token"].Revoked)
}

func TestAuthResetPasswordHappyPath(t *testing.T) {
	user := &models.User{ID: "u1", Phone: "9841234567", Active: true}
	repo := &mockAuthRepo{usersByPhone: map[string]*models.User{user.Phone: user}}
	sender := &recordingOTPSender{}
	svc := newAuthService(repo, nil, sender)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Phone: user.Phone}))
	code := sender.codes[user.Phone]
	require.Len(t, code, 6)

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Phone:       user.Phone,
		OTP:         code,
		NewPassword: "newsecret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwords["u1"])
	assert.True(t, repo.otps[user.Phone].IsUsed)
	assert.Contains(t, repo.revokedAll, "u1")
}

func TestAuthResetPasswordWrongCodeBurnsAttempt(t *testing.T) {
	user := &models.User{ID: "u1", Phone: "9841234567", Active: true}
	repo := &mockAuthRepo{
		usersByPhone: map[string]*models.User{user.Phone: user},
		otps: map[string]*models.OTP{user.Phone: {
			ID: "otp-1", Phone: user.Phone, Code: "123456", ExpiresAt: time.Now().Add(time.Minute),
		}},
	}
	svc := newAuthService(repo, nil, nil)

	for i := 0; i < models.OTPMaxAttempts; i++ {
		err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
			Phone: user.Phone, OTP: "000000", NewPassword: "newsecret",
		})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidOTP.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, models.OTPMaxAttempts, repo.otps[user.Phone].Attempts)

	// Attempts exhausted: even the right code no longer works.
	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{
		Phone: user.Phone, OTP: "123456", NewPassword: "newsecret",
	})
	require.Error(t, err)
}

func TestAuthForgotPasswordSilentOnUnknownPhone(t *testing.T) {
	sender := &recordingOTPSender{}
	svc := newAuthService(&mockAuthRepo{}, nil, sender)

	err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Phone: "9800000000"})
	require.NoError(t, err)
	assert.Empty(t, sender.codes)
}

func TestAuthValidateToken(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthService(repo, nil, nil)
	user := &models.User{ID: "u1", Phone: "9841234567", Role: models.RoleAdmin}

	token, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthLogoutRejectsForeignToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newAuthService(repo, nil, nil)

	err := svc.Logout(context.Background(), "token", "u2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "token", "u1"))
	assert.True(t, repo.refreshTokens["token"].Revoked)
}
