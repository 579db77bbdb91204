package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kripas1369/pdf-backend/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "phone", "name", "password_hash", "role", "referral_code", "referred_by", "is_verified", "active", "last_login", "created_at", "updated_at"}).
		AddRow("u1", "9841234567", "Asha", "hash", string(models.RoleStudent), "SATHI23456701", nil, false, true, now, now, now)
}

func TestUserFindByPhone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, phone, name, password_hash, role, referral_code, referred_by, is_verified, active, last_login, created_at, updated_at FROM users WHERE phone = $1")).
		WithArgs("9841234567").
		WillReturnRows(userRows(time.Now()))

	user, err := repo.FindByPhone(context.Background(), "9841234567")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "SATHI23456701", user.ReferralCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Phone: "9841234567", Role: models.RoleStudent}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserExistsByPhone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE phone = $1 LIMIT 1")).
		WithArgs("9841234567").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE phone = $1 LIMIT 1")).
		WithArgs("9800000000").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByPhone(context.Background(), "9841234567")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByPhone(context.Background(), "9800000000")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserListFiltersAndPaginates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleStudent
	verified := true

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1 AND is_verified = $2")).
		WithArgs(string(role), verified).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, phone, name, password_hash, role, referral_code, referred_by, is_verified, active, last_login, created_at, updated_at FROM users WHERE role = $1 AND is_verified = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(string(role), verified, 20, 0).
		WillReturnRows(userRows(time.Now()))

	users, total, err := repo.List(context.Background(), models.UserFilter{
		Role:     &role,
		Verified: &verified,
		Page:     1,
		PageSize: 20,
	})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserMarkVerified(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1 AND is_verified = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkVerified(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRevokeUserRefreshTokens(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.RevokeUserRefreshTokens(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserLatestOTP(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "phone", "code", "expires_at", "is_used", "attempts", "created_at"}).
		AddRow("otp-1", "9841234567", "123456", now.Add(5*time.Minute), false, 0, now)
	mock.ExpectQuery("SELECT id, phone, code, expires_at, is_used, attempts, created_at").
		WithArgs("9841234567").
		WillReturnRows(rows)

	otp, err := repo.LatestOTP(context.Background(), "9841234567")
	require.NoError(t, err)
	assert.Equal(t, "123456", otp.Code)
	assert.True(t, otp.Valid(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
