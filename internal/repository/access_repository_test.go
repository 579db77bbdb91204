package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kripas1369/pdf-backend/internal/models"
)

func TestAccessExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM pdf_access WHERE user_id = $1 AND pdf_id = $2 LIMIT 1")).
		WithArgs("u1", "pdf-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM pdf_access WHERE user_id = $1 AND pdf_id = $2 LIMIT 1")).
		WithArgs("u1", "pdf-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	has, err := repo.Exists(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.Exists(context.Background(), "u1", "pdf-2")
	require.NoError(t, err)
	assert.False(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessUpsertFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRepository(db)

	mock.ExpectExec("INSERT INTO pdf_access").WillReturnResult(sqlmock.NewResult(0, 1))

	access := &models.PDFAccess{UserID: "u1", PDFID: "pdf-1"}
	require.NoError(t, repo.Upsert(context.Background(), access))
	assert.NotEmpty(t, access.ID)
	assert.False(t, access.GrantedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessListApprovedPackageGrants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRepository(db)

	subjectID := "sub-1"
	rows := sqlmock.NewRows([]string{"scope", "subject_id", "topic_id", "year", "content"}).
		AddRow(string(models.ScopeSubject), subjectID, nil, nil, string(models.ContentSolutions))
	mock.ExpectQuery("SELECT DISTINCT pk.scope").
		WithArgs("u1", string(models.PaymentApproved)).
		WillReturnRows(rows)

	grants, err := repo.ListApprovedPackageGrantsByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.ScopeSubject, grants[0].Scope)
	assert.Equal(t, models.ContentSolutions, grants[0].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}
