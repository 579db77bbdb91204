package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
)

type mockEntitlementPDFRepo struct {
	detail     *models.PDFDetail
	details    map[string]*models.PDFDetail
	detailErr  error
	scopeIDs   map[models.PackageScope][]string
	scopeCalls int
}

func (m *mockEntitlementPDFRepo) FindDetailByID(ctx context.Context, id string) (*models.PDFDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	return m.detail, nil
}

func (m *mockEntitlementPDFRepo) IDsByScope(ctx context.Context, scope models.PackageScope, subjectID, topicID *string, year *int, content models.PackageContent) ([]string, error) {
	m.scopeCalls++
	return m.scopeIDs[scope], nil
}

type mockEntitlementAccessRepo struct {
	grants     map[string]bool
	grantIDs   []string
	pkgGrants  []models.PackageGrant
	upserted   []*models.PDFAccess
	existsErr  error
	upsertErr  error
	listPkgErr error
	listIDsErr error
}

func (m *mockEntitlementAccessRepo) Exists(ctx context.Context, userID, pdfID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.grants[pdfID], nil
}

func (m *mockEntitlementAccessRepo) Upsert(ctx context.Context, access *models.PDFAccess) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, access)
	return nil
}

func (m *mockEntitlementAccessRepo) ListPDFIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if m.listIDsErr != nil {
		return nil, m.listIDsErr
	}
	return m.grantIDs, nil
}

func (m *mockEntitlementAccessRepo) ListApprovedPackageGrantsByUser(ctx context.Context, userID string) ([]models.PackageGrant, error) {
	if m.listPkgErr != nil {
		return nil, m.listPkgErr
	}
	return m.pkgGrants, nil
}

type mockEntitlementSubRepo struct {
	sub *models.Subscription
	err error
}

func (m *mockEntitlementSubRepo) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.sub == nil {
		return nil, sql.ErrNoRows
	}
	return m.sub, nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func premiumSolution() *models.PDFDetail {
	return &models.PDFDetail{
		PDFFile: models.PDFFile{
			ID:         "pdf-1",
			Title:      "Physics 2080 Solutions",
			Year:       2080,
			SubjectID:  "sub-1",
			PDFType:    models.PDFTypeSolution,
			IsSolution: true,
			IsPremium:  true,
			Price:      models.SolutionPrice,
			IsApproved: true,
		},
		TopicID: strPtr("topic-1"),
	}
}

func newEntitlementService(pdfs *mockEntitlementPDFRepo, access *mockEntitlementAccessRepo, subs *mockEntitlementSubRepo) *EntitlementService {
	svc := NewEntitlementService(pdfs, access, subs, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestEntitlementFreePDFOpenToAnonymous(t *testing.T) {
	detail := premiumSolution()
	detail.IsPremium = false
	detail.PDFType = models.PDFTypeQuestion
	pdfs := &mockEntitlementPDFRepo{detail: detail}
	svc := newEntitlementService(pdfs, &mockEntitlementAccessRepo{}, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "", "pdf-1")
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
	assert.Equal(t, models.ReasonFreePDF, decision.Reason)
}

func TestEntitlementAnonymousDeniedWithPrice(t *testing.T) {
	pdfs := &mockEntitlementPDFRepo{detail: premiumSolution()}
	svc := newEntitlementService(pdfs, &mockEntitlementAccessRepo{}, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "", "pdf-1")
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
	assert.True(t, decision.IsPremium)
	assert.Equal(t, models.SolutionPrice, decision.Price)
}

func TestEntitlementActiveSubscriptionWins(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	subs := &mockEntitlementSubRepo{sub: &models.Subscription{
		UserID: "u1", Tier: models.TierGold, IsActive: true, ExpiresAt: &expires,
	}}
	access := &mockEntitlementAccessRepo{}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: premiumSolution()}, access, subs)

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
	assert.Equal(t, models.ReasonSubscription, decision.Reason)
}

func TestEntitlementExpiredSubscriptionFallsThrough(t *testing.T) {
	expires := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	subs := &mockEntitlementSubRepo{sub: &models.Subscription{
		UserID: "u1", Tier: models.TierGold, IsActive: true, ExpiresAt: &expires,
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: premiumSolution()}, &mockEntitlementAccessRepo{}, subs)

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
	assert.Equal(t, models.SolutionPrice, decision.Price)
}

func TestEntitlementDirectGrant(t *testing.T) {
	access := &mockEntitlementAccessRepo{grants: map[string]bool{"pdf-1": true}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: premiumSolution()}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
	assert.Equal(t, models.ReasonPurchased, decision.Reason)
	assert.Empty(t, access.upserted)
}

func TestEntitlementPackageCoverageMemoizes(t *testing.T) {
	access := &mockEntitlementAccessRepo{pkgGrants: []models.PackageGrant{
		{Scope: models.ScopeSubject, SubjectID: strPtr("sub-1"), Content: models.ContentAll},
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: premiumSolution()}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
	assert.Equal(t, models.ReasonPackage, decision.Reason)
	require.Len(t, access.upserted, 1)
	assert.Equal(t, "pdf-1", access.upserted[0].PDFID)
	assert.Equal(t, "u1", access.upserted[0].UserID)
}

func TestEntitlementMemoizeFailureStillGrants(t *testing.T) {
	access := &mockEntitlementAccessRepo{
		pkgGrants: []models.PackageGrant{{Scope: models.ScopeAllYears, Content: models.ContentAll}},
		upsertErr: sql.ErrConnDone,
	}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: premiumSolution()}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
}

func TestEntitlementContentGating(t *testing.T) {
	// A questions-only package never unlocks a solutions PDF.
	access := &mockEntitlementAccessRepo{pkgGrants: []models.PackageGrant{
		{Scope: models.ScopeSubject, SubjectID: strPtr("sub-1"), Content: models.ContentQuestions},
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: premiumSolution()}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
}

func TestEntitlementBothTypeMatchesEitherContent(t *testing.T) {
	detail := premiumSolution()
	detail.PDFType = models.PDFTypeBoth
	access := &mockEntitlementAccessRepo{pkgGrants: []models.PackageGrant{
		{Scope: models.ScopeYear, Year: intPtr(2080), Content: models.ContentQuestions},
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: detail}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
}

func TestEntitlementDanglingTopicGrantIsSkipped(t *testing.T) {
	// Subject row deleted: the PDF has no topic, so a topic-scoped grant
	// cannot match, but other grants still apply.
	detail := premiumSolution()
	detail.TopicID = nil
	access := &mockEntitlementAccessRepo{pkgGrants: []models.PackageGrant{
		{Scope: models.ScopeTopic, TopicID: strPtr("topic-1"), Content: models.ContentAll},
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: detail}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
}

func TestEntitlementUnapprovedPDFNeverPackageCovered(t *testing.T) {
	detail := premiumSolution()
	detail.IsApproved = false
	access := &mockEntitlementAccessRepo{pkgGrants: []models.PackageGrant{
		{Scope: models.ScopeAllYears, Content: models.ContentAll},
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{detail: detail}, access, &mockEntitlementSubRepo{})

	decision, err := svc.Check(context.Background(), "u1", "pdf-1")
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
}

func TestEntitlementAccessiblePDFIDsMergesGrantsAndPackages(t *testing.T) {
	pdfs := &mockEntitlementPDFRepo{scopeIDs: map[models.PackageScope][]string{
		models.ScopeSubject: {"pdf-2", "pdf-3"},
	}}
	access := &mockEntitlementAccessRepo{
		grantIDs: []string{"pdf-1", "pdf-2"},
		pkgGrants: []models.PackageGrant{
			{Scope: models.ScopeSubject, SubjectID: strPtr("sub-1"), Content: models.ContentAll},
		},
	}
	svc := newEntitlementService(pdfs, access, &mockEntitlementSubRepo{})

	ids, err := svc.AccessiblePDFIDs(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, "pdf-1")
	assert.Contains(t, ids, "pdf-3")
	assert.Equal(t, 1, pdfs.scopeCalls)
}

func TestEntitlementBatchSetAgreesWithPerPDFCheck(t *testing.T) {
	// The id set used to decorate listings must grant exactly the PDFs a
	// per-document check would grant: free ones aside, membership in the
	// set and a positive Check decision have to coincide.
	details := map[string]*models.PDFDetail{
		"free-1": {PDFFile: models.PDFFile{
			ID: "free-1", SubjectID: "sub-1", PDFType: models.PDFTypeQuestion, IsApproved: true,
		}},
		"grant-1": {PDFFile: models.PDFFile{
			ID: "grant-1", SubjectID: "sub-2", PDFType: models.PDFTypeSolution,
			IsPremium: true, Price: models.SolutionPrice, IsApproved: true,
		}},
		"pkg-1": {PDFFile: models.PDFFile{
			ID: "pkg-1", SubjectID: "sub-1", PDFType: models.PDFTypeSolution,
			IsPremium: true, Price: models.SolutionPrice, IsApproved: true,
		}},
		"locked-1": {PDFFile: models.PDFFile{
			ID: "locked-1", SubjectID: "sub-3", PDFType: models.PDFTypeSolution,
			IsPremium: true, Price: models.SolutionPrice, IsApproved: true,
		}},
		"pending-1": {PDFFile: models.PDFFile{
			ID: "pending-1", SubjectID: "sub-1", PDFType: models.PDFTypeSolution,
			IsPremium: true, Price: models.SolutionPrice, IsApproved: false,
		}},
	}
	pdfs := &mockEntitlementPDFRepo{
		details: details,
		// The repository's scope expansion only ever emits approved rows,
		// which is why pending-1 stays out.
		scopeIDs: map[models.PackageScope][]string{models.ScopeSubject: {"pkg-1"}},
	}
	access := &mockEntitlementAccessRepo{
		grants:   map[string]bool{"grant-1": true},
		grantIDs: []string{"grant-1"},
		pkgGrants: []models.PackageGrant{
			{Scope: models.ScopeSubject, SubjectID: strPtr("sub-1"), Content: models.ContentAll},
		},
	}
	svc := newEntitlementService(pdfs, access, &mockEntitlementSubRepo{})

	ids, err := svc.AccessiblePDFIDs(context.Background(), "u1")
	require.NoError(t, err)

	for id, detail := range details {
		decision, err := svc.Check(context.Background(), "u1", id)
		require.NoError(t, err, id)

		_, inSet := ids[id]
		batchHasAccess := !detail.IsPremium || inSet
		assert.Equal(t, decision.HasAccess, batchHasAccess, id)
	}
	assert.Contains(t, ids, "pkg-1")
	assert.NotContains(t, ids, "pending-1")
}

func TestEntitlementAccessiblePDFIDsAnonymousEmpty(t *testing.T) {
	svc := newEntitlementService(&mockEntitlementPDFRepo{}, &mockEntitlementAccessRepo{}, &mockEntitlementSubRepo{})

	ids, err := svc.AccessiblePDFIDs(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEntitlementHasBlanketAccess(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	subs := &mockEntitlementSubRepo{sub: &models.Subscription{
		UserID: "u1", Tier: models.TierDiamond, IsActive: true, ExpiresAt: &expires,
	}}
	svc := newEntitlementService(&mockEntitlementPDFRepo{}, &mockEntitlementAccessRepo{}, subs)

	ok, err := svc.HasBlanketAccess(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasBlanketAccess(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}
