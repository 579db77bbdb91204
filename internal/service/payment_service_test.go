package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type mockPaymentRepo struct {
	payments   map[string]*models.Payment
	approvals  []*models.PaymentApproval
	qr         *models.PaymentQR
	createErr  error
	applyErr   map[string]error
	upsertQRed bool
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.payments == nil {
		m.payments = make(map[string]*models.Payment)
	}
	m.payments[payment.ID] = payment
	return nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, p := range m.payments {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockPaymentRepo) ApplyApproval(ctx context.Context, userID string, approval *models.PaymentApproval) error {
	if err := m.applyErr[approval.PaymentID]; err != nil {
		return err
	}
	m.approvals = append(m.approvals, approval)
	if p, ok := m.payments[approval.PaymentID]; ok {
		p.Status = approval.Status
		p.VerifiedBy = &approval.VerifiedBy
		at := approval.VerifiedAt
		p.VerifiedAt = &at
	}
	return nil
}

func (m *mockPaymentRepo) ActiveQR(ctx context.Context) (*models.PaymentQR, error) {
	if m.qr == nil {
		return nil, sql.ErrNoRows
	}
	return m.qr, nil
}

func (m *mockPaymentRepo) UpsertQR(ctx context.Context, qr *models.PaymentQR) error {
	m.upsertQRed = true
	m.qr = qr
	return nil
}

type mockPaymentPDFRepo struct {
	known map[string]bool
}

func (m *mockPaymentPDFRepo) FindByID(ctx context.Context, id string) (*models.PDFFile, error) {
	if !m.known[id] {
		return nil, sql.ErrNoRows
	}
	return &models.PDFFile{ID: id}, nil
}

type mockPackageExpander struct {
	packages map[string]*models.PDFPackage
	grantIDs []string
}

func (m *mockPackageExpander) Get(ctx context.Context, id string) (*models.PDFPackage, error) {
	pkg, ok := m.packages[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
	}
	return pkg, nil
}

func (m *mockPackageExpander) PDFIDsForGrant(ctx context.Context, pkg *models.PDFPackage) ([]string, error) {
	return m.grantIDs, nil
}

type mockPaymentStorage struct {
	saved []string
}

func (m *mockPaymentStorage) SaveStream(filename string, r io.Reader) (string, error) {
	m.saved = append(m.saved, filename)
	return filename, nil
}

func (m *mockPaymentStorage) Path(filename string) string {
	return "/data/" + filename
}

func newPaymentService(repo *mockPaymentRepo, pdfs *mockPaymentPDFRepo, packages *mockPackageExpander) *PaymentService {
	if pdfs == nil {
		pdfs = &mockPaymentPDFRepo{}
	}
	if packages == nil {
		packages = &mockPackageExpander{}
	}
	svc := NewPaymentService(repo, pdfs, packages, &mockPaymentStorage{}, nil, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestPaymentCreateSubscription(t *testing.T) {
	repo := &mockPaymentRepo{}
	svc := newPaymentService(repo, nil, nil)
	tier := "GOLD"

	payment, err := svc.Create(context.Background(), "u1", CreatePaymentRequest{
		Type:   "SUBSCRIPTION",
		Amount: 299,
		Tier:   &tier,
	}, "proof.jpg", bytes.NewBufferString("img"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	require.NotNil(t, payment.Tier)
	assert.Equal(t, models.TierGold, *payment.Tier)
	assert.Contains(t, payment.ScreenshotPath, ".jpg")
}

func TestPaymentCreateRejectsMixedReferences(t *testing.T) {
	svc := newPaymentService(&mockPaymentRepo{}, nil, nil)
	tier := "GOLD"
	pdfID := uuid.NewString()

	_, err := svc.Create(context.Background(), "u1", CreatePaymentRequest{
		Type:   "SUBSCRIPTION",
		Amount: 299,
		Tier:   &tier,
		PDFID:  &pdfID,
	}, "", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentCreateSinglePDFRequiresExistingPDF(t *testing.T) {
	pdfID := uuid.NewString()
	svc := newPaymentService(&mockPaymentRepo{}, &mockPaymentPDFRepo{known: map[string]bool{}}, nil)

	_, err := svc.Create(context.Background(), "u1", CreatePaymentRequest{
		Type:   "SINGLE_PDF",
		Amount: 15,
		PDFID:  &pdfID,
	}, "", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentVerifyApproveSubscription(t *testing.T) {
	tier := models.TierDiamond
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", UserID: "u1", Type: models.PaymentSubscription, Amount: 599, Tier: &tier, Status: models.PaymentPending},
	}}
	svc := newPaymentService(repo, nil, nil)

	payment, err := svc.Verify(context.Background(), "admin-1", "p1", VerifyPaymentRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentApproved, payment.Status)

	require.Len(t, repo.approvals, 1)
	approval := repo.approvals[0]
	assert.Equal(t, "admin-1", approval.VerifiedBy)
	assert.True(t, approval.MarkUserVerified)
	assert.True(t, approval.ResetQuota)
	require.NotNil(t, approval.Subscription)
	assert.Equal(t, models.TierDiamond, approval.Subscription.Tier)
	require.NotNil(t, approval.Subscription.ExpiresAt)
	assert.Equal(t, approval.Subscription.StartedAt.Add(models.SubscriptionTerm), *approval.Subscription.ExpiresAt)
}

func TestPaymentVerifyFirstDecisionOwnsVerifier(t *testing.T) {
	firstAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	firstBy := "admin-1"
	tier := models.TierGold
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {
			ID: "p1", UserID: "u1", Type: models.PaymentSubscription, Amount: 299, Tier: &tier,
			Status: models.PaymentApproved, VerifiedBy: &firstBy, VerifiedAt: &firstAt,
		},
	}}
	svc := newPaymentService(repo, nil, nil)

	_, err := svc.Verify(context.Background(), "admin-2", "p1", VerifyPaymentRequest{Approve: true})
	require.NoError(t, err)

	require.Len(t, repo.approvals, 1)
	assert.Equal(t, "admin-1", repo.approvals[0].VerifiedBy)
	assert.Equal(t, firstAt, repo.approvals[0].VerifiedAt)
}

func TestPaymentVerifyPackageGrantsApprovedIDs(t *testing.T) {
	packageID := uuid.NewString()
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", UserID: "u1", Type: models.PaymentSubjectPackage, Amount: 50, PurchasedPackageID: &packageID, Status: models.PaymentPending},
	}}
	packages := &mockPackageExpander{
		packages: map[string]*models.PDFPackage{packageID: {ID: packageID, Scope: models.ScopeSubject}},
		grantIDs: []string{"pdf-1", "pdf-2"},
	}
	svc := newPaymentService(repo, nil, packages)

	_, err := svc.Verify(context.Background(), "admin-1", "p1", VerifyPaymentRequest{Approve: true})
	require.NoError(t, err)

	require.Len(t, repo.approvals, 1)
	assert.Equal(t, []string{"pdf-1", "pdf-2"}, repo.approvals[0].GrantPDFIDs)
	assert.Nil(t, repo.approvals[0].Subscription)
}

func TestPaymentVerifyRejectHasNoSideEffects(t *testing.T) {
	pdfID := uuid.NewString()
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", UserID: "u1", Type: models.PaymentSinglePDF, Amount: 15, PurchasedPDFID: &pdfID, Status: models.PaymentPending},
	}}
	svc := newPaymentService(repo, nil, nil)

	payment, err := svc.Verify(context.Background(), "admin-1", "p1", VerifyPaymentRequest{Approve: false, AdminNotes: "blurry screenshot"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, payment.Status)

	require.Len(t, repo.approvals, 1)
	approval := repo.approvals[0]
	assert.Empty(t, approval.GrantPDFIDs)
	assert.Nil(t, approval.Subscription)
	assert.False(t, approval.MarkUserVerified)
	assert.Equal(t, "blurry screenshot", approval.AdminNotes)
}

func TestPaymentVerifyZeroAmountSkipsVerifiedBadge(t *testing.T) {
	pdfID := uuid.NewString()
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", UserID: "u1", Type: models.PaymentSinglePDF, Amount: 0, PurchasedPDFID: &pdfID, Status: models.PaymentPending},
	}}
	svc := newPaymentService(repo, nil, nil)

	_, err := svc.Verify(context.Background(), "admin-1", "p1", VerifyPaymentRequest{Approve: true})
	require.NoError(t, err)
	require.Len(t, repo.approvals, 1)
	assert.False(t, repo.approvals[0].MarkUserVerified)
}

func TestPaymentBulkVerifyContinuesPastFailures(t *testing.T) {
	tier := models.TierGold
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	repo := &mockPaymentRepo{
		payments: map[string]*models.Payment{
			ids[0]: {ID: ids[0], UserID: "u1", Type: models.PaymentSubscription, Amount: 299, Tier: &tier, Status: models.PaymentPending},
			ids[2]: {ID: ids[2], UserID: "u2", Type: models.PaymentSubscription, Amount: 299, Tier: &tier, Status: models.PaymentPending},
		},
		applyErr: map[string]error{ids[2]: errors.New("deadlock")},
	}
	svc := newPaymentService(repo, nil, nil)

	result, err := svc.BulkVerify(context.Background(), "admin-1", BulkVerifyRequest{PaymentIDs: ids, Approve: true})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, result.Failed, 2)
}

func TestPaymentGetOwnerOnly(t *testing.T) {
	repo := &mockPaymentRepo{payments: map[string]*models.Payment{
		"p1": {ID: "p1", UserID: "u1", Status: models.PaymentPending},
	}}
	svc := newPaymentService(repo, nil, nil)

	_, err := svc.Get(context.Background(), "p1", "u2", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	payment, err := svc.Get(context.Background(), "p1", "u2", true)
	require.NoError(t, err)
	assert.Equal(t, "p1", payment.ID)
}

func TestPaymentSetQRDeactivatesPrevious(t *testing.T) {
	repo := &mockPaymentRepo{}
	svc := newPaymentService(repo, nil, nil)

	qr, err := svc.SetQR(context.Background(), "scan and pay", "qr.png", bytes.NewBufferString("img"))
	require.NoError(t, err)
	assert.True(t, qr.IsActive)
	assert.True(t, repo.upsertQRed)
}
