package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	ApplyApproval(ctx context.Context, userID string, approval *models.PaymentApproval) error
	ActiveQR(ctx context.Context) (*models.PaymentQR, error)
	UpsertQR(ctx context.Context, qr *models.PaymentQR) error
}

type paymentPDFRepository interface {
	FindByID(ctx context.Context, id string) (*models.PDFFile, error)
}

type paymentPackageExpander interface {
	Get(ctx context.Context, id string) (*models.PDFPackage, error)
	PDFIDsForGrant(ctx context.Context, pkg *models.PDFPackage) ([]string, error)
}

type paymentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Path(filename string) string
}

// CreatePaymentRequest reports a QR transfer for manual review. The
// screenshot streams in separately.
type CreatePaymentRequest struct {
	Type            string  `json:"payment_type" validate:"required,oneof=SUBSCRIPTION SINGLE_PDF SUBJECT_PACKAGE TOPIC_PACKAGE YEAR_PACKAGE FULL_PACKAGE"`
	Amount          float64 `json:"amount" validate:"min=0"`
	Tier            *string `json:"tier" validate:"omitempty,oneof=GOLD DIAMOND"`
	PDFID           *string `json:"purchased_pdf" validate:"omitempty,uuid"`
	PackageID       *string `json:"purchased_package" validate:"omitempty,uuid"`
	PaymentMethod   string  `json:"payment_method" validate:"omitempty,max=50"`
	TransactionNote string  `json:"transaction_note" validate:"omitempty,max=500"`
}

// VerifyPaymentRequest carries an admin decision.
type VerifyPaymentRequest struct {
	Approve    bool   `json:"approve"`
	AdminNotes string `json:"admin_notes" validate:"omitempty,max=500"`
}

// BulkVerifyRequest applies one decision to many payments.
type BulkVerifyRequest struct {
	PaymentIDs []string `json:"payment_ids" validate:"required,min=1,dive,uuid"`
	Approve    bool     `json:"approve"`
	AdminNotes string   `json:"admin_notes" validate:"omitempty,max=500"`
}

// BulkVerifyResult summarises a bulk review pass.
type BulkVerifyResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"`
}

// PaymentService runs the manual payment ledger: users report QR transfers
// with a screenshot, admins approve or reject, and approval fans out into
// subscription, grant and badge side effects atomically. Re-running an
// approval is harmless.
type PaymentService struct {
	repo      paymentRepository
	pdfs      paymentPDFRepository
	packages  paymentPackageExpander
	storage   paymentStorage
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the payment service.
func NewPaymentService(repo paymentRepository, pdfs paymentPDFRepository, packages paymentPackageExpander, storage paymentStorage, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:      repo,
		pdfs:      pdfs,
		packages:  packages,
		storage:   storage,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create records a pending payment. The reference matching the payment type
// must be present and valid; the others must be absent.
func (s *PaymentService) Create(ctx context.Context, userID string, req CreatePaymentRequest, screenshotName string, screenshot io.Reader) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	paymentType := models.PaymentType(req.Type)
	if err := s.validateReferences(ctx, paymentType, req); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            paymentType,
		Amount:          req.Amount,
		PurchasedPDFID:  req.PDFID,
		PaymentMethod:   req.PaymentMethod,
		TransactionNote: req.TransactionNote,
		Status:          models.PaymentPending,
	}
	if req.Tier != nil {
		tier := models.Tier(*req.Tier)
		payment.Tier = &tier
	}
	if paymentType.IsPackage() {
		payment.PurchasedPackageID = req.PackageID
	}

	if screenshot != nil {
		name := fmt.Sprintf("payment_screenshots/%s%s", payment.ID, safeImageExt(screenshotName))
		relPath, err := s.storage.SaveStream(name, screenshot)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store screenshot")
		}
		payment.ScreenshotPath = relPath
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}
	return payment, nil
}

func safeImageExt(name string) string {
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp"} {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return ext
		}
	}
	return ".png"
}

func (s *PaymentService) validateReferences(ctx context.Context, paymentType models.PaymentType, req CreatePaymentRequest) error {
	switch paymentType {
	case models.PaymentSubscription:
		if req.Tier == nil {
			return appErrors.Clone(appErrors.ErrValidation, "tier is required for subscription payments")
		}
		if req.PDFID != nil || req.PackageID != nil {
			return appErrors.Clone(appErrors.ErrValidation, "subscription payments cannot reference a pdf or package")
		}
	case models.PaymentSinglePDF:
		if req.PDFID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "purchased_pdf is required for single pdf payments")
		}
		if req.Tier != nil || req.PackageID != nil {
			return appErrors.Clone(appErrors.ErrValidation, "single pdf payments cannot reference a tier or package")
		}
		if _, err := s.pdfs.FindByID(ctx, *req.PDFID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "pdf not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pdf")
		}
	default:
		if req.PackageID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "purchased_package is required for package payments")
		}
		if req.Tier != nil || req.PDFID != nil {
			return appErrors.Clone(appErrors.ErrValidation, "package payments cannot reference a tier or pdf")
		}
		if _, err := s.packages.Get(ctx, *req.PackageID); err != nil {
			return err
		}
	}
	return nil
}

// ListMine returns the caller's payments.
func (s *PaymentService) ListMine(ctx context.Context, userID string, page, size int) ([]models.Payment, *models.Pagination, error) {
	return s.list(ctx, models.PaymentFilter{UserID: userID, Page: page, PageSize: size})
}

// ListForReview returns the admin review queue, pending first by default.
func (s *PaymentService) ListForReview(ctx context.Context, status models.PaymentStatus, page, size int) ([]models.Payment, *models.Pagination, error) {
	return s.list(ctx, models.PaymentFilter{Status: status, Page: page, PageSize: size})
}

func (s *PaymentService) list(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one payment, restricted to its owner unless asAdmin is set.
func (s *PaymentService) Get(ctx context.Context, id, callerID string, asAdmin bool) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if !asAdmin && payment.UserID != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another user")
	}
	return payment, nil
}

// Verify applies an admin decision. An approval replays all side effects
// with upsert semantics, so verifying the same payment twice cannot double
// grant. The first decision owns verified_by and verified_at.
func (s *PaymentService) Verify(ctx context.Context, adminID, paymentID string, req VerifyPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	approval, err := s.buildApproval(ctx, adminID, payment, req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ApplyApproval(ctx, payment.UserID, approval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}
	if s.metrics != nil {
		s.metrics.RecordPaymentReview(string(approval.Status))
	}

	updated, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload payment")
	}
	return updated, nil
}

func (s *PaymentService) buildApproval(ctx context.Context, adminID string, payment *models.Payment, req VerifyPaymentRequest) (*models.PaymentApproval, error) {
	status := models.PaymentRejected
	if req.Approve {
		status = models.PaymentApproved
	}

	verifiedBy := adminID
	verifiedAt := s.now()
	if payment.VerifiedBy != nil {
		verifiedBy = *payment.VerifiedBy
	}
	if payment.VerifiedAt != nil {
		verifiedAt = *payment.VerifiedAt
	}

	approval := &models.PaymentApproval{
		PaymentID:  payment.ID,
		Status:     status,
		VerifiedBy: verifiedBy,
		VerifiedAt: verifiedAt,
		AdminNotes: req.AdminNotes,
	}
	if !req.Approve {
		return approval, nil
	}

	approval.MarkUserVerified = payment.Amount > 0

	switch payment.Type {
	case models.PaymentSubscription:
		tier := models.TierGold
		if payment.Tier != nil {
			tier = *payment.Tier
		}
		started := s.now()
		expires := started.Add(models.SubscriptionTerm)
		approval.Subscription = &models.Subscription{
			UserID:        payment.UserID,
			Tier:          tier,
			StartedAt:     started,
			ExpiresAt:     &expires,
			IsActive:      true,
			LastPaymentID: &payment.ID,
		}
		approval.ResetQuota = true
	case models.PaymentSinglePDF:
		if payment.PurchasedPDFID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment has no pdf reference")
		}
		approval.GrantPDFIDs = []string{*payment.PurchasedPDFID}
	default:
		if payment.PurchasedPackageID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment has no package reference")
		}
		pkg, err := s.packages.Get(ctx, *payment.PurchasedPackageID)
		if err != nil {
			return nil, err
		}
		ids, err := s.packages.PDFIDsForGrant(ctx, pkg)
		if err != nil {
			return nil, err
		}
		approval.GrantPDFIDs = ids
	}
	return approval, nil
}

// BulkVerify applies one decision to many payments, continuing past
// individual failures.
func (s *PaymentService) BulkVerify(ctx context.Context, adminID string, req BulkVerifyRequest) (*BulkVerifyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk decision payload")
	}

	result := &BulkVerifyResult{Processed: len(req.PaymentIDs)}
	for _, id := range req.PaymentIDs {
		_, err := s.Verify(ctx, adminID, id, VerifyPaymentRequest{Approve: req.Approve, AdminNotes: req.AdminNotes})
		if err != nil {
			s.logger.Warn("bulk verify item failed", zap.String("payment_id", id), zap.Error(err))
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// ActiveQR returns the QR users scan to pay.
func (s *PaymentService) ActiveQR(ctx context.Context) (*models.PaymentQR, error) {
	qr, err := s.repo.ActiveQR(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no payment QR configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment QR")
	}
	return qr, nil
}

// SetQR installs a new QR image, retiring the previous one.
func (s *PaymentService) SetQR(ctx context.Context, instructions, imageName string, image io.Reader) (*models.PaymentQR, error) {
	if image == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "QR image is required")
	}
	qr := &models.PaymentQR{ID: uuid.NewString(), Instructions: instructions, IsActive: true}
	name := fmt.Sprintf("payment_qr/%s%s", qr.ID, safeImageExt(imageName))
	relPath, err := s.storage.SaveStream(name, image)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store QR image")
	}
	qr.ImagePath = relPath

	if err := s.repo.UpsertQR(ctx, qr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save payment QR")
	}
	return qr, nil
}

// ScreenshotPath resolves the stored screenshot for admin review.
func (s *PaymentService) ScreenshotPath(ctx context.Context, paymentID string) (string, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.ScreenshotPath == "" {
		return "", appErrors.Clone(appErrors.ErrNotFound, "payment has no screenshot")
	}
	return s.storage.Path(payment.ScreenshotPath), nil
}
