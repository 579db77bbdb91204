package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type pdfRepository interface {
	List(ctx context.Context, filter models.PDFFilter) ([]models.PDFFile, int, error)
	FindByID(ctx context.Context, id string) (*models.PDFFile, error)
	Create(ctx context.Context, pdf *models.PDFFile) error
	Update(ctx context.Context, pdf *models.PDFFile) error
	UpdateApproval(ctx context.Context, id string, approved bool) error
	BulkUpdateApproval(ctx context.Context, ids []string, approved bool) (int, error)
	Delete(ctx context.Context, id string) error
	Years(ctx context.Context, subjectID string, approvedOnly bool) ([]int, error)
	Counts(ctx context.Context) (int, int, error)
	CountPendingByUploader(ctx context.Context, userID string) (int, error)
}

type pdfSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	UpdateApproval(ctx context.Context, id string, approved bool) error
	CountApproved(ctx context.Context) (int, error)
}

type pdfTopicRepository interface {
	UpdateApproval(ctx context.Context, id string, approved bool) error
	CountApproved(ctx context.Context) (int, error)
}

type pdfEntitlements interface {
	Check(ctx context.Context, userID, pdfID string) (*models.AccessDecision, error)
	AccessiblePDFIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	HasBlanketAccess(ctx context.Context, userID string) (bool, error)
}

type pdfStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Path(filename string) string
	Delete(filename string) error
}

type listingCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateCatalog(ctx context.Context) error
}

// UploadPDFRequest carries metadata for a new document; the file itself
// streams in separately.
type UploadPDFRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	Subtitle  *string `json:"subtitle" validate:"omitempty,max=200"`
	Year      int     `json:"year" validate:"required,min=2000,max=2100"`
	SubjectID string  `json:"subject_id" validate:"required,uuid"`
	PDFType   string  `json:"pdf_type" validate:"omitempty,oneof=QUESTION SOLUTION BOTH"`
	IsPremium bool    `json:"is_premium"`
	Price     float64 `json:"price" validate:"min=0"`

	// UploadedBy is set from the token for student uploads and left empty
	// for admin uploads.
	UploadedBy string `json:"-"`
}

// UpdatePDFRequest edits document metadata.
type UpdatePDFRequest struct {
	Title     *string  `json:"title" validate:"omitempty,max=200"`
	Subtitle  *string  `json:"subtitle" validate:"omitempty,max=200"`
	Year      *int     `json:"year" validate:"omitempty,min=2000,max=2100"`
	PDFType   *string  `json:"pdf_type" validate:"omitempty,oneof=QUESTION SOLUTION BOTH"`
	IsPremium *bool    `json:"is_premium"`
	Price     *float64 `json:"price" validate:"omitempty,min=0"`
}

// ListCatalogRequest filters the public catalog listing.
type ListCatalogRequest struct {
	SubjectID string `form:"subject_id" validate:"omitempty,uuid"`
	Year      int    `form:"year"`
	Tab       string `form:"tab" validate:"omitempty,oneof=questions solutions"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// BulkModerationRequest approves or rejects a batch of student uploads.
type BulkModerationRequest struct {
	PDFIDs  []string `json:"pdf_ids" validate:"required,min=1,dive,uuid"`
	Approve bool     `json:"approve"`
}

// PDFService manages catalog documents: listing with per-user lock flags,
// uploads, moderation and the approval cascade for student content.
type PDFService struct {
	repo         pdfRepository
	subjects     pdfSubjectRepository
	topics       pdfTopicRepository
	entitlements pdfEntitlements
	storage      pdfStorage
	cache        listingCache
	cacheTTL     time.Duration
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPDFService constructs the PDF service.
func NewPDFService(repo pdfRepository, subjects pdfSubjectRepository, topics pdfTopicRepository, entitlements pdfEntitlements, storage pdfStorage, cache listingCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *PDFService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PDFService{
		repo:         repo,
		subjects:     subjects,
		topics:       topics,
		entitlements: entitlements,
		storage:      storage,
		cache:        cache,
		cacheTTL:     cacheTTL,
		validator:    validate,
		logger:       logger,
	}
}

// ListCatalog returns approved documents for the app, decorated with lock
// flags for the calling user. The undecorated page is cached; the per-user
// flags are computed on every request.
func (s *PDFService) ListCatalog(ctx context.Context, userID string, req ListCatalogRequest) ([]models.CatalogItem, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	filter := models.PDFFilter{
		SubjectID:    req.SubjectID,
		Year:         req.Year,
		ApprovedOnly: true,
		Page:         page,
		PageSize:     size,
	}
	switch req.Tab {
	case "questions":
		filter.Types = []models.PDFType{models.PDFTypeQuestion, models.PDFTypeBoth}
	case "solutions":
		filter.Types = []models.PDFType{models.PDFTypeSolution, models.PDFTypeBoth}
	}

	type cachedPage struct {
		PDFs  []models.PDFFile `json:"pdfs"`
		Total int              `json:"total"`
	}
	key := fmt.Sprintf("catalog:pdfs:%s:%d:%s:%d:%d", req.SubjectID, req.Year, req.Tab, page, size)

	var pageData cachedPage
	hit := false
	if s.cache != nil {
		var err error
		hit, err = s.cache.Get(ctx, key, &pageData)
		if err != nil {
			s.logger.Debug("catalog cache read failed", zap.Error(err))
		}
	}
	if !hit {
		pdfs, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pdfs")
		}
		pageData = cachedPage{PDFs: pdfs, Total: total}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, pageData, s.cacheTTL); err != nil {
				s.logger.Debug("catalog cache write failed", zap.Error(err))
			}
		}
	}

	items, err := s.decorate(ctx, userID, pageData.PDFs)
	if err != nil {
		return nil, nil, err
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: pageData.Total}
	return items, pagination, nil
}

// decorate attaches per-user lock flags to a page of documents using one
// batch of entitlement lookups.
func (s *PDFService) decorate(ctx context.Context, userID string, pdfs []models.PDFFile) ([]models.CatalogItem, error) {
	blanket, err := s.entitlements.HasBlanketAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	var accessible map[string]struct{}
	if !blanket {
		accessible, err = s.entitlements.AccessiblePDFIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	items := make([]models.CatalogItem, len(pdfs))
	for i, pdf := range pdfs {
		hasAccess := !pdf.IsPremium || blanket
		if !hasAccess {
			_, hasAccess = accessible[pdf.ID]
		}
		items[i] = models.CatalogItem{
			ID:        pdf.ID,
			Title:     pdf.Title,
			Subtitle:  pdf.Subtitle,
			Year:      pdf.Year,
			PDFType:   pdf.PDFType,
			IsPremium: pdf.IsPremium,
			Price:     pdf.EffectivePrice(),
			IsLocked:  pdf.IsPremium && !hasAccess,
			HasAccess: hasAccess,
		}
	}
	return items, nil
}

// Get returns one document's metadata.
func (s *PDFService) Get(ctx context.Context, id string) (*models.PDFFile, error) {
	pdf, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pdf not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pdf")
	}
	return pdf, nil
}

// Years lists the years available under a subject for the year picker.
func (s *PDFService) Years(ctx context.Context, subjectID string) ([]int, error) {
	years, err := s.repo.Years(ctx, subjectID, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list years")
	}
	return years, nil
}

// Upload stores a document. Admin uploads honor the requested type and
// pricing; student uploads are coerced to free question papers pending
// review.
func (s *PDFService) Upload(ctx context.Context, req UploadPDFRequest, filename string, file io.Reader) (*models.PDFFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only .pdf files are accepted")
	}

	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	pdfType := models.PDFType(req.PDFType)
	if pdfType == "" {
		pdfType = models.PDFTypeQuestion
	}

	pdf := &models.PDFFile{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Subtitle:   req.Subtitle,
		Year:       req.Year,
		SubjectID:  req.SubjectID,
		PDFType:    pdfType,
		IsPremium:  req.IsPremium,
		Price:      req.Price,
		IsApproved: true,
	}
	if req.UploadedBy != "" {
		pdf.UploadedBy = &req.UploadedBy
		pdf.IsApproved = false
	}
	pdf.ApplyDerivations()

	storedName := fmt.Sprintf("pdfs/%s.pdf", pdf.ID)
	relPath, err := s.storage.SaveStream(storedName, file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	pdf.FilePath = relPath

	if err := s.repo.Create(ctx, pdf); err != nil {
		if delErr := s.storage.Delete(storedName); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", storedName), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pdf")
	}
	s.invalidateCatalog(ctx)
	return pdf, nil
}

// Update edits metadata and re-runs the pricing derivations.
func (s *PDFService) Update(ctx context.Context, id string, req UpdatePDFRequest) (*models.PDFFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	pdf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		pdf.Title = *req.Title
	}
	if req.Subtitle != nil {
		pdf.Subtitle = req.Subtitle
	}
	if req.Year != nil {
		pdf.Year = *req.Year
	}
	if req.PDFType != nil {
		pdf.PDFType = models.PDFType(*req.PDFType)
	}
	if req.IsPremium != nil {
		pdf.IsPremium = *req.IsPremium
	}
	if req.Price != nil {
		pdf.Price = *req.Price
	}
	pdf.ApplyDerivations()

	if err := s.repo.Update(ctx, pdf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pdf")
	}
	s.invalidateCatalog(ctx)
	return pdf, nil
}

// Delete removes a document and its stored file.
func (s *PDFService) Delete(ctx context.Context, id string) error {
	pdf, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete pdf")
	}
	if pdf.FilePath != "" {
		if err := s.storage.Delete(pdf.FilePath); err != nil {
			s.logger.Warn("failed to remove stored file", zap.String("path", pdf.FilePath), zap.Error(err))
		}
	}
	s.invalidateCatalog(ctx)
	return nil
}

// Approve marks a document approved. For student uploads the decision
// cascades upward: a student paper cannot go live while its subject or topic
// is still pending. Admin-created documents never cascade.
func (s *PDFService) Approve(ctx context.Context, id string) error {
	pdf, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateApproval(ctx, id, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve pdf")
	}
	if pdf.UploadedBy != nil {
		s.cascadeApproval(ctx, pdf.SubjectID, true)
	}
	s.invalidateCatalog(ctx)
	return nil
}

// Reject marks a document unapproved. For student uploads the rejection
// cascades the same way an approval does, forcing the subject and topic
// unapproved too.
func (s *PDFService) Reject(ctx context.Context, id string) error {
	pdf, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateApproval(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject pdf")
	}
	if pdf.UploadedBy != nil {
		s.cascadeApproval(ctx, pdf.SubjectID, false)
	}
	s.invalidateCatalog(ctx)
	return nil
}

// cascadeApproval forces the moderation decision onto the subject and its
// topic. One-way only: topics and subjects never push their state down to
// PDFs. Rows deleted in the meantime are skipped silently. A topic shared by
// several subjects takes whichever decision ran last; flagged for product
// review.
func (s *PDFService) cascadeApproval(ctx context.Context, subjectID string, approved bool) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("approval cascade failed to load subject", zap.String("subject_id", subjectID), zap.Error(err))
		}
		return
	}
	if subject.IsApproved != approved {
		if err := s.subjects.UpdateApproval(ctx, subject.ID, approved); err != nil {
			s.logger.Warn("approval cascade failed on subject", zap.String("subject_id", subject.ID), zap.Error(err))
			return
		}
	}
	if err := s.topics.UpdateApproval(ctx, subject.TopicID, approved); err != nil {
		s.logger.Warn("approval cascade failed on topic", zap.String("topic_id", subject.TopicID), zap.Error(err))
	}
}

// BulkModerate applies one decision to a batch of documents and reports how
// many rows actually changed. The decision cascades per student-uploaded
// document.
func (s *PDFService) BulkModerate(ctx context.Context, req BulkModerationRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation payload")
	}

	// Load before flipping so the cascade can find each subject.
	for _, id := range req.PDFIDs {
		pdf, err := s.repo.FindByID(ctx, id)
		if err != nil || pdf.UploadedBy == nil {
			continue
		}
		s.cascadeApproval(ctx, pdf.SubjectID, req.Approve)
	}

	affected, err := s.repo.BulkUpdateApproval(ctx, req.PDFIDs, req.Approve)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to moderate pdfs")
	}
	s.invalidateCatalog(ctx)
	return affected, nil
}

// PendingUploads lists student uploads awaiting review.
func (s *PDFService) PendingUploads(ctx context.Context, page, size int) ([]models.PDFFile, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	student := true
	filter := models.PDFFilter{
		StudentUpload: &student,
		PendingOnly:   true,
		Page:          page,
		PageSize:      size,
	}
	pdfs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending uploads")
	}
	return pdfs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MyUploads lists the caller's own submissions, pending and approved alike.
func (s *PDFService) MyUploads(ctx context.Context, userID string, page, size int) ([]models.PDFFile, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	filter := models.PDFFilter{
		UploadedBy: userID,
		Page:       page,
		PageSize:   size,
	}
	pdfs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uploads")
	}
	return pdfs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Download authorizes and resolves the stored file for streaming. The
// returned path is absolute.
func (s *PDFService) Download(ctx context.Context, userID, pdfID string) (string, *models.PDFFile, error) {
	pdf, err := s.Get(ctx, pdfID)
	if err != nil {
		return "", nil, err
	}
	decision, err := s.entitlements.Check(ctx, userID, pdfID)
	if err != nil {
		return "", nil, err
	}
	if !decision.HasAccess {
		return "", nil, appErrors.Clone(appErrors.ErrPaymentRequired, "purchase or subscription required")
	}
	if pdf.FilePath == "" {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "file missing for pdf")
	}
	return s.storage.Path(pdf.FilePath), pdf, nil
}

// Stats returns public catalog counts, with the caller's own pending-upload
// count folded in when authenticated.
func (s *PDFService) Stats(ctx context.Context, userID string) (*models.CatalogStats, error) {
	topics, err := s.topics.CountApproved(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count topics")
	}
	subjects, err := s.subjects.CountApproved(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subjects")
	}
	total, pending, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pdfs")
	}

	stats := &models.CatalogStats{
		TotalTopics:        topics,
		TotalSubjects:      subjects,
		TotalPDFs:          total,
		PendingStudentPDFs: pending,
	}
	if userID != "" {
		mine, err := s.repo.CountPendingByUploader(ctx, userID)
		if err != nil {
			s.logger.Warn("failed to count caller uploads", zap.Error(err))
		} else {
			stats.MyPendingUploadCount = mine
		}
	}
	return stats, nil
}

func (s *PDFService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
