package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type packageRepository interface {
	List(ctx context.Context, filter models.PackageFilter) ([]models.PDFPackage, error)
	FindByID(ctx context.Context, id string) (*models.PDFPackage, error)
	Create(ctx context.Context, pkg *models.PDFPackage) error
	Update(ctx context.Context, pkg *models.PDFPackage) error
	Delete(ctx context.Context, id string) error
	ReplacePDFs(ctx context.Context, packageID string, pdfIDs []string) error
	PDFIDs(ctx context.Context, packageID string) ([]string, error)
}

type packagePDFRepository interface {
	IDsByScope(ctx context.Context, scope models.PackageScope, subjectID, topicID *string, year *int, content models.PackageContent) ([]string, error)
	FilterApprovedIDs(ctx context.Context, ids []string) ([]string, error)
}

// CreatePackageRequest defines a bundle. The scope decides which reference
// field must be set.
type CreatePackageRequest struct {
	Name      string  `json:"name" validate:"required,max=150"`
	Scope     string  `json:"package_type" validate:"required,oneof=SUBJECT TOPIC YEAR ALL_YEARS"`
	SubjectID *string `json:"subject_id" validate:"omitempty,uuid"`
	TopicID   *string `json:"topic_id" validate:"omitempty,uuid"`
	Year      *int    `json:"year" validate:"omitempty,min=2000,max=2100"`
	Content   string  `json:"content_type" validate:"omitempty,oneof=ALL QUESTIONS SOLUTIONS"`
	Price     float64 `json:"price" validate:"required,gt=0"`
}

// UpdatePackageRequest edits an existing bundle.
type UpdatePackageRequest struct {
	Name     *string  `json:"name" validate:"omitempty,max=150"`
	Price    *float64 `json:"price" validate:"omitempty,gt=0"`
	IsActive *bool    `json:"is_active"`
	Content  *string  `json:"content_type" validate:"omitempty,oneof=ALL QUESTIONS SOLUTIONS"`
}

// PackageService manages admin-defined PDF bundles and their stored
// membership. Membership is a cache of the scope query: it is rebuilt
// wholesale on save, recomputed live when empty, and always narrowed to
// approved documents when a purchase turns into grants.
type PackageService struct {
	repo      packageRepository
	pdfs      packagePDFRepository
	cache     catalogCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPackageService constructs the package service.
func NewPackageService(repo packageRepository, pdfs packagePDFRepository, cache catalogCache, validate *validator.Validate, logger *zap.Logger) *PackageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackageService{repo: repo, pdfs: pdfs, cache: cache, validator: validate, logger: logger}
}

// List returns packages for the paywall (active only) or the admin screen.
func (s *PackageService) List(ctx context.Context, filter models.PackageFilter) ([]models.PDFPackage, error) {
	packages, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list packages")
	}
	return packages, nil
}

// Get returns one package.
func (s *PackageService) Get(ctx context.Context, id string) (*models.PDFPackage, error) {
	pkg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}
	return pkg, nil
}

// Create defines a package and materializes its membership.
func (s *PackageService) Create(ctx context.Context, req CreatePackageRequest) (*models.PDFPackage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid package payload")
	}

	scope := models.PackageScope(req.Scope)
	if err := validateScopeRefs(scope, req.SubjectID, req.TopicID, req.Year); err != nil {
		return nil, err
	}

	content := models.PackageContent(req.Content)
	if content == "" {
		content = models.ContentAll
	}

	pkg := &models.PDFPackage{
		Name:      req.Name,
		Scope:     scope,
		SubjectID: req.SubjectID,
		TopicID:   req.TopicID,
		Year:      req.Year,
		Content:   content,
		Price:     req.Price,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	pkg.ApplyDerivations()

	if err := s.repo.Create(ctx, pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create package")
	}
	if err := s.RefreshMembership(ctx, pkg.ID); err != nil {
		s.logger.Warn("failed to materialize package membership", zap.String("package_id", pkg.ID), zap.Error(err))
	}
	s.invalidateCatalog(ctx)
	return pkg, nil
}

func validateScopeRefs(scope models.PackageScope, subjectID, topicID *string, year *int) error {
	switch scope {
	case models.ScopeSubject:
		if subjectID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "subject_id is required for subject packages")
		}
	case models.ScopeTopic:
		if topicID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "topic_id is required for topic packages")
		}
	case models.ScopeYear:
		if year == nil {
			return appErrors.Clone(appErrors.ErrValidation, "year is required for year packages")
		}
	}
	return nil
}

// Update edits a package and rebuilds its membership.
func (s *PackageService) Update(ctx context.Context, id string, req UpdatePackageRequest) (*models.PDFPackage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid package payload")
	}

	pkg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		pkg.Name = *req.Name
	}
	if req.Price != nil {
		pkg.Price = *req.Price
	}
	if req.IsActive != nil {
		pkg.IsActive = *req.IsActive
	}
	if req.Content != nil {
		pkg.Content = models.PackageContent(*req.Content)
	}
	pkg.ApplyDerivations()

	if err := s.repo.Update(ctx, pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update package")
	}
	if err := s.RefreshMembership(ctx, pkg.ID); err != nil {
		s.logger.Warn("failed to rebuild package membership", zap.String("package_id", pkg.ID), zap.Error(err))
	}
	s.invalidateCatalog(ctx)
	return pkg, nil
}

// Delete removes a package and its membership rows. Grants already issued
// from past purchases stay with their owners.
func (s *PackageService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete package")
	}
	s.invalidateCatalog(ctx)
	return nil
}

// RefreshMembership recomputes the scope query and replaces the stored rows.
func (s *PackageService) RefreshMembership(ctx context.Context, id string) error {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ids, err := s.pdfs.IDsByScope(ctx, pkg.Scope, pkg.SubjectID, pkg.TopicID, pkg.Year, pkg.Content)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand package scope")
	}
	if err := s.repo.ReplacePDFs(ctx, id, ids); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store package membership")
	}
	return nil
}

// PDFIDsForGrant expands a package into the PDF ids a purchase should grant:
// the stored membership when present, the live scope query otherwise, in
// both cases narrowed to documents that are approved right now.
func (s *PackageService) PDFIDsForGrant(ctx context.Context, pkg *models.PDFPackage) ([]string, error) {
	stored, err := s.repo.PDFIDs(ctx, pkg.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package membership")
	}
	if len(stored) == 0 {
		live, err := s.pdfs.IDsByScope(ctx, pkg.Scope, pkg.SubjectID, pkg.TopicID, pkg.Year, pkg.Content)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand package scope")
		}
		return live, nil
	}
	approved, err := s.pdfs.FilterApprovedIDs(ctx, stored)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to filter package membership")
	}
	return approved, nil
}

func (s *PackageService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
