package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type entitlementPDFRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.PDFDetail, error)
	IDsByScope(ctx context.Context, scope models.PackageScope, subjectID, topicID *string, year *int, content models.PackageContent) ([]string, error)
}

type entitlementAccessRepository interface {
	Exists(ctx context.Context, userID, pdfID string) (bool, error)
	Upsert(ctx context.Context, access *models.PDFAccess) error
	ListPDFIDsByUser(ctx context.Context, userID string) ([]string, error)
	ListApprovedPackageGrantsByUser(ctx context.Context, userID string) ([]models.PackageGrant, error)
}

type entitlementSubscriptionRepository interface {
	FindByUser(ctx context.Context, userID string) (*models.Subscription, error)
}

// EntitlementService decides whether a user may open a PDF. Checks run from
// cheapest to most expensive: free documents, then the subscription row, then
// a direct grant, then package coverage. A package hit is memoized as a
// direct grant so the next check short-circuits.
type EntitlementService struct {
	pdfs    entitlementPDFRepository
	access  entitlementAccessRepository
	subs    entitlementSubscriptionRepository
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewEntitlementService constructs the resolver.
func NewEntitlementService(pdfs entitlementPDFRepository, access entitlementAccessRepository, subs entitlementSubscriptionRepository, metrics *MetricsService, logger *zap.Logger) *EntitlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitlementService{pdfs: pdfs, access: access, subs: subs, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Check resolves access for one (user, pdf) pair. userID is empty for
// anonymous callers, who only see free documents.
func (s *EntitlementService) Check(ctx context.Context, userID, pdfID string) (*models.AccessDecision, error) {
	pdf, err := s.pdfs.FindDetailByID(ctx, pdfID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pdf not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pdf")
	}

	decision, err := s.resolve(ctx, userID, pdf)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		outcome := decision.Reason
		if !decision.HasAccess {
			outcome = "denied"
		}
		s.metrics.RecordAccessCheck(outcome)
	}
	return decision, nil
}

func (s *EntitlementService) resolve(ctx context.Context, userID string, pdf *models.PDFDetail) (*models.AccessDecision, error) {
	if !pdf.IsPremium {
		return &models.AccessDecision{HasAccess: true, Reason: models.ReasonFreePDF}, nil
	}

	denied := &models.AccessDecision{IsPremium: true, Price: pdf.EffectivePrice()}
	if userID == "" {
		return denied, nil
	}

	sub, err := s.subs.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	if err == nil && sub.Covers(s.now()) {
		return &models.AccessDecision{HasAccess: true, Reason: models.ReasonSubscription}, nil
	}

	granted, err := s.access.Exists(ctx, userID, pdf.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grants")
	}
	if granted {
		return &models.AccessDecision{HasAccess: true, Reason: models.ReasonPurchased}, nil
	}

	covered, err := s.coveredByPackage(ctx, userID, pdf)
	if err != nil {
		return nil, err
	}
	if covered {
		// Memoize so the next check hits the direct-grant path. Failure here
		// is logged, not surfaced: the user still has access.
		if err := s.access.Upsert(ctx, &models.PDFAccess{UserID: userID, PDFID: pdf.ID}); err != nil {
			s.logger.Warn("failed to memoize package grant",
				zap.String("user_id", userID), zap.String("pdf_id", pdf.ID), zap.Error(err))
		}
		return &models.AccessDecision{HasAccess: true, Reason: models.ReasonPackage}, nil
	}

	return denied, nil
}

// coveredByPackage reports whether any of the user's approved package
// purchases spans this PDF. Unapproved PDFs are never covered; a grant
// pointing at a deleted subject or topic simply fails to match.
func (s *EntitlementService) coveredByPackage(ctx context.Context, userID string, pdf *models.PDFDetail) (bool, error) {
	if !pdf.IsApproved {
		return false, nil
	}
	grants, err := s.access.ListApprovedPackageGrantsByUser(ctx, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package grants")
	}
	for _, grant := range grants {
		if grantCovers(grant, pdf) {
			return true, nil
		}
	}
	return false, nil
}

func grantCovers(grant models.PackageGrant, pdf *models.PDFDetail) bool {
	switch grant.Scope {
	case models.ScopeSubject:
		if grant.SubjectID == nil || pdf.SubjectID != *grant.SubjectID {
			return false
		}
	case models.ScopeTopic:
		if grant.TopicID == nil || pdf.TopicID == nil || *pdf.TopicID != *grant.TopicID {
			return false
		}
	case models.ScopeYear:
		if grant.Year == nil || pdf.Year != *grant.Year {
			return false
		}
	case models.ScopeAllYears:
		// Spans everything.
	default:
		return false
	}
	return contentMatches(grant.Content, pdf.PDFType)
}

func contentMatches(content models.PackageContent, pdfType models.PDFType) bool {
	switch content {
	case models.ContentQuestions:
		return pdfType == models.PDFTypeQuestion || pdfType == models.PDFTypeBoth
	case models.ContentSolutions:
		return pdfType == models.PDFTypeSolution || pdfType == models.PDFTypeBoth
	default:
		return true
	}
}

// AccessiblePDFIDs returns the set of premium PDF ids the user can open
// without a blanket subscription: direct grants plus every PDF the user's
// package purchases expand to. Used to decorate catalog listings in one
// round trip instead of per-row checks.
func (s *EntitlementService) AccessiblePDFIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	if userID == "" {
		return ids, nil
	}

	direct, err := s.access.ListPDFIDsByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grants")
	}
	for _, id := range direct {
		ids[id] = struct{}{}
	}

	grants, err := s.access.ListApprovedPackageGrantsByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package grants")
	}
	for _, grant := range grants {
		expanded, err := s.pdfs.IDsByScope(ctx, grant.Scope, grant.SubjectID, grant.TopicID, grant.Year, grant.Content)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand package grant")
		}
		for _, id := range expanded {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// HasBlanketAccess reports whether the user's subscription covers every
// premium PDF right now.
func (s *EntitlementService) HasBlanketAccess(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	sub, err := s.subs.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscription")
	}
	return sub.Covers(s.now()), nil
}
