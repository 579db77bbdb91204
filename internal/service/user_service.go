package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, name string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	CountReferred(ctx context.Context, userID string) (int, error)
}

type userAccessRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.PDFAccess, error)
}

// ReferralInfo summarises a user's referral standing.
type ReferralInfo struct {
	Code          string `json:"referral_code"`
	ReferredCount int    `json:"referred_count"`
}

// UserService handles profiles and the admin user directory.
type UserService struct {
	repo      userRepository
	access    userAccessRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userRepository, access userAccessRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, access: access, validator: validate, logger: logger}
}

// Profile returns the caller's account.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateProfile edits the caller's profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if _, err := s.Profile(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, userID, req.Name); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.Profile(ctx, userID)
}

// Referrals reports the caller's code and how many signups used it.
func (s *UserService) Referrals(ctx context.Context, userID string) (*ReferralInfo, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountReferred(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count referrals")
	}
	return &ReferralInfo{Code: user.ReferralCode, ReferredCount: count}, nil
}

// Purchases lists the caller's materialized grants.
func (s *UserService) Purchases(ctx context.Context, userID string) ([]models.PDFAccess, error) {
	grants, err := s.access.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list purchases")
	}
	return grants, nil
}

// List returns the admin user directory.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
