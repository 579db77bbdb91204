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

type topicRepository interface {
	List(ctx context.Context, approvedOnly bool) ([]models.Topic, error)
	FindByID(ctx context.Context, id string) (*models.Topic, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, topic *models.Topic) error
	UpdateApproval(ctx context.Context, id string, approved bool) error
	Delete(ctx context.Context, id string) error
}

// CreateTopicRequest creates a catalog topic. SuggestedBy is set for student
// suggestions, which start unapproved.
type CreateTopicRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	SuggestedBy string `json:"-"`
}

// TopicService manages the top level of the catalog tree.
type TopicService struct {
	repo      topicRepository
	cache     catalogCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTopicService constructs the topic service.
func NewTopicService(repo topicRepository, cache catalogCache, validate *validator.Validate, logger *zap.Logger) *TopicService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopicService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns topics. Admins see pending suggestions too.
func (s *TopicService) List(ctx context.Context, includePending bool) ([]models.Topic, error) {
	topics, err := s.repo.List(ctx, !includePending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list topics")
	}
	return topics, nil
}

// Get returns one topic.
func (s *TopicService) Get(ctx context.Context, id string) (*models.Topic, error) {
	topic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "topic not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load topic")
	}
	return topic, nil
}

// Create adds a topic. Admin-created topics are approved immediately;
// student suggestions wait for review.
func (s *TopicService) Create(ctx context.Context, req CreateTopicRequest) (*models.Topic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic payload")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check topic name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "topic already exists")
	}

	topic := &models.Topic{Name: req.Name, IsApproved: true}
	if req.SuggestedBy != "" {
		topic.UploadedBy = &req.SuggestedBy
		topic.IsApproved = false
	}
	if err := s.repo.Create(ctx, topic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create topic")
	}
	s.invalidateCatalog(ctx)
	return topic, nil
}

// Delete removes a topic.
func (s *TopicService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete topic")
	}
	s.invalidateCatalog(ctx)
	return nil
}

func (s *TopicService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}
