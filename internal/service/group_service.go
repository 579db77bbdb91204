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

type groupRepository interface {
	List(ctx context.Context) ([]models.StudyGroup, error)
	FindByID(ctx context.Context, id string) (*models.StudyGroup, error)
	Create(ctx context.Context, group *models.StudyGroup) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	Join(ctx context.Context, groupID, userID string) error
	Leave(ctx context.Context, groupID, userID string) error
	CreateMessage(ctx context.Context, msg *models.GroupMessage) error
	ListMessages(ctx context.Context, groupID string, limit int) ([]models.GroupMessage, error)
	FindMessage(ctx context.Context, id string) (*models.GroupMessage, error)
	SoftDeleteMessage(ctx context.Context, messageID string) error
}

type groupQuota interface {
	ConsumeMessage(ctx context.Context, userID string) error
}

// CreateGroupRequest creates a study group, optionally pinned to a topic.
type CreateGroupRequest struct {
	Name    string  `json:"name" validate:"required,max=100"`
	TopicID *string `json:"topic_id" validate:"omitempty,uuid"`
}

// GroupService runs topic study groups and their chat. Sending costs one
// unit of the sender's daily quota.
type GroupService struct {
	repo      groupRepository
	quota     groupQuota
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs the group service.
func NewGroupService(repo groupRepository, quota groupQuota, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{repo: repo, quota: quota, validator: validate, logger: logger}
}

// List returns all groups.
func (s *GroupService) List(ctx context.Context) ([]models.StudyGroup, error) {
	groups, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// Get returns one group.
func (s *GroupService) Get(ctx context.Context, id string) (*models.StudyGroup, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return group, nil
}

// Create adds a group.
func (s *GroupService) Create(ctx context.Context, req CreateGroupRequest) (*models.StudyGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	group := &models.StudyGroup{Name: req.Name, TopicID: req.TopicID}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	return group, nil
}

// Join adds the caller to a group.
func (s *GroupService) Join(ctx context.Context, groupID, userID string) error {
	if _, err := s.Get(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.Join(ctx, groupID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join group")
	}
	return nil
}

// Leave removes the caller from a group.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	if err := s.repo.Leave(ctx, groupID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave group")
	}
	return nil
}

// SendMessage posts into a group. The sender must be a member with quota
// left for today.
func (s *GroupService) SendMessage(ctx context.Context, groupID, userID string, req models.SendMessageRequest) (*models.GroupMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if _, err := s.Get(ctx, groupID); err != nil {
		return nil, err
	}
	member, err := s.repo.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "join the group before posting")
	}

	if err := s.quota.ConsumeMessage(ctx, userID); err != nil {
		return nil, err
	}

	msg := &models.GroupMessage{
		GroupID:  groupID,
		SenderID: userID,
		Message:  req.Message,
		PDFID:    req.PDFID,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return msg, nil
}

// Messages returns recent chat history for members.
func (s *GroupService) Messages(ctx context.Context, groupID, userID string, limit int) ([]models.GroupMessage, error) {
	member, err := s.repo.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "join the group to read messages")
	}
	messages, err := s.repo.ListMessages(ctx, groupID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

// DeleteMessage hides a message. Admins may delete anything; members only
// their own.
func (s *GroupService) DeleteMessage(ctx context.Context, groupID, messageID, callerID string, asAdmin bool) error {
	msg, err := s.repo.FindMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if msg.GroupID != groupID || msg.IsDeleted {
		return appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if !asAdmin && msg.SenderID != callerID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete another user's message")
	}
	if err := s.repo.SoftDeleteMessage(ctx, messageID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	return nil
}
