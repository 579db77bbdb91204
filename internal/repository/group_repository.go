package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kripas1369/pdf-backend/internal/models"
)

// GroupRepository handles study groups and their messages.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new repository instance.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// List returns all groups with member counts, most recently created first.
func (r *GroupRepository) List(ctx context.Context) ([]models.StudyGroup, error) {
	const query = `SELECT g.id, g.name, g.topic_id, g.total_messages, g.created_at,
			COUNT(m.user_id) AS member_count
		FROM study_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		GROUP BY g.id
		ORDER BY g.created_at DESC`
	var groups []models.StudyGroup
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// FindByID returns a group by id.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.StudyGroup, error) {
	const query = `SELECT id, name, topic_id, total_messages, created_at
		FROM study_groups WHERE id = $1`
	var group models.StudyGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// Create persists a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.StudyGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO study_groups (id, name, topic_id, total_messages, created_at)
		VALUES (:id, :name, :topic_id, :total_messages, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// IsMember reports whether the user joined the group.
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one,
		`SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2 LIMIT 1`, groupID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return true, nil
}

// Join adds the user to the group, once.
func (r *GroupRepository) Join(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		groupID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("join group: %w", err)
	}
	return nil
}

// Leave removes the user from the group.
func (r *GroupRepository) Leave(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	return nil
}

// CreateMessage stores a message and bumps the group counter in one
// transaction.
func (r *GroupRepository) CreateMessage(ctx context.Context, msg *models.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin send message: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_messages (id, group_id, sender_id, message, pdf_id, created_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
		msg.ID, msg.GroupID, msg.SenderID, msg.Message, msg.PDFID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE study_groups SET total_messages = total_messages + 1 WHERE id = $1`, msg.GroupID)
	if err != nil {
		return fmt.Errorf("bump message counter: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the latest messages in a group, newest first.
func (r *GroupRepository) ListMessages(ctx context.Context, groupID string, limit int) ([]models.GroupMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, group_id, sender_id, message, pdf_id, created_at, is_deleted
		FROM group_messages
		WHERE group_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC LIMIT $2`
	var messages []models.GroupMessage
	if err := r.db.SelectContext(ctx, &messages, query, groupID, limit); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// FindMessage returns one message by id.
func (r *GroupRepository) FindMessage(ctx context.Context, id string) (*models.GroupMessage, error) {
	const query = `SELECT id, group_id, sender_id, message, pdf_id, created_at, is_deleted
		FROM group_messages WHERE id = $1`
	var msg models.GroupMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SoftDeleteMessage hides a message without removing the row.
func (r *GroupRepository) SoftDeleteMessage(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE group_messages SET is_deleted = TRUE WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
