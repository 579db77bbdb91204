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

// TopicRepository handles persistence for catalog topics.
type TopicRepository struct {
	db *sqlx.DB
}

// NewTopicRepository creates a new repository instance.
func NewTopicRepository(db *sqlx.DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// List returns topics ordered by name. When approvedOnly is set, pending
// student suggestions are excluded.
func (r *TopicRepository) List(ctx context.Context, approvedOnly bool) ([]models.Topic, error) {
	query := `SELECT id, name, uploaded_by, is_approved, created_at FROM topics`
	if approvedOnly {
		query += ` WHERE is_approved = TRUE`
	}
	query += ` ORDER BY name`

	var topics []models.Topic
	if err := r.db.SelectContext(ctx, &topics, query); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// FindByID returns a topic by id.
func (r *TopicRepository) FindByID(ctx context.Context, id string) (*models.Topic, error) {
	const query = `SELECT id, name, uploaded_by, is_approved, created_at FROM topics WHERE id = $1`
	var topic models.Topic
	if err := r.db.GetContext(ctx, &topic, query, id); err != nil {
		return nil, err
	}
	return &topic, nil
}

// ExistsByName checks topic name uniqueness.
func (r *TopicRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM topics WHERE LOWER(name) = LOWER($1) LIMIT 1`, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check topic name: %w", err)
	}
	return true, nil
}

// Create persists a new topic.
func (r *TopicRepository) Create(ctx context.Context, topic *models.Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.NewString()
	}
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO topics (id, name, uploaded_by, is_approved, created_at)
		VALUES (:id, :name, :uploaded_by, :is_approved, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, topic); err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

// UpdateApproval force-sets the approval flag.
func (r *TopicRepository) UpdateApproval(ctx context.Context, id string, approved bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE topics SET is_approved = $2 WHERE id = $1`, id, approved); err != nil {
		return fmt.Errorf("update topic approval: %w", err)
	}
	return nil
}

// Delete removes a topic record.
func (r *TopicRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM topics WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// CountApproved returns the number of approved topics.
func (r *TopicRepository) CountApproved(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM topics WHERE is_approved = TRUE`); err != nil {
		return 0, fmt.Errorf("count topics: %w", err)
	}
	return count, nil
}
