package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kripas1369/pdf-backend/internal/models"
)

const reportColumns = `id, format, status, requested_by, file_path, row_count,
	error_message, created_at, started_at, completed_at`

// ReportRepository tracks asynchronous ledger export jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new repository instance.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create persists a queued job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (id, format, status, requested_by, file_path,
			row_count, error_message, created_at, started_at, completed_at)
		VALUES (:id, :format, :status, :requested_by, :file_path,
			:row_count, :error_message, :created_at, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job by id.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := `SELECT ` + reportColumns + ` FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRunning stamps the start of execution.
func (r *ReportRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = $2, started_at = $3 WHERE id = $1`,
		id, models.ReportRunning, startedAt)
	if err != nil {
		return fmt.Errorf("mark report running: %w", err)
	}
	return nil
}

// MarkCompleted stores the output path and row count.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id, filePath string, rowCount int, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = $2, file_path = $3, row_count = $4, completed_at = $5 WHERE id = $1`,
		id, models.ReportCompleted, filePath, rowCount, completedAt)
	if err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure message.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1`,
		id, models.ReportFailed, message, completedAt)
	if err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}

// ListByRequester returns a user's jobs, newest first.
func (r *ReportRepository) ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + reportColumns + ` FROM report_jobs
		WHERE requested_by = $1 ORDER BY created_at DESC LIMIT $2`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
