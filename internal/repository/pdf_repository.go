package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kripas1369/pdf-backend/internal/models"
)

const pdfColumns = `id, title, subtitle, year, subject_id, file_path, pdf_type,
	is_solution, is_premium, price, uploaded_by, is_approved, created_at`

// PDFRepository handles persistence for catalog PDFs.
type PDFRepository struct {
	db *sqlx.DB
}

// NewPDFRepository creates a new repository instance.
func NewPDFRepository(db *sqlx.DB) *PDFRepository {
	return &PDFRepository{db: db}
}

// List returns PDFs matching the filter, newest first, with a total count for
// pagination.
func (r *PDFRepository) List(ctx context.Context, filter models.PDFFilter) ([]models.PDFFile, int, error) {
	where, args := buildPDFWhere(filter)

	countQuery := `SELECT COUNT(*) FROM pdf_files` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pdfs: %w", err)
	}

	query := `SELECT ` + pdfColumns + ` FROM pdf_files` + where + ` ORDER BY year DESC, created_at DESC`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	var pdfs []models.PDFFile
	if err := r.db.SelectContext(ctx, &pdfs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pdfs: %w", err)
	}
	return pdfs, total, nil
}

func buildPDFWhere(filter models.PDFFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.Year != 0 {
		add("year = $%d", filter.Year)
	}
	if filter.UploadedBy != "" {
		add("uploaded_by = $%d", filter.UploadedBy)
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "pdf_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ApprovedOnly {
		conds = append(conds, "is_approved = TRUE")
	}
	if filter.PendingOnly {
		conds = append(conds, "is_approved = FALSE")
	}
	if filter.StudentUpload != nil {
		if *filter.StudentUpload {
			conds = append(conds, "uploaded_by IS NOT NULL")
		} else {
			conds = append(conds, "uploaded_by IS NULL")
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindByID returns a PDF by id.
func (r *PDFRepository) FindByID(ctx context.Context, id string) (*models.PDFFile, error) {
	query := `SELECT ` + pdfColumns + ` FROM pdf_files WHERE id = $1`
	var pdf models.PDFFile
	if err := r.db.GetContext(ctx, &pdf, query, id); err != nil {
		return nil, err
	}
	return &pdf, nil
}

// FindDetailByID returns a PDF joined with its subject's topic. The topic id
// comes back nil when the subject row no longer exists.
func (r *PDFRepository) FindDetailByID(ctx context.Context, id string) (*models.PDFDetail, error) {
	const query = `SELECT p.id, p.title, p.subtitle, p.year, p.subject_id, p.file_path,
			p.pdf_type, p.is_solution, p.is_premium, p.price, p.uploaded_by,
			p.is_approved, p.created_at, s.topic_id
		FROM pdf_files p
		LEFT JOIN subjects s ON s.id = p.subject_id
		WHERE p.id = $1`
	var detail models.PDFDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new PDF.
func (r *PDFRepository) Create(ctx context.Context, pdf *models.PDFFile) error {
	if pdf.ID == "" {
		pdf.ID = uuid.NewString()
	}
	if pdf.CreatedAt.IsZero() {
		pdf.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pdf_files (id, title, subtitle, year, subject_id, file_path,
			pdf_type, is_solution, is_premium, price, uploaded_by, is_approved, created_at)
		VALUES (:id, :title, :subtitle, :year, :subject_id, :file_path,
			:pdf_type, :is_solution, :is_premium, :price, :uploaded_by, :is_approved, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pdf); err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	return nil
}

// Update persists edits to an existing PDF.
func (r *PDFRepository) Update(ctx context.Context, pdf *models.PDFFile) error {
	const query = `UPDATE pdf_files SET title = :title, subtitle = :subtitle, year = :year,
			subject_id = :subject_id, file_path = :file_path, pdf_type = :pdf_type,
			is_solution = :is_solution, is_premium = :is_premium, price = :price,
			is_approved = :is_approved
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, pdf); err != nil {
		return fmt.Errorf("update pdf: %w", err)
	}
	return nil
}

// UpdateApproval force-sets the approval flag on one PDF.
func (r *PDFRepository) UpdateApproval(ctx context.Context, id string, approved bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE pdf_files SET is_approved = $2 WHERE id = $1`, id, approved); err != nil {
		return fmt.Errorf("update pdf approval: %w", err)
	}
	return nil
}

// BulkUpdateApproval sets the approval flag on many PDFs at once and reports
// how many rows changed. Unknown ids are skipped silently.
func (r *PDFRepository) BulkUpdateApproval(ctx context.Context, ids []string, approved bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE pdf_files SET is_approved = ? WHERE id IN (?)`, approved, ids)
	if err != nil {
		return 0, fmt.Errorf("build bulk approval query: %w", err)
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update pdf approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update pdf approval: %w", err)
	}
	return int(affected), nil
}

// Delete removes a PDF record.
func (r *PDFRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pdf_files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete pdf: %w", err)
	}
	return nil
}

// Years returns the distinct years available under a subject, newest first.
func (r *PDFRepository) Years(ctx context.Context, subjectID string, approvedOnly bool) ([]int, error) {
	query := `SELECT DISTINCT year FROM pdf_files WHERE subject_id = $1`
	if approvedOnly {
		query += ` AND is_approved = TRUE`
	}
	query += ` ORDER BY year DESC`

	var years []int
	if err := r.db.SelectContext(ctx, &years, query, subjectID); err != nil {
		return nil, fmt.Errorf("list pdf years: %w", err)
	}
	return years, nil
}

// IDsByScope expands a package scope into the matching approved PDF ids. The
// content filter narrows by pdf type; BOTH documents satisfy either side.
func (r *PDFRepository) IDsByScope(ctx context.Context, scope models.PackageScope, subjectID, topicID *string, year *int, content models.PackageContent) ([]string, error) {
	var conds []string
	var args []interface{}

	conds = append(conds, "p.is_approved = TRUE")

	switch scope {
	case models.ScopeSubject:
		if subjectID == nil {
			return nil, nil
		}
		args = append(args, *subjectID)
		conds = append(conds, fmt.Sprintf("p.subject_id = $%d", len(args)))
	case models.ScopeTopic:
		if topicID == nil {
			return nil, nil
		}
		args = append(args, *topicID)
		conds = append(conds, fmt.Sprintf("s.topic_id = $%d", len(args)))
	case models.ScopeYear:
		if year == nil {
			return nil, nil
		}
		args = append(args, *year)
		conds = append(conds, fmt.Sprintf("p.year = $%d", len(args)))
	case models.ScopeAllYears:
		// No extra condition: every approved PDF matches.
	default:
		return nil, fmt.Errorf("unknown package scope %q", scope)
	}

	switch content {
	case models.ContentQuestions:
		args = append(args, models.PDFTypeQuestion, models.PDFTypeBoth)
		conds = append(conds, fmt.Sprintf("p.pdf_type IN ($%d, $%d)", len(args)-1, len(args)))
	case models.ContentSolutions:
		args = append(args, models.PDFTypeSolution, models.PDFTypeBoth)
		conds = append(conds, fmt.Sprintf("p.pdf_type IN ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT p.id FROM pdf_files p
		LEFT JOIN subjects s ON s.id = p.subject_id
		WHERE ` + strings.Join(conds, " AND ")

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("expand package scope: %w", err)
	}
	return ids, nil
}

// FilterApprovedIDs narrows a set of PDF ids to the ones currently approved.
func (r *PDFRepository) FilterApprovedIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM pdf_files WHERE is_approved = TRUE AND id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build approved filter query: %w", err)
	}
	var approved []string
	if err := r.db.SelectContext(ctx, &approved, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("filter approved pdfs: %w", err)
	}
	return approved, nil
}

// Counts returns aggregate catalog counts for the stats endpoint.
func (r *PDFRepository) Counts(ctx context.Context) (int, int, error) {
	const query = `SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE uploaded_by IS NOT NULL AND is_approved = FALSE) AS pending
		FROM pdf_files`
	var row struct {
		Total   int `db:"total"`
		Pending int `db:"pending"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, fmt.Errorf("count pdfs: %w", err)
	}
	return row.Total, row.Pending, nil
}

// CountPendingByUploader returns how many of a student's uploads still await
// review.
func (r *PDFRepository) CountPendingByUploader(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM pdf_files WHERE uploaded_by = $1 AND is_approved = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("count pending uploads: %w", err)
	}
	return count, nil
}
