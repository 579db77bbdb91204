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

const packageColumns = `id, name, scope, topic_id, subject_id, year, content,
	price, is_active, is_solution_package, created_at`

// PackageRepository handles persistence for PDF packages and their stored
// membership rows.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository creates a new repository instance.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// List returns packages matching the filter with a per-package count of
// stored membership rows.
func (r *PackageRepository) List(ctx context.Context, filter models.PackageFilter) ([]models.PDFPackage, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Scope != "" {
		add("pk.scope = $%d", filter.Scope)
	}
	if filter.Content != "" {
		add("pk.content = $%d", filter.Content)
	}
	if filter.SubjectID != "" {
		add("pk.subject_id = $%d", filter.SubjectID)
	}
	if filter.TopicID != "" {
		add("pk.topic_id = $%d", filter.TopicID)
	}
	if filter.Year != 0 {
		add("pk.year = $%d", filter.Year)
	}
	if filter.ActiveOnly {
		conds = append(conds, "pk.is_active = TRUE")
	}

	query := `SELECT pk.id, pk.name, pk.scope, pk.topic_id, pk.subject_id, pk.year,
			pk.content, pk.price, pk.is_active, pk.is_solution_package, pk.created_at,
			COUNT(pp.pdf_id) AS pdf_count
		FROM pdf_packages pk
		LEFT JOIN package_pdfs pp ON pp.package_id = pk.id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` GROUP BY pk.id ORDER BY pk.created_at DESC`

	var packages []models.PDFPackage
	if err := r.db.SelectContext(ctx, &packages, query, args...); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}

// FindByID returns a package by id.
func (r *PackageRepository) FindByID(ctx context.Context, id string) (*models.PDFPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM pdf_packages WHERE id = $1`
	var pkg models.PDFPackage
	if err := r.db.GetContext(ctx, &pkg, query, id); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Create persists a new package.
func (r *PackageRepository) Create(ctx context.Context, pkg *models.PDFPackage) error {
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pdf_packages (id, name, scope, topic_id, subject_id, year,
			content, price, is_active, is_solution_package, created_at)
		VALUES (:id, :name, :scope, :topic_id, :subject_id, :year,
			:content, :price, :is_active, :is_solution_package, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	return nil
}

// Update persists edits to an existing package.
func (r *PackageRepository) Update(ctx context.Context, pkg *models.PDFPackage) error {
	const query = `UPDATE pdf_packages SET name = :name, scope = :scope, topic_id = :topic_id,
			subject_id = :subject_id, year = :year, content = :content, price = :price,
			is_active = :is_active, is_solution_package = :is_solution_package
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	return nil
}

// Delete removes a package and its membership rows.
func (r *PackageRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete package: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM package_pdfs WHERE package_id = $1`, id); err != nil {
		return fmt.Errorf("delete package membership: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pdf_packages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	return tx.Commit()
}

// ReplacePDFs swaps a package's stored membership for the given set in one
// transaction.
func (r *PackageRepository) ReplacePDFs(ctx context.Context, packageID string, pdfIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace membership: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM package_pdfs WHERE package_id = $1`, packageID); err != nil {
		return fmt.Errorf("clear package membership: %w", err)
	}
	for _, pdfID := range pdfIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO package_pdfs (package_id, pdf_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			packageID, pdfID)
		if err != nil {
			return fmt.Errorf("insert package membership: %w", err)
		}
	}
	return tx.Commit()
}

// PDFIDs returns the stored membership of a package. An empty result means
// the membership was never materialized and callers should fall back to the
// live scope query.
func (r *PackageRepository) PDFIDs(ctx context.Context, packageID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT pdf_id FROM package_pdfs WHERE package_id = $1`, packageID)
	if err != nil {
		return nil, fmt.Errorf("list package membership: %w", err)
	}
	return ids, nil
}
