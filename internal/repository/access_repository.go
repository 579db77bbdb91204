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

// AccessRepository handles materialized (user, pdf) access grants and the
// flattened package grants the entitlement resolver reads.
type AccessRepository struct {
	db *sqlx.DB
}

// NewAccessRepository creates a new repository instance.
func NewAccessRepository(db *sqlx.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// Exists reports whether the user holds a grant for the PDF.
func (r *AccessRepository) Exists(ctx context.Context, userID, pdfID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one,
		`SELECT 1 FROM pdf_access WHERE user_id = $1 AND pdf_id = $2 LIMIT 1`, userID, pdfID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pdf access: %w", err)
	}
	return true, nil
}

// Upsert grants access, keeping the existing row when one is already there.
// The (user_id, pdf_id) pair is unique so re-approval is a no-op.
func (r *AccessRepository) Upsert(ctx context.Context, access *models.PDFAccess) error {
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	if access.GrantedAt.IsZero() {
		access.GrantedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pdf_access (id, user_id, pdf_id, payment_id, granted_at)
		VALUES (:id, :user_id, :pdf_id, :payment_id, :granted_at)
		ON CONFLICT (user_id, pdf_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, access); err != nil {
		return fmt.Errorf("grant pdf access: %w", err)
	}
	return nil
}

// ListPDFIDsByUser returns every PDF id the user holds a direct grant for.
func (r *AccessRepository) ListPDFIDsByUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT pdf_id FROM pdf_access WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pdf access: %w", err)
	}
	return ids, nil
}

// ListApprovedPackageGrantsByUser returns the scopes of every package the
// user bought through an approved payment, deduplicated.
func (r *AccessRepository) ListApprovedPackageGrantsByUser(ctx context.Context, userID string) ([]models.PackageGrant, error) {
	const query = `SELECT DISTINCT pk.scope, pk.subject_id, pk.topic_id, pk.year, pk.content
		FROM payments pay
		JOIN pdf_packages pk ON pk.id = pay.purchased_package_id
		WHERE pay.user_id = $1 AND pay.status = $2 AND pay.purchased_package_id IS NOT NULL`

	var grants []models.PackageGrant
	if err := r.db.SelectContext(ctx, &grants, query, userID, models.PaymentApproved); err != nil {
		return nil, fmt.Errorf("list package grants: %w", err)
	}
	return grants, nil
}

// ListByUser returns the user's grants for the purchases screen, newest
// first.
func (r *AccessRepository) ListByUser(ctx context.Context, userID string) ([]models.PDFAccess, error) {
	const query = `SELECT id, user_id, pdf_id, payment_id, granted_at
		FROM pdf_access WHERE user_id = $1 ORDER BY granted_at DESC`
	var rows []models.PDFAccess
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list user grants: %w", err)
	}
	return rows, nil
}
