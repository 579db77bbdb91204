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

const paymentColumns = `id, user_id, payment_type, amount, tier, purchased_pdf_id,
	purchased_package_id, screenshot_path, payment_method, transaction_note,
	status, verified_by, verified_at, admin_notes, created_at, updated_at`

// PaymentRepository handles the manual payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new repository instance.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a new pending payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, user_id, payment_type, amount, tier,
			purchased_pdf_id, purchased_package_id, screenshot_path, payment_method,
			transaction_note, status, verified_by, verified_at, admin_notes, created_at, updated_at)
		VALUES (:id, :user_id, :payment_type, :amount, :tier,
			:purchased_pdf_id, :purchased_package_id, :screenshot_path, :payment_method,
			:transaction_note, :status, :verified_by, :verified_at, :admin_notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID returns a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// List returns payments matching the filter, newest first, with a total for
// pagination.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Type != "" {
		add("payment_type = $%d", filter.Type)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments` + where + ` ORDER BY created_at DESC`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

// ApplyApproval writes an admin decision and all of its side effects in a
// single transaction: the status flip, the subscription replacement, the
// quota reset, the access grants and the verified badge. Grants use
// get-or-create semantics so re-running an approval changes nothing.
func (r *PaymentRepository) ApplyApproval(ctx context.Context, userID string, approval *models.PaymentApproval) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = $2, verified_by = $3, verified_at = $4,
			admin_notes = $5, updated_at = $6
		WHERE id = $1`,
		approval.PaymentID, approval.Status, approval.VerifiedBy, approval.VerifiedAt,
		approval.AdminNotes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if sub := approval.Subscription; sub != nil {
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO subscriptions (id, user_id, tier, started_at, expires_at, is_active, last_payment_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id) DO UPDATE SET
				tier = EXCLUDED.tier,
				started_at = EXCLUDED.started_at,
				expires_at = EXCLUDED.expires_at,
				is_active = EXCLUDED.is_active,
				last_payment_id = EXCLUDED.last_payment_id`,
			sub.ID, sub.UserID, sub.Tier, sub.StartedAt, sub.ExpiresAt, sub.IsActive, sub.LastPaymentID)
		if err != nil {
			return fmt.Errorf("replace subscription: %w", err)
		}
	}

	if approval.ResetQuota {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO message_quotas (user_id, messages_sent_today, last_reset_date)
			VALUES ($1, 0, $2)
			ON CONFLICT (user_id) DO UPDATE SET
				messages_sent_today = 0,
				last_reset_date = EXCLUDED.last_reset_date`,
			userID, time.Now().UTC().Truncate(24*time.Hour))
		if err != nil {
			return fmt.Errorf("reset message quota: %w", err)
		}
	}

	for _, pdfID := range approval.GrantPDFIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pdf_access (id, user_id, pdf_id, payment_id, granted_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, pdf_id) DO NOTHING`,
			uuid.NewString(), userID, pdfID, approval.PaymentID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("grant pdf access: %w", err)
		}
	}

	if approval.MarkUserVerified {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET is_verified = TRUE WHERE id = $1 AND is_verified = FALSE`, userID)
		if err != nil {
			return fmt.Errorf("mark user verified: %w", err)
		}
	}

	return tx.Commit()
}

// ActiveQR returns the currently active payment QR, if any.
func (r *PaymentRepository) ActiveQR(ctx context.Context) (*models.PaymentQR, error) {
	const query = `SELECT id, image_path, instructions, is_active, updated_at
		FROM payment_qrs WHERE is_active = TRUE ORDER BY updated_at DESC LIMIT 1`
	var qr models.PaymentQR
	if err := r.db.GetContext(ctx, &qr, query); err != nil {
		return nil, err
	}
	return &qr, nil
}

// UpsertQR installs a new QR image and deactivates the previous one.
func (r *PaymentRepository) UpsertQR(ctx context.Context, qr *models.PaymentQR) error {
	if qr.ID == "" {
		qr.ID = uuid.NewString()
	}
	qr.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin qr update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE payment_qrs SET is_active = FALSE WHERE is_active = TRUE`); err != nil {
		return fmt.Errorf("deactivate payment qr: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_qrs (id, image_path, instructions, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		qr.ID, qr.ImagePath, qr.Instructions, qr.IsActive, qr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment qr: %w", err)
	}
	return tx.Commit()
}

// LedgerRows streams the full payment ledger for exports, oldest first.
func (r *PaymentRepository) LedgerRows(ctx context.Context) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query); err != nil {
		return nil, fmt.Errorf("load payment ledger: %w", err)
	}
	return payments, nil
}
