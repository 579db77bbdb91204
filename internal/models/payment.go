package models

import "time"

// PaymentType declares what a payment buys.
type PaymentType string

const (
	PaymentSubscription   PaymentType = "SUBSCRIPTION"
	PaymentSinglePDF      PaymentType = "SINGLE_PDF"
	PaymentSubjectPackage PaymentType = "SUBJECT_PACKAGE"
	PaymentTopicPackage   PaymentType = "TOPIC_PACKAGE"
	PaymentYearPackage    PaymentType = "YEAR_PACKAGE"
	PaymentFullPackage    PaymentType = "FULL_PACKAGE"
)

// IsPackage reports whether the payment type buys a package.
func (t PaymentType) IsPackage() bool {
	switch t {
	case PaymentSubjectPackage, PaymentTopicPackage, PaymentYearPackage, PaymentFullPackage:
		return true
	}
	return false
}

// PaymentStatus is the manual review state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// Payment records a user's claimed QR purchase awaiting manual verification.
// Exactly one of Tier, PurchasedPDFID or PurchasedPackageID is set, matched
// to the payment type.
type Payment struct {
	ID                 string        `db:"id" json:"id"`
	UserID             string        `db:"user_id" json:"user_id"`
	Type               PaymentType   `db:"payment_type" json:"payment_type"`
	Amount             float64       `db:"amount" json:"amount"`
	Tier               *Tier         `db:"tier" json:"tier,omitempty"`
	PurchasedPDFID     *string       `db:"purchased_pdf_id" json:"purchased_pdf,omitempty"`
	PurchasedPackageID *string       `db:"purchased_package_id" json:"purchased_package,omitempty"`
	ScreenshotPath     string        `db:"screenshot_path" json:"-"`
	PaymentMethod      string        `db:"payment_method" json:"payment_method"`
	TransactionNote    string        `db:"transaction_note" json:"transaction_note"`
	Status             PaymentStatus `db:"status" json:"status"`
	VerifiedBy         *string       `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt         *time.Time    `db:"verified_at" json:"verified_at,omitempty"`
	AdminNotes         string        `db:"admin_notes" json:"admin_notes"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentFilter captures filters for the review queue.
type PaymentFilter struct {
	UserID   string
	Status   PaymentStatus
	Type     PaymentType
	Page     int
	PageSize int
}

// PaymentQR is the admin-managed QR image users scan to pay. Singleton: the
// first active row wins.
type PaymentQR struct {
	ID           string    `db:"id" json:"id"`
	ImagePath    string    `db:"image_path" json:"image_path"`
	Instructions string    `db:"instructions" json:"instructions"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PDFAccess is a materialized grant: a (user, pdf) pair, unique, optionally
// tagged with the originating payment. Never deleted in normal operation.
type PDFAccess struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	PDFID     string    `db:"pdf_id" json:"pdf_id"`
	PaymentID *string   `db:"payment_id" json:"payment_id,omitempty"`
	GrantedAt time.Time `db:"granted_at" json:"granted_at"`
}

// PaymentApproval is the full set of writes an admin decision produces. The
// side-effect fields are populated only when the status is APPROVED; the
// repository applies everything in one transaction.
type PaymentApproval struct {
	PaymentID  string
	Status     PaymentStatus
	VerifiedBy string
	VerifiedAt time.Time
	AdminNotes string

	Subscription     *Subscription
	ResetQuota       bool
	GrantPDFIDs      []string
	MarkUserVerified bool
}

// AccessDecision is the resolver verdict for one (user, pdf) pair.
type AccessDecision struct {
	HasAccess bool    `json:"has_access"`
	Reason    string  `json:"reason,omitempty"`
	IsPremium bool    `json:"is_premium,omitempty"`
	Price     float64 `json:"price,omitempty"`
}

// Access reasons reported to the client.
const (
	ReasonFreePDF      = "free_pdf"
	ReasonSubscription = "subscription"
	ReasonPurchased    = "purchased"
	ReasonPackage      = "package"
)
