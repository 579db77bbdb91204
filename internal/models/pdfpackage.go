package models

import "time"

// PackageScope defines what a package covers.
type PackageScope string

const (
	ScopeSubject  PackageScope = "SUBJECT"
	ScopeTopic    PackageScope = "TOPIC"
	ScopeYear     PackageScope = "YEAR"
	ScopeAllYears PackageScope = "ALL_YEARS"
)

// PackageContent narrows a package to a content type.
type PackageContent string

const (
	ContentAll       PackageContent = "ALL"
	ContentQuestions PackageContent = "QUESTIONS"
	ContentSolutions PackageContent = "SOLUTIONS"
)

// PDFPackage is an admin-defined bundle of PDFs. Exactly one of SubjectID,
// TopicID or Year scopes it, or none for ALL_YEARS. Stored membership is a
// cached materialization of the scope query; it is replaced wholesale on save
// and recomputed live when empty.
type PDFPackage struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Scope             PackageScope   `db:"scope" json:"package_type"`
	TopicID           *string        `db:"topic_id" json:"topic_id,omitempty"`
	SubjectID         *string        `db:"subject_id" json:"subject_id,omitempty"`
	Year              *int           `db:"year" json:"year,omitempty"`
	Content           PackageContent `db:"content" json:"content_type"`
	Price             float64        `db:"price" json:"price"`
	IsActive          bool           `db:"is_active" json:"is_active"`
	IsSolutionPackage bool           `db:"is_solution_package" json:"is_solution_package"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`

	// PDFCount is a derived column populated on listing queries.
	PDFCount int `db:"pdf_count" json:"pdf_count"`
}

// ApplyDerivations keeps the solution-package flag in sync with the content
// filter. Idempotent on save.
func (p *PDFPackage) ApplyDerivations() {
	p.IsSolutionPackage = p.Content == ContentSolutions
}

// PackageFilter captures filters for listing packages.
type PackageFilter struct {
	Scope      PackageScope
	Content    PackageContent
	ActiveOnly bool
	SubjectID  string
	TopicID    string
	Year       int
	Page       int
	PageSize   int
}

// PackageGrant is a flattened view of an approved package purchase used by
// the entitlement resolver.
type PackageGrant struct {
	Scope     PackageScope   `db:"scope"`
	SubjectID *string        `db:"subject_id"`
	TopicID   *string        `db:"topic_id"`
	Year      *int           `db:"year"`
	Content   PackageContent `db:"content"`
}
