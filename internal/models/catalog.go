package models

import "time"

// PDFType determines which tab a PDF appears in and drives premium pricing.
type PDFType string

const (
	PDFTypeQuestion PDFType = "QUESTION"
	PDFTypeSolution PDFType = "SOLUTION"
	PDFTypeBoth     PDFType = "BOTH"
)

// SolutionPrice is the fixed price applied to SOLUTION and BOTH documents.
const SolutionPrice = 15.00

// Topic is a top-level catalog node (TU, PU, ...). Students can suggest new
// topics; only approved ones show in the app.
type Topic struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	UploadedBy *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	IsApproved bool      `db:"is_approved" json:"is_approved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Subject belongs to exactly one topic.
type Subject struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	TopicID    string    `db:"topic_id" json:"topic_id"`
	UploadedBy *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	IsApproved bool      `db:"is_approved" json:"is_approved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PDFFile is the sellable unit of the catalog.
type PDFFile struct {
	ID         string    `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Subtitle   *string   `db:"subtitle" json:"subtitle,omitempty"`
	Year       int       `db:"year" json:"year"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	FilePath   string    `db:"file_path" json:"-"`
	PDFType    PDFType   `db:"pdf_type" json:"pdf_type"`
	IsSolution bool      `db:"is_solution" json:"is_solution"`
	IsPremium  bool      `db:"is_premium" json:"is_premium"`
	Price      float64   `db:"price" json:"price"`
	UploadedBy *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	IsApproved bool      `db:"is_approved" json:"is_approved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ApplyDerivations enforces the save-time pricing rules. Student uploads are
// always free question PDFs pending approval; solution content is premium at
// the fixed price. Calling it repeatedly yields the same result.
func (p *PDFFile) ApplyDerivations() {
	switch {
	case p.UploadedBy != nil:
		p.PDFType = PDFTypeQuestion
		p.IsSolution = false
		p.IsPremium = false
		p.Price = 0
	case p.PDFType == PDFTypeSolution || p.PDFType == PDFTypeBoth:
		p.IsSolution = true
		p.IsPremium = true
		p.Price = SolutionPrice
	case p.PDFType == PDFTypeQuestion:
		// Premium flag and price stay as set so admins can lock question PDFs.
		p.IsSolution = false
	}
}

// EffectivePrice is the price quoted to a caller without access.
func (p *PDFFile) EffectivePrice() float64 {
	if p.PDFType == PDFTypeSolution || p.PDFType == PDFTypeBoth {
		return SolutionPrice
	}
	return p.Price
}

// PDFDetail joins a PDF with its subject's topic for package coverage checks.
// TopicID is nil when the subject row has been deleted.
type PDFDetail struct {
	PDFFile
	TopicID *string `db:"topic_id" json:"topic_id,omitempty"`
}

// PDFFilter captures supported filters for listing PDFs.
type PDFFilter struct {
	SubjectID     string
	Year          int
	Types         []PDFType
	ApprovedOnly  bool
	PendingOnly   bool
	UploadedBy    string
	StudentUpload *bool
	Page          int
	PageSize      int
}

// CatalogItem is the per-PDF listing row returned to the app, carrying the
// computed visibility flags.
type CatalogItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Subtitle  *string `json:"subtitle,omitempty"`
	Year      int     `json:"year"`
	PDFType   PDFType `json:"pdf_type"`
	IsPremium bool    `json:"is_premium"`
	Price     float64 `json:"price"`
	IsLocked  bool    `json:"is_locked"`
	HasAccess bool    `json:"has_access"`
}

// CatalogStats is the public stats payload.
type CatalogStats struct {
	TotalTopics          int `json:"total_topics"`
	TotalSubjects        int `json:"total_subjects"`
	TotalPDFs            int `json:"total_pdfs"`
	PendingStudentPDFs   int `json:"student_pdf_uploads_pending"`
	MyPendingUploadCount int `json:"my_pdf_uploads_pending_count,omitempty"`
}
