package models

import "time"

// ReportFormat selects the rendering of a ledger export.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus is the lifecycle state of an export job.
type ReportStatus string

const (
	ReportQueued    ReportStatus = "QUEUED"
	ReportRunning   ReportStatus = "RUNNING"
	ReportCompleted ReportStatus = "COMPLETED"
	ReportFailed    ReportStatus = "FAILED"
)

// ReportJob tracks one asynchronous payment-ledger export.
type ReportJob struct {
	ID          string       `db:"id" json:"id"`
	Format      ReportFormat `db:"format" json:"format"`
	Status      ReportStatus `db:"status" json:"status"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	FilePath    string       `db:"file_path" json:"-"`
	RowCount    int          `db:"row_count" json:"row_count"`
	Error       *string      `db:"error_message" json:"error,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	StartedAt   *time.Time   `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`

	// DownloadURL is attached once the job completes and a signed token is
	// generated for the caller.
	DownloadURL string `db:"-" json:"download_url,omitempty"`
}
