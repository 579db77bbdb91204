package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
	"github.com/kripas1369/pdf-backend/pkg/export"
	"github.com/kripas1369/pdf-backend/pkg/jobs"
	"github.com/kripas1369/pdf-backend/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id, filePath string, rowCount int, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, completedAt time.Time) error
	ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error)
}

type reportLedgerSource interface {
	LedgerRows(ctx context.Context) ([]models.Payment, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

// ReportService renders the payment ledger to CSV or PDF in the background.
// Downloads go through signed URLs so the files never sit behind an open
// route.
type ReportService struct {
	repo     reportJobStore
	ledger   reportLedgerSource
	queue    jobDispatcher
	storage  reportStorage
	signer   *storage.SignedURLSigner
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, ledger reportLedgerSource, store reportStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:    repo,
		ledger:  ledger,
		storage: store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue wires the dispatcher. Separate from the constructor because the
// queue's handler needs the service.
func (s *ReportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob queues a ledger export for the requesting admin.
func (s *ReportService) CreateJob(ctx context.Context, requestedBy string, format models.ReportFormat) (*models.ReportJob, error) {
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	job := &models.ReportJob{
		Format:      format,
		Status:      models.ReportQueued,
		RequestedBy: requestedBy,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "ledger_export"}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "failed to enqueue", s.now()); markErr != nil {
			s.logger.Warn("failed to record enqueue failure", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// Process executes one export job. Wired as the queue handler.
func (s *ReportService) Process(ctx context.Context, queued jobs.Job) error {
	start := s.now()
	job, err := s.repo.FindByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", queued.ID, err)
	}
	if job.Status == models.ReportCompleted {
		return nil
	}
	if err := s.repo.MarkRunning(ctx, job.ID, start); err != nil {
		return fmt.Errorf("mark export running: %w", err)
	}

	rows, err := s.ledger.LedgerRows(ctx)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	dataset := ledgerDataset(rows)
	var rendered []byte
	var filename string
	switch job.Format {
	case models.ReportFormatPDF:
		rendered, err = s.pdf.Render(dataset, "Payment ledger")
		filename = fmt.Sprintf("reports/%s.pdf", job.ID)
	default:
		rendered, err = s.csv.Render(dataset)
		filename = fmt.Sprintf("reports/%s.csv", job.ID)
	}
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	relPath, err := s.storage.Save(filename, rendered)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	if err := s.repo.MarkCompleted(ctx, job.ID, relPath, len(rows), s.now()); err != nil {
		return fmt.Errorf("mark export completed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveReportExport(s.now().Sub(start))
	}
	s.logger.Info("ledger export completed",
		zap.String("job_id", job.ID), zap.String("format", string(job.Format)), zap.Int("rows", len(rows)))
	return nil
}

func (s *ReportService) fail(ctx context.Context, jobID string, cause error) {
	if err := s.repo.MarkFailed(ctx, jobID, cause.Error(), s.now()); err != nil {
		s.logger.Warn("failed to record export failure", zap.String("job_id", jobID), zap.Error(err))
	}
}

func ledgerDataset(rows []models.Payment) export.Dataset {
	headers := []string{"ID", "User", "Type", "Amount", "Status", "Verified By", "Verified At", "Created At"}
	out := make([]map[string]string, len(rows))
	for i, p := range rows {
		verifiedBy, verifiedAt := "", ""
		if p.VerifiedBy != nil {
			verifiedBy = *p.VerifiedBy
		}
		if p.VerifiedAt != nil {
			verifiedAt = p.VerifiedAt.Format(time.RFC3339)
		}
		out[i] = map[string]string{
			"ID":          p.ID,
			"User":        p.UserID,
			"Type":        string(p.Type),
			"Amount":      strconv.FormatFloat(p.Amount, 'f', 2, 64),
			"Status":      string(p.Status),
			"Verified By": verifiedBy,
			"Verified At": verifiedAt,
			"Created At":  p.CreatedAt.Format(time.RFC3339),
		}
	}
	return export.Dataset{Headers: headers, Rows: out}
}

// Status returns job state with a signed download link once completed.
func (s *ReportService) Status(ctx context.Context, jobID, callerID string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.RequestedBy != callerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another admin")
	}
	s.attachDownloadURL(job)
	return job, nil
}

// List returns the caller's recent export jobs.
func (s *ReportService) List(ctx context.Context, callerID string, limit int) ([]models.ReportJob, error) {
	listed, err := s.repo.ListByRequester(ctx, callerID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	for i := range listed {
		s.attachDownloadURL(&listed[i])
	}
	return listed, nil
}

func (s *ReportService) attachDownloadURL(job *models.ReportJob) {
	if job.Status != models.ReportCompleted || job.FilePath == "" || s.signer == nil {
		return
	}
	token, _, err := s.signer.Generate(job.ID, job.FilePath)
	if err != nil {
		s.logger.Warn("failed to sign download token", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.DownloadURL = fmt.Sprintf("/api/v1/admin/reports/download?token=%s", token)
}

// ResolveDownload validates a signed token and returns the absolute file
// path to stream.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (string, *models.ReportJob, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.FilePath != relPath || job.Status != models.ReportCompleted {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return s.storage.Path(relPath), job, nil
}
