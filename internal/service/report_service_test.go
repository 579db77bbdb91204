package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
	"github.com/kripas1369/pdf-backend/pkg/jobs"
	"github.com/kripas1369/pdf-backend/pkg/storage"
)

type mockReportStore struct {
	jobs      map[string]*models.ReportJob
	createErr error
	failedMsg string
}

func (m *mockReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	if job.ID == "" {
		job.ID = "job-1"
	}
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ReportJob)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockReportStore) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (m *mockReportStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	m.jobs[id].Status = models.ReportRunning
	m.jobs[id].StartedAt = &startedAt
	return nil
}

func (m *mockReportStore) MarkCompleted(ctx context.Context, id, filePath string, rowCount int, completedAt time.Time) error {
	job := m.jobs[id]
	job.Status = models.ReportCompleted
	job.FilePath = filePath
	job.RowCount = rowCount
	job.CompletedAt = &completedAt
	return nil
}

func (m *mockReportStore) MarkFailed(ctx context.Context, id, message string, completedAt time.Time) error {
	m.failedMsg = message
	if job, ok := m.jobs[id]; ok {
		job.Status = models.ReportFailed
		job.Error = &message
	}
	return nil
}

func (m *mockReportStore) ListByRequester(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range m.jobs {
		if job.RequestedBy == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

type mockReportLedger struct {
	rows []models.Payment
	err  error
}

func (m *mockReportLedger) LedgerRows(ctx context.Context) ([]models.Payment, error) {
	return m.rows, m.err
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockReportStorage struct {
	saved map[string][]byte
}

func (m *mockReportStorage) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *mockReportStorage) Path(filename string) string {
	return "/data/reports/" + filename
}

func newReportService(store *mockReportStore, ledger *mockReportLedger, dispatcher *mockDispatcher, files *mockReportStorage) *ReportService {
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewReportService(store, ledger, files, signer, nil, nil)
	svc.SetQueue(dispatcher)
	return svc
}

func TestReportCreateJobEnqueues(t *testing.T) {
	store := &mockReportStore{}
	dispatcher := &mockDispatcher{}
	svc := newReportService(store, &mockReportLedger{}, dispatcher, &mockReportStorage{})

	job, err := svc.CreateJob(context.Background(), "admin-1", models.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, models.ReportQueued, job.Status)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
}

func TestReportCreateJobRejectsUnknownFormat(t *testing.T) {
	svc := newReportService(&mockReportStore{}, &mockReportLedger{}, &mockDispatcher{}, &mockReportStorage{})

	_, err := svc.CreateJob(context.Background(), "admin-1", models.ReportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	store := &mockReportStore{}
	dispatcher := &mockDispatcher{err: errors.New("queue not started")}
	svc := newReportService(store, &mockReportLedger{}, dispatcher, &mockReportStorage{})

	_, err := svc.CreateJob(context.Background(), "admin-1", models.ReportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, "failed to enqueue", store.failedMsg)
}

func TestReportProcessRendersCSV(t *testing.T) {
	verifiedBy := "admin-1"
	verifiedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &mockReportStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Format: models.ReportFormatCSV, Status: models.ReportQueued, RequestedBy: "admin-1"},
	}}
	ledger := &mockReportLedger{rows: []models.Payment{
		{ID: "pay-1", UserID: "u1", Type: models.PaymentSubscription, Amount: 299, Status: models.PaymentApproved, VerifiedBy: &verifiedBy, VerifiedAt: &verifiedAt},
		{ID: "pay-2", UserID: "u2", Type: models.PaymentSinglePDF, Amount: 15, Status: models.PaymentPending},
	}}
	files := &mockReportStorage{}
	svc := newReportService(store, ledger, &mockDispatcher{}, files)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: "job-1"}))

	job := store.jobs["job-1"]
	assert.Equal(t, models.ReportCompleted, job.Status)
	assert.Equal(t, "reports/job-1.csv", job.FilePath)
	assert.Equal(t, 2, job.RowCount)

	rendered := string(files.saved["reports/job-1.csv"])
	assert.Contains(t, rendered, "pay-1")
	assert.Contains(t, rendered, "299.00")
	assert.Contains(t, rendered, verifiedAt.Format(time.RFC3339))
	assert.Equal(t, 3, strings.Count(rendered, "\n"))
}

func TestReportProcessCompletedJobIsNoop(t *testing.T) {
	store := &mockReportStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Format: models.ReportFormatCSV, Status: models.ReportCompleted, FilePath: "reports/job-1.csv"},
	}}
	files := &mockReportStorage{}
	svc := newReportService(store, &mockReportLedger{}, &mockDispatcher{}, files)

	require.NoError(t, svc.Process(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Empty(t, files.saved)
}

func TestReportProcessLedgerFailure(t *testing.T) {
	store := &mockReportStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Format: models.ReportFormatCSV, Status: models.ReportQueued},
	}}
	ledger := &mockReportLedger{err: errors.New("connection reset")}
	svc := newReportService(store, ledger, &mockDispatcher{}, &mockReportStorage{})

	require.Error(t, svc.Process(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportFailed, store.jobs["job-1"].Status)
	assert.Equal(t, "connection reset", store.failedMsg)
}

func TestReportStatusOwnerOnly(t *testing.T) {
	store := &mockReportStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Format: models.ReportFormatCSV, Status: models.ReportCompleted, RequestedBy: "admin-1", FilePath: "reports/job-1.csv"},
	}}
	svc := newReportService(store, &mockReportLedger{}, &mockDispatcher{}, &mockReportStorage{})

	job, err := svc.Status(context.Background(), "job-1", "admin-1")
	require.NoError(t, err)
	assert.Contains(t, job.DownloadURL, "/admin/reports/download?token=")

	_, err = svc.Status(context.Background(), "job-1", "admin-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportResolveDownloadRoundTrip(t *testing.T) {
	store := &mockReportStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Format: models.ReportFormatCSV, Status: models.ReportCompleted, RequestedBy: "admin-1", FilePath: "reports/job-1.csv"},
	}}
	svc := newReportService(store, &mockReportLedger{}, &mockDispatcher{}, &mockReportStorage{})

	job, err := svc.Status(context.Background(), "job-1", "admin-1")
	require.NoError(t, err)
	token := strings.TrimPrefix(job.DownloadURL, "/api/v1/admin/reports/download?token=")

	path, resolved, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "/data/reports/reports/job-1.csv", path)
	assert.Equal(t, "job-1", resolved.ID)

	_, _, err = svc.ResolveDownload(context.Background(), "bogus")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
