package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kripas1369/pdf-backend/internal/models"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
)

type mockPDFRepo struct {
	pdfs       map[string]*models.PDFFile
	listResult []models.PDFFile
	lastFilter models.PDFFilter
	approvals  map[string]bool
	bulkIDs    []string
	createErr  error
}

func (m *mockPDFRepo) List(ctx context.Context, filter models.PDFFilter) ([]models.PDFFile, int, error) {
	m.lastFilter = filter
	return m.listResult, len(m.listResult), nil
}

func (m *mockPDFRepo) FindByID(ctx context.Context, id string) (*models.PDFFile, error) {
	pdf, ok := m.pdfs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return pdf, nil
}

func (m *mockPDFRepo) Create(ctx context.Context, pdf *models.PDFFile) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.pdfs == nil {
		m.pdfs = make(map[string]*models.PDFFile)
	}
	m.pdfs[pdf.ID] = pdf
	return nil
}

func (m *mockPDFRepo) Update(ctx context.Context, pdf *models.PDFFile) error {
	m.pdfs[pdf.ID] = pdf
	return nil
}

func (m *mockPDFRepo) UpdateApproval(ctx context.Context, id string, approved bool) error {
	if m.approvals == nil {
		m.approvals = make(map[string]bool)
	}
	m.approvals[id] = approved
	return nil
}

func (m *mockPDFRepo) BulkUpdateApproval(ctx context.Context, ids []string, approved bool) (int, error) {
	m.bulkIDs = ids
	return len(ids), nil
}

func (m *mockPDFRepo) Delete(ctx context.Context, id string) error {
	delete(m.pdfs, id)
	return nil
}

func (m *mockPDFRepo) Years(ctx context.Context, subjectID string, approvedOnly bool) ([]int, error) {
	return []int{2081, 2080}, nil
}

func (m *mockPDFRepo) Counts(ctx context.Context) (int, int, error) {
	return len(m.pdfs), 0, nil
}

func (m *mockPDFRepo) CountPendingByUploader(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

type mockPDFSubjectRepo struct {
	subjects  map[string]*models.Subject
	approvals map[string]bool
}

func (m *mockPDFSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	subject, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return subject, nil
}

func (m *mockPDFSubjectRepo) UpdateApproval(ctx context.Context, id string, approved bool) error {
	if m.approvals == nil {
		m.approvals = make(map[string]bool)
	}
	m.approvals[id] = approved
	if s, ok := m.subjects[id]; ok {
		s.IsApproved = approved
	}
	return nil
}

func (m *mockPDFSubjectRepo) CountApproved(ctx context.Context) (int, error) {
	return len(m.subjects), nil
}

type mockPDFTopicRepo struct {
	approvals map[string]bool
}

func (m *mockPDFTopicRepo) UpdateApproval(ctx context.Context, id string, approved bool) error {
	if m.approvals == nil {
		m.approvals = make(map[string]bool)
	}
	m.approvals[id] = approved
	return nil
}

func (m *mockPDFTopicRepo) CountApproved(ctx context.Context) (int, error) {
	return 2, nil
}

type mockPDFEntitlements struct {
	blanket    bool
	accessible map[string]struct{}
	decision   *models.AccessDecision
}

func (m *mockPDFEntitlements) Check(ctx context.Context, userID, pdfID string) (*models.AccessDecision, error) {
	if m.decision != nil {
		return m.decision, nil
	}
	return &models.AccessDecision{HasAccess: false, IsPremium: true}, nil
}

func (m *mockPDFEntitlements) AccessiblePDFIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	if m.accessible == nil {
		return map[string]struct{}{}, nil
	}
	return m.accessible, nil
}

func (m *mockPDFEntitlements) HasBlanketAccess(ctx context.Context, userID string) (bool, error) {
	return m.blanket, nil
}

type mockPDFStorage struct {
	saved   []string
	deleted []string
}

func (m *mockPDFStorage) SaveStream(filename string, r io.Reader) (string, error) {
	m.saved = append(m.saved, filename)
	return filename, nil
}

func (m *mockPDFStorage) Path(filename string) string {
	return "/data/" + filename
}

func (m *mockPDFStorage) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	return nil
}

func newPDFService(repo *mockPDFRepo, subjects *mockPDFSubjectRepo, topics *mockPDFTopicRepo, ents *mockPDFEntitlements) (*PDFService, *mockPDFStorage) {
	if subjects == nil {
		subjects = &mockPDFSubjectRepo{}
	}
	if topics == nil {
		topics = &mockPDFTopicRepo{}
	}
	if ents == nil {
		ents = &mockPDFEntitlements{}
	}
	store := &mockPDFStorage{}
	svc := NewPDFService(repo, subjects, topics, ents, store, nil, 0, validator.New(), zap.NewNop())
	return svc, store
}

func TestPDFUploadStudentCoercedToFreeQuestion(t *testing.T) {
	subjectID := uuid.NewString()
	repo := &mockPDFRepo{}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		subjectID: {ID: subjectID, TopicID: "topic-1", IsApproved: true},
	}}
	svc, store := newPDFService(repo, subjects, nil, nil)

	pdf, err := svc.Upload(context.Background(), UploadPDFRequest{
		Title:      "Past paper 2080",
		Year:       2080,
		SubjectID:  subjectID,
		PDFType:    "SOLUTION",
		IsPremium:  true,
		Price:      99,
		UploadedBy: "student-1",
	}, "paper.pdf", bytes.NewBufferString("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, models.PDFTypeQuestion, pdf.PDFType)
	assert.False(t, pdf.IsPremium)
	assert.Zero(t, pdf.Price)
	assert.False(t, pdf.IsApproved)
	require.NotNil(t, pdf.UploadedBy)
	assert.Equal(t, "student-1", *pdf.UploadedBy)
	assert.Len(t, store.saved, 1)
}

func TestPDFUploadSolutionGetsFixedPrice(t *testing.T) {
	subjectID := uuid.NewString()
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		subjectID: {ID: subjectID, TopicID: "topic-1", IsApproved: true},
	}}
	svc, _ := newPDFService(&mockPDFRepo{}, subjects, nil, nil)

	pdf, err := svc.Upload(context.Background(), UploadPDFRequest{
		Title:     "Solutions 2080",
		Year:      2080,
		SubjectID: subjectID,
		PDFType:   "SOLUTION",
	}, "solutions.pdf", bytes.NewBufferString("%PDF"))
	require.NoError(t, err)

	assert.True(t, pdf.IsPremium)
	assert.True(t, pdf.IsSolution)
	assert.Equal(t, models.SolutionPrice, pdf.Price)
	assert.True(t, pdf.IsApproved)
}

func TestPDFUploadRejectsNonPDF(t *testing.T) {
	svc, _ := newPDFService(&mockPDFRepo{}, nil, nil, nil)

	_, err := svc.Upload(context.Background(), UploadPDFRequest{
		Title:     "Notes",
		Year:      2080,
		SubjectID: uuid.NewString(),
	}, "notes.docx", bytes.NewBufferString("doc"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPDFApproveCascadesToSubjectAndTopic(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "sub-1", UploadedBy: strPtr("student-1")},
	}}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", TopicID: "topic-1", IsApproved: false},
	}}
	topics := &mockPDFTopicRepo{}
	svc, _ := newPDFService(repo, subjects, topics, nil)

	require.NoError(t, svc.Approve(context.Background(), "pdf-1"))
	assert.True(t, repo.approvals["pdf-1"])
	assert.True(t, subjects.approvals["sub-1"])
	assert.True(t, topics.approvals["topic-1"])
}

func TestPDFApproveCascadeTolerantOfMissingSubject(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "gone", UploadedBy: strPtr("student-1")},
	}}
	svc, _ := newPDFService(repo, &mockPDFSubjectRepo{}, nil, nil)

	require.NoError(t, svc.Approve(context.Background(), "pdf-1"))
	assert.True(t, repo.approvals["pdf-1"])
}

func TestPDFApproveAdminDocumentSkipsCascade(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "sub-1"},
	}}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", TopicID: "topic-1", IsApproved: false},
	}}
	topics := &mockPDFTopicRepo{}
	svc, _ := newPDFService(repo, subjects, topics, nil)

	require.NoError(t, svc.Approve(context.Background(), "pdf-1"))
	assert.True(t, repo.approvals["pdf-1"])
	assert.Empty(t, subjects.approvals)
	assert.Empty(t, topics.approvals)
}

func TestPDFRejectCascadesToSubjectAndTopic(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "sub-1", IsApproved: true, UploadedBy: strPtr("student-1")},
	}}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", TopicID: "topic-1", IsApproved: true},
	}}
	topics := &mockPDFTopicRepo{}
	svc, _ := newPDFService(repo, subjects, topics, nil)

	require.NoError(t, svc.Reject(context.Background(), "pdf-1"))
	assert.False(t, repo.approvals["pdf-1"])
	approved, ok := subjects.approvals["sub-1"]
	require.True(t, ok)
	assert.False(t, approved)
	approved, ok = topics.approvals["topic-1"]
	require.True(t, ok)
	assert.False(t, approved)
}

func TestPDFRejectAdminDocumentSkipsCascade(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "sub-1", IsApproved: true},
	}}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", TopicID: "topic-1", IsApproved: true},
	}}
	svc, _ := newPDFService(repo, subjects, nil, nil)

	require.NoError(t, svc.Reject(context.Background(), "pdf-1"))
	assert.False(t, repo.approvals["pdf-1"])
	assert.Empty(t, subjects.approvals)
}

func TestPDFListCatalogDecoration(t *testing.T) {
	free := models.PDFFile{ID: "free-1", Title: "Free paper", PDFType: models.PDFTypeQuestion}
	owned := models.PDFFile{ID: "owned-1", Title: "Owned solutions", PDFType: models.PDFTypeSolution, IsPremium: true, Price: models.SolutionPrice}
	locked := models.PDFFile{ID: "locked-1", Title: "Locked solutions", PDFType: models.PDFTypeSolution, IsPremium: true, Price: models.SolutionPrice}
	repo := &mockPDFRepo{listResult: []models.PDFFile{free, owned, locked}}
	ents := &mockPDFEntitlements{accessible: map[string]struct{}{"owned-1": {}}}
	svc, _ := newPDFService(repo, nil, nil, ents)

	items, pagination, err := svc.ListCatalog(context.Background(), "u1", ListCatalogRequest{Tab: "solutions"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 3, pagination.TotalCount)

	assert.False(t, items[0].IsLocked)
	assert.True(t, items[0].HasAccess)
	assert.False(t, items[1].IsLocked)
	assert.True(t, items[2].IsLocked)
	assert.Equal(t, models.SolutionPrice, items[2].Price)
}

func TestPDFListCatalogBlanketAccessUnlocksAll(t *testing.T) {
	locked := models.PDFFile{ID: "p1", IsPremium: true, PDFType: models.PDFTypeSolution}
	repo := &mockPDFRepo{listResult: []models.PDFFile{locked}}
	svc, _ := newPDFService(repo, nil, nil, &mockPDFEntitlements{blanket: true})

	items, _, err := svc.ListCatalog(context.Background(), "u1", ListCatalogRequest{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsLocked)
}

func TestPDFDownloadDeniedWithoutAccess(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", IsPremium: true, FilePath: "pdfs/pdf-1.pdf"},
	}}
	svc, _ := newPDFService(repo, nil, nil, &mockPDFEntitlements{})

	_, _, err := svc.Download(context.Background(), "u1", "pdf-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPaymentRequired.Code, appErrors.FromError(err).Code)
}

func TestPDFDownloadResolvesPath(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", Title: "Paper", FilePath: "pdfs/pdf-1.pdf"},
	}}
	ents := &mockPDFEntitlements{decision: &models.AccessDecision{HasAccess: true, Reason: models.ReasonFreePDF}}
	svc, _ := newPDFService(repo, nil, nil, ents)

	path, pdf, err := svc.Download(context.Background(), "", "pdf-1")
	require.NoError(t, err)
	assert.Equal(t, "/data/pdfs/pdf-1.pdf", path)
	assert.Equal(t, "Paper", pdf.Title)
}

func TestPDFUpdateRerunsDerivations(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", Title: "Paper", PDFType: models.PDFTypeQuestion, Year: 2080},
	}}
	svc, _ := newPDFService(repo, nil, nil, nil)

	newType := "SOLUTION"
	pdf, err := svc.Update(context.Background(), "pdf-1", UpdatePDFRequest{PDFType: &newType})
	require.NoError(t, err)
	assert.True(t, pdf.IsPremium)
	assert.Equal(t, models.SolutionPrice, pdf.Price)
}

func TestPDFBulkModerateApproveCascades(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "sub-1", UploadedBy: strPtr("student-1")},
	}}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", TopicID: "topic-1"},
	}}
	topics := &mockPDFTopicRepo{}
	svc, _ := newPDFService(repo, subjects, topics, nil)

	// Unknown ids are skipped by the cascade but still sent to the bulk update.
	ids := []string{"pdf-1", uuid.NewString()}
	affected, err := svc.BulkModerate(context.Background(), BulkModerationRequest{PDFIDs: ids, Approve: true})
	require.NoError(t, err)
	assert.Equal(t, 2, affected)
	assert.Equal(t, ids, repo.bulkIDs)
	assert.True(t, subjects.approvals["sub-1"])
	assert.True(t, topics.approvals["topic-1"])
}

func TestPDFBulkModerateRejectCascades(t *testing.T) {
	repo := &mockPDFRepo{pdfs: map[string]*models.PDFFile{
		"pdf-1": {ID: "pdf-1", SubjectID: "sub-1", IsApproved: true, UploadedBy: strPtr("student-1")},
	}}
	subjects := &mockPDFSubjectRepo{subjects: map[string]*models.Subject{
		"sub-1": {ID: "sub-1", TopicID: "topic-1", IsApproved: true},
	}}
	topics := &mockPDFTopicRepo{}
	svc, _ := newPDFService(repo, subjects, topics, nil)

	affected, err := svc.BulkModerate(context.Background(), BulkModerationRequest{PDFIDs: []string{"pdf-1"}, Approve: false})
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
	approved, ok := subjects.approvals["sub-1"]
	require.True(t, ok)
	assert.False(t, approved)
	approved, ok = topics.approvals["topic-1"]
	require.True(t, ok)
	assert.False(t, approved)
}

func TestPDFMyUploadsListsOwnFiles(t *testing.T) {
	repo := &mockPDFRepo{listResult: []models.PDFFile{
		{ID: "pdf-1", UploadedBy: strPtr("student-1")},
		{ID: "pdf-2", UploadedBy: strPtr("student-1"), IsApproved: true},
	}}
	svc, _ := newPDFService(repo, nil, nil, nil)

	files, pagination, err := svc.MyUploads(context.Background(), "student-1", 0, 500)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "student-1", repo.lastFilter.UploadedBy)
	assert.Equal(t, 1, repo.lastFilter.Page)
	assert.Equal(t, 20, repo.lastFilter.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}
