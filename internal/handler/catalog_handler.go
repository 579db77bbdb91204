package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kripas1369/pdf-backend/internal/service"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
	"github.com/kripas1369/pdf-backend/pkg/response"
)

// CatalogHandler serves the topic/subject/PDF browsing tree.
type CatalogHandler struct {
	topics   *service.TopicService
	subjects *service.SubjectService
	pdfs     *service.PDFService
}

// NewCatalogHandler constructs a catalog handler.
func NewCatalogHandler(topics *service.TopicService, subjects *service.SubjectService, pdfs *service.PDFService) *CatalogHandler {
	return &CatalogHandler{topics: topics, subjects: subjects, pdfs: pdfs}
}

// ListTopics godoc
// @Summary List catalog topics
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /topics [get]
func (h *CatalogHandler) ListTopics(c *gin.Context) {
	topics, err := h.topics.List(c.Request.Context(), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, topics, nil)
}

// CreateTopic godoc
// @Summary Create or suggest a topic
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateTopicRequest true "Topic payload"
// @Success 201 {object} response.Envelope
// @Router /topics [post]
func (h *CatalogHandler) CreateTopic(c *gin.Context) {
	var req service.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !isAdmin(c) {
		req.SuggestedBy = userIDFromContext(c)
	}
	topic, err := h.topics.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, topic)
}

// DeleteTopic godoc
// @Summary Delete a topic
// @Tags Catalog
// @Param id path string true "Topic ID"
// @Success 204 {object} response.Envelope
// @Router /topics/{id} [delete]
func (h *CatalogHandler) DeleteTopic(c *gin.Context) {
	if err := h.topics.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSubjects godoc
// @Summary List subjects under a topic
// @Tags Catalog
// @Produce json
// @Param id path string true "Topic ID"
// @Success 200 {object} response.Envelope
// @Router /topics/{id}/subjects [get]
func (h *CatalogHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.subjects.ListByTopic(c.Request.Context(), c.Param("id"), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// CreateSubject godoc
// @Summary Create or suggest a subject
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Router /subjects [post]
func (h *CatalogHandler) CreateSubject(c *gin.Context) {
	var req service.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !isAdmin(c) {
		req.SuggestedBy = userIDFromContext(c)
	}
	subject, err := h.subjects.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// DeleteSubject godoc
// @Summary Delete a subject
// @Tags Catalog
// @Param id path string true "Subject ID"
// @Success 204 {object} response.Envelope
// @Router /subjects/{id} [delete]
func (h *CatalogHandler) DeleteSubject(c *gin.Context) {
	if err := h.subjects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Years godoc
// @Summary List years available under a subject
// @Tags Catalog
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id}/years [get]
func (h *CatalogHandler) Years(c *gin.Context) {
	years, err := h.pdfs.Years(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// ListPDFs godoc
// @Summary List catalog PDFs with per-user lock flags
// @Tags Catalog
// @Produce json
// @Param subject_id query string false "Subject ID"
// @Param year query int false "Year"
// @Param tab query string false "questions or solutions"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /pdfs [get]
func (h *CatalogHandler) ListPDFs(c *gin.Context) {
	var req service.ListCatalogRequest
	req.SubjectID = c.Query("subject_id")
	req.Tab = c.Query("tab")
	if year, err := strconv.Atoi(c.DefaultQuery("year", "0")); err == nil {
		req.Year = year
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		req.PageSize = size
	}

	items, pagination, err := h.pdfs.ListCatalog(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Public catalog counts
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats [get]
func (h *CatalogHandler) Stats(c *gin.Context) {
	stats, err := h.pdfs.Stats(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
