package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kripas1369/pdf-backend/internal/service"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
	"github.com/kripas1369/pdf-backend/pkg/response"
)

// PDFHandler serves document details, uploads, downloads and moderation.
type PDFHandler struct {
	pdfs         *service.PDFService
	entitlements *service.EntitlementService
}

// NewPDFHandler constructs a PDF handler.
func NewPDFHandler(pdfs *service.PDFService, entitlements *service.EntitlementService) *PDFHandler {
	return &PDFHandler{pdfs: pdfs, entitlements: entitlements}
}

// Get godoc
// @Summary Get PDF metadata
// @Tags PDFs
// @Produce json
// @Param id path string true "PDF ID"
// @Success 200 {object} response.Envelope
// @Router /pdfs/{id} [get]
func (h *PDFHandler) Get(c *gin.Context) {
	pdf, err := h.pdfs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pdf, nil)
}

// CheckAccess godoc
// @Summary Resolve the caller's access to a PDF
// @Tags PDFs
// @Produce json
// @Param id path string true "PDF ID"
// @Success 200 {object} response.Envelope
// @Router /pdfs/{id}/access [get]
func (h *PDFHandler) CheckAccess(c *gin.Context) {
	decision, err := h.entitlements.Check(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Download godoc
// @Summary Stream a PDF the caller may open
// @Tags PDFs
// @Produce application/pdf
// @Param id path string true "PDF ID"
// @Success 200 {file} binary
// @Failure 402 {object} response.Envelope
// @Router /pdfs/{id}/download [get]
func (h *PDFHandler) Download(c *gin.Context) {
	path, pdf, err := h.pdfs.Download(c.Request.Context(), userIDFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, pdf.Title+".pdf")
}

// Upload godoc
// @Summary Upload a PDF (students: free question papers pending review)
// @Tags PDFs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF file"
// @Success 201 {object} response.Envelope
// @Router /pdfs [post]
func (h *PDFHandler) Upload(c *gin.Context) {
	var req service.UploadPDFRequest
	req.Title = c.PostForm("title")
	if subtitle := c.PostForm("subtitle"); subtitle != "" {
		req.Subtitle = &subtitle
	}
	if year, err := strconv.Atoi(c.PostForm("year")); err == nil {
		req.Year = year
	}
	req.SubjectID = c.PostForm("subject_id")
	req.PDFType = c.PostForm("pdf_type")
	req.IsPremium = c.PostForm("is_premium") == "true"
	if price, err := strconv.ParseFloat(c.DefaultPostForm("price", "0"), 64); err == nil {
		req.Price = price
	}
	if !isAdmin(c) {
		req.UploadedBy = userIDFromContext(c)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close()

	pdf, err := h.pdfs.Upload(c.Request.Context(), req, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pdf)
}

// Update godoc
// @Summary Edit PDF metadata
// @Tags PDFs
// @Accept json
// @Produce json
// @Param id path string true "PDF ID"
// @Param payload body service.UpdatePDFRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /pdfs/{id} [patch]
func (h *PDFHandler) Update(c *gin.Context) {
	var req service.UpdatePDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pdf, err := h.pdfs.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pdf, nil)
}

// Delete godoc
// @Summary Delete a PDF
// @Tags PDFs
// @Param id path string true "PDF ID"
// @Success 204 {object} response.Envelope
// @Router /pdfs/{id} [delete]
func (h *PDFHandler) Delete(c *gin.Context) {
	if err := h.pdfs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyUploads godoc
// @Summary List the caller's own PDF submissions
// @Tags PDFs
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /pdfs/my-uploads [get]
func (h *PDFHandler) MyUploads(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	pdfs, pagination, err := h.pdfs.MyUploads(c.Request.Context(), userIDFromContext(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pdfs, pagination)
}

// PendingUploads godoc
// @Summary List student uploads awaiting review
// @Tags Moderation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/pdfs/pending [get]
func (h *PDFHandler) PendingUploads(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	pdfs, pagination, err := h.pdfs.PendingUploads(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pdfs, pagination)
}

// Approve godoc
// @Summary Approve a student upload (cascades to subject and topic)
// @Tags Moderation
// @Param id path string true "PDF ID"
// @Success 204 {object} response.Envelope
// @Router /admin/pdfs/{id}/approve [post]
func (h *PDFHandler) Approve(c *gin.Context) {
	if err := h.pdfs.Approve(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reject godoc
// @Summary Reject a student upload (cascades to subject and topic)
// @Tags Moderation
// @Param id path string true "PDF ID"
// @Success 204 {object} response.Envelope
// @Router /admin/pdfs/{id}/reject [post]
func (h *PDFHandler) Reject(c *gin.Context) {
	if err := h.pdfs.Reject(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkModerate godoc
// @Summary Approve or reject many uploads at once
// @Tags Moderation
// @Accept json
// @Produce json
// @Param payload body service.BulkModerationRequest true "Moderation payload"
// @Success 200 {object} response.Envelope
// @Router /admin/pdfs/bulk-moderate [post]
func (h *PDFHandler) BulkModerate(c *gin.Context) {
	var req service.BulkModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	affected, err := h.pdfs.BulkModerate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": affected}, nil)
}
