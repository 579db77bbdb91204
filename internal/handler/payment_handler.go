package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kripas1369/pdf-backend/internal/models"
	"github.com/kripas1369/pdf-backend/internal/service"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
	"github.com/kripas1369/pdf-backend/pkg/response"
)

// PaymentHandler serves payment submission, the QR surface and the admin
// review queue.
type PaymentHandler struct {
	service *service.PaymentService
}

// NewPaymentHandler constructs a payment handler.
func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Create godoc
// @Summary Submit a payment with proof screenshot
// @Tags Payments
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param payment_type formData string true "Payment type"
// @Param amount formData number true "Amount paid"
// @Param screenshot formData file true "Proof of payment"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.CreatePaymentRequest
	req.Type = c.PostForm("payment_type")
	if amount, err := strconv.ParseFloat(c.DefaultPostForm("amount", "0"), 64); err == nil {
		req.Amount = amount
	}
	if tier := c.PostForm("tier"); tier != "" {
		req.Tier = &tier
	}
	if pdfID := c.PostForm("purchased_pdf"); pdfID != "" {
		req.PDFID = &pdfID
	}
	if packageID := c.PostForm("purchased_package"); packageID != "" {
		req.PackageID = &packageID
	}
	req.PaymentMethod = c.PostForm("payment_method")
	req.TransactionNote = c.PostForm("transaction_note")

	fileHeader, err := c.FormFile("screenshot")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "screenshot is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close()

	payment, err := h.service.Create(c.Request.Context(), userIDFromContext(c), req, fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// ListMine godoc
// @Summary List the caller's payments
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments/my [get]
func (h *PaymentHandler) ListMine(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	payments, pagination, err := h.service.ListMine(c.Request.Context(), userIDFromContext(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Get godoc
// @Summary Get one payment
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"), userIDFromContext(c), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// ActiveQR godoc
// @Summary Get the active payment QR
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/qr [get]
func (h *PaymentHandler) ActiveQR(c *gin.Context) {
	qr, err := h.service.ActiveQR(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, qr, nil)
}

// ListForReview godoc
// @Summary List payments for admin review
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter" default(PENDING)
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/payments [get]
func (h *PaymentHandler) ListForReview(c *gin.Context) {
	status := models.PaymentStatus(c.DefaultQuery("status", string(models.PaymentPending)))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	payments, pagination, err := h.service.ListForReview(c.Request.Context(), status, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Screenshot godoc
// @Summary Download a payment's proof screenshot
// @Tags Payments
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {file} binary
// @Router /admin/payments/{id}/screenshot [get]
func (h *PaymentHandler) Screenshot(c *gin.Context) {
	path, err := h.service.ScreenshotPath(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.File(path)
}

// Verify godoc
// @Summary Approve or reject a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Param payload body service.VerifyPaymentRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /admin/payments/{id}/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.service.Verify(c.Request.Context(), userIDFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// BulkVerify godoc
// @Summary Apply one decision to many payments
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BulkVerifyRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /admin/payments/bulk-verify [post]
func (h *PaymentHandler) BulkVerify(c *gin.Context) {
	var req service.BulkVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.BulkVerify(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SetQR godoc
// @Summary Replace the active payment QR
// @Tags Payments
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param image formData file true "QR image"
// @Param instructions formData string false "Payment instructions"
// @Success 201 {object} response.Envelope
// @Router /admin/payments/qr [post]
func (h *PaymentHandler) SetQR(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "image is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close()

	qr, err := h.service.SetQR(c.Request.Context(), c.PostForm("instructions"), fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, qr)
}
