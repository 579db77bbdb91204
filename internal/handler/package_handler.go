package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kripas1369/pdf-backend/internal/models"
	"github.com/kripas1369/pdf-backend/internal/service"
	appErrors "github.com/kripas1369/pdf-backend/pkg/errors"
	"github.com/kripas1369/pdf-backend/pkg/response"
)

// PackageHandler serves bundle listings for the paywall and admin CRUD.
type PackageHandler struct {
	service *service.PackageService
}

// NewPackageHandler constructs a package handler.
func NewPackageHandler(svc *service.PackageService) *PackageHandler {
	return &PackageHandler{service: svc}
}

// List godoc
// @Summary List packages
// @Tags Packages
// @Produce json
// @Param package_type query string false "Scope filter"
// @Param subject_id query string false "Subject filter"
// @Success 200 {object} response.Envelope
// @Router /packages [get]
func (h *PackageHandler) List(c *gin.Context) {
	filter := models.PackageFilter{
		Scope:     models.PackageScope(c.Query("package_type")),
		SubjectID: c.Query("subject_id"),
		TopicID:   c.Query("topic_id"),
	}
	// Students only see purchasable packages.
	if !isAdmin(c) {
		filter.ActiveOnly = true
	}
	packages, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, packages, nil)
}

// Get godoc
// @Summary Get one package
// @Tags Packages
// @Produce json
// @Param id path string true "Package ID"
// @Success 200 {object} response.Envelope
// @Router /packages/{id} [get]
func (h *PackageHandler) Get(c *gin.Context) {
	pkg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pkg, nil)
}

// Create godoc
// @Summary Create a package
// @Tags Packages
// @Accept json
// @Produce json
// @Param payload body service.CreatePackageRequest true "Package payload"
// @Success 201 {object} response.Envelope
// @Router /admin/packages [post]
func (h *PackageHandler) Create(c *gin.Context) {
	var req service.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pkg, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pkg)
}

// Update godoc
// @Summary Edit a package
// @Tags Packages
// @Accept json
// @Produce json
// @Param id path string true "Package ID"
// @Param payload body service.UpdatePackageRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /admin/packages/{id} [patch]
func (h *PackageHandler) Update(c *gin.Context) {
	var req service.UpdatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	pkg, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pkg, nil)
}

// Delete godoc
// @Summary Delete a package
// @Tags Packages
// @Param id path string true "Package ID"
// @Success 204 {object} response.Envelope
// @Router /admin/packages/{id} [delete]
func (h *PackageHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Refresh godoc
// @Summary Rebuild a package's stored membership
// @Tags Packages
// @Param id path string true "Package ID"
// @Success 204 {object} response.Envelope
// @Router /admin/packages/{id}/refresh [post]
func (h *PackageHandler) Refresh(c *gin.Context) {
	if err := h.service.RefreshMembership(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
