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

// GroupHandler serves study group membership and chat.
type GroupHandler struct {
	service *service.GroupService
}

// NewGroupHandler constructs a group handler.
func NewGroupHandler(svc *service.GroupService) *GroupHandler {
	return &GroupHandler{service: svc}
}

// List godoc
// @Summary List study groups
// @Tags Groups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get one study group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create a study group
// @Tags Groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /admin/groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	group, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Join godoc
// @Summary Join a study group
// @Tags Groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 204 {object} response.Envelope
// @Router /groups/{id}/join [post]
func (h *GroupHandler) Join(c *gin.Context) {
	if err := h.service.Join(c.Request.Context(), c.Param("id"), userIDFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Leave godoc
// @Summary Leave a study group
// @Tags Groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 204 {object} response.Envelope
// @Router /groups/{id}/leave [post]
func (h *GroupHandler) Leave(c *gin.Context) {
	if err := h.service.Leave(c.Request.Context(), c.Param("id"), userIDFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Messages godoc
// @Summary Read recent group messages
// @Tags Groups
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param limit query int false "Max messages" default(50)
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/messages [get]
func (h *GroupHandler) Messages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	messages, err := h.service.Messages(c.Request.Context(), c.Param("id"), userIDFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// SendMessage godoc
// @Summary Post a message into a group
// @Tags Groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param payload body models.SendMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Router /groups/{id}/messages [post]
func (h *GroupHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	message, err := h.service.SendMessage(c.Request.Context(), c.Param("id"), userIDFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// DeleteMessage godoc
// @Summary Delete a group message
// @Tags Groups
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Param messageId path string true "Message ID"
// @Success 204 {object} response.Envelope
// @Router /groups/{id}/messages/{messageId} [delete]
func (h *GroupHandler) DeleteMessage(c *gin.Context) {
	err := h.service.DeleteMessage(c.Request.Context(), c.Param("id"), c.Param("messageId"), userIDFromContext(c), isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
