package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kripas1369/pdf-backend/internal/service"
	"github.com/kripas1369/pdf-backend/pkg/response"
)

// SubscriptionHandler serves plan info and the caller's subscription state.
type SubscriptionHandler struct {
	service *service.SubscriptionService
}

// NewSubscriptionHandler constructs a subscription handler.
func NewSubscriptionHandler(svc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: svc}
}

// Status godoc
// @Summary Get the caller's subscription status and message quota
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /subscriptions/me [get]
func (h *SubscriptionHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// RemainingMessages godoc
// @Summary Get today's remaining chat message allowance
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /subscriptions/messages-remaining [get]
func (h *SubscriptionHandler) RemainingMessages(c *gin.Context) {
	remaining, err := h.service.RemainingMessages(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, remaining, nil)
}

// Plans godoc
// @Summary List subscription plans
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subscriptions/plans [get]
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Plans(), nil)
}
