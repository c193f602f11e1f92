package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nidocare/nido-api/internal/models"
	"github.com/nidocare/nido-api/internal/service"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
	"github.com/nidocare/nido-api/pkg/response"
)

type portalService interface {
	Resolve(ctx context.Context, rawCode string) (*models.StudentSummary, error)
	Today(ctx context.Context, studentID, rawCode string) (*service.ChildToday, error)
	CheckOut(ctx context.Context, studentID, rawCode, pickedUpBy, signature string) (*models.AttendanceRecord, error)
	RegisterDevice(ctx context.Context, studentID, rawCode, pushToken string) error
}

// PortalHandler exposes the guardian-facing portal endpoints. Every route is
// authenticated by access code rather than JWT.
type PortalHandler struct {
	portal    portalService
	dashboard dashboardInvalidator
	metrics   *service.MetricsService
}

// NewPortalHandler constructs PortalHandler.
func NewPortalHandler(portal portalService, dashboard dashboardInvalidator, metrics *service.MetricsService) *PortalHandler {
	return &PortalHandler{portal: portal, dashboard: dashboard, metrics: metrics}
}

type resolveRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
}

// Resolve godoc
// @Summary Resolve an access code to a student
// @Tags Portal
// @Accept json
// @Produce json
// @Param payload body resolveRequest true "Access code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /portal/resolve [post]
func (h *PortalHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "access code is required"))
		return
	}

	summary, err := h.portal.Resolve(c.Request.Context(), req.AccessCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Today godoc
// @Summary Get the child's status and report for today
// @Tags Portal
// @Produce json
// @Param id path string true "Student ID"
// @Param code query string true "Access code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /portal/students/{id}/today [get]
func (h *PortalHandler) Today(c *gin.Context) {
	today, err := h.portal.Today(c.Request.Context(), c.Param("id"), c.Query("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, today, nil)
}

type portalCheckOutRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
	PickedUpBy string `json:"picked_up_by"`
	Signature  string `json:"signature"`
}

// CheckOut godoc
// @Summary Sign the child out
// @Tags Portal
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body portalCheckOutRequest true "Check-out payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /portal/students/{id}/check-out [post]
func (h *PortalHandler) CheckOut(c *gin.Context) {
	var req portalCheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.portal.CheckOut(c.Request.Context(), c.Param("id"), req.AccessCode, req.PickedUpBy, req.Signature)
	if err != nil {
		h.metrics.RecordTransition("check_out", "rejected")
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition("check_out", "ok")
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, record, nil)
}

type registerDeviceRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
	PushToken  string `json:"push_token" binding:"required"`
}

// RegisterDevice godoc
// @Summary Register a guardian device for push notifications
// @Tags Portal
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body registerDeviceRequest true "Device payload"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /portal/students/{id}/devices [post]
func (h *PortalHandler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.portal.RegisterDevice(c.Request.Context(), c.Param("id"), req.AccessCode, req.PushToken); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
