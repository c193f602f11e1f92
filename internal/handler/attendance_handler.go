package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nidocare/nido-api/internal/models"
	"github.com/nidocare/nido-api/internal/service"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
	"github.com/nidocare/nido-api/pkg/response"
)

type attendanceSessions interface {
	CheckIn(ctx context.Context, req service.CheckInRequest) (*models.AttendanceRecord, error)
	CheckOut(ctx context.Context, req service.CheckOutRequest) (*models.AttendanceRecord, error)
	Status(ctx context.Context, studentID string) (*models.SessionStatus, error)
	Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error)
	History(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
	Summary(ctx context.Context, date time.Time) (*models.DaySummary, error)
	Today() time.Time
}

type rosterExporter interface {
	RosterCSV(ctx context.Context, date time.Time) ([]byte, string, error)
}

type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// AttendanceHandler exposes staff attendance endpoints.
type AttendanceHandler struct {
	sessions  attendanceSessions
	exports   rosterExporter
	dashboard dashboardInvalidator
	metrics   *service.MetricsService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(sessions attendanceSessions, exports rosterExporter, dashboard dashboardInvalidator, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{sessions: sessions, exports: exports, dashboard: dashboard, metrics: metrics}
}

// CheckIn godoc
// @Summary Check a student in
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.StaffID = claims.UserID
	}

	record, err := h.sessions.CheckIn(c.Request.Context(), req)
	if err != nil {
		h.metrics.RecordTransition("check_in", "rejected")
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition("check_in", "ok")
	h.dashboard.Invalidate(c.Request.Context())
	response.Created(c, record)
}

// CheckOut godoc
// @Summary Check a student out
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CheckOutRequest true "Check-out payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/check-out [post]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	var req service.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.sessions.CheckOut(c.Request.Context(), req)
	if err != nil {
		h.metrics.RecordTransition("check_out", "rejected")
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition("check_out", "ok")
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, record, nil)
}

// Status godoc
// @Summary Get a student's session state for today
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/students/{id}/status [get]
func (h *AttendanceHandler) Status(c *gin.Context) {
	status, err := h.sessions.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Roster godoc
// @Summary List the day's roster
// @Tags Attendance
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/roster [get]
func (h *AttendanceHandler) Roster(c *gin.Context) {
	date, err := h.queryDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.sessions.Roster(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// History godoc
// @Summary List a student's attendance history
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/students/{id}/history [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
			return
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
			return
		}
		to = &parsed
	}

	rows, err := h.sessions.History(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Summary godoc
// @Summary Aggregate presence counts for a date
// @Tags Attendance
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	date, err := h.queryDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.sessions.Summary(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ExportRoster godoc
// @Summary Download the day's roster as CSV
// @Tags Attendance
// @Produce text/csv
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {file} file
// @Router /attendance/roster/export [get]
func (h *AttendanceHandler) ExportRoster(c *gin.Context) {
	date, err := h.queryDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, filename, err := h.exports.RosterCSV(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", payload)
}

func (h *AttendanceHandler) queryDate(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return h.sessions.Today(), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return parsed, nil
}
