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

type reportService interface {
	Upsert(ctx context.Context, studentID string, date time.Time, req service.UpsertReportRequest) (*models.DailyReport, error)
	Get(ctx context.Context, studentID string, date time.Time) (*models.DailyReport, error)
}

type reportExporter interface {
	ReportPDF(ctx context.Context, studentID string, date time.Time) ([]byte, string, error)
}

type dayClock interface {
	Today() time.Time
}

// ReportHandler exposes staff daily report endpoints.
type ReportHandler struct {
	reports  reportService
	exports  reportExporter
	sessions dayClock
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService, exports reportExporter, sessions dayClock) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports, sessions: sessions}
}

// Upsert godoc
// @Summary Write or overwrite a student's daily report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Param payload body service.UpsertReportRequest true "Report payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/students/{id} [put]
func (h *ReportHandler) Upsert(c *gin.Context) {
	var req service.UpsertReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.AuthorID = claims.UserID
	}

	date, err := h.queryDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	report, err := h.reports.Upsert(c.Request.Context(), c.Param("id"), date, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Get godoc
// @Summary Get a student's daily report
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/students/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	date, err := h.queryDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Download a student's daily report as PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {file} file
// @Router /reports/students/{id}/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	date, err := h.queryDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, filename, err := h.exports.ReportPDF(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", payload)
}

func (h *ReportHandler) queryDate(c *gin.Context) (time.Time, error) {
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
