package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nidocare/nido-api/internal/middleware"
	"github.com/nidocare/nido-api/internal/models"
	"github.com/nidocare/nido-api/internal/service"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type fakeReports struct {
	report     *models.DailyReport
	upsertErr  error
	getErr     error
	lastID     string
	lastDate   time.Time
	lastUpsert service.UpsertReportRequest
}

func (f *fakeReports) Upsert(_ context.Context, studentID string, date time.Time, req service.UpsertReportRequest) (*models.DailyReport, error) {
	f.lastID = studentID
	f.lastDate = date
	f.lastUpsert = req
	return f.report, f.upsertErr
}

func (f *fakeReports) Get(_ context.Context, studentID string, date time.Time) (*models.DailyReport, error) {
	f.lastID = studentID
	f.lastDate = date
	return f.report, f.getErr
}

func TestReportHandlerUpsert(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reports := &fakeReports{report: &models.DailyReport{ID: "r1", StudentID: "s1"}}
	handler := NewReportHandler(reports, &fakeExporter{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Request = httptest.NewRequest(http.MethodPut, "/reports/students/s1",
		strings.NewReader(`{"meals":"Almorzó bien","nap":"Durmió 1 hora","activities":"Pintura","mood":"Feliz"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "staff-1"})

	handler.Upsert(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", reports.lastID)
	assert.Equal(t, "staff-1", reports.lastUpsert.AuthorID)
	// no explicit date falls back to the current school day
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), reports.lastDate)
}

func TestReportHandlerUpsertRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReports{}, &fakeExporter{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Request = httptest.NewRequest(http.MethodPut, "/reports/students/s1?date=hoy",
		strings.NewReader(`{"meals":"x","nap":"x","activities":"x","mood":"x"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Upsert(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHandlerGetMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReports{getErr: appErrors.ErrNotFound}, &fakeExporter{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/students/s1", nil)

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exporter := &fakeExporter{payload: []byte("%PDF-1.3"), filename: "reporte_s1_2026-03-02.pdf"}
	handler := NewReportHandler(&fakeReports{}, exporter, &fakeSessions{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/students/s1/export?date=2026-03-02", nil)

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=reporte_s1_2026-03-02.pdf", rec.Header().Get("Content-Disposition"))
}
