package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ledger-api/internal/middleware"
	"github.com/noah-isme/campus-ledger-api/internal/models"
	"github.com/noah-isme/campus-ledger-api/internal/service"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

type gradeServiceMock struct {
	summary    *models.CourseAverage
	sheet      *models.ClassSheet
	file       *service.ExportFile
	err        error
	exportReq  service.ExportGradesRequest
	refreshed  int64
	lastCourse int64
}

func (m *gradeServiceMock) StudentSummary(ctx context.Context, courseID, studentID int64) (*models.CourseAverage, error) {
	m.lastCourse = courseID
	return m.summary, m.err
}

func (m *gradeServiceMock) ClassSheet(ctx context.Context, courseID int64) (*models.ClassSheet, error) {
	m.lastCourse = courseID
	return m.sheet, m.err
}

func (m *gradeServiceMock) Export(ctx context.Context, req service.ExportGradesRequest) (*service.ExportFile, error) {
	m.exportReq = req
	return m.file, m.err
}

func (m *gradeServiceMock) Refresh(ctx context.Context, courseID int64) error {
	m.refreshed = courseID
	return m.err
}

type tuitionServiceMock struct {
	result    *models.ValidationResult
	record    *models.DecisionRecord
	err       error
	validated service.ValidatePaymentRequest
	decided   service.DecidePromotionRequest
}

func (m *tuitionServiceMock) ValidatePayment(ctx context.Context, installmentID int64, req service.ValidatePaymentRequest) (*models.ValidationResult, error) {
	m.validated = req
	return m.result, m.err
}

func (m *tuitionServiceMock) DecidePromotion(ctx context.Context, enrollmentID int64, req service.DecidePromotionRequest) (*models.DecisionRecord, error) {
	m.decided = req
	return m.record, m.err
}

func (m *tuitionServiceMock) DecisionStatus(ctx context.Context, enrollmentID int64) (*models.DecisionRecord, error) {
	return m.record, m.err
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	RegisterRoutes(r.Group("/api/v1"), h)
	return r
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestGradeHandlerStudentSummary(t *testing.T) {
	avg := 8.5
	svc := &gradeServiceMock{summary: &models.CourseAverage{CourseID: 7, StudentID: 100, GlobalAverage: &avg, Visible: true, Status: models.GradeStatusApproved}}
	r := newRouter(Handlers{Grades: NewGradeHandler(svc)})

	w := perform(r, http.MethodGet, "/api/v1/courses/7/grades/students/100", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	var summary models.CourseAverage
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	require.NotNil(t, summary.GlobalAverage)
	assert.Equal(t, 8.5, *summary.GlobalAverage)
	assert.Contains(t, env.Meta, "processing_time_ms")
	assert.Equal(t, int64(7), svc.lastCourse)
}

func TestGradeHandlerRejectsBadIDs(t *testing.T) {
	svc := &gradeServiceMock{}
	r := newRouter(Handlers{Grades: NewGradeHandler(svc)})

	for _, path := range []string{"/api/v1/courses/abc/grades", "/api/v1/courses/0/grades", "/api/v1/courses/7/grades/students/-1"} {
		w := perform(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		env := decode(t, w)
		require.NotNil(t, env.Error, path)
		assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
	}
	assert.Zero(t, svc.lastCourse)
}

func TestGradeHandlerPropagatesServiceErrors(t *testing.T) {
	svc := &gradeServiceMock{err: appErrors.Clone(appErrors.ErrUpstream, "school backend unavailable")}
	r := newRouter(Handlers{Grades: NewGradeHandler(svc)})

	w := perform(r, http.MethodGet, "/api/v1/courses/7/grades/students/100", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGradeHandlerClassSheetMeta(t *testing.T) {
	svc := &gradeServiceMock{sheet: &models.ClassSheet{CourseID: 7, Students: []models.CourseAverage{{StudentID: 1}, {StudentID: 2}}, DataIssues: 1}}
	r := newRouter(Handlers{Grades: NewGradeHandler(svc)})

	w := perform(r, http.MethodGet, "/api/v1/courses/7/grades", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, float64(2), env.Meta["students"])
	assert.Equal(t, float64(1), env.Meta["data_issues"])
}

func TestGradeHandlerExport(t *testing.T) {
	svc := &gradeServiceMock{file: &service.ExportFile{Filename: "course-7-grades.csv", ContentType: "text/csv", Body: []byte("Student,Average\n")}}
	r := newRouter(Handlers{Grades: NewGradeHandler(svc)})

	w := perform(r, http.MethodGet, "/api/v1/courses/7/grades/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", svc.exportReq.Format)
	assert.Equal(t, int64(7), svc.exportReq.CourseID)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "course-7-grades.csv")
	assert.Equal(t, "Student,Average\n", w.Body.String())

	w = perform(r, http.MethodGet, "/api/v1/courses/7/grades/export?format=PDF", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf", svc.exportReq.Format)
}

func TestGradeHandlerRefresh(t *testing.T) {
	svc := &gradeServiceMock{}
	r := newRouter(Handlers{Grades: NewGradeHandler(svc)})

	w := perform(r, http.MethodPost, "/api/v1/courses/7/grades/refresh", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(7), svc.refreshed)
}

func TestTuitionHandlerValidatePayment(t *testing.T) {
	upper := 270.0
	svc := &tuitionServiceMock{result: &models.ValidationResult{
		Kind:           models.ValidationRejectedNotMultiple,
		Amount:         100,
		SuggestedLower: &upper,
	}}
	r := newRouter(Handlers{Tuition: NewTuitionHandler(svc)})

	w := perform(r, http.MethodPost, "/api/v1/installments/12/validate", `{"amount":"100"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", svc.validated.Amount)
	var result models.ValidationResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.Equal(t, models.ValidationRejectedNotMultiple, result.Kind)
	assert.False(t, result.Accepted)
}

func TestTuitionHandlerValidatePaymentBadPayload(t *testing.T) {
	r := newRouter(Handlers{Tuition: NewTuitionHandler(&tuitionServiceMock{})})

	w := perform(r, http.MethodPost, "/api/v1/installments/12/validate", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTuitionHandlerDecidePromotion(t *testing.T) {
	svc := &tuitionServiceMock{record: &models.DecisionRecord{ID: "d-1", EnrollmentID: 5, Decision: models.DecisionContinue, DecidedAt: time.Now().UTC()}}
	r := newRouter(Handlers{Tuition: NewTuitionHandler(svc)})

	w := perform(r, http.MethodPost, "/api/v1/enrollments/5/promotion/decision", `{"decision":"CONTINUE"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "CONTINUE", svc.decided.Decision)

	svc.err = appErrors.Clone(appErrors.ErrAlreadyDecided, "enrollment 5 already has a recorded decision")
	w = perform(r, http.MethodPost, "/api/v1/enrollments/5/promotion/decision", `{"decision":"DECLINE"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_DECIDED", env.Error.Code)
}

func TestTuitionHandlerDecisionStatus(t *testing.T) {
	svc := &tuitionServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "decision not found")}
	r := newRouter(Handlers{Tuition: NewTuitionHandler(svc)})

	w := perform(r, http.MethodGet, "/api/v1/enrollments/5/promotion/decision", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerSummaryAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordValidation(models.PricingMonthly, models.ValidationAccepted)
	h := NewMetricsHandler(metrics, nil)
	r := newRouter(Handlers{Metrics: h})
	r.GET("/metrics", h.Prometheus)

	w := perform(r, http.MethodGet, "/api/v1/metrics/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.SystemMetrics
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &snapshot))
	assert.NotEmpty(t, snapshot.Validations)

	w = perform(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "installment_validations_total")
}

func TestMetricsHandlerReady(t *testing.T) {
	healthy := pingerFunc(func(context.Context) error { return nil })
	broken := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ready", NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy}).Ready)
	r.GET("/ready-broken", NewMetricsHandler(nil, map[string]Pinger{"postgres": healthy, "redis": broken}).Ready)

	w := perform(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodGet, "/ready-broken", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
