package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-ledger-api/internal/middleware"
	"github.com/noah-isme/campus-ledger-api/internal/models"
	"github.com/noah-isme/campus-ledger-api/internal/service"
	"github.com/noah-isme/campus-ledger-api/pkg/response"
)

type courseGradeService interface {
	StudentSummary(ctx context.Context, courseID, studentID int64) (*models.CourseAverage, error)
	ClassSheet(ctx context.Context, courseID int64) (*models.ClassSheet, error)
	Export(ctx context.Context, req service.ExportGradesRequest) (*service.ExportFile, error)
	Refresh(ctx context.Context, courseID int64) error
}

// GradeHandler exposes course grade averages.
type GradeHandler struct {
	grades courseGradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades courseGradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// StudentSummary godoc
// @Summary Course average of one student
// @Tags Grades
// @Produce json
// @Param courseId path int true "Course ID"
// @Param studentId path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /courses/{courseId}/grades/students/{studentId} [get]
func (h *GradeHandler) StudentSummary(c *gin.Context) {
	courseID, err := pathID(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	studentID, err := pathID(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.grades.StudentSummary(c.Request.Context(), courseID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, middleware.ExtractMeta(c))
}

// ClassSheet godoc
// @Summary Course averages of every student
// @Tags Grades
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/grades [get]
func (h *GradeHandler) ClassSheet(c *gin.Context) {
	courseID, err := pathID(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	sheet, err := h.grades.ClassSheet(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "students", len(sheet.Students))
	middleware.SetMeta(c, "data_issues", sheet.DataIssues)
	response.JSON(c, http.StatusOK, sheet, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download the class grade sheet
// @Tags Grades
// @Produce text/csv
// @Produce application/pdf
// @Param courseId path int true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 503 {object} response.Envelope
// @Router /courses/{courseId}/grades/export [get]
func (h *GradeHandler) Export(c *gin.Context) {
	courseID, err := pathID(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	file, err := h.grades.Export(c.Request.Context(), service.ExportGradesRequest{CourseID: courseID, Format: format})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Refresh godoc
// @Summary Drop the cached gradebook and refetch it in the background
// @Tags Grades
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 202 {object} response.Envelope
// @Router /courses/{courseId}/grades/refresh [post]
func (h *GradeHandler) Refresh(c *gin.Context) {
	courseID, err := pathID(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grades.Refresh(c.Request.Context(), courseID); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"course_id": courseID, "status": "refreshing"})
}
