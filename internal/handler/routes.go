package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Grades  *GradeHandler
	Tuition *TuitionHandler
	Metrics *MetricsHandler
}

// RegisterRoutes mounts the API routes on rg.
func RegisterRoutes(rg *gin.RouterGroup, h Handlers) {
	if h.Grades != nil {
		courses := rg.Group("/courses/:courseId/grades")
		{
			courses.GET("", h.Grades.ClassSheet)
			courses.GET("/students/:studentId", h.Grades.StudentSummary)
			courses.GET("/export", h.Grades.Export)
			courses.POST("/refresh", h.Grades.Refresh)
		}
	}

	if h.Tuition != nil {
		rg.POST("/installments/:installmentId/validate", h.Tuition.ValidatePayment)
		decisions := rg.Group("/enrollments/:enrollmentId/promotion/decision")
		{
			decisions.POST("", h.Tuition.DecidePromotion)
			decisions.GET("", h.Tuition.DecisionStatus)
		}
	}

	if h.Metrics != nil {
		rg.GET("/metrics/summary", h.Metrics.Summary)
	}
}
