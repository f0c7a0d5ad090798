package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-ledger-api/internal/models"
	"github.com/noah-isme/campus-ledger-api/internal/service"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
	"github.com/noah-isme/campus-ledger-api/pkg/response"
)

type tuitionService interface {
	ValidatePayment(ctx context.Context, installmentID int64, req service.ValidatePaymentRequest) (*models.ValidationResult, error)
	DecidePromotion(ctx context.Context, enrollmentID int64, req service.DecidePromotionRequest) (*models.DecisionRecord, error)
	DecisionStatus(ctx context.Context, enrollmentID int64) (*models.DecisionRecord, error)
}

// TuitionHandler exposes installment validation and promotional decisions.
type TuitionHandler struct {
	tuition tuitionService
}

// NewTuitionHandler constructs handler.
func NewTuitionHandler(tuition tuitionService) *TuitionHandler {
	return &TuitionHandler{tuition: tuition}
}

// ValidatePayment godoc
// @Summary Validate a proposed installment payment amount
// @Description Rule violations are returned as a 200 result with accepted=false and a REJECTED_* kind.
// @Tags Tuition
// @Accept json
// @Produce json
// @Param installmentId path int true "Installment ID"
// @Param payload body service.ValidatePaymentRequest true "Proposed amount"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /installments/{installmentId}/validate [post]
func (h *TuitionHandler) ValidatePayment(c *gin.Context) {
	installmentID, err := pathID(c, "installmentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ValidatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.tuition.ValidatePayment(c.Request.Context(), installmentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// DecidePromotion godoc
// @Summary Record the decision taken at the end of a promotional grace period
// @Tags Tuition
// @Accept json
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Param payload body service.DecidePromotionRequest true "CONTINUE or DECLINE"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{enrollmentId}/promotion/decision [post]
func (h *TuitionHandler) DecidePromotion(c *gin.Context) {
	enrollmentID, err := pathID(c, "enrollmentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.DecidePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.tuition.DecidePromotion(c.Request.Context(), enrollmentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// DecisionStatus godoc
// @Summary Stored promotional decision and its delivery state
// @Tags Tuition
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{enrollmentId}/promotion/decision [get]
func (h *TuitionHandler) DecisionStatus(c *gin.Context) {
	enrollmentID, err := pathID(c, "enrollmentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	record, err := h.tuition.DecisionStatus(c.Request.Context(), enrollmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}
