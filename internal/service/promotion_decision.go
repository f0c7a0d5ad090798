package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-ledger-api/internal/models"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

// DecidePromotionalContinuation validates a student's answer at the end of a grace period
// and returns the record to deliver to the backend. The enrollment is never modified.
func DecidePromotionalContinuation(enrollment models.PromotionalEnrollment, decision models.StudentDecision, now time.Time) (models.DecisionRecord, error) {
	if !decision.Terminal() {
		return models.DecisionRecord{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("decision must be %s or %s", models.DecisionContinue, models.DecisionDecline))
	}
	promotion := enrollment.Promotion
	if promotion == nil {
		return models.DecisionRecord{}, appErrors.ErrNoPromotion
	}
	if promotion.StudentDecision != models.DecisionPending {
		return models.DecisionRecord{}, appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("enrollment %d already decided: %s", enrollment.EnrollmentID, promotion.StudentDecision))
	}

	var billingStart *time.Time
	if promotion.BillingStartDate != nil {
		start := *promotion.BillingStartDate
		billingStart = &start
	}

	return models.DecisionRecord{
		ID:               uuid.NewString(),
		EnrollmentID:     enrollment.EnrollmentID,
		Decision:         decision,
		DecidedAt:        now.UTC(),
		FreeUnitsCount:   promotion.FreeUnitsCount,
		BillingStartDate: billingStart,
	}, nil
}
