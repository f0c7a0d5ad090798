package models

import "time"

// PricingModality describes how a course bills its installments.
type PricingModality string

const (
	// PricingMonthly bills a flat fee per month.
	PricingMonthly PricingModality = "MONTHLY"
	// PricingPerClass bills a fee per class attended.
	PricingPerClass PricingModality = "PER_CLASS"
)

// InstallmentStatus is owned by the backend; this service only reads it.
type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "PENDING"
	InstallmentSubmitted InstallmentStatus = "SUBMITTED"
	InstallmentVerified  InstallmentStatus = "VERIFIED"
	InstallmentRejected  InstallmentStatus = "REJECTED"
)

// Installment is one scheduled payment obligation of a course enrollment.
type Installment struct {
	PaymentID          int64             `json:"payment_id"`
	CourseEnrollmentID int64             `json:"course_enrollment_id"`
	InstallmentNumber  int               `json:"installment_number"`
	AmountDue          float64           `json:"amount_due"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	PricingModality    PricingModality   `json:"pricing_modality"`
	BaseUnitAmount     float64           `json:"base_unit_amount"`
	TotalDurationUnits int               `json:"total_duration_units"`
	Status             InstallmentStatus `json:"status"`
}

// StudentDecision is the student's answer at the end of a promotional period.
type StudentDecision string

const (
	DecisionPending  StudentDecision = "PENDING"
	DecisionContinue StudentDecision = "CONTINUE"
	DecisionDecline  StudentDecision = "DECLINE"
)

// Terminal reports whether the decision can no longer change.
func (d StudentDecision) Terminal() bool {
	return d == DecisionContinue || d == DecisionDecline
}

// PromotionalGracePeriod is a span of free installments before regular billing.
type PromotionalGracePeriod struct {
	FreeUnitsCount   int             `json:"free_units_count"`
	BillingStartDate *time.Time      `json:"billing_start_date,omitempty"`
	StudentDecision  StudentDecision `json:"student_decision"`
}

// PromotionalEnrollment is a course enrollment with its optional grace period.
type PromotionalEnrollment struct {
	EnrollmentID int64                   `json:"enrollment_id"`
	CourseID     int64                   `json:"course_id"`
	StudentID    int64                   `json:"student_id"`
	Promotion    *PromotionalGracePeriod `json:"promotion,omitempty"`
}

// DecisionRecord is a validated decision awaiting or having completed delivery to the backend.
// FailedAt is set when the backend rejected the decision for good; such records are never
// redispatched. NextAttemptAt is the delivery lease: until it passes, a worker owns the record.
type DecisionRecord struct {
	ID               string          `db:"id" json:"id"`
	EnrollmentID     int64           `db:"enrollment_id" json:"enrollment_id"`
	Decision         StudentDecision `db:"decision" json:"decision"`
	DecidedAt        time.Time       `db:"decided_at" json:"decided_at"`
	FreeUnitsCount   int             `db:"free_units_count" json:"free_units_count"`
	BillingStartDate *time.Time      `db:"billing_start_date" json:"billing_start_date,omitempty"`
	ForwardedAt      *time.Time      `db:"forwarded_at" json:"forwarded_at,omitempty"`
	FailedAt         *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
	NextAttemptAt    *time.Time      `db:"next_attempt_at" json:"-"`
	ForwardAttempts  int             `db:"forward_attempts" json:"forward_attempts"`
	LastError        *string         `db:"last_error" json:"-"`
}

// ValidationKind is the outcome of an installment amount check.
type ValidationKind string

const (
	ValidationAccepted             ValidationKind = "ACCEPTED"
	ValidationRejectedBelowMinimum ValidationKind = "REJECTED_BELOW_MINIMUM"
	ValidationRejectedNotMultiple  ValidationKind = "REJECTED_NOT_MULTIPLE"
	ValidationRejectedAboveMaximum ValidationKind = "REJECTED_ABOVE_MAXIMUM"
)

// ValidationResult is the structured answer for a proposed installment amount.
type ValidationResult struct {
	Kind           ValidationKind `json:"kind"`
	Accepted       bool           `json:"accepted"`
	Message        string         `json:"message"`
	Amount         float64        `json:"amount"`
	Units          int            `json:"units,omitempty"`
	Minimum        float64        `json:"minimum,omitempty"`
	Maximum        *float64       `json:"maximum,omitempty"`
	SuggestedLower *float64       `json:"suggested_lower,omitempty"`
	SuggestedUpper *float64       `json:"suggested_upper,omitempty"`
}
