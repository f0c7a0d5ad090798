package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/campus-ledger-api/internal/models"
)

// InstallmentPayload mirrors GET /api/pagos-mensuales/cuotas/:id.
type InstallmentPayload struct {
	ID                 FlexID    `json:"id"`
	InscripcionCursoID FlexID    `json:"inscripcion_curso_id"`
	NumeroCuota        FlexID    `json:"numero_cuota"`
	Monto              FlexFloat `json:"monto"`
	FechaVencimiento   FlexTime  `json:"fecha_vencimiento"`
	ModalidadPago      string    `json:"modalidad_pago"`
	MontoBase          FlexFloat `json:"monto_base"`
	PrecioPorClase     FlexFloat `json:"precio_por_clase"`
	DuracionTotal      FlexID    `json:"duracion_total"`
	TotalCuotas        FlexID    `json:"total_cuotas"`
	Estado             string    `json:"estado"`
}

// Normalize converts the payload into the canonical installment.
func (p InstallmentPayload) Normalize() models.Installment {
	duration := int(p.DuracionTotal)
	if duration == 0 {
		duration = int(p.TotalCuotas)
	}
	modality := ParseModality(p.ModalidadPago)
	base := p.MontoBase.Value
	if modality == models.PricingPerClass && p.PrecioPorClase.Valid {
		base = p.PrecioPorClase.Value
	}
	return models.Installment{
		PaymentID:          int64(p.ID),
		CourseEnrollmentID: int64(p.InscripcionCursoID),
		InstallmentNumber:  int(p.NumeroCuota),
		AmountDue:          p.Monto.Value,
		DueDate:            p.FechaVencimiento.Ptr(),
		PricingModality:    modality,
		BaseUnitAmount:     base,
		TotalDurationUnits: duration,
		Status:             parseInstallmentStatus(p.Estado),
	}
}

// PromotionPayload is the grace period block of an enrollment.
type PromotionPayload struct {
	ClasesGratis       FlexID   `json:"clases_gratis"`
	MesesGratis        FlexID   `json:"meses_gratis"`
	FechaInicioCobro   FlexTime `json:"fecha_inicio_cobro"`
	DecisionEstudiante string   `json:"decision_estudiante"`
}

// PromotionalEnrollmentPayload mirrors GET /api/pagos-mensuales/inscripciones/:id/promocion.
type PromotionalEnrollmentPayload struct {
	InscripcionID FlexID            `json:"inscripcion_id"`
	CursoID       FlexID            `json:"curso_id"`
	EstudianteID  FlexID            `json:"estudiante_id"`
	Promocion     *PromotionPayload `json:"promocion"`
}

// Normalize converts the payload into the canonical enrollment.
func (p PromotionalEnrollmentPayload) Normalize() models.PromotionalEnrollment {
	enrollment := models.PromotionalEnrollment{
		EnrollmentID: int64(p.InscripcionID),
		CourseID:     int64(p.CursoID),
		StudentID:    int64(p.EstudianteID),
	}
	if p.Promocion == nil {
		return enrollment
	}
	free := int(p.Promocion.ClasesGratis)
	if free == 0 {
		free = int(p.Promocion.MesesGratis)
	}
	enrollment.Promotion = &models.PromotionalGracePeriod{
		FreeUnitsCount:   free,
		BillingStartDate: p.Promocion.FechaInicioCobro.Ptr(),
		StudentDecision:  ParseDecision(p.Promocion.DecisionEstudiante),
	}
	return enrollment
}

// DecisionPayload is POSTed to the backend, which applies the decision authoritatively.
type DecisionPayload struct {
	DecisionID    string `json:"decision_id"`
	Decision      string `json:"decision"`
	FechaDecision string `json:"fecha_decision"`
}

// NewDecisionPayload renders a decision record in the backend's vocabulary.
func NewDecisionPayload(record models.DecisionRecord) DecisionPayload {
	decision := "continuar"
	if record.Decision == models.DecisionDecline {
		decision = "rechazar"
	}
	return DecisionPayload{
		DecisionID:    record.ID,
		Decision:      decision,
		FechaDecision: record.DecidedAt.UTC().Format(time.RFC3339),
	}
}

// ParseModality maps backend and panel spellings to a pricing modality.
// Unknown values return an empty modality.
func ParseModality(raw string) models.PricingModality {
	switch normalizeToken(raw) {
	case "mensual", "monthly", "mensualidad":
		return models.PricingMonthly
	case "por_clase", "per_class", "clase", "clases":
		return models.PricingPerClass
	default:
		return ""
	}
}

// ParseDecision maps backend and panel spellings to a student decision.
// Empty values are pending; unknown values are returned upper-cased for validation to reject.
func ParseDecision(raw string) models.StudentDecision {
	switch normalizeToken(raw) {
	case "", "pendiente", "pending":
		return models.DecisionPending
	case "continuar", "continue", "continua":
		return models.DecisionContinue
	case "rechazar", "decline", "declinar", "no_continuar":
		return models.DecisionDecline
	default:
		return models.StudentDecision(strings.ToUpper(strings.TrimSpace(raw)))
	}
}

func parseInstallmentStatus(raw string) models.InstallmentStatus {
	switch normalizeToken(raw) {
	case "enviado", "submitted", "en_revision":
		return models.InstallmentSubmitted
	case "verificado", "verified", "pagado":
		return models.InstallmentVerified
	case "rechazado", "rejected":
		return models.InstallmentRejected
	default:
		return models.InstallmentPending
	}
}

func normalizeToken(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "_", " ", "_").Replace(token)
}
