package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/campus-ledger-api/internal/dto"
	"github.com/noah-isme/campus-ledger-api/internal/models"
	"github.com/noah-isme/campus-ledger-api/pkg/backend"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

type backendClient interface {
	GetJSON(ctx context.Context, path string, dest interface{}) error
	PostJSON(ctx context.Context, path string, payload, dest interface{}) error
}

// SchoolBackendRepository reads grades and tuition data from the school REST backend and
// normalises every payload into the canonical models.
type SchoolBackendRepository struct {
	client backendClient
}

// NewSchoolBackendRepository constructs the repository.
func NewSchoolBackendRepository(client backendClient) *SchoolBackendRepository {
	return &SchoolBackendRepository{client: client}
}

// Gradebook returns the full gradebook of a course.
func (r *SchoolBackendRepository) Gradebook(ctx context.Context, courseID int64) (*models.Gradebook, error) {
	var payload dto.GradebookPayload
	if err := r.get(ctx, fmt.Sprintf("/api/calificaciones/curso/%d/completo", courseID), &payload); err != nil {
		return nil, translateBackendError(err, "course not found")
	}
	book := payload.Normalize()
	if book.CourseID == 0 {
		book.CourseID = courseID
	}
	return &book, nil
}

// Installment returns one installment with its pricing metadata.
func (r *SchoolBackendRepository) Installment(ctx context.Context, installmentID int64) (*models.Installment, error) {
	var payload dto.InstallmentPayload
	if err := r.get(ctx, fmt.Sprintf("/api/pagos-mensuales/cuotas/%d", installmentID), &payload); err != nil {
		return nil, translateBackendError(err, "installment not found")
	}
	installment := payload.Normalize()
	if installment.PaymentID == 0 {
		installment.PaymentID = installmentID
	}
	return &installment, nil
}

// PromotionalEnrollment returns an enrollment with its optional grace period.
func (r *SchoolBackendRepository) PromotionalEnrollment(ctx context.Context, enrollmentID int64) (*models.PromotionalEnrollment, error) {
	var payload dto.PromotionalEnrollmentPayload
	if err := r.get(ctx, fmt.Sprintf("/api/pagos-mensuales/inscripciones/%d/promocion", enrollmentID), &payload); err != nil {
		return nil, translateBackendError(err, "enrollment not found")
	}
	enrollment := payload.Normalize()
	if enrollment.EnrollmentID == 0 {
		enrollment.EnrollmentID = enrollmentID
	}
	return &enrollment, nil
}

// SubmitDecision posts a decision to the backend, which applies it authoritatively.
func (r *SchoolBackendRepository) SubmitDecision(ctx context.Context, record models.DecisionRecord) error {
	path := fmt.Sprintf("/api/pagos-mensuales/inscripciones/%d/promocion/decision", record.EnrollmentID)
	if err := r.client.PostJSON(ctx, path, dto.NewDecisionPayload(record), nil); err != nil {
		return translateBackendError(err, "enrollment not found")
	}
	return nil
}

// get decodes either a bare payload or one wrapped as {"data": {...}}.
func (r *SchoolBackendRepository) get(ctx context.Context, path string, dest interface{}) error {
	var raw json.RawMessage
	if err := r.client.GetJSON(ctx, path, &raw); err != nil {
		return err
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && bytes.HasPrefix(bytes.TrimSpace(envelope.Data), []byte("{")) {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "unexpected backend payload")
	}
	return nil
}

func translateBackendError(err error, notFound string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, backend.ErrNotFound) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, notFound)
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusConflict:
			return appErrors.Wrap(err, appErrors.ErrAlreadyDecided.Code, appErrors.ErrAlreadyDecided.Status, "backend already holds a decision")
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "request rejected by backend")
		}
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
}
