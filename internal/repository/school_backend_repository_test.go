package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ledger-api/internal/models"
	"github.com/noah-isme/campus-ledger-api/pkg/backend"
	"github.com/noah-isme/campus-ledger-api/pkg/config"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

func newBackendRepo(t *testing.T, handler http.HandlerFunc) *SchoolBackendRepository {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
	return NewSchoolBackendRepository(client)
}

func TestSchoolBackendRepositoryGradebook(t *testing.T) {
	repo := newBackendRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/calificaciones/curso/7/completo", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": {
			"modulos": [{"id": 1, "nombre": "Fórmulas", "orden": 1, "publicado": true}],
			"tareas": [{"id": 10, "modulo_id": 1, "titulo": "Práctica", "puntaje_maximo": 10}],
			"estudiantes": [{"id": 100, "nombre": "Ana", "apellido": "Pérez"}],
			"calificaciones": [{"tarea_id": 10, "estudiante_id": 100, "nota": "9"}]
		}}`))
	})

	book, err := repo.Gradebook(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), book.CourseID)
	require.Len(t, book.Records, 1)
	assert.Equal(t, 9.0, *book.Records[0].ScoreObtained)
}

func TestSchoolBackendRepositoryInstallment(t *testing.T) {
	repo := newBackendRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pagos-mensuales/cuotas/9", r.URL.Path)
		_, _ = w.Write([]byte(`{"numero_cuota": 10, "modalidad_pago": "mensual", "total_cuotas": 12}`))
	})

	installment, err := repo.Installment(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), installment.PaymentID)
	assert.Equal(t, models.PricingMonthly, installment.PricingModality)
}

func TestSchoolBackendRepositoryNotFound(t *testing.T) {
	repo := newBackendRepo(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := repo.PromotionalEnrollment(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSchoolBackendRepositoryUpstreamFailure(t *testing.T) {
	repo := newBackendRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := repo.Installment(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErrors.FromError(err).Code)
}

func TestSchoolBackendRepositorySubmitDecision(t *testing.T) {
	var received map[string]string
	repo := newBackendRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pagos-mensuales/inscripciones/5/promocion/decision", r.URL.Path)
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&received)) {
			w.WriteHeader(http.StatusNoContent)
		}
	})

	record := models.DecisionRecord{ID: "d-1", EnrollmentID: 5, Decision: models.DecisionContinue, DecidedAt: time.Now()}
	require.NoError(t, repo.SubmitDecision(context.Background(), record))
	assert.Equal(t, "continuar", received["decision"])
	assert.Equal(t, "d-1", received["decision_id"])
}

func TestSchoolBackendRepositorySubmitDecisionConflict(t *testing.T) {
	repo := newBackendRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := repo.SubmitDecision(context.Background(), models.DecisionRecord{EnrollmentID: 5, Decision: models.DecisionDecline})
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyDecided))
}
