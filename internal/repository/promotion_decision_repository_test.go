package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-ledger-api/internal/models"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

var decisionRowColumns = []string{"id", "enrollment_id", "decision", "decided_at", "free_units_count",
	"billing_start_date", "forwarded_at", "failed_at", "next_attempt_at", "forward_attempts", "last_error"}

func newDecisionRepoMock(t *testing.T) (*PromotionDecisionRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewPromotionDecisionRepository(sqlxDB), mock, func() {
		sqlxDB.Close()
	}
}

func sampleDecision() *models.DecisionRecord {
	return &models.DecisionRecord{
		ID:             "7d0c8f3e-3b9f-4d62-9d0a-9b1a3f0c2b11",
		EnrollmentID:   5,
		Decision:       models.DecisionContinue,
		DecidedAt:      time.Date(2024, 3, 30, 15, 0, 0, 0, time.UTC),
		FreeUnitsCount: 2,
	}
}

func TestPromotionDecisionRepositoryInsert(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	record := sampleDecision()
	lease := time.Date(2024, 3, 30, 15, 5, 0, 0, time.UTC)
	record.NextAttemptAt = &lease
	mock.ExpectExec("INSERT INTO promotion_decisions").
		WithArgs(record.ID, int64(5), "CONTINUE", sqlmock.AnyArg(), int64(2), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionDecisionRepositoryInsertDuplicate(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO promotion_decisions").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Insert(context.Background(), sampleDecision())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyDecided))
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestPromotionDecisionRepositoryFindByEnrollment(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	decided := time.Date(2024, 3, 30, 15, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(decisionRowColumns).
		AddRow("d-1", int64(5), "DECLINE", decided, int64(1), nil, nil, nil, nil, int64(0), nil)
	mock.ExpectQuery("SELECT id, enrollment_id").WithArgs(int64(5)).WillReturnRows(rows)

	record, err := repo.FindByEnrollment(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDecline, record.Decision)
	assert.Nil(t, record.ForwardedAt)
	assert.Nil(t, record.LastError)
}

func TestPromotionDecisionRepositoryFindByIDMissing(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, enrollment_id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPromotionDecisionRepositoryClaimPending(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	now := time.Date(2024, 3, 30, 16, 0, 0, 0, time.UTC)
	lease := now.Add(5 * time.Minute)
	decided := time.Date(2024, 3, 30, 15, 0, 0, 0, time.UTC)
	cause := "backend unavailable"
	rows := sqlmock.NewRows(decisionRowColumns).
		AddRow("d-2", int64(6), "DECLINE", decided.Add(time.Minute), int64(2), nil, nil, nil, lease, int64(0), nil).
		AddRow("d-1", int64(5), "CONTINUE", decided, int64(2), nil, nil, nil, lease, int64(1), cause)
	mock.ExpectQuery(`(?s)UPDATE promotion_decisions SET next_attempt_at = \$2.*failed_at IS NULL.*FOR UPDATE SKIP LOCKED.*RETURNING`).
		WithArgs(now, lease, 10, 100).
		WillReturnRows(rows)

	records, err := repo.ClaimPending(context.Background(), now, lease, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "d-1", records[0].ID)
	require.NotNil(t, records[0].LastError)
	assert.Equal(t, cause, *records[0].LastError)
	assert.Equal(t, 1, records[0].ForwardAttempts)
	require.NotNil(t, records[0].NextAttemptAt)
	assert.True(t, lease.Equal(*records[0].NextAttemptAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionDecisionRepositoryMarkForwarded(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`(?s)SET forwarded_at = \$2.*next_attempt_at = NULL.*WHERE id = \$1 AND forwarded_at IS NULL`).
		WithArgs("d-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkForwarded(context.Background(), "d-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionDecisionRepositoryRecordFailureKeepsDeliveredRows(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	retryAt := time.Date(2024, 3, 30, 16, 5, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)SET forward_attempts = forward_attempts \+ 1, last_error = \$2, next_attempt_at = \$3.*forwarded_at IS NULL AND failed_at IS NULL`).
		WithArgs("d-9", "timeout", retryAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.RecordFailure(context.Background(), "d-9", "timeout", retryAt)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromotionDecisionRepositoryMarkFailed(t *testing.T) {
	repo, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	at := time.Date(2024, 3, 30, 16, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)SET failed_at = \$3.*next_attempt_at = NULL.*forwarded_at IS NULL AND failed_at IS NULL`).
		WithArgs("d-3", "enrollment already decided", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkFailed(context.Background(), "d-3", "enrollment already decided", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "campus")
	var dest map[string]string

	err := repo.Get(context.Background(), "grades:course:7", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "grades:course:7", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "grades:course:7"))
	assert.Equal(t, "campus:grades:course:7", repo.key("grades:course:7"))
}
