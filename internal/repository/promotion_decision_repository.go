package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-ledger-api/internal/models"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
)

const uniqueViolation = "23505"

const decisionColumns = `id, enrollment_id, decision, decided_at, free_units_count, billing_start_date,
forwarded_at, failed_at, next_attempt_at, forward_attempts, last_error`

// PromotionDecisionRepository is the outbox of promotional decisions awaiting delivery to the backend.
// The unique enrollment_id column keeps a second decision for the same enrollment out.
type PromotionDecisionRepository struct {
	db *sqlx.DB
}

// NewPromotionDecisionRepository constructs the repository.
func NewPromotionDecisionRepository(db *sqlx.DB) *PromotionDecisionRepository {
	return &PromotionDecisionRepository{db: db}
}

// Insert stores a new decision together with its first delivery lease. A decision already
// stored for the enrollment yields ErrAlreadyDecided.
func (r *PromotionDecisionRepository) Insert(ctx context.Context, record *models.DecisionRecord) error {
	const query = `INSERT INTO promotion_decisions (id, enrollment_id, decision, decided_at, free_units_count, billing_start_date, next_attempt_at)
VALUES (:id, :enrollment_id, :decision, :decided_at, :free_units_count, :billing_start_date, :next_attempt_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.Wrap(err, appErrors.ErrAlreadyDecided.Code, appErrors.ErrAlreadyDecided.Status,
				fmt.Sprintf("enrollment %d already has a recorded decision", record.EnrollmentID))
		}
		return fmt.Errorf("insert promotion decision: %w", err)
	}
	return nil
}

// FindByID returns a decision by id.
func (r *PromotionDecisionRepository) FindByID(ctx context.Context, id string) (*models.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM promotion_decisions WHERE id = $1`
	var record models.DecisionRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "decision not found")
		}
		return nil, fmt.Errorf("find promotion decision: %w", err)
	}
	return &record, nil
}

// FindByEnrollment returns the decision stored for an enrollment.
func (r *PromotionDecisionRepository) FindByEnrollment(ctx context.Context, enrollmentID int64) (*models.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM promotion_decisions WHERE enrollment_id = $1`
	var record models.DecisionRecord
	if err := r.db.GetContext(ctx, &record, query, enrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "decision not found")
		}
		return nil, fmt.Errorf("find promotion decision by enrollment: %w", err)
	}
	return &record, nil
}

// ClaimPending leases up to limit undelivered decisions whose lease expired at now and that
// have fewer than maxAttempts delivery attempts, setting their lease to leaseUntil. Rows locked
// by a concurrent claim are skipped. Permanently failed decisions are never returned.
func (r *PromotionDecisionRepository) ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit, maxAttempts int) ([]models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `UPDATE promotion_decisions SET next_attempt_at = $2
WHERE id IN (
    SELECT id FROM promotion_decisions
    WHERE forwarded_at IS NULL AND failed_at IS NULL AND forward_attempts < $3
      AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
    ORDER BY decided_at ASC
    LIMIT $4
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + decisionColumns
	var records []models.DecisionRecord
	if err := r.db.SelectContext(ctx, &records, query, now.UTC(), leaseUntil.UTC(), maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("claim pending promotion decisions: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].DecidedAt.Before(records[j].DecidedAt) })
	return records, nil
}

// MarkForwarded records a successful delivery and releases the lease.
func (r *PromotionDecisionRepository) MarkForwarded(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE promotion_decisions
SET forwarded_at = $2, forward_attempts = forward_attempts + 1, last_error = NULL, next_attempt_at = NULL
WHERE id = $1 AND forwarded_at IS NULL`
	return r.exec(ctx, "mark promotion decision forwarded", query, id, at.UTC())
}

// RecordFailure records a transient delivery failure and holds the lease until retryAt.
// Decisions already delivered or failed for good are left untouched.
func (r *PromotionDecisionRepository) RecordFailure(ctx context.Context, id string, cause string, retryAt time.Time) error {
	const query = `UPDATE promotion_decisions
SET forward_attempts = forward_attempts + 1, last_error = $2, next_attempt_at = $3
WHERE id = $1 AND forwarded_at IS NULL AND failed_at IS NULL`
	return r.exec(ctx, "record promotion decision failure", query, id, cause, retryAt.UTC())
}

// MarkFailed records a rejection the backend will not change its mind about. The decision
// leaves the pending set for good.
func (r *PromotionDecisionRepository) MarkFailed(ctx context.Context, id string, cause string, at time.Time) error {
	const query = `UPDATE promotion_decisions
SET failed_at = $3, forward_attempts = forward_attempts + 1, last_error = $2, next_attempt_at = NULL
WHERE id = $1 AND forwarded_at IS NULL AND failed_at IS NULL`
	return r.exec(ctx, "mark promotion decision failed", query, id, cause, at.UTC())
}

// Ping reports whether the database is reachable.
func (r *PromotionDecisionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PromotionDecisionRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "decision not found or no longer pending")
	}
	return nil
}
