package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ledger-api/internal/dto"
	"github.com/noah-isme/campus-ledger-api/internal/models"
	appErrors "github.com/noah-isme/campus-ledger-api/pkg/errors"
	"github.com/noah-isme/campus-ledger-api/pkg/jobs"
)

// JobDecisionForward delivers a stored promotional decision to the backend.
const JobDecisionForward = "promotion.forward"

type tuitionSource interface {
	Installment(ctx context.Context, installmentID int64) (*models.Installment, error)
	PromotionalEnrollment(ctx context.Context, enrollmentID int64) (*models.PromotionalEnrollment, error)
	SubmitDecision(ctx context.Context, record models.DecisionRecord) error
}

type decisionStore interface {
	Insert(ctx context.Context, record *models.DecisionRecord) error
	FindByID(ctx context.Context, id string) (*models.DecisionRecord, error)
	FindByEnrollment(ctx context.Context, enrollmentID int64) (*models.DecisionRecord, error)
	ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit, maxAttempts int) ([]models.DecisionRecord, error)
	MarkForwarded(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, cause string, retryAt time.Time) error
	MarkFailed(ctx context.Context, id string, cause string, at time.Time) error
}

// ValidatePaymentRequest is a proposed amount typed in the payment form. The price per class
// always comes from the installment stored in the backend.
type ValidatePaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// DecidePromotionRequest carries the student's answer at the end of a grace period.
type DecidePromotionRequest struct {
	Decision string `json:"decision" validate:"required"`
}

// TuitionConfig tunes the tuition service.
type TuitionConfig struct {
	PromotionsEnabled  bool
	RedispatchBatch    int
	MaxForwardAttempts int
	// ForwardLease keeps a queued decision out of redispatch while a worker may still retry it.
	ForwardLease time.Duration
}

// TuitionService validates installment payments and records promotional decisions.
type TuitionService struct {
	source    tuitionSource
	decisions decisionStore
	forwarder jobEnqueuer
	amounts   *InstallmentValidator
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       TuitionConfig
	now       func() time.Time
}

// NewTuitionService constructs the service. decisions and forwarder may be nil when promotions are disabled.
func NewTuitionService(source tuitionSource, decisions decisionStore, forwarder jobEnqueuer, amounts *InstallmentValidator, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg TuitionConfig) *TuitionService {
	if amounts == nil {
		amounts = NewInstallmentValidator(DefaultMonthlyBase)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RedispatchBatch <= 0 {
		cfg.RedispatchBatch = 100
	}
	if cfg.MaxForwardAttempts <= 0 {
		cfg.MaxForwardAttempts = 10
	}
	if cfg.ForwardLease <= 0 {
		cfg.ForwardLease = 5 * time.Minute
	}
	return &TuitionService{
		source:    source,
		decisions: decisions,
		forwarder: forwarder,
		amounts:   amounts,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetForwarder attaches the queue that delivers decisions once it has been created.
func (s *TuitionService) SetForwarder(q jobEnqueuer) {
	s.forwarder = q
}

// ValidatePayment checks a proposed amount for an installment. Rule violations are part of
// the returned result; errors are reserved for bad requests and unusable installment data.
func (s *TuitionService) ValidatePayment(ctx context.Context, installmentID int64, req ValidatePaymentRequest) (*models.ValidationResult, error) {
	if installmentID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid installment id")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	start := time.Now()
	installment, err := s.source.Installment(ctx, installmentID)
	s.metrics.ObserveUpstream("installment", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	vctx := ValidationContext{
		InstallmentNumber:  installment.InstallmentNumber,
		TotalDurationUnits: installment.TotalDurationUnits,
		PricePerClass:      installment.BaseUnitAmount,
	}

	switch installment.PricingModality {
	case models.PricingMonthly:
	case models.PricingPerClass:
		if vctx.PricePerClass <= 0 {
			return nil, appErrors.Clone(appErrors.ErrDataError, "installment has no price per class")
		}
	default:
		s.logger.Warn("installment with unknown pricing modality",
			zap.Int64("installment_id", installmentID),
			zap.String("modality", string(installment.PricingModality)))
		return nil, appErrors.Clone(appErrors.ErrDataError, "installment has an unknown pricing modality")
	}

	result := s.amounts.ValidateAmountInput(req.Amount, installment.PricingModality, vctx)
	s.metrics.RecordValidation(installment.PricingModality, result.Kind)
	return &result, nil
}

// DecidePromotion validates and stores a student's decision, then schedules its delivery.
func (s *TuitionService) DecidePromotion(ctx context.Context, enrollmentID int64, req DecidePromotionRequest) (*models.DecisionRecord, error) {
	if !s.cfg.PromotionsEnabled || s.decisions == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "promotional decisions are disabled")
	}
	if enrollmentID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	decision := dto.ParseDecision(req.Decision)

	start := time.Now()
	enrollment, err := s.source.PromotionalEnrollment(ctx, enrollmentID)
	s.metrics.ObserveUpstream("promotion", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	record, err := DecidePromotionalContinuation(*enrollment, decision, s.now())
	if err != nil {
		s.metrics.RecordDecision(decision, "rejected")
		return nil, err
	}

	if s.forwarder != nil {
		lease := s.now().Add(s.cfg.ForwardLease)
		record.NextAttemptAt = &lease
	}
	start = time.Now()
	err = s.decisions.Insert(ctx, &record)
	s.metrics.ObserveDBQuery("promotion_decision_insert", time.Since(start))
	if err != nil {
		s.metrics.RecordDecision(decision, "rejected")
		if errors.Is(err, appErrors.ErrAlreadyDecided) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store decision")
	}
	s.metrics.RecordDecision(decision, "recorded")
	s.logger.Info("promotional decision recorded",
		zap.String("decision_id", record.ID),
		zap.Int64("enrollment_id", enrollmentID),
		zap.String("decision", string(decision)))

	s.enqueueForward(ctx, record.ID)
	return &record, nil
}

// DecisionStatus returns the locally stored decision of an enrollment with its delivery state.
func (s *TuitionService) DecisionStatus(ctx context.Context, enrollmentID int64) (*models.DecisionRecord, error) {
	if !s.cfg.PromotionsEnabled || s.decisions == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "promotional decisions are disabled")
	}
	if enrollmentID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment id")
	}
	return s.decisions.FindByEnrollment(ctx, enrollmentID)
}

// ForwardDecision is the job handler delivering a stored decision to the backend.
// Rejections by the backend mark the decision failed for good; transport failures are
// retried and keep the decision leased meanwhile.
func (s *TuitionService) ForwardDecision(ctx context.Context, job jobs.Job) (err error) {
	defer func() { s.metrics.RecordJob(JobDecisionForward, err) }()

	record, err := s.decisions.FindByID(ctx, job.Key)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return jobs.Permanent(err)
		}
		return err
	}
	if record.ForwardedAt != nil || record.FailedAt != nil {
		return nil
	}

	start := time.Now()
	submitErr := s.source.SubmitDecision(ctx, *record)
	s.metrics.ObserveUpstream("decision_submit", submitErr, time.Since(start))
	if submitErr != nil {
		if rejectedForGood(submitErr) {
			if failErr := s.decisions.MarkFailed(ctx, record.ID, submitErr.Error(), s.now()); failErr != nil {
				s.logger.Warn("decision rejection not recorded", zap.String("decision_id", record.ID), zap.Error(failErr))
			}
			s.logger.Warn("promotional decision rejected by backend",
				zap.String("decision_id", record.ID),
				zap.Int64("enrollment_id", record.EnrollmentID),
				zap.Error(submitErr))
			return jobs.Permanent(submitErr)
		}
		if failErr := s.decisions.RecordFailure(ctx, record.ID, submitErr.Error(), s.now().Add(s.cfg.ForwardLease)); failErr != nil {
			s.logger.Warn("decision failure not recorded", zap.String("decision_id", record.ID), zap.Error(failErr))
		}
		return submitErr
	}

	if err := s.decisions.MarkForwarded(ctx, record.ID, s.now()); err != nil {
		return fmt.Errorf("mark decision %s forwarded: %w", record.ID, err)
	}
	s.logger.Info("promotional decision forwarded", zap.String("decision_id", record.ID), zap.Int64("enrollment_id", record.EnrollmentID))
	return nil
}

// RedispatchPending re-enqueues decisions that have not reached the backend yet and whose
// lease expired. Claimed decisions are leased again before being queued. Decisions rejected
// for good or that used up MaxForwardAttempts are left for manual review.
func (s *TuitionService) RedispatchPending(ctx context.Context) (int, error) {
	if s.decisions == nil || s.forwarder == nil {
		return 0, nil
	}
	now := s.now()
	start := time.Now()
	pending, err := s.decisions.ClaimPending(ctx, now, now.Add(s.cfg.ForwardLease), s.cfg.RedispatchBatch, s.cfg.MaxForwardAttempts)
	s.metrics.ObserveDBQuery("promotion_decision_pending", time.Since(start))
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, record := range pending {
		if err := s.forwarder.Enqueue(ctx, jobs.Job{Type: JobDecisionForward, Key: record.ID}); err != nil {
			return dispatched, err
		}
		dispatched++
	}
	if dispatched > 0 {
		s.logger.Info("pending decisions redispatched", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

func (s *TuitionService) enqueueForward(ctx context.Context, id string) {
	if s.forwarder == nil {
		return
	}
	if err := s.forwarder.Enqueue(ctx, jobs.Job{Type: JobDecisionForward, Key: id}); err != nil {
		s.logger.Warn("decision forward not scheduled; left for redispatch", zap.String("decision_id", id), zap.Error(err))
	}
}

func rejectedForGood(err error) bool {
	return errors.Is(err, appErrors.ErrAlreadyDecided) ||
		errors.Is(err, appErrors.ErrValidation) ||
		errors.Is(err, appErrors.ErrNotFound)
}
