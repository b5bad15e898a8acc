package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stagehub/pinguard/internal/models"
	pkglogger "github.com/stagehub/pinguard/pkg/logger"
)

// retryBackoff is the pause before the single retry of a failed storage
// call. Anything still failing after that is surfaced as unavailable.
const retryBackoff = 100 * time.Millisecond

// LockoutStore defines the lockout state operations the gateway needs
type LockoutStore interface {
	Get(ctx context.Context, entityType models.EntityType, entityID string) (*models.LockoutState, error)
	ApplyOutcome(ctx context.Context, entityType models.EntityType, entityID string, success bool, now time.Time, policy models.LockoutPolicy) (*models.LockoutState, error)
	Reset(ctx context.Context, entityType models.EntityType, entityID string, now time.Time) error
	ClearExpired(ctx context.Context, entityType models.EntityType, entityID string, now time.Time) error
}

// AttemptLedger defines the append-only attempt trail operations
type AttemptLedger interface {
	Append(ctx context.Context, attempt *models.AttemptRecord) error
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error)
}

// AdminActionLog records administrative interventions
type AdminActionLog interface {
	Create(ctx context.Context, action *models.AdminAction) error
}

// LockAlerter notifies operators when an entity crosses the lock
// threshold. Implementations must be best-effort; the attempt path never
// waits on them.
type LockAlerter interface {
	NotifyLockout(ctx context.Context, entity models.SecurityEntity, lockedUntil time.Time)
}

// SecurityService is the façade used by login flows: CheckStatus before
// verifying the PIN, RecordAttempt with the verification outcome, and
// Unlock as the administrative escape hatch.
type SecurityService struct {
	states   LockoutStore
	attempts AttemptLedger
	actions  AdminActionLog
	alerter  LockAlerter
	policy   models.LockoutPolicy
	failOpen bool
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewSecurityService creates a new SecurityService. alerter may be nil.
func NewSecurityService(
	states LockoutStore,
	attempts AttemptLedger,
	actions AdminActionLog,
	alerter LockAlerter,
	policy models.LockoutPolicy,
	failOpen bool,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *SecurityService {
	return &SecurityService{
		states:   states,
		attempts: attempts,
		actions:  actions,
		alerter:  alerter,
		policy:   policy,
		failOpen: failOpen,
		logger:   logger,
		audit:    audit,
	}
}

// CheckStatus evaluates the current lock state without recording
// anything. When a previously stored lock has lapsed, the implied reset
// is persisted opportunistically so subsequent reads stay cheap; losing
// that write is harmless because every read re-evaluates.
func (s *SecurityService) CheckStatus(ctx context.Context, entityType models.EntityType, entityID string) (models.SecurityStatus, error) {
	now := time.Now()

	var state *models.LockoutState
	err := s.withRetry(ctx, func() error {
		var err error
		state, err = s.states.Get(ctx, entityType, entityID)
		return err
	})
	if err != nil {
		s.logger.Error("failed to load lockout state",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
		return s.storageFailureStatus()
	}

	status := EvaluatePolicy(state, now, s.policy)

	if lockExpired(state, now) {
		if err := s.states.ClearExpired(ctx, entityType, entityID, now); err != nil {
			s.logger.Warn("failed to clear expired lock",
				slog.String("entity_type", string(entityType)),
				slog.String("entity_id", entityID),
				slog.Any("error", err))
		}
	}

	return status, nil
}

// RecordAttempt is the only mutating, user-triggered entry point. It
// appends the ledger row (never skipped, even while locked), folds the
// outcome into the lockout state, and returns the fresh status with a
// human-readable message.
//
// Returns models.ErrEntityLocked when the entity was already locked
// before this call; the counter and lock are left untouched in that case.
func (s *SecurityService) RecordAttempt(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error) {
	now := time.Now()

	attempt := &models.AttemptRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Success:    success,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		OccurredAt: now,
	}
	err := s.withRetry(ctx, func() error {
		return s.attempts.Append(ctx, attempt)
	})
	if err != nil {
		s.logger.Error("failed to append attempt record",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
		return s.storageFailureAttempt(success)
	}

	var pre *models.LockoutState
	err = s.withRetry(ctx, func() error {
		var err error
		pre, err = s.states.Get(ctx, entityType, entityID)
		return err
	})
	if err != nil {
		s.logger.Error("failed to load lockout state",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
		return s.storageFailureAttempt(success)
	}

	preStatus := EvaluatePolicy(pre, now, s.policy)
	if preStatus.IsLocked {
		// checkStatus should have short-circuited this call; refusing
		// here keeps racing clients from touching the counter.
		s.audit.LogPINAttempt(pkglogger.SecurityEvent{
			EntityType: string(entityType),
			EntityID:   entityID,
			IPAddress:  ipAddress,
			UserAgent:  userAgent,
			Success:    false,
			Reason:     "attempt while locked",
		})
		return preStatus, lockedMessage(*preStatus.LockEndTime), models.ErrEntityLocked
	}

	var state *models.LockoutState
	err = s.withRetry(ctx, func() error {
		var err error
		state, err = s.states.ApplyOutcome(ctx, entityType, entityID, success, now, s.policy)
		return err
	})
	if err != nil {
		s.logger.Error("failed to apply attempt outcome",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
		return s.storageFailureAttempt(success)
	}

	status := EvaluatePolicy(state, now, s.policy)

	s.audit.LogPINAttempt(pkglogger.SecurityEvent{
		EntityType: string(entityType),
		EntityID:   entityID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Success:    success,
	})

	switch {
	case success:
		return status, "ok", nil
	case status.IsLocked:
		s.logger.Warn("entity locked after repeated failures",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Int("failures", state.ConsecutiveFailures),
			slog.Time("locked_until", *status.LockEndTime))
		s.notifyLockout(models.SecurityEntity{Type: entityType, ID: entityID}, *status.LockEndTime)
		return status, lockedMessage(*status.LockEndTime), nil
	default:
		return status, fmt.Sprintf("invalid PIN, %d attempts remaining", status.RemainingAttempts), nil
	}
}

// Unlock unconditionally clears an entity's lock and failure counter.
// Calling it on an already-unlocked entity is a safe no-op. The action is
// recorded in the admin action log, not in the attempt ledger.
func (s *SecurityService) Unlock(ctx context.Context, entityType models.EntityType, entityID, actor, ipAddress string) error {
	now := time.Now()

	err := s.withRetry(ctx, func() error {
		return s.states.Reset(ctx, entityType, entityID, now)
	})
	if err != nil {
		s.logger.Error("failed to reset lockout state",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
		return models.ErrStorageUnavailable
	}

	action := &models.AdminAction{
		Action:     models.AdminActionUnlock,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		IPAddress:  ipAddress,
	}
	if err := s.actions.Create(ctx, action); err != nil {
		// The unlock itself succeeded; losing the audit row is logged
		// but does not fail the operation.
		s.logger.Error("failed to record admin unlock",
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
	}

	s.audit.LogUnlock(string(entityType), entityID, actor, ipAddress)
	return nil
}

// GetAttemptHistory returns the audit trail for an entity, newest first
func (s *SecurityService) GetAttemptHistory(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.attempts.ListByEntity(ctx, entityType, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt history: %w", err)
	}

	return records, nil
}

// withRetry runs op and retries it once after a short pause; transient
// storage hiccups (lock contention timeouts, connection resets) get one
// second chance before the fail-closed policy kicks in.
func (s *SecurityService) withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryBackoff), 1), ctx)
	return backoff.Retry(op, b)
}

// storageFailureStatus implements the fail-closed bias for reads: an
// unreachable store reports the entity as locked rather than granting
// unlimited retries. SECURITY_FAIL_OPEN flips this for deployments that
// prefer login availability during outages.
func (s *SecurityService) storageFailureStatus() (models.SecurityStatus, error) {
	if s.failOpen {
		return models.SecurityStatus{IsLocked: false, RemainingAttempts: s.policy.MaxFailures}, nil
	}
	return models.SecurityStatus{IsLocked: true, RemainingAttempts: 0}, models.ErrStorageUnavailable
}

func (s *SecurityService) storageFailureAttempt(success bool) (models.SecurityStatus, string, error) {
	if s.failOpen {
		status := models.SecurityStatus{IsLocked: false, RemainingAttempts: s.policy.MaxFailures}
		if success {
			return status, "ok", nil
		}
		return status, fmt.Sprintf("invalid PIN, %d attempts remaining", status.RemainingAttempts), nil
	}
	return models.SecurityStatus{IsLocked: true, RemainingAttempts: 0},
		"security check unavailable, try again later",
		models.ErrStorageUnavailable
}

func (s *SecurityService) notifyLockout(entity models.SecurityEntity, until time.Time) {
	if s.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.alerter.NotifyLockout(ctx, entity, until)
	}()
}

func lockedMessage(until time.Time) string {
	minutes := int(time.Until(until).Minutes()) + 1
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account locked until %s, %d minutes remaining", until.Format("15:04"), minutes)
}
