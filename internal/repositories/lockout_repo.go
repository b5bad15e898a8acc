package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stagehub/pinguard/internal/database"
	"github.com/stagehub/pinguard/internal/models"
)

// LockoutStateRepository handles the per-entity lockout rows. ApplyOutcome
// is the only path that increments failures; everything else is read-only
// or clears state.
type LockoutStateRepository struct {
	db *database.DB
}

// NewLockoutStateRepository creates a new LockoutStateRepository
func NewLockoutStateRepository(db *database.DB) *LockoutStateRepository {
	return &LockoutStateRepository{db: db}
}

// Get returns the current lockout state for an entity, or nil if no row
// exists yet. Reading never creates a row; first-attempt entities are
// represented by a default in-memory view at the service layer.
func (r *LockoutStateRepository) Get(ctx context.Context, entityType models.EntityType, entityID string) (*models.LockoutState, error) {
	query := `
		SELECT entity_type, entity_id, consecutive_failures, locked_until, last_updated_at
		FROM lockout_state
		WHERE entity_type = $1 AND entity_id = $2
	`

	var state models.LockoutState
	err := r.db.Pool.QueryRow(ctx, query, entityType, entityID).Scan(
		&state.EntityType,
		&state.EntityID,
		&state.ConsecutiveFailures,
		&state.LockedUntil,
		&state.LastUpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &state, nil
}

// ApplyOutcome atomically folds one attempt outcome into the entity's
// state and returns the new state. The row is created on first use, then
// held under SELECT ... FOR UPDATE for the duration of the transaction,
// so two concurrent calls for the same entity serialize and can never
// both observe the pre-increment count.
//
// Transition rules:
//   - success resets the counter and clears any lock
//   - an expired lock is treated as cleared before the outcome is applied
//   - a failure that reaches policy.MaxFailures sets locked_until
//   - a failure while an active lock is in place changes nothing; the
//     lock is never extended by attempts made during it
func (r *LockoutStateRepository) ApplyOutcome(ctx context.Context, entityType models.EntityType, entityID string, success bool, now time.Time, policy models.LockoutPolicy) (*models.LockoutState, error) {
	var state models.LockoutState

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO lockout_state (entity_type, entity_id, consecutive_failures, locked_until, last_updated_at)
			VALUES ($1, $2, 0, NULL, $3)
			ON CONFLICT (entity_type, entity_id) DO NOTHING
		`, entityType, entityID, now)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			SELECT consecutive_failures, locked_until
			FROM lockout_state
			WHERE entity_type = $1 AND entity_id = $2
			FOR UPDATE
		`, entityType, entityID).Scan(&state.ConsecutiveFailures, &state.LockedUntil)
		if err != nil {
			return err
		}

		state.EntityType = entityType
		state.EntityID = entityID

		if state.LockedUntil != nil {
			if now.Before(*state.LockedUntil) {
				if !success {
					// Active lock: attempts during it are rejected upstream.
					// If one reaches us anyway, leave the lock untouched.
					state.LastUpdatedAt = now
					return nil
				}
			} else {
				// Expired lock clears lazily before the outcome applies.
				state.ConsecutiveFailures = 0
				state.LockedUntil = nil
			}
		}

		if success {
			state.ConsecutiveFailures = 0
			state.LockedUntil = nil
		} else {
			state.ConsecutiveFailures++
			if state.ConsecutiveFailures >= policy.MaxFailures {
				until := now.Add(policy.LockDuration)
				state.LockedUntil = &until
			}
		}
		state.LastUpdatedAt = now

		_, err = tx.Exec(ctx, `
			UPDATE lockout_state
			SET consecutive_failures = $3, locked_until = $4, last_updated_at = $5
			WHERE entity_type = $1 AND entity_id = $2
		`, entityType, entityID, state.ConsecutiveFailures, state.LockedUntil, now)
		return err
	})
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &state, nil
}

// Reset unconditionally clears the failure counter and lock for an
// entity. Used by administrative unlock; resetting an entity with no row
// or no lock is a safe no-op.
func (r *LockoutStateRepository) Reset(ctx context.Context, entityType models.EntityType, entityID string, now time.Time) error {
	query := `
		UPDATE lockout_state
		SET consecutive_failures = 0, locked_until = NULL, last_updated_at = $3
		WHERE entity_type = $1 AND entity_id = $2
	`

	_, err := r.db.Pool.Exec(ctx, query, entityType, entityID, now)
	return database.MapPostgresError(err)
}

// ClearExpired persists the implied reset after a lock has lapsed. The
// WHERE clause keeps the write conditional on the lock still being
// expired, so racing with a concurrent failure that just re-locked the
// entity cannot clobber the fresh lock.
func (r *LockoutStateRepository) ClearExpired(ctx context.Context, entityType models.EntityType, entityID string, now time.Time) error {
	query := `
		UPDATE lockout_state
		SET consecutive_failures = 0, locked_until = NULL, last_updated_at = $3
		WHERE entity_type = $1 AND entity_id = $2
		  AND locked_until IS NOT NULL AND locked_until <= $3
	`

	_, err := r.db.Pool.Exec(ctx, query, entityType, entityID, now)
	return database.MapPostgresError(err)
}
