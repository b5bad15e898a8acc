package services

import (
	"time"

	"github.com/stagehub/pinguard/internal/models"
)

// EvaluatePolicy is the single place lock/no-lock semantics are decided.
// It is a pure function of the stored state, the clock, and the policy:
// no side effects, no error cases. A nil state stands for an entity with
// no recorded attempts yet.
//
// An expired lock is reported as cleared with a full attempt budget; the
// caller is responsible for persisting that implied reset.
func EvaluatePolicy(state *models.LockoutState, now time.Time, policy models.LockoutPolicy) models.SecurityStatus {
	if state == nil {
		return models.SecurityStatus{
			IsLocked:          false,
			RemainingAttempts: policy.MaxFailures,
		}
	}

	if state.LockedUntil != nil {
		if now.Before(*state.LockedUntil) {
			end := *state.LockedUntil
			return models.SecurityStatus{
				IsLocked:          true,
				RemainingAttempts: 0,
				LockEndTime:       &end,
			}
		}

		// Lapsed lock: the stored failure count belongs to the previous
		// lock cycle and no longer applies.
		return models.SecurityStatus{
			IsLocked:          false,
			RemainingAttempts: policy.MaxFailures,
		}
	}

	remaining := policy.MaxFailures - state.ConsecutiveFailures
	if remaining < 0 {
		remaining = 0
	}

	return models.SecurityStatus{
		IsLocked:          false,
		RemainingAttempts: remaining,
	}
}

// lockExpired reports whether state carries a lock that has lapsed and
// therefore needs its implied reset persisted.
func lockExpired(state *models.LockoutState, now time.Time) bool {
	return state != nil && state.LockedUntil != nil && !now.Before(*state.LockedUntil)
}
