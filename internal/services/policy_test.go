package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stagehub/pinguard/internal/models"
)

var testPolicy = models.LockoutPolicy{
	MaxFailures:  5,
	LockDuration: 30 * time.Minute,
}

func TestEvaluatePolicy_NilState(t *testing.T) {
	now := time.Now()

	status := EvaluatePolicy(nil, now, testPolicy)

	assert.False(t, status.IsLocked)
	assert.Equal(t, 5, status.RemainingAttempts)
	assert.Nil(t, status.LockEndTime)
}

func TestEvaluatePolicy_CountsDownRemaining(t *testing.T) {
	now := time.Now()

	tests := []struct {
		failures  int
		remaining int
	}{
		{0, 5},
		{1, 4},
		{3, 2},
		{4, 1},
		{7, 0}, // counter past the threshold without a lock still clamps at zero
	}

	for _, tt := range tests {
		state := &models.LockoutState{
			EntityType:          models.EntityTypeTeacher,
			EntityID:            "t-42",
			ConsecutiveFailures: tt.failures,
		}

		status := EvaluatePolicy(state, now, testPolicy)

		assert.False(t, status.IsLocked, "failures=%d", tt.failures)
		assert.Equal(t, tt.remaining, status.RemainingAttempts, "failures=%d", tt.failures)
		assert.Nil(t, status.LockEndTime)
	}
}

func TestEvaluatePolicy_ActiveLock(t *testing.T) {
	now := time.Now()
	until := now.Add(10 * time.Minute)
	state := &models.LockoutState{
		EntityType:          models.EntityTypeCompany,
		EntityID:            "c-7",
		ConsecutiveFailures: 5,
		LockedUntil:         &until,
	}

	status := EvaluatePolicy(state, now, testPolicy)

	assert.True(t, status.IsLocked)
	assert.Equal(t, 0, status.RemainingAttempts)
	assert.NotNil(t, status.LockEndTime)
	assert.Equal(t, until, *status.LockEndTime)
}

func TestEvaluatePolicy_LockExpiresExactlyAtBoundary(t *testing.T) {
	now := time.Now()
	until := now // now >= lockedUntil means expired
	state := &models.LockoutState{
		EntityType:          models.EntityTypeTeacher,
		EntityID:            "t-42",
		ConsecutiveFailures: 5,
		LockedUntil:         &until,
	}

	status := EvaluatePolicy(state, now, testPolicy)

	assert.False(t, status.IsLocked)
	assert.Equal(t, 5, status.RemainingAttempts, "expired lock grants a fresh attempt budget")
	assert.Nil(t, status.LockEndTime)
}

func TestEvaluatePolicy_ExpiredLockIgnoresStaleCounter(t *testing.T) {
	now := time.Now()
	until := now.Add(-1 * time.Hour)
	state := &models.LockoutState{
		EntityType:          models.EntityTypeCompany,
		EntityID:            "c-7",
		ConsecutiveFailures: 5,
		LockedUntil:         &until,
	}

	status := EvaluatePolicy(state, now, testPolicy)

	assert.False(t, status.IsLocked)
	assert.Equal(t, 5, status.RemainingAttempts)
}

func TestEvaluatePolicy_OneSecondBeforeExpiry(t *testing.T) {
	now := time.Now()
	until := now.Add(1 * time.Second)
	state := &models.LockoutState{
		EntityType:          models.EntityTypeTeacher,
		EntityID:            "t-42",
		ConsecutiveFailures: 5,
		LockedUntil:         &until,
	}

	status := EvaluatePolicy(state, now, testPolicy)

	assert.True(t, status.IsLocked)
}

func TestLockExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, lockExpired(nil, now))
	assert.False(t, lockExpired(&models.LockoutState{}, now))
	assert.False(t, lockExpired(&models.LockoutState{LockedUntil: &future}, now))
	assert.True(t, lockExpired(&models.LockoutState{LockedUntil: &past}, now))
	assert.True(t, lockExpired(&models.LockoutState{LockedUntil: &now}, now))
}
