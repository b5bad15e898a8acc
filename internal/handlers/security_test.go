package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehub/pinguard/internal/handlers"
	"github.com/stagehub/pinguard/internal/models"
	pkghttp "github.com/stagehub/pinguard/pkg/http"
)

// MockSecurityService implements handlers.SecurityServiceInterface
type MockSecurityService struct {
	checkStatusFunc   func(ctx context.Context, entityType models.EntityType, entityID string) (models.SecurityStatus, error)
	recordAttemptFunc func(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error)
	unlockFunc        func(ctx context.Context, entityType models.EntityType, entityID, actor, ipAddress string) error
	historyFunc       func(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error)
}

func (m *MockSecurityService) CheckStatus(ctx context.Context, entityType models.EntityType, entityID string) (models.SecurityStatus, error) {
	return m.checkStatusFunc(ctx, entityType, entityID)
}

func (m *MockSecurityService) RecordAttempt(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error) {
	return m.recordAttemptFunc(ctx, entityType, entityID, success, ipAddress, userAgent)
}

func (m *MockSecurityService) Unlock(ctx context.Context, entityType models.EntityType, entityID, actor, ipAddress string) error {
	return m.unlockFunc(ctx, entityType, entityID, actor, ipAddress)
}

func (m *MockSecurityService) GetAttemptHistory(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error) {
	return m.historyFunc(ctx, entityType, entityID, limit, offset)
}

func newHandler(service *MockSecurityService) *handlers.SecurityHandler {
	return handlers.NewSecurityHandler(service, &pkghttp.IPConfig{})
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCheckStatus_ReturnsUnlockedStatus(t *testing.T) {
	service := &MockSecurityService{
		checkStatusFunc: func(ctx context.Context, entityType models.EntityType, entityID string) (models.SecurityStatus, error) {
			assert.Equal(t, models.EntityTypeTeacher, entityType)
			assert.Equal(t, "t-42", entityID)
			return models.SecurityStatus{IsLocked: false, RemainingAttempts: 5}, nil
		},
	}
	handler := newHandler(service)

	rec := postJSON(t, handler.CheckStatus, "/security/check", handlers.CheckRequest{
		EntityType: "TEACHER",
		EntityID:   "t-42",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsLocked)
	assert.Equal(t, 5, resp.RemainingAttempts)
	assert.Nil(t, resp.LockEndTime)
}

func TestCheckStatus_InvalidEntityType(t *testing.T) {
	handler := newHandler(&MockSecurityService{})

	rec := postJSON(t, handler.CheckStatus, "/security/check", handlers.CheckRequest{
		EntityType: "STUDENT",
		EntityID:   "s-1",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckStatus_StorageUnavailableReportsLocked(t *testing.T) {
	service := &MockSecurityService{
		checkStatusFunc: func(ctx context.Context, entityType models.EntityType, entityID string) (models.SecurityStatus, error) {
			return models.SecurityStatus{IsLocked: true, RemainingAttempts: 0}, models.ErrStorageUnavailable
		},
	}
	handler := newHandler(service)

	rec := postJSON(t, handler.CheckStatus, "/security/check", handlers.CheckRequest{
		EntityType: "COMPANY",
		EntityID:   "c-7",
	})

	// Storage being down must not read as "go ahead"
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsLocked)
	assert.Equal(t, 0, resp.RemainingAttempts)
}

func TestRecordAttempt_Failure(t *testing.T) {
	service := &MockSecurityService{
		recordAttemptFunc: func(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error) {
			assert.False(t, success)
			assert.Equal(t, "192.0.2.55", ipAddress)
			assert.Equal(t, "Mozilla/5.0", userAgent)
			return models.SecurityStatus{IsLocked: false, RemainingAttempts: 3}, "invalid PIN, 3 attempts remaining", nil
		},
	}
	handler := newHandler(service)

	success := false
	rec := postJSON(t, handler.RecordAttempt, "/security/attempt", handlers.AttemptRequest{
		EntityType: "TEACHER",
		EntityID:   "t-42",
		Success:    &success,
		IP:         "192.0.2.55",
		UserAgent:  "Mozilla/5.0",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.AttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status.IsLocked)
	assert.Equal(t, 3, resp.Status.RemainingAttempts)
	assert.Equal(t, "invalid PIN, 3 attempts remaining", resp.Message)
}

func TestRecordAttempt_MissingSuccessField(t *testing.T) {
	handler := newHandler(&MockSecurityService{})

	rec := postJSON(t, handler.RecordAttempt, "/security/attempt", map[string]string{
		"entityType": "TEACHER",
		"entityId":   "t-42",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordAttempt_AlreadyLockedReturns423(t *testing.T) {
	until := time.Now().Add(15 * time.Minute)
	service := &MockSecurityService{
		recordAttemptFunc: func(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error) {
			return models.SecurityStatus{IsLocked: true, LockEndTime: &until},
				"account locked until 14:30, 15 minutes remaining",
				models.ErrEntityLocked
		},
	}
	handler := newHandler(service)

	success := false
	rec := postJSON(t, handler.RecordAttempt, "/security/attempt", handlers.AttemptRequest{
		EntityType: "TEACHER",
		EntityID:   "t-42",
		Success:    &success,
	})

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Contains(t, rec.Body.String(), "account locked until")
}

func TestRecordAttempt_StorageUnavailableReturns503(t *testing.T) {
	service := &MockSecurityService{
		recordAttemptFunc: func(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error) {
			return models.SecurityStatus{IsLocked: true}, "security check unavailable", models.ErrStorageUnavailable
		},
	}
	handler := newHandler(service)

	success := true
	rec := postJSON(t, handler.RecordAttempt, "/security/attempt", handlers.AttemptRequest{
		EntityType: "COMPANY",
		EntityID:   "c-7",
		Success:    &success,
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecordAttempt_FallsBackToRequestOrigin(t *testing.T) {
	service := &MockSecurityService{
		recordAttemptFunc: func(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error) {
			assert.Equal(t, "203.0.113.9", ipAddress)
			assert.Equal(t, "curl/8.0", userAgent)
			return models.SecurityStatus{RemainingAttempts: 4}, "invalid PIN, 4 attempts remaining", nil
		},
	}
	handler := newHandler(service)

	success := false
	payload, err := json.Marshal(handlers.AttemptRequest{
		EntityType: "TEACHER",
		EntityID:   "t-42",
		Success:    &success,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/security/attempt", bytes.NewReader(payload))
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set("User-Agent", "curl/8.0")
	rec := httptest.NewRecorder()
	handler.RecordAttempt(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnlock_Success(t *testing.T) {
	unlocked := false
	service := &MockSecurityService{
		unlockFunc: func(ctx context.Context, entityType models.EntityType, entityID, actor, ipAddress string) error {
			unlocked = true
			assert.Equal(t, models.EntityTypeCompany, entityType)
			assert.Equal(t, "c-7", entityID)
			return nil
		},
	}
	handler := newHandler(service)

	rec := postJSON(t, handler.Unlock, "/security/unlock", handlers.UnlockRequest{
		EntityType: "COMPANY",
		EntityID:   "c-7",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, unlocked)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestUnlock_StorageUnavailable(t *testing.T) {
	service := &MockSecurityService{
		unlockFunc: func(ctx context.Context, entityType models.EntityType, entityID, actor, ipAddress string) error {
			return models.ErrStorageUnavailable
		},
	}
	handler := newHandler(service)

	rec := postJSON(t, handler.Unlock, "/security/unlock", handlers.UnlockRequest{
		EntityType: "TEACHER",
		EntityID:   "t-42",
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListAttempts_ReturnsHistory(t *testing.T) {
	recordID := uuid.New()
	occurredAt := time.Now().UTC().Truncate(time.Second)
	service := &MockSecurityService{
		historyFunc: func(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error) {
			assert.Equal(t, 10, limit)
			assert.Equal(t, 0, offset)
			return []*models.AttemptRecord{
				{
					ID:         recordID,
					EntityType: models.EntityTypeTeacher,
					EntityID:   "t-42",
					Success:    false,
					IPAddress:  "192.0.2.1",
					UserAgent:  "Mozilla/5.0",
					OccurredAt: occurredAt,
				},
			}, nil
		},
	}
	handler := newHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/security/attempts?entityType=TEACHER&entityId=t-42&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListAttempts(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.AttemptHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, recordID.String(), resp.Attempts[0].ID)
	assert.Equal(t, "TEACHER", resp.Attempts[0].EntityType)
	assert.False(t, resp.Attempts[0].Success)
}

func TestListAttempts_MissingEntityID(t *testing.T) {
	handler := newHandler(&MockSecurityService{})

	req := httptest.NewRequest(http.MethodGet, "/security/attempts?entityType=TEACHER", nil)
	rec := httptest.NewRecorder()
	handler.ListAttempts(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
