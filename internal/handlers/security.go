package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/stagehub/pinguard/internal/auth"
	"github.com/stagehub/pinguard/internal/models"
	pkghttp "github.com/stagehub/pinguard/pkg/http"
)

// SecurityServiceInterface defines the gateway operations the HTTP layer needs
type SecurityServiceInterface interface {
	CheckStatus(ctx context.Context, entityType models.EntityType, entityID string) (models.SecurityStatus, error)
	RecordAttempt(ctx context.Context, entityType models.EntityType, entityID string, success bool, ipAddress, userAgent string) (models.SecurityStatus, string, error)
	Unlock(ctx context.Context, entityType models.EntityType, entityID, actor, ipAddress string) error
	GetAttemptHistory(ctx context.Context, entityType models.EntityType, entityID string, limit, offset int) ([]*models.AttemptRecord, error)
}

// SecurityHandler handles the PIN security HTTP endpoints
type SecurityHandler struct {
	service  SecurityServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service SecurityServiceInterface, ipConfig *pkghttp.IPConfig) *SecurityHandler {
	return &SecurityHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// CheckRequest identifies the entity whose lock state is queried
type CheckRequest struct {
	EntityType string `json:"entityType" validate:"required,oneof=TEACHER COMPANY"`
	EntityID   string `json:"entityId" validate:"required,max=64"`
}

// AttemptRequest carries the outcome of one PIN verification. The
// calling login flow has already compared the PIN against the
// credential store; Success is that result. IP and UserAgent describe
// the end user's request, not the service-to-service call.
type AttemptRequest struct {
	EntityType string `json:"entityType" validate:"required,oneof=TEACHER COMPANY"`
	EntityID   string `json:"entityId" validate:"required,max=64"`
	Success    *bool  `json:"success" validate:"required"`
	IP         string `json:"ip" validate:"omitempty,ip"`
	UserAgent  string `json:"userAgent" validate:"max=512"`
}

// UnlockRequest identifies the entity to unlock
type UnlockRequest struct {
	EntityType string `json:"entityType" validate:"required,oneof=TEACHER COMPANY"`
	EntityID   string `json:"entityId" validate:"required,max=64"`
}

// Response DTOs

// StatusResponse mirrors models.SecurityStatus on the wire
type StatusResponse struct {
	IsLocked          bool       `json:"isLocked"`
	RemainingAttempts int        `json:"remainingAttempts"`
	LockEndTime       *time.Time `json:"lockEndTime"`
}

// AttemptResponse is returned by /security/attempt
type AttemptResponse struct {
	Status  StatusResponse `json:"status"`
	Message string         `json:"message"`
}

// AttemptHistoryResponse is returned by the audit trail endpoint
type AttemptHistoryResponse struct {
	Attempts []AttemptRecordResponse `json:"attempts"`
}

// AttemptRecordResponse is one ledger row on the wire
type AttemptRecordResponse struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Success    bool      `json:"success"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CheckStatus handles POST /security/check. Read-only; login flows call
// it to short-circuit locked accounts before contacting the credential
// store.
func (h *SecurityHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	entityType, err := models.ParseEntityType(req.EntityType)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid entity type")
		return
	}

	status, err := h.service.CheckStatus(r.Context(), entityType, req.EntityID)
	if err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			// Fail closed: the response still reports the entity locked
			writeJSON(w, http.StatusOK, toStatusResponse(status))
			return
		}
		pkghttp.WriteInternalError(w, "Failed to check security status")
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

// RecordAttempt handles POST /security/attempt, the only mutating
// user-triggered endpoint. Responds 423 when the entity was already
// locked before this call; the caller should have used /security/check.
func (h *SecurityHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req AttemptRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	entityType, err := models.ParseEntityType(req.EntityType)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid entity type")
		return
	}

	// Origin metadata comes from the login flow when it forwards the end
	// user's request details; fall back to this request's own origin.
	ipAddress := req.IP
	if ipAddress == "" {
		ipAddress = pkghttp.ExtractClientIP(r, h.ipConfig)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	status, message, err := h.service.RecordAttempt(r.Context(), entityType, req.EntityID, *req.Success, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEntityLocked):
			pkghttp.WriteLocked(w, message)
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, message)
		default:
			pkghttp.WriteInternalError(w, "Failed to record attempt")
		}
		return
	}

	writeJSON(w, http.StatusOK, AttemptResponse{
		Status:  toStatusResponse(status),
		Message: message,
	})
}

// Unlock handles POST /security/unlock (admin only)
func (h *SecurityHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	entityType, err := models.ParseEntityType(req.EntityType)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid entity type")
		return
	}

	actor := auth.ActorFromContext(r.Context())
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Unlock(r.Context(), entityType, req.EntityID, actor, ipAddress); err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Unlock could not be persisted, try again")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to unlock entity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListAttempts handles GET /security/attempts (admin only), the audit
// trail for one entity
func (h *SecurityHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	entityType, err := models.ParseEntityType(r.URL.Query().Get("entityType"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid entity type")
		return
	}

	entityID := r.URL.Query().Get("entityId")
	if entityID == "" {
		pkghttp.WriteBadRequest(w, "entityId is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.service.GetAttemptHistory(r.Context(), entityType, entityID, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to load attempt history")
		return
	}

	resp := AttemptHistoryResponse{Attempts: make([]AttemptRecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Attempts = append(resp.Attempts, AttemptRecordResponse{
			ID:         rec.ID.String(),
			EntityType: string(rec.EntityType),
			EntityID:   rec.EntityID,
			Success:    rec.Success,
			IPAddress:  rec.IPAddress,
			UserAgent:  rec.UserAgent,
			OccurredAt: rec.OccurredAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func toStatusResponse(status models.SecurityStatus) StatusResponse {
	return StatusResponse{
		IsLocked:          status.IsLocked,
		RemainingAttempts: status.RemainingAttempts,
		LockEndTime:       status.LockEndTime,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
