package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which kind of account a PIN protects.
// Teachers and companies authenticate with a 4-digit PIN; students use
// regular credentials and are not tracked by this service.
type EntityType string

const (
	EntityTypeTeacher EntityType = "TEACHER"
	EntityTypeCompany EntityType = "COMPANY"
)

// ParseEntityType normalizes and validates an entity type string
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToUpper(strings.TrimSpace(s))) {
	case EntityTypeTeacher:
		return EntityTypeTeacher, nil
	case EntityTypeCompany:
		return EntityTypeCompany, nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", ErrBadRequest, s)
	}
}

// SecurityEntity is the composite key identifying a protected account.
// It is not stored on its own; whether the pair resolves to a real
// account is the caller's job to verify against the credential store.
type SecurityEntity struct {
	Type EntityType
	ID   string
}

func (e SecurityEntity) String() string {
	return string(e.Type) + "/" + e.ID
}

// AttemptRecord is one row per PIN check. Immutable once written;
// created only by the gateway's RecordAttempt and never updated.
type AttemptRecord struct {
	ID         uuid.UUID  `db:"id"`
	EntityType EntityType `db:"entity_type"`
	EntityID   string     `db:"entity_id"`
	Success    bool       `db:"success"`
	IPAddress  string     `db:"ip_address"`
	UserAgent  string     `db:"user_agent"`
	OccurredAt time.Time  `db:"occurred_at"`
}

// LockoutState is the per-entity failure counter and lock expiry.
// A row is created lazily on the first recorded attempt. LockedUntil is
// non-nil only while a lock set by crossing the failure threshold has
// not yet been observed as expired; expiry is evaluated lazily on read.
type LockoutState struct {
	EntityType          EntityType `db:"entity_type"`
	EntityID            string     `db:"entity_id"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastUpdatedAt       time.Time  `db:"last_updated_at"`
}

// LockoutPolicy is global configuration, loaded once at startup.
// It applies identically to teacher and company entities.
type LockoutPolicy struct {
	MaxFailures  int
	LockDuration time.Duration
}

// SecurityStatus is the evaluated lock state returned to login flows.
type SecurityStatus struct {
	IsLocked          bool       `json:"isLocked"`
	RemainingAttempts int        `json:"remainingAttempts"`
	LockEndTime       *time.Time `json:"lockEndTime"`
}

// Administrative actions recorded outside the attempt ledger
const (
	AdminActionUnlock = "unlock"
)

// AdminAction records an administrative intervention (e.g. unlock).
// Kept separate from AttemptRecord: an unlock is not a PIN check.
type AdminAction struct {
	ID         uuid.UUID  `db:"id"`
	Action     string     `db:"action"`
	EntityType EntityType `db:"entity_type"`
	EntityID   string     `db:"entity_id"`
	Actor      string     `db:"actor"`
	IPAddress  string     `db:"ip_address"`
	CreatedAt  time.Time  `db:"created_at"`
}
