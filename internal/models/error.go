package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// ErrEntityLocked is returned when a PIN check is refused because the
	// entity is under an active lock. Callers read the lock end time from
	// the SecurityStatus returned alongside it.
	ErrEntityLocked = errors.New("entity is temporarily locked")

	// ErrStorageUnavailable covers any failure reaching the persistence
	// layer after the retry budget is spent. The gateway translates it
	// into a fail-closed response unless fail-open is configured.
	ErrStorageUnavailable = errors.New("security storage unavailable")
)
