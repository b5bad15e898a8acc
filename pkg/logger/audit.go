package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityEvent represents one auditable security decision
type SecurityEvent struct {
	EntityType string
	EntityID   string
	IPAddress  string
	UserAgent  string
	Success    bool
	Reason     string
}

// AuditLogger writes structured security audit lines alongside the
// database trail, so operators can follow attempts in the log stream
// without querying the ledger.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogPINAttempt logs the outcome of one PIN check
func (al *AuditLogger) LogPINAttempt(event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "pin_attempt"),
		slog.String("entity_type", event.EntityType),
		slog.String("entity_id", event.EntityID),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogUnlock logs an administrative unlock
func (al *AuditLogger) LogUnlock(entityType, entityID, actor, ipAddress string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admin"),
		slog.String("event_type", "unlock"),
		slog.String("entity_type", entityType),
		slog.String("entity_id", entityID),
		slog.String("actor", actor),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
