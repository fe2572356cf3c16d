package shared

import (
	"context"

	"github.com/google/uuid"
)

// AuditLogger records state transitions for tenants, subscriptions, and
// invoices. Implementations must never block the transition itself: a
// failure to record is reported to the caller but the state change stands.
type AuditLogger interface {
	// LogEvent records a single state transition
	LogEvent(ctx context.Context, tenantID uuid.UUID, actor, action, oldState, newState string) error
}

// NopAuditLogger discards all audit events. Used in tests and as a safe
// default when no audit sink is configured.
type NopAuditLogger struct{}

// LogEvent implements AuditLogger
func (NopAuditLogger) LogEvent(ctx context.Context, tenantID uuid.UUID, actor, action, oldState, newState string) error {
	return nil
}
