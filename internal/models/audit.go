package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit event kinds. The set is closed; callers must not invent ad-hoc
// kinds, details belong in the entry's Details bag.
const (
	AuditEventLoginSuccess     = "login_success"
	AuditEventLoginFailed      = "login_failed"
	AuditEventLoginBlocked     = "login_blocked"
	AuditEventLogout           = "logout"
	AuditEventSessionRefreshed = "session_refreshed"
	AuditEventProfileCreated   = "profile_created"
	AuditEventProfileUpdated   = "profile_updated"
	AuditEventProfileDisabled  = "profile_disabled"
	AuditEventProfileEnabled   = "profile_enabled"
	AuditEventProfileDeleted   = "profile_deleted"
	AuditEventRoleChanged      = "role_changed"
	AuditEventPinChanged       = "pin_changed"
	AuditEventPinReset         = "pin_reset"
	AuditEventPasswordExpired  = "password_expired_flagged"
	AuditEventMemoryCleared    = "memory_cleared"
	AuditEventBackupCreated    = "backup_created"
)

// AuditEntry is one immutable line in the audit log
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}
