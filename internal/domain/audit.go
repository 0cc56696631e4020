package domain

import "time"

// Audit actions recorded by state-changing operations.
const (
	AuditTokenCreated       = "token_created"
	AuditTokenStatusChanged = "token_status_changed"
)

// AuditLog is an immutable record of a state-changing operation. Entries
// are created and read, never updated or deleted.
type AuditLog struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	UserID    *int64    `json:"user_id,omitempty"`
	Details   string    `json:"details,omitempty"`
}
