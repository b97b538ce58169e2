package domain

import "time"

// AuditEntry is one appended line of a registration's audit trail.
// The audit log itself is externally owned; this core only appends
// human-readable messages to it.
type AuditEntry struct {
	AuditKey  string    `json:"auditKey"`
	Message   string    `json:"message"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationAuditKey builds the audit key for a registration.
func RegistrationAuditKey(eventID, registrationID string) string {
	return MakeReference(eventID, registrationID)
}
