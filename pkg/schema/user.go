// Package schema defines records shared by the CRM binaries.
package schema

import "time"

// Collections holding identity records.
const (
	UsersCollection = "users"
	AuditCollection = "audit"
)

// UserRecord is a dashboard operator. It is stored at users/<lower-cased email>.
type UserRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash"`
	Disabled     bool      `json:"disabled"`
	LastActive   time.Time `json:"lastActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuditLog is an append-only event entry stored at audit/<uuid>.
type AuditLog struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

// Audit actions.
const (
	ActionSignIn     = "sign_in"
	ActionSignOut    = "sign_out"
	ActionUserCreate = "user_create"
)
