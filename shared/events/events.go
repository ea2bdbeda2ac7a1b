package events

import "time"

// Event types
const (
	AccountRegistered  = "account.registered"
	AccountRoleUpdated = "account.role_updated"
)

// Stream names
const (
	AccountEventsStream = "account.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type AccountRegisteredEvent struct {
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

type AccountRoleUpdatedEvent struct {
	AccountID   string `json:"accountId"`
	Username    string `json:"username"`
	NewRole     string `json:"newRole"`
	ModeratorID string `json:"moderatorId,omitempty"`
}
