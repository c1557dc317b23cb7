package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthTokenCreate       EventType = "auth.token_create"
	EventTypeAuthTokenRevoke       EventType = "auth.token_revoke"
	EventTypeAuthTokenValidateFail EventType = "auth.token_validate_fail"

	// Authorization events
	EventTypeAuthzDecision     EventType = "authz.decision"
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Data mutation events
	EventTypeDataCreate EventType = "data.create"
	EventTypeDataUpdate EventType = "data.update"
	EventTypeDataDelete EventType = "data.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ChangeDetails captures what a mutation touched
type ChangeDetails struct {
	Fields []string               `json:"fields,omitempty"`
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorUID  string `json:"actor_uid,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`

	// Target information
	Collection string `json:"collection,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Operation  string `json:"operation,omitempty"`

	// Denial reason, when Status is denied
	Reason string `json:"reason,omitempty"`

	// Additional details
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Changes  *ChangeDetails         `json:"changes,omitempty"`
}

// MarshalJSON includes a stable timestamp format for log consumers
func (e *Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(&struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     (*alias)(e),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}
