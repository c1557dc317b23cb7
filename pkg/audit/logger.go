package audit

import (
	"context"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogDecision logs the outcome of an authorization check
	LogDecision(ctx context.Context, actorUID, actorRole, collection, documentID, operation string, allowed bool, reason string) error

	// LogMutation logs an applied create, update or delete
	LogMutation(ctx context.Context, eventType EventType, actorUID, collection, documentID string, changes *ChangeDetails) error

	// LogTokenEvent logs token lifecycle and validation events
	LogTokenEvent(ctx context.Context, eventType EventType, actorUID, tokenID string, status EventStatus, message string) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// contextKey is the type for context keys
type contextKey string

// loggerKey is the context key for the audit logger
const loggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
// when none is set
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// NewNoopLogger returns a logger that discards everything
func NewNoopLogger() Logger {
	return &noOpLogger{}
}

type noOpLogger struct{}

func (n *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }

func (n *noOpLogger) LogDecision(ctx context.Context, actorUID, actorRole, collection, documentID, operation string, allowed bool, reason string) error {
	return nil
}

func (n *noOpLogger) LogMutation(ctx context.Context, eventType EventType, actorUID, collection, documentID string, changes *ChangeDetails) error {
	return nil
}

func (n *noOpLogger) LogTokenEvent(ctx context.Context, eventType EventType, actorUID, tokenID string, status EventStatus, message string) error {
	return nil
}

func (n *noOpLogger) Close() error { return nil }

// decisionEvent builds the common event shape for LogDecision implementations
func decisionEvent(actorUID, actorRole, collection, documentID, operation string, allowed bool, reason string, now time.Time) *Event {
	eventType := EventTypeAuthzDecision
	status := EventStatusSuccess
	if !allowed {
		eventType = EventTypeAuthzAccessDenied
		status = EventStatusDenied
	}
	return &Event{
		Timestamp:  now,
		EventType:  eventType,
		Status:     status,
		ActorUID:   actorUID,
		ActorRole:  actorRole,
		Collection: collection,
		DocumentID: documentID,
		Operation:  operation,
		Reason:     reason,
	}
}

// mutationEvent builds the common event shape for LogMutation implementations
func mutationEvent(eventType EventType, actorUID, collection, documentID string, changes *ChangeDetails, now time.Time) *Event {
	return &Event{
		Timestamp:  now,
		EventType:  eventType,
		Status:     EventStatusSuccess,
		ActorUID:   actorUID,
		Collection: collection,
		DocumentID: documentID,
		Changes:    changes,
	}
}

// tokenEvent builds the common event shape for LogTokenEvent implementations
func tokenEvent(eventType EventType, actorUID, tokenID string, status EventStatus, message string, now time.Time) *Event {
	return &Event{
		Timestamp:  now,
		EventType:  eventType,
		Status:     status,
		ActorUID:   actorUID,
		DocumentID: tokenID,
		Message:    message,
	}
}
