package audit

import (
	"context"
	"time"
)

// MultiLogger fans audit events out to multiple loggers. Logging is
// synchronous; the first error is returned after all loggers have run.
type MultiLogger struct {
	loggers []Logger
	now     func() time.Time
}

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		now:     time.Now,
	}
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogDecision logs the outcome of an authorization check
func (m *MultiLogger) LogDecision(ctx context.Context, actorUID, actorRole, collection, documentID, operation string, allowed bool, reason string) error {
	return m.Log(ctx, decisionEvent(actorUID, actorRole, collection, documentID, operation, allowed, reason, m.now()))
}

// LogMutation logs an applied create, update or delete
func (m *MultiLogger) LogMutation(ctx context.Context, eventType EventType, actorUID, collection, documentID string, changes *ChangeDetails) error {
	return m.Log(ctx, mutationEvent(eventType, actorUID, collection, documentID, changes, m.now()))
}

// LogTokenEvent logs token lifecycle and validation events
func (m *MultiLogger) LogTokenEvent(ctx context.Context, eventType EventType, actorUID, tokenID string, status EventStatus, message string) error {
	return m.Log(ctx, tokenEvent(eventType, actorUID, tokenID, status, message, m.now()))
}

// Close closes all loggers, returning the first error
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
