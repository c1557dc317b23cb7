package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements audit logging to a SQL database
type DBLogger struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{
		db:  db,
		now: time.Now,
	}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_events table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			actor_uid TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			collection TEXT NOT NULL DEFAULT '',
			document_id TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			changes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_uid)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_target ON audit_events (collection, document_id)`,
	}

	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON, changesJSON interface{}

	if event.Metadata != nil {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	if event.Changes != nil {
		raw, err := json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changesJSON = string(raw)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			timestamp, event_type, status,
			actor_uid, actor_role,
			collection, document_id, operation,
			reason, message, metadata, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.Timestamp, event.EventType, event.Status,
		event.ActorUID, event.ActorRole,
		event.Collection, event.DocumentID, event.Operation,
		event.Reason, event.Message, metadataJSON, changesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// LogDecision logs the outcome of an authorization check
func (l *DBLogger) LogDecision(ctx context.Context, actorUID, actorRole, collection, documentID, operation string, allowed bool, reason string) error {
	return l.Log(ctx, decisionEvent(actorUID, actorRole, collection, documentID, operation, allowed, reason, l.now()))
}

// LogMutation logs an applied create, update or delete
func (l *DBLogger) LogMutation(ctx context.Context, eventType EventType, actorUID, collection, documentID string, changes *ChangeDetails) error {
	return l.Log(ctx, mutationEvent(eventType, actorUID, collection, documentID, changes, l.now()))
}

// LogTokenEvent logs token lifecycle and validation events
func (l *DBLogger) LogTokenEvent(ctx context.Context, eventType EventType, actorUID, tokenID string, status EventStatus, message string) error {
	return l.Log(ctx, tokenEvent(eventType, actorUID, tokenID, status, message, l.now()))
}

// Close closes the logger. The database handle is owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}

// Purge deletes audit events older than the cutoff and returns the number
// of rows removed. Intended to run from a scheduled retention sweep.
func (l *DBLogger) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE timestamp < $1", olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return res.RowsAffected()
}

// Query returns recent events for an actor, newest first
func (l *DBLogger) Query(ctx context.Context, actorUID string, limit int) ([]*Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status,
		       actor_uid, actor_role,
		       collection, document_id, operation,
		       reason, message, metadata, changes
		FROM audit_events
		WHERE actor_uid = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`, actorUID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var metadataJSON, changesJSON sql.NullString

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.ActorUID, &event.ActorRole,
			&event.Collection, &event.DocumentID, &event.Operation,
			&event.Reason, &event.Message, &metadataJSON, &changesJSON,
		)
		if err != nil {
			return nil, err
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		if changesJSON.Valid && changesJSON.String != "" {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal([]byte(changesJSON.String), event.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode changes: %w", err)
			}
		}

		events = append(events, &event)
	}
	return events, rows.Err()
}
