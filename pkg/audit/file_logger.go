package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger implements audit logging to JSON-lines files
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64
	maxFiles int
	now      func() time.Time
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/stallgate/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		now:      time.Now,
	}

	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}

	return logger, nil
}

func (l *FileLogger) currentPath() string {
	return filepath.Join(l.basePath, "audit.log")
}

func (l *FileLogger) openLogFile() error {
	file, err := os.OpenFile(l.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Log writes an audit event as one JSON line
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotate {
		if err := l.rotateIfNeeded(); err != nil {
			return err
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// rotateIfNeeded rotates the current file once it exceeds maxSize.
// Caller must hold l.mu.
func (l *FileLogger) rotateIfNeeded() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxSize {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return err
	}

	rotated := filepath.Join(l.basePath,
		fmt.Sprintf("audit-%s.log", l.now().UTC().Format("20060102T150405")))
	if err := os.Rename(l.currentPath(), rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	if err := l.pruneRotated(); err != nil {
		return err
	}

	return l.openLogFile()
}

// pruneRotated removes the oldest rotated files beyond maxFiles
func (l *FileLogger) pruneRotated() error {
	matches, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(matches) <= l.maxFiles {
		return nil
	}

	sort.Strings(matches)
	for _, path := range matches[:len(matches)-l.maxFiles] {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to prune audit log %s: %w", path, err)
		}
	}
	return nil
}

// LogDecision logs the outcome of an authorization check
func (l *FileLogger) LogDecision(ctx context.Context, actorUID, actorRole, collection, documentID, operation string, allowed bool, reason string) error {
	return l.Log(ctx, decisionEvent(actorUID, actorRole, collection, documentID, operation, allowed, reason, l.now()))
}

// LogMutation logs an applied create, update or delete
func (l *FileLogger) LogMutation(ctx context.Context, eventType EventType, actorUID, collection, documentID string, changes *ChangeDetails) error {
	return l.Log(ctx, mutationEvent(eventType, actorUID, collection, documentID, changes, l.now()))
}

// LogTokenEvent logs token lifecycle and validation events
func (l *FileLogger) LogTokenEvent(ctx context.Context, eventType EventType, actorUID, tokenID string, status EventStatus, message string) error {
	return l.Log(ctx, tokenEvent(eventType, actorUID, tokenID, status, message, l.now()))
}

// Close closes the current log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
