// Package audit records authorization decisions, data mutations and token
// lifecycle events to durable sinks.
//
// Three Logger implementations are provided: DBLogger writes events to the
// audit_events table, FileLogger appends JSON lines with size-based rotation,
// and MultiLogger fans out to several sinks. A no-op logger is returned by
// FromContext when no logger has been attached, so call sites never need a
// nil check.
//
// DBLogger.Purge supports the scheduled retention sweep that removes events
// older than the configured retention window.
package audit
