// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Event types written by the tutor service.
const (
	AuditEventChatAnswered   = "chat.answered"
	AuditEventChatRefused    = "chat.refused"
	AuditEventChatFailed     = "chat.failed"
	AuditEventHistoryCleared = "history.cleared"
)

// AuditEvent records one conversation-level event.
//
// # Event Categories
//
//   - "chat.answered": in-scope message answered by the backend
//   - "chat.refused": out-of-scope message answered with the canned refusal
//   - "chat.failed": backend call failed
//   - "history.cleared": a session's history was reset
//
// Message content is never placed in an AuditEvent; only sizes and outcomes.
//
// Example:
//
//	event := AuditEvent{
//	    EventType: "chat.refused",
//	    SessionID: sessionID,
//	    Outcome:   "blocked",
//	    Metadata:  map[string]any{"message_bytes": len(text)},
//	}
type AuditEvent struct {
	// EventType categorizes the event. Format: "category.action".
	EventType string

	// Timestamp is when the event occurred (UTC).
	// If zero, implementations set it to time.Now().UTC().
	Timestamp time.Time

	// SessionID is the conversation the event belongs to.
	SessionID string

	// Outcome is one of "success", "blocked", "error".
	Outcome string

	// Metadata holds event-specific details (sizes, model, error text).
	Metadata map[string]any
}

// AuditLogger records conversation events.
//
// Implementations must be safe for concurrent use and should return quickly:
// Log is called on the request path.
type AuditLogger interface {
	// Log records an event. Errors are reported to the caller, which logs
	// and otherwise ignores them.
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events.
//
// Thread-safe: This implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event. Always returns nil.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// SlogAuditLogger writes events to a slog.Logger under the "audit" group.
//
// This is the audit trail used when AUDIT_LOG is enabled: events end up in
// the same JSON stream as the service logs and can be filtered on
// audit.event_type.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit logger. A nil logger uses slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger}
}

// Log writes the event at Info level.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
		slog.String("session_id", event.SessionID),
		slog.String("outcome", event.Outcome),
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}
	l.logger.InfoContext(ctx, "audit event", slog.Group("audit", attrs...))
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
