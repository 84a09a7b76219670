// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ServiceOptions Tests
// =============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Nil(t, opts.Classifier)
	assert.IsType(t, &NopAuditLogger{}, opts.AuditLogger)
}

func TestServiceOptions_WithMethodsReturnCopies(t *testing.T) {
	base := DefaultOptions()
	audit := NewSlogAuditLogger(nil)

	updated := base.WithClassifier(&AllowAllClassifier{}).WithAudit(audit)

	assert.Nil(t, base.Classifier, "original must be unchanged")
	assert.IsType(t, &NopAuditLogger{}, base.AuditLogger)
	assert.IsType(t, &AllowAllClassifier{}, updated.Classifier)
	assert.Same(t, audit, updated.AuditLogger)
}

// =============================================================================
// Classifier Tests
// =============================================================================

func TestAllowAllClassifier(t *testing.T) {
	c := &AllowAllClassifier{}
	for _, text := range []string{"", "hello there", "nice weather today"} {
		assert.True(t, c.IsInScope(text), text)
	}
}

// =============================================================================
// Audit Logger Tests
// =============================================================================

func TestNopAuditLogger_Log(t *testing.T) {
	l := &NopAuditLogger{}
	assert.NoError(t, l.Log(context.Background(), AuditEvent{EventType: "chat.refused"}))
}

func TestSlogAuditLogger_WritesGroupedEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	audit := NewSlogAuditLogger(logger)

	err := audit.Log(context.Background(), AuditEvent{
		EventType: "chat.refused",
		SessionID: "sess-1",
		Outcome:   "blocked",
		Metadata:  map[string]any{"message_bytes": 11},
	})
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "audit event", record["msg"])

	group, ok := record["audit"].(map[string]any)
	require.True(t, ok, "audit attributes must be grouped")
	assert.Equal(t, "chat.refused", group["event_type"])
	assert.Equal(t, "sess-1", group["session_id"])
	assert.Equal(t, "blocked", group["outcome"])
	assert.NotEmpty(t, group["timestamp"])
}
