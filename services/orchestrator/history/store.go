// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history stores per-session conversation logs.
//
// Every session owns an ordered, size-bounded list of turns. Histories are
// created lazily, mutated on every exchange, and never outlive the process.
//
// Two implementations are provided:
//
//   - MemoryStore: a map with per-session locks (default)
//   - BadgerStore: BadgerDB opened in in-memory mode, one key per session
package history

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
)

// MaxHistoryTurns is the maximum number of turns retained per session.
// Older turns are discarded first.
const MaxHistoryTurns = 20

// ErrSessionNotFound is returned by Append when the session was never created.
var ErrSessionNotFound = errors.New("history: session not found")

// Store is the process-wide mapping from session id to conversation history.
//
// # Description
//
// Implementations serialize mutations per session so that an append and its
// trim are observed atomically. Different sessions never interact.
//
// # Thread Safety
//
// All methods must be safe for concurrent use.
type Store interface {
	// GetOrCreate returns id when it names a live session. An empty or
	// unknown id gets a freshly minted UUIDv4 with an empty history, and
	// isNew is true.
	GetOrCreate(ctx context.Context, id string) (sessionID string, isNew bool, err error)

	// Append adds one turn and trims the history to MaxHistoryTurns in the
	// same critical section.
	Append(ctx context.Context, id string, turn datatypes.Turn) error

	// Get returns a copy of the history. Unknown ids yield an empty,
	// non-nil slice.
	Get(ctx context.Context, id string) ([]datatypes.Turn, error)

	// Clear resets the history to empty if the session exists.
	Clear(ctx context.Context, id string) error

	// Exists reports whether the session has been created.
	Exists(ctx context.Context, id string) (bool, error)

	// Len returns the number of live sessions.
	Len(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Trim drops turns from the front until at most max remain.
//
// # Description
//
// Pure function. The returned slice may share its backing array with turns.
//
// # Examples
//
//	Trim(make([]datatypes.Turn, 25), 20) // the newest 20, order preserved
//	Trim(make([]datatypes.Turn, 3), 20)  // unchanged
func Trim(turns []datatypes.Turn, max int) []datatypes.Turn {
	if max < 0 {
		max = 0
	}
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

// NewSessionID mints an opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func cloneTurns(turns []datatypes.Turn) []datatypes.Turn {
	out := make([]datatypes.Turn, len(turns))
	copy(out, turns)
	return out
}
