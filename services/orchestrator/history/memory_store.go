// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"sync"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
)

// sessionEntry holds one session's turns behind its own lock.
type sessionEntry struct {
	mu    sync.Mutex
	turns []datatypes.Turn
}

// MemoryStore keeps histories in a Go map.
//
// # Thread Safety
//
// The session index is guarded by an RWMutex. Each entry has its own mutex,
// so concurrent requests on different sessions do not contend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	maxTurns int
}

// NewMemoryStore creates an empty store bounded to MaxHistoryTurns.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionEntry),
		maxTurns: MaxHistoryTurns,
	}
}

func (s *MemoryStore) entry(id string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(ctx context.Context, id string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if id != "" {
		if _, ok := s.entry(id); ok {
			return id, false, nil
		}
	}

	newID := NewSessionID()
	s.mu.Lock()
	s.sessions[newID] = &sessionEntry{turns: []datatypes.Turn{}}
	s.mu.Unlock()
	return newID, true, nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, id string, turn datatypes.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.entry(id)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = Trim(append(e.turns, turn), s.maxTurns)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) ([]datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return []datatypes.Turn{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneTurns(e.turns), nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil
	}

	e.mu.Lock()
	e.turns = []datatypes.Turn{}
	e.mu.Unlock()
	return nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.entry(id)
	return ok, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// Close implements Store. The map is dropped.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
