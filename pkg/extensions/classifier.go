// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

// =============================================================================
// ScopeClassifier Interface
// =============================================================================

// ScopeClassifier decides whether a user message belongs in an educational
// conversation.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The orchestrator installs the keyword/pattern classifier from
// services/orchestrator/classifier when no classifier is supplied.
//
// # Alternative Implementations
//
// The interface has a single method so a model-based intent detector can be
// dropped in without touching the tutor service:
//
//	type LLMIntentClassifier struct {
//	    client llm.LLMClient
//	}
//
//	func (c *LLMIntentClassifier) IsInScope(text string) bool {
//	    // ask a small model "is this educational?"
//	}
//
// # Limitations
//
//   - No context.Context: classification is expected to be in-memory and fast.
//     Implementations that need I/O should enforce their own deadline.
type ScopeClassifier interface {
	// IsInScope returns true when the message should be forwarded to the LLM
	// backend and false when it should receive the canned refusal.
	IsInScope(text string) bool
}

// =============================================================================
// Allow-All Implementation
// =============================================================================

// AllowAllClassifier accepts every message.
//
// Useful for deployments that want EduBot's persona without topic filtering,
// and in tests that exercise the backend path with arbitrary text.
//
// Thread-safe: This implementation has no mutable state.
type AllowAllClassifier struct{}

// IsInScope always returns true.
func (c *AllowAllClassifier) IsInScope(_ string) bool {
	return true
}

// Compile-time interface compliance check.
var _ ScopeClassifier = (*AllowAllClassifier)(nil)
