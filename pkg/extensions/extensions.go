// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable capabilities of the orchestrator.
//
// The core service ships working defaults for every extension point; callers
// that need different behavior inject their own implementations via
// ServiceOptions.
//
// # Extension Categories
//
//   - classifier.go: topic gate for incoming messages (ScopeClassifier)
//   - audit.go: conversation event trail (AuditLogger)
//
// # Usage
//
//	opts := extensions.DefaultOptions().
//	    WithClassifier(&extensions.AllowAllClassifier{}).
//	    WithAudit(extensions.NewSlogAuditLogger(nil))
//	svc, err := orchestrator.New(ctx, cfg, &opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// All fields are optional.
type ServiceOptions struct {
	// Classifier gates which messages reach the LLM backend.
	// Default: nil, which makes the orchestrator install the keyword classifier.
	Classifier ScopeClassifier

	// AuditLogger records conversation events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with the open source defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuditLogger: &NopAuditLogger{},
	}
}

// WithClassifier returns a copy of opts with the given ScopeClassifier.
func (opts ServiceOptions) WithClassifier(classifier ScopeClassifier) ServiceOptions {
	opts.Classifier = classifier
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
