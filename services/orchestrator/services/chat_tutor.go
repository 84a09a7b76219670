// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. TutorService owns one chat exchange:
//   - Resolving the session in the history store
//   - Classifying the message
//   - Building the context window and calling the LLM backend
//   - Recording both turns
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/edubot/pkg/extensions"
	"github.com/AleutianAI/edubot/services/llm"
	"github.com/AleutianAI/edubot/services/orchestrator/classifier"
	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
	"github.com/AleutianAI/edubot/services/orchestrator/history"
	"github.com/AleutianAI/edubot/services/orchestrator/observability"
)

// tutorTracer is the OpenTelemetry tracer for TutorService operations.
var tutorTracer = otel.Tracer("edubot.orchestrator.services.tutor")

// =============================================================================
// Constants
// =============================================================================

// RefusalMessage is the fixed reply to out-of-scope messages.
const RefusalMessage = "I'm an educational assistant and can help you with academic topics like math, science, history, and literature. Could you please ask me something related to education or learning?"

// SystemInstruction is sent as the first (user-role) message of every
// backend request.
const SystemInstruction = `You are EduBot, an educational assistant that helps students learn and can also hold a natural conversation.

Education is your main focus, but you should also:
1. Answer questions about the conversation so far
2. Tell users what they asked or said earlier when they want to know
3. Refer back to earlier questions and answers when it helps

When explaining a concept:
- Break complex ideas into simpler parts
- Use analogies where they help
- Give examples
- Point out key concepts and vocabulary
- Mention real-world applications where relevant

Keep a friendly, conversational tone while staying informative.

If you are unsure about a fact, say so instead of guessing.`

const (
	// ContextWindowTurns is how many stored turns are sent once the
	// history is longer than ContextWindowThreshold.
	ContextWindowTurns = 10

	// ContextWindowThreshold is the history length above which only the
	// newest ContextWindowTurns turns are sent.
	ContextWindowThreshold = 5
)

// =============================================================================
// Errors
// =============================================================================

// ErrBackendUnavailable is returned when no LLM backend is configured.
// Nothing is recorded in that case.
var ErrBackendUnavailable = errors.New("LLM backend not configured")

// BackendError wraps a failed LLM backend call.
//
// # Description
//
// The user turn stays recorded when this error is returned. The wrapped
// cause may contain provider detail and is not meant for clients.
type BackendError struct {
	Model string
	Err   error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError checks if an error is a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// =============================================================================
// TutorService
// =============================================================================

// ChatResult is the outcome of one exchange.
type ChatResult struct {
	// SessionID is the session the turns were recorded under. It differs
	// from the requested id when a new session was minted.
	SessionID string

	// NewSession is true when SessionID was minted by this call.
	NewSession bool

	// Reply is the assistant turn's content.
	Reply string

	// History is the session's history after the exchange.
	History []datatypes.Turn

	// InScope reports the classifier decision.
	InScope bool
}

// ruleClassifier is implemented by classifiers that can explain a decision.
type ruleClassifier interface {
	Classify(text string) classifier.Decision
}

// TutorService handles chat exchanges, history queries and history resets.
//
// # Thread Safety
//
// Safe for concurrent use. Per-session ordering of appends is provided by the
// history store. Two concurrent messages on the same session may interleave
// their turns.
type TutorService struct {
	store      history.Store
	llmClient  llm.LLMClient
	classifier extensions.ScopeClassifier
	audit      extensions.AuditLogger
	metrics    *observability.ChatMetrics
	params     llm.GenerationParams
}

// NewTutorService creates a TutorService.
//
// # Inputs
//
//   - store: History store. Must not be nil.
//   - llmClient: Backend client. nil means no backend is configured and
//     every HandleMessage returns ErrBackendUnavailable.
//   - opts: Classifier and audit logger. A nil classifier selects the
//     keyword classifier.
//   - metrics: May be nil.
func NewTutorService(
	store history.Store,
	llmClient llm.LLMClient,
	opts extensions.ServiceOptions,
	metrics *observability.ChatMetrics,
) *TutorService {
	scope := opts.Classifier
	if scope == nil {
		scope = classifier.NewKeywordClassifier()
	}
	audit := opts.AuditLogger
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return &TutorService{
		store:      store,
		llmClient:  llmClient,
		classifier: scope,
		audit:      audit,
		metrics:    metrics,
		params:     llm.ParamsFromConfig(datatypes.DefaultGenerationConfig()),
	}
}

// BackendAvailable reports whether an LLM backend is configured.
func (s *TutorService) BackendAvailable() bool {
	return s.llmClient != nil
}

// HandleMessage runs one chat exchange.
//
// # Description
//
//  1. Fails with ErrBackendUnavailable when no backend is configured.
//  2. Resolves or creates the session and records the user turn.
//  3. Out-of-scope messages get RefusalMessage without a backend call.
//  4. In-scope messages are sent with the system instruction and the context
//     window; the reply is recorded as an assistant turn.
//
// # Outputs
//
//   - *ChatResult: Non-nil whenever the session was resolved, including
//     alongside a *BackendError, so callers can keep the session id.
//   - error: ErrBackendUnavailable, *BackendError, or a wrapped store error.
//
// # Examples
//
//	res, err := svc.HandleMessage(ctx, "", "Explain photosynthesis")
//	// res.History: [user "Explain photosynthesis", assistant <reply>]
//
// # Limitations
//
//   - The backend call is not retried.
//   - A backend failure leaves the user turn in the history.
func (s *TutorService) HandleMessage(ctx context.Context, sessionID, text string) (*ChatResult, error) {
	ctx, span := tutorTracer.Start(ctx, "TutorService.HandleMessage")
	defer span.End()

	if s.llmClient == nil {
		span.SetStatus(codes.Error, "backend unavailable")
		return nil, ErrBackendUnavailable
	}

	id, isNew, err := s.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session lookup failed")
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if isNew {
		s.refreshSessionGauge(ctx)
	}
	result := &ChatResult{SessionID: id, NewSession: isNew}
	span.SetAttributes(attribute.Bool("session.new", isNew))

	if err := s.store.Append(ctx, id, datatypes.UserTurn(text)); err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("record user turn: %w", err)
	}

	decision := s.classify(text)
	result.InScope = decision.InScope
	span.SetAttributes(
		attribute.Bool("classifier.in_scope", decision.InScope),
		attribute.String("classifier.rule", string(decision.Rule)),
	)
	slog.Debug("Classified message",
		"session_id", id,
		"in_scope", decision.InScope,
		"rule", decision.Rule,
		"match", decision.Match,
		"length", len(text),
	)

	if !decision.InScope {
		return s.finish(ctx, result, RefusalMessage, observability.OutcomeRefused, decision)
	}

	stored, err := s.store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("read history: %w", err)
	}

	messages := BuildContext(SystemInstruction, stored)
	start := time.Now()
	reply, err := s.llmClient.Chat(ctx, messages, s.params)
	s.metrics.RecordBackendCall(s.llmClient.Model(), time.Since(start).Seconds(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend call failed")
		slog.Error("LLM backend call failed", "session_id", id, "model", s.llmClient.Model(), "error", err)
		s.metrics.RecordMessage(observability.OutcomeFailed, string(decision.Rule))
		s.logAudit(ctx, extensions.AuditEvent{
			EventType: extensions.AuditEventChatFailed,
			SessionID: id,
			Outcome:   "error",
			Metadata:  map[string]any{"model": s.llmClient.Model()},
		})
		if current, getErr := s.store.Get(ctx, id); getErr == nil {
			result.History = current
		}
		return result, &BackendError{Model: s.llmClient.Model(), Err: err}
	}

	return s.finish(ctx, result, reply, observability.OutcomeAnswered, decision)
}

// finish records the assistant turn and fills in the result.
func (s *TutorService) finish(
	ctx context.Context,
	result *ChatResult,
	reply string,
	outcome observability.Outcome,
	decision classifier.Decision,
) (*ChatResult, error) {
	if err := s.store.Append(ctx, result.SessionID, datatypes.AssistantTurn(reply)); err != nil {
		return result, fmt.Errorf("record assistant turn: %w", err)
	}
	current, err := s.store.Get(ctx, result.SessionID)
	if err != nil {
		return result, fmt.Errorf("read history: %w", err)
	}

	result.Reply = reply
	result.History = current
	s.metrics.RecordMessage(outcome, string(decision.Rule))

	eventType, auditOutcome := extensions.AuditEventChatAnswered, "success"
	if outcome == observability.OutcomeRefused {
		eventType, auditOutcome = extensions.AuditEventChatRefused, "blocked"
	}
	s.logAudit(ctx, extensions.AuditEvent{
		EventType: eventType,
		SessionID: result.SessionID,
		Outcome:   auditOutcome,
		Metadata: map[string]any{
			"rule":        string(decision.Rule),
			"history_len": len(current),
		},
	})
	return result, nil
}

// BuildContext assembles the backend request: the system instruction as a
// user-role message, then the context window with assistant turns mapped to
// the "model" role.
//
// # Description
//
// The window is the newest ContextWindowTurns turns when the history holds
// more than ContextWindowThreshold turns, otherwise the whole history.
//
// # Examples
//
//	BuildContext(SystemInstruction, []datatypes.Turn{datatypes.UserTurn("Explain photosynthesis")})
//	// [{user SystemInstruction} {user "Explain photosynthesis"}]
func BuildContext(systemInstruction string, turns []datatypes.Turn) []llm.Message {
	window := turns
	if len(turns) > ContextWindowThreshold {
		window = history.Trim(turns, ContextWindowTurns)
	}

	messages := make([]llm.Message, 0, len(window)+1)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: systemInstruction})
	for _, t := range window {
		role := llm.RoleUser
		if t.Role == datatypes.RoleAssistant {
			role = llm.RoleModel
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	return messages
}

// EnsureSession resolves sessionID, minting a new session when it is empty
// or unknown.
func (s *TutorService) EnsureSession(ctx context.Context, sessionID string) (string, bool, error) {
	id, isNew, err := s.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("resolve session: %w", err)
	}
	if isNew {
		s.refreshSessionGauge(ctx)
	}
	return id, isNew, nil
}

// GetHistory returns the session's history; empty when the id is empty or
// unknown.
func (s *TutorService) GetHistory(ctx context.Context, sessionID string) ([]datatypes.Turn, error) {
	if sessionID == "" {
		return []datatypes.Turn{}, nil
	}
	turns, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return turns, nil
}

// ClearHistory resets the session's history. Unknown ids are a no-op and
// are neither counted nor audited.
func (s *TutorService) ClearHistory(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	exists, err := s.store.Exists(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.metrics.RecordHistoryClear()
	s.logAudit(ctx, extensions.AuditEvent{
		EventType: extensions.AuditEventHistoryCleared,
		SessionID: sessionID,
		Outcome:   "success",
	})
	return nil
}

func (s *TutorService) classify(text string) classifier.Decision {
	if rc, ok := s.classifier.(ruleClassifier); ok {
		return rc.Classify(text)
	}
	if s.classifier.IsInScope(text) {
		return classifier.Decision{InScope: true, Rule: "custom"}
	}
	return classifier.Decision{InScope: false, Rule: classifier.RuleNone}
}

func (s *TutorService) refreshSessionGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if n, err := s.store.Len(ctx); err == nil {
		s.metrics.SetSessions(n)
	}
}

func (s *TutorService) logAudit(ctx context.Context, event extensions.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.audit.Log(ctx, event); err != nil {
		slog.Warn("Failed to write audit event", "event_type", event.EventType, "error", err)
	}
}
