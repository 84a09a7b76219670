// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/edubot/pkg/extensions"
	"github.com/AleutianAI/edubot/services/llm"
	"github.com/AleutianAI/edubot/services/orchestrator/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Helpers
// =============================================================================

// MockLLMClient is a mock implementation of llm.LLMClient for testing.
type MockLLMClient struct {
	ChatResponse string
	ChatError    error
}

func (m *MockLLMClient) Chat(_ context.Context, _ []llm.Message, _ llm.GenerationParams) (string, error) {
	if m.ChatError != nil {
		return "", m.ChatError
	}
	return m.ChatResponse, nil
}

func (m *MockLLMClient) Model() string { return "mock-model" }

var testSecret = []byte("orchestrator-test-secret-0123456")

func newTestService(t *testing.T, cfg Config) Service {
	t.Helper()
	if cfg.SessionSecret == nil {
		cfg.SessionSecret = testSecret
	}
	svc, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func performRequest(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Config Tests
// =============================================================================

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, middleware.DefaultCookieName, cfg.CookieName)
	assert.Equal(t, StoreMemory, cfg.HistoryStore)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestApplyConfigDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := applyConfigDefaults(Config{
		Port:         8080,
		CookieName:   "tutor",
		HistoryStore: " Badger ",
		ReadTimeout:  time.Second,
	})

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "tutor", cfg.CookieName)
	assert.Equal(t, StoreBadger, cfg.HistoryStore)
	assert.Equal(t, time.Second, cfg.ReadTimeout)
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_WithBackend(t *testing.T) {
	svc := newTestService(t, Config{Backend: &MockLLMClient{ChatResponse: "Cells divide by mitosis."}})

	w := performRequest(svc.Router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","backend":true}`, w.Body.String())

	w = performRequest(svc.Router(), http.MethodPost, "/chat", `{"message":"Explain cell biology"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Cells divide by mitosis.")
	require.NotEmpty(t, w.Result().Cookies())

	w = performRequest(svc.Router(), http.MethodGet, "/history", "", w.Result().Cookies()...)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Explain cell biology")
}

func TestNew_MissingAPIKeyIsNotFatal(t *testing.T) {
	svc := newTestService(t, Config{LLM: llm.Config{Backend: llm.BackendGemini}})

	w := performRequest(svc.Router(), http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok","backend":false}`, w.Body.String())

	w = performRequest(svc.Router(), http.MethodPost, "/chat", `{"message":"what is algebra?"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "API key not set")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Config{
		LLM:           llm.Config{Backend: "llamafile"},
		SessionSecret: testSecret,
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "llamafile")
}

func TestNew_UnknownStore(t *testing.T) {
	_, err := New(context.Background(), Config{
		Backend:       &MockLLMClient{},
		HistoryStore:  "redis",
		SessionSecret: testSecret,
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNew_ShortSessionSecret(t *testing.T) {
	svc := newTestService(t, Config{
		Backend:       &MockLLMClient{ChatResponse: "ok"},
		SessionSecret: []byte("devsecret"),
	})

	w := performRequest(svc.Router(), http.MethodPost, "/chat", `{"message":"tell me a joke"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Result().Cookies())

	w = performRequest(svc.Router(), http.MethodGet, "/history", "", w.Result().Cookies()...)
	assert.Contains(t, w.Body.String(), "tell me a joke")
}

func TestNew_GeneratedSecret(t *testing.T) {
	svc, err := New(context.Background(), Config{Backend: &MockLLMClient{ChatResponse: "ok"}}, nil)
	require.NoError(t, err)
	defer svc.Close()

	w := performRequest(svc.Router(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Result().Cookies())
}

func TestNew_BadgerStore(t *testing.T) {
	svc := newTestService(t, Config{
		Backend:      &MockLLMClient{ChatResponse: "Newton's second law is F = ma."},
		HistoryStore: StoreBadger,
	})

	w := performRequest(svc.Router(), http.MethodPost, "/chat", `{"message":"Explain physics"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = performRequest(svc.Router(), http.MethodGet, "/history", "", w.Result().Cookies()...)
	assert.Contains(t, w.Body.String(), "F = ma")

	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

func TestNew_MetricsEndpoint(t *testing.T) {
	svc := newTestService(t, Config{Backend: &MockLLMClient{ChatResponse: "ok"}})

	performRequest(svc.Router(), http.MethodPost, "/chat", `{"message":"tell me a joke"}`)

	w := performRequest(svc.Router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `edubot_chat_messages_total{outcome="refused",rule="none"} 1`)
}

func TestNew_AuditLog(t *testing.T) {
	svc := newTestService(t, Config{Backend: &MockLLMClient{}, AuditLog: true})
	_, ok := svc.(*service).opts.AuditLogger.(*extensions.SlogAuditLogger)
	assert.True(t, ok, "AuditLog should install the slog audit logger")

	custom := &extensions.NopAuditLogger{}
	opts := extensions.DefaultOptions().WithAudit(custom)
	svc2, err := New(context.Background(), Config{Backend: &MockLLMClient{}, SessionSecret: testSecret}, &opts)
	require.NoError(t, err)
	defer svc2.Close()
	assert.Same(t, custom, svc2.(*service).opts.AuditLogger)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	port := freePort(t)
	svc := newTestService(t, Config{Port: port, Backend: &MockLLMClient{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	addr := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(addr)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_PortInUse(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	svc := newTestService(t, Config{Port: l.Addr().(*net.TCPAddr).Port, Backend: &MockLLMClient{}})

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server")
}
