// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// # Session Flow
//
// The session middleware loads a signed cookie and exposes the EduBot session
// id stored in it. Handlers read the id with GetSessionID and, after the
// history store has minted a new one, persist it with SetSessionID.
//
//	Request
//	   │
//	   ▼
//	Sessions (cookie decode + signature check)
//	   │
//	   ▼
//	Handler ── GetSessionID ──► history store ── SetSessionID ──► Set-Cookie
//
// The cookie only carries an opaque id. Histories stay on the server.
package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Constants
// =============================================================================

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "edubot_session"

// sessionIDKey is the key of the session id inside the cookie payload.
const sessionIDKey = "session_id"

// ErrEmptySecret is returned by Sessions when no signing secret is given.
var ErrEmptySecret = errors.New("session secret must not be empty")

// =============================================================================
// Configuration
// =============================================================================

// SessionConfig configures the cookie session store.
type SessionConfig struct {
	// CookieName defaults to DefaultCookieName.
	CookieName string

	// Secret signs the cookie. Any non-empty value; the HMAC key is its
	// SHA-256 digest.
	Secret []byte

	// Secure restricts the cookie to HTTPS.
	Secure bool
}

// GenerateSecret returns 32 random bytes for signing cookies.
//
// Used when SECRET_KEY is unset: cookies then stop validating after a
// restart, which matches the lifetime of the in-memory histories.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	return secret, nil
}

// =============================================================================
// Middleware
// =============================================================================

// Sessions returns the cookie session middleware.
//
// # Inputs
//
//   - cfg: Cookie name, signing secret and Secure flag.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware to install before the chat routes.
//   - error: ErrEmptySecret when cfg.Secret is empty.
func Sessions(cfg SessionConfig) (gin.HandlerFunc, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	name := cfg.CookieName
	if name == "" {
		name = DefaultCookieName
	}

	signingKey := sha256.Sum256(cfg.Secret)
	store := cookie.NewStore(signingKey[:])
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(name, store), nil
}

// GetSessionID returns the session id carried by the request cookie, or ""
// when there is none.
func GetSessionID(c *gin.Context) string {
	session := sessions.Default(c)
	if id, ok := session.Get(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// SetSessionID stores id in the session cookie and writes it to the response.
// It is a no-op when the cookie already carries id.
func SetSessionID(c *gin.Context, id string) error {
	session := sessions.Default(c)
	if current, ok := session.Get(sessionIDKey).(string); ok && current == id {
		return nil
	}
	session.Set(sessionIDKey, id)
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session cookie: %w", err)
	}
	return nil
}
