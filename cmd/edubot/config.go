// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/AleutianAI/edubot/pkg/logging"
	"github.com/AleutianAI/edubot/services/llm"
	"github.com/AleutianAI/edubot/services/orchestrator"
	"github.com/AleutianAI/edubot/services/orchestrator/middleware"
)

// Config is the file/environment configuration of the edubot binary.
// The values are read by viper from an optional YAML file and environment
// variables; the environment wins.
type Config struct {
	Port                int           `mapstructure:"port"`
	GinMode             string        `mapstructure:"gin_mode"`
	ExposeBackendErrors bool          `mapstructure:"expose_backend_errors"`
	AuditLog            bool          `mapstructure:"audit_log"`
	LLM                 LLMConfig     `mapstructure:"llm"`
	Session             SessionConfig `mapstructure:"session"`
	Store               StoreConfig   `mapstructure:"store"`
	OTel                OTelConfig    `mapstructure:"otel"`
	Log                 LogConfig     `mapstructure:"log"`
}

// LLMConfig selects the backend and holds its credentials.
type LLMConfig struct {
	Backend         string `mapstructure:"backend"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	Secret     string `mapstructure:"secret"`
	CookieName string `mapstructure:"cookie_name"`
	Secure     bool   `mapstructure:"secure"`
}

// StoreConfig selects the history store ("memory" or "badger").
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// OTelConfig configures span export.
type OTelConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// envBindings maps config keys to the environment variables that set them.
// When several names are listed the first one set wins.
var envBindings = map[string][]string{
	"port":                  {"PORT", "EDUBOT_PORT"},
	"gin_mode":              {"GIN_MODE"},
	"expose_backend_errors": {"EXPOSE_BACKEND_ERRORS"},
	"audit_log":             {"AUDIT_LOG"},
	"llm.backend":           {"LLM_BACKEND_TYPE"},
	"llm.model":             {"LLM_MODEL"},
	"llm.base_url":          {"LLM_BASE_URL"},
	"llm.gemini_api_key":    {"GEMINI_API_KEY"},
	"llm.openai_api_key":    {"OPENAI_API_KEY"},
	"llm.anthropic_api_key": {"ANTHROPIC_API_KEY"},
	"session.secret":        {"SECRET_KEY"},
	"session.cookie_name":   {"SESSION_COOKIE_NAME"},
	"session.secure":        {"SESSION_COOKIE_SECURE"},
	"store.backend":         {"HISTORY_STORE"},
	"otel.endpoint":         {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"log.level":             {"LOG_LEVEL"},
	"log.format":            {"LOG_FORMAT"},
	"log.dir":               {"LOG_DIR"},
}

// LoadConfig reads configuration from file or environment variables.
//
// An empty configPath looks for edubot.yaml in the working directory and
// in /etc/edubot; not finding one is not an error. An explicit path that
// cannot be read is.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edubot")
		v.SetConfigName("edubot")
		v.SetConfigType("yaml")
	}

	v.SetDefault("port", 5000)
	v.SetDefault("gin_mode", "release")
	v.SetDefault("expose_backend_errors", false)
	v.SetDefault("audit_log", false)
	v.SetDefault("llm.backend", llm.BackendGemini)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", middleware.DefaultCookieName)
	v.SetDefault("session.secure", false)
	v.SetDefault("store.backend", orchestrator.StoreMemory)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.dir", "")

	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// Orchestrator converts the file configuration into orchestrator.Config.
func (c *Config) Orchestrator() orchestrator.Config {
	var secret []byte
	if c.Session.Secret != "" {
		secret = []byte(c.Session.Secret)
	}
	return orchestrator.Config{
		Port: c.Port,
		LLM: llm.Config{
			Backend:         c.LLM.Backend,
			Model:           c.LLM.Model,
			GeminiAPIKey:    c.LLM.GeminiAPIKey,
			OpenAIAPIKey:    c.LLM.OpenAIAPIKey,
			AnthropicAPIKey: c.LLM.AnthropicAPIKey,
			BaseURL:         c.LLM.BaseURL,
		},
		SessionSecret:       secret,
		CookieName:          c.Session.CookieName,
		SecureCookie:        c.Session.Secure,
		HistoryStore:        c.Store.Backend,
		OTelEndpoint:        c.OTel.Endpoint,
		GinMode:             c.GinMode,
		ExposeBackendErrors: c.ExposeBackendErrors,
		AuditLog:            c.AuditLog,
	}
}

// Logging converts the log section into a logging.Config.
func (c *Config) Logging() (logging.Config, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Config{}, err
	}
	var jsonOut bool
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "json":
		jsonOut = true
	case "text":
		jsonOut = false
	default:
		return logging.Config{}, fmt.Errorf("unknown log format %q (want json or text)", c.Log.Format)
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Log.Dir,
		Service: orchestrator.ServiceName,
		JSON:    jsonOut,
	}, nil
}
