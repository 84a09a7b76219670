// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"], "serve command missing")
	assert.True(t, names["classify"], "classify command missing")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestClassifyCmd_Text(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"keyword", []string{"classify", "what", "is", "physics?"}, `answered (rule: keyword, match: "physics")`},
		{"meta", []string{"classify", "show my history"}, "answered (rule: meta"},
		{"refused", []string{"classify", "tell me a joke"}, "refused (rule: none)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestClassifyCmd_JSON(t *testing.T) {
	out, err := executeCommand(t, "classify", "--json", "Explain photosynthesis")
	require.NoError(t, err)

	var got classifyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Explain photosynthesis", got.Message)
	assert.True(t, got.InScope)
	assert.NotEmpty(t, got.Rule)
}

func TestClassifyCmd_RequiresMessage(t *testing.T) {
	_, err := executeCommand(t, "classify")
	assert.Error(t, err)
}

func TestServeCmd_RejectsArgs(t *testing.T) {
	_, err := executeCommand(t, "serve", "extra")
	assert.Error(t, err)
}

func TestServeCmd_BadConfigPath(t *testing.T) {
	clearEnv(t)
	_, err := executeCommand(t, "--config", "/nonexistent/edubot.yaml", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
