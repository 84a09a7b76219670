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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/edubot/pkg/logging"
	"github.com/AleutianAI/edubot/services/orchestrator"
	"github.com/AleutianAI/edubot/services/orchestrator/classifier"
)

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "edubot",
		Short:         "EduBot, an educational chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default: ./edubot.yaml if present)")

	rootCmd.AddCommand(newServeCmd(&configPath), newClassifyCmd())
	return rootCmd
}

// --- Serve ---

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the EduBot HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	logCfg, err := cfg.Logging()
	if err != nil {
		return err
	}
	logger := logging.New(logCfg)
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if path := logger.FilePath(); path != "" {
		slog.Info("Mirroring logs to file", "path", path)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := orchestrator.New(ctx, cfg.Orchestrator(), nil)
	if err != nil {
		return fmt.Errorf("failed to create EduBot server: %w", err)
	}
	return svc.Run(ctx)
}

// --- Classify ---

// classifyOutput is the --json shape of the classify command.
type classifyOutput struct {
	Message string `json:"message"`
	InScope bool   `json:"in_scope"`
	Rule    string `json:"rule"`
	Match   string `json:"match,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [message]",
		Short: "Show whether a message would be answered or refused, and which rule decided",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			decision := classifier.NewKeywordClassifier().Classify(message)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(classifyOutput{
					Message: message,
					InScope: decision.InScope,
					Rule:    string(decision.Rule),
					Match:   decision.Match,
				})
			}

			verdict := "refused"
			if decision.InScope {
				verdict = "answered"
			}
			fmt.Fprintf(out, "%s (rule: %s", verdict, decision.Rule)
			if decision.Match != "" {
				fmt.Fprintf(out, ", match: %q", decision.Match)
			}
			fmt.Fprintln(out, ")")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return cmd
}
