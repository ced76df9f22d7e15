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
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMend/pkg/logging"
	"github.com/AleutianAI/AleutianMend/services/llm"
	"github.com/AleutianAI/AleutianMend/services/mend/config"
	"github.com/AleutianAI/AleutianMend/services/mend/env"
	"github.com/AleutianAI/AleutianMend/services/mend/episode"
	"github.com/AleutianAI/AleutianMend/services/mend/policy"
	"github.com/AleutianAI/AleutianMend/services/mend/scope"
	"github.com/AleutianAI/AleutianMend/services/mend/telemetry"
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if episodeLength > 0 {
		cfg.Episode.Length = episodeLength
	}
	if backend != "" {
		cfg.Policy.Backend = backend
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Observability.LogLevel),
		Service: "mend",
		JSON:    cfg.Observability.LogFormat == "json",
	})
	defer func() { _ = logger.Close() }()
	logger.SetAsDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "mend",
		ServiceVersion: "1.0.0",
		Environment:    os.Getenv("MEND_ENV"),
		TraceExporter:  cfg.Observability.TraceExporter,
		MetricExporter: cfg.Observability.MetricExporter,
		PrometheusPort: cfg.Observability.PrometheusPort,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if handler := telemetry.MetricsHandler(); handler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Observability.PrometheusPort)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("metrics endpoint stopped", "error", err.Error())
			}
		}()
	}

	crashText, err := os.ReadFile(crashPath)
	if err != nil {
		return fmt.Errorf("read crash report: %w", err)
	}

	p, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	e := env.New(
		env.WithEpisodeLength(cfg.Episode.Length),
		env.WithMaxWorkers(cfg.Episode.MaxWorkers),
		env.WithUnitTimeout(cfg.Episode.UnitTimeout),
		env.WithScopeBuilder(scope.SandboxBuilder(
			scope.WithMaxFileSize(cfg.Sandbox.MaxFileSize),
			scope.WithMaxWallClock(cfg.Sandbox.MaxWallClock),
		)),
	)

	result, err := env.RunEpisode(ctx, e, p, episode.Context{
		CrashText: string(crashText),
		RepoRoot:  repoRoot,
		Languages: languages,
		SeedFiles: seedFiles,
	})
	if err != nil {
		return fmt.Errorf("run episode: %w", err)
	}

	printResult(cmd, result)
	return nil
}

// buildPolicy selects the decision policy from config and flags.
func buildPolicy(cfg config.Config) (policy.Policy, error) {
	if useEraser {
		return policy.NewEraserPolicy(0), nil
	}

	var client llm.LLMClient
	var err error
	switch cfg.Policy.Backend {
	case "local":
		client, err = llm.NewLocalLlamaCppClient()
	default:
		client, err = llm.NewOpenAIClient()
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Policy.Backend, err)
	}

	temp := cfg.Policy.Temperature
	maxTokens := cfg.Policy.MaxTokens
	return policy.NewLLMPolicy(client,
		policy.WithCompletionTimeout(cfg.Policy.CompletionTimeout),
		policy.WithRateLimit(cfg.Policy.RateLimit, cfg.Policy.RateBurst),
		policy.WithGenerationParams(llm.GenerationParams{
			Temperature: &temp,
			MaxTokens:   &maxTokens,
		}),
	), nil
}

func printResult(cmd *cobra.Command, result *env.EpisodeResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "episode %s finished after %d step(s)\n", result.EpisodeID, result.Steps)
	switch {
	case result.Terminated:
		fmt.Fprintln(out, "status: terminated")
	case result.Truncated:
		fmt.Fprintln(out, "status: truncated (step budget or policy failure)")
	}
	if result.Summary != "" {
		fmt.Fprintf(out, "summary: %s\n", result.Summary)
	}
	for _, doc := range result.Final.FileDocuments() {
		fmt.Fprintf(out, "document: %s (version %d, %d annotation(s))\n",
			doc.Path, doc.Version, len(doc.Annotations))
		if doc.Version > 1 {
			fmt.Fprintln(out, "--- patched content ---")
			fmt.Fprintln(out, doc.Content)
		}
	}
}
