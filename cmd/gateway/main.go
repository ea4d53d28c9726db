// Copyright 2025 achetronic
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gateway wires the session store stack (baseline store, optional
// compaction, trimming), the bundled runner, and the HTTP surface, then
// serves until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/achetronic/adk-context-gateway/compact"
	"github.com/achetronic/adk-context-gateway/config"
	"github.com/achetronic/adk-context-gateway/gateway"
	"github.com/achetronic/adk-context-gateway/memory"
	memorypg "github.com/achetronic/adk-context-gateway/memory/postgres"
	"github.com/achetronic/adk-context-gateway/ranker"
	"github.com/achetronic/adk-context-gateway/registry"
	openairunner "github.com/achetronic/adk-context-gateway/runner/openai"
	"github.com/achetronic/adk-context-gateway/session"
	sessionmemory "github.com/achetronic/adk-context-gateway/session/memory"
	sessionredis "github.com/achetronic/adk-context-gateway/session/redis"
	"github.com/achetronic/adk-context-gateway/trim"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Gateway: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	shutdownTracing, err := setupTracing()
	if err != nil {
		slog.Warn("Gateway: tracing disabled", "error", err)
	} else {
		defer shutdownTracing()
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := openairunner.New(openairunner.Config{
		Sessions: store,
		BaseURL:  cfg.OpenAIBaseURL,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.OpenAIModel,
	})

	assocMemory, detector, closeMemory := buildMemory(cfg)
	defer closeMemory()

	gw := gateway.New(gateway.Config{
		Sessions:                store,
		Runner:                  runner,
		Memory:                  assocMemory,
		Detector:                detector,
		Models:                  registry.NewCrushRegistry(),
		BaseBudget:              cfg.RankTokenBudget,
		BufferTokens:            cfg.BufferTokens,
		EnableContextStrategies: cfg.EnableContextStrategies,
		ToolExecutorURL:         cfg.ToolExecutorURL,
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if cfg.PortFile != "" {
		port := listener.Addr().(*net.TCPAddr).Port
		if err := os.WriteFile(cfg.PortFile, []byte(strconv.Itoa(port)), 0o644); err != nil {
			slog.Warn("Gateway: failed to write port file", "path", cfg.PortFile, "error", err)
		}
	}

	server := &http.Server{Handler: gw.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	slog.Info("Gateway: listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("Gateway: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
	}
	return nil
}

// buildStore assembles the session store stack: baseline store, compacting
// decorator when enabled, trimming decorator outermost.
func buildStore(cfg config.Config) (session.Service, func(), error) {
	var store session.Service
	closeStore := func() {}

	switch cfg.SessionBackend {
	case "redis":
		redisStore, err := sessionredis.NewRedisSessionService(sessionredis.RedisSessionServiceConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect session store: %w", err)
		}
		store = redisStore
		closeStore = func() { _ = redisStore.Close() }
	default:
		store = sessionmemory.NewInMemorySessionService()
	}

	if cfg.EnableCompaction {
		compactor := compact.NewCompactor(buildSummarizer(cfg), cfg.CompactionInterval, cfg.CompactionOverlap, 0)
		store = compact.NewService(store, compactor)
	}

	store = trim.NewService(store, trim.ServiceConfig{
		BaseBudget:   cfg.RankTokenBudget,
		BufferTokens: cfg.BufferTokens,
		Ranker:       ranker.NewHeuristic(""),
	})

	return store, closeStore, nil
}

// buildSummarizer prefers the OpenAI-compatible endpoint and falls back to
// Anthropic when only an Anthropic key is configured.
func buildSummarizer(cfg config.Config) compact.Summarizer {
	if cfg.OpenAIBaseURL != "" || cfg.AnthropicAPIKey == "" {
		return compact.NewOpenAISummarizer(compact.OpenAISummarizerConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		})
	}
	return compact.NewAnthropicSummarizer(cfg.AnthropicAPIKey, cfg.AnthropicModel)
}

// buildMemory wires the optional Postgres associative memory and the stuck
// detector. Both are advisory collaborators: failures here only disable the
// hooks.
func buildMemory(cfg config.Config) (memory.Associative, memory.StuckDetector, func()) {
	closeMemory := func() {}
	if !cfg.EnableContextStrategies {
		return nil, nil, closeMemory
	}

	detector := memory.NewRepetitionDetector()

	if cfg.MemoryPostgresDSN == "" {
		return nil, detector, closeMemory
	}

	embedding := memorypg.NewOpenAICompatibleEmbedding(memorypg.OpenAICompatibleEmbeddingConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.EmbeddingModel,
	})
	assoc, err := memorypg.NewAssociativeMemory(memorypg.AssociativeMemoryConfig{
		DSN:       cfg.MemoryPostgresDSN,
		Embedding: embedding,
	})
	if err != nil {
		slog.Warn("Gateway: associative memory disabled", "error", err)
		return nil, detector, closeMemory
	}
	closeMemory = func() { _ = assoc.Close() }
	return assoc, detector, closeMemory
}

// setupTracing installs an OTLP/HTTP tracer provider. The exporter endpoint
// comes from the standard OTEL_EXPORTER_OTLP_* environment variables.
func setupTracing() (func(), error) {
	exporter, err := otlptracehttp.New(context.Background())
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}, nil
}
