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

// Package config reads gateway configuration from the environment.
package config

import (
	"os"
	"strconv"
)

// Config is the gateway's environment-driven configuration.
type Config struct {
	// Port is the HTTP listen port (ADK_PORT, default 8000). PortFile,
	// when set, receives the bound port after listen (ADK_PORT_FILE).
	Port     int
	PortFile string

	// RankTokenBudget is the trimmer's base budget (ADK_CONTEXT_RANK_TOKEN_BUDGET, default 4000).
	RankTokenBudget int
	// BufferTokens is the trimmer's headroom (ADK_CONTEXT_BUFFER_TOKENS, default 2200).
	BufferTokens int

	// CompactionInterval and CompactionOverlap parameterize the sliding
	// window (ADK_COMPACTION_INTERVAL default 3, ADK_COMPACTION_OVERLAP default 1).
	CompactionInterval int
	CompactionOverlap  int
	// EnableCompaction turns the compacting decorator on (ADK_ENABLE_COMPACTION).
	EnableCompaction bool

	// EnableContextStrategies turns the stuck-detection / associative
	// memory hooks on (ADK_ENABLE_CONTEXT_STRATEGIES).
	EnableContextStrategies bool

	// ToolExecutorURL is the default tool executor forwarded to the runner;
	// requests can override it per turn (ADK_TOOL_EXECUTOR_URL).
	ToolExecutorURL string

	// SessionBackend selects the baseline store: "memory" (default) or
	// "redis" (ADK_SESSION_BACKEND).
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// MemoryPostgresDSN, when set, enables the Postgres associative
	// memory (ADK_MEMORY_POSTGRES_DSN).
	MemoryPostgresDSN string

	// Summarizer / runner transport.
	OpenAIBaseURL  string
	OpenAIModel    string
	OpenAIAPIKey   string
	EmbeddingModel string

	// Anthropic summarizer fallback, used when no OpenAI-compatible base
	// URL is configured.
	AnthropicAPIKey string
	AnthropicModel  string
}

// FromEnv builds a Config from the environment with defaults applied.
func FromEnv() Config {
	return Config{
		Port:     getEnvInt("ADK_PORT", 8000),
		PortFile: os.Getenv("ADK_PORT_FILE"),

		RankTokenBudget: getEnvInt("ADK_CONTEXT_RANK_TOKEN_BUDGET", 4000),
		BufferTokens:    getEnvInt("ADK_CONTEXT_BUFFER_TOKENS", 2200),

		CompactionInterval: getEnvInt("ADK_COMPACTION_INTERVAL", 3),
		CompactionOverlap:  getEnvInt("ADK_COMPACTION_OVERLAP", 1),
		EnableCompaction:   getEnvBool("ADK_ENABLE_COMPACTION"),

		EnableContextStrategies: getEnvBool("ADK_ENABLE_CONTEXT_STRATEGIES"),

		ToolExecutorURL: os.Getenv("ADK_TOOL_EXECUTOR_URL"),

		SessionBackend: getEnvOrDefault("ADK_SESSION_BACKEND", "memory"),
		RedisAddr:      getEnvOrDefault("ADK_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("ADK_REDIS_PASSWORD"),
		RedisDB:        getEnvInt("ADK_REDIS_DB", 0),

		MemoryPostgresDSN: os.Getenv("ADK_MEMORY_POSTGRES_DSN"),

		OpenAIBaseURL:  os.Getenv("OPENAI_COMPATIBLE_BASE_URL"),
		OpenAIModel:    getEnvOrDefault("OPENAI_COMPATIBLE_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel: getEnvOrDefault("OPENAI_COMPATIBLE_EMBEDDING_MODEL", "text-embedding-3-small"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}
