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

// Package gateway exposes the HTTP surface: session CRUD, the /run_sse
// streaming endpoint with its single-shot token-overflow retry, the Ollama
// passthrough, and the context-tools dispatcher. JSON in, SSE out.
package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/achetronic/adk-context-gateway/memory"
	"github.com/achetronic/adk-context-gateway/registry"
	"github.com/achetronic/adk-context-gateway/runner"
	"github.com/achetronic/adk-context-gateway/session"
)

// maxBodyBytes caps request bodies at 50 MB.
const maxBodyBytes = 50 << 20

// appName is the single application this gateway serves.
const appName = "adk_chat"

// Gateway wires the HTTP surface over the decorated session store and the
// agent runner. Memory, detector and models are optional; endpoints that
// need a missing collaborator answer 501.
type Gateway struct {
	sessions session.Service
	runner   runner.Runner
	memory   memory.Associative
	detector memory.StuckDetector
	models   registry.ModelRegistry

	cfg Config
}

// Config holds configuration for the Gateway.
type Config struct {
	// Sessions is the decorated session store used by both the session
	// endpoints and the /run_sse pre-flight check.
	Sessions session.Service
	// Runner produces the event stream for /run_sse.
	Runner runner.Runner
	// Memory is the optional associative memory behind the hooks and
	// /context-tools.
	Memory memory.Associative
	// Detector is the optional stuck detector behind the pre-hook and
	// /context-tools.
	Detector memory.StuckDetector
	// Models is the optional model registry used to clamp per-request
	// context limits for overridden models.
	Models registry.ModelRegistry

	// BaseBudget and BufferTokens mirror the trimming decorator's settings;
	// the gateway only uses them for the registry clamp.
	BaseBudget   int
	BufferTokens int

	// EnableContextStrategies turns the stuck-detection and memory
	// enrichment hooks on.
	EnableContextStrategies bool

	// ToolExecutorURL is the default tool executor forwarded to the runner
	// through the request scope; the per-request toolExecutorUrl field
	// overrides it.
	ToolExecutorURL string

	// OllamaBaseURL is the default upstream for /run_ollama_sse.
	OllamaBaseURL string
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	return &Gateway{
		sessions: cfg.Sessions,
		runner:   cfg.Runner,
		memory:   cfg.Memory,
		detector: cfg.Detector,
		models:   cfg.Models,
		cfg:      cfg,
	}
}

// Router builds the gin engine with all routes registered.
func (g *Gateway) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"*"}
	router.Use(cors.New(corsConfig))

	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	})

	router.GET("/list-apps", g.handleListApps)
	router.POST("/apps/:app/users/:user/sessions/:session", g.handleCreateSession)
	router.GET("/apps/:app/users/:user/sessions/:session", g.handleGetSession)
	router.POST("/run_sse", g.handleRunSSE)
	router.POST("/run_ollama_sse", g.handleRunOllamaSSE)
	router.POST("/context-tools", g.handleContextTools)

	return router
}

func (g *Gateway) handleListApps(c *gin.Context) {
	c.JSON(http.StatusOK, []string{appName})
}

func (g *Gateway) handleCreateSession(c *gin.Context) {
	var body struct {
		State map[string]any `json:"state"`
	}
	// Body is optional; ignore malformed bodies rather than reject them.
	_ = c.ShouldBindJSON(&body)

	resp, err := g.sessions.Create(c.Request.Context(), &session.CreateRequest{
		AppName:   c.Param("app"),
		UserID:    c.Param("user"),
		SessionID: c.Param("session"),
		State:     body.State,
	})
	if err != nil {
		if errors.Is(err, session.ErrAlreadyExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Session already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.Session)
}

func (g *Gateway) handleGetSession(c *gin.Context) {
	resp, err := g.sessions.Get(c.Request.Context(), &session.GetRequest{
		AppName:   c.Param("app"),
		UserID:    c.Param("user"),
		SessionID: c.Param("session"),
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.Session)
}
