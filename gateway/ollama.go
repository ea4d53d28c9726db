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

package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// defaultOllamaBaseURL is used when neither the request nor the gateway
// config names an upstream.
const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaRequest is the /run_ollama_sse body. Model and Messages are
// forwarded verbatim to the upstream /api/chat endpoint.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages json.RawMessage `json:"messages"`
	BaseURL  string          `json:"baseUrl,omitempty"`
	Think    bool            `json:"think,omitempty"`
}

// ollamaChunk is one NDJSON line of the upstream stream.
type ollamaChunk struct {
	Message struct {
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// handleRunOllamaSSE streams an Ollama /api/chat response back to the
// client, splitting thinking chunks and content chunks onto the two SSE
// channels. Chunks are already deltas, so no prefix bookkeeping is needed.
func (g *Gateway) handleRunOllamaSSE(c *gin.Context) {
	var req ollamaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model and messages are required"})
		return
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = g.cfg.OllamaBaseURL
	}
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	upstreamBody, err := json.Marshal(map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   true,
		"think":    req.Think,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	upstreamReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost,
		strings.TrimSuffix(baseURL, "/")+"/api/chat", bytes.NewReader(upstreamBody))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(upstreamReq)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream request failed: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Upstream returned status %d: %s", resp.StatusCode, body)})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	out := &sseWriter{w: c.Writer}
	thinkingOpen := false
	thinkingID := ""

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			slog.Warn("Gateway: skipping malformed ollama chunk", "error", err)
			continue
		}
		if chunk.Error != "" {
			out.write(sseFrame{Error: chunk.Error})
			break
		}

		if chunk.Message.Thinking != "" {
			if !thinkingOpen {
				thinkingOpen = true
				thinkingID = uuid.NewString()
			}
			out.write(sseFrame{Thinking: &sseThinking{Text: chunk.Message.Thinking, ID: thinkingID}})
		}
		if chunk.Message.Content != "" {
			if thinkingOpen {
				out.write(thinkingCloseFrame(thinkingID))
				thinkingOpen = false
			}
			out.write(sseFrame{Content: &sseContent{Parts: []ssePart{{Text: chunk.Message.Content}}}})
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil && c.Request.Context().Err() == nil {
		out.write(sseFrame{Error: err.Error()})
	}

	if thinkingOpen {
		out.write(thinkingCloseFrame(thinkingID))
	}
}
