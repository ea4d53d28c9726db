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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/achetronic/adk-context-gateway/memory"
	"github.com/achetronic/adk-context-gateway/ranker"
)

// contextToolsRequest is the /context-tools body: a tool name plus the
// union of every tool's arguments.
type contextToolsRequest struct {
	Tool string `json:"tool"`

	// sieve
	Query       string `json:"query,omitempty"`
	TokenBudget int    `json:"tokenBudget,omitempty"`

	// ingest
	Content     string   `json:"content,omitempty"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Source      string   `json:"source,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// recordTaskOutcome
	Outcome string `json:"outcome,omitempty"`

	// detectStuck
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages,omitempty"`
}

// handleContextTools dispatches to the named context tool. Deployments
// without the external memory (or detector) answer 501 for the tools that
// need them.
func (g *Gateway) handleContextTools(c *gin.Context) {
	var req contextToolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	switch req.Tool {
	case "sieve":
		if g.memory == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Associative memory is not configured"})
			return
		}
		budget := req.TokenBudget
		if budget <= 0 {
			budget = 800
		}
		result, err := g.memory.Sieve(c.Request.Context(), req.Query, budget)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)

	case "ingest":
		if g.memory == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Associative memory is not configured"})
			return
		}
		node, err := g.memory.Ingest(c.Request.Context(), req.Content, req.Category, req.Subcategory, req.Source, req.Tags)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, node)

	case "recordTaskOutcome":
		if g.memory == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Associative memory is not configured"})
			return
		}
		if err := g.memory.RecordTaskOutcome(c.Request.Context(), memory.Outcome(req.Outcome)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recorded": true})

	case "detectStuck":
		if g.detector == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "Stuck detector is not configured"})
			return
		}
		messages := make([]*ranker.Message, 0, len(req.Messages))
		for _, m := range req.Messages {
			role := ranker.User
			if m.Role == "assistant" || m.Role == "model" {
				role = ranker.Assistant
			}
			messages = append(messages, &ranker.Message{
				Role:    role,
				Content: []ranker.ContentItem{{Type: "text", Value: m.Content}},
			})
		}
		detection, err := g.detector.DetectStuck(messages)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detection)

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tool: " + req.Tool})
	}
}
