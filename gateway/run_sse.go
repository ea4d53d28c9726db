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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/achetronic/adk-context-gateway/ranker"
	"github.com/achetronic/adk-context-gateway/runner"
	"github.com/achetronic/adk-context-gateway/scope"
	"github.com/achetronic/adk-context-gateway/session"
)

// defaultRetryTrimPercent is the share of the budget kept on a retry pass.
const defaultRetryTrimPercent = 12.5

// tokenLimitPattern recognizes provider token-overflow errors across OpenAI,
// Anthropic, Ollama and llama.cpp phrasings.
var tokenLimitPattern = regexp.MustCompile(`(?i)(context length|context_length|prompt too long|token limit|max.*token|maximum context|exceeded|num_ctx|input.*length|too many tokens|token count|context window)`)

// runSSERequest is the /run_sse body.
type runSSERequest struct {
	AppName          string               `json:"appName"`
	UserID           string               `json:"userId"`
	SessionID        string               `json:"sessionId"`
	NewMessage       *session.Content     `json:"newMessage"`
	Streaming        bool                 `json:"streaming"`
	ModelOverride    *scope.ModelOverride `json:"modelOverride,omitempty"`
	ToolExecutorURL  string               `json:"toolExecutorUrl,omitempty"`
	ContextLimit     int                  `json:"contextLimit,omitempty"`
	RetryTrimPercent float64              `json:"retryTrimPercent,omitempty"`
}

// SSE frame shapes. Exactly one field is set per frame.
type ssePart struct {
	Text string `json:"text"`
}

type sseContent struct {
	Parts []ssePart `json:"parts"`
}

type sseThinking struct {
	Text     string         `json:"text"`
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sseFrame struct {
	Content  *sseContent  `json:"content,omitempty"`
	Thinking *sseThinking `json:"thinking,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// sseWriter emits data-only SSE frames and flushes after each one.
type sseWriter struct {
	w gin.ResponseWriter
}

func (s *sseWriter) write(frame sseFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Gateway: failed to marshal SSE frame", "error", err)
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.w.Flush()
}

// deltaState tracks what has been sent on each channel so far. Thinking and
// content are independent prefix-delta streams.
type deltaState struct {
	thought      string
	content      string
	thinkingOpen bool
	thinkingID   string
}

// delta returns the not-yet-sent suffix of newText against oldText; when
// newText does not extend oldText the stream restarted, so newText is
// returned in full.
func delta(oldText, newText string) string {
	if strings.HasPrefix(newText, oldText) {
		return newText[len(oldText):]
	}
	return newText
}

func (g *Gateway) handleRunSSE(c *gin.Context) {
	var req runSSERequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.AppName == "" || req.UserID == "" || req.SessionID == "" || req.NewMessage == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "appName, userId, sessionId and newMessage are required"})
		return
	}
	if req.RetryTrimPercent == 0 {
		req.RetryTrimPercent = defaultRetryTrimPercent
	}
	if req.RetryTrimPercent < 1 || req.RetryTrimPercent > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "retryTrimPercent must be in [1,100]"})
		return
	}
	if req.ContextLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contextLimit must be > 0"})
		return
	}

	if req.ToolExecutorURL == "" {
		req.ToolExecutorURL = g.cfg.ToolExecutorURL
	}

	if err := g.ensureSession(c.Request.Context(), &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	sc := &scope.Scope{
		ModelOverride:    req.ModelOverride,
		ContextLimit:     req.ContextLimit,
		RetryTrimPercent: req.RetryTrimPercent,
		ToolExecutorURL:  req.ToolExecutorURL,
	}
	g.clampContextLimit(sc)

	ctx := scope.With(c.Request.Context(), sc)
	ctx, span := otel.Tracer("gateway").Start(ctx, "run_sse")
	span.SetAttributes(attribute.String("session.id", req.SessionID))
	defer span.End()

	if g.cfg.EnableContextStrategies {
		g.preHook(ctx, &req)
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	out := &sseWriter{w: c.Writer}
	state := &deltaState{}
	userText := contentText(req.NewMessage)

	runReq := &runner.Request{
		AppName:          req.AppName,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		NewMessage:       req.NewMessage,
		Streaming:        req.Streaming,
		AppendNewMessage: true,
	}

	retried := false
	for {
		needRetry := g.streamTurn(ctx, out, state, runReq, retried)
		if !needRetry || retried {
			break
		}

		// Single-shot recovery: tighten the budget for the re-read, reset
		// both delta channels, and do not append the user message again.
		retried = true
		sc.RetryFactor = sc.RetryTrimPercent / 100
		state = &deltaState{}
		runReq.AppendNewMessage = false
		slog.Info("Gateway: token limit hit, retrying with tightened budget",
			"session", req.SessionID, "retryFactor", sc.RetryFactor)
	}

	if state.thinkingOpen {
		out.write(thinkingCloseFrame(state.thinkingID))
		state.thinkingOpen = false
	}

	if g.cfg.EnableContextStrategies {
		go g.postHook(userText, state.content)
	}
}

// streamTurn consumes one runner pass, writing SSE frames. It reports
// whether a token-limit error asked for the shrink-and-retry pass; when
// retryConsumed is set such errors are surfaced instead.
func (g *Gateway) streamTurn(ctx context.Context, out *sseWriter, state *deltaState, runReq *runner.Request, retryConsumed bool) bool {
	for evt, err := range g.runner.Run(ctx, runReq) {
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			out.write(sseFrame{Error: err.Error()})
			return false
		}

		if evt.ErrorMessage != "" {
			if !retryConsumed && tokenLimitPattern.MatchString(evt.ErrorMessage) {
				return true
			}
			out.write(sseFrame{Error: evt.ErrorMessage})
			continue
		}

		g.emitEvent(out, state, evt)
	}
	return false
}

// emitEvent extracts the thinking and content snapshots from an event and
// writes the prefix-deltas. Order per event: thinking delta, thinking close
// once content begins, content delta.
func (g *Gateway) emitEvent(out *sseWriter, state *deltaState, evt *session.Event) {
	thought := thoughtText(evt.Content)
	content := contentText(evt.Content)

	if d := delta(state.thought, thought); d != "" {
		if !state.thinkingOpen {
			state.thinkingOpen = true
			state.thinkingID = uuid.NewString()
		}
		out.write(sseFrame{Thinking: &sseThinking{Text: d, ID: state.thinkingID}})
	}
	state.thought = thought

	if content != "" && state.thinkingOpen {
		out.write(thinkingCloseFrame(state.thinkingID))
		state.thinkingOpen = false
	}

	if d := delta(state.content, content); d != "" {
		out.write(sseFrame{Content: &sseContent{Parts: []ssePart{{Text: d}}}})
	}
	state.content = content
}

func thinkingCloseFrame(id string) sseFrame {
	return sseFrame{Thinking: &sseThinking{
		Text:     "",
		ID:       id,
		Metadata: map[string]any{"vscodeReasoningDone": true},
	}}
}

// thoughtText concatenates the text of thought parts.
func thoughtText(content *session.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// contentText concatenates the readable text of non-thought parts. Inline
// binary parts are skipped, they have no streamable text.
func contentText(content *session.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought || part.InlineData != nil {
			continue
		}
		sb.WriteString(session.PartText(part))
	}
	return sb.String()
}

// ensureSession creates the session on first use.
func (g *Gateway) ensureSession(ctx context.Context, req *runSSERequest) error {
	_, err := g.sessions.Get(ctx, &session.GetRequest{
		AppName:   req.AppName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return err
	}
	_, err = g.sessions.Create(ctx, &session.CreateRequest{
		AppName:   req.AppName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil && !errors.Is(err, session.ErrAlreadyExists) {
		return err
	}
	return nil
}

// clampContextLimit consults the model registry when the request overrides
// the model without pinning a context limit. Models whose real window (minus
// the trimmer's buffer) is smaller than the default base budget get their
// window installed as the per-request limit.
func (g *Gateway) clampContextLimit(sc *scope.Scope) {
	if g.models == nil || sc.ContextLimit > 0 {
		return
	}
	if sc.ModelOverride == nil || sc.ModelOverride.Model == "" {
		return
	}
	window := g.models.ContextWindow(sc.ModelOverride.Model)
	if window-g.cfg.BufferTokens < g.cfg.BaseBudget {
		sc.ContextLimit = window
		slog.Info("Gateway: clamped context limit to model window",
			"model", sc.ModelOverride.Model, "window", window)
	}
}

// preHook runs stuck detection and associative enrichment over the session
// before the turn, rewriting the outgoing user message. Failures are logged
// and never break the turn.
func (g *Gateway) preHook(ctx context.Context, req *runSSERequest) {
	userText := contentText(req.NewMessage)
	if strings.TrimSpace(userText) == "" {
		return
	}

	var prefixes []string

	if g.detector != nil {
		if recovery := g.detectRecovery(ctx, req); recovery != "" {
			prefixes = append(prefixes, recovery)
		}
	}

	if g.memory != nil {
		result, err := g.memory.Sieve(ctx, userText, 800)
		if err != nil {
			slog.Warn("Gateway: memory sieve failed", "error", err)
		} else if result != nil && result.Context != "" {
			prefixes = append(prefixes, "[Relevant context]\n"+result.Context)
		}
	}

	if len(prefixes) == 0 {
		return
	}

	rewritten := strings.Join(prefixes, "\n\n") + "\n\n[User message]\n" + userText
	req.NewMessage = &session.Content{
		Role:  req.NewMessage.Role,
		Parts: []*session.Part{{Text: rewritten}},
	}
}

func (g *Gateway) detectRecovery(ctx context.Context, req *runSSERequest) string {
	resp, err := g.sessions.Get(ctx, &session.GetRequest{
		AppName:   req.AppName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		slog.Warn("Gateway: stuck detection session read failed", "error", err)
		return ""
	}

	messages, _ := ranker.EventsToMessages(resp.Session.Events)
	detection, err := g.detector.DetectStuck(messages)
	if err != nil || detection == nil || !detection.IsStuck {
		return ""
	}

	recovery, err := g.detector.GenerateRecoveryMessage(detection)
	if err != nil || recovery == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range recovery.Content {
		sb.WriteString(session.PartText(part))
	}
	slog.Info("Gateway: stuck loop detected, injecting recovery",
		"type", detection.Type, "confidence", detection.Confidence)
	return sb.String()
}

// postHook ingests a short summary of the exchange into associative memory.
// Runs detached from the request context; advisory.
func (g *Gateway) postHook(userText, finalContent string) {
	if g.memory == nil {
		return
	}
	summary := truncate(userText, 200) + "\n" + truncate(finalContent, 500)
	if strings.TrimSpace(summary) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := g.memory.Ingest(ctx, summary, "conversation", "", "gateway", nil); err != nil {
		slog.Warn("Gateway: post-hook ingest failed", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
