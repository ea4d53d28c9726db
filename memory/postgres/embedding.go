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

package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EmbeddingModel turns text into a vector for similarity search.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAICompatibleEmbedding implements EmbeddingModel using the OpenAI
// embeddings API format, the de facto standard supported by OpenAI,
// Ollama (/v1), Azure OpenAI, vLLM, LocalAI, LiteLLM, etc.
type OpenAICompatibleEmbedding struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// OpenAICompatibleEmbeddingConfig holds configuration for the embedding model.
type OpenAICompatibleEmbeddingConfig struct {
	// BaseURL, e.g. "https://api.openai.com/v1" or "http://localhost:11434/v1".
	BaseURL string
	// APIKey is optional for local models.
	APIKey string
	// Model, e.g. "text-embedding-3-small" or "nomic-embed-text".
	Model string
	// HTTPClient allows customizing the HTTP client. Useful for testing
	// with mock servers. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewOpenAICompatibleEmbedding creates a new embedding client.
func NewOpenAICompatibleEmbedding(cfg OpenAICompatibleEmbeddingConfig) *OpenAICompatibleEmbedding {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAICompatibleEmbedding{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpClient,
	}
}

// Embed generates an embedding vector for the given text.
func (e *OpenAICompatibleEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]any{
		"model": e.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return result.Data[0].Embedding, nil
}

// embeddingResponse represents the OpenAI embeddings API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

var _ EmbeddingModel = (*OpenAICompatibleEmbedding)(nil)
