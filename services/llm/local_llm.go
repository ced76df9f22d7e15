// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// LocalLlamaCppClient implements LLMClient against a llama.cpp server's
// /completion endpoint, for air-gapped deployments.
type LocalLlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type localCompletionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type localCompletionResponse struct {
	Content string `json:"content"`
}

// NewLocalLlamaCppClient builds a client from MEND_LLM_URL_BASE.
func NewLocalLlamaCppClient() (*LocalLlamaCppClient, error) {
	baseURL := os.Getenv("MEND_LLM_URL_BASE")
	if baseURL == "" {
		return nil, fmt.Errorf("MEND_LLM_URL_BASE environment variable not set")
	}
	return &LocalLlamaCppClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Generate implements the LLMClient interface.
func (l *LocalLlamaCppClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	payload := localCompletionRequest{
		Prompt:      prompt,
		NPredict:    512,
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
		Stop:        params.Stop,
	}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("local completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed localCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return parsed.Content, nil
}
