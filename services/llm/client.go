// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm abstracts the model completion collaborator the policy layer
// calls. The core treats every backend as a black box behind LLMClient.
package llm

import "context"

// GenerationParams tunes a single completion request. Nil fields defer to
// backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate obtains a completion for the prompt. Implementations must
	// honor ctx cancellation and deadlines; a timed-out request returns
	// the context error.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
