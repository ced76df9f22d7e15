// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianMend/services/mend/episode"
)

// wireAction is the JSON shape the model is instructed to emit.
type wireAction struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
	Tools   []string `json:"tools,omitempty"`
	Path    string   `json:"path,omitempty"`
	Search  string   `json:"search,omitempty"`
	Replace string   `json:"replace,omitempty"`
	Diff    string   `json:"diff,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// jsonFence extracts the body of a ```json fenced block.
var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseAction parses a model completion into a well-formed action.
//
// Description:
//
//	Accepts either a bare JSON object or a fenced ```json block (models
//	routinely wrap output in markdown fences despite instructions).
//	Anything else, and any JSON that fails Action.Validate, yields
//	ErrUnparseableAction so the caller can retry or truncate instead of
//	crashing the loop.
//
// Inputs:
//
//	completion - Raw model output.
//
// Outputs:
//
//	episode.Action - The parsed action.
//	error - Wraps ErrUnparseableAction on any failure; ErrEmptyCompletion
//	        for blank output.
func ParseAction(completion string) (episode.Action, error) {
	text := strings.TrimSpace(completion)
	if text == "" {
		return episode.Action{}, ErrEmptyCompletion
	}

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var wire wireAction
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return episode.Action{}, fmt.Errorf("%w: %v", ErrUnparseableAction, err)
	}

	var action episode.Action
	switch strings.ToLower(wire.Action) {
	case "extract", "tool_request":
		action = episode.NewToolRequest(wire.Symbols, wire.Tools...)
	case "patch":
		action = episode.NewPatch(episode.PatchSpec{
			Path:    wire.Path,
			Search:  wire.Search,
			Replace: wire.Replace,
			Diff:    wire.Diff,
		})
	case "done":
		action = episode.NewDone(wire.Summary)
	default:
		return episode.Action{}, fmt.Errorf("%w: unknown action %q", ErrUnparseableAction, wire.Action)
	}

	if err := action.Validate(); err != nil {
		return episode.Action{}, fmt.Errorf("%w: %v", ErrUnparseableAction, err)
	}
	return action, nil
}
