// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy turns observations into actions.
//
// The LLM-backed policy runs a fixed three-phase pipeline per decision:
// derive the decision-relevant context from the observation pair, render a
// model-ready prompt (a pure function of that context, so prompts are
// reproducible), then obtain a completion and parse it into a well-formed
// action. Phase progression is an explicit small state machine so tests can
// inject failures at each phase in isolation.
package policy

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianMend/services/mend/episode"
)

// Sentinel errors surfaced to the environment.
var (
	// ErrPolicyTimeout indicates the completion phase exceeded its budget.
	// The environment translates a post-retry timeout into truncation.
	ErrPolicyTimeout = errors.New("policy completion timed out")

	// ErrUnparseableAction indicates the completion could not be parsed
	// into a well-formed action.
	ErrUnparseableAction = errors.New("unparseable action")

	// ErrEmptyCompletion indicates the backend returned no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// Policy consumes an observation (plus the previous one) and produces an
// action. Implementations hold no cross-step state of their own; the same
// policy value may serve many episodes concurrently.
type Policy interface {
	// Decide produces the next action. prev is nil on the first decision
	// of an episode. Parsing and timeout failures return typed errors
	// (ErrUnparseableAction, ErrPolicyTimeout) rather than crashing the
	// loop; the environment decides how to proceed.
	Decide(ctx context.Context, prev, cur *episode.Observation) (episode.Action, error)
}
