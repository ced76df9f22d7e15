// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package env

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianMend/services/mend/episode"
	"github.com/AleutianAI/AleutianMend/services/mend/policy"
)

// EpisodeResult summarizes a completed episode.
type EpisodeResult struct {
	// EpisodeID identifies the episode.
	EpisodeID string

	// Steps is the number of steps executed.
	Steps int

	// Terminated is true when the policy signaled completion.
	Terminated bool

	// Truncated is true when the step budget ran out or the policy became
	// unusable.
	Truncated bool

	// Summary is the done-action summary, empty otherwise.
	Summary string

	// Final is the last observation of the episode.
	Final *episode.Observation
}

// RunEpisode drives one full episode: reset, then decide/step until the
// environment reports a terminal condition.
//
// Policy failures follow the environment's truncation contract: a decision
// that surfaces ErrPolicyTimeout or ErrUnparseableAction (the policy
// already retried internally) truncates the episode rather than failing
// the run. Any other error aborts and is returned.
func RunEpisode(ctx context.Context, e *Environment, p policy.Policy, epCtx episode.Context) (*EpisodeResult, error) {
	obs, err := e.Reset(ctx, epCtx)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	result := &EpisodeResult{EpisodeID: obs.EpisodeID, Final: obs}
	var prev *episode.Observation

	for {
		state := e.State()
		if state.Over() {
			break
		}

		action, err := p.Decide(ctx, prev, obs)
		if err != nil {
			if errors.Is(err, policy.ErrPolicyTimeout) || errors.Is(err, policy.ErrUnparseableAction) {
				e.Truncate(err.Error())
				break
			}
			return nil, fmt.Errorf("decide at step %d: %w", state.StepCount, err)
		}

		next, err := e.Step(ctx, action)
		if err != nil {
			if errors.Is(err, episode.ErrInvalidAction) {
				// A structurally invalid action from a policy that
				// parsed cleanly: the policy is unusable.
				e.Truncate(err.Error())
				break
			}
			return nil, fmt.Errorf("step %d: %w", state.StepCount, err)
		}

		if action.Kind == episode.KindDone {
			result.Summary = action.Summary
		}
		prev = obs
		obs = next
		result.Final = next
	}

	final := e.State()
	result.Steps = final.StepCount
	result.Terminated = final.Terminated
	result.Truncated = final.Truncated

	slog.Info("episode finished",
		"episode_id", result.EpisodeID,
		"steps", result.Steps,
		"terminated", result.Terminated,
		"truncated", result.Truncated,
	)
	return result, nil
}
