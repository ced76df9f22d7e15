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

	"github.com/AleutianAI/AleutianMend/services/mend/episode"
)

// RewardFunc scores a transition. It must be a pure function of its
// arguments: same (prev, action, next) always yields the same reward, no
// clock, no randomness, no environment access. That keeps training runs
// reproducible and lets rewards be recomputed offline from logged
// transitions.
type RewardFunc func(prev *episode.Observation, action episode.Action, next *episode.Observation) float64

// DefaultReward is the built-in shaping: progress is new information,
// regression is failed units, success is an accepted patch.
func DefaultReward(prev *episode.Observation, action episode.Action, next *episode.Observation) float64 {
	if next == nil || next.LastOutcome == nil {
		return 0
	}
	out := next.LastOutcome

	reward := 0.1 * float64(out.DocumentsAdded)
	reward -= 0.05 * float64(out.UnitsFailed)
	if out.PatchApplied {
		reward += 1.0
	}
	return reward
}

// TrainableEnvironment wraps an Environment with reward computation for
// training loops. The wrapped environment's semantics are unchanged; the
// reward is derived purely from the observation pair around each step.
//
// Thread Safety: as safe as the wrapped Environment; the previous
// observation is tracked per wrapper, so use one TrainableEnvironment per
// training actor.
type TrainableEnvironment struct {
	*Environment

	reward RewardFunc
	prev   *episode.Observation
}

// NewTrainable wraps an environment with a reward function. A nil reward
// function selects DefaultReward.
func NewTrainable(e *Environment, reward RewardFunc) *TrainableEnvironment {
	if reward == nil {
		reward = DefaultReward
	}
	return &TrainableEnvironment{Environment: e, reward: reward}
}

// Reset begins a new episode and primes the transition tracking.
func (t *TrainableEnvironment) Reset(ctx context.Context, epCtx episode.Context) (*episode.Observation, error) {
	obs, err := t.Environment.Reset(ctx, epCtx)
	if err != nil {
		return nil, err
	}
	t.prev = obs
	return obs, nil
}

// StepWithReward advances the episode and scores the transition.
//
// Outputs:
//
//	*episode.Observation - The post-step observation.
//	float64 - The reward for this transition.
//	error - Propagated from Step; reward is 0 on error.
func (t *TrainableEnvironment) StepWithReward(ctx context.Context, action episode.Action) (*episode.Observation, float64, error) {
	obs, err := t.Environment.Step(ctx, action)
	if err != nil {
		return nil, 0, err
	}
	r := t.reward(t.prev, action, obs)
	t.prev = obs
	return obs, r, nil
}
