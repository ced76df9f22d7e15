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
	"fmt"
	"testing"

	"github.com/AleutianAI/AleutianMend/services/mend/episode"
	"github.com/AleutianAI/AleutianMend/services/mend/policy"
)

// scriptedPolicy plays a fixed sequence of decisions.
type scriptedPolicy struct {
	actions []episode.Action
	errs    []error
	calls   int
}

func (p *scriptedPolicy) Decide(ctx context.Context, prev, cur *episode.Observation) (episode.Action, error) {
	i := p.calls
	p.calls++
	if i >= len(p.actions) {
		return episode.Action{}, fmt.Errorf("script exhausted at call %d", i)
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return episode.Action{}, p.errs[i]
	}
	return p.actions[i], nil
}

func TestRunEpisode_ExtractThenDone(t *testing.T) {
	e := New()
	p := &scriptedPolicy{actions: []episode.Action{
		episode.NewToolRequest([]string{"foo"}),
		episode.NewDone("use-after-free of p in foo"),
	}}

	result, err := RunEpisode(context.Background(), e, p, episode.Context{
		CrashText: crashText,
		RepoRoot:  repoFixture(t),
		Languages: []string{"cpp"},
	})
	if err != nil {
		t.Fatalf("RunEpisode failed: %v", err)
	}

	if !result.Terminated || result.Truncated {
		t.Errorf("unexpected terminal flags: %+v", result)
	}
	if result.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", result.Steps)
	}
	if result.Summary != "use-after-free of p in foo" {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if _, ok := result.Final.Document("src/foo.cc"); !ok {
		t.Error("extracted document missing from final observation")
	}
}

func TestRunEpisode_EraserResolvesTraceAndCompletes(t *testing.T) {
	e := New(WithEpisodeLength(4))
	p := policy.NewEraserPolicy(0)

	result, err := RunEpisode(context.Background(), e, p, episode.Context{
		CrashText: crashText,
		RepoRoot:  repoFixture(t),
		Languages: []string{"cpp"},
	})
	if err != nil {
		t.Fatalf("RunEpisode failed: %v", err)
	}

	// One extraction step covers foo and main, the next decision is done.
	if !result.Terminated {
		t.Errorf("eraser run must terminate once the trace is covered: %+v", result)
	}
	if result.Truncated {
		t.Errorf("eraser run must not burn the whole budget: %+v", result)
	}
	if result.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", result.Steps)
	}

	for _, sym := range []string{"foo", "main"} {
		found := false
		for _, doc := range result.Final.FileDocuments() {
			for _, ann := range doc.Annotations {
				if ann.Symbol == sym {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("no annotation carries requested symbol %q", sym)
		}
	}
}

func TestRunEpisode_TruncatesAtBudget(t *testing.T) {
	e := New(WithEpisodeLength(1))
	p := &scriptedPolicy{actions: []episode.Action{
		episode.NewToolRequest([]string{"foo"}),
		episode.NewDone("never reached"),
	}}

	result, err := RunEpisode(context.Background(), e, p, episode.Context{
		CrashText: crashText,
		RepoRoot:  repoFixture(t),
		Languages: []string{"cpp"},
	})
	if err != nil {
		t.Fatalf("RunEpisode failed: %v", err)
	}

	if !result.Truncated || result.Terminated {
		t.Errorf("expected truncation, got %+v", result)
	}
	if result.Steps != 1 {
		t.Errorf("expected 1 step, got %d", result.Steps)
	}
	if p.calls != 1 {
		t.Errorf("policy consulted %d times, expected 1", p.calls)
	}
}

func TestRunEpisode_UnusablePolicyTruncates(t *testing.T) {
	e := New()
	p := &scriptedPolicy{
		actions: []episode.Action{episode.NewToolRequest([]string{"foo"}), {}},
		errs:    []error{nil, policy.ErrUnparseableAction},
	}

	result, err := RunEpisode(context.Background(), e, p, episode.Context{
		CrashText: crashText,
		RepoRoot:  repoFixture(t),
		Languages: []string{"cpp"},
	})
	if err != nil {
		t.Fatalf("policy failure must truncate, not error: %v", err)
	}
	if !result.Truncated {
		t.Error("expected truncated episode")
	}
	if result.Steps != 1 {
		t.Errorf("expected the successful step to be preserved, got %d", result.Steps)
	}
}

func TestRunEpisode_PolicyTimeoutTruncates(t *testing.T) {
	e := New()
	p := &scriptedPolicy{
		actions: []episode.Action{{}},
		errs:    []error{policy.ErrPolicyTimeout},
	}

	result, err := RunEpisode(context.Background(), e, p, episode.Context{
		CrashText: crashText,
		RepoRoot:  repoFixture(t),
	})
	if err != nil {
		t.Fatalf("RunEpisode failed: %v", err)
	}
	if !result.Truncated || result.Steps != 0 {
		t.Errorf("expected zero-step truncated episode, got %+v", result)
	}
}
