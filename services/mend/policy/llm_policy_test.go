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
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianMend/services/llm"
	"github.com/AleutianAI/AleutianMend/services/mend/crash"
	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/episode"
	"github.com/AleutianAI/AleutianMend/services/mend/pattern"
)

// scriptedClient returns canned completions in order, then repeats the
// last one.
type scriptedClient struct {
	completions []string
	errs        []error
	calls       int
}

func (s *scriptedClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.completions) {
		i = len(s.completions) - 1
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.completions[i], nil
}

// slowClient blocks until its context expires.
type slowClient struct{}

func (slowClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func observationFixture(t *testing.T) *episode.Observation {
	t.Helper()
	trace := crash.Parse("    #0 0x4f2a in foo /src/foo.cc:42:7\n    #1 0x4f9b in bar /src/bar.cc:10:3\n")
	doc := document.NewText("heap-use-after-free in foo")
	return episode.NewObservation("ep-1", 0, []document.Document{doc}, trace, nil)
}

func TestLLMPolicy_Decide(t *testing.T) {
	client := &scriptedClient{completions: []string{`{"action": "extract", "symbols": ["foo"]}`}}
	p := NewLLMPolicy(client)

	action, err := p.Decide(context.Background(), nil, observationFixture(t))
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if action.Kind != episode.KindToolRequest {
		t.Errorf("expected KindToolRequest, got %v", action.Kind)
	}
	if client.calls != 1 {
		t.Errorf("expected 1 completion call, got %d", client.calls)
	}
}

func TestLLMPolicy_RetryOnUnparseable(t *testing.T) {
	client := &scriptedClient{completions: []string{
		"the bug is obvious",
		`{"action": "done", "summary": "fixed"}`,
	}}
	p := NewLLMPolicy(client)

	action, err := p.Decide(context.Background(), nil, observationFixture(t))
	if err != nil {
		t.Fatalf("Decide failed after retry: %v", err)
	}
	if action.Kind != episode.KindDone {
		t.Errorf("expected KindDone, got %v", action.Kind)
	}
	if client.calls != 2 {
		t.Errorf("expected 2 completion calls, got %d", client.calls)
	}
}

func TestLLMPolicy_SecondFailureSurfaces(t *testing.T) {
	client := &scriptedClient{completions: []string{"nonsense", "more nonsense"}}
	p := NewLLMPolicy(client)

	_, err := p.Decide(context.Background(), nil, observationFixture(t))
	if !errors.Is(err, ErrUnparseableAction) {
		t.Errorf("expected ErrUnparseableAction, got %v", err)
	}
	if client.calls != 2 {
		t.Errorf("expected exactly 2 completion calls, got %d", client.calls)
	}
}

func TestLLMPolicy_Timeout(t *testing.T) {
	p := NewLLMPolicy(slowClient{}, WithCompletionTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := p.Decide(context.Background(), nil, observationFixture(t))
	if !errors.Is(err, ErrPolicyTimeout) {
		t.Fatalf("expected ErrPolicyTimeout, got %v", err)
	}
	// One initial attempt plus one retry, both bounded.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestLLMPolicy_SaturatedRateLimitTimesOut(t *testing.T) {
	client := &scriptedClient{completions: []string{`{"action": "done", "summary": "ok"}`}}
	p := NewLLMPolicy(client,
		WithCompletionTimeout(20*time.Millisecond),
		WithRateLimit(0.001, 1),
	)

	// The burst token covers the first decision.
	if _, err := p.Decide(context.Background(), nil, observationFixture(t)); err != nil {
		t.Fatalf("first Decide failed: %v", err)
	}

	// The next decision would wait ~1000s for a token; the completion
	// timeout must bound that wait and surface the typed error.
	start := time.Now()
	_, err := p.Decide(context.Background(), nil, observationFixture(t))
	if !errors.Is(err, ErrPolicyTimeout) {
		t.Fatalf("expected ErrPolicyTimeout from a saturated limiter, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("rate limit wait not bounded by the timeout, took %v", elapsed)
	}
	if client.calls != 1 {
		t.Errorf("backend must not be called while throttled, got %d calls", client.calls)
	}
}

func TestRenderPrompt_Deterministic(t *testing.T) {
	obs := observationFixture(t)
	p := NewLLMPolicy(&scriptedClient{completions: []string{"{}"}})
	dctx := p.buildContext(nil, obs)

	first := renderPrompt(dctx)
	for i := 0; i < 5; i++ {
		if got := renderPrompt(dctx); got != first {
			t.Fatal("prompt rendering is not deterministic")
		}
	}
	if !strings.Contains(first, "foo") || !strings.Contains(first, "bar") {
		t.Error("prompt missing trace symbols")
	}
}

func TestEraserPolicy_SubsetOfTrace(t *testing.T) {
	p := NewEraserPolicy(0)
	obs := observationFixture(t)

	action, err := p.Decide(context.Background(), nil, obs)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if action.Kind != episode.KindToolRequest {
		t.Fatalf("expected KindToolRequest, got %v", action.Kind)
	}

	traceSet := make(map[string]bool)
	for _, s := range obs.Trace.Symbols() {
		traceSet[s] = true
	}
	for _, s := range action.Symbols {
		if !traceSet[s] {
			t.Errorf("symbol %q not in trace", s)
		}
	}
}

// extractedDoc mirrors what a definition tool returns: the full file
// content, annotated at the whole definition span, carrying the requested
// symbol.
func extractedDoc(path, content, symbol string) document.Document {
	doc := document.NewFile(path, content)
	ann := doc.AnnotationAt("cpp_definition", pattern.Fragment{Value: content, StartByte: 0})
	ann.Symbol = symbol
	return doc.WithAnnotation(ann)
}

func TestEraserPolicy_DoneWhenCovered(t *testing.T) {
	p := NewEraserPolicy(0)
	trace := crash.Parse("    #0 0x4f2a in foo /src/foo.cc:42:7\n")
	docs := []document.Document{
		document.NewText("crash"),
		extractedDoc("src/foo.cc", "void foo() {\n  use(p);\n}\n", "foo"),
	}
	obs := episode.NewObservation("ep-2", 1, docs, trace, nil)

	action, err := p.Decide(context.Background(), nil, obs)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if action.Kind != episode.KindDone {
		t.Errorf("expected KindDone when all symbols covered, got %v", action.Kind)
	}
}

func TestEraserPolicy_SymbollessAnnotationsDoNotCover(t *testing.T) {
	p := NewEraserPolicy(0)
	trace := crash.Parse("    #0 0x4f2a in foo /src/foo.cc:42:7\n")

	// A seed document annotated by bulk pattern matching: the fragment is
	// the whole definition text, not the symbol, and no symbol is carried.
	content := "void foo() {\n  use(p);\n}\n"
	seed := document.NewFile("src/foo.cc", content)
	seed = seed.WithAnnotation(seed.AnnotationAt("cpp_function_definition",
		pattern.Fragment{Value: content, StartByte: 0}))
	obs := episode.NewObservation("ep-3", 0, []document.Document{seed}, trace, nil)

	action, err := p.Decide(context.Background(), nil, obs)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if action.Kind != episode.KindToolRequest {
		t.Fatalf("expected KindToolRequest, got %v", action.Kind)
	}
	if len(action.Symbols) != 1 || action.Symbols[0] != "foo" {
		t.Errorf("expected foo still requested, got %v", action.Symbols)
	}
}

func TestEraserPolicy_DoneWhenNoProgress(t *testing.T) {
	p := NewEraserPolicy(0)
	trace := crash.Parse("    #0 0x4f2a in vanished /src/gone.cc:1:1\n")
	last := &episode.Outcome{ActionKind: episode.KindToolRequest, DocumentsAdded: 0}
	obs := episode.NewObservation("ep-4", 1, []document.Document{document.NewText("crash")}, trace, last)

	action, err := p.Decide(context.Background(), nil, obs)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if action.Kind != episode.KindDone {
		t.Errorf("expected KindDone after a no-progress full request, got %v", action.Kind)
	}
}
