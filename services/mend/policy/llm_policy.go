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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianMend/services/llm"
	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/episode"
)

var tracer = otel.Tracer("mend.policy")

// DefaultCompletionTimeout bounds a single completion call.
const DefaultCompletionTimeout = 60 * time.Second

// maxDocumentChars caps per-document content included in a prompt.
const maxDocumentChars = 4000

// LLMPolicyOption configures an LLMPolicy.
type LLMPolicyOption func(*LLMPolicy)

// WithCompletionTimeout bounds each completion phase call.
func WithCompletionTimeout(d time.Duration) LLMPolicyOption {
	return func(p *LLMPolicy) {
		if d > 0 {
			p.completionTimeout = d
		}
	}
}

// WithRateLimit throttles completion calls to r requests per second with
// the given burst. Zero r disables throttling.
func WithRateLimit(r float64, burst int) LLMPolicyOption {
	return func(p *LLMPolicy) {
		if r > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithGenerationParams overrides the generation parameters sent to the
// backend.
func WithGenerationParams(params llm.GenerationParams) LLMPolicyOption {
	return func(p *LLMPolicy) {
		p.params = params
	}
}

// LLMPolicy is the general policy: it may emit any action variant.
//
// Retry discipline (fixed, documented): a completion timeout or an
// unparseable action is retried exactly once; a second failure surfaces the
// typed error to the environment, which truncates the episode. One retry
// absorbs transient backend noise without letting an unusable model spin
// the step budget.
//
// Thread Safety: LLMPolicy holds no per-episode state and is safe for
// concurrent use across episodes.
type LLMPolicy struct {
	client            llm.LLMClient
	limiter           *rate.Limiter
	completionTimeout time.Duration
	params            llm.GenerationParams
}

// NewLLMPolicy creates a policy backed by the given completion client.
func NewLLMPolicy(client llm.LLMClient, opts ...LLMPolicyOption) *LLMPolicy {
	temp := float32(0.1)
	maxTokens := 1024
	p := &LLMPolicy{
		client:            client,
		completionTimeout: DefaultCompletionTimeout,
		params: llm.GenerationParams{
			Temperature: &temp,
			MaxTokens:   &maxTokens,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// decisionContext is the decision-relevant slice of an observation pair.
// Deriving it is phase one of the pipeline; the prompt is a pure function
// of this value.
type decisionContext struct {
	traceSymbols []string
	documents    []document.Document
	lastOutcome  *episode.Outcome
	step         int
}

// Decide implements Policy via the three-phase pipeline.
func (p *LLMPolicy) Decide(ctx context.Context, prev, cur *episode.Observation) (episode.Action, error) {
	ctx, span := tracer.Start(ctx, "policy.Decide",
		trace.WithAttributes(attribute.Int("step", cur.Step)),
	)
	defer span.End()

	state := &pipelineState{phase: PhaseBuildingContext}

	dctx := p.buildContext(prev, cur)
	if err := state.advance(PhasePrompting); err != nil {
		return episode.Action{}, err
	}

	prompt := renderPrompt(dctx)
	if err := state.advance(PhaseCompleting); err != nil {
		return episode.Action{}, err
	}

	// Completion + parsing with a single retry across both failure modes.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying policy decision",
				"attempt", attempt+1,
				"error", lastErr.Error(),
			)
			if err := state.advance(PhaseCompleting); err != nil {
				return episode.Action{}, err
			}
		}

		completion, err := p.complete(ctx, prompt)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrPolicyTimeout) {
				continue
			}
			span.SetAttributes(attribute.String("error", err.Error()))
			return episode.Action{}, err
		}

		if err := state.advance(PhaseParsing); err != nil {
			return episode.Action{}, err
		}

		action, err := ParseAction(completion)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnparseableAction, err)
			continue
		}

		if err := state.advance(PhaseDone); err != nil {
			return episode.Action{}, err
		}
		span.SetAttributes(attribute.String("action", action.Kind.String()))
		return action, nil
	}

	span.SetAttributes(attribute.String("error", lastErr.Error()))
	return episode.Action{}, lastErr
}

// buildContext is phase one: select what matters for the decision.
func (p *LLMPolicy) buildContext(prev, cur *episode.Observation) decisionContext {
	dctx := decisionContext{
		traceSymbols: cur.Trace.Symbols(),
		documents:    cur.Documents,
		lastOutcome:  cur.LastOutcome,
		step:         cur.Step,
	}
	_ = prev // The previous observation's content is already summarized in LastOutcome.
	return dctx
}

// complete is phase three's blocking half: rate-limit, bound by timeout,
// call the collaborator. The timeout covers the limiter wait too, so a
// saturated limiter surfaces as ErrPolicyTimeout rather than an open-ended
// stall.
func (p *LLMPolicy) complete(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, p.completionTimeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(cctx); err != nil {
			if ctx.Err() == nil {
				return "", fmt.Errorf("%w: rate limit wait exceeded %v", ErrPolicyTimeout, p.completionTimeout)
			}
			return "", fmt.Errorf("completion rate limit: %w", err)
		}
	}

	completion, err := p.client.Generate(cctx, prompt, p.params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: after %v", ErrPolicyTimeout, p.completionTimeout)
		}
		return "", fmt.Errorf("completion: %w", err)
	}
	return completion, nil
}

// renderPrompt renders the decision context into a model-ready request.
//
// This is a pure function of its input: no clock, no randomness, no hidden
// state, so a given observation pair always produces the same prompt.
func renderPrompt(dctx decisionContext) string {
	var b strings.Builder

	b.WriteString("You are analyzing a vulnerability crash report.\n\n")
	fmt.Fprintf(&b, "Step: %d\n", dctx.step)

	if len(dctx.traceSymbols) > 0 {
		b.WriteString("Stack trace symbols (innermost first):\n")
		for _, s := range dctx.traceSymbols {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	} else {
		b.WriteString("No structured stack trace was recovered.\n")
	}

	if dctx.lastOutcome != nil {
		fmt.Fprintf(&b, "\nPrevious action: %s (documents added: %d, failed units: %d, patch applied: %v)\n",
			dctx.lastOutcome.ActionKind,
			dctx.lastOutcome.DocumentsAdded,
			dctx.lastOutcome.UnitsFailed,
			dctx.lastOutcome.PatchApplied,
		)
	}

	b.WriteString("\nDocuments:\n")
	for _, d := range dctx.documents {
		fmt.Fprintf(&b, "--- %s (kind=%s version=%d)\n", d.ID(), d.Kind, d.Version)
		for _, a := range d.Annotations {
			fmt.Fprintf(&b, "  [%s] line %d: %s\n", a.Pattern, a.StartLine, a.Fragment.String())
		}
		content := d.Content
		if len(content) > maxDocumentChars {
			content = content[:maxDocumentChars] + "\n... [truncated]"
		}
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Respond with exactly one JSON object, no prose:
  {"action": "extract", "symbols": ["name", ...]}   to pull function definitions into view
  {"action": "patch", "path": "...", "search": "...", "replace": "..."}   to propose a fix
  {"action": "done", "summary": "..."}   when the analysis is complete
`)

	return b.String()
}
