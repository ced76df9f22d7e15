// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package env implements the episodic crash-analysis environment.
//
// An Environment owns all mutable per-episode state: the document set, the
// parsed crash trace, the step count, and the terminal flags. Policies see
// only immutable observation snapshots; the only way to change state is
// Reset or Step, both serialized by the environment's mutex.
//
// Step execution fans tool requests out over (symbol, tool) pairs with a
// bounded worker count. Each unit runs against its own freshly built Scope
// and failures degrade the step rather than failing it: the resulting
// observation is shape-identical to a fully successful one, with the
// failure count reported in the outcome.
package env

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianMend/services/mend/crash"
	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/episode"
	"github.com/AleutianAI/AleutianMend/services/mend/pattern"
	"github.com/AleutianAI/AleutianMend/services/mend/runnable"
	"github.com/AleutianAI/AleutianMend/services/mend/scope"
	"github.com/AleutianAI/AleutianMend/services/mend/tools"
)

// Sentinel errors for environment operations.
var (
	// ErrInvalidState indicates an operation that is illegal in the
	// environment's current run state, e.g. Step on a terminated episode.
	ErrInvalidState = errors.New("invalid environment state")

	// ErrNotReset indicates Step was called before any Reset.
	ErrNotReset = errors.New("environment has not been reset")
)

// RunState is the environment's run-state machine.
//
// Transitions:
//
//	Ready      -> Stepping              (Step entry)
//	Stepping   -> Ready                 (step completed, episode continues)
//	Stepping   -> Terminated            (action stream signaled completion)
//	Stepping   -> Truncated             (step budget exhausted)
//	Ready      -> Truncated             (policy became unusable)
//	any        -> Ready                 (Reset)
//
// Terminated and Truncated are terminal for the episode: Step returns
// ErrInvalidState until the next Reset. The episode flags are not mutually
// exclusive; when a terminating action lands on the final budgeted step the
// State carries both, and the run state reports Terminated.
type RunState int

const (
	// StateReady accepts Step calls.
	StateReady RunState = iota

	// StateStepping is transient while a Step executes.
	StateStepping

	// StateTerminated means the action stream signaled completion.
	StateTerminated

	// StateTruncated means the step budget ran out or the policy became
	// unusable.
	StateTruncated
)

// String returns a human-readable state name.
func (s RunState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateStepping:
		return "stepping"
	case StateTerminated:
		return "terminated"
	case StateTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// terminal reports whether the state rejects further steps.
func (s RunState) terminal() bool {
	return s == StateTerminated || s == StateTruncated
}

// Defaults for environment configuration.
const (
	DefaultEpisodeLength = 8
	DefaultMaxWorkers    = 4
	DefaultUnitTimeout   = 30 * time.Second
)

// Option configures an Environment.
type Option func(*Environment)

// WithEpisodeLength sets the fixed per-episode step cap.
func WithEpisodeLength(n int) Option {
	return func(e *Environment) {
		if n > 0 {
			e.episodeLength = n
		}
	}
}

// WithMaxWorkers bounds the parallel fan-out width. Zero or negative means
// one worker per available CPU.
func WithMaxWorkers(n int) Option {
	return func(e *Environment) {
		if n <= 0 {
			n = runtime.NumCPU()
		}
		e.maxWorkers = n
	}
}

// WithUnitTimeout bounds each (symbol, tool) extraction unit.
func WithUnitTimeout(d time.Duration) Option {
	return func(e *Environment) {
		if d > 0 {
			e.unitTimeout = d
		}
	}
}

// WithScopeBuilder swaps the per-unit scope factory. Tests use this to
// inject tracking or failing builders.
func WithScopeBuilder(b scope.Builder) Option {
	return func(e *Environment) { e.scopeBuilder = b }
}

// WithRegistry swaps the tool registry.
func WithRegistry(r *tools.Registry) Option {
	return func(e *Environment) { e.registry = r }
}

// WithSeedPatterns sets the patterns used to annotate seed file documents
// at reset.
func WithSeedPatterns(ps ...pattern.Pattern) Option {
	return func(e *Environment) { e.seedPatterns = ps }
}

// Environment is the episodic crash-analysis environment.
//
// Thread Safety: all exported methods are safe for concurrent use; Reset
// and Step serialize on an internal mutex. The observations they return
// are immutable snapshots and remain valid after further steps.
type Environment struct {
	mu sync.Mutex

	episodeLength int
	maxWorkers    int
	unitTimeout   time.Duration
	scopeBuilder  scope.Builder
	registry      *tools.Registry
	seedPatterns  []pattern.Pattern

	// Per-episode state. Owned exclusively by this environment, rebuilt by
	// Reset, mutated only inside Step.
	runState RunState
	state    episode.State
	epCtx    episode.Context
	trace    crash.Trace
	docs     map[string]document.Document
	reset    bool
}

// New creates an Environment with the given options.
func New(opts ...Option) *Environment {
	e := &Environment{
		episodeLength: DefaultEpisodeLength,
		maxWorkers:    DefaultMaxWorkers,
		unitTimeout:   DefaultUnitTimeout,
		scopeBuilder:  scope.DefaultBuilder,
		registry:      tools.DefaultRegistry(),
		seedPatterns: []pattern.Pattern{
			pattern.NewCallExpressionPattern(),
			pattern.NewFunctionDefinitionPattern(),
			pattern.NewMethodInvocationPattern(),
			pattern.NewMethodDeclarationPattern(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the episode bookkeeping.
func (e *Environment) State() episode.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunState returns the current run state.
func (e *Environment) RunState() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runState
}

// Reset begins a new episode from the given context.
//
// Description:
//
//	Destroys all prior episode state, parses the crash text into a
//	structured trace (parse failure is non-fatal and yields an empty
//	trace), seeds the document set with the crash text and any requested
//	seed files, and returns the step-0 observation.
//
// Inputs:
//
//	ctx - Cancellation context.
//	epCtx - Read-only episode inputs. Never mutated.
//
// Outputs:
//
//	*episode.Observation - The initial observation.
//	error - Non-nil on seed file infrastructure failure or cancellation.
//
// Thread Safety: safe for concurrent use; callable from any run state.
func (e *Environment) Reset(ctx context.Context, epCtx episode.Context) (*episode.Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Environment.Reset")
	defer span.End()

	e.state = episode.NewState(e.episodeLength)
	e.runState = StateReady
	e.epCtx = epCtx
	e.trace = crash.Parse(epCtx.CrashText)
	e.docs = make(map[string]document.Document)
	e.reset = true

	crashDoc := document.NewText(epCtx.CrashText)
	e.docs[crashDoc.ID()] = crashDoc

	if len(epCtx.SeedFiles) > 0 {
		if err := e.seedFiles(ctx, epCtx); err != nil {
			return nil, fmt.Errorf("seed files: %w", err)
		}
	}

	slog.Info("episode reset",
		"episode_id", e.state.EpisodeID,
		"trace_frames", len(e.trace.Frames),
		"seed_files", len(epCtx.SeedFiles),
	)
	return e.snapshot(nil), nil
}

// seedFiles loads the requested repository files into the document set,
// annotated by the configured seed patterns. Caller holds the mutex.
func (e *Environment) seedFiles(ctx context.Context, epCtx episode.Context) error {
	sc, err := e.scopeBuilder(ctx, epCtx.RepoRoot)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := sc.Release(); rerr != nil {
			slog.Warn("seed scope release failed", "error", rerr.Error())
		}
	}()

	for _, rel := range epCtx.SeedFiles {
		content, err := sc.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		doc := document.NewFile(rel, string(content))
		for _, p := range e.seedPatterns {
			frags, err := p.Match(ctx, content)
			if err != nil {
				// Wrong language or malformed source; annotation is
				// best-effort at seed time.
				continue
			}
			for _, frag := range frags {
				doc = doc.WithAnnotation(doc.AnnotationAt(p.Name(), frag))
			}
		}
		e.docs[doc.ID()] = doc
	}
	return nil
}

// Step advances the episode by one action.
//
// Description:
//
//	Dispatches on the action kind: tool requests fan out over
//	(symbol, tool) pairs with bounded parallelism; patches are validated
//	and applied to the in-memory document set; done terminates. The step
//	count advances exactly once per call. Terminated and truncated are
//	independent: a terminating action on the final budgeted step sets both.
//
// Outputs:
//
//	*episode.Observation - The post-step observation.
//	error - ErrNotReset before the first Reset, ErrInvalidState once the
//	        episode is over, episode.ErrInvalidAction for malformed
//	        actions (no step is consumed), or the context error.
//
// Thread Safety: safe for concurrent use; calls serialize.
func (e *Environment) Step(ctx context.Context, action episode.Action) (*episode.Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reset {
		return nil, ErrNotReset
	}
	if e.runState.terminal() || e.state.Over() {
		return nil, fmt.Errorf("%w: episode is over (%s)", ErrInvalidState, e.runState)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := action.Validate(); err != nil {
		// Malformed actions do not consume a step.
		return nil, err
	}

	ctx, span := startStepSpan(ctx, e.state.EpisodeID, e.state.StepCount, action.Kind.String())
	defer span.End()
	start := time.Now()

	e.runState = StateStepping

	outcome := episode.Outcome{ActionKind: action.Kind}
	switch action.Kind {
	case episode.KindToolRequest:
		if len(action.Symbols) == 0 {
			// An empty request is the policy saying it has nothing left
			// to ask for.
			e.state.Terminated = true
		} else {
			added, failed := e.fanOut(ctx, action)
			outcome.DocumentsAdded = added
			outcome.UnitsFailed = failed
		}
	case episode.KindPatch:
		applied, added := e.applyPatch(*action.Patch)
		outcome.PatchApplied = applied
		outcome.DocumentsAdded = added
		if applied {
			e.state.Terminated = true
		}
	case episode.KindDone:
		e.state.Terminated = true
	}

	e.state.StepCount++
	if e.state.StepCount >= e.state.EpisodeLength {
		// The budget flag is independent of the action: a terminating
		// final step carries both flags.
		e.state.Truncated = true
	}

	switch {
	case e.state.Terminated:
		e.runState = StateTerminated
	case e.state.Truncated:
		e.runState = StateTruncated
	default:
		e.runState = StateReady
	}

	recordStepMetrics(ctx, time.Since(start), action.Kind.String(), outcome.DocumentsAdded, outcome.UnitsFailed)
	slog.Debug("episode step",
		"episode_id", e.state.EpisodeID,
		"step", e.state.StepCount,
		"action", action.Kind.String(),
		"documents_added", outcome.DocumentsAdded,
		"units_failed", outcome.UnitsFailed,
		"run_state", e.runState.String(),
	)
	return e.snapshot(&outcome), nil
}

// Truncate marks the episode truncated without consuming a step. The
// episode runner calls this when the policy becomes unusable.
func (e *Environment) Truncate(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.reset || e.runState.terminal() {
		return
	}
	e.state.Truncated = true
	e.runState = StateTruncated
	slog.Info("episode truncated",
		"episode_id", e.state.EpisodeID,
		"step", e.state.StepCount,
		"reason", reason,
	)
}

// extractionUnit is one (symbol, tool) pair of a fan-out.
type extractionUnit struct {
	symbol string
	tool   tools.Tool
}

// unitOutput is what a successful unit yields: a document, or nothing when
// the symbol did not resolve.
type unitOutput struct {
	doc   *document.Document
	found bool
}

// fanOut executes a tool request in parallel and merges the results.
// Caller holds the mutex; the fan-out itself only touches per-unit state
// and merges under the caller's lock after the barrier.
func (e *Environment) fanOut(ctx context.Context, action episode.Action) (added, failed int) {
	units := e.planUnits(action)
	if len(units) == 0 {
		return 0, 0
	}

	results := make([]unitOutput, len(units))
	oks := make([]bool, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	for i, unit := range units {
		g.Go(func() error {
			r := runnable.Func[extractionUnit, unitOutput](e.runUnit)
			uctx, cancel := context.WithTimeout(gctx, e.unitTimeout)
			defer cancel()
			results[i], oks[i] = runnable.RunOrNone(uctx, r, unit)
			// Unit failures never abort siblings.
			return nil
		})
	}
	// Join-all barrier: no unit outlives the step.
	_ = g.Wait()

	for i := range units {
		if !oks[i] {
			failed++
			continue
		}
		if results[i].found {
			if e.mergeDocument(*results[i].doc) {
				added++
			}
		}
	}
	return added, failed
}

// planUnits builds the (symbol, tool) pairs for a request: the cross
// product of the requested symbols and the selected tools.
func (e *Environment) planUnits(action episode.Action) []extractionUnit {
	var selected []tools.Tool
	switch {
	case len(action.Tools) > 0:
		for _, name := range action.Tools {
			if t, ok := e.registry.Get(name); ok {
				selected = append(selected, t)
			}
		}
	case len(e.epCtx.Languages) > 0:
		selected = e.registry.GetByLanguages(e.epCtx.Languages...)
	default:
		for _, name := range e.registry.Names() {
			if t, ok := e.registry.Get(name); ok {
				selected = append(selected, t)
			}
		}
	}

	units := make([]extractionUnit, 0, len(action.Symbols)*len(selected))
	for _, symbol := range action.Symbols {
		for _, t := range selected {
			units = append(units, extractionUnit{symbol: symbol, tool: t})
		}
	}
	return units
}

// runUnit executes one extraction unit against a fresh scope. The scope is
// released before return on every path.
func (e *Environment) runUnit(ctx context.Context, unit extractionUnit) (unitOutput, error) {
	sc, err := e.scopeBuilder(ctx, e.epCtx.RepoRoot)
	if err != nil {
		return unitOutput{}, fmt.Errorf("build scope: %w", err)
	}
	defer func() {
		if rerr := sc.Release(); rerr != nil {
			slog.Warn("unit scope release failed",
				"symbol", unit.symbol,
				"tool", unit.tool.Name(),
				"error", rerr.Error(),
			)
		}
	}()

	doc, found, err := unit.tool.Extract(ctx, unit.symbol, sc)
	if err != nil {
		return unitOutput{}, fmt.Errorf("extract %s with %s: %w", unit.symbol, unit.tool.Name(), err)
	}
	return unitOutput{doc: doc, found: found}, nil
}

// mergeDocument merges an extracted document into the set. Returns true
// when the set changed.
//
// Same path, same content: annotations union onto the existing version.
// Same path, different content: the newer content mints the next version.
func (e *Environment) mergeDocument(doc document.Document) bool {
	existing, ok := e.docs[doc.ID()]
	if !ok {
		e.docs[doc.ID()] = doc
		return true
	}

	if existing.Content == doc.Content {
		changed := false
		merged := existing
		for _, a := range doc.Annotations {
			next := merged.WithAnnotation(a)
			if len(next.Annotations) != len(merged.Annotations) {
				changed = true
			}
			merged = next
		}
		if changed {
			e.docs[doc.ID()] = merged
		}
		return changed
	}

	next, err := existing.WithContent(doc.Content)
	if err != nil {
		return false
	}
	for _, a := range doc.Annotations {
		next = next.WithAnnotation(a)
	}
	e.docs[next.ID()] = next
	return true
}

// snapshot builds an immutable observation from current state. Caller
// holds the mutex.
func (e *Environment) snapshot(outcome *episode.Outcome) *episode.Observation {
	docs := make([]document.Document, 0, len(e.docs))
	for _, d := range e.docs {
		docs = append(docs, d)
	}
	return episode.NewObservation(e.state.EpisodeID, e.state.StepCount, docs, e.trace, outcome)
}
