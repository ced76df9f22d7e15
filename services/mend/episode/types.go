// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package episode defines the leaf types shared between the environment and
// policies: observations, actions, and episode bookkeeping.
//
// Observations are immutable once constructed; the environment builds a new
// one every step. Actions form a closed variant set so environment dispatch
// is exhaustive and checkable.
package episode

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianMend/services/mend/crash"
	"github.com/AleutianAI/AleutianMend/services/mend/document"
)

// Sentinel errors for episode types.
var (
	// ErrInvalidAction indicates an action that fails structural validation.
	ErrInvalidAction = errors.New("invalid action")
)

// Context is the read-only bag a caller hands to Reset. The core never
// mutates it.
type Context struct {
	// CrashText is the seed crash report.
	CrashText string

	// RepoRoot locates the source tree tools may read.
	RepoRoot string

	// Languages hints which languages the repository contains
	// (e.g. "cpp", "java"). Empty means all configured tools run.
	Languages []string

	// SeedFiles optionally names repository files (relative paths) to pull
	// into the initial observation.
	SeedFiles []string
}

// ActionKind discriminates the closed set of action variants.
type ActionKind int

const (
	// KindToolRequest asks the environment to extract the named symbols
	// with the configured tools.
	KindToolRequest ActionKind = iota

	// KindPatch proposes a search/replace edit to a file document.
	KindPatch

	// KindDone signals episode completion.
	KindDone
)

// String returns "tool_request", "patch", or "done".
func (k ActionKind) String() string {
	switch k {
	case KindToolRequest:
		return "tool_request"
	case KindPatch:
		return "patch"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// PatchSpec describes an intended edit with search/replace semantics over a
// file document. Applying it to a real file system is outside this core;
// the environment applies it to its in-memory document set only.
type PatchSpec struct {
	// Path is the file document the edit targets.
	Path string `json:"path"`

	// Search is the exact text to replace. Must occur in the document.
	Search string `json:"search"`

	// Replace is the replacement text.
	Replace string `json:"replace"`

	// Diff optionally carries the edit as a unified diff for validation
	// and downstream consumers.
	Diff string `json:"diff,omitempty"`
}

// Action is the policy's decision output, consumed by the environment.
// Produced only by a Policy.
type Action struct {
	// Kind discriminates the variant.
	Kind ActionKind `json:"kind"`

	// Symbols are the extraction targets for a tool request.
	Symbols []string `json:"symbols,omitempty"`

	// Tools optionally restricts the request to named tools; empty means
	// all configured tools.
	Tools []string `json:"tools,omitempty"`

	// Patch is set for KindPatch.
	Patch *PatchSpec `json:"patch,omitempty"`

	// Summary is set for KindDone.
	Summary string `json:"summary,omitempty"`
}

// NewToolRequest builds a tool-request action.
func NewToolRequest(symbols []string, toolNames ...string) Action {
	return Action{Kind: KindToolRequest, Symbols: symbols, Tools: toolNames}
}

// NewPatch builds a patch action.
func NewPatch(spec PatchSpec) Action {
	return Action{Kind: KindPatch, Patch: &spec}
}

// NewDone builds a terminal action.
func NewDone(summary string) Action {
	return Action{Kind: KindDone, Summary: summary}
}

// Validate checks the action is structurally sound for its kind.
func (a Action) Validate() error {
	switch a.Kind {
	case KindToolRequest:
		return nil
	case KindPatch:
		if a.Patch == nil {
			return fmt.Errorf("%w: patch action without spec", ErrInvalidAction)
		}
		if a.Patch.Path == "" {
			return fmt.Errorf("%w: patch without path", ErrInvalidAction)
		}
		if a.Patch.Search == "" {
			return fmt.Errorf("%w: patch without search text", ErrInvalidAction)
		}
		return nil
	case KindDone:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidAction, a.Kind)
	}
}

// Outcome summarizes what the previous action achieved. It rides along in
// the next observation so the policy can see the effect of its decision.
type Outcome struct {
	// ActionKind is the kind of the action that produced this outcome.
	ActionKind ActionKind `json:"action_kind"`

	// DocumentsAdded counts documents merged into the observation by the
	// step, new versions included.
	DocumentsAdded int `json:"documents_added"`

	// UnitsFailed counts fan-out units that failed or timed out. Degraded
	// steps are shape-identical to full ones; this count is how a policy
	// (or reward function) notices degradation.
	UnitsFailed int `json:"units_failed"`

	// PatchApplied reports whether a patch action was accepted.
	PatchApplied bool `json:"patch_applied"`
}

// Observation is the immutable snapshot presented to a policy at a step
// boundary: the current documents with their annotations, the parsed crash
// trace, and the previous action's outcome if any.
type Observation struct {
	// EpisodeID ties the observation to its episode.
	EpisodeID string `json:"episode_id"`

	// Step is the step count at which this observation was built; 0 for
	// the reset observation.
	Step int `json:"step"`

	// Documents holds the document set, sorted by ID. Consumers rely on
	// document identity (path/content), not position; the sort is a
	// convenience for reproducible prompts.
	Documents []document.Document `json:"documents"`

	// Trace is the structured stack trace parsed from the crash text.
	// Empty when the crash text held no recognizable frames.
	Trace crash.Trace `json:"trace"`

	// LastOutcome is the previous action's outcome, nil at reset.
	LastOutcome *Outcome `json:"last_outcome,omitempty"`
}

// NewObservation builds an observation, copying and sorting the documents
// so later mutation of the caller's slice cannot leak in.
func NewObservation(episodeID string, step int, docs []document.Document, trace crash.Trace, last *Outcome) *Observation {
	sorted := make([]document.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })
	return &Observation{
		EpisodeID:   episodeID,
		Step:        step,
		Documents:   sorted,
		Trace:       trace,
		LastOutcome: last,
	}
}

// Document returns the document with the given ID, if present.
func (o *Observation) Document(id string) (document.Document, bool) {
	for _, d := range o.Documents {
		if d.ID() == id {
			return d, true
		}
	}
	return document.Document{}, false
}

// FileDocuments returns the file-kind documents in ID order.
func (o *Observation) FileDocuments() []document.Document {
	out := make([]document.Document, 0, len(o.Documents))
	for _, d := range o.Documents {
		if d.Kind == document.KindFile {
			out = append(out, d)
		}
	}
	return out
}

// State is the per-episode bookkeeping owned exclusively by the
// environment. It is mutated only inside Step and destroyed by Reset.
type State struct {
	// EpisodeID identifies the episode.
	EpisodeID string `json:"episode_id"`

	// StepCount is monotonically non-decreasing within an episode and
	// reset to 0 only by Reset.
	StepCount int `json:"step_count"`

	// EpisodeLength is the fixed per-episode step cap.
	EpisodeLength int `json:"episode_length"`

	// Terminated is true once the action stream signaled completion.
	Terminated bool `json:"terminated"`

	// Truncated is true once the step budget is exhausted or the policy
	// became unusable.
	Truncated bool `json:"truncated"`
}

// NewState creates a fresh episode state with a unique episode ID.
func NewState(episodeLength int) State {
	return State{
		EpisodeID:     uuid.NewString(),
		EpisodeLength: episodeLength,
	}
}

// Over reports whether the episode has reached a terminal condition.
func (s State) Over() bool { return s.Terminated || s.Truncated }
