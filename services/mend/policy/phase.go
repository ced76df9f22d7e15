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

import "fmt"

// Phase identifies a stage of the decision pipeline.
//
// The pipeline enforces the following transition graph:
//
//	BUILDING_CONTEXT → PROMPTING  : context derived
//	PROMPTING → COMPLETING        : prompt rendered
//	COMPLETING → PARSING          : completion obtained
//	COMPLETING → COMPLETING       : retry after timeout (once)
//	PARSING → COMPLETING          : retry after unparseable action (once)
//	PARSING → DONE                : action parsed
type Phase int

const (
	// PhaseBuildingContext derives decision-relevant context from the
	// observation pair.
	PhaseBuildingContext Phase = iota

	// PhasePrompting renders the context into a model-ready request.
	PhasePrompting

	// PhaseCompleting calls the model collaborator.
	PhaseCompleting

	// PhaseParsing parses the completion into an action.
	PhaseParsing

	// PhaseDone terminates the pipeline.
	PhaseDone
)

// String returns the phase name used in logs and pipeline errors.
func (p Phase) String() string {
	switch p {
	case PhaseBuildingContext:
		return "BUILDING_CONTEXT"
	case PhasePrompting:
		return "PROMPTING"
	case PhaseCompleting:
		return "COMPLETING"
	case PhaseParsing:
		return "PARSING"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// validPhaseTransitions is the closed transition table. Kept explicit so a
// pipeline bug shows up as an invalid transition instead of a silent skip.
var validPhaseTransitions = map[Phase][]Phase{
	PhaseBuildingContext: {PhasePrompting},
	PhasePrompting:       {PhaseCompleting},
	PhaseCompleting:      {PhaseParsing, PhaseCompleting},
	PhaseParsing:         {PhaseDone, PhaseCompleting},
}

// canTransition reports whether from → to is a legal pipeline move.
func canTransition(from, to Phase) bool {
	for _, next := range validPhaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// pipelineState tracks phase progression for one Decide call.
type pipelineState struct {
	phase Phase
}

// advance moves to the next phase, failing loudly on an illegal move.
func (s *pipelineState) advance(to Phase) error {
	if !canTransition(s.phase, to) {
		return fmt.Errorf("invalid pipeline transition: %s -> %s", s.phase, to)
	}
	s.phase = to
	return nil
}
