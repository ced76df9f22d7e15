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

	"github.com/AleutianAI/AleutianMend/services/mend/episode"
)

// EraserPolicy is a restricted policy for trace-reduction runs: it only
// emits tool requests, and only for trace symbols no tool has resolved to
// an annotated document yet. It signals completion once every trace symbol
// is covered, or once a full-batch request made no progress.
//
// It performs no completion call, so it never times out and never emits an
// unparseable action.
//
// Thread Safety: EraserPolicy is stateless and safe for concurrent use.
type EraserPolicy struct {
	// BatchSize limits how many symbols are requested per step. Zero
	// means all remaining symbols at once.
	BatchSize int
}

// NewEraserPolicy creates an EraserPolicy requesting batchSize symbols per
// step.
func NewEraserPolicy(batchSize int) *EraserPolicy {
	return &EraserPolicy{BatchSize: batchSize}
}

// Decide implements Policy. The returned symbol set is always a subset of
// the trace symbols in the current observation.
func (p *EraserPolicy) Decide(ctx context.Context, prev, cur *episode.Observation) (episode.Action, error) {
	if err := ctx.Err(); err != nil {
		return episode.Action{}, err
	}

	// A symbol is covered once some document carries an annotation a tool
	// produced for it. Seed-pattern annotations carry no symbol and do not
	// count.
	covered := make(map[string]bool)
	for _, d := range cur.Documents {
		for _, a := range d.Annotations {
			if a.Symbol != "" {
				covered[a.Symbol] = true
			}
		}
	}

	var remaining []string
	for _, sym := range cur.Trace.Symbols() {
		if !covered[sym] {
			remaining = append(remaining, sym)
		}
	}

	if len(remaining) == 0 {
		return episode.NewDone("all trace symbols resolved"), nil
	}

	// When the previous step requested every remaining symbol and produced
	// nothing, the leftovers are unresolvable; asking again cannot make
	// progress.
	if p.BatchSize == 0 && cur.LastOutcome != nil &&
		cur.LastOutcome.ActionKind == episode.KindToolRequest &&
		cur.LastOutcome.DocumentsAdded == 0 {
		return episode.NewDone("remaining trace symbols are unresolvable"), nil
	}

	if p.BatchSize > 0 && len(remaining) > p.BatchSize {
		remaining = remaining[:p.BatchSize]
	}
	return episode.NewToolRequest(remaining), nil
}
