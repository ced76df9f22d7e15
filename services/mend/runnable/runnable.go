// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runnable defines the generic execution contract the tool layer is
// built on.
//
// Failures are returned, never panicked, so parallel fan-out call sites can
// collect partial failures without aborting sibling executions.
package runnable

import "context"

// Runnable executes one unit of work: given an input and a context, produce
// an output or a typed failure.
type Runnable[I, O any] interface {
	// Run executes the unit. Implementations must honor ctx cancellation
	// and return errors rather than panicking.
	Run(ctx context.Context, input I) (O, error)
}

// Func adapts a plain function to the Runnable interface.
type Func[I, O any] func(ctx context.Context, input I) (O, error)

// Run implements Runnable.
func (f Func[I, O]) Run(ctx context.Context, input I) (O, error) {
	return f(ctx, input)
}

// RunOrNone runs r and converts any failure into an absent result.
//
// This is the fan-out call-site form: a failing unit degrades the step's
// data instead of killing the step. The boolean reports presence.
func RunOrNone[I, O any](ctx context.Context, r Runnable[I, O], input I) (O, bool) {
	out, err := r.Run(ctx, input)
	if err != nil {
		var zero O
		return zero, false
	}
	return out, true
}
