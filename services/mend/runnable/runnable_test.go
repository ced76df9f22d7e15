// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runnable

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestFunc_Run(t *testing.T) {
	r := Func[int, string](func(_ context.Context, n int) (string, error) {
		return strconv.Itoa(n), nil
	})

	out, err := r.Run(context.Background(), 42)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "42" {
		t.Errorf("Run(42) = %q, want %q", out, "42")
	}
}

func TestFunc_RunError(t *testing.T) {
	sentinel := errors.New("boom")
	r := Func[int, string](func(_ context.Context, _ int) (string, error) {
		return "", sentinel
	})

	if _, err := r.Run(context.Background(), 1); !errors.Is(err, sentinel) {
		t.Errorf("Run error = %v, want %v", err, sentinel)
	}
}

func TestRunOrNone(t *testing.T) {
	ok := Func[string, int](func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
	fail := Func[string, int](func(_ context.Context, _ string) (int, error) {
		return 99, errors.New("boom")
	})

	out, present := RunOrNone[string, int](context.Background(), ok, "abc")
	if !present || out != 3 {
		t.Errorf("RunOrNone(ok) = (%d, %v), want (3, true)", out, present)
	}

	// Failure degrades to the zero value, not the partial result.
	out, present = RunOrNone[string, int](context.Background(), fail, "abc")
	if present || out != 0 {
		t.Errorf("RunOrNone(fail) = (%d, %v), want (0, false)", out, present)
	}
}

func TestRunOrNone_HonorsContext(t *testing.T) {
	r := Func[int, int](func(ctx context.Context, n int) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return n, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, present := RunOrNone[int, int](ctx, r, 7); present {
		t.Error("canceled context should surface as an absent result")
	}
}
