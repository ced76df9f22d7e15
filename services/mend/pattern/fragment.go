// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pattern extracts candidate code fragments from source text.
//
// A Pattern searches source code for a single syntactic construct (C++ call
// expressions, Java method invocations, ...) and produces Fragments with
// position metadata. The contract and fragment shape are uniform across
// languages, which is what lets the environment treat C++ and Java sources
// interchangeably.
//
// Design principles:
//   - Deterministic: identical source and configuration produce identical
//     fragment sets.
//   - Error-tolerant: malformed source yields an empty set and a typed
//     parse-failure error, never a panic.
//   - Stateless: patterns hold configuration only and are safe for
//     concurrent use.
package pattern

import "fmt"

// Fragment is a located slice of source text produced by pattern matching.
//
// Fragments are immutable after creation and are produced only by
// Pattern.Match. Two fragments are equal when both value and start offset
// match; duplicate fragments at the same position collapse to one.
type Fragment struct {
	// Value is the matched source text.
	Value string `json:"value"`

	// StartByte is the byte offset of the match within the source.
	StartByte uint32 `json:"start_byte"`
}

// Key returns the identity of the fragment used for set semantics.
func (f Fragment) Key() string {
	return fmt.Sprintf("%d:%s", f.StartByte, f.Value)
}

// String returns a short human-readable form for logs.
func (f Fragment) String() string {
	v := f.Value
	if len(v) > 40 {
		v = v[:40] + "..."
	}
	return fmt.Sprintf("@%d %q", f.StartByte, v)
}

// dedupe collapses duplicate fragments, preserving first-encountered order.
//
// Match implementations traverse the syntax tree in source order, so the
// surviving order is source order.
func dedupe(fragments []Fragment) []Fragment {
	seen := make(map[string]bool, len(fragments))
	out := fragments[:0]
	for _, f := range fragments {
		k := f.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}
