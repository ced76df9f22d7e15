// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pattern

import (
	"github.com/smacker/go-tree-sitter/cpp"
)

// NewCallExpressionPattern returns a Pattern matching C++ call expressions.
//
// Description:
//
//	Matches every call_expression node in a C++ translation unit, covering
//	free function calls, member calls, and operator() invocations. This is
//	the primary pattern for locating call sites named in a crash trace.
//
// Inputs:
//
//	opts - Configuration options (WithLimit, WithMaxSourceSize).
//
// Outputs:
//
//	Pattern - The configured pattern. Safe for concurrent use.
//
// Example:
//
//	p := pattern.NewCallExpressionPattern(pattern.WithLimit(50))
//	frags, err := p.Match(ctx, source)
func NewCallExpressionPattern(opts ...Option) Pattern {
	return newSitterPattern(
		"cpp_call_expression",
		"cpp",
		cpp.GetLanguage(),
		[]string{"call_expression"},
		opts...,
	)
}

// NewFunctionDefinitionPattern returns a Pattern matching C++ function
// definitions. Used to mark definition spans when a source file is pulled
// into an observation.
func NewFunctionDefinitionPattern(opts ...Option) Pattern {
	return newSitterPattern(
		"cpp_function_definition",
		"cpp",
		cpp.GetLanguage(),
		[]string{"function_definition"},
		opts...,
	)
}
