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
	"github.com/smacker/go-tree-sitter/java"
)

// NewMethodInvocationPattern returns a Pattern matching Java method
// invocations.
//
// Description:
//
//	Matches every method_invocation node in a Java compilation unit. The
//	fragment shape is identical to the C++ patterns, so the environment can
//	annotate Java and C++ sources with the same code path.
//
// Inputs:
//
//	opts - Configuration options (WithLimit, WithMaxSourceSize).
//
// Outputs:
//
//	Pattern - The configured pattern. Safe for concurrent use.
func NewMethodInvocationPattern(opts ...Option) Pattern {
	return newSitterPattern(
		"java_method_invocation",
		"java",
		java.GetLanguage(),
		[]string{"method_invocation"},
		opts...,
	)
}

// NewMethodDeclarationPattern returns a Pattern matching Java method
// declarations.
func NewMethodDeclarationPattern(opts ...Option) Pattern {
	return newSitterPattern(
		"java_method_declaration",
		"java",
		java.GetLanguage(),
		[]string{"method_declaration"},
		opts...,
	)
}
