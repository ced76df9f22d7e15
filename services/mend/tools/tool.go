// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools implements symbol extraction over scoped repository
// checkouts.
//
// A Tool takes a symbol name and a Scope and tries to locate the symbol's
// definition in the sources the scope exposes. Extraction is best-effort:
// a symbol that cannot be resolved is an absent result, not an error.
// Errors are reserved for infrastructure failures (released scope,
// unreadable file, cancelled context).
package tools

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/scope"
)

// ErrNoSources indicates the scope exposed no files the tool can read.
var ErrNoSources = errors.New("no sources in scope")

// Tool locates a symbol's definition within a scope.
//
// Implementations must be stateless across calls: every Extract call
// receives its own Scope and must not retain it past return.
type Tool interface {
	// Name returns the stable registry name of the tool.
	Name() string

	// Language returns the source language the tool understands,
	// e.g. "cpp" or "java".
	Language() string

	// Extract searches the scope for the named symbol's definition.
	//
	// Outputs:
	//
	//	*document.Document - An annotated file document containing the
	//	                     definition, nil when absent.
	//	bool - True when the symbol was found.
	//	error - Non-nil only for infrastructure failures. An
	//	        unresolvable symbol returns (nil, false, nil).
	Extract(ctx context.Context, symbol string, sc scope.Scope) (*document.Document, bool, error)
}

// Resolver narrows the files a tool inspects for a symbol. It lets callers
// plug in an index (ctags, a code-graph service) without changing the
// tools; the default implementation scans every file of the tool's
// language.
type Resolver interface {
	// Candidates returns scope-relative paths likely to define the
	// symbol. An empty slice means the resolver has no opinion and the
	// tool falls back to a full scan.
	Candidates(ctx context.Context, symbol string, sc scope.Scope) ([]string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, symbol string, sc scope.Scope) ([]string, error)

// Candidates implements Resolver.
func (f ResolverFunc) Candidates(ctx context.Context, symbol string, sc scope.Scope) ([]string, error) {
	return f(ctx, symbol, sc)
}
