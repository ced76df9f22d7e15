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
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sentinel errors for pattern matching.
var (
	// ErrParseFailure indicates the source could not be parsed.
	// Callers receive an empty fragment set alongside this error.
	ErrParseFailure = errors.New("source parse failure")

	// ErrSourceTooLarge indicates the source exceeds the size limit.
	ErrSourceTooLarge = errors.New("source exceeds size limit")

	// ErrInvalidEncoding indicates the source is not valid UTF-8.
	ErrInvalidEncoding = errors.New("source is not valid UTF-8")
)

// DefaultMaxSourceSize is the largest source a pattern will accept, in bytes.
const DefaultMaxSourceSize = 10 * 1024 * 1024

var tracer = otel.Tracer("mend.pattern")

// Pattern matches one syntactic construct in source text.
//
// Implementations are stateless except for configuration and must be
// deterministic: the same source and configuration always produce the same
// fragment set. New language support is added by implementing this
// interface; the core never needs to change.
type Pattern interface {
	// Match returns the fragments found in source, in source order with
	// duplicates at the same position collapsed.
	//
	// Malformed source yields an empty slice and an error wrapping
	// ErrParseFailure rather than a panic, so callers can treat parse
	// failure as degraded data.
	Match(ctx context.Context, source []byte) ([]Fragment, error)

	// Name identifies the pattern (e.g. "cpp_call_expression"). Annotations
	// carry this name so consumers can tell which pattern marked a span.
	Name() string

	// Language returns the source language this pattern understands.
	Language() string
}

// Option configures a sitterPattern-backed Pattern.
type Option func(*sitterPattern)

// WithLimit caps the number of fragments returned.
//
// A pattern with limit k returns at most k fragments, selected in
// first-encountered source order. Zero or negative means unlimited.
func WithLimit(k int) Option {
	return func(p *sitterPattern) {
		p.limit = k
	}
}

// WithMaxSourceSize sets the maximum source size the pattern will accept.
func WithMaxSourceSize(bytes int64) Option {
	return func(p *sitterPattern) {
		if bytes > 0 {
			p.maxSourceSize = bytes
		}
	}
}

// sitterPattern is the shared tree-sitter implementation behind the
// language-specific pattern variants. Variants differ only in language and
// the node types they search for.
type sitterPattern struct {
	name          string
	language      string
	sitterLang    *sitter.Language
	nodeTypes     map[string]bool
	limit         int
	maxSourceSize int64
}

func newSitterPattern(name, language string, lang *sitter.Language, nodeTypes []string, opts ...Option) *sitterPattern {
	types := make(map[string]bool, len(nodeTypes))
	for _, t := range nodeTypes {
		types[t] = true
	}
	p := &sitterPattern{
		name:          name,
		language:      language,
		sitterLang:    lang,
		nodeTypes:     types,
		maxSourceSize: DefaultMaxSourceSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Pattern.
func (p *sitterPattern) Name() string { return p.name }

// Language implements Pattern.
func (p *sitterPattern) Language() string { return p.language }

// Match implements Pattern.
//
// Description:
//
//	Parses the source with tree-sitter and collects every node whose type is
//	one of the pattern's target types, in pre-order (source) order. A new
//	parser instance is created per call for thread safety, matching the
//	per-call parser discipline used by the AST parsers elsewhere in this
//	codebase.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing.
//	source - Raw source bytes. Must be valid UTF-8.
//
// Outputs:
//
//	[]Fragment - Matched fragments, source order, duplicates collapsed,
//	             capped at the configured limit. Empty (never nil) on parse
//	             failure.
//	error - ErrSourceTooLarge, ErrInvalidEncoding, ErrParseFailure, or a
//	        context error. ErrParseFailure is non-fatal by contract.
//
// Thread Safety: Safe for concurrent use.
func (p *sitterPattern) Match(ctx context.Context, source []byte) ([]Fragment, error) {
	ctx, span := tracer.Start(ctx, "pattern.Match",
		trace.WithAttributes(
			attribute.String("pattern", p.name),
			attribute.String("language", p.language),
			attribute.Int("source_bytes", len(source)),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return []Fragment{}, fmt.Errorf("match canceled before start: %w", err)
	}
	if int64(len(source)) > p.maxSourceSize {
		return []Fragment{}, fmt.Errorf("%w: %d bytes over limit %d", ErrSourceTooLarge, len(source), p.maxSourceSize)
	}
	if !utf8.Valid(source) {
		return []Fragment{}, ErrInvalidEncoding
	}

	parser := sitter.NewParser()
	parser.SetLanguage(p.sitterLang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return []Fragment{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return []Fragment{}, fmt.Errorf("%w: nil root node", ErrParseFailure)
	}
	if root.HasError() {
		// Malformed source degrades to an empty set with a typed error so
		// fan-out call sites can drop the result without aborting siblings.
		return []Fragment{}, fmt.Errorf("%w: source contains syntax errors", ErrParseFailure)
	}

	fragments := p.collect(root, source)
	fragments = dedupe(fragments)
	if p.limit > 0 && len(fragments) > p.limit {
		fragments = fragments[:p.limit]
	}

	span.SetAttributes(attribute.Int("fragments", len(fragments)))

	if err := ctx.Err(); err != nil {
		return []Fragment{}, fmt.Errorf("match canceled after parse: %w", err)
	}
	return fragments, nil
}

// collect walks the tree iteratively in pre-order, which visits nodes in
// source order. An explicit stack avoids recursion depth issues on
// adversarial input.
func (p *sitterPattern) collect(root *sitter.Node, source []byte) []Fragment {
	fragments := make([]Fragment, 0)

	// Stack of nodes to visit; children pushed in reverse so the leftmost
	// child is visited first.
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.nodeTypes[node.Type()] {
			fragments = append(fragments, Fragment{
				Value:     node.Content(source),
				StartByte: node.StartByte(),
			})
		}

		count := int(node.ChildCount())
		for i := count - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}

	return fragments
}
