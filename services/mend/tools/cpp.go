// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/pattern"
	"github.com/AleutianAI/AleutianMend/services/mend/scope"
)

// cppExtensions are the file extensions the C++ tool scans.
var cppExtensions = []string{".cc", ".cpp", ".cxx", ".c", ".h", ".hh", ".hpp"}

// CppDefinitionTool locates C++ function definitions by name.
//
// It walks the scope's C++ sources, parses each with tree-sitter, and
// matches function_definition nodes whose declarator resolves to the
// requested symbol. Qualified names (Foo::bar) match on the full qualified
// form and on the trailing identifier.
type CppDefinitionTool struct {
	resolver Resolver
}

// CppToolOption configures a CppDefinitionTool.
type CppToolOption func(*CppDefinitionTool)

// WithCppResolver narrows candidate files via an external index.
func WithCppResolver(r Resolver) CppToolOption {
	return func(t *CppDefinitionTool) { t.resolver = r }
}

// NewCppDefinitionTool creates the C++ definition extractor.
func NewCppDefinitionTool(opts ...CppToolOption) *CppDefinitionTool {
	t := &CppDefinitionTool{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Tool.
func (t *CppDefinitionTool) Name() string { return "cpp_definition" }

// Language implements Tool.
func (t *CppDefinitionTool) Language() string { return "cpp" }

// Extract implements Tool.
//
// The returned document carries the full file content, annotated at the
// definition, so downstream patching operates on complete files.
func (t *CppDefinitionTool) Extract(ctx context.Context, symbol string, sc scope.Scope) (*document.Document, bool, error) {
	files, err := candidateFiles(ctx, t.resolver, symbol, sc, cppExtensions)
	if err != nil {
		return nil, false, err
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		content, err := sc.ReadFile(rel)
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", rel, err)
		}
		frag, found, err := findCppDefinition(ctx, content, symbol)
		if err != nil {
			// Unparseable file: skip, the symbol may live elsewhere.
			continue
		}
		if found {
			doc := document.NewFile(rel, string(content))
			ann := doc.AnnotationAt(t.Name(), frag)
			ann.Symbol = symbol
			doc = doc.WithAnnotation(ann)
			return &doc, true, nil
		}
	}
	return nil, false, nil
}

// findCppDefinition parses source and returns a fragment for the named
// function's definition.
func findCppDefinition(ctx context.Context, source []byte, symbol string) (pattern.Fragment, bool, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return pattern.Fragment{}, false, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node.Type() == "function_definition" {
			name := cppDefinitionName(node, source)
			if name == symbol || trailingIdentifier(name) == symbol {
				return pattern.Fragment{
					Value:     node.Content(source),
					StartByte: node.StartByte(),
				}, true, nil
			}
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.Child(i))
		}
	}
	return pattern.Fragment{}, false, nil
}

// cppDefinitionName resolves a function_definition node to its declared
// name, descending through declarator wrappers (pointers, references,
// parenthesized declarators) until an identifier-bearing node.
func cppDefinitionName(node *sitter.Node, source []byte) string {
	decl := node.ChildByFieldName("declarator")
	for decl != nil {
		switch decl.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
			return decl.Content(source)
		case "function_declarator":
			inner := decl.ChildByFieldName("declarator")
			if inner == nil {
				return ""
			}
			decl = inner
		default:
			inner := decl.ChildByFieldName("declarator")
			if inner == nil {
				return decl.Content(source)
			}
			decl = inner
		}
	}
	return ""
}

// trailingIdentifier strips namespace qualification: "net::Socket::close"
// yields "close".
func trailingIdentifier(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[i+2:]
	}
	return qualified
}

// candidateFiles returns the scope-relative files a tool should inspect,
// consulting the resolver first and falling back to a full extension scan.
func candidateFiles(ctx context.Context, resolver Resolver, symbol string, sc scope.Scope, exts []string) ([]string, error) {
	if resolver != nil {
		candidates, err := resolver.Candidates(ctx, symbol, sc)
		if err != nil {
			return nil, fmt.Errorf("resolve candidates: %w", err)
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	files, err := sc.Files(exts...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoSources
	}
	return files, nil
}
