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
	"github.com/smacker/go-tree-sitter/java"

	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/pattern"
	"github.com/AleutianAI/AleutianMend/services/mend/scope"
)

var javaExtensions = []string{".java"}

// JavaDefinitionTool locates Java method declarations by name.
//
// Symbols may be bare method names ("close") or dotted forms from a JVM
// stack trace ("com.example.Socket.close"); the dotted form matches on its
// trailing segment.
type JavaDefinitionTool struct {
	resolver Resolver
}

// JavaToolOption configures a JavaDefinitionTool.
type JavaToolOption func(*JavaDefinitionTool)

// WithJavaResolver narrows candidate files via an external index.
func WithJavaResolver(r Resolver) JavaToolOption {
	return func(t *JavaDefinitionTool) { t.resolver = r }
}

// NewJavaDefinitionTool creates the Java definition extractor.
func NewJavaDefinitionTool(opts ...JavaToolOption) *JavaDefinitionTool {
	t := &JavaDefinitionTool{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Tool.
func (t *JavaDefinitionTool) Name() string { return "java_definition" }

// Language implements Tool.
func (t *JavaDefinitionTool) Language() string { return "java" }

// Extract implements Tool.
func (t *JavaDefinitionTool) Extract(ctx context.Context, symbol string, sc scope.Scope) (*document.Document, bool, error) {
	files, err := candidateFiles(ctx, t.resolver, symbol, sc, javaExtensions)
	if err != nil {
		return nil, false, err
	}

	want := symbol
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		want = symbol[i+1:]
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		content, err := sc.ReadFile(rel)
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", rel, err)
		}
		frag, found, err := findJavaMethod(ctx, content, want)
		if err != nil {
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

// findJavaMethod parses source and returns a fragment for the named
// method's declaration. Constructors are matched too, since JVM traces
// report them as <init> or by class name.
func findJavaMethod(ctx context.Context, source []byte, name string) (pattern.Fragment, bool, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return pattern.Fragment{}, false, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.Type() {
		case "method_declaration", "constructor_declaration":
			if n := node.ChildByFieldName("name"); n != nil && n.Content(source) == name {
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
