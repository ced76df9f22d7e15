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
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianMend/services/mend/document"
	"github.com/AleutianAI/AleutianMend/services/mend/scope"
)

func scopeWithFiles(t *testing.T, files map[string]string) scope.Scope {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	sc, err := scope.DefaultBuilder(context.Background(), root)
	if err != nil {
		t.Fatalf("build scope: %v", err)
	}
	t.Cleanup(func() { _ = sc.Release() })
	return sc
}

func TestCppDefinitionTool_Extract(t *testing.T) {
	sc := scopeWithFiles(t, map[string]string{
		"src/foo.cc": "int helper(int x) { return x; }\n\nvoid foo(char *p) {\n  free(p);\n  use(p);\n}\n",
		"src/bar.cc": "void bar() {}\n",
	})
	tool := NewCppDefinitionTool()

	doc, found, err := tool.Extract(context.Background(), "foo", sc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !found {
		t.Fatal("expected foo to be found")
	}
	if doc.Kind != document.KindFile || doc.Path != "src/foo.cc" {
		t.Errorf("unexpected document: kind=%v path=%q", doc.Kind, doc.Path)
	}
	if len(doc.Annotations) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(doc.Annotations))
	}
	ann := doc.Annotations[0]
	if ann.Pattern != "cpp_definition" {
		t.Errorf("unexpected annotation pattern: %q", ann.Pattern)
	}
	if ann.Symbol != "foo" {
		t.Errorf("annotation must carry the requested symbol, got %q", ann.Symbol)
	}
	if ann.StartLine != 3 {
		t.Errorf("expected definition on line 3, got %d", ann.StartLine)
	}
}

func TestCppDefinitionTool_QualifiedName(t *testing.T) {
	sc := scopeWithFiles(t, map[string]string{
		"socket.cc": "namespace net {\nvoid Socket::close() { fd_ = -1; }\n}\n",
	})
	tool := NewCppDefinitionTool()

	for _, symbol := range []string{"close", "Socket::close"} {
		t.Run(symbol, func(t *testing.T) {
			_, found, err := tool.Extract(context.Background(), symbol, sc)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if !found {
				t.Errorf("expected %q to resolve", symbol)
			}
		})
	}
}

func TestCppDefinitionTool_Absent(t *testing.T) {
	sc := scopeWithFiles(t, map[string]string{
		"src/foo.cc": "void foo() {}\n",
	})
	tool := NewCppDefinitionTool()

	doc, found, err := tool.Extract(context.Background(), "does_not_exist", sc)
	if err != nil {
		t.Fatalf("expected absent, not error: %v", err)
	}
	if found || doc != nil {
		t.Error("expected (nil, false) for unresolvable symbol")
	}
}

func TestJavaDefinitionTool_Extract(t *testing.T) {
	sc := scopeWithFiles(t, map[string]string{
		"src/Socket.java": "class Socket {\n  void close() {\n    fd = -1;\n  }\n}\n",
	})
	tool := NewJavaDefinitionTool()

	for _, symbol := range []string{"close", "com.example.Socket.close"} {
		t.Run(symbol, func(t *testing.T) {
			doc, found, err := tool.Extract(context.Background(), symbol, sc)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if !found {
				t.Fatal("expected close to be found")
			}
			if doc.Path != "src/Socket.java" {
				t.Errorf("unexpected path: %q", doc.Path)
			}
			if len(doc.Annotations) != 1 || doc.Annotations[0].Symbol != symbol {
				t.Errorf("annotation must carry the requested symbol %q verbatim: %+v",
					symbol, doc.Annotations)
			}
		})
	}
}

func TestJavaDefinitionTool_Constructor(t *testing.T) {
	sc := scopeWithFiles(t, map[string]string{
		"Socket.java": "class Socket {\n  Socket(int fd) {\n    this.fd = fd;\n  }\n}\n",
	})
	tool := NewJavaDefinitionTool()

	_, found, err := tool.Extract(context.Background(), "Socket", sc)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !found {
		t.Error("expected constructor to be found")
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	if r.Count() != 2 {
		t.Fatalf("expected 2 built-in tools, got %d", r.Count())
	}

	t.Run("lookup by name", func(t *testing.T) {
		tool, ok := r.Get("cpp_definition")
		if !ok || tool.Language() != "cpp" {
			t.Errorf("cpp_definition lookup failed: ok=%v", ok)
		}
	})

	t.Run("lookup by language", func(t *testing.T) {
		list := r.GetByLanguage("java")
		if len(list) != 1 || list[0].Name() != "java_definition" {
			t.Errorf("unexpected java tools: %v", list)
		}
	})

	t.Run("multi-language dedup", func(t *testing.T) {
		list := r.GetByLanguages("cpp", "java", "cpp")
		if len(list) != 2 {
			t.Errorf("expected 2 tools, got %d", len(list))
		}
	})

	t.Run("unregister", func(t *testing.T) {
		r2 := DefaultRegistry()
		if !r2.Unregister("java_definition") {
			t.Fatal("unregister reported not found")
		}
		if _, ok := r2.Get("java_definition"); ok {
			t.Error("tool still present after unregister")
		}
		if got := r2.GetByLanguage("java"); len(got) != 0 {
			t.Errorf("language index not cleaned: %v", got)
		}
	})
}

func TestResolverNarrowsCandidates(t *testing.T) {
	sc := scopeWithFiles(t, map[string]string{
		"a.cc": "void target() {}\n",
		"b.cc": "void target() { other(); }\n",
	})

	resolver := ResolverFunc(func(ctx context.Context, symbol string, sc scope.Scope) ([]string, error) {
		return []string{"b.cc"}, nil
	})
	tool := NewCppDefinitionTool(WithCppResolver(resolver))

	doc, found, err := tool.Extract(context.Background(), "target", sc)
	if err != nil || !found {
		t.Fatalf("Extract failed: found=%v err=%v", found, err)
	}
	if doc.Path != "b.cc" {
		t.Errorf("resolver candidates ignored, got %q", doc.Path)
	}
}
