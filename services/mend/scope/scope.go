// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scope provides the isolated execution contexts tool invocations
// run under.
//
// Exactly one Scope is created per (symbol, tool) fan-out unit and released
// deterministically on every exit path. Scope creation must stay cheap:
// a step can fan out dozens of units, each with a fresh scope.
package scope

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Sentinel errors for scope handling.
var (
	// ErrReleased indicates use of a scope after Release.
	ErrReleased = errors.New("scope already released")

	// ErrOutsideRoot indicates a path escaping the scope root.
	ErrOutsideRoot = errors.New("path escapes scope root")

	// ErrFileTooLarge indicates a read exceeding the sandbox file limit.
	ErrFileTooLarge = errors.New("file exceeds sandbox size limit")
)

// Scope is a handle to an isolated execution context. Its lifetime is
// bounded by the single tool invocation that requested it.
type Scope interface {
	// Root returns the directory reads are bounded to.
	Root() string

	// WorkDir returns a private scratch directory owned by this scope.
	WorkDir() string

	// ReadFile reads a path relative to Root, rejecting traversal outside
	// the root.
	ReadFile(rel string) ([]byte, error)

	// Files lists paths under Root (relative, sorted) whose extension is
	// one of exts; all files when exts is empty.
	Files(exts ...string) ([]string, error)

	// Release frees the scope. Safe to call exactly once; a second call
	// returns ErrReleased. Guaranteed-release discipline is the caller's
	// contract: every exit path of the invocation must release.
	Release() error
}

// Builder creates a fresh Scope rooted at the given directory.
type Builder func(ctx context.Context, root string) (Scope, error)

// DirScope bounds filesystem access to a root directory and owns a private
// temp workdir removed on release.
//
// Thread Safety: a DirScope is used by exactly one invocation; Release is
// nevertheless guarded so double release is detected, not silent.
type DirScope struct {
	root     string
	workDir  string
	released atomic.Bool
	tracker  *Tracker
}

// NewDirScope creates a DirScope rooted at root.
//
// Inputs:
//
//	ctx - Context for creation (cheap; no blocking work beyond mkdir).
//	root - Directory reads are bounded to. Must exist.
//
// Outputs:
//
//	*DirScope - The scope, never nil on success.
//	error - Non-nil if root is unusable or the workdir cannot be created.
func NewDirScope(ctx context.Context, root string) (*DirScope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scope root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scope root is not a directory: %s", root)
	}
	workDir, err := os.MkdirTemp("", "mend-scope-*")
	if err != nil {
		return nil, fmt.Errorf("scope workdir: %w", err)
	}
	return &DirScope{root: root, workDir: workDir}, nil
}

// Root implements Scope.
func (s *DirScope) Root() string { return s.root }

// WorkDir implements Scope.
func (s *DirScope) WorkDir() string { return s.workDir }

// ReadFile implements Scope.
func (s *DirScope) ReadFile(rel string) ([]byte, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// Files implements Scope.
func (s *DirScope) Files(exts ...string) ([]string, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	wanted := make(map[string]bool, len(exts))
	for _, e := range exts {
		wanted[e] = true
	}
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Scopes never descend into VCS metadata.
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(wanted) > 0 && !wanted[filepath.Ext(path)] {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scope walk: %w", err)
	}
	// WalkDir orders per directory, which is not lexical across levels;
	// the sorted contract needs an explicit pass.
	sort.Strings(out)
	return out, nil
}

// Release implements Scope.
func (s *DirScope) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if s.tracker != nil {
		s.tracker.released.Add(1)
	}
	if err := os.RemoveAll(s.workDir); err != nil {
		return fmt.Errorf("scope release: %w", err)
	}
	return nil
}

// resolve maps rel onto an absolute path under root, rejecting escapes.
func (s *DirScope) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return filepath.Join(s.root, clean), nil
}

// Tracker observes scope lifecycle for tests.
//
// The scope-leak property ("release observed exactly once per invocation")
// is a programming-contract violation in production flow, so it is checked
// in tests via this tracker rather than enforced at runtime.
type Tracker struct {
	acquired atomic.Int64
	released atomic.Int64
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Builder returns a Builder whose scopes report acquire/release to t.
func (t *Tracker) Builder(inner Builder) Builder {
	return func(ctx context.Context, root string) (Scope, error) {
		sc, err := inner(ctx, root)
		if err != nil {
			return nil, err
		}
		t.acquired.Add(1)
		if ds, ok := sc.(*DirScope); ok {
			ds.tracker = t
			return ds, nil
		}
		return &trackedScope{Scope: sc, tracker: t}, nil
	}
}

// Acquired returns the number of scopes created through this tracker.
func (t *Tracker) Acquired() int64 { return t.acquired.Load() }

// Released returns the number of scopes released.
func (t *Tracker) Released() int64 { return t.released.Load() }

// Leaked reports whether any acquired scope was never released.
func (t *Tracker) Leaked() bool { return t.acquired.Load() != t.released.Load() }

// trackedScope wraps non-DirScope implementations for tracking.
type trackedScope struct {
	Scope
	tracker *Tracker
	once    sync.Once
}

func (s *trackedScope) Release() error {
	err := s.Scope.Release()
	s.once.Do(func() { s.tracker.released.Add(1) })
	return err
}

// DefaultBuilder is the Builder production environments use.
func DefaultBuilder(ctx context.Context, root string) (Scope, error) {
	return NewDirScope(ctx, root)
}
