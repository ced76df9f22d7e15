// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scope

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Capabilities describes what a sandboxed scope allows.
type Capabilities struct {
	// MaxFileSize is the largest file a tool may read, in bytes
	// (0 = unlimited).
	MaxFileSize int64 `json:"max_file_size"`

	// MaxWallClock bounds the lifetime of work under this scope
	// (0 = unlimited). Enforced by the fan-out's per-unit timeout; carried
	// here so the scope advertises its own bound.
	MaxWallClock time.Duration `json:"max_wall_clock"`

	// ReadOnly marks the scope as read-only: the workdir is still private
	// and writable, but nothing under Root may be modified through it.
	ReadOnly bool `json:"read_only"`
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Capabilities)

// WithMaxFileSize bounds individual file reads.
func WithMaxFileSize(bytes int64) SandboxOption {
	return func(c *Capabilities) { c.MaxFileSize = bytes }
}

// WithMaxWallClock bounds the scope's advertised execution time.
func WithMaxWallClock(d time.Duration) SandboxOption {
	return func(c *Capabilities) { c.MaxWallClock = d }
}

// Sandbox is a DirScope that additionally enforces Capabilities, so
// concurrent invocations under different scopes cannot observe each
// other's intermediate state and cannot exhaust shared resources.
type Sandbox struct {
	*DirScope
	caps Capabilities
}

// NewSandbox creates a sandboxed scope rooted at root.
func NewSandbox(ctx context.Context, root string, opts ...SandboxOption) (*Sandbox, error) {
	caps := Capabilities{
		MaxFileSize: 10 * 1024 * 1024,
		ReadOnly:    true,
	}
	for _, opt := range opts {
		opt(&caps)
	}
	inner, err := NewDirScope(ctx, root)
	if err != nil {
		return nil, err
	}
	return &Sandbox{DirScope: inner, caps: caps}, nil
}

// Capabilities returns what this sandbox allows.
func (s *Sandbox) Capabilities() Capabilities { return s.caps }

// ReadFile enforces the file size capability before delegating.
func (s *Sandbox) ReadFile(rel string) ([]byte, error) {
	if s.caps.MaxFileSize > 0 {
		abs, err := s.resolve(rel)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if info.Size() > s.caps.MaxFileSize {
			return nil, fmt.Errorf("%w: %d bytes over limit %d", ErrFileTooLarge, info.Size(), s.caps.MaxFileSize)
		}
	}
	return s.DirScope.ReadFile(rel)
}

// SandboxBuilder returns a Builder producing sandboxed scopes with the
// given capabilities.
func SandboxBuilder(opts ...SandboxOption) Builder {
	return func(ctx context.Context, root string) (Scope, error) {
		return NewSandbox(ctx, root, opts...)
	}
}
