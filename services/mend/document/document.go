// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document models the artifacts an episode accumulates.
//
// A Document is either immutable free text (a crash log) or a versioned
// source file. The variant set is closed so dispatch is exhaustive; new
// artifact kinds require a change here, by design. Annotations mark spans
// produced by pattern matches; they never mutate the underlying content.
//
// Documents are value types. Every mutation-shaped operation (WithContent,
// WithAnnotation) returns a new Document and leaves the receiver untouched,
// which is what keeps observations from earlier steps stable.
package document

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianMend/services/mend/pattern"
)

// Kind discriminates the closed set of document variants.
type Kind int

const (
	// KindText is immutable content with no path, e.g. a crash log.
	KindText Kind = iota

	// KindFile is source content associated with a path and a version.
	KindFile
)

// String returns "text" or "file".
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Annotation marks a span of a document produced by a pattern match.
//
// Annotations reference the Fragment and the Pattern that produced them.
// They are markers only; applying one never changes document content.
type Annotation struct {
	// Pattern is the name of the pattern that produced the match.
	Pattern string `json:"pattern"`

	// Symbol is the requested symbol an extraction tool resolved to this
	// span, verbatim as the caller asked for it. Empty for annotations
	// produced by bulk pattern matching rather than a symbol lookup.
	Symbol string `json:"symbol,omitempty"`

	// Fragment is the matched slice of source text.
	Fragment pattern.Fragment `json:"fragment"`

	// StartLine is the 1-indexed line of the fragment start.
	StartLine int `json:"start_line"`

	// StartCol is the 0-indexed column of the fragment start.
	StartCol int `json:"start_col"`
}

// Document is a closed tagged variant over {text, file} artifacts.
type Document struct {
	// Kind discriminates the variant.
	Kind Kind `json:"kind"`

	// Path is set for KindFile only and is immutable for the document's
	// lifetime. Content changes mint a new version, never a new path.
	Path string `json:"path,omitempty"`

	// Content is the document text.
	Content string `json:"content"`

	// Version counts content revisions of a file document, starting at 1.
	// Always 1 for text documents.
	Version int `json:"version"`

	// Annotations are the spans marked on this document.
	Annotations []Annotation `json:"annotations,omitempty"`

	// CreatedAtMilli is the Unix timestamp in milliseconds when this value
	// was minted.
	CreatedAtMilli int64 `json:"created_at_milli"`
}

// NewText creates an immutable text document.
func NewText(content string) Document {
	return Document{
		Kind:           KindText,
		Content:        content,
		Version:        1,
		CreatedAtMilli: time.Now().UnixMilli(),
	}
}

// NewFile creates a version-1 file document for the given path.
func NewFile(path, content string) Document {
	return Document{
		Kind:           KindFile,
		Path:           path,
		Content:        content,
		Version:        1,
		CreatedAtMilli: time.Now().UnixMilli(),
	}
}

// ID returns the identity consumers key on: the path for file documents,
// or a content digest for text documents so two distinct texts never
// collide in a document map.
func (d Document) ID() string {
	if d.Kind == KindFile {
		return d.Path
	}
	sum := sha256.Sum256([]byte(d.Content))
	return fmt.Sprintf("text:%x", sum[:12])
}

// WithContent returns a copy of a file document carrying new content and a
// bumped version. The receiver is unchanged, so observations holding the
// old value keep seeing the old content.
//
// Outputs:
//
//	Document - The new version.
//	error - Non-nil if called on a text document, whose content is
//	        immutable by contract.
func (d Document) WithContent(content string) (Document, error) {
	if d.Kind != KindFile {
		return Document{}, fmt.Errorf("text documents are immutable")
	}
	next := d
	next.Content = content
	next.Version = d.Version + 1
	next.CreatedAtMilli = time.Now().UnixMilli()
	// Annotations describe the old content; they do not carry forward.
	next.Annotations = nil
	return next, nil
}

// WithAnnotation returns a copy of the document with the annotation
// appended. Exact duplicates collapse; two symbols resolving to the same
// span stay distinct.
func (d Document) WithAnnotation(a Annotation) Document {
	for _, existing := range d.Annotations {
		if existing == a {
			return d
		}
	}
	next := d
	next.Annotations = make([]Annotation, 0, len(d.Annotations)+1)
	next.Annotations = append(next.Annotations, d.Annotations...)
	next.Annotations = append(next.Annotations, a)
	return next
}

// AnnotationAt builds an Annotation for a fragment, mapping its byte offset
// to a 1-indexed line and 0-indexed column within the document content.
func (d Document) AnnotationAt(patternName string, frag pattern.Fragment) Annotation {
	line, col := offsetToLineCol(d.Content, int(frag.StartByte))
	return Annotation{
		Pattern:   patternName,
		Fragment:  frag,
		StartLine: line,
		StartCol:  col,
	}
}

// Validate checks structural invariants.
//
// Validates:
//   - file documents have a non-empty path without traversal sequences
//   - text documents carry no path
//   - Version >= 1
func (d Document) Validate() error {
	switch d.Kind {
	case KindFile:
		if d.Path == "" {
			return fmt.Errorf("file document must have a path")
		}
		if strings.Contains(d.Path, "..") {
			return fmt.Errorf("path must not contain traversal (..): %s", d.Path)
		}
	case KindText:
		if d.Path != "" {
			return fmt.Errorf("text document must not have a path")
		}
	default:
		return fmt.Errorf("unknown document kind %d", d.Kind)
	}
	if d.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", d.Version)
	}
	return nil
}

// offsetToLineCol converts a byte offset to (1-indexed line, 0-indexed col).
// Offsets past the end clamp to the final position.
func offsetToLineCol(content string, offset int) (int, int) {
	if offset > len(content) {
		offset = len(content)
	}
	line := 1
	col := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}
