// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crash extracts structured stack traces from raw crash report text.
//
// Parsing runs before pattern matching during environment reset. Failure to
// find a trace is non-fatal by contract: the caller gets an empty trace and
// the episode proceeds with the raw crash text only.
package crash

import (
	"regexp"
	"strconv"
	"strings"
)

// Frame is one resolved stack frame from a crash report.
type Frame struct {
	// Function is the frame's function or method name. For Java frames this
	// is the unqualified method name; Class carries the qualifier.
	Function string `json:"function"`

	// Class is the declaring class for Java frames, empty otherwise.
	Class string `json:"class,omitempty"`

	// File is the source file named by the frame, if any.
	File string `json:"file,omitempty"`

	// Line is the 1-indexed source line, 0 when unknown.
	Line int `json:"line,omitempty"`
}

// Trace is an ordered stack trace, innermost frame first.
type Trace struct {
	// Frames holds the parsed frames in report order.
	Frames []Frame `json:"frames"`
}

// Empty reports whether no frames were recovered.
func (t Trace) Empty() bool { return len(t.Frames) == 0 }

// Symbols returns the distinct function names in frame order. These are the
// candidate extraction targets an eraser policy narrows down.
func (t Trace) Symbols() []string {
	seen := make(map[string]bool, len(t.Frames))
	out := make([]string, 0, len(t.Frames))
	for _, f := range t.Frames {
		if f.Function == "" || seen[f.Function] {
			continue
		}
		seen[f.Function] = true
		out = append(out, f.Function)
	}
	return out
}

var (
	// sanitizerFrame matches ASan/UBSan style frames:
	//   #0 0x4f3a2b in foo(int*) /src/lib/foo.cc:42:7
	//   #1 0x4f3a2b in bar /src/lib/bar.cc:10
	sanitizerFrame = regexp.MustCompile(`^\s*#\d+\s+0x[0-9a-fA-F]+\s+in\s+([^\s(]+)(?:\([^)]*\))?\s+(\S+?):(\d+)(?::\d+)?\s*$`)

	// javaFrame matches JVM stack trace frames:
	//   at com.example.Foo.bar(Foo.java:10)
	javaFrame = regexp.MustCompile(`^\s*at\s+([\w$.]+)\.([\w$<>]+)\(([\w$.]+\.java):(\d+)\)\s*$`)

	// gdbFrame matches gdb backtrace frames:
	//   #0  foo (x=1) at /src/lib/foo.cc:42
	gdbFrame = regexp.MustCompile(`^\s*#\d+\s+(?:0x[0-9a-fA-F]+\s+in\s+)?([\w:~]+)\s*\([^)]*\)\s+at\s+(\S+?):(\d+)\s*$`)
)

// Parse extracts a structured stack trace from raw crash text.
//
// Description:
//
//	Scans line by line for sanitizer, gdb, and JVM frame formats. Lines
//	that match no format are skipped; a report with no recognizable frames
//	yields an empty trace, never an error. Frame order follows report
//	order, which for all supported formats is innermost first.
//
// Inputs:
//
//	text - Raw crash report text.
//
// Outputs:
//
//	Trace - Parsed frames, possibly empty.
func Parse(text string) Trace {
	var frames []Frame
	for _, line := range strings.Split(text, "\n") {
		if m := sanitizerFrame.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[3])
			frames = append(frames, Frame{
				Function: trimTemplateArgs(m[1]),
				File:     m[2],
				Line:     n,
			})
			continue
		}
		if m := javaFrame.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[4])
			frames = append(frames, Frame{
				Function: m[2],
				Class:    m[1],
				File:     m[3],
				Line:     n,
			})
			continue
		}
		if m := gdbFrame.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[3])
			frames = append(frames, Frame{
				Function: trimTemplateArgs(m[1]),
				File:     m[2],
				Line:     n,
			})
		}
	}
	return Trace{Frames: frames}
}

// trimTemplateArgs strips a trailing template argument list from a mangled
// C++ frame name so foo<int> and foo resolve to the same symbol.
func trimTemplateArgs(name string) string {
	if i := strings.IndexByte(name, '<'); i > 0 {
		// Keep operator< and friends intact.
		if !strings.HasPrefix(name[i:], "<<") && !strings.Contains(name[:i], "operator") {
			return name[:i]
		}
	}
	return name
}
