// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crash

import (
	"reflect"
	"testing"
)

func TestParse_Sanitizer(t *testing.T) {
	text := `==1234==ERROR: AddressSanitizer: heap-use-after-free on address 0x602000000010
READ of size 1 at 0x602000000010 thread T0
    #0 0x4f2a67 in foo(char*) /src/lib/foo.cc:42:7
    #1 0x4f2b01 in Buffer::release() /src/lib/buffer.cc:88:3
    #2 0x4f2c99 in main /src/main.cc:10
`
	tr := Parse(text)
	want := []Frame{
		{Function: "foo", File: "/src/lib/foo.cc", Line: 42},
		{Function: "Buffer::release", File: "/src/lib/buffer.cc", Line: 88},
		{Function: "main", File: "/src/main.cc", Line: 10},
	}
	if !reflect.DeepEqual(tr.Frames, want) {
		t.Errorf("Frames = %+v, want %+v", tr.Frames, want)
	}
}

func TestParse_Gdb(t *testing.T) {
	text := `Program received signal SIGSEGV, Segmentation fault.
#0  Buffer::release (this=0x0) at /src/lib/buffer.cc:88
#1  0x00000000004f2b01 in foo (p=0x602000000010) at /src/lib/foo.cc:42
#2  0x00000000004f2c99 in main () at /src/main.cc:10
`
	tr := Parse(text)
	want := []Frame{
		{Function: "Buffer::release", File: "/src/lib/buffer.cc", Line: 88},
		{Function: "foo", File: "/src/lib/foo.cc", Line: 42},
		{Function: "main", File: "/src/main.cc", Line: 10},
	}
	if !reflect.DeepEqual(tr.Frames, want) {
		t.Errorf("Frames = %+v, want %+v", tr.Frames, want)
	}
}

func TestParse_Java(t *testing.T) {
	text := `Exception in thread "main" java.lang.NullPointerException
	at com.example.net.Socket.close(Socket.java:31)
	at com.example.net.Pool$Worker.run(Pool.java:117)
	at com.example.Main.main(Main.java:9)
`
	tr := Parse(text)
	want := []Frame{
		{Function: "close", Class: "com.example.net.Socket", File: "Socket.java", Line: 31},
		{Function: "run", Class: "com.example.net.Pool$Worker", File: "Pool.java", Line: 117},
		{Function: "main", Class: "com.example.Main", File: "Main.java", Line: 9},
	}
	if !reflect.DeepEqual(tr.Frames, want) {
		t.Errorf("Frames = %+v, want %+v", tr.Frames, want)
	}
}

func TestParse_Garbage(t *testing.T) {
	cases := []string{
		"",
		"no stack trace here, just prose about a crash",
		"#0 not a real frame\nat nowhere in particular",
	}
	for _, text := range cases {
		tr := Parse(text)
		if !tr.Empty() {
			t.Errorf("Parse(%q) recovered %d frames, want none", text, len(tr.Frames))
		}
	}
}

func TestParse_SkipsUnmatchedLines(t *testing.T) {
	text := `some preamble
    #0 0x4f2a67 in foo /src/foo.cc:4:3
random interleaved line
    #1 0x4f2b01 in main /src/main.cc:10:5
trailing noise
`
	tr := Parse(text)
	if len(tr.Frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2", len(tr.Frames))
	}
	if tr.Frames[0].Function != "foo" || tr.Frames[1].Function != "main" {
		t.Errorf("frame order wrong: %+v", tr.Frames)
	}
}

func TestSymbols_DedupesInOrder(t *testing.T) {
	tr := Trace{Frames: []Frame{
		{Function: "foo"},
		{Function: "bar"},
		{Function: "foo"},
		{Function: ""},
		{Function: "baz"},
	}}
	got := tr.Symbols()
	want := []string{"foo", "bar", "baz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Symbols() = %v, want %v", got, want)
	}
}

func TestTrimTemplateArgs(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"foo<int>", "foo"},
		{"std::vector<int>::push_back", "std::vector"},
		{"plain", "plain"},
		{"operator<", "operator<"},
		{"operator<<", "operator<<"},
	}
	for _, tc := range cases {
		if got := trimTemplateArgs(tc.in); got != tc.want {
			t.Errorf("trimTemplateArgs(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
