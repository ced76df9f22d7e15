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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cppSource = `#include <cstdio>

void helper(int x) {
	printf("%d\n", x);
}

int main() {
	helper(1);
	helper(2);
	return 0;
}
`

const javaSource = `class Socket {
	void close() {
		flush();
		release();
	}
	void flush() {}
	void release() {}
}
`

// TestCallExpressionPattern_Match verifies C++ call sites are found in
// source order.
func TestCallExpressionPattern_Match(t *testing.T) {
	p := NewCallExpressionPattern()
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte(cppSource))
	require.NoError(t, err)
	require.Len(t, frags, 3)

	assert.Equal(t, `printf("%d\n", x)`, frags[0].Value)
	assert.Equal(t, "helper(1)", frags[1].Value)
	assert.Equal(t, "helper(2)", frags[2].Value)

	// Source order: byte offsets strictly increase.
	for i := 1; i < len(frags); i++ {
		assert.Less(t, frags[i-1].StartByte, frags[i].StartByte)
	}
}

// TestMatch_Deterministic verifies repeated matches on the same source
// produce identical fragment sets.
func TestMatch_Deterministic(t *testing.T) {
	p := NewCallExpressionPattern()
	ctx := context.Background()

	first, err := p.Match(ctx, []byte(cppSource))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := p.Match(ctx, []byte(cppSource))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

// TestMatch_Limit verifies WithLimit caps the result in source order.
func TestMatch_Limit(t *testing.T) {
	p := NewCallExpressionPattern(WithLimit(1))
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte(cppSource))
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, `printf("%d\n", x)`, frags[0].Value)
}

// TestMatch_MalformedSource verifies parse failure degrades to an empty
// set with a typed error instead of panicking.
func TestMatch_MalformedSource(t *testing.T) {
	p := NewCallExpressionPattern()
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte("int main( { not valid c++"))
	require.ErrorIs(t, err, ErrParseFailure)
	assert.NotNil(t, frags)
	assert.Empty(t, frags)
}

// TestMatch_InvalidEncoding verifies non-UTF-8 source is rejected.
func TestMatch_InvalidEncoding(t *testing.T) {
	p := NewCallExpressionPattern()
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte{0xff, 0xfe, 0xfd})
	require.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Empty(t, frags)
}

// TestMatch_SourceTooLarge verifies the size limit is enforced before
// parsing.
func TestMatch_SourceTooLarge(t *testing.T) {
	p := NewCallExpressionPattern(WithMaxSourceSize(16))
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte(cppSource))
	require.ErrorIs(t, err, ErrSourceTooLarge)
	assert.Empty(t, frags)
}

// TestMatch_CanceledContext verifies cancellation is observed before
// parsing begins.
func TestMatch_CanceledContext(t *testing.T) {
	p := NewCallExpressionPattern()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frags, err := p.Match(ctx, []byte(cppSource))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, frags)
}

// TestFunctionDefinitionPattern_Match verifies C++ definitions are found.
func TestFunctionDefinitionPattern_Match(t *testing.T) {
	p := NewFunctionDefinitionPattern()
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte(cppSource))
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Contains(t, frags[0].Value, "void helper(int x)")
	assert.Contains(t, frags[1].Value, "int main()")
}

// TestMethodInvocationPattern_Match verifies Java invocations share the
// same fragment shape as the C++ patterns.
func TestMethodInvocationPattern_Match(t *testing.T) {
	p := NewMethodInvocationPattern()
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte(javaSource))
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "flush()", frags[0].Value)
	assert.Equal(t, "release()", frags[1].Value)
}

// TestMethodDeclarationPattern_Match verifies Java declarations are found.
func TestMethodDeclarationPattern_Match(t *testing.T) {
	p := NewMethodDeclarationPattern(WithLimit(2))
	ctx := context.Background()

	frags, err := p.Match(ctx, []byte(javaSource))
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Contains(t, frags[0].Value, "void close()")
	assert.Contains(t, frags[1].Value, "void flush()")
}

// TestPatternIdentity verifies name and language metadata.
func TestPatternIdentity(t *testing.T) {
	cases := []struct {
		pattern  Pattern
		name     string
		language string
	}{
		{NewCallExpressionPattern(), "cpp_call_expression", "cpp"},
		{NewFunctionDefinitionPattern(), "cpp_function_definition", "cpp"},
		{NewMethodInvocationPattern(), "java_method_invocation", "java"},
		{NewMethodDeclarationPattern(), "java_method_declaration", "java"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.name, tc.pattern.Name())
		assert.Equal(t, tc.language, tc.pattern.Language())
	}
}

// TestFragment_Key verifies fragment identity combines offset and value.
func TestFragment_Key(t *testing.T) {
	a := Fragment{Value: "foo()", StartByte: 10}
	b := Fragment{Value: "foo()", StartByte: 20}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), Fragment{Value: "foo()", StartByte: 10}.Key())
}

// TestDedupe verifies duplicate fragments collapse while preserving
// first-encountered order.
func TestDedupe(t *testing.T) {
	in := []Fragment{
		{Value: "a", StartByte: 0},
		{Value: "b", StartByte: 4},
		{Value: "a", StartByte: 0},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Value)
	assert.Equal(t, "b", out[1].Value)
}
