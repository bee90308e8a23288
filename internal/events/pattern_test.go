// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatcher_Match(t *testing.T) {
	matcher := NewPatternMatcher()

	tests := []struct {
		name      string
		pattern   string
		eventType string
		matches   bool
	}{
		// Exact matches
		{
			name:      "exact match",
			pattern:   "session_added",
			eventType: "session_added",
			matches:   true,
		},
		{
			name:      "exact no match",
			pattern:   "session_added",
			eventType: "session_removed",
			matches:   false,
		},

		// Wildcard at end (session_*)
		{
			name:      "wildcard end matches added",
			pattern:   "session_*",
			eventType: "session_added",
			matches:   true,
		},
		{
			name:      "wildcard end matches status",
			pattern:   "session_*",
			eventType: "session_status",
			matches:   true,
		},
		{
			name:      "wildcard end no match different prefix",
			pattern:   "session_*",
			eventType: "permission_denied",
			matches:   false,
		},

		// Wildcard at start (*_updated)
		{
			name:      "wildcard start matches summary",
			pattern:   "*_updated",
			eventType: "session_summary_updated",
			matches:   true,
		},
		{
			name:      "wildcard start matches token usage",
			pattern:   "*_updated",
			eventType: "session_token_usage_updated",
			matches:   true,
		},
		{
			name:      "wildcard start no match different suffix",
			pattern:   "*_updated",
			eventType: "session_removed",
			matches:   false,
		},

		// Match all
		{
			name:      "match all",
			pattern:   "*",
			eventType: "session_summary_updated",
			matches:   true,
		},
		{
			name:      "match all single word",
			pattern:   "*",
			eventType: "ping",
			matches:   true,
		},

		// Edge cases
		{
			name:      "empty pattern",
			pattern:   "",
			eventType: "session_added",
			matches:   false,
		},
		{
			name:      "empty event type",
			pattern:   "session_*",
			eventType: "",
			matches:   false,
		},
		{
			name:      "both empty",
			pattern:   "",
			eventType: "",
			matches:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := matcher.Match(tt.eventType, tt.pattern)
			assert.Equal(t, tt.matches, result)
		})
	}
}

func TestPatternMatcher_Compile(t *testing.T) {
	matcher := NewPatternMatcher()

	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"exact pattern", "session_added", false},
		{"wildcard end", "session_*", false},
		{"wildcard start", "*_updated", false},
		{"match all", "*", false},
		{"empty pattern", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := matcher.Compile(tt.pattern)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, compiled)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, compiled)
			}
		})
	}
}

func TestCompiledPattern_Match(t *testing.T) {
	matcher := NewPatternMatcher()

	// Compile pattern once, match multiple times
	pattern, err := matcher.Compile("session_*")
	require.NoError(t, err)

	tests := []struct {
		eventType string
		matches   bool
	}{
		{"session_added", true},
		{"session_removed", true},
		{"session_status", true},
		{"permission_denied", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.matches, pattern.Match(tt.eventType))
		})
	}
}

func TestPatternMatcher_MatchMultiplePatterns(t *testing.T) {
	matcher := NewPatternMatcher()

	// Test matching against multiple patterns
	patterns := []string{"session_added", "session_removed", "permission_*"}

	tests := []struct {
		eventType string
		matches   bool
	}{
		{"session_added", true},
		{"session_removed", true},
		{"session_status", false},
		{"permission_denied", true},
		{"catchup_complete", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			matched := false
			for _, pattern := range patterns {
				if matcher.Match(tt.eventType, pattern) {
					matched = true
					break
				}
			}
			assert.Equal(t, tt.matches, matched)
		})
	}
}

func TestPatternMatcher_Concurrency(t *testing.T) {
	matcher := NewPatternMatcher()

	// Compile pattern
	pattern, err := matcher.Compile("session_*")
	require.NoError(t, err)

	// Test concurrent matching
	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				pattern.Match("session_added")
				matcher.Match("session_removed", "session_*")
			}
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}
