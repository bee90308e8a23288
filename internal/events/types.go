// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process pub/sub hub that fans session
// changes out to connected push-channel clients: per-subscriber bounded
// queues with non-blocking publish, wildcard type patterns, and a
// bounded history for diagnostics.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types     []string  // Event types to match (supports wildcards)
	SessionID string    // Filter by owning session
	Since     time.Time // Events after this time
	Until     time.Time // Events before this time
	Limit     int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Event kinds published on the hub.
const (
	EventSessions                 = "sessions"
	EventMessage                  = "message"
	EventSessionAdded             = "session_added"
	EventSessionRemoved           = "session_removed"
	EventSessionStatus            = "session_status"
	EventSessionSummaryUpdated    = "session_summary_updated"
	EventSessionTokenUsageUpdated = "session_token_usage_updated"
	EventPermissionDenied         = "permission_denied"
	EventReinitialize             = "reinitialize"
	EventCatchupComplete          = "catchup_complete"
	EventPing                     = "ping"
)
