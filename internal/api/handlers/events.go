// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/wingedpig/sessiontail/internal/core"
	"github.com/wingedpig/sessiontail/internal/events"
)

// EventsHandler serves GET /events: the single SSE push channel the UI
// subscribes to for its whole lifetime.
type EventsHandler struct {
	Core *core.Core
}

// NewEventsHandler constructs an EventsHandler.
func NewEventsHandler(c *core.Core) *EventsHandler {
	return &EventsHandler{Core: c}
}

const (
	eventsSubscribeBuffer = 64
	catchupBudget         = 30 * time.Second
	pingInterval          = 30 * time.Second
)

// Stream handles GET /events. It writes a catchup burst (the full current
// session list, then catchup_complete) within a 30s wall-clock budget, then
// streams live events from the hub until the client disconnects, sending a
// ping every 30s of inactivity to keep intermediaries from closing the
// connection.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctrl := http.NewResponseController(w)

	subID, ch, err := h.Core.Bus.SubscribeChannel("*", eventsSubscribeBuffer)
	if err != nil {
		log.Printf("events: subscribe: %v", err)
		return
	}
	defer h.Core.Bus.Unsubscribe(subID)

	_ = ctrl.SetWriteDeadline(time.Now().Add(catchupBudget))

	sessions := h.Core.Registry.List()
	payload := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		payload = append(payload, s.ToEventPayload(h.Core.Aggregator))
	}
	if err := writeSSE(w, flusher, events.Event{Type: events.EventSessions, Payload: map[string]interface{}{"sessions": payload}}); err != nil {
		h.reinitializeAndClose(w, flusher, ctrl)
		return
	}
	if err := writeSSE(w, flusher, events.Event{Type: events.EventCatchupComplete, Payload: map[string]interface{}{}}); err != nil {
		h.reinitializeAndClose(w, flusher, ctrl)
		return
	}

	_ = ctrl.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, ev); err != nil {
				return
			}
			ticker.Reset(pingInterval)
		case <-ticker.C:
			if err := writeSSE(w, flusher, events.Event{Type: events.EventPing, Payload: map[string]interface{}{}}); err != nil {
				return
			}
		}
	}
}

// reinitializeAndClose tells the client to drop its catchup state and
// reconnect fresh, used when the 30s catchup budget is exceeded.
func (h *EventsHandler) reinitializeAndClose(w http.ResponseWriter, flusher http.Flusher, ctrl *http.ResponseController) {
	_ = ctrl.SetWriteDeadline(time.Time{})
	_ = writeSSE(w, flusher, events.Event{Type: events.EventReinitialize, Payload: map[string]interface{}{}})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev events.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
