// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

package server

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a pipeline session.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Session tracks one upload-and-run cycle.
type Session struct {
	ID        string         `json:"session_id"`
	Status    Status         `json:"status"`
	Result    *ResultPayload `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Note      string         `json:"note,omitempty"`
	Dir       string         `json:"-"`
	CreatedAt time.Time      `json:"-"`
}

// StreamEvent is one server-sent event on the progress stream.
type StreamEvent struct {
	Type       string         `json:"type"` // progress, step_complete, complete, error
	Step       int            `json:"step,omitempty"`
	TotalSteps int            `json:"total_steps,omitempty"`
	Label      string         `json:"label,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Message    string         `json:"message,omitempty"`
	Result     *ResultPayload `json:"result,omitempty"`
}

// Tracker manages sessions in memory and fans progress events out to SSE
// subscribers.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	subs     map[string][]chan StreamEvent
}

// NewTracker creates an empty session tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*Session),
		subs:     make(map[string][]chan StreamEvent),
	}
}

// Create registers a new running session.
func (t *Tracker) Create(id, dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = &Session{
		ID:        id,
		Status:    StatusRunning,
		Dir:       dir,
		CreatedAt: time.Now(),
	}
}

// Get returns a snapshot of a session.
func (t *Tracker) Get(id string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ActiveCount returns the number of pending or running sessions.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.sessions {
		if s.Status == StatusPending || s.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Publish delivers an event to all subscribers of a session. Slow
// subscribers drop events rather than block the pipeline.
func (t *Tracker) Publish(id string, ev StreamEvent) {
	t.mu.RLock()
	subs := append([]chan StreamEvent(nil), t.subs[id]...)
	t.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Complete marks a session done and publishes the final event.
func (t *Tracker) Complete(id string, payload *ResultPayload) {
	t.mu.Lock()
	if s, ok := t.sessions[id]; ok {
		s.Status = StatusDone
		s.Result = payload
	}
	t.mu.Unlock()
	t.Publish(id, StreamEvent{Type: "complete", Result: payload})
}

// Fail marks a session failed and publishes the error event.
func (t *Tracker) Fail(id string, step int, msg string) {
	t.mu.Lock()
	if s, ok := t.sessions[id]; ok {
		s.Status = StatusError
		s.Error = msg
	}
	t.mu.Unlock()
	t.Publish(id, StreamEvent{Type: "error", Step: step, Message: msg})
}

// Subscribe returns a buffered channel of session events together with a
// snapshot of the session taken in the same critical section. Complete and
// Fail publish their terminal event only to channels registered at that
// moment, so a caller must check the snapshot for a terminal status that
// landed before registration; without it the terminal event can be missed
// entirely. An unknown id yields a zero-value snapshot.
func (t *Tracker) Subscribe(id string) (chan StreamEvent, Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan StreamEvent, 16)
	t.subs[id] = append(t.subs[id], ch)
	var snapshot Session
	if s, ok := t.sessions[id]; ok {
		snapshot = *s
	}
	return ch, snapshot
}

// Remove drops a session and its subscriber list. Channels are not closed;
// a straggling subscriber times out on its own rather than racing a send
// on a closed channel.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
	delete(t.subs, id)
}

// Unsubscribe removes a subscriber channel.
func (t *Tracker) Unsubscribe(id string, ch chan StreamEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			t.subs[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
