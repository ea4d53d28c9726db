// Copyright 2025 achetronic
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session defines the conversation data model (events, parts,
// sessions) and the session store contract shared by every backend and
// decorator in this module.
//
// Stores are stacked: a baseline store (in-memory or Redis) may be wrapped
// by the compacting decorator and then by the trimming decorator. Decorators
// depend only on Service, plus the optional EventReplacer capability for
// backends that allow rewriting a session's event list in place.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists is returned when creating a session whose ID is taken.
	ErrAlreadyExists = errors.New("session already exists")
)

// Blob marks a binary part. The payload is carried verbatim and never enters
// token-budget arithmetic.
type Blob struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Part is one fragment of an event's content. Exactly one of the variants is
// normally populated: Text, Value (arbitrary payload, stringified on read),
// or InlineData (binary). Thought marks reasoning text that is streamed on
// the thinking channel instead of the content channel.
type Part struct {
	Text       string `json:"text,omitempty"`
	Value      any    `json:"value,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content carries the role-tagged parts of an event.
type Content struct {
	Role  string  `json:"role,omitempty"`
	Parts []*Part `json:"parts,omitempty"`
}

// Event is a single append-only record in a session's history. Events are
// never mutated in place; compaction produces a replacement event list.
type Event struct {
	ID           string         `json:"id"`
	InvocationID string         `json:"invocationId,omitempty"`
	Author       string         `json:"author,omitempty"`
	Timestamp    float64        `json:"timestamp"`
	Content      *Content       `json:"content,omitempty"`
	Actions      map[string]any `json:"actions,omitempty"`

	// ErrorMessage is set on events produced by a failed runner step. It is
	// streamed, never persisted as conversation content.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Session is the event list and metadata for one (app, user, session) triple.
// The identity triple is immutable for the session's lifetime.
type Session struct {
	AppName string         `json:"appName"`
	UserID  string         `json:"userId"`
	ID      string         `json:"id"`
	State   map[string]any `json:"state,omitempty"`
	Events  []*Event       `json:"events"`
}

// WithEvents returns a shallow copy of the session carrying a replacement
// event list. The receiver is left untouched; decorators use this to build
// per-request views without writing through to the store.
func (s *Session) WithEvents(events []*Event) *Session {
	cp := *s
	cp.Events = events
	return &cp
}

// Key identifies a session inside a store.
type Key struct {
	AppName   string
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AppName, k.UserID, k.SessionID)
}

// CreateRequest asks a store to create a session. An empty SessionID lets
// the store mint one.
type CreateRequest struct {
	AppName   string
	UserID    string
	SessionID string
	State     map[string]any
}

// CreateResponse carries the created session.
type CreateResponse struct {
	Session *Session
}

// GetRequest fetches a session by key.
type GetRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// GetResponse carries the fetched session.
type GetResponse struct {
	Session *Session
}

// ListRequest lists sessions for one (app, user) pair.
type ListRequest struct {
	AppName string
	UserID  string
}

// ListResponse carries the listed sessions.
type ListResponse struct {
	Sessions []*Session
}

// DeleteRequest removes a session by key.
type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// Service is the session store contract. Implementations must keep event
// timestamps non-decreasing and must never reorder surviving events when a
// list is replaced.
type Service interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error
	AppendEvent(ctx context.Context, key Key, evt *Event) error
}

// EventReplacer is the optional mutable-store capability. Backends that
// implement it allow the compacting decorator to persist a rewritten event
// list; without it, decorators return modified copies only.
type EventReplacer interface {
	ReplaceEvents(ctx context.Context, key Key, events []*Event) error
}

// PartText returns the readable text of a part: Text when present, the
// stringified Value otherwise, and the literal "[binary]" marker for inline
// data. Parts with none of those yield "".
func PartText(p *Part) string {
	if p == nil {
		return ""
	}
	if p.Text != "" {
		return p.Text
	}
	if p.Value != nil {
		return fmt.Sprintf("%v", p.Value)
	}
	if p.InlineData != nil {
		return "[binary]"
	}
	return ""
}

// EventText concatenates the readable text of every part of an event.
func EventText(evt *Event) string {
	if evt == nil || evt.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range evt.Content.Parts {
		sb.WriteString(PartText(part))
	}
	return sb.String()
}
