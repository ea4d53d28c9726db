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

package compact

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/achetronic/adk-context-gateway/session"
)

var tracer = otel.Tracer("github.com/achetronic/adk-context-gateway/compact")

// Service is the compacting decorator. It wraps any session store and runs
// the sliding-window compactor on read, and additionally after appends when
// the wrapped store exposes the EventReplacer capability. Without that
// capability the decorator is purely functional: it returns compacted
// views and the stored history keeps growing (compaction then re-fires on
// every read once the interval is crossed).
//
// Compaction failures are advisory: the session is always returned
// unchanged rather than failing the request. The trimming budget remains
// the next line of defense.
type Service struct {
	inner     session.Service
	replacer  session.EventReplacer
	compactor *Compactor
}

// NewService wraps a store with sliding-window compaction.
func NewService(inner session.Service, compactor *Compactor) *Service {
	replacer, _ := inner.(session.EventReplacer)
	return &Service{inner: inner, replacer: replacer, compactor: compactor}
}

// Get fetches the inner session and compacts its history when the window
// fires. With a mutable inner store, the compacted list is also written
// back so the stored history shrinks.
func (s *Service) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	resp, err := s.inner.Get(ctx, req)
	if err != nil {
		return nil, err
	}

	sess := resp.Session
	if sess == nil || len(sess.Events) == 0 {
		return resp, nil
	}

	compacted := s.compact(ctx, session.Key{AppName: sess.AppName, UserID: sess.UserID, SessionID: sess.ID}, sess.Events)
	if compacted == nil {
		return resp, nil
	}

	return &session.GetResponse{Session: sess.WithEvents(compacted)}, nil
}

// AppendEvent forwards to the inner store and, when the store is mutable,
// compacts the freshly grown history in place.
func (s *Service) AppendEvent(ctx context.Context, key session.Key, evt *session.Event) error {
	if err := s.inner.AppendEvent(ctx, key, evt); err != nil {
		return err
	}

	if s.replacer == nil {
		return nil
	}

	resp, err := s.inner.Get(ctx, &session.GetRequest{AppName: key.AppName, UserID: key.UserID, SessionID: key.SessionID})
	if err != nil {
		slog.Warn("Compaction: post-append read failed", "session", key.SessionID, "error", err)
		return nil
	}
	s.compact(ctx, key, resp.Session.Events)
	return nil
}

// compact runs the compactor and writes the result back through the
// EventReplacer when available. Returns the new event list, or nil when
// nothing was compacted.
func (s *Service) compact(ctx context.Context, key session.Key, events []*session.Event) []*session.Event {
	ctx, span := tracer.Start(ctx, "compact.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("compact.events_in", len(events)))

	compacted, err := s.compactor.Run(ctx, events)
	if err != nil {
		slog.Warn("Compaction: failed, passing through", "session", key.SessionID, "error", err)
		return nil
	}
	if compacted == nil {
		return nil
	}

	span.SetAttributes(attribute.Int("compact.events_out", len(compacted)))
	slog.Info("Compaction: window summarized",
		"session", key.SessionID,
		"eventsIn", len(events),
		"eventsOut", len(compacted),
	)

	if s.replacer != nil {
		if err := s.replacer.ReplaceEvents(ctx, key, compacted); err != nil {
			slog.Warn("Compaction: write-back failed", "session", key.SessionID, "error", err)
		}
	}
	return compacted
}

// Create passes through to the inner store.
func (s *Service) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	return s.inner.Create(ctx, req)
}

// List passes through to the inner store.
func (s *Service) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	return s.inner.List(ctx, req)
}

// Delete passes through to the inner store.
func (s *Service) Delete(ctx context.Context, req *session.DeleteRequest) error {
	return s.inner.Delete(ctx, req)
}

var _ session.Service = (*Service)(nil)
