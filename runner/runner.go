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

// Package runner defines the agent-runner contract consumed by the
// gateway: an async producer of session events for one model turn. The
// gateway treats the runner as opaque; failed model steps surface as
// events carrying ErrorMessage, infrastructure failures as iterator
// errors.
package runner

import (
	"context"
	"iter"

	"github.com/achetronic/adk-context-gateway/session"
)

// Request describes one model turn.
type Request struct {
	AppName   string
	UserID    string
	SessionID string

	// NewMessage is the user's message for this turn.
	NewMessage *session.Content

	// Streaming selects incremental events (growing content snapshots)
	// over a single final event.
	Streaming bool

	// AppendNewMessage controls whether the runner persists NewMessage
	// before running. The gateway clears it on a retry pass so the user
	// event is not appended twice.
	AppendNewMessage bool
}

// Runner produces the event stream for one turn. Iteration must stop when
// the context is cancelled, and cancellation must propagate to any
// in-flight LLM request.
type Runner interface {
	Run(ctx context.Context, req *Request) iter.Seq2[*session.Event, error]
}
