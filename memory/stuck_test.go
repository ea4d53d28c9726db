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

package memory

import (
	"testing"

	"github.com/achetronic/adk-context-gateway/ranker"
)

func assistantMsg(text string) *ranker.Message {
	return &ranker.Message{
		Role:    ranker.Assistant,
		Content: []ranker.ContentItem{{Type: "text", Value: text}},
	}
}

func userMsg(text string) *ranker.Message {
	return &ranker.Message{
		Role:    ranker.User,
		Content: []ranker.ContentItem{{Type: "text", Value: text}},
	}
}

func TestDetectStuckRepetition(t *testing.T) {
	d := NewRepetitionDetector()

	messages := []*ranker.Message{
		userMsg("fix the build"),
		assistantMsg("Running make again to see if it passes."),
		userMsg("still broken"),
		assistantMsg("Running make again to see if it passes."),
		userMsg("try something else"),
		assistantMsg("Running  make again to see if it PASSES."), // normalization collapses case and spacing
	}

	detection, err := d.DetectStuck(messages)
	if err != nil {
		t.Fatalf("DetectStuck failed: %v", err)
	}
	if !detection.IsStuck {
		t.Fatal("expected stuck detection")
	}
	if detection.Type != "repetition" {
		t.Errorf("type = %q, want repetition", detection.Type)
	}
	if detection.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0 (all three repeats)", detection.Confidence)
	}
	if len(detection.Evidence) == 0 {
		t.Error("expected evidence")
	}
}

func TestDetectStuckVariedConversation(t *testing.T) {
	d := NewRepetitionDetector()

	messages := []*ranker.Message{
		assistantMsg("Checking the logs for errors."),
		assistantMsg("Found a nil dereference in the handler."),
		assistantMsg("Patched the handler, rerunning the suite."),
		assistantMsg("All tests pass now."),
	}

	detection, err := d.DetectStuck(messages)
	if err != nil {
		t.Fatalf("DetectStuck failed: %v", err)
	}
	if detection.IsStuck {
		t.Fatal("varied conversation flagged as stuck")
	}
}

func TestDetectStuckTooFewAssistantTurns(t *testing.T) {
	d := NewRepetitionDetector()

	messages := []*ranker.Message{
		userMsg("hello"),
		assistantMsg("same answer"),
		assistantMsg("same answer"),
	}

	detection, err := d.DetectStuck(messages)
	if err != nil {
		t.Fatalf("DetectStuck failed: %v", err)
	}
	if detection.IsStuck {
		t.Fatal("two repeats must not trigger detection")
	}
}

func TestGenerateRecoveryMessage(t *testing.T) {
	d := NewRepetitionDetector()

	msg, err := d.GenerateRecoveryMessage(&Detection{IsStuck: true, Type: "repetition"})
	if err != nil {
		t.Fatalf("GenerateRecoveryMessage failed: %v", err)
	}
	if msg == nil || len(msg.Content) == 0 || msg.Content[0].Text == "" {
		t.Fatal("expected a non-empty recovery message")
	}

	none, err := d.GenerateRecoveryMessage(&Detection{IsStuck: false})
	if err != nil || none != nil {
		t.Fatalf("not-stuck detection must yield no message, got (%v, %v)", none, err)
	}
}
