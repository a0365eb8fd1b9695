package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// roundTrip marshals v to JSON, unmarshals into a fresh zero value of the
// same type, and returns it for comparison against the original.
func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestMemoryEntry_RoundTripsThroughJSON(t *testing.T) {
	original := MemoryEntry{
		ID:          42,
		SessionID:   "s1",
		Role:        "user",
		Content:     "how do I rate-limit this endpoint?",
		ContentType: "message",
		Salience:    0.73,
		Embedded:    true,
		Metadata:    map[string]string{"topic": "rate-limiting"},
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	got := roundTrip(t, original)
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("MemoryEntry round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestOperation_RoundTripsThroughJSON(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	original := Operation{
		ID:               "op-1",
		SessionID:        "s1",
		Status:           OperationCompleted,
		Goal:             "generate a rate limiter",
		EscalationReason: EscalationNone,
		StartedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:        completed,
		CompletedAt:      &completed,
	}

	got := roundTrip(t, original)
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("Operation round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestArtifact_RoundTripsThroughJSON(t *testing.T) {
	original := Artifact{
		ID:                 "art-1",
		OperationID:        "op-1",
		Kind:               ArtifactFile,
		Path:               "rate_limiter.rs",
		Content:            "pub struct RateLimiter;",
		Language:           "rust",
		ContentHash:        HashContent("pub struct RateLimiter;"),
		PreviousArtifactID: "",
		IsNewFile:          true,
		CreatedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	got := roundTrip(t, original)
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("Artifact round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHashContent_DeterministicAndLength(t *testing.T) {
	h1 := HashContent("hello")
	h2 := HashContent("hello")
	h3 := HashContent("hello!")

	if h1 != h2 {
		t.Errorf("HashContent is not deterministic: %q != %q", h1, h2)
	}
	if h1 == h3 {
		t.Errorf("HashContent collided for distinct inputs")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestOperationStatus_IsActiveAndTerminal(t *testing.T) {
	active := []OperationStatus{OperationUnderstanding, OperationPlanning, OperationExecuting, OperationWaitingForTools, OperationVerifying}
	for _, s := range active {
		if !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
		if s.AcceptsNewWork() {
			t.Errorf("%s should not accept new work", s)
		}
	}

	terminal := []OperationStatus{OperationCompleted, OperationFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if !s.AcceptsNewWork() {
			t.Errorf("%s should accept new work", s)
		}
	}

	if !OperationIdle.AcceptsNewWork() {
		t.Error("Idle should accept new work")
	}
	if OperationIdle.IsActive() || OperationIdle.IsTerminal() {
		t.Error("Idle is neither active nor terminal")
	}
}
