package operation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memengine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	operations []*domain.Operation
	artifacts  []*domain.Artifact
	statuses   []domain.OperationStatus
}

func (s *fakeStore) InsertOperation(op *domain.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, op)
	return nil
}

func (s *fakeStore) UpdateOperationStatus(id string, status domain.OperationStatus, reason domain.EscalationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) InsertArtifact(a *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
	return nil
}

type fixedPlanner struct {
	plan *Plan
	err  error
}

func (p *fixedPlanner) Plan(ctx context.Context, goal string) (*Plan, error) {
	return p.plan, p.err
}

type fakeToolRunner struct {
	fail bool
}

func (r *fakeToolRunner) Execute(ctx context.Context, call ToolCall) (string, error) {
	if r.fail {
		return "", errors.New("tool exploded")
	}
	return "ok", nil
}

type fakeCodeGen struct {
	artifacts []domain.Artifact
	err       error
}

func (g *fakeCodeGen) Generate(ctx context.Context, req CodeGenRequest) ([]domain.Artifact, error) {
	return g.artifacts, g.err
}

func drain(stream *Stream) []Event {
	var events []Event
	for evt := range stream.Events() {
		events = append(events, evt)
	}
	return events
}

func TestRun_SimplePlanCompletesSuccessfully(t *testing.T) {
	plan := &Plan{Steps: []*ExecutionStep{
		{Index: 0, ToolCalls: []ToolCall{{Name: "read_file"}}},
	}}
	store := &fakeStore{}
	e := NewEngine(store, &fixedPlanner{plan: plan}, &fakeToolRunner{}, &fakeCodeGen{}, nil)

	op, stream := e.Run(context.Background(), "sess-1", "fix the bug")
	events := drain(stream)

	require.NotEmpty(t, events)
	assert.Equal(t, domain.OperationCompleted, op.Status)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventCompleted, events[len(events)-1].Type)

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Sequence, events[i-1].Sequence)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Contains(t, store.statuses, domain.OperationWaitingForTools)
	assert.Contains(t, store.statuses, domain.OperationVerifying)
}

func TestRun_VerificationFailureEscalates(t *testing.T) {
	plan := &Plan{Steps: []*ExecutionStep{
		{Index: 0, ToolCalls: []ToolCall{{Name: "generate_code", Args: map[string]interface{}{"path": "bad.go"}}}},
	}}
	store := &fakeStore{}
	gen := &fakeCodeGen{artifacts: []domain.Artifact{{
		Path:     "bad.go",
		Language: "go",
		Content:  "package main\n\nfunc main() {\n\tthis does not compile\n}\n",
	}}}
	e := NewEngine(store, &fixedPlanner{plan: plan}, &fakeToolRunner{}, gen, nil)

	op, stream := e.Run(context.Background(), "sess-1", "write broken go")
	events := drain(stream)

	assert.Equal(t, domain.OperationFailed, op.Status)
	assert.Equal(t, domain.EscalationVerificationFailed, op.EscalationReason)
	assert.Equal(t, EventFailed, events[len(events)-1].Type)
}

func TestRun_DisabledVerifierSkipsVerification(t *testing.T) {
	plan := &Plan{Steps: []*ExecutionStep{
		{Index: 0, ToolCalls: []ToolCall{{Name: "generate_code", Args: map[string]interface{}{"path": "bad.go"}}}},
	}}
	store := &fakeStore{}
	gen := &fakeCodeGen{artifacts: []domain.Artifact{{
		Path:     "bad.go",
		Language: "go",
		Content:  "package main\n\nfunc main() {\n\tthis does not compile\n}\n",
	}}}
	e := NewEngine(store, &fixedPlanner{plan: plan}, &fakeToolRunner{}, gen, nil)
	e.SetVerifier(nil)

	op, stream := e.Run(context.Background(), "sess-1", "write broken go")
	_ = drain(stream)

	assert.Equal(t, domain.OperationCompleted, op.Status)
}

func TestRun_PlanningFailureEscalatesAndFails(t *testing.T) {
	store := &fakeStore{}
	e := NewEngine(store, &fixedPlanner{err: errors.New("no plan")}, &fakeToolRunner{}, &fakeCodeGen{}, nil)

	op, stream := e.Run(context.Background(), "sess-1", "impossible goal")
	events := drain(stream)

	assert.Equal(t, domain.OperationFailed, op.Status)
	assert.Equal(t, domain.EscalationPlanningFailed, op.EscalationReason)

	var sawFailed bool
	for _, evt := range events {
		if evt.Type == EventFailed {
			sawFailed = true
			assert.Equal(t, string(domain.EscalationPlanningFailed), evt.Reason)
		}
	}
	assert.True(t, sawFailed)
}

func TestRun_ToolCallFailureExhaustsRetriesAndEscalates(t *testing.T) {
	plan := &Plan{Steps: []*ExecutionStep{
		{Index: 0, ToolCalls: []ToolCall{{Name: "run_tests"}}},
	}}
	store := &fakeStore{}
	cfg := DefaultConfig()
	cfg.MaxToolCallAttempts = 2
	e := NewEngine(store, &fixedPlanner{plan: plan}, &fakeToolRunner{fail: true}, &fakeCodeGen{}, nil)
	e.SetConfig(cfg)

	op, stream := e.Run(context.Background(), "sess-1", "run the suite")
	_ = drain(stream)

	assert.Equal(t, domain.OperationFailed, op.Status)
	assert.Equal(t, domain.EscalationToolCallsFailed, op.EscalationReason)
}

func TestRun_DelegatedToolCallRoutesToCodeGenAndPersistsArtifact(t *testing.T) {
	plan := &Plan{Steps: []*ExecutionStep{
		{Index: 0, ToolCalls: []ToolCall{{Name: "generate_code", Args: map[string]interface{}{"path": "rate_limiter.rs"}}}},
	}}
	store := &fakeStore{}
	gen := &fakeCodeGen{artifacts: []domain.Artifact{{Path: "rate_limiter.rs", Content: "struct RateLimiter;"}}}
	e := NewEngine(store, &fixedPlanner{plan: plan}, &fakeToolRunner{}, gen, nil)

	op, stream := e.Run(context.Background(), "sess-1", "write a rate limiter")
	events := drain(stream)

	assert.Equal(t, domain.OperationCompleted, op.Status)

	var sawDelegated, sawArtifact bool
	for _, evt := range events {
		if evt.Type == EventDelegated {
			sawDelegated = true
		}
		if evt.Type == EventArtifactCompleted {
			sawArtifact = true
			assert.Equal(t, "rate_limiter.rs", evt.Path)
		}
	}
	assert.True(t, sawDelegated)
	assert.True(t, sawArtifact)
	require.Len(t, store.artifacts, 1)
	assert.Equal(t, "rate_limiter.rs", store.artifacts[0].Path)

	completed := events[len(events)-1]
	require.Equal(t, EventCompleted, completed.Type)
	require.Len(t, completed.Artifacts, 1)
	assert.Equal(t, "rate_limiter.rs", completed.Artifacts[0].Path)

	env := completed.Envelope()
	assert.Equal(t, "operation.completed", env.Type)
	require.Len(t, env.Artifacts, 1)
	require.NotNil(t, env.Artifacts[0].Path)
	assert.Equal(t, "rate_limiter.rs", *env.Artifacts[0].Path)
}

type unavailableBreaker struct{ provider string }

func (b *unavailableBreaker) IsAvailable(provider string) bool {
	return provider != b.provider
}

func TestRun_CircuitOpenOnPlannerFailsFast(t *testing.T) {
	store := &fakeStore{}
	e := NewEngine(store, &fixedPlanner{plan: &Plan{}}, &fakeToolRunner{}, &fakeCodeGen{}, &unavailableBreaker{provider: "planner"})

	op, stream := e.Run(context.Background(), "sess-1", "goal")
	_ = drain(stream)

	assert.Equal(t, domain.OperationFailed, op.Status)
	assert.Equal(t, domain.EscalationPlanningFailed, op.EscalationReason)
}

func TestRun_HardTimeoutEscalates(t *testing.T) {
	plan := &Plan{Steps: []*ExecutionStep{
		{Index: 0, ToolCalls: []ToolCall{{Name: "slow_tool"}}},
		{Index: 1, ToolCalls: []ToolCall{{Name: "slow_tool"}}},
	}}
	store := &fakeStore{}
	e := NewEngine(store, &fixedPlanner{plan: plan}, &fakeToolRunner{}, &fakeCodeGen{}, nil)
	cfg := DefaultConfig()
	cfg.HardTimeout = 1 * time.Nanosecond
	e.SetConfig(cfg)

	op, stream := e.Run(context.Background(), "sess-1", "goal")
	_ = drain(stream)

	assert.Equal(t, domain.OperationFailed, op.Status)
}
