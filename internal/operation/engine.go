package operation

import (
	"context"
	"fmt"
	"time"

	"memengine/internal/domain"
	"memengine/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config holds the Operation Engine's tunables, following the teacher's
// Config{...}/DefaultXConfig()/NewX(...) idiom.
type Config struct {
	// HardTimeout bounds an entire operation from Understanding through a
	// terminal status.
	HardTimeout time.Duration

	// StepTimeout is a soft, per-plan-step timeout.
	StepTimeout time.Duration

	// MaxPlanningAttempts bounds planning retries before PlanningFailed.
	MaxPlanningAttempts int

	// MaxToolCallAttempts bounds retries of a single failing tool call
	// before ToolCallsFailed.
	MaxToolCallAttempts int

	// EventBufferSize bounds the per-operation event channel.
	EventBufferSize int
}

// DefaultConfig returns sensible defaults, matching
// config.DefaultOperationConfig's values.
func DefaultConfig() Config {
	return Config{
		HardTimeout:         5 * time.Minute,
		StepTimeout:         90 * time.Second,
		MaxPlanningAttempts: 2,
		MaxToolCallAttempts: 3,
		EventBufferSize:     1024,
	}
}

// Planner produces a Plan from a goal. A real implementation calls a
// reasoner model; tests substitute a fixed-plan stub.
type Planner interface {
	Plan(ctx context.Context, goal string) (*Plan, error)
}

// ToolRunner executes one non-delegated tool call and returns its textual
// result.
type ToolRunner interface {
	Execute(ctx context.Context, call ToolCall) (string, error)
}

// CodeGenerator handles delegated tool calls, producing one or more
// Artifacts from an enriched CodeGenRequest.
type CodeGenerator interface {
	Generate(ctx context.Context, req CodeGenRequest) ([]domain.Artifact, error)
}

// Store is the persistence surface the engine needs.
type Store interface {
	InsertOperation(op *domain.Operation) error
	UpdateOperationStatus(id string, status domain.OperationStatus, reason domain.EscalationReason) error
	InsertArtifact(a *domain.Artifact) error
}

// Breaker reports whether an external provider (the planner or code
// generator) is currently available.
type Breaker interface {
	IsAvailable(provider string) bool
}

// Engine drives one Operation's state machine from Understanding through a
// terminal outcome, emitting a typed event stream as it goes.
type Engine struct {
	store    Store
	planner  Planner
	tools    ToolRunner
	codegen  CodeGenerator
	breaker  Breaker
	verifier Verifier
	config   Config
}

// NewEngine constructs an Engine over its collaborators. breaker may be
// nil, in which case external providers are always treated as available.
// The Verifying step defaults to a SandboxVerifier; override it with
// SetVerifier.
func NewEngine(store Store, planner Planner, tools ToolRunner, codegen CodeGenerator, breaker Breaker) *Engine {
	return &Engine{
		store:    store,
		planner:  planner,
		tools:    tools,
		codegen:  codegen,
		breaker:  breaker,
		verifier: NewSandboxVerifier(),
		config:   DefaultConfig(),
	}
}

// SetConfig replaces the engine's configuration.
func (e *Engine) SetConfig(cfg Config) {
	e.config = cfg
}

// SetVerifier replaces the engine's Verifying-step implementation. Passing
// nil disables verification entirely (Verifying becomes a pass-through).
func (e *Engine) SetVerifier(v Verifier) {
	e.verifier = v
}

// Run executes one operation end to end: plan, execute every step
// (delegating where the tool name calls for it), then resolve to Completed,
// Failed, or Escalating. Run returns at once and the operation proceeds in
// the background; the returned Stream carries the full event history and is
// closed once the operation reaches its terminal outcome.
func (e *Engine) Run(ctx context.Context, sessionID, goal string) (*domain.Operation, *Stream) {
	op := &domain.Operation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    domain.OperationUnderstanding,
		Goal:      goal,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	stream := NewStream(op.ID, e.config.EventBufferSize)

	if e.store != nil {
		if err := e.store.InsertOperation(op); err != nil {
			logging.OperationError("failed to persist operation %s: %v", op.ID, err)
		}
	}

	hardCtx, cancel := context.WithTimeout(ctx, e.config.HardTimeout)

	stream.Publish(Event{Type: EventStarted})
	logging.Operation("operation %s started: goal=%q", op.ID, goal)

	go func() {
		defer cancel()
		defer stream.Close()
		e.run(hardCtx, op, stream)
	}()

	return op, stream
}

func (e *Engine) run(ctx context.Context, op *domain.Operation, stream *Stream) {
	plan, err := e.planWithRetries(ctx, op, stream)
	if err != nil {
		e.escalate(op, stream, domain.EscalationPlanningFailed, err.Error())
		return
	}

	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			e.escalate(op, stream, domain.EscalationHardTimeout, "operation exceeded hard timeout")
			return
		}
		e.transition(op, stream, domain.OperationExecuting)
		if !e.runStep(ctx, op, step, stream) {
			e.escalate(op, stream, domain.EscalationToolCallsFailed, fmt.Sprintf("step %d failed: %v", step.Index, step.Err))
			return
		}
	}

	e.transition(op, stream, domain.OperationVerifying)
	if e.verifier != nil {
		if err := e.verifier.Verify(ctx, stream.Artifacts()); err != nil {
			e.escalate(op, stream, domain.EscalationVerificationFailed, err.Error())
			return
		}
	}
	e.complete(op, stream)
}

// planWithRetries calls the Planner up to MaxPlanningAttempts times.
func (e *Engine) planWithRetries(ctx context.Context, op *domain.Operation, stream *Stream) (*Plan, error) {
	e.transition(op, stream, domain.OperationPlanning)

	if e.breaker != nil && !e.breaker.IsAvailable("planner") {
		return nil, fmt.Errorf("planner provider circuit open")
	}

	var lastErr error
	attempts := e.config.MaxPlanningAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		plan, err := e.planner.Plan(ctx, op.Goal)
		if err == nil {
			stream.Publish(Event{Type: EventPlanGenerated, Plan: plan})
			return plan, nil
		}
		lastErr = err
		logging.OperationWarn("operation %s planning attempt %d/%d failed: %v", op.ID, attempt, attempts, err)
	}
	return nil, lastErr
}

// runStep executes one step: its delegated tool calls go to the code
// generator, everything else runs in parallel through the tool runner via
// errgroup. Returns false if the step ultimately fails.
func (e *Engine) runStep(ctx context.Context, op *domain.Operation, step *ExecutionStep, stream *Stream) bool {
	step.start()
	stepCtx := ctx
	var cancel context.CancelFunc
	if e.config.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, e.config.StepTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(stepCtx)
	for _, call := range step.ToolCalls {
		call := call
		g.Go(func() error {
			return e.dispatchToolCall(gctx, op, call, stream)
		})
	}

	e.transition(op, stream, domain.OperationWaitingForTools)
	if err := g.Wait(); err != nil {
		step.fail(err)
		return false
	}

	step.complete(fmt.Sprintf("%d tool call(s) completed", len(step.ToolCalls)))
	return true
}

// dispatchToolCall routes a single tool call to the code generator when its
// name is in the delegated set, retrying non-delegated calls up to
// MaxToolCallAttempts times.
func (e *Engine) dispatchToolCall(ctx context.Context, op *domain.Operation, call ToolCall, stream *Stream) error {
	if isDelegated(call.Name) {
		return e.delegateToolCall(ctx, op, call, stream)
	}

	var lastErr error
	attempts := e.config.MaxToolCallAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := e.tools.Execute(ctx, call)
		if err == nil {
			stream.Publish(Event{Type: EventToolExecuted, ToolName: call.Name, ToolSuccess: true, ToolDetails: result})
			return nil
		}
		lastErr = err
		logging.OperationWarn("operation %s tool %s attempt %d/%d failed: %v", op.ID, call.Name, attempt, attempts, err)
	}
	stream.Publish(Event{Type: EventToolExecuted, ToolName: call.Name, ToolSuccess: false, ToolDetails: lastErr.Error()})
	return lastErr
}

// delegateToolCall builds a CodeGenRequest from the call's arguments and
// routes it to the code-generation model.
func (e *Engine) delegateToolCall(ctx context.Context, op *domain.Operation, call ToolCall, stream *Stream) error {
	stream.Publish(Event{Type: EventDelegated, DelegatedTo: "codegen", Reason: call.Name})

	if e.breaker != nil && !e.breaker.IsAvailable("codegen") {
		return fmt.Errorf("codegen provider circuit open")
	}

	req := codeGenRequestFromArgs(call.Args)
	artifacts, err := e.codegen.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("codegen delegate: %w", err)
	}

	for i := range artifacts {
		a := &artifacts[i]
		a.ID = uuid.NewString()
		a.OperationID = op.ID
		a.CreatedAt = time.Now()
		if a.Kind == "" {
			a.Kind = domain.ArtifactFile
		}
		if a.ContentHash == "" {
			a.ContentHash = domain.HashContent(a.Content)
		}
		if e.store != nil {
			if err := e.store.InsertArtifact(a); err != nil {
				logging.OperationWarn("failed to persist artifact %s: %v", a.ID, err)
			}
		}
		stream.addArtifact(*a)
		stream.Publish(Event{Type: EventArtifactCompleted, ArtifactID: a.ID, Path: a.Path, Artifact: a})
	}
	return nil
}

func codeGenRequestFromArgs(args map[string]interface{}) CodeGenRequest {
	req := CodeGenRequest{}
	if v, ok := args["path"].(string); ok {
		req.Path = v
	}
	if v, ok := args["description"].(string); ok {
		req.Description = v
	}
	if v, ok := args["language"].(string); ok {
		req.Language = v
	}
	if v, ok := args["framework"].(string); ok {
		req.Framework = v
	}
	if v, ok := args["style_guide"].(string); ok {
		req.StyleGuide = v
	}
	if v, ok := args["context"].(string); ok {
		req.Context = v
	}
	if deps, ok := args["dependencies"].([]string); ok {
		req.Dependencies = deps
	}
	return req
}

// transition moves op to newStatus, emitting StatusChanged and persisting
// the change.
func (e *Engine) transition(op *domain.Operation, stream *Stream, newStatus domain.OperationStatus) {
	old := op.Status
	op.Status = newStatus
	op.UpdatedAt = time.Now()
	stream.Publish(Event{Type: EventStatusChanged, OldStatus: string(old), NewStatus: string(newStatus)})
	if e.store != nil {
		if err := e.store.UpdateOperationStatus(op.ID, newStatus, op.EscalationReason); err != nil {
			logging.OperationWarn("failed to persist status transition for %s: %v", op.ID, err)
		}
	}
}

// complete resolves op to Completed.
func (e *Engine) complete(op *domain.Operation, stream *Stream) {
	now := time.Now()
	op.Status = domain.OperationCompleted
	op.CompletedAt = &now
	op.UpdatedAt = now
	if e.store != nil {
		if err := e.store.UpdateOperationStatus(op.ID, op.Status, domain.EscalationNone); err != nil {
			logging.OperationWarn("failed to persist completion for %s: %v", op.ID, err)
		}
	}
	stream.Publish(Event{Type: EventCompleted, Artifacts: stream.Artifacts()})
	logging.Operation("operation %s completed", op.ID)
}

// escalate resolves op to Escalating with reason, then to Failed: this
// engine has no stronger-model delegate wired, so escalation always bottoms
// out at Failed with the escalation reason preserved for the caller to act
// on (e.g. retry with a costlier model at a higher layer).
func (e *Engine) escalate(op *domain.Operation, stream *Stream, reason domain.EscalationReason, detail string) {
	op.EscalationReason = reason
	e.transition(op, stream, domain.OperationEscalating)

	now := time.Now()
	op.Status = domain.OperationFailed
	op.CompletedAt = &now
	op.UpdatedAt = now
	if e.store != nil {
		if err := e.store.UpdateOperationStatus(op.ID, op.Status, reason); err != nil {
			logging.OperationWarn("failed to persist failure for %s: %v", op.ID, err)
		}
	}
	stream.Publish(Event{Type: EventFailed, Reason: string(reason), Err: detail})
	logging.OperationWarn("operation %s escalated and failed: reason=%s detail=%s", op.ID, reason, detail)
}
