package operation

import (
	"sync"
	"sync/atomic"
	"time"

	"memengine/internal/domain"
	"memengine/internal/wire"
)

// EventType is the closed set of event kinds the engine emits, named to
// match the external dotted-name wire form (operation.<name>).
type EventType string

const (
	EventStarted               EventType = "operation.started"
	EventStreaming             EventType = "operation.streaming"
	EventPlanGenerated         EventType = "operation.plan_generated"
	EventDelegated             EventType = "operation.delegated"
	EventArtifactPreview       EventType = "operation.artifact_preview"
	EventArtifactCompleted     EventType = "operation.artifact_completed"
	EventTaskCreated           EventType = "operation.task_created"
	EventTaskStarted           EventType = "operation.task_started"
	EventTaskCompleted         EventType = "operation.task_completed"
	EventTaskFailed            EventType = "operation.task_failed"
	EventStatusChanged         EventType = "operation.status_changed"
	EventToolExecuted          EventType = "operation.tool_executed"
	EventSudoApprovalRequired  EventType = "operation.sudo_approval_required"
	EventSudoApproved          EventType = "operation.sudo_approved"
	EventSudoDenied            EventType = "operation.sudo_denied"
	EventCompleted             EventType = "operation.completed"
	EventFailed                EventType = "operation.failed"
)

// Event is one entry in an operation's append-only event stream. Fields
// beyond Type/OperationID/Sequence/Timestamp are populated per event type;
// callers switch on Type to know which are meaningful.
type Event struct {
	Type        EventType
	OperationID string
	Sequence    int64
	Timestamp   int64 // unix seconds

	Content        string
	Plan           *Plan
	DelegatedTo    string
	Reason         string
	ArtifactID     string
	Path           string
	Preview        string
	TaskID         string
	OldStatus      string
	NewStatus      string
	ToolName       string
	ToolSuccess    bool
	ToolDetails    string
	SudoRequestID  string
	SudoCommand    string
	Artifact       *domain.Artifact
	Artifacts      []domain.Artifact
	Err            string
}

// Envelope converts the event into its external wire shape: the
// discriminated `{"type", "operation_id", "timestamp", ...}` object every
// consumer of the event stream sees, with artifacts projected through
// wire.NewArtifactPayload.
func (e Event) Envelope() wire.Envelope {
	env := wire.Envelope{
		Type:          string(e.Type),
		OperationID:   e.OperationID,
		Timestamp:     e.Timestamp,
		Sequence:      e.Sequence,
		Content:       e.Content,
		Preview:       e.Preview,
		DelegatedTo:   e.DelegatedTo,
		Reason:        e.Reason,
		TaskID:        e.TaskID,
		OldStatus:     e.OldStatus,
		NewStatus:     e.NewStatus,
		ToolName:      e.ToolName,
		ToolSuccess:   e.ToolSuccess,
		ToolDetails:   e.ToolDetails,
		SudoRequestID: e.SudoRequestID,
		SudoCommand:   e.SudoCommand,
		Error:         e.Err,
	}
	if e.Artifact != nil {
		p := wire.NewArtifactPayload(*e.Artifact)
		env.Artifact = &p
	}
	if len(e.Artifacts) > 0 {
		env.Artifacts = make([]wire.ArtifactPayload, len(e.Artifacts))
		for i, a := range e.Artifacts {
			env.Artifacts[i] = wire.NewArtifactPayload(a)
		}
	}
	return env
}

// Stream is one operation's bounded, ordered event channel. Sequence
// numbers are assigned before send so consumers observe a strictly
// increasing per-operation order regardless of delivery timing.
type Stream struct {
	operationID string
	ch          chan Event
	seq         int64

	mu        sync.RWMutex
	closed    bool
	artifacts []domain.Artifact
}

// NewStream constructs a Stream with the given buffer size. A full buffer
// makes Publish block (the engine's own back-pressure policy), matching the
// bounded-channel-with-blocking-sender model.
func NewStream(operationID string, bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Stream{operationID: operationID, ch: make(chan Event, bufferSize)}
}

// Publish assigns the next sequence number and timestamp, then sends the
// event. It blocks if the buffer is full; it is a no-op once the stream is
// closed.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	evt.OperationID = s.operationID
	evt.Sequence = atomic.AddInt64(&s.seq, 1)
	evt.Timestamp = time.Now().Unix()
	s.ch <- evt
}

// addArtifact records an artifact produced during this operation so it can
// be attached to the terminal operation.completed event's artifacts[].
func (s *Stream) addArtifact(a domain.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
}

// Artifacts returns every artifact recorded via addArtifact so far.
func (s *Stream) Artifacts() []domain.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// Events returns the receive-only channel consumers range over.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close closes the stream. Safe to call once per stream; subsequent
// Publish calls are silently dropped.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
