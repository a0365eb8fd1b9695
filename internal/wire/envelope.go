// Package wire defines the JSON payload shapes the operation engine's event
// stream and artifact store are serialized into at the external boundary
// (spec'd in the WebSocket protocol this module does not itself transport).
// Field order and names here are contractual: a consumer on the other side
// of that boundary depends on them bit-for-bit.
package wire

import "memengine/internal/domain"

// ArtifactPayload is the wire shape of an Artifact inside artifact_completed
// and completed.artifacts[]. Path is nil (the key serializes as null) for
// artifacts with no on-disk location, matching "path (string or null)".
type ArtifactPayload struct {
	ID       string              `json:"id"`
	Path     *string             `json:"path"`
	Content  string              `json:"content"`
	Language string              `json:"language"`
	Kind     domain.ArtifactKind `json:"kind"`
}

// NewArtifactPayload projects a domain.Artifact onto its wire shape.
func NewArtifactPayload(a domain.Artifact) ArtifactPayload {
	p := ArtifactPayload{
		ID:       a.ID,
		Content:  a.Content,
		Language: a.Language,
		Kind:     a.Kind,
	}
	if a.Path != "" {
		path := a.Path
		p.Path = &path
	}
	return p
}

// Envelope is the common shape every operation event maps to: a discriminated
// union keyed on Type, with every event-specific field optional and omitted
// when unset. OperationID and Timestamp are always present.
type Envelope struct {
	Type        string            `json:"type"`
	OperationID string            `json:"operation_id"`
	Timestamp   int64             `json:"timestamp"`
	Sequence    int64             `json:"sequence,omitempty"`

	Content       string            `json:"content,omitempty"`
	Preview       string            `json:"preview,omitempty"`
	DelegatedTo   string            `json:"delegated_to,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Artifact      *ArtifactPayload  `json:"artifact,omitempty"`
	Artifacts     []ArtifactPayload `json:"artifacts,omitempty"`
	TaskID        string            `json:"task_id,omitempty"`
	OldStatus     string            `json:"old_status,omitempty"`
	NewStatus     string            `json:"new_status,omitempty"`
	ToolName      string            `json:"tool_name,omitempty"`
	ToolSuccess   bool              `json:"tool_success,omitempty"`
	ToolDetails   string            `json:"tool_details,omitempty"`
	SudoRequestID string            `json:"sudo_request_id,omitempty"`
	SudoCommand   string            `json:"sudo_command,omitempty"`
	Error         string            `json:"error,omitempty"`
}
