package domain

import "time"

// MemoryEntry is a single durable unit of conversational or observational
// memory, optionally embedded into one or more vector heads.
type MemoryEntry struct {
	ID          int64             `json:"id"`
	AttachmentID int64            `json:"attachment_id"`
	SessionID   string            `json:"session_id"`
	Role        string            `json:"role"` // user, assistant, system, tool
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"` // message, summary, fact, correction, ...
	Salience    float64           `json:"salience"`
	Embedded    bool              `json:"embedded"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Attachment is a workspace/repository bound to a session: the unit the
// code index watches and syncs.
type Attachment struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	RootPath   string    `json:"root_path"`
	Label      string    `json:"label"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// RepositoryFile is one file tracked under an Attachment, content-addressed
// by its SHA-256 hash to make re-sync idempotent.
type RepositoryFile struct {
	ID           int64     `json:"id"`
	AttachmentID int64     `json:"attachment_id"`
	Path         string    `json:"path"` // relative to Attachment.RootPath
	Language     string    `json:"language"`
	ContentHash  string    `json:"content_hash"`
	SizeBytes    int64     `json:"size_bytes"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ElementVisibility is the closed set of access levels a parsed symbol can
// carry, independent of the source language's own keyword for it.
type ElementVisibility string

const (
	VisibilityPublic  ElementVisibility = "public"
	VisibilityPrivate ElementVisibility = "private"
)

// CodeElement is one parsed symbol (function, type, method, ...) belonging
// to a RepositoryFile, produced by the tree-sitter parsers.
type CodeElement struct {
	ID              int64             `json:"id"`
	FileID          int64             `json:"file_id"`
	Kind            string            `json:"kind"` // function, method, type, const, import, ...
	Name            string            `json:"name"`
	QualifiedName   string            `json:"qualified_name,omitempty"`
	Visibility      ElementVisibility `json:"visibility,omitempty"`
	Signature       string            `json:"signature,omitempty"`
	StartLine       int               `json:"start_line"`
	EndLine         int               `json:"end_line"`
	ComplexityScore int               `json:"complexity_score"`
	Docstring       string            `json:"docstring,omitempty"`
	Embedded        bool              `json:"embedded"`
}

// Import is one import/use/require statement found in a RepositoryFile,
// classified as external (a third-party or standard-library dependency) or
// internal (same-repository reference) on a per-language heuristic.
type Import struct {
	ID         int64  `json:"id"`
	FileID     int64  `json:"file_id"`
	Path       string `json:"path"`
	IsExternal bool   `json:"is_external"`
}

// CodeQualityIssue is one finding the code index's analysis attaches to a
// specific CodeElement (an overlong function, excessive branching, ...).
type CodeQualityIssue struct {
	ID        int64  `json:"id"`
	ElementID int64  `json:"element_id"`
	Severity  string `json:"severity"` // info, warning, critical
	Kind      string `json:"kind"`     // complexity, length, ...
	Details   string `json:"details"`
}

// CallEdge is one observed call from a caller symbol to a callee symbol,
// resolved by name rather than by id since the callee may live in a file
// that hasn't been parsed yet or in a dependency outside the attachment.
type CallEdge struct {
	ID           int64  `json:"id"`
	AttachmentID int64  `json:"attachment_id"`
	FileID       int64  `json:"file_id"`
	CallerName   string `json:"caller_name"`
	CalleeName   string `json:"callee_name"`
}

// OperationStatus is the closed set of states the Operation Engine's state
// machine can be in.
type OperationStatus string

const (
	OperationIdle            OperationStatus = "idle"
	OperationUnderstanding   OperationStatus = "understanding"
	OperationPlanning        OperationStatus = "planning"
	OperationExecuting       OperationStatus = "executing"
	OperationWaitingForTools OperationStatus = "waiting_for_tools"
	OperationVerifying       OperationStatus = "verifying"
	OperationCompleted       OperationStatus = "completed"
	OperationFailed          OperationStatus = "failed"
	OperationEscalating      OperationStatus = "escalating"
)

// IsActive reports whether s is one of the non-terminal, non-idle states
// a running Operation occupies while work is in flight.
func (s OperationStatus) IsActive() bool {
	switch s {
	case OperationUnderstanding, OperationPlanning, OperationExecuting, OperationWaitingForTools, OperationVerifying:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s accepts no further transitions.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationCompleted || s == OperationFailed
}

// AcceptsNewWork reports whether an Operation in state s may begin a new
// task (Idle and the two terminal states do).
func (s OperationStatus) AcceptsNewWork() bool {
	return s == OperationIdle || s.IsTerminal()
}

// EscalationReason is the closed set of reasons an Operation surfaces to a
// human or a more capable delegate instead of completing on its own.
type EscalationReason string

const (
	EscalationNone                 EscalationReason = ""
	EscalationPlanningFailed       EscalationReason = "planning_failed"
	EscalationToolCallsFailed      EscalationReason = "tool_calls_failed"
	EscalationContextBudgetExceeded EscalationReason = "context_budget_exceeded"
	EscalationVerificationFailed   EscalationReason = "verification_failed"
	EscalationHardTimeout          EscalationReason = "hard_timeout"
	EscalationCircuitOpen          EscalationReason = "circuit_open"
	EscalationUserRequested        EscalationReason = "user_requested"
	EscalationTaskTooComplex       EscalationReason = "task_too_complex"
)

// Operation is one unit of agentic work tracked end to end: understanding,
// plan, execution steps, and terminal outcome.
type Operation struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"session_id"`
	Status           OperationStatus  `json:"status"`
	Goal             string           `json:"goal"`
	EscalationReason EscalationReason `json:"escalation_reason,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// ArtifactKind is the closed set of shapes an Artifact can take.
type ArtifactKind string

const (
	ArtifactFile    ArtifactKind = "file"
	ArtifactSnippet ArtifactKind = "snippet"
	ArtifactDiff    ArtifactKind = "diff"
	ArtifactTest    ArtifactKind = "test"
)

// Artifact is a content-addressed output of an Operation (a patch, a
// generated file, a plan document). PreviousArtifactID chains revisions of
// the same logical artifact into a DAG; a cycle is invalid.
type Artifact struct {
	ID                 string       `json:"id"`
	OperationID        string       `json:"operation_id"`
	Kind               ArtifactKind `json:"kind"`
	Path               string       `json:"path,omitempty"`
	Content            string       `json:"content"`
	Language           string       `json:"language,omitempty"`
	ContentHash        string       `json:"content_hash"`
	PreviousArtifactID string       `json:"previous_artifact_id,omitempty"`
	Diff               string       `json:"diff,omitempty"`
	IsNewFile          bool         `json:"is_new_file"`
	AppliedAt          *time.Time   `json:"applied_at,omitempty"`
	GenerationMeta      map[string]string `json:"generation_metadata,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Correction records a user-supplied fix to something the engine produced,
// used to bias future recall away from the rejected approach.
type Correction struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	OriginalText string   `json:"original_text"`
	CorrectedText string  `json:"corrected_text"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RejectedApproach records an approach the user explicitly vetoed, so that
// recall can suppress it rather than resurface it.
type RejectedApproach struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CochangePattern records that two files tend to change together, derived
// from repeated sync observations rather than a single commit.
type CochangePattern struct {
	ID           int64     `json:"id"`
	AttachmentID int64     `json:"attachment_id"`
	PathA        string    `json:"path_a"`
	PathB        string    `json:"path_b"`
	Occurrences  int       `json:"occurrences"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// ErrorFix records a (error signature -> fix) pair observed during an
// operation, used to short-circuit recall for recurring failures.
type ErrorFix struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	ErrorSignature string   `json:"error_signature"`
	FixDescription string   `json:"fix_description"`
	CreatedAt     time.Time `json:"created_at"`
}
