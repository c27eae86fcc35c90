package dispatch

import (
	"fmt"
	"strings"
)

// Code is a JSON-RPC-2.0-shaped error code: the standard protocol codes
// are negative in the -32700..-32600 range; domain codes occupy the
// custom range starting at -32001, mirroring the framework's ErrorCode
// taxonomy but numeric instead of string-keyed, as the wire protocol
// requires.
type Code int

// Standard JSON-RPC protocol error codes.
const (
	CodeParseError     Code = -32700
	CodeInvalidRequest Code = -32600
	CodeMethodNotFound Code = -32601
	CodeInvalidParams  Code = -32602
	CodeInternalError  Code = -32603
)

// Domain error codes, custom range starting at -32001. InvalidGeometry
// intentionally reuses CodeInternalError per the external contract.
const (
	CodeEntityNotFound     Code = -32001
	CodeConstraintConflict Code = -32002
	CodeCircularDependency Code = -32003
	CodeInvalidConstraint  Code = -32004
	CodeOperationInvalid   Code = -32005
	CodeTopologyError      Code = -32006
	CodeWorkspaceConflict  Code = -32007
	CodeFileNotFound       Code = -32008
	CodeUnsupportedFormat  Code = -32009
	CodeImportFailed       Code = -32010
	CodeInsufficientMemory Code = -32011
	CodeTimeout            Code = -32012
	CodeInvalidGeometry         = CodeInternalError
	CodeRoleViolation      Code = -32013
)

// Error is a structured dispatcher error: a numeric wire code, a
// human-readable message, and optional structured detail fields,
// modeled on the framework's Error type but carrying a numeric Code as
// the JSON-RPC envelope requires.
type Error struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Value      any    `json:"value,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Retryable  bool   `json:"retryable"`
	Cause      error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// New builds a new domain Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithField attaches the offending field name.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithValue attaches the provided value that failed validation.
func (e *Error) WithValue(v any) *Error {
	e.Value = v
	return e
}

// WithSuggestion attaches a human-readable remediation hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(r bool) *Error {
	e.Retryable = r
	return e
}

// suggestionFor returns the canonical remediation hint for a code, per
// the error-handling design (EntityNotFound -> use entity.list, etc).
func suggestionFor(code Code) string {
	switch code {
	case CodeEntityNotFound:
		return "Use entity.list to see available entities"
	case CodeConstraintConflict:
		return "Remove conflicting constraint first"
	case CodeWorkspaceConflict:
		return "Resolve the reported conflicts with workspace.resolve_conflict"
	case CodeCircularDependency:
		return "Break the dependency cycle before resubmitting the task graph"
	default:
		return ""
	}
}

// NewWithSuggestion builds an Error and fills in the canonical
// suggestion for well-known codes.
func NewWithSuggestion(code Code, message string) *Error {
	return New(code, message).WithSuggestion(suggestionFor(code))
}

// classifyValueError maps a handler-raised value error message to one of
// InvalidParameter/InvalidGeometry/InvalidConstraint/ConstraintConflict/
// WorkspaceConflict/EntityNotFound, by keyword, in the priority order
// fixed by the dispatcher's error-mapping contract: conflict first
// ("workspace conflict" ahead of any other conflict), then not-found,
// then invalid-constraint-type, then geometry-validity keywords, then
// dimension, else a generic invalid parameter.
func classifyValueError(msg string) Code {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "workspace conflict"):
		return CodeWorkspaceConflict
	case strings.Contains(lower, "conflict"):
		return CodeConstraintConflict
	case strings.Contains(lower, "not found"):
		return CodeEntityNotFound
	case strings.Contains(lower, "invalid constraint type"):
		return CodeInvalidConstraint
	case strings.Contains(lower, "finite"), strings.Contains(lower, "bounds"), strings.Contains(lower, "degenerate"):
		return CodeInvalidGeometry
	case strings.Contains(lower, "dimension"):
		return CodeInvalidParams
	default:
		return CodeInvalidParams
	}
}
