// Package errkind defines the typed error surface of the orchestrator core.
// Every fatal condition the core can raise carries one of these Kinds, so
// callers can branch with errors.As instead of string-matching messages.
package errkind

import "github.com/pkg/errors"

// Kind identifies the category of a core error.
type Kind string

const (
	// SpecInvalid marks a schema or shape violation in the input specification.
	SpecInvalid Kind = "SpecInvalid"
	// VarsMalformed marks a --vars override that failed the KEY=VALUE contract
	// or touched a reserved key.
	VarsMalformed Kind = "VarsMalformed"
	// GraphCycle marks a would-be edge that introduces a cycle.
	GraphCycle Kind = "GraphCycle"
	// MissingNode marks an edge endpoint that is not in the DAG.
	MissingNode Kind = "MissingNode"
	// InvalidEdge marks a self-edge or other structurally invalid edge.
	InvalidEdge Kind = "InvalidEdge"
	// DanglingWorkspaceRef marks a $(x.workspace) token referencing a step
	// that is not an ancestor of the referencing step.
	DanglingWorkspaceRef Kind = "DanglingWorkspaceRef"
	// ShapeMismatch marks global-parameter value-lists of unequal length.
	ShapeMismatch Kind = "ShapeMismatch"
	// SubmissionFailed marks an adapter that returned ERROR.
	SubmissionFailed Kind = "SubmissionFailed"
	// RestartExhausted marks a step that timed out with its restart budget spent.
	RestartExhausted Kind = "RestartExhausted"
	// DryOK is not a failure: it classifies a step.Record that finished a
	// --dry run successfully. It exists in this vocabulary so callers that
	// switch on Kind (e.g. exit-code selection) have one name for every
	// terminal outcome, including the non-submitting one.
	DryOK Kind = "DryOK"
)

// Error is a typed, wrapped error carrying a Kind plus any extra context
// fields a caller attached (retcode, stderr, and similar).
type Error struct {
	Kind    Kind
	Message string
	cause   error
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a typed error of the given kind with a formatted message.
func New(kind Kind, message string) error {
	return errors.WithStack(&Error{Kind: kind, Message: message})
}

// Wrap attaches a Kind to an existing error, preserving its chain.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Message: message, cause: cause})
}

// WithField returns a copy of err (if it is, or wraps, an *Error) with an
// extra context field attached. Non-Error causes are returned unchanged.
func WithField(err error, key string, value interface{}) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Fields = make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return errors.WithStack(&cp)
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
