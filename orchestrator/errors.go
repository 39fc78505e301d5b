package orchestrator

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/overseer/assign"
	"github.com/GoCodeAlone/overseer/deps"
	"github.com/GoCodeAlone/overseer/store"
)

// Kind classifies an orchestration failure so transports can map it to
// an appropriate status without inspecting error strings.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation"
	KindConflict         Kind = "conflict"
	KindCycle            Kind = "cycle_detected"
	KindApprovalRequired Kind = "approval_required"
	KindForbidden        Kind = "forbidden"
	KindNoEligibleAgent  Kind = "no_eligible_agent"
	KindPersistence      Kind = "persistence"
	KindInternal         Kind = "internal"
)

// Error is an orchestration failure with a classification. Msg is safe
// to return to API callers; Err carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// errf builds a classified error from a format string.
func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the classification of err, translating the sentinel
// errors of the collaborating packages. Unrecognized errors are
// KindInternal.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, deps.ErrSelfDependency):
		return KindValidation
	case errors.Is(err, deps.ErrDuplicateEdge):
		return KindConflict
	case errors.Is(err, deps.ErrCycleDetected):
		return KindCycle
	case errors.Is(err, assign.ErrNoEligibleAgent):
		return KindNoEligibleAgent
	}
	return KindInternal
}
