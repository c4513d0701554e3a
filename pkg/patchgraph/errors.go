package patchgraph

import "errors"

// Code is the small signed exit code returned by construction and lifecycle
// operations: zero for success, negative for the error classes below.
type Code int

// Exit codes, matching spec.md §6/§7.
const (
	CodeOK      Code = 0
	CodeNoMem   Code = -1
	CodeInvalid Code = -2
	CodeBusy    Code = -3
)

// Sentinel errors, classified by errors.Is. These are the three error kinds
// from spec.md §7 (resource exhaustion, contract violation, overlap with a
// rolled-back patch); internal invariant failures panic instead, see
// graph.go's pushFrame.
var (
	// ErrNoMem reports that patch, edge, or rollback-buffer allocation failed.
	ErrNoMem = errors.New("patchgraph: resource exhaustion")

	// ErrInvalid reports a contract violation: an invalid byte range, a
	// dependency requested on an in-flight patch, writing past a block
	// boundary, or similar caller error. State is left unchanged.
	ErrInvalid = errors.New("patchgraph: invalid argument")

	// ErrBusy reports that an overlap target is currently rolled back and
	// cannot be merged into or overlapped right now; the caller may retry.
	ErrBusy = errors.New("patchgraph: overlap target rolled back")

	// ErrInFlight reports an attempt to add a before to an in-flight after.
	ErrInFlight = errors.New("patchgraph: after patch is in-flight")

	// ErrWritten reports an attempt to mutate a written patch in a way that
	// isn't a harmless no-op.
	ErrWritten = errors.New("patchgraph: after patch is already written")
)

// CodeFor classifies err into one of the Code constants. A nil err maps to
// CodeOK; unrecognized errors map to CodeInvalid, matching the original
// engine's practice of treating unexpected conditions as EINVAL rather than
// silently succeeding.
func CodeFor(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNoMem):
		return CodeNoMem
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrInFlight), errors.Is(err, ErrWritten):
		return CodeInvalid
	default:
		return CodeInvalid
	}
}
