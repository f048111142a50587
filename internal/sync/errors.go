package sync

import (
	"errors"
	"fmt"

	"github.com/offsync/offsync/internal/models"
)

// ErrInvalidEntity rejects a mutation that lacks a usable identifier.
// Local-only, raised before anything is queued.
var ErrInvalidEntity = errors.New("entity has no usable identifier")

// ErrStateCorruption marks an internal invariant violation while applying
// the result of one operation. Fatal for that operation only.
var ErrStateCorruption = errors.New("local state corruption")

// ConflictError reports a coalescing rule that forbids combining a new
// mutation with the operation already queued for the same entity. The log
// is left unchanged; both sides are attached so the caller can decide.
type ConflictError struct {
	Queued   models.Operation
	Rejected models.OperationKind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate operation: %s already queued for %s/%s, cannot queue %s",
		e.Queued.Kind, e.Queued.EntityType, e.Queued.EntityID, e.Rejected)
}

// RemoteConflictError reports an HTTP 409/412 that no resolver settled.
type RemoteConflictError struct {
	StatusCode   int
	ServerEntity []byte
}

func (e *RemoteConflictError) Error() string {
	return fmt.Sprintf("remote conflict: server returned %d", e.StatusCode)
}

// TransportError reports any other non-2xx response or network failure.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure: %v", e.Err)
	}
	return fmt.Sprintf("transport failure: server returned %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }
