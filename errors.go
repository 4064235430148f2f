package blocktree

import (
	"errors"
	"fmt"
)

// NotFoundError reports an operation that referenced a nonexistent (or
// deleted) block. Mutations targeting the synthetic root also fail with
// NotFoundError: the root is not an addressable, mutable block.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("block %q not found", e.ID)
}

// InvalidParentError reports a create whose parent does not resolve to
// an existing block.
type InvalidParentError struct {
	ParentID string
}

func (e *InvalidParentError) Error() string {
	return fmt.Sprintf("parent block %q does not exist", e.ParentID)
}

// CycleError reports a move that would make a block its own ancestor.
type CycleError struct {
	ID          string
	NewParentID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("moving block %q under %q would create a cycle", e.ID, e.NewParentID)
}

// BackendError wraps an opaque storage or codec failure from the
// underlying engine. The core never retries; callers decide.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidParent reports whether err is an InvalidParentError.
func IsInvalidParent(err error) bool {
	var e *InvalidParentError
	return errors.As(err, &e)
}

// IsCycle reports whether err is a CycleError.
func IsCycle(err error) bool {
	var e *CycleError
	return errors.As(err, &e)
}

// IsBackend reports whether err is a BackendError.
func IsBackend(err error) bool {
	var e *BackendError
	return errors.As(err, &e)
}
