package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoreUnavailable marks failures to reach or use the graph store.
// It is distinct from "no data": queries for unknown projects return empty
// results and a nil error.
var ErrStoreUnavailable = errors.New("graph store unavailable")

// ErrInvalidProjectID rejects project ids that cannot key stored modules.
var ErrInvalidProjectID = errors.New("invalid project id")

// CheckProjectID reports whether id can be used as a project key. Module keys
// join the project id and node id with ':', so the project id must not carry one.
func CheckProjectID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: project id is required", ErrInvalidProjectID)
	case strings.Contains(id, ":"):
		return fmt.Errorf("%w: %q must not contain ':'", ErrInvalidProjectID, id)
	}
	return nil
}

// OpError records the store operation and project that failed.
type OpError struct {
	Op        string
	ProjectID string
	Err       error
}

func (e *OpError) Error() string {
	if e.ProjectID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s (project %s): %v", e.Op, e.ProjectID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is makes every OpError match ErrStoreUnavailable.
func (e *OpError) Is(target error) bool { return target == ErrStoreUnavailable }

func opErr(op, projectID string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, ProjectID: projectID, Err: err}
}
