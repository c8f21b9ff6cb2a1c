package sentinel

import "errors"

// Infrastructure facts returned by stores, optionally wrapped. Services translate
// them into domain errors; input problems go straight to pkg/domain-errors.
var (
	// ErrNotFound: no row or key for the requested id.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a write collided with existing state.
	ErrConflict = errors.New("conflict")
)
