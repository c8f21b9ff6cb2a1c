// Package store persists verification records.
//
// Execute is the only way to change a stored record: it serialises writers per
// record (mutex in memory, SELECT ... FOR UPDATE in Postgres), runs validate
// against the current state and then mutate on a private copy. If either callback
// fails nothing is written.
package store

import (
	"context"

	"identrisk/internal/verification/models"
)

// ValidateFunc checks the current record before any change.
type ValidateFunc = func(v *models.Verification) error

// MutateFunc changes the record. ctx carries the unit of work, so an outbox
// publish made with it commits or rolls back with the record.
type MutateFunc = func(ctx context.Context, v *models.Verification) error
