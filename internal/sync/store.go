package sync

import (
	"context"
	"encoding/json"

	"github.com/offsync/offsync/internal/models"
)

// OperationStore is the durable backing of the operation log.
type OperationStore interface {
	// FindActive returns the single pending or failed operation for the
	// entity, or nil when none is queued.
	FindActive(ctx context.Context, entityType, entityID string) (*models.Operation, error)

	// ListActive returns all pending and failed operations for the given
	// entity types (all types when the slice is empty), ordered by sequence.
	ListActive(ctx context.Context, entityTypes []string) ([]models.Operation, error)

	// NextSequence hands out the next global sequence number.
	NextSequence(ctx context.Context) (int64, error)

	Insert(ctx context.Context, op *models.Operation) error
	Update(ctx context.Context, op *models.Operation) error
	Delete(ctx context.Context, op *models.Operation) error
}

// TokenStore persists delta tokens per pull scope.
type TokenStore interface {
	// Get returns the stored watermark, or 0 when the scope has never been
	// pulled.
	Get(ctx context.Context, id string) (int64, error)

	// Advance moves the watermark forward. Values at or below the stored
	// one are ignored so the token never regresses.
	Advance(ctx context.Context, scope Scope, value int64) error

	// Reset removes the token, forcing the next pull of the scope to start
	// from epoch. Used only for explicit resynchronization.
	Reset(ctx context.Context, id string) error
}

// Store is the engine's view of the local entity store: durable CRUD keyed
// by (entityType, entityID) over opaque JSON payloads.
type Store interface {
	Upsert(ctx context.Context, entityType, entityID string, item json.RawMessage, meta EntityMetadata) error

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, entityType, entityID string) error

	Get(ctx context.Context, entityType, entityID string) (json.RawMessage, bool, error)
}

// ChangeDetector enumerates local mutations observed since the last flush.
// Any component that can report added/modified/removed entities satisfies
// the operation log's input contract.
type ChangeDetector interface {
	DetectChanges(ctx context.Context) ([]DetectedChange, error)
}
