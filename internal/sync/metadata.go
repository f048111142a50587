package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Syncable is the capability every synchronized entity type must expose.
// The engine reads the identity triplet through this interface instead of
// reflecting over fields on every call.
type Syncable interface {
	SyncID() string
	SyncUpdatedAt() time.Time
	SyncVersion() string
}

// EntityMetadata is the ephemeral identity triplet of one entity instance,
// derived either from a live value or from a wire snapshot.
type EntityMetadata struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   string    `json:"version"`
	Deleted   bool      `json:"deleted"`
}

// Registry validates entity types once at registration time and resolves
// metadata from live instances afterwards.
type Registry struct {
	types map[string]struct{}
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]struct{})}
}

// Register validates that the prototype value satisfies Syncable and records
// the entity type. Registration is the single validation pass; Resolve does
// no reflection.
func (r *Registry) Register(entityType string, prototype any) error {
	if entityType == "" {
		return fmt.Errorf("entity type name must not be empty")
	}
	if _, ok := prototype.(Syncable); !ok {
		return fmt.Errorf("type registered for %q does not implement Syncable", entityType)
	}
	r.types[entityType] = struct{}{}
	return nil
}

// Registered reports whether an entity type was registered.
func (r *Registry) Registered(entityType string) bool {
	_, ok := r.types[entityType]
	return ok
}

// Resolve extracts the metadata triplet from a live entity instance.
func (r *Registry) Resolve(entityType string, entity any) (EntityMetadata, error) {
	if !r.Registered(entityType) {
		return EntityMetadata{}, fmt.Errorf("entity type %q is not registered", entityType)
	}
	s, ok := entity.(Syncable)
	if !ok {
		return EntityMetadata{}, fmt.Errorf("value for %q does not implement Syncable", entityType)
	}
	meta := EntityMetadata{
		ID:        s.SyncID(),
		UpdatedAt: s.SyncUpdatedAt(),
		Version:   s.SyncVersion(),
	}
	if meta.ID == "" {
		return EntityMetadata{}, ErrInvalidEntity
	}
	return meta, nil
}

// wireEnvelope mirrors the system properties every wire snapshot carries.
type wireEnvelope struct {
	ID        string `json:"id"`
	UpdatedAt any    `json:"updatedAt"`
	Version   string `json:"version"`
	Deleted   bool   `json:"deleted"`
}

// MetadataFromSnapshot extracts the metadata triplet from an opaque JSON
// entity snapshot. updatedAt is accepted either as RFC 3339 or as
// milliseconds since epoch.
func MetadataFromSnapshot(snapshot []byte) (EntityMetadata, error) {
	var env wireEnvelope
	if err := json.Unmarshal(snapshot, &env); err != nil {
		return EntityMetadata{}, fmt.Errorf("failed to decode entity snapshot: %w", err)
	}
	meta := EntityMetadata{
		ID:      env.ID,
		Version: env.Version,
		Deleted: env.Deleted,
	}
	switch v := env.UpdatedAt.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return EntityMetadata{}, fmt.Errorf("failed to parse updatedAt %q: %w", v, err)
		}
		meta.UpdatedAt = ts.UTC()
	case float64:
		meta.UpdatedAt = time.UnixMilli(int64(v)).UTC()
	case nil:
		// Leave zero; callers treat a missing timestamp as epoch.
	default:
		return EntityMetadata{}, fmt.Errorf("unsupported updatedAt type %T", env.UpdatedAt)
	}
	return meta, nil
}
