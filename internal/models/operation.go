package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OperationKind identifies the local mutation an operation carries.
type OperationKind string

const (
	OperationAdd     OperationKind = "add"
	OperationReplace OperationKind = "replace"
	OperationDelete  OperationKind = "delete"
)

// OperationState tracks the synchronization state of a queued operation.
// Completed operations are deleted from the table, never retained.
type OperationState string

const (
	OperationPending OperationState = "pending"
	OperationFailed  OperationState = "failed"
)

// Operation is a durable record of one pending local mutation awaiting push.
// At most one pending or failed operation exists per (entity_type, entity_id);
// the operation log's coalescing rules enforce this, not a DB constraint.
type Operation struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	OperationID string        `gorm:"type:varchar(36);not null;uniqueIndex:idx_operation_uid" json:"operationId"`
	EntityType  string        `gorm:"type:varchar(100);not null;index:idx_operation_entity" json:"entityType"`
	EntityID    string        `gorm:"type:varchar(255);not null;index:idx_operation_entity" json:"entityId"`
	Kind        OperationKind `gorm:"type:varchar(20);not null" json:"kind"`
	State       OperationState `gorm:"type:varchar(20);not null;default:'pending';index:idx_operation_state" json:"state"`

	// Item is the opaque JSON snapshot of the entity at queue time.
	// Empty for delete operations.
	Item datatypes.JSON `gorm:"type:jsonb" json:"item,omitempty"`

	// EntityVersion is the last-known server version, sent as the
	// If-Match precondition on push.
	EntityVersion string `gorm:"type:varchar(255)" json:"entityVersion"`

	// Sequence preserves FIFO order across the whole queue. Assigned once
	// at first enqueue and never changed by coalescing.
	Sequence int64 `gorm:"not null;index:idx_operation_seq" json:"sequence"`

	// Version counts coalescing revisions of this queue entry.
	Version int `gorm:"not null;default:1" json:"version"`

	// Failure diagnostics, set when a push attempt fails.
	HTTPStatusCode *int       `json:"httpStatusCode,omitempty"`
	LastAttempt    *time.Time `json:"lastAttempt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (Operation) TableName() string {
	return "sync_operations"
}

// BeforeCreate hook
func (op *Operation) BeforeCreate(tx *gorm.DB) error {
	if op.OperationID == "" {
		op.OperationID = uuid.NewString()
	}
	if op.State == "" {
		op.State = OperationPending
	}
	return nil
}
