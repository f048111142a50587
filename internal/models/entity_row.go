package models

import (
	"time"

	"gorm.io/datatypes"
)

// EntityRow is one cached entity in the local store. The engine treats the
// payload as opaque JSON; id, version and updated_at are lifted into columns
// so push and pull can stamp server-authoritative values without decoding.
type EntityRow struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	EntityType string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_row_entity" json:"entityType"`
	EntityID   string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_row_entity" json:"entityId"`
	Version    string         `gorm:"type:varchar(255)" json:"version"`
	RowUpdated time.Time      `gorm:"column:row_updated_at;index:idx_row_updated" json:"rowUpdatedAt"`
	Item       datatypes.JSON `gorm:"type:jsonb" json:"item"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (EntityRow) TableName() string {
	return "sync_entity_rows"
}
