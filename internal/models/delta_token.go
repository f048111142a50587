package models

import "time"

// DeltaToken is the persisted high-water mark for one pull scope.
// Value is the maximum updated_at (ms since epoch) applied so far and is
// monotonically non-decreasing; it only moves after a page has been durably
// written to the local store.
type DeltaToken struct {
	// ID is entityType, optionally suffixed with "|<queryId>" when several
	// named queries track the same type.
	ID         string    `gorm:"type:varchar(255);primaryKey" json:"id"`
	EntityType string    `gorm:"type:varchar(100);not null;index:idx_token_type" json:"entityType"`
	QueryID    string    `gorm:"type:varchar(100)" json:"queryId"`
	Value      int64     `gorm:"not null;default:0" json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (DeltaToken) TableName() string {
	return "sync_delta_tokens"
}
