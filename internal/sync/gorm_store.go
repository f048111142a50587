package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/offsync/offsync/internal/database"
	"github.com/offsync/offsync/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormOperationStore persists the operation queue through GORM.
type GormOperationStore struct {
	db    *database.DB
	seqMu sync.Mutex
}

// NewGormOperationStore creates a DB-backed operation store.
func NewGormOperationStore(db *database.DB) *GormOperationStore {
	return &GormOperationStore{db: db}
}

func (s *GormOperationStore) FindActive(ctx context.Context, entityType, entityID string) (*models.Operation, error) {
	var op models.Operation
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Where("state IN ?", []models.OperationState{models.OperationPending, models.OperationFailed}).
		First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up queued operation: %w", err)
	}
	return &op, nil
}

func (s *GormOperationStore) ListActive(ctx context.Context, entityTypes []string) ([]models.Operation, error) {
	var ops []models.Operation
	q := s.db.WithContext(ctx).
		Where("state IN ?", []models.OperationState{models.OperationPending, models.OperationFailed}).
		Order("sequence ASC")
	if len(entityTypes) > 0 {
		q = q.Where("entity_type IN ?", entityTypes)
	}
	if err := q.Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list queued operations: %w", err)
	}
	return ops, nil
}

func (s *GormOperationStore) NextSequence(ctx context.Context) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	var max int64
	err := s.db.WithContext(ctx).Model(&models.Operation{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence counter: %w", err)
	}
	return max + 1, nil
}

func (s *GormOperationStore) Insert(ctx context.Context, op *models.Operation) error {
	if err := s.db.WithContext(ctx).Create(op).Error; err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

func (s *GormOperationStore) Update(ctx context.Context, op *models.Operation) error {
	if err := s.db.WithContext(ctx).Save(op).Error; err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	return nil
}

func (s *GormOperationStore) Delete(ctx context.Context, op *models.Operation) error {
	if err := s.db.WithContext(ctx).Delete(&models.Operation{}, op.ID).Error; err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

// GormTokenStore persists delta tokens through GORM.
type GormTokenStore struct {
	db *database.DB
}

// NewGormTokenStore creates a DB-backed token store.
func NewGormTokenStore(db *database.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

func (s *GormTokenStore) Get(ctx context.Context, id string) (int64, error) {
	var token models.DeltaToken
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read delta token %s: %w", id, err)
	}
	return token.Value, nil
}

func (s *GormTokenStore) Advance(ctx context.Context, scope Scope, value int64) error {
	token := models.DeltaToken{
		ID:         scope.TokenID(),
		EntityType: scope.EntityType,
		QueryID:    scope.QueryID,
		Value:      value,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DeltaToken
		err := tx.Where("id = ?", token.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&token).Error
		}
		if err != nil {
			return err
		}
		if value <= existing.Value {
			return nil // never regress
		}
		return tx.Model(&existing).Update("value", value).Error
	})
	if err != nil {
		return fmt.Errorf("failed to advance delta token %s: %w", token.ID, err)
	}
	return nil
}

func (s *GormTokenStore) Reset(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DeltaToken{}).Error
	if err != nil {
		return fmt.Errorf("failed to reset delta token %s: %w", id, err)
	}
	return nil
}

// GormStore keeps local entity rows in the sync_entity_rows table.
type GormStore struct {
	db *database.DB
}

// NewGormStore creates a DB-backed entity store.
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Upsert(ctx context.Context, entityType, entityID string, item json.RawMessage, meta EntityMetadata) error {
	row := models.EntityRow{
		EntityType: entityType,
		EntityID:   entityID,
		Version:    meta.Version,
		RowUpdated: meta.UpdatedAt,
		Item:       datatypes.JSON(item),
	}
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Assign(map[string]any{
			"version":        row.Version,
			"row_updated_at": row.RowUpdated,
			"item":           row.Item,
		}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, entityType, entityID string) error {
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&models.EntityRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", entityType, entityID, err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, entityType, entityID string) (json.RawMessage, bool, error) {
	var row models.EntityRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", entityType, entityID, err)
	}
	return json.RawMessage(row.Item), true, nil
}
