package sync

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/offsync/offsync/internal/models"
)

// MemoryOperationStore keeps the operation queue in memory. Suitable for
// tests and for callers that accept losing the queue on restart.
type MemoryOperationStore struct {
	mu  sync.Mutex
	ops map[string]*models.Operation // key: entityType + "/" + entityID
	seq int64
}

// NewMemoryOperationStore creates an empty in-memory operation store.
func NewMemoryOperationStore() *MemoryOperationStore {
	return &MemoryOperationStore{ops: make(map[string]*models.Operation)}
}

func opKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

func (s *MemoryOperationStore) FindActive(ctx context.Context, entityType, entityID string) (*models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[opKey(entityType, entityID)]
	if !ok {
		return nil, nil
	}
	cp := *op
	return &cp, nil
}

func (s *MemoryOperationStore) ListActive(ctx context.Context, entityTypes []string) ([]models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(entityTypes))
	for _, t := range entityTypes {
		wanted[t] = struct{}{}
	}

	out := make([]models.Operation, 0, len(s.ops))
	for _, op := range s.ops {
		if len(wanted) > 0 {
			if _, ok := wanted[op.EntityType]; !ok {
				continue
			}
		}
		out = append(out, *op)
	}
	sortOperations(out)
	return out, nil
}

func (s *MemoryOperationStore) NextSequence(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

func (s *MemoryOperationStore) Insert(ctx context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.OperationID == "" {
		op.OperationID = uuid.NewString()
	}
	cp := *op
	s.ops[opKey(op.EntityType, op.EntityID)] = &cp
	return nil
}

func (s *MemoryOperationStore) Update(ctx context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *op
	s.ops[opKey(op.EntityType, op.EntityID)] = &cp
	return nil
}

func (s *MemoryOperationStore) Delete(ctx context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, opKey(op.EntityType, op.EntityID))
	return nil
}

func sortOperations(ops []models.Operation) {
	// Insertion sort: queues are short and almost sorted already.
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j].Sequence < ops[j-1].Sequence; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

// MemoryTokenStore keeps delta tokens in memory.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]int64
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]int64)}
}

func (s *MemoryTokenStore) Get(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id], nil
}

func (s *MemoryTokenStore) Advance(ctx context.Context, scope Scope, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value > s.tokens[scope.TokenID()] {
		s.tokens[scope.TokenID()] = value
	}
	return nil
}

func (s *MemoryTokenStore) Reset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}

// MemoryStore keeps local entity rows in memory.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]memoryRow
}

type memoryRow struct {
	item json.RawMessage
	meta EntityMetadata
}

// NewMemoryStore creates an empty in-memory entity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]memoryRow)}
}

func (s *MemoryStore) Upsert(ctx context.Context, entityType, entityID string, item json.RawMessage, meta EntityMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(json.RawMessage, len(item))
	copy(cp, item)
	s.rows[opKey(entityType, entityID)] = memoryRow{item: cp, meta: meta}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, entityType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, opKey(entityType, entityID))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, entityType, entityID string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[opKey(entityType, entityID)]
	if !ok {
		return nil, false, nil
	}
	return row.item, true, nil
}

// Len reports the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
