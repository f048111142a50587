package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"testing"

	"github.com/offsync/offsync/internal/models"
)

func snapshot(t *testing.T, fields map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}
	return data
}

func TestOperationLog_EnqueueKinds(t *testing.T) {
	ctx := context.Background()
	log := NewOperationLog(NewMemoryOperationStore())

	item := snapshot(t, map[string]any{"id": "42", "title": "A"})

	op, err := log.RecordMutation(ctx, "movies", "42", models.OperationAdd, item, "")
	if err != nil {
		t.Fatalf("Failed to record add: %v", err)
	}
	if op.Kind != models.OperationAdd {
		t.Errorf("Expected add, got %s", op.Kind)
	}
	if op.State != models.OperationPending {
		t.Errorf("Expected pending state, got %s", op.State)
	}
	if op.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", op.Sequence)
	}
	if op.Version != 1 {
		t.Errorf("Expected version 1, got %d", op.Version)
	}

	op2, err := log.RecordMutation(ctx, "movies", "43", models.OperationDelete, nil, "v1")
	if err != nil {
		t.Fatalf("Failed to record delete: %v", err)
	}
	if op2.Sequence != 2 {
		t.Errorf("Expected sequence 2, got %d", op2.Sequence)
	}
	if len(op2.Item) != 0 {
		t.Errorf("Delete should carry no snapshot, got %s", op2.Item)
	}
}

func TestOperationLog_RejectsEmptyID(t *testing.T) {
	log := NewOperationLog(NewMemoryOperationStore())

	_, err := log.RecordMutation(context.Background(), "movies", "", models.OperationDelete, nil, "")
	if !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity, got %v", err)
	}
}

func TestOperationLog_CoalescingMatrix(t *testing.T) {
	tests := []struct {
		name     string
		existing models.OperationKind
		incoming models.OperationKind
		want     models.OperationKind // "" = operation removed
		conflict bool
	}{
		{"add then delete cancels out", models.OperationAdd, models.OperationDelete, "", false},
		{"add then replace keeps add", models.OperationAdd, models.OperationReplace, models.OperationAdd, false},
		{"add then add conflicts", models.OperationAdd, models.OperationAdd, "", true},
		{"delete then add becomes replace", models.OperationDelete, models.OperationAdd, models.OperationReplace, false},
		{"delete then delete conflicts", models.OperationDelete, models.OperationDelete, "", true},
		{"delete then replace conflicts", models.OperationDelete, models.OperationReplace, "", true},
		{"replace then delete becomes delete", models.OperationReplace, models.OperationDelete, models.OperationDelete, false},
		{"replace then replace keeps replace", models.OperationReplace, models.OperationReplace, models.OperationReplace, false},
		{"replace then add conflicts", models.OperationReplace, models.OperationAdd, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			log := NewOperationLog(NewMemoryOperationStore())

			first := snapshot(t, map[string]any{"id": "42", "title": "first"})
			second := snapshot(t, map[string]any{"id": "42", "title": "second"})

			queued, err := log.RecordMutation(ctx, "movies", "42", tt.existing, first, "v1")
			if err != nil {
				t.Fatalf("Failed to queue initial %s: %v", tt.existing, err)
			}

			result, err := log.RecordMutation(ctx, "movies", "42", tt.incoming, second, "v1")

			if tt.conflict {
				var conflict *ConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("Expected ConflictError, got %v", err)
				}
				if conflict.Queued.Kind != tt.existing {
					t.Errorf("Conflict should attach queued %s, got %s", tt.existing, conflict.Queued.Kind)
				}
				if conflict.Rejected != tt.incoming {
					t.Errorf("Conflict should attach rejected %s, got %s", tt.incoming, conflict.Rejected)
				}

				// The log must be left unchanged.
				after, _ := log.PendingFor(ctx, "movies", "42")
				if after == nil || after.Kind != tt.existing || after.Version != queued.Version {
					t.Error("Conflict must leave the queued operation untouched")
				}
				return
			}

			if err != nil {
				t.Fatalf("Coalescing failed: %v", err)
			}

			if tt.want == "" {
				if result != nil {
					t.Errorf("Expected net no-op, got %s", result.Kind)
				}
				ops, _ := log.Pending(ctx, nil)
				if len(ops) != 0 {
					t.Errorf("Expected empty queue, got %d operations", len(ops))
				}
				return
			}

			if result.Kind != tt.want {
				t.Errorf("Expected coalesced kind %s, got %s", tt.want, result.Kind)
			}
			if result.Version != queued.Version+1 {
				t.Errorf("Coalescing must increment version: expected %d, got %d", queued.Version+1, result.Version)
			}
			if result.State != models.OperationPending {
				t.Errorf("Coalescing must reset state to pending, got %s", result.State)
			}
			if result.Sequence != queued.Sequence {
				t.Error("Coalescing must keep the original sequence")
			}
			if tt.want == models.OperationDelete {
				if len(result.Item) != 0 {
					t.Error("Converting to delete must drop the snapshot")
				}
			} else {
				if string(result.Item) != string(second) {
					t.Errorf("Expected adopted snapshot %s, got %s", second, result.Item)
				}
			}
		})
	}
}

func TestOperationLog_CoalescingClosure(t *testing.T) {
	// No valid mutation sequence may ever leave more than one queued
	// operation per entity.
	ctx := context.Background()
	log := NewOperationLog(NewMemoryOperationStore())
	item := snapshot(t, map[string]any{"id": "7"})

	kinds := []models.OperationKind{
		models.OperationAdd,
		models.OperationReplace,
		models.OperationReplace,
		models.OperationDelete,
		models.OperationAdd,
		models.OperationDelete,
	}
	for _, k := range kinds {
		// Conflicts are allowed; they leave the queue untouched.
		log.RecordMutation(ctx, "movies", "7", k, item, "")

		ops, err := log.Pending(ctx, nil)
		if err != nil {
			t.Fatalf("Failed to list operations: %v", err)
		}
		if len(ops) > 1 {
			t.Fatalf("Closure violated after %s: %d operations queued", k, len(ops))
		}
	}
}

func TestOperationLog_ReplaceCoalescesLastSnapshot(t *testing.T) {
	ctx := context.Background()
	log := NewOperationLog(NewMemoryOperationStore())

	a := snapshot(t, map[string]any{"id": "42", "title": "A"})
	b := snapshot(t, map[string]any{"id": "42", "title": "B"})

	if _, err := log.RecordMutation(ctx, "movies", "42", models.OperationReplace, a, "v1"); err != nil {
		t.Fatalf("Failed to queue first replace: %v", err)
	}
	if _, err := log.RecordMutation(ctx, "movies", "42", models.OperationReplace, b, "v1"); err != nil {
		t.Fatalf("Failed to coalesce second replace: %v", err)
	}

	ops, _ := log.Pending(ctx, nil)
	if len(ops) != 1 {
		t.Fatalf("Expected exactly one operation, got %d", len(ops))
	}
	if ops[0].Kind != models.OperationReplace {
		t.Errorf("Expected replace, got %s", ops[0].Kind)
	}

	var decoded map[string]any
	if err := json.Unmarshal(ops[0].Item, &decoded); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if decoded["title"] != "B" {
		t.Errorf("Expected latest snapshot title B, got %v", decoded["title"])
	}
}

func TestOperationLog_ConcurrentEntitiesGetDistinctSequences(t *testing.T) {
	ctx := context.Background()
	log := NewOperationLog(NewMemoryOperationStore())

	const n = 32
	var wg gosync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i)
			item := []byte(fmt.Sprintf(`{"id":%q}`, id))
			if _, err := log.RecordMutation(ctx, "movies", id, models.OperationAdd, item, ""); err != nil {
				t.Errorf("Failed to record mutation for %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	ops, err := log.Pending(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to list operations: %v", err)
	}
	if len(ops) != n {
		t.Fatalf("Expected %d operations, got %d", n, len(ops))
	}
	seen := make(map[int64]bool)
	for _, op := range ops {
		if seen[op.Sequence] {
			t.Errorf("Duplicate sequence %d", op.Sequence)
		}
		seen[op.Sequence] = true
	}
}

func TestOperationLog_PendingFiltersByType(t *testing.T) {
	ctx := context.Background()
	log := NewOperationLog(NewMemoryOperationStore())

	log.RecordMutation(ctx, "movies", "1", models.OperationAdd, []byte(`{"id":"1"}`), "")
	log.RecordMutation(ctx, "actors", "2", models.OperationAdd, []byte(`{"id":"2"}`), "")

	ops, err := log.Pending(ctx, []string{"movies"})
	if err != nil {
		t.Fatalf("Failed to list operations: %v", err)
	}
	if len(ops) != 1 || ops[0].EntityType != "movies" {
		t.Errorf("Expected only the movies operation, got %v", ops)
	}
}
