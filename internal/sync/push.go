package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/offsync/offsync/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	minPushParallelism = 1
	maxPushParallelism = 8
)

// PushCoordinator drains pending and failed operations to the remote
// service with bounded concurrency. Failures are isolated per operation and
// reported in the aggregate result; only orchestration errors (lock, queue
// access) abort the whole call.
type PushCoordinator struct {
	log      *OperationLog
	remote   *RemoteClient
	store    Store
	resolver ConflictResolver
	lock     *SyncLock
	detector ChangeDetector
}

// NewPushCoordinator wires a push coordinator. resolver and detector may be
// nil: without a resolver every remote conflict degrades to a failed
// operation, without a detector no pre-push flush happens.
func NewPushCoordinator(oplog *OperationLog, remote *RemoteClient, store Store, resolver ConflictResolver, lock *SyncLock, detector ChangeDetector) *PushCoordinator {
	return &PushCoordinator{
		log:      oplog,
		remote:   remote,
		store:    store,
		resolver: resolver,
		lock:     lock,
		detector: detector,
	}
}

// Push sends every queued operation for the given entity types (all types
// when empty). maxParallelism is clamped to 1..8; operations against
// different entities may complete out of order, operations against the same
// entity never run concurrently because at most one is ever queued.
func (pc *PushCoordinator) Push(ctx context.Context, entityTypes []string, maxParallelism int) (*PushResult, error) {
	if err := pc.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer pc.lock.Release()

	start := time.Now()

	// Fold any undetected local mutations into the queue first so the push
	// reflects the latest local state.
	if pc.detector != nil {
		if err := pc.flushChanges(ctx); err != nil {
			return nil, err
		}
	}

	ops, err := pc.log.Pending(ctx, entityTypes)
	if err != nil {
		return nil, err
	}

	if maxParallelism < minPushParallelism {
		maxParallelism = minPushParallelism
	}
	if maxParallelism > maxPushParallelism {
		maxParallelism = maxPushParallelism
	}

	result := &PushResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelism)

	for i := range ops {
		op := ops[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := pc.pushOne(gctx, &op)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, PushFailure{
					Operation: op,
					Err:       err,
					Message:   err.Error(),
				})
				return nil // isolated; never abort the batch
			}
			result.Completed++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Success = len(result.Failures) == 0
	result.Duration = time.Since(start)
	return result, nil
}

// flushChanges records detected local mutations into the operation log.
// Coalescing conflicts are real errors and abort the push before anything
// went on the wire.
func (pc *PushCoordinator) flushChanges(ctx context.Context) error {
	changes, err := pc.detector.DetectChanges(ctx)
	if err != nil {
		return fmt.Errorf("change detection failed: %w", err)
	}
	for _, ch := range changes {
		if _, err := pc.log.RecordMutation(ctx, ch.EntityType, ch.EntityID, ch.Kind, ch.Snapshot, ch.PriorVersion); err != nil {
			return err
		}
	}
	return nil
}

// pushOne executes a single operation end to end: remote call, conflict
// resolution with at most one retry, local apply, queue cleanup.
func (pc *PushCoordinator) pushOne(ctx context.Context, op *models.Operation) error {
	res, err := pc.remote.Execute(ctx, op, false)
	if err != nil {
		pc.recordFailure(ctx, op, err)
		return err
	}

	switch res.Status {
	case ExecSuccess, ExecNotFound:
		return pc.finalize(ctx, op, res)
	case ExecConflict:
		return pc.resolveAndRetry(ctx, op, res)
	default:
		err := &TransportError{StatusCode: res.StatusCode}
		pc.recordFailure(ctx, op, err)
		return err
	}
}

// finalize applies the server outcome locally and removes the operation.
func (pc *PushCoordinator) finalize(ctx context.Context, op *models.Operation, res *ExecResult) error {
	if op.Kind == models.OperationDelete {
		if err := pc.store.Delete(ctx, op.EntityType, op.EntityID); err != nil {
			pc.recordFailure(ctx, op, err)
			return err
		}
		return pc.log.Complete(ctx, op)
	}

	// Non-delete success carries the server-authoritative entity; overwrite
	// the local row with it (id, version, updatedAt, all fields).
	meta, err := MetadataFromSnapshot(res.Entity)
	if err != nil || meta.ID == "" {
		corrupt := fmt.Errorf("%w: server response for %s/%s has no usable entity", ErrStateCorruption, op.EntityType, op.EntityID)
		pc.recordFailure(ctx, op, corrupt)
		return corrupt
	}
	if err := pc.store.Upsert(ctx, op.EntityType, meta.ID, json.RawMessage(res.Entity), meta); err != nil {
		pc.recordFailure(ctx, op, err)
		return err
	}
	return pc.log.Complete(ctx, op)
}

// resolveAndRetry handles a 409/412: consult the resolver, apply the chosen
// side, and retry the push once when the client side won.
func (pc *PushCoordinator) resolveAndRetry(ctx context.Context, op *models.Operation, res *ExecResult) error {
	serverEntity := normalizeEntity(res.Entity)
	var clientEntity json.RawMessage
	if op.Kind != models.OperationDelete {
		clientEntity = json.RawMessage(op.Item)
	}

	unresolved := &RemoteConflictError{StatusCode: res.StatusCode, ServerEntity: serverEntity}
	if pc.resolver == nil {
		pc.recordFailure(ctx, op, unresolved)
		return unresolved
	}

	resolution := pc.resolver.Resolve(ctx, clientEntity, serverEntity)
	switch resolution.Outcome {
	case OutcomeServer:
		return pc.acceptServer(ctx, op, resolution.Entity)
	case OutcomeClient:
		return pc.retryWithClient(ctx, op, resolution.Entity, serverEntity)
	default:
		pc.recordFailure(ctx, op, unresolved)
		return unresolved
	}
}

// acceptServer abandons the local mutation in favor of the server entity.
// For a conflicted delete this restores the server row locally.
func (pc *PushCoordinator) acceptServer(ctx context.Context, op *models.Operation, entity json.RawMessage) error {
	if entity == nil {
		// Server side no longer has the entity either; drop the row.
		if err := pc.store.Delete(ctx, op.EntityType, op.EntityID); err != nil {
			pc.recordFailure(ctx, op, err)
			return err
		}
		return pc.log.Complete(ctx, op)
	}

	meta, err := MetadataFromSnapshot(entity)
	if err != nil || meta.ID == "" {
		corrupt := fmt.Errorf("%w: conflicting server entity for %s/%s is not decodable", ErrStateCorruption, op.EntityType, op.EntityID)
		pc.recordFailure(ctx, op, corrupt)
		return corrupt
	}
	if err := pc.store.Upsert(ctx, op.EntityType, meta.ID, entity, meta); err != nil {
		pc.recordFailure(ctx, op, err)
		return err
	}
	return pc.log.Complete(ctx, op)
}

// retryWithClient pushes the client-favored resolution exactly once. A
// conflicted delete is retried unconditionally; anything else adopts the
// resolved entity and the server's current version as the new precondition.
func (pc *PushCoordinator) retryWithClient(ctx context.Context, op *models.Operation, entity, serverEntity json.RawMessage) error {
	force := false
	if op.Kind == models.OperationDelete {
		force = true
	} else {
		serverVersion := ""
		if serverEntity != nil {
			if meta, err := MetadataFromSnapshot(serverEntity); err == nil {
				serverVersion = meta.Version
			}
		}
		if err := pc.log.UpdateForRetry(ctx, op, entity, serverVersion); err != nil {
			return err
		}
	}

	res, err := pc.remote.Execute(ctx, op, force)
	if err != nil {
		pc.recordFailure(ctx, op, err)
		return err
	}
	if res.Status == ExecSuccess || res.Status == ExecNotFound {
		return pc.finalize(ctx, op, res)
	}

	// One retry only; a second conflict stays failed for the caller.
	var final error
	if res.Status == ExecConflict {
		final = &RemoteConflictError{StatusCode: res.StatusCode, ServerEntity: normalizeEntity(res.Entity)}
	} else {
		final = &TransportError{StatusCode: res.StatusCode}
	}
	pc.recordFailure(ctx, op, final)
	return final
}

// recordFailure marks the operation failed with its diagnostics. A failure
// of the marking itself is only logged: the push result already reports the
// original error.
func (pc *PushCoordinator) recordFailure(ctx context.Context, op *models.Operation, cause error) {
	status := 0
	switch e := cause.(type) {
	case *RemoteConflictError:
		status = e.StatusCode
	case *TransportError:
		status = e.StatusCode
	}
	if err := pc.log.MarkFailed(ctx, op, status); err != nil {
		log.Printf("failed to mark operation %s as failed: %v", op.OperationID, err)
	}
}

// touchFailed stamps failure diagnostics on an operation record.
func touchFailed(op *models.Operation, statusCode int) {
	op.State = models.OperationFailed
	if statusCode != 0 {
		op.HTTPStatusCode = &statusCode
	}
	now := time.Now().UTC()
	op.LastAttempt = &now
}

// normalizeEntity maps empty or literal-null bodies to nil.
func normalizeEntity(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}
