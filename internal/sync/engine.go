package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/offsync/offsync/internal/config"
)

// Engine ties the push and pull coordinators together and drives them from
// sync requests and the optional auto-sync schedule.
type Engine struct {
	mu sync.RWMutex

	config   *config.SyncConfig
	oplog    *OperationLog
	tokens   TokenStore
	push     *PushCoordinator
	pull     *PullCoordinator
	registry *Registry

	isRunning bool
	lastSync  time.Time
	lastPush  *PushResult
	lastPull  *PullResult

	stopChan chan struct{}
	syncChan chan syncRequest
}

type syncRequest struct {
	push bool
	pull bool
}

// NewEngine creates an engine over already-wired coordinators.
func NewEngine(cfg *config.SyncConfig, oplog *OperationLog, tokens TokenStore, push *PushCoordinator, pull *PullCoordinator, registry *Registry) *Engine {
	return &Engine{
		config:   cfg,
		oplog:    oplog,
		tokens:   tokens,
		push:     push,
		pull:     pull,
		registry: registry,
		stopChan: make(chan struct{}),
		syncChan: make(chan syncRequest, 16),
	}
}

// Start launches the sync worker and, when configured, the auto-sync loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isRunning {
		return fmt.Errorf("sync engine already running")
	}
	e.isRunning = true

	log.Println("🔄 Sync engine starting...")
	go e.worker()
	if e.config.AutoSyncEnabled {
		go e.autoSyncLoop()
	}
	if e.config.SyncOnStartup {
		e.RequestSync()
	}
	log.Println("✅ Sync engine started")
	return nil
}

// Stop shuts the engine down. An in-flight sync finishes; queued requests
// are dropped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isRunning {
		return
	}
	log.Println("🛑 Stopping sync engine...")
	e.isRunning = false
	close(e.stopChan)
}

// RequestSync queues a full push-then-pull cycle. Non-blocking; a full
// request channel means a cycle is already queued.
func (e *Engine) RequestSync() {
	select {
	case e.syncChan <- syncRequest{push: true, pull: true}:
	default:
	}
}

// Push runs one push cycle for the configured entity types.
func (e *Engine) Push(ctx context.Context, entityTypes []string) (*PushResult, error) {
	result, err := e.push.Push(ctx, entityTypes, e.config.PushParallelism)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastPush = result
	e.lastSync = time.Now()
	e.mu.Unlock()
	return result, nil
}

// Pull runs one pull cycle for the configured scopes.
func (e *Engine) Pull(ctx context.Context, scopes []Scope) (*PullResult, error) {
	if len(scopes) == 0 {
		scopes = e.configuredScopes()
	}
	result, err := e.pull.Pull(ctx, scopes, PullOptions{
		SaveAfterEveryPage: e.config.SaveAfterEveryPage,
		MaxParallelScopes:  e.config.PullParallelism,
	})
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastPull = result
	e.lastSync = time.Now()
	e.mu.Unlock()
	return result, nil
}

// ResetScope deletes a scope's delta token so the next pull starts over
// from epoch. This is the explicit resynchronization path; tokens are never
// removed otherwise.
func (e *Engine) ResetScope(ctx context.Context, scope Scope) error {
	return e.tokens.Reset(ctx, scope.TokenID())
}

// Log exposes the operation log for local mutation recording.
func (e *Engine) Log() *OperationLog {
	return e.oplog
}

// Registry exposes the entity type registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) configuredScopes() []Scope {
	scopes := make([]Scope, 0, len(e.config.Scopes))
	for _, s := range e.config.Scopes {
		scopes = append(scopes, Scope{
			EntityType: s.EntityType,
			QueryID:    s.QueryID,
			Filter:     s.Filter,
		})
	}
	return scopes
}

func (e *Engine) worker() {
	for {
		select {
		case req := <-e.syncChan:
			e.runCycle(req)
		case <-e.stopChan:
			return
		}
	}
}

func (e *Engine) runCycle(req syncRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.config.SyncTimeout)*time.Second)
	defer cancel()

	if req.push {
		if result, err := e.Push(ctx, nil); err != nil {
			log.Printf("⚠️ Push failed: %v", err)
		} else if !result.Success {
			log.Printf("⚠️ Push completed with %d failures", len(result.Failures))
		}
	}
	if req.pull {
		if result, err := e.Pull(ctx, nil); err != nil {
			log.Printf("⚠️ Pull failed: %v", err)
		} else if !result.Success {
			log.Printf("⚠️ Pull completed with scope failures")
		}
	}
}

func (e *Engine) autoSyncLoop() {
	ticker := time.NewTicker(time.Duration(e.config.AutoSyncInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.RequestSync()
		case <-e.stopChan:
			return
		}
	}
}

// Status returns a snapshot of the engine state for the control plane.
func (e *Engine) Status() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := map[string]any{
		"is_running": e.isRunning,
		"last_sync":  e.lastSync,
	}
	if e.lastPush != nil {
		status["last_push"] = e.lastPush
	}
	if e.lastPull != nil {
		status["last_pull"] = e.lastPull
	}
	return status
}
