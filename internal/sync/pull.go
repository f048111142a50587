package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// PullOptions tunes one pull invocation.
type PullOptions struct {
	// SaveAfterEveryPage advances the delta token after each applied page
	// instead of once per scope, so an interrupted pull resumes near the
	// interruption point instead of restarting the scope.
	SaveAfterEveryPage bool

	// MaxParallelScopes bounds concurrent scope fetches; pages within one
	// scope are always sequential. Clamped to 1..8.
	MaxParallelScopes int
}

// PullCoordinator incrementally imports remote changes per scope without
// re-fetching already-seen data and without disturbing entities that have a
// queued local operation.
type PullCoordinator struct {
	log    *OperationLog
	remote *RemoteClient
	store  Store
	tokens TokenStore
	lock   *SyncLock
}

// NewPullCoordinator wires a pull coordinator.
func NewPullCoordinator(oplog *OperationLog, remote *RemoteClient, store Store, tokens TokenStore, lock *SyncLock) *PullCoordinator {
	return &PullCoordinator{
		log:    oplog,
		remote: remote,
		store:  store,
		tokens: tokens,
		lock:   lock,
	}
}

// Pull fetches every scope. Scope failures are isolated: the remaining
// scopes still run, and the failed scope keeps the token of its last applied
// page.
func (pc *PullCoordinator) Pull(ctx context.Context, scopes []Scope, opts PullOptions) (*PullResult, error) {
	if err := pc.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer pc.lock.Release()

	start := time.Now()

	parallel := opts.MaxParallelScopes
	if parallel < 1 {
		parallel = 1
	}
	if parallel > 8 {
		parallel = 8
	}

	result := &PullResult{Success: true}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for _, scope := range scopes {
		scope := scope
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sr := pc.pullScope(gctx, scope, opts.SaveAfterEveryPage)
			mu.Lock()
			result.Scopes = append(result.Scopes, sr)
			if sr.Error != "" {
				result.Success = false
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// pullScope walks the scope's pages sequentially: each page's continuation
// depends on the one before it.
func (pc *PullCoordinator) pullScope(ctx context.Context, scope Scope, saveEveryPage bool) ScopeResult {
	sr := ScopeResult{Scope: scope}

	token, err := pc.tokens.Get(ctx, scope.TokenID())
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	sr.Token = token

	pageURL := PageURL(pc.remote.Endpoint(scope.EntityType), scope, token, true)
	scopeMax := token

	for pageURL != "" {
		if err := ctx.Err(); err != nil {
			sr.Error = err.Error()
			return sr
		}

		page, err := pc.remote.FetchPage(ctx, pageURL)
		if err != nil {
			sr.Error = err.Error()
			return sr
		}
		if len(page.Items) == 0 {
			break
		}
		sr.Pages++
		sr.Fetched += len(page.Items)

		pageMax, err := pc.applyPage(ctx, scope, page, &sr)
		if err != nil {
			sr.Error = err.Error()
			return sr
		}
		if pageMax > scopeMax {
			scopeMax = pageMax
		}

		if saveEveryPage && pageMax > 0 {
			if err := pc.tokens.Advance(ctx, scope, pageMax); err != nil {
				sr.Error = err.Error()
				return sr
			}
			sr.Token = pageMax
		}

		// nextLink, when present, is followed verbatim.
		pageURL = page.NextLink
	}

	if !saveEveryPage && scopeMax > token {
		if err := pc.tokens.Advance(ctx, scope, scopeMax); err != nil {
			sr.Error = err.Error()
			return sr
		}
	}
	sr.Token = scopeMax
	return sr
}

// applyPage applies one page to the local store and returns the maximum
// updatedAt among the entities actually applied.
func (pc *PullCoordinator) applyPage(ctx context.Context, scope Scope, page *Page, sr *ScopeResult) (int64, error) {
	var pageMax int64

	for _, item := range page.Items {
		meta, err := MetadataFromSnapshot(item)
		if err != nil {
			return pageMax, fmt.Errorf("undecodable entity in %s page: %w", scope.EntityType, err)
		}
		if meta.ID == "" {
			return pageMax, fmt.Errorf("entity without id in %s page", scope.EntityType)
		}

		// Local pending changes take precedence over concurrent server
		// updates; the queued operation will settle the entity on push.
		queued, err := pc.log.PendingFor(ctx, scope.EntityType, meta.ID)
		if err != nil {
			return pageMax, err
		}
		if queued != nil {
			sr.Skipped++
			log.Printf("pull: skipping %s/%s, local operation %s queued", scope.EntityType, meta.ID, queued.Kind)
			continue
		}

		if meta.Deleted {
			if err := pc.store.Delete(ctx, scope.EntityType, meta.ID); err != nil {
				return pageMax, err
			}
			sr.Deleted++
		} else {
			if err := pc.store.Upsert(ctx, scope.EntityType, meta.ID, item, meta); err != nil {
				return pageMax, err
			}
			sr.Applied++
		}

		if ts := meta.UpdatedAt.UnixMilli(); ts > pageMax {
			pageMax = ts
		}
	}
	return pageMax, nil
}
