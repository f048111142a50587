package sync

import (
	"context"
	"encoding/json"
)

// ConflictResolver decides between a client entity and a server entity when
// the remote service rejects a push with 409/412. Either side may be nil
// (delete conflicts, entities removed server-side). Returning OutcomeDefault
// leaves the conflict unresolved and the operation marked failed.
type ConflictResolver interface {
	Resolve(ctx context.Context, client, server json.RawMessage) Resolution
}

// ResolverFunc adapts a function to the ConflictResolver interface, e.g. a
// field-level merge that synthesizes an entity and returns OutcomeClient.
type ResolverFunc func(ctx context.Context, client, server json.RawMessage) Resolution

func (f ResolverFunc) Resolve(ctx context.Context, client, server json.RawMessage) Resolution {
	return f(ctx, client, server)
}

// ClientWins always claims the client outcome. The client side is nil for a
// conflicted delete; the server entity then stands in as payload while the
// outcome stays Client, so the delete is still retried unconditionally
// instead of being abandoned. Both sides nil is ambiguous and unresolved.
type ClientWins struct{}

func (ClientWins) Resolve(ctx context.Context, client, server json.RawMessage) Resolution {
	switch {
	case client != nil:
		return Resolution{Outcome: OutcomeClient, Entity: client}
	case server != nil:
		return Resolution{Outcome: OutcomeClient, Entity: server}
	default:
		return Resolution{Outcome: OutcomeDefault}
	}
}

// ServerWins always claims the server outcome. When the server side is nil
// the client entity stands in as payload, still under the Server outcome, so
// the local state is settled without another push.
type ServerWins struct{}

func (ServerWins) Resolve(ctx context.Context, client, server json.RawMessage) Resolution {
	switch {
	case server != nil:
		return Resolution{Outcome: OutcomeServer, Entity: server}
	case client != nil:
		return Resolution{Outcome: OutcomeServer, Entity: client}
	default:
		return Resolution{Outcome: OutcomeDefault}
	}
}
