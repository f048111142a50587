package sync

import (
	"encoding/json"
	"time"

	"github.com/offsync/offsync/internal/models"
)

// ResolutionOutcome says which side a conflict resolver picked.
type ResolutionOutcome string

const (
	OutcomeClient  ResolutionOutcome = "client"
	OutcomeServer  ResolutionOutcome = "server"
	OutcomeDefault ResolutionOutcome = "default"
)

// Resolution is the result of resolving one remote conflict.
type Resolution struct {
	Outcome ResolutionOutcome `json:"outcome"`
	Entity  json.RawMessage   `json:"entity,omitempty"`
}

// ExecStatus classifies the outcome of one remote operation execution.
type ExecStatus string

const (
	ExecSuccess  ExecStatus = "success"
	ExecConflict ExecStatus = "conflict"
	ExecNotFound ExecStatus = "not_found"
	ExecFailure  ExecStatus = "failure"
)

// ExecResult carries the classified outcome of one remote call.
type ExecResult struct {
	Status     ExecStatus
	StatusCode int
	// Entity is the JSON body returned by the server: the authoritative
	// entity on success, the server's current entity on conflict.
	Entity json.RawMessage
}

// Scope is the unit of delta-token tracking for pull: an entity type,
// optionally partitioned by a named query.
type Scope struct {
	EntityType string `json:"entityType"`
	QueryID    string `json:"queryId,omitempty"`
	// Filter is an extra wire filter clause ANDed with the delta-token
	// clause, e.g. `category eq 'movies'`. Empty means the whole type.
	Filter string `json:"filter,omitempty"`
}

// TokenID returns the delta-token key for this scope.
func (s Scope) TokenID() string {
	if s.QueryID == "" {
		return s.EntityType
	}
	return s.EntityType + "|" + s.QueryID
}

// PushFailure pairs a failed operation with the error that stopped it.
type PushFailure struct {
	Operation models.Operation `json:"operation"`
	Err       error            `json:"-"`
	Message   string           `json:"error"`
}

// PushResult aggregates one push invocation.
type PushResult struct {
	Completed int           `json:"completed"`
	Failures  []PushFailure `json:"failures,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
}

// ScopeResult aggregates one pulled scope.
type ScopeResult struct {
	Scope   Scope `json:"scope"`
	Fetched int   `json:"fetched"`
	Applied int   `json:"applied"`
	Deleted int   `json:"deleted"`
	Skipped int   `json:"skipped"`
	Pages   int   `json:"pages"`
	Token   int64 `json:"token"`
	// Error is set when the scope stopped early; pages applied before the
	// failure stay applied and the token reflects them.
	Error string `json:"error,omitempty"`
}

// PullResult aggregates one pull invocation.
type PullResult struct {
	Scopes   []ScopeResult `json:"scopes"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
}

// DetectedChange is one local mutation reported by a change detector.
type DetectedChange struct {
	EntityType   string
	EntityID     string
	Kind         models.OperationKind
	Snapshot     json.RawMessage
	PriorVersion string
}
