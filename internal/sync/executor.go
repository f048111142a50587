package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/offsync/offsync/internal/models"
)

// NewHTTPClient creates the HTTP client used for all remote sync calls.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// RemoteClient executes queued operations and pull queries against the
// remote service and classifies the outcomes.
type RemoteClient struct {
	client    *http.Client
	baseURL   string
	endpoints map[string]string
	tokens    TokenProvider

	// MissingAsDeleted treats a 404 on delete as "already absent" instead
	// of a failure.
	MissingAsDeleted bool
}

// NewRemoteClient creates a client for the given base URL. endpoints maps
// entity types to URL paths; unmapped types default to "/api/<entityType>".
// tokens may be nil for unauthenticated services.
func NewRemoteClient(baseURL string, endpoints map[string]string, tokens TokenProvider) *RemoteClient {
	return &RemoteClient{
		client:    NewHTTPClient(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		tokens:    tokens,
	}
}

// Endpoint returns the collection URL for an entity type.
func (rc *RemoteClient) Endpoint(entityType string) string {
	if path, ok := rc.endpoints[entityType]; ok {
		return rc.baseURL + path
	}
	return rc.baseURL + "/api/" + entityType
}

func (rc *RemoteClient) entityURL(entityType, entityID string) string {
	return rc.Endpoint(entityType) + "/" + url.PathEscape(entityID)
}

// Execute runs one queued operation against the remote endpoint. force
// drops the If-Match precondition so the write applies unconditionally.
func (rc *RemoteClient) Execute(ctx context.Context, op *models.Operation, force bool) (*ExecResult, error) {
	var (
		req *http.Request
		err error
	)

	switch op.Kind {
	case models.OperationAdd:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, rc.Endpoint(op.EntityType), bytes.NewReader(op.Item))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	case models.OperationReplace:
		req, err = http.NewRequestWithContext(ctx, http.MethodPut, rc.entityURL(op.EntityType, op.EntityID), bytes.NewReader(op.Item))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			setPrecondition(req, op.EntityVersion, force)
		}
	case models.OperationDelete:
		req, err = http.NewRequestWithContext(ctx, http.MethodDelete, rc.entityURL(op.EntityType, op.EntityID), nil)
		if err == nil {
			setPrecondition(req, op.EntityVersion, force)
		}
	default:
		return nil, fmt.Errorf("%w: unknown operation kind %q", ErrStateCorruption, op.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s %s/%s: %w", op.Kind, op.EntityType, op.EntityID, err)
	}

	resp, err := rc.do(ctx, req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	return rc.classify(op, resp.StatusCode, body), nil
}

func (rc *RemoteClient) classify(op *models.Operation, status int, body []byte) *ExecResult {
	res := &ExecResult{StatusCode: status}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		res.Status = ExecSuccess
		res.Entity = json.RawMessage(body)
	case status == http.StatusNoContent:
		res.Status = ExecSuccess
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		// Both carry the server's current entity and mean the same thing.
		res.Status = ExecConflict
		res.Entity = json.RawMessage(body)
	case status == http.StatusNotFound && op.Kind == models.OperationDelete && rc.MissingAsDeleted:
		res.Status = ExecNotFound
	default:
		res.Status = ExecFailure
	}
	return res
}

// FetchPage retrieves one pull page. pageURL is either a query built by
// PageURL or a server-supplied nextLink, followed verbatim.
func (rc *RemoteClient) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := rc.do(ctx, req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode pull page: %w", err)
	}
	return &page, nil
}

func (rc *RemoteClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if rc.tokens != nil {
		token, err := rc.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain sync token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return rc.client.Do(req)
}

// setPrecondition attaches the conditional header. Version strings go on the
// wire as quoted entity tags per RFC 9110.
func setPrecondition(req *http.Request, version string, force bool) {
	if force || version == "" {
		return
	}
	req.Header.Set("If-Match", quoteETag(version))
}

func quoteETag(version string) string {
	if strings.HasPrefix(version, `"`) && strings.HasSuffix(version, `"`) {
		return version
	}
	return `"` + version + `"`
}
