package sync

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Page is one pull response: a batch of entity snapshots plus an optional
// total count (first page only) and continuation link.
type Page struct {
	Items    []json.RawMessage `json:"items"`
	Count    *int64            `json:"count,omitempty"`
	NextLink string            `json:"nextLink,omitempty"`
}

// PageURL builds the first-page query for a scope: everything changed after
// the delta token, deleted rows included, ordered by id for deterministic
// paging. The total count is only requested on this first page; later pages
// come from the server's nextLink.
func PageURL(endpoint string, scope Scope, token int64, first bool) string {
	filter := fmt.Sprintf("updatedAt gt %d", token)
	if scope.Filter != "" {
		filter = fmt.Sprintf("%s and %s", filter, scope.Filter)
	}

	q := url.Values{}
	q.Set("$filter", filter)
	q.Set("__includedeleted", "true")
	q.Set("$orderby", "id")
	if first {
		q.Set("$count", "true")
	}
	return endpoint + "?" + q.Encode()
}
