// Package resources provides JSON:API resource implementations for the
// pagehost editor API.
package resources

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/pagehost/internal/shell/store"
	"github.com/manyminds/api2go"
)

// =============================================================================
// Collaborators
// =============================================================================

// Invalidator drops cached public payloads for the given paths.
type Invalidator interface {
	Invalidate(paths ...string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(...string) {}

// =============================================================================
// Response Helper
// =============================================================================

// Response implements api2go.Responder for custom responses.
type Response struct {
	Code int
	Res  interface{}
	Meta map[string]interface{}
}

// Metadata returns additional metadata for the response.
func (r *Response) Metadata() map[string]interface{} {
	return r.Meta
}

// Result returns the response data.
func (r *Response) Result() interface{} {
	return r.Res
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	return r.Code
}

// =============================================================================
// Helper Functions
// =============================================================================

// httpError builds an api2go error whose Errors list carries the status, so
// custom action routes can render it the same way api2go does.
func httpError(status int, msg string) (*Response, error) {
	e := api2go.NewHTTPError(errors.New(strings.ToLower(msg)), msg, status)
	e.Errors = []api2go.Error{{
		Status: strconv.Itoa(status),
		Title:  msg,
	}}
	return &Response{Code: status}, e
}

// isNotFound checks if an error is a not found error.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// parseListOptions reads page[size], page[offset] and page[number].
func parseListOptions(params map[string][]string) store.ListOptions {
	opts := store.DefaultListOptions()

	if limit, ok := params["page[size]"]; ok && len(limit) > 0 {
		if l, err := strconv.Atoi(limit[0]); err == nil {
			opts.Limit = l
		}
	}
	if offset, ok := params["page[offset]"]; ok && len(offset) > 0 {
		if o, err := strconv.Atoi(offset[0]); err == nil {
			opts.Offset = o
		}
	}
	if pageNum, ok := params["page[number]"]; ok && len(pageNum) > 0 {
		if pn, err := strconv.Atoi(pageNum[0]); err == nil && pn > 0 {
			opts.Offset = (pn - 1) * opts.Limit
		}
	}
	return opts.Normalize()
}

func firstParam(params map[string][]string, key string) string {
	if v, ok := params[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// unauthorized is returned to anonymous callers of the editor API.
func unauthorized() (*Response, error) {
	return httpError(http.StatusUnauthorized, "Authentication required")
}
