package edge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// cursorStyle selects how a paginated endpoint family continues to the
// next page.
type cursorStyle int

const (
	// cursorLinks follows the query parameters of the links.next URL.
	cursorLinks cursorStyle = iota
	// cursorLastRecord passes the response's lastRecord token back as a
	// query parameter.
	cursorLastRecord
)

const pageLimit = "100"

// eachItem walks every page of a collection, invoking fn for each decoded
// item in order. Items are consumed as pages arrive; the walk is finite and
// cannot be restarted. A page without items, or without a continuation
// cursor, terminates the walk normally. A remote error status aborts it
// with an *APIError.
func (c *Client) eachItem(ctx context.Context, path string, params url.Values, style cursorStyle, fn func(json.RawMessage) error) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("limit", pageLimit)

	for {
		resp, err := c.Call(ctx, http.MethodGet, path, params, nil)
		if err != nil {
			return err
		}
		if !resp.OK() {
			return &APIError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: string(resp.Body)}
		}

		var page listEnvelope
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return err
		}
		if len(page.Items) == 0 {
			return nil
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}

		switch style {
		case cursorLinks:
			if page.Links == nil || page.Links.Next == "" {
				return nil
			}
			next, err := url.Parse(page.Links.Next)
			if err != nil {
				return err
			}
			q := next.Query()
			if len(q) == 0 {
				return nil
			}
			params = q
		case cursorLastRecord:
			if page.LastRecord == "" {
				return nil
			}
			params.Set("lastRecord", page.LastRecord)
		}
	}
}
