package fanvue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/onyxos/onyxsync/internal/retry"
)

const (
	// DefaultMaxPages bounds a single fetch against an upstream that never
	// stops returning a cursor.
	DefaultMaxPages = 200
	DefaultPageSize = 50
)

// Page is the envelope of every paginated endpoint.
type Page[T any] struct {
	Data       []T     `json:"data"`
	NextCursor *string `json:"nextCursor"`
}

// FetchOptions controls one FetchAll run.
type FetchOptions struct {
	PageSize int
	MaxPages int
	// Cursor resumes a previous fetch. Empty starts from the first page.
	Cursor string
	// Query holds endpoint specific filters sent with every page.
	Query url.Values
	// Policy retries a single page on transient errors.
	Policy retry.Policy
}

// FetchResult summarises the pages handed to the visitor.
type FetchResult struct {
	Pages   int
	Records int
	// Cursor is the cursor of the page that would come next; empty once the
	// upstream reported the end.
	Cursor string
	// Truncated is set when MaxPages stopped the walk.
	Truncated bool
}

// DefaultPagePolicy retries a page on 5xx and network errors.
func DefaultPagePolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Retryable:   IsTemporary,
	}
}

// FetchAll walks a cursor paginated endpoint and hands every page to visit in
// upstream order, before the next page is requested. It stops when the
// upstream omits nextCursor or after opts.MaxPages pages.
//
// When a page fails after earlier pages were visited the result describes
// those pages and the error is a *PartialError.
func FetchAll[T any](ctx context.Context, c *Client, token, path string, opts FetchOptions, visit func(page []T) error) (*FetchResult, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultPagePolicy()
	}

	result := &FetchResult{Cursor: opts.Cursor}
	cursor := opts.Cursor

	for {
		if result.Pages >= maxPages {
			result.Truncated = true
			c.logger.Warn("Page ceiling reached, stopping fetch", "path", path, "pages", result.Pages, "records", result.Records)
			return result, nil
		}

		query := url.Values{}
		for k, v := range opts.Query {
			query[k] = append([]string(nil), v...)
		}
		query.Set("size", strconv.Itoa(pageSize))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page Page[T]
		err := policy.Do(ctx, func(int) error {
			page = Page[T]{}
			return c.GetJSON(ctx, token, path, query, &page, false)
		})
		if err != nil {
			return result, partial(result, fmt.Errorf("failed to fetch page %d of %s: %w", result.Pages+1, path, err))
		}

		if err := visit(page.Data); err != nil {
			return result, partial(result, fmt.Errorf("failed to process page %d of %s: %w", result.Pages+1, path, err))
		}
		result.Pages++
		result.Records += len(page.Data)

		if page.NextCursor == nil || *page.NextCursor == "" {
			result.Cursor = ""
			return result, nil
		}
		cursor = *page.NextCursor
		result.Cursor = cursor
	}
}

// CollectAll is FetchAll accumulating every record in memory.
func CollectAll[T any](ctx context.Context, c *Client, token, path string, opts FetchOptions) ([]T, *FetchResult, error) {
	var all []T
	result, err := FetchAll(ctx, c, token, path, opts, func(page []T) error {
		all = append(all, page...)
		return nil
	})
	return all, result, err
}

func partial(result *FetchResult, err error) error {
	if result.Pages == 0 {
		return err
	}
	return &PartialError{Pages: result.Pages, Records: result.Records, Err: err}
}
