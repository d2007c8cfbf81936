package api

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Filters restrict a table read to rows whose column equals the given value.
type Filters map[string]string

func (f Filters) encode(extra url.Values) string {
	q := url.Values{}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, "eq."+f[k])
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(strings.TrimSpace(table))
}

// Select reads all rows matching the filters into out (a slice pointer).
func (c *Client) Select(ctx context.Context, table string, filters Filters, out any) error {
	return c.do(ctx, http.MethodGet, tablePath(table)+filters.encode(nil), nil, out)
}

// SelectOne reads a single matching row into out. A missing row surfaces as
// KindNotFound.
func (c *Client) SelectOne(ctx context.Context, table string, filters Filters, out any) error {
	extra := url.Values{"limit": []string{"1"}, "single": []string{"true"}}
	return c.do(ctx, http.MethodGet, tablePath(table)+filters.encode(extra), nil, out)
}

// Insert appends a row. When out is non-nil the stored row is decoded back.
func (c *Client) Insert(ctx context.Context, table string, row, out any) error {
	return c.do(ctx, http.MethodPost, tablePath(table), row, out)
}

// Update patches rows matching the filters.
func (c *Client) Update(ctx context.Context, table string, filters Filters, patch any) error {
	return c.do(ctx, http.MethodPatch, tablePath(table)+filters.encode(nil), patch, nil)
}
