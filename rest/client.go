// Package rest is a thin client for the row endpoints
// (/rest/v1/{table}). Rows are opaque payloads; the client only builds
// the PostgREST query string, attaches the headers the session manager
// hands out, and retries once after a 401.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/octabyte/stash-go/otel"
	otellog "github.com/octabyte/stash-go/otel/logger"
	"github.com/octabyte/stash-go/otel/metrics"
	"github.com/octabyte/stash-go/session"
)

// HeaderProvider supplies per-request headers and the forced-refresh
// hook for the retry-after-401 path. Implemented by session.Manager.
type HeaderProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
	RefreshNow(ctx context.Context) error
}

// Config holds the configuration for the row client.
type Config struct {
	// URL: The project base URL, shared with the auth client.
	URL string `validate:"required,url"`
	// Timeout: Per-request timeout. Zero means no timeout.
	Timeout time.Duration
}

func (cfg *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// Client performs generic row CRUD.
type Client struct {
	http    *resty.Client
	headers HeaderProvider
}

func New(cfg Config, provider HeaderProvider) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := resty.New().SetBaseURL(cfg.URL)
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	return &Client{http: httpClient, headers: provider}, nil
}

// Query describes a PostgREST read: projection, eq filters, ordering,
// and a row limit. The zero value selects everything.
type Query struct {
	Select  string
	Filters map[string]string
	Order   string // e.g. "created_at.desc"
	Limit   int
}

func (q Query) params() map[string]string {
	params := map[string]string{
		"select": q.Select,
	}
	if q.Select == "" {
		params["select"] = "*"
	}
	for column, value := range q.Filters {
		params[column] = "eq." + value
	}
	if q.Order != "" {
		params["order"] = q.Order
	}
	if q.Limit > 0 {
		params["limit"] = fmt.Sprintf("%d", q.Limit)
	}
	return params
}

// Select reads rows into dest.
func (c *Client) Select(ctx context.Context, table string, q Query, dest interface{}) error {
	resp, err := c.do(ctx, "select", table, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParams(q.params()).Get(tablePath(table))
	})
	if err != nil {
		return err
	}
	return decode(resp, dest)
}

// Insert writes a row and, via Prefer: return=representation, decodes
// the inserted rows back into dest (pass a slice pointer, or nil).
func (c *Client) Insert(ctx context.Context, table string, row interface{}, dest interface{}) error {
	resp, err := c.do(ctx, "insert", table, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetHeader("Prefer", "return=representation").
			SetBody(row).
			Post(tablePath(table))
	})
	if err != nil {
		return err
	}
	return decode(resp, dest)
}

// Update patches the row with the given id and decodes the updated
// rows into dest (slice pointer, or nil).
func (c *Client) Update(ctx context.Context, table, id string, patch interface{}, dest interface{}) error {
	resp, err := c.do(ctx, "update", table, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetHeader("Prefer", "return=representation").
			SetQueryParam("id", "eq."+id).
			SetBody(patch).
			Patch(tablePath(table))
	})
	if err != nil {
		return err
	}
	return decode(resp, dest)
}

// Delete removes the row with the given id.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	_, err := c.do(ctx, "delete", table, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParam("id", "eq."+id).Delete(tablePath(table))
	})
	return err
}

// do executes a row call, refreshing the session and retrying exactly
// once when the backend answers 401 despite the proactive refresh.
func (c *Client) do(ctx context.Context, op, table string, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	resp, err := c.send(ctx, op, table, send)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		otellog.DebugCtx(ctx, "rest: 401 on %s %s, refreshing session and retrying once", op, table)
		switch rerr := c.headers.RefreshNow(ctx); {
		case rerr == nil:
			resp, err = c.send(ctx, op, table, send)
			if err != nil {
				return nil, err
			}
		case errors.Is(rerr, session.ErrRefreshRejected), errors.Is(rerr, session.ErrNoSession):
			// Signed out; the 401 below is the honest outcome.
		default:
			// A transient refresh failure is not an authorization verdict.
			return nil, fmt.Errorf("rest: refresh before retry: %w", rerr)
		}
	}

	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, op, table string, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	headers, err := c.headers.Headers(ctx)
	if err != nil {
		return nil, err
	}

	ctx, finish := otel.StartClientSpan(ctx, "rest", op, opMethod(op), c.http.BaseURL, tablePath(table))
	start := time.Now()

	resp, err := send(c.http.R().SetContext(ctx).SetHeaders(headers))

	finish(resp.StatusCode(), err)
	metrics.RecordAPICall(ctx, "rest", op, resp.StatusCode(), time.Since(start))
	return resp, err
}

func decode(resp *resty.Response, dest interface{}) error {
	if dest == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return fmt.Errorf("rest: decode response: %w", err)
	}
	return nil
}

func tablePath(table string) string {
	return "/rest/v1/" + table
}

func opMethod(op string) string {
	switch op {
	case "insert":
		return http.MethodPost
	case "update":
		return http.MethodPatch
	case "delete":
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}
