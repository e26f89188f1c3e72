// Package auth is the client for the hosted auth service
// (/auth/v1/*): password and refresh-token grants, sign-up, and the
// current-user lookup. It holds no session state, that is the session
// package's job.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/octabyte/stash-go/models"
	"github.com/octabyte/stash-go/otel"
	"github.com/octabyte/stash-go/otel/metrics"
)

const (
	tokenPath  = "/auth/v1/token"
	signupPath = "/auth/v1/signup"
	userPath   = "/auth/v1/user"
)

// Config holds the configuration for the auth client.
type Config struct {
	// URL: The project base URL, e.g. https://xyzcompany.supabase.co
	URL string `validate:"required,url"`
	// AnonKey: The public API key sent as the apikey header on every call.
	AnonKey string `validate:"required"`
	// Timeout: Per-request timeout. Zero means the resty default (no timeout).
	Timeout time.Duration
}

func (cfg *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// Client talks to the auth endpoints.
type Client struct {
	http    *resty.Client
	anonKey string
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := resty.New().SetBaseURL(cfg.URL)
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	return &Client{http: httpClient, anonKey: cfg.AnonKey}, nil
}

// SignIn exchanges credentials for a session via the password grant.
// Bad credentials come back as *Error with the service's message.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	return c.tokenGrant(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a new session. Any non-2xx
// means the refresh token is no longer usable.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	return c.tokenGrant(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

func (c *Client) tokenGrant(ctx context.Context, grantType string, body map[string]string) (*models.Session, error) {
	ctx, finish := otel.StartClientSpan(ctx, "auth", grantType, http.MethodPost, c.http.BaseURL, tokenPath)
	start := time.Now()

	resp, err := c.request(ctx).
		SetQueryParam("grant_type", grantType).
		SetBody(body).
		Post(tokenPath)

	finish(resp.StatusCode(), err)
	metrics.RecordAPICall(ctx, "auth", grantType, resp.StatusCode(), time.Since(start))

	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}

	var sess models.Session
	if err := json.Unmarshal(resp.Body(), &sess); err != nil {
		return nil, fmt.Errorf("auth: decode token response: %w", err)
	}
	if !sess.Valid() {
		return nil, fmt.Errorf("auth: token response missing token fields")
	}
	return &sess, nil
}

// SignUp creates an account. Email confirmation happens out of band.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	ctx, finish := otel.StartClientSpan(ctx, "auth", "signup", http.MethodPost, c.http.BaseURL, signupPath)
	start := time.Now()

	resp, err := c.request(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		Post(signupPath)

	finish(resp.StatusCode(), err)
	metrics.RecordAPICall(ctx, "auth", "signup", resp.StatusCode(), time.Since(start))

	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return apiError(resp)
	}
	return nil
}

// User fetches the user behind an access token. A 401 surfaces as
// *Error so the session manager can run its refresh-and-retry cycle.
func (c *Client) User(ctx context.Context, accessToken string) (*models.User, error) {
	ctx, finish := otel.StartClientSpan(ctx, "auth", "user", http.MethodGet, c.http.BaseURL, userPath)
	start := time.Now()

	resp, err := c.request(ctx).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", accessToken)).
		Get(userPath)

	finish(resp.StatusCode(), err)
	metrics.RecordAPICall(ctx, "auth", "user", resp.StatusCode(), time.Since(start))

	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, apiError(resp)
	}

	var user models.User
	if err := json.Unmarshal(resp.Body(), &user); err != nil {
		return nil, fmt.Errorf("auth: decode user response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("auth: user response missing id")
	}
	return &user, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("apikey", c.anonKey).
		SetHeader("Content-Type", "application/json")
}
