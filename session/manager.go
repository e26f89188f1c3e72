// Package session owns the authentication session: it acquires,
// persists, expires, and silently refreshes the bearer tokens used to
// authorize every call to the backend. All outbound requests get their
// headers from Manager.Headers, which is the single chokepoint that
// guarantees no caller ever sees an expired token.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/octabyte/stash-go/auth"
	"github.com/octabyte/stash-go/models"
	"github.com/octabyte/stash-go/otel/metrics"
	"github.com/octabyte/stash-go/storage"
	"github.com/octabyte/stash-go/utils/logger"
)

const (
	// DefaultStorageKey matches the record key used by the other Stash clients.
	DefaultStorageKey = "stash_session"

	// DefaultExpiryBuffer refreshes this long before the declared expiry.
	DefaultExpiryBuffer = 300 * time.Second

	recordVersion = 1
)

// ErrRefreshRejected means the refresh token was rejected by the auth
// service. The session has been cleared; the user is signed out.
var ErrRefreshRejected = errors.New("session: refresh token rejected")

// ErrNoSession means an operation that needs an authenticated session
// was called without one.
var ErrNoSession = errors.New("session: not signed in")

// TokenAPI is the remote auth collaborator, implemented by auth.Client.
type TokenAPI interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) error
	User(ctx context.Context, accessToken string) (*models.User, error)
}

// record is the versioned durable layout of the session.
type record struct {
	Version int             `json:"version"`
	Session *models.Session `json:"session"`
}

// Manager maintains exactly one session. It is safe for concurrent use.
type Manager struct {
	store   storage.Store
	api     TokenAPI
	anonKey string
	key     string
	buffer  time.Duration
	now     func() time.Time

	mu        sync.Mutex
	sess      *models.Session
	user      *models.User
	gen       uint64 // bumped on sign-out so stale refreshes are discarded
	inflight  *refreshCall
	observers []func(bool)
}

// refreshCall is the shared pending-operation handle: every caller that
// hits the expiring-soon window while a refresh is in flight attaches
// to the same call instead of starting its own.
type refreshCall struct {
	done chan struct{}
	sess *models.Session
	err  error
}

type Option func(*Manager)

// WithStorageKey overrides the durable record key.
func WithStorageKey(key string) Option {
	return func(m *Manager) { m.key = key }
}

// WithExpiryBuffer overrides how long before expiry a token counts as
// expiring-soon.
func WithExpiryBuffer(d time.Duration) Option {
	return func(m *Manager) { m.buffer = d }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New builds a Manager over its two collaborators. anonKey is the
// public API key attached to every request, bearer or not.
func New(store storage.Store, api TokenAPI, anonKey string, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		api:     api,
		anonKey: anonKey,
		key:     DefaultStorageKey,
		buffer:  DefaultExpiryBuffer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores the persisted session on cold start. A missing,
// undecodable, foreign-version, or partial record leaves the manager
// unauthenticated and drops the record.
func (m *Manager) Load(ctx context.Context) error {
	raw, err := m.store.Get(ctx, m.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Version != recordVersion || !rec.Session.Valid() {
		logger.LogWarn("session: dropping unreadable session record",
			zap.Int("version", rec.Version))
		_ = m.store.Delete(ctx, m.key)
		return nil
	}

	m.mu.Lock()
	m.sess = m.normalize(rec.Session)
	m.mu.Unlock()
	m.notify(true)
	return nil
}

// SignIn runs the password grant. On rejection nothing is mutated; on
// success the new session is persisted and observers see authenticated.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	sess, err := m.api.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sess = m.normalize(sess)
	m.user = sess.User
	stored := m.sess.Clone()
	m.mu.Unlock()

	m.persist(stored)
	m.notify(true)
	logger.LogInfo("session: signed in", zap.String("email", email))
	return stored, nil
}

// SignUp creates an account. It does not sign the user in; the service
// requires email confirmation first.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	return m.api.SignUp(ctx, email, password)
}

// SignOut clears the in-memory and persisted session. Idempotent and
// never fails; storage errors are logged and swallowed.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	wasAuthenticated := m.sess != nil
	m.sess = nil
	m.user = nil
	m.gen++
	m.mu.Unlock()

	if err := m.store.Delete(context.WithoutCancel(ctx), m.key); err != nil {
		logger.LogError("session: clear persisted session", zap.Error(err))
	}
	if wasAuthenticated {
		m.notify(false)
	}
}

// IsAuthenticated is the derived boolean other components observe
// instead of reading storage.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// OnAuthChange registers an observer for the authenticated boolean.
// Observers are invoked outside the manager lock.
func (m *Manager) OnAuthChange(fn func(authenticated bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Headers returns the headers for an outbound request. Without a
// session they are anonymous (apikey only). With a session that is
// expiring soon or already expired, the caller is suspended until the
// single in-flight refresh resolves. An irrecoverably rejected refresh
// clears the session and yields anonymous headers with a nil error;
// a transient failure keeps the session and returns the transport
// error for the caller to retry on its own schedule.
func (m *Manager) Headers(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return m.anonymousHeaders(), nil
	}
	if !m.expiringSoonLocked(m.sess) {
		token := m.sess.AccessToken
		m.mu.Unlock()
		return m.bearerHeaders(token), nil
	}
	call := m.startRefreshLocked()
	m.mu.Unlock()

	sess, err := m.await(ctx, call)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			return m.anonymousHeaders(), nil
		}
		return nil, err
	}
	return m.bearerHeaders(sess.AccessToken), nil
}

// RefreshNow forces a refresh regardless of the expiry window, sharing
// any in-flight refresh. Used by the retry-after-401 paths.
func (m *Manager) RefreshNow(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	call := m.startRefreshLocked()
	m.mu.Unlock()

	_, err := m.await(ctx, call)
	return err
}

// CurrentUser returns the user behind the current session, or nil
// without error when unauthenticated. On a 401 from the user endpoint
// even after the proactive refresh, exactly one more refresh-and-retry
// cycle is attempted before giving up. That second cycle covers
// server-side revocation that the locally cached expiry cannot see.
func (m *Manager) CurrentUser(ctx context.Context) (*models.User, error) {
	if _, err := m.Headers(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return nil, nil
	}

	user, err := m.api.User(ctx, sess.AccessToken)
	if err == nil {
		m.cacheUser(user)
		return user, nil
	}

	var apiErr *auth.Error
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
		return nil, err
	}

	if rerr := m.RefreshNow(ctx); rerr != nil {
		if errors.Is(rerr, ErrRefreshRejected) || errors.Is(rerr, ErrNoSession) {
			return nil, nil
		}
		return nil, rerr
	}

	m.mu.Lock()
	sess = m.sess
	m.mu.Unlock()
	if sess == nil {
		return nil, nil
	}

	user, err = m.api.User(ctx, sess.AccessToken)
	if err == nil {
		m.cacheUser(user)
		return user, nil
	}
	if errors.As(err, &apiErr) && apiErr.Unauthorized() {
		return nil, nil
	}
	return nil, err
}

// CachedUser returns the last user fetched or carried by a token
// response, without a network call.
func (m *Manager) CachedUser() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// startRefreshLocked attaches to the in-flight refresh or starts one.
// The refresh runs on a background context: a caller navigating away
// must not abort it, local state has to converge with server reality.
func (m *Manager) startRefreshLocked() *refreshCall {
	if m.inflight != nil {
		return m.inflight
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	go m.doRefresh(call, m.sess.RefreshToken, m.gen)
	return call
}

func (m *Manager) doRefresh(call *refreshCall, refreshToken string, gen uint64) {
	ctx := context.Background()
	sess, err := m.api.Refresh(ctx, refreshToken)

	m.mu.Lock()
	m.inflight = nil
	stale := m.gen != gen
	switch {
	case stale:
		// Signed out while the refresh was in flight: the result no
		// longer belongs to anyone.
		m.mu.Unlock()
		call.err = ErrNoSession
		metrics.RecordSessionRefresh(ctx, "stale")

	case err == nil:
		m.sess = m.normalize(sess)
		if sess.User != nil {
			m.user = sess.User
		}
		stored := m.sess.Clone()
		m.mu.Unlock()
		m.persist(stored)
		call.sess = stored
		metrics.RecordSessionRefresh(ctx, "success")
		logger.LogDebug("session: token refreshed")

	case isRejection(err):
		m.sess = nil
		m.user = nil
		m.mu.Unlock()
		if derr := m.store.Delete(ctx, m.key); derr != nil {
			logger.LogError("session: clear rejected session", zap.Error(derr))
		}
		call.err = fmt.Errorf("%w: %v", ErrRefreshRejected, err)
		metrics.RecordSessionRefresh(ctx, "rejected")
		logger.LogWarn("session: refresh token rejected, signing out", zap.Error(err))
		m.notify(false)

	default:
		// Transient transport failure: keep the session, a later
		// attempt may succeed.
		m.mu.Unlock()
		call.err = fmt.Errorf("session: refresh: %w", err)
		metrics.RecordSessionRefresh(ctx, "transient")
		logger.LogWarn("session: transient refresh failure", zap.Error(err))
	}

	close(call.done)
}

// await suspends the caller until the shared refresh resolves or the
// caller's context is cancelled. Cancellation abandons the wait only;
// the refresh keeps running and persists its outcome.
func (m *Manager) await(ctx context.Context, call *refreshCall) (*models.Session, error) {
	select {
	case <-call.done:
		return call.sess, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) expiringSoonLocked(sess *models.Session) bool {
	if sess.ExpiresAt == 0 {
		return true
	}
	return m.now().Unix() >= sess.ExpiresAt-int64(m.buffer.Seconds())
}

// normalize fills a missing expires_at from expires_in or from the
// access token's exp claim, so the expiry check always has something
// to work with.
func (m *Manager) normalize(sess *models.Session) *models.Session {
	out := sess.Clone()
	if out.ExpiresAt == 0 && out.ExpiresIn > 0 {
		out.ExpiresAt = m.now().Unix() + out.ExpiresIn
	}
	if out.ExpiresAt == 0 {
		out.ExpiresAt = jwtExpiry(out.AccessToken)
	}
	return out
}

func (m *Manager) persist(sess *models.Session) {
	raw, err := json.Marshal(record{Version: recordVersion, Session: sess})
	if err != nil {
		logger.LogError("session: encode session record", zap.Error(err))
		return
	}
	if err := m.store.Set(context.Background(), m.key, raw); err != nil {
		logger.LogError("session: persist session record", zap.Error(err))
	}
}

func (m *Manager) cacheUser(user *models.User) {
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
}

func (m *Manager) notify(authenticated bool) {
	m.mu.Lock()
	observers := make([]func(bool), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(authenticated)
	}
}

func (m *Manager) anonymousHeaders() map[string]string {
	return map[string]string{
		"apikey":       m.anonKey,
		"Content-Type": "application/json",
	}
}

func (m *Manager) bearerHeaders(token string) map[string]string {
	headers := m.anonymousHeaders()
	headers["Authorization"] = fmt.Sprintf("Bearer %s", token)
	return headers
}

// isRejection distinguishes a service-side rejection of the refresh
// token from a transport failure. Per the auth contract any non-2xx on
// the refresh grant means the token is no longer usable.
func isRejection(err error) bool {
	var apiErr *auth.Error
	return errors.As(err, &apiErr)
}

// jwtExpiry pulls the exp claim out of a JWT access token without
// verifying it. Good enough for scheduling a refresh; the server still
// decides what it accepts.
func jwtExpiry(token string) int64 {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0
	}
	return gjson.GetBytes(payload, "exp").Int()
}
