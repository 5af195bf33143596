// Package session owns the dashboard's authenticated session against the
// remote API: a short-lived access credential, a persisted refresh
// credential and the display identity.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/metrics"
)

var errRejected = errors.New("session: credentials rejected")

// Options configures a Manager
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      domain.StateStore
	Logger     *slog.Logger

	// CookieMode relies on server-set cookies instead of a bearer header
	CookieMode bool
}

// Manager holds the session state. It is safe for concurrent use.
// Concurrent requests that hit an expired access credential each refresh
// on their own; refreshes are not deduplicated.
type Manager struct {
	baseURL    string
	client     *http.Client
	store      domain.StateStore
	logger     *slog.Logger
	cookieMode bool

	mu       sync.RWMutex
	access   string
	refresh  string
	identity string

	ready     chan struct{}
	readyOnce sync.Once
}

type credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type profile struct {
	Username string `json:"username"`
}

// NewManager creates a session manager with no credentials
func NewManager(opts Options) *Manager {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.CookieMode && client.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c := *client
		c.Jar = jar
		client = &c
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		client:     client,
		store:      opts.Store,
		logger:     logger.With("component", "session"),
		cookieMode: opts.CookieMode,
		ready:      make(chan struct{}),
	}
}

// BaseURL returns the API root the manager authenticates against
func (m *Manager) BaseURL() string {
	return m.baseURL
}

// Login exchanges a username and password for credentials. It never returns
// an error: invalid credentials and transport failures both yield false and
// leave the session untouched.
func (m *Manager) Login(ctx context.Context, username, password string) bool {
	creds, err := m.postCredentials(ctx, "/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		metrics.LoginTotal.WithLabelValues("failure").Inc()
		m.logger.Info("Login failed", "username", username, "error", err)
		return false
	}

	m.storeCredentials(ctx, creds)
	identity := m.fetchIdentity(ctx, creds.AccessToken)

	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()

	metrics.LoginTotal.WithLabelValues("success").Inc()
	m.logger.Info("Logged in", "identity", identity)
	return true
}

// Logout invalidates the refresh credential server-side on a best-effort
// basis and always clears the local session.
func (m *Manager) Logout(ctx context.Context) {
	refresh := m.refreshToken()

	body, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/logout", bytes.NewReader(body))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		m.setRequestID(req)
		if resp, err := m.client.Do(req); err != nil {
			m.logger.Debug("Logout request failed", "error", err)
		} else {
			drain(resp)
		}
	}

	m.clear(ctx)
	m.logger.Info("Logged out")
}

// Restore attempts to resume a persisted session once at startup. Any
// failure silently discards the stored refresh credential. Ready is closed
// when Restore returns.
func (m *Manager) Restore(ctx context.Context) {
	defer m.markReady()

	if m.store == nil {
		return
	}
	stored, ok, err := m.store.Get(ctx, domain.RefreshTokenKey)
	if err != nil {
		m.logger.Warn("Could not read stored refresh credential", "error", err)
		return
	}
	if !ok || stored == "" {
		return
	}

	creds, err := m.exchangeRefresh(ctx, stored, "startup")
	if err != nil {
		if ctx.Err() != nil {
			m.logger.Info("Session restore interrupted", "error", err)
			return
		}
		m.logger.Info("Stored session could not be restored", "error", err)
		m.clear(ctx)
		return
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = stored
	}

	m.storeCredentials(ctx, creds)
	identity := m.fetchIdentity(ctx, creds.AccessToken)

	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()

	m.logger.Info("Session restored", "identity", identity)
}

// Ready is closed once Restore has finished
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Loading reports whether the startup restore is still running
func (m *Manager) Loading() bool {
	select {
	case <-m.ready:
		return false
	default:
		return true
	}
}

// Do sends req with the current access credential. On 401 it refreshes the
// credential once and replays the request once, returning the replayed
// response. If no refresh credential exists, or the refresh fails, the
// original 401 response is returned (after clearing the session in the
// latter case). A refresh cut short by the caller's context leaves the
// session intact. Only transport failures of the request itself are errors.
//
// In cookie mode the refresh credential lives in the cookie jar, so a
// refresh is always attempted.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	getBody, err := bodyFactory(req)
	if err != nil {
		return nil, fmt.Errorf("session: failed to buffer request body: %w", err)
	}

	first, err := m.prepare(req, getBody, m.accessToken())
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(first)
	if err != nil {
		return nil, fmt.Errorf("session: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	refresh := m.refreshToken()
	if refresh == "" && !m.cookieMode {
		return resp, nil
	}

	creds, err := m.exchangeRefresh(req.Context(), refresh, "unauthorized")
	if err != nil {
		if req.Context().Err() != nil {
			m.logger.Debug("Refresh interrupted by caller", "error", err)
			return resp, nil
		}
		m.logger.Info("Refresh failed, clearing session", "error", err)
		m.clear(req.Context())
		return resp, nil
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refresh
	}
	m.storeCredentials(req.Context(), creds)

	retry, err := m.prepare(req, getBody, creds.AccessToken)
	if err != nil {
		return resp, nil
	}
	drain(resp)

	metrics.RetryTotal.Inc()
	resp, err = m.client.Do(retry)
	if err != nil {
		return nil, fmt.Errorf("session: retried request failed: %w", err)
	}
	return resp, nil
}

// Info reports the session state. The access expiry is read from the
// credential's claims when it is a JWT; it is not verified.
func (m *Manager) Info() domain.SessionInfo {
	m.mu.RLock()
	access, identity := m.access, m.identity
	m.mu.RUnlock()

	info := domain.SessionInfo{
		Authenticated: access != "" || (m.cookieMode && identity != ""),
		Identity:      identity,
		Loading:       m.Loading(),
	}
	if access != "" {
		info.AccessExpiresAt = tokenExpiry(access)
	}
	return info
}

// Identity returns the display name of the logged-in user, if any
func (m *Manager) Identity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

func (m *Manager) accessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

func (m *Manager) refreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresh
}

func (m *Manager) storeCredentials(ctx context.Context, creds credentials) {
	m.mu.Lock()
	m.access = creds.AccessToken
	if creds.RefreshToken != "" {
		m.refresh = creds.RefreshToken
	}
	refresh := m.refresh
	m.mu.Unlock()

	if m.store == nil || refresh == "" {
		return
	}
	if err := m.store.Set(ctx, domain.RefreshTokenKey, refresh); err != nil {
		m.logger.Warn("Could not persist refresh credential", "error", err)
	}
}

// clear destroys the whole session; calling it twice is harmless
func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.access, m.refresh, m.identity = "", "", ""
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.Delete(context.WithoutCancel(ctx), domain.RefreshTokenKey); err != nil {
		m.logger.Warn("Could not remove stored refresh credential", "error", err)
	}
}

func (m *Manager) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Manager) exchangeRefresh(ctx context.Context, refresh, trigger string) (credentials, error) {
	payload := map[string]string{}
	if refresh != "" {
		payload["refresh_token"] = refresh
	}
	creds, err := m.postCredentials(ctx, "/refresh", payload)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(trigger, "failure").Inc()
		return credentials{}, err
	}
	metrics.RefreshTotal.WithLabelValues(trigger, "success").Inc()
	return creds, nil
}

func (m *Manager) postCredentials(ctx context.Context, path string, payload any) (credentials, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return credentials{}, fmt.Errorf("session: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return credentials{}, fmt.Errorf("session: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.setRequestID(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return credentials{}, fmt.Errorf("session: %s failed: %w", path, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return credentials{}, fmt.Errorf("%w: %s returned status %d", errRejected, path, resp.StatusCode)
	}

	var creds credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil && !(m.cookieMode && errors.Is(err, io.EOF)) {
		return credentials{}, fmt.Errorf("session: failed to decode %s response: %w", path, err)
	}
	if creds.AccessToken == "" && !m.cookieMode {
		return credentials{}, fmt.Errorf("session: %s response has no access credential", path)
	}
	return creds, nil
}

// fetchIdentity returns the profile username, or "" when /me is unavailable
func (m *Manager) fetchIdentity(ctx context.Context, access string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/me", nil)
	if err != nil {
		return ""
	}
	m.authorize(req, access)
	m.setRequestID(req)

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("Profile request failed", "error", err)
		return ""
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var p profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return ""
	}
	return p.Username
}

func (m *Manager) prepare(req *http.Request, getBody func() (io.ReadCloser, error), access string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("session: failed to reset request body: %w", err)
		}
		out.Body = body
		out.GetBody = getBody
	}
	m.authorize(out, access)
	m.setRequestID(out)
	return out, nil
}

func (m *Manager) authorize(req *http.Request, access string) {
	if m.cookieMode || access == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+access)
}

func (m *Manager) setRequestID(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// bodyFactory returns a function producing fresh copies of the request
// body so the request can be sent twice.
func bodyFactory(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
