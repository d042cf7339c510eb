package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/startupvista/vista-go/pkg/session"
	"github.com/startupvista/vista-go/pkg/tokenstore"
)

const defaultTimeout = 30 * time.Second

// Client is the StartupVista REST client.
type Client struct {
	baseURL *url.URL
	store   tokenstore.Store
	log     *logrus.Entry

	// plain performs auth-endpoint requests without transparent renewal.
	plain *http.Client
	// authed injects the stored bearer token and renews on 401.
	authed *http.Client

	onSessionExpired func()
	onRefresh        func(ok bool)

	posts    *PostsClient
	startups *StartupsClient
	profile  *ProfileClient
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    *logrus.Logger
}

// WithTransport replaces the base HTTP transport (mainly for tests).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithLogger sets the logger used by the client.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// NewClient creates a client for the backend at baseURL, persisting tokens
// in store.
func NewClient(baseURL string, store tokenstore.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", baseURL)
	}

	options := &clientOptions{
		transport: http.DefaultTransport,
		timeout:   defaultTimeout,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		baseURL: u,
		store:   store,
		log:     options.logger.WithField("component", "api"),
	}

	base := otelhttp.NewTransport(options.transport)
	c.plain = &http.Client{Transport: base, Timeout: options.timeout}
	c.authed = &http.Client{
		Transport: &renewTransport{
			base:    base,
			store:   store,
			refresh: c.refreshForTransport,
			log:     c.log,
		},
		Timeout: options.timeout,
	}

	c.posts = newPostsClient(c)
	c.startups = newStartupsClient(c)
	c.profile = newProfileClient(c)
	return c, nil
}

// SetSessionExpiredHandler registers fn to run when a transparent refresh
// fails and the session is torn down. At most one handler is held.
func (c *Client) SetSessionExpiredHandler(fn func()) {
	c.onSessionExpired = fn
}

// SetRefreshObserver registers fn to observe refresh outcomes.
func (c *Client) SetRefreshObserver(fn func(ok bool)) {
	c.onRefresh = fn
}

// authResponse is the session payload returned by every endpoint that
// establishes or renews a session.
type authResponse struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	User         *session.User `json:"user"`
}

func (r *authResponse) session() *session.Session {
	return &session.Session{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the payload for password-based registration.
type RegisterRequest struct {
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Role     session.Role `json:"role"`
}

// CompleteSignupRequest finishes a deferred federated registration.
type CompleteSignupRequest struct {
	IDToken string       `json:"idToken"`
	Role    session.Role `json:"role"`
	Name    string       `json:"name,omitempty"`
	Email   string       `json:"email,omitempty"`
	Picture string       `json:"picture,omitempty"`
}

// Login exchanges credentials for a session and persists its tokens.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	var out authResponse
	err := c.do(ctx, c.plain, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out, nil)
	if err != nil {
		return nil, err
	}
	return c.persist(&out)
}

// Register creates an account and establishes a session, like Login.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*session.Session, error) {
	var out authResponse
	if err := c.do(ctx, c.plain, http.MethodPost, "/auth/register", req, &out, nil); err != nil {
		return nil, err
	}
	return c.persist(&out)
}

// Verify validates a stored access token and returns the session's user.
func (c *Client) Verify(ctx context.Context, accessToken string) (*session.User, error) {
	var out struct {
		User *session.User `json:"user"`
	}
	header := http.Header{"Authorization": {"Bearer " + accessToken}}
	if err := c.do(ctx, c.plain, http.MethodGet, "/auth/verify", nil, &out, header); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Refresh exchanges a refresh token for a new session and persists it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var out authResponse
	if err := c.do(ctx, c.plain, http.MethodPost, "/auth/refresh", body, &out, nil); err != nil {
		return nil, err
	}
	return c.persist(&out)
}

// ExchangeFederatedToken trades a verified provider ID token for a session.
// A 409 isNewUser response surfaces as an error satisfying IsNewUserConflict
// and establishes no session.
func (c *Client) ExchangeFederatedToken(ctx context.Context, idToken string) (*session.Session, error) {
	body := map[string]string{"idToken": idToken}
	var out authResponse
	if err := c.do(ctx, c.plain, http.MethodPost, "/auth/firebase", body, &out, nil); err != nil {
		return nil, err
	}
	return c.persist(&out)
}

// CompleteFederatedSignup finishes a deferred federated registration with
// the chosen role and establishes the session.
func (c *Client) CompleteFederatedSignup(ctx context.Context, req CompleteSignupRequest) (*session.Session, error) {
	var out authResponse
	if err := c.do(ctx, c.plain, http.MethodPost, "/auth/complete-firebase-signup", req, &out, nil); err != nil {
		return nil, err
	}
	return c.persist(&out)
}

// UpdateRole sets the authenticated user's role. Authorized; renews on 401.
func (c *Client) UpdateRole(ctx context.Context, role session.Role) (*session.User, error) {
	var out struct {
		User *session.User `json:"user"`
	}
	body := map[string]string{"role": string(role)}
	if err := c.do(ctx, c.authed, http.MethodPatch, "/auth/update-role", body, &out, nil); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Logout invalidates the server-side session. Best-effort by contract; the
// caller clears local state regardless of the result.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, c.authed, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// persist writes the session's tokens to the store before returning it.
// A session exists iff the store holds its tokens.
func (c *Client) persist(resp *authResponse) (*session.Session, error) {
	sess := resp.session()
	creds := tokenstore.Credentials{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
	}
	if err := c.store.Set(creds); err != nil {
		return nil, fmt.Errorf("failed to persist session tokens: %w", err)
	}
	return sess, nil
}

// refreshForTransport backs the renewing transport. A failed refresh is a
// full session teardown: the store is cleared and the expiry handler runs.
func (c *Client) refreshForTransport(ctx context.Context, refreshToken string) (string, error) {
	sess, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		c.store.Clear()
		if c.onRefresh != nil {
			c.onRefresh(false)
		}
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return "", err
	}
	if c.onRefresh != nil {
		c.onRefresh(true)
	}
	return sess.AccessToken, nil
}

// do executes one JSON request/response exchange against the backend.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out interface{}, header http.Header) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		var body errorBody
		if jsonErr := json.Unmarshal(data, &body); jsonErr == nil {
			se.Message = body.Message
			if se.Message == "" {
				se.Message = body.Error
			}
			se.IsNewUser = body.IsNewUser
		}
	}
	return se
}
