package federated

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/startupvista/vista-go/pkg/api"
	"github.com/startupvista/vista-go/pkg/session"
)

const (
	defaultCallbackAddr  = "127.0.0.1:8484"
	defaultCallbackPath  = "/auth/callback"
	defaultSignInTimeout = 3 * time.Minute
)

// Config holds the provider settings for federated sign-in.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// CallbackAddr is the loopback address the callback server listens on.
	// It must match the redirect URL registered with the provider.
	CallbackAddr string
	CallbackPath string

	// SignInTimeout bounds how long the flow waits for the user to finish
	// in the browser before treating the attempt as dismissed.
	SignInTimeout time.Duration

	// OpenBrowser overrides how the authorization URL is opened, mainly
	// for tests.
	OpenBrowser func(url string) error
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	hasOpenID := false
	for _, scope := range c.Scopes {
		if scope == oidc.ScopeOpenID {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if len(out.Scopes) == 0 {
		out.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if out.CallbackAddr == "" {
		out.CallbackAddr = defaultCallbackAddr
	}
	if out.CallbackPath == "" {
		out.CallbackPath = defaultCallbackPath
	}
	if out.SignInTimeout <= 0 {
		out.SignInTimeout = defaultSignInTimeout
	}
	if out.OpenBrowser == nil {
		out.OpenBrowser = openBrowser
	}
	return out
}

// ExchangeClient is the slice of the API client the bridge needs.
type ExchangeClient interface {
	ExchangeFederatedToken(ctx context.Context, idToken string) (*session.Session, error)
	CompleteFederatedSignup(ctx context.Context, req api.CompleteSignupRequest) (*session.Session, error)
}

// Bridge drives the browser-based federated sign-in flow and the deferred
// role-selection branch for first-time users.
type Bridge struct {
	cfg      Config
	client   ExchangeClient
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
	log      *logrus.Entry

	mu            sync.Mutex
	pending       *session.PendingFederatedUser
	providerToken *oauth2.Token
	rawIDToken    string
}

// NewBridge discovers the OIDC provider and prepares the sign-in flow.
func NewBridge(ctx context.Context, cfg Config, client ExchangeClient, logger *logrus.Logger) (*Bridge, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid federated config: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &Bridge{
		cfg:      cfg,
		client:   client,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  "http://" + cfg.CallbackAddr + cfg.CallbackPath,
			Scopes:       cfg.Scopes,
		},
		log: logger.WithField("component", "federated"),
	}, nil
}

// SignInResult is the outcome of a completed provider round-trip: either an
// established session, or a pending user that must pick a role first.
type SignInResult struct {
	Session *session.Session
	Pending *session.PendingFederatedUser
}

// SignIn opens the system browser on the provider's authorization URL,
// waits for the loopback callback, verifies the ID token, and exchanges it
// with the backend.
//
// Dismissing the browser flow, a blocked browser launch, network failures,
// and rate limiting each surface as a distinct recoverable AuthError with
// no partial state left behind.
func (b *Bridge) SignIn(ctx context.Context) (*SignInResult, error) {
	state := uuid.NewString()

	listener, err := net.Listen("tcp", b.cfg.CallbackAddr)
	if err != nil {
		return nil, blockedError(fmt.Errorf("failed to start callback listener: %w", err))
	}

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	router := mux.NewRouter()
	router.HandleFunc(b.cfg.CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if errCode := q.Get("error"); errCode != "" {
			writeCallbackPage(w, "Sign-in was not completed. You can close this window.")
			if errCode == "access_denied" {
				results <- callback{err: dismissedError(fmt.Errorf("provider returned %s", errCode))}
			} else {
				results <- callback{err: classifyError(fmt.Errorf("provider returned %s: %s", errCode, q.Get("error_description")))}
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}
		writeCallbackPage(w, "Signed in. You can close this window and return to StartupVista.")
		results <- callback{code: code}
	}).Methods(http.MethodGet)

	server := &http.Server{Handler: router}
	go server.Serve(listener)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	authURL := b.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	if err := b.cfg.OpenBrowser(authURL); err != nil {
		return nil, blockedError(err)
	}
	b.log.Debug("waiting for provider callback")

	var code string
	select {
	case <-ctx.Done():
		return nil, dismissedError(ctx.Err())
	case <-time.After(b.cfg.SignInTimeout):
		return nil, dismissedError(fmt.Errorf("no callback within %s", b.cfg.SignInTimeout))
	case cb := <-results:
		if cb.err != nil {
			return nil, cb.err
		}
		code = cb.code
	}

	token, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyError(fmt.Errorf("code exchange failed: %w", err))
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, classifyError(fmt.Errorf("provider response missing id_token"))
	}

	idToken, err := b.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, classifyError(fmt.Errorf("ID token verification failed: %w", err))
	}

	var claims struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, classifyError(fmt.Errorf("failed to parse claims: %w", err))
	}

	sess, err := b.client.ExchangeFederatedToken(ctx, rawIDToken)
	if err != nil {
		if api.IsNewUserConflict(err) {
			pending := &session.PendingFederatedUser{
				Name:        claims.Name,
				Email:       claims.Email,
				Picture:     claims.Picture,
				ProviderUID: idToken.Subject,
			}
			b.mu.Lock()
			b.pending = pending
			b.providerToken = token
			b.rawIDToken = rawIDToken
			b.mu.Unlock()
			b.log.WithField("email", claims.Email).Info("new federated identity, role selection required")
			return &SignInResult{Pending: pending}, nil
		}
		return nil, classifyError(err)
	}

	b.Reset()
	b.log.WithField("user_id", sess.User.ID).Info("federated sign-in complete")
	return &SignInResult{Session: sess}, nil
}

// CompleteRegistration finishes a deferred federated sign-up with the
// chosen role. Valid only while a pending user exists; a failure keeps the
// pending state so the user can retry.
func (b *Bridge) CompleteRegistration(ctx context.Context, role session.Role) (*session.Session, error) {
	if role == "" || !role.Selectable() {
		return nil, roleValidationError(role)
	}

	b.mu.Lock()
	pending := b.pending
	b.mu.Unlock()
	if pending == nil {
		return nil, ErrNoPendingSignIn
	}

	idToken, err := b.freshIDToken(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	sess, err := b.client.CompleteFederatedSignup(ctx, api.CompleteSignupRequest{
		IDToken: idToken,
		Role:    role,
		Name:    pending.Name,
		Email:   pending.Email,
		Picture: pending.Picture,
	})
	if err != nil {
		if se, ok := api.AsStatusError(err); ok && se.Message != "" {
			return nil, session.NewAuthError(se.Message, true, err)
		}
		return nil, session.NewAuthError("Failed to complete registration. Please try again.", true, err)
	}

	b.Reset()
	b.log.WithFields(logrus.Fields{"user_id": sess.User.ID, "role": role}).Info("federated registration complete")
	return sess, nil
}

// freshIDToken re-acquires an ID token from the provider, forcing a renewal
// rather than reusing the cached token when a refresh token is available.
func (b *Bridge) freshIDToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	cached := b.providerToken
	raw := b.rawIDToken
	b.mu.Unlock()

	if cached != nil && cached.RefreshToken != "" {
		expired := *cached
		expired.Expiry = time.Now().Add(-time.Minute)
		renewed, err := b.oauth.TokenSource(ctx, &expired).Token()
		if err == nil {
			if rawID, ok := renewed.Extra("id_token").(string); ok && rawID != "" {
				b.mu.Lock()
				b.providerToken = renewed
				b.rawIDToken = rawID
				b.mu.Unlock()
				return rawID, nil
			}
		} else {
			b.log.WithError(err).Warn("provider token renewal failed, reusing current ID token")
		}
	}

	if raw == "" {
		return "", fmt.Errorf("no provider ID token available")
	}
	return raw, nil
}

// Pending returns a copy of the pending federated user, if any.
func (b *Bridge) Pending() *session.PendingFederatedUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return nil
	}
	copied := *b.pending
	return &copied
}

// SignOut discards all provider-side state held by the bridge. The OIDC
// flow keeps no server-side session on the client's behalf, so this is a
// local operation.
func (b *Bridge) SignOut(ctx context.Context) error {
	b.Reset()
	return nil
}

// Reset drops any pending user and cached provider tokens.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.providerToken = nil
	b.rawIDToken = ""
}

func writeCallbackPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", message)
}

// RedirectURL returns the redirect URL the provider must have registered.
func (b *Bridge) RedirectURL() string {
	return b.oauth.RedirectURL
}
