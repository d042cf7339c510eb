package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/startupvista/vista-go/pkg/api"
	"github.com/startupvista/vista-go/pkg/federated"
	"github.com/startupvista/vista-go/pkg/session"
	"github.com/startupvista/vista-go/pkg/tokenstore"
)

// ErrOperationInProgress is returned when an identity operation starts
// while another one is still running. The UI must not allow overlapping
// attempts; this is the backstop.
var ErrOperationInProgress = errors.New("another authentication operation is in progress")

// ErrNotAuthenticated is returned by operations that require a session.
var ErrNotAuthenticated = errors.New("no authenticated user")

const sessionExpiredMessage = "Your session has expired. Please sign in again."

// Backend is the slice of the API client the facade drives.
type Backend interface {
	Login(ctx context.Context, email, password string) (*session.Session, error)
	Register(ctx context.Context, req api.RegisterRequest) (*session.Session, error)
	Verify(ctx context.Context, accessToken string) (*session.User, error)
	Refresh(ctx context.Context, refreshToken string) (*session.Session, error)
	UpdateRole(ctx context.Context, role session.Role) (*session.User, error)
	Logout(ctx context.Context) error
	SetSessionExpiredHandler(fn func())
	SetRefreshObserver(fn func(ok bool))
}

// FederatedBridge is the slice of the federated sign-in bridge the facade
// drives. Nil when federated sign-in is not configured.
type FederatedBridge interface {
	SignIn(ctx context.Context) (*federated.SignInResult, error)
	CompleteRegistration(ctx context.Context, role session.Role) (*session.Session, error)
	SignOut(ctx context.Context) error
	Reset()
}

// credentialWatcher is implemented by stores that can observe external
// changes to the persisted credentials (tokenstore.FileStore).
type credentialWatcher interface {
	Watch(ctx context.Context, fn func(tokenstore.Credentials)) (func(), error)
}

// Service owns the client-held authentication state.
type Service struct {
	backend Backend
	store   tokenstore.Store
	bridge  FederatedBridge
	logger  *logrus.Logger
	log     *logrus.Entry
	metrics *metrics

	mu      sync.Mutex
	state   session.State
	user    *session.User
	pending *session.PendingFederatedUser
	authErr *session.AuthError
	busy    bool

	subs      map[int]func(session.Snapshot)
	nextSubID int

	keepalive  time.Duration
	cron       *cron.Cron
	watchCreds bool
	stopWatch  func()
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithFederatedBridge enables federated sign-in through bridge.
func WithFederatedBridge(bridge FederatedBridge) ServiceOption {
	return func(s *Service) { s.bridge = bridge }
}

// WithKeepalive re-verifies the session on the given interval, renewing it
// when the access token has gone stale. Useful for long-running clients.
func WithKeepalive(interval time.Duration) ServiceOption {
	return func(s *Service) { s.keepalive = interval }
}

// WithMetrics exports operation counters to reg.
func WithMetrics(reg prometheus.Registerer) ServiceOption {
	return func(s *Service) { s.metrics = newMetrics(reg) }
}

// WithCredentialWatch follows external changes to the credentials file, so
// a logout in another process is observed here too. Requires a store that
// supports watching; otherwise it is a no-op.
func WithCredentialWatch() ServiceOption {
	return func(s *Service) { s.watchCreds = true }
}

// NewService creates the facade. Call Start to run session verification.
func NewService(backend Backend, store tokenstore.Store, logger *logrus.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		backend: backend,
		store:   store,
		logger:  logger,
		log:     logger.WithField("component", "auth"),
		state:   session.StateUnknown,
		subs:    make(map[int]func(session.Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil)
	}

	backend.SetSessionExpiredHandler(s.handleSessionExpired)
	backend.SetRefreshObserver(s.metrics.refresh)
	return s
}

// Start runs the one-time start-up verification and begins the optional
// keepalive and credential-watch loops.
func (s *Service) Start(ctx context.Context) error {
	s.setState(func() {
		s.state = session.StateVerifying
	})

	verifier := session.NewVerifier(s.store, s.backend, s.logger)
	sess, err := verifier.Establish(ctx)

	s.setState(func() {
		if sess != nil {
			s.state = session.StateAuthenticated
			s.user = sess.User
		} else {
			s.state = session.StateUnauthenticated
			s.user = nil
			if err != nil {
				s.authErr = session.NewAuthError(sessionExpiredMessage, true, err)
			}
		}
	})

	if s.keepalive > 0 {
		s.cron = cron.New()
		if _, cerr := s.cron.AddFunc(fmt.Sprintf("@every %s", s.keepalive), func() {
			s.keepaliveCheck(context.Background())
		}); cerr != nil {
			return fmt.Errorf("failed to schedule keepalive: %w", cerr)
		}
		s.cron.Start()
	}

	if s.watchCreds {
		if watcher, ok := s.store.(credentialWatcher); ok {
			stop, werr := watcher.Watch(ctx, s.handleExternalCredentials)
			if werr != nil {
				s.log.WithError(werr).Warn("credential watch unavailable")
			} else {
				s.stopWatch = stop
			}
		}
	}

	return err
}

// Stop tears down the background loops. It does not touch session state.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.stopWatch != nil {
		s.stopWatch()
	}
}

// Snapshot returns a point-in-time copy of the auth state.
func (s *Service) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() session.Snapshot {
	snap := session.Snapshot{State: s.state, Err: s.authErr}
	if s.user != nil {
		user := *s.user
		snap.User = &user
	}
	if s.pending != nil {
		pending := *s.pending
		snap.Pending = &pending
	}
	return snap
}

// Subscribe registers fn to receive every state change and returns the
// unsubscribe handle. fn runs on the goroutine that caused the change.
func (s *Service) Subscribe(fn func(session.Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// setState applies mutate under the lock and notifies subscribers after
// releasing it.
func (s *Service) setState(mutate func()) {
	s.mu.Lock()
	mutate()
	snap := s.snapshotLocked()
	subs := make([]func(session.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Service) beginOp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrOperationInProgress
	}
	s.busy = true
	return nil
}

func (s *Service) endOp() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Loading reports whether an identity operation is in flight.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Login authenticates with email and password. On failure the recoverable
// AuthError is both recorded on the snapshot and returned, so callers can
// keep their form open.
func (s *Service) Login(ctx context.Context, email, password string) (*session.User, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil, s.failOp("login", session.NewAuthError("Email and password are required", true, nil))
	}
	if err := s.beginOp(); err != nil {
		return nil, err
	}
	defer s.endOp()

	sess, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return nil, s.failOp("login", s.authError(err, "Login failed"))
	}

	s.succeedOp("login", sess.User)
	return s.Snapshot().User, nil
}

// Register creates an account; success is equivalent to login.
func (s *Service) Register(ctx context.Context, req api.RegisterRequest) (*session.User, error) {
	if !req.Role.Valid() {
		return nil, s.failOp("register", session.NewAuthError("A valid role is required", true, nil))
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		return nil, s.failOp("register", session.NewAuthError("Email and password are required", true, nil))
	}
	if err := s.beginOp(); err != nil {
		return nil, err
	}
	defer s.endOp()

	sess, err := s.backend.Register(ctx, req)
	if err != nil {
		return nil, s.failOp("register", s.authError(err, "Registration failed"))
	}

	s.succeedOp("register", sess.User)
	return s.Snapshot().User, nil
}

// SignInWithFederatedProvider runs the interactive provider flow. The
// returned snapshot is either authenticated or parked in
// RoleSelectionRequired with the pending user populated.
func (s *Service) SignInWithFederatedProvider(ctx context.Context) (session.Snapshot, error) {
	if s.bridge == nil {
		return s.Snapshot(), errors.New("federated sign-in is not configured")
	}
	if err := s.beginOp(); err != nil {
		return s.Snapshot(), err
	}
	defer s.endOp()

	result, err := s.bridge.SignIn(ctx)
	if err != nil {
		s.failOp("federated_sign_in", s.authError(err, "Sign-in failed. Please try again."))
		return s.Snapshot(), err
	}

	if result.Pending != nil {
		s.metrics.operation("federated_sign_in", nil)
		s.setState(func() {
			s.state = session.StateRoleSelectionRequired
			s.user = nil
			s.pending = result.Pending
			s.authErr = nil
		})
		return s.Snapshot(), nil
	}

	s.succeedOp("federated_sign_in", result.Session.User)
	return s.Snapshot(), nil
}

// CompleteRegistration finishes a deferred federated sign-up with the
// chosen role. Only valid from RoleSelectionRequired; a failure keeps that
// state so the user can retry.
func (s *Service) CompleteRegistration(ctx context.Context, role session.Role) (*session.User, error) {
	s.mu.Lock()
	ready := s.state == session.StateRoleSelectionRequired
	s.mu.Unlock()
	if !ready || s.bridge == nil {
		return nil, federated.ErrNoPendingSignIn
	}
	if err := s.beginOp(); err != nil {
		return nil, err
	}
	defer s.endOp()

	sess, err := s.bridge.CompleteRegistration(ctx, role)
	if err != nil {
		// Pending state is preserved for retry.
		authErr := s.authError(err, "Failed to complete registration. Please try again.")
		s.metrics.operation("complete_registration", err)
		s.setState(func() { s.authErr = authErr })
		return nil, authErr
	}

	s.succeedOp("complete_registration", sess.User)
	return s.Snapshot().User, nil
}

// UpdateRole sets the role of an authenticated user whose role is still
// unset. The in-memory user is updated in place; no re-login happens.
func (s *Service) UpdateRole(ctx context.Context, role session.Role) (*session.User, error) {
	if !role.Valid() {
		return nil, session.NewAuthError("A valid role is required", true, nil)
	}
	s.mu.Lock()
	current := s.user
	s.mu.Unlock()
	if current == nil {
		return nil, ErrNotAuthenticated
	}
	if current.Role != "" {
		return nil, fmt.Errorf("role is already set to %q", current.Role)
	}
	if err := s.beginOp(); err != nil {
		return nil, err
	}
	defer s.endOp()

	updated, err := s.backend.UpdateRole(ctx, role)
	if err != nil {
		return nil, s.failOp("update_role", s.authError(err, "Failed to update role"))
	}

	s.metrics.operation("update_role", nil)
	s.setState(func() {
		if updated != nil {
			s.user = updated
		} else if s.user != nil {
			s.user.Role = role
		}
		s.authErr = nil
	})
	return s.Snapshot().User, nil
}

// Logout is best-effort: federated sign-out when applicable, then backend
// logout, then an unconditional local teardown. The client never stays in
// an authenticated-looking state, whatever the network does.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.beginOp(); err != nil {
		return err
	}
	defer s.endOp()

	s.mu.Lock()
	user := s.user
	s.mu.Unlock()

	if user != nil && user.Provider == session.ProviderFederated && s.bridge != nil {
		if err := s.bridge.SignOut(ctx); err != nil {
			s.log.WithError(err).Warn("federated sign-out failed")
		}
	}
	if err := s.backend.Logout(ctx); err != nil {
		s.log.WithError(err).Warn("backend logout failed")
	}
	if err := s.store.Clear(); err != nil {
		s.log.WithError(err).Error("failed to clear token store")
	}
	if s.bridge != nil {
		s.bridge.Reset()
	}

	s.metrics.operation("logout", nil)
	s.setState(func() {
		s.state = session.StateUnauthenticated
		s.user = nil
		s.pending = nil
		s.authErr = nil
	})
	return nil
}

// ClearError removes the recorded AuthError. Errors never expire on their
// own; the consumer decides when they are dealt with.
func (s *Service) ClearError() {
	s.setState(func() { s.authErr = nil })
}

// failOp records err on the snapshot and returns it.
func (s *Service) failOp(op string, err *session.AuthError) error {
	s.metrics.operation(op, err)
	s.setState(func() { s.authErr = err })
	return err
}

// succeedOp transitions to authenticated with user.
func (s *Service) succeedOp(op string, user *session.User) {
	s.metrics.operation(op, nil)
	s.setState(func() {
		s.state = session.StateAuthenticated
		s.user = user
		s.pending = nil
		s.authErr = nil
	})
}

// authError coerces err into a session.AuthError, preferring the backend's
// message when one exists.
func (s *Service) authError(err error, fallback string) *session.AuthError {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	if se, ok := api.AsStatusError(err); ok && se.Message != "" {
		return session.NewAuthError(se.Message, true, err)
	}
	return session.NewAuthError(fallback, true, err)
}

// handleSessionExpired runs when a transparent refresh fails; the token
// store is already cleared by then.
func (s *Service) handleSessionExpired() {
	s.log.Info("session expired")
	s.setState(func() {
		s.state = session.StateUnauthenticated
		s.user = nil
		s.pending = nil
		s.authErr = session.NewAuthError(sessionExpiredMessage, true, nil)
	})
}

// handleExternalCredentials reacts to credential changes made by another
// process sharing the same store.
func (s *Service) handleExternalCredentials(creds tokenstore.Credentials) {
	s.mu.Lock()
	authenticated := s.state == session.StateAuthenticated
	s.mu.Unlock()

	if !creds.Present() && authenticated {
		s.log.Info("credentials removed externally, dropping session")
		s.setState(func() {
			s.state = session.StateUnauthenticated
			s.user = nil
			s.pending = nil
		})
	}
}

// keepaliveCheck re-verifies the current session and renews it when the
// access token has gone stale.
func (s *Service) keepaliveCheck(ctx context.Context) {
	s.mu.Lock()
	authenticated := s.state == session.StateAuthenticated
	s.mu.Unlock()
	if !authenticated {
		return
	}

	creds := s.store.Get()
	if creds.AccessToken == "" {
		return
	}

	user, err := s.backend.Verify(ctx, creds.AccessToken)
	if err == nil {
		s.setState(func() { s.user = user })
		return
	}

	if creds.RefreshToken != "" {
		if sess, rerr := s.backend.Refresh(ctx, creds.RefreshToken); rerr == nil {
			s.setState(func() { s.user = sess.User })
			return
		}
	}

	s.log.Debug("keepalive verification failed")
	s.store.Clear()
	s.handleSessionExpired()
}
