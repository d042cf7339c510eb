package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/startupvista/vista-go/pkg/tokenstore"
)

// VerifyClient is the slice of the API client the verifier needs.
type VerifyClient interface {
	Verify(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Verifier establishes whether a stored credential still represents a valid
// session, exactly once at application start.
type Verifier struct {
	store  tokenstore.Store
	client VerifyClient
	log    *logrus.Entry
}

// NewVerifier creates a verifier over the given store and client.
func NewVerifier(store tokenstore.Store, client VerifyClient, logger *logrus.Logger) *Verifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Verifier{
		store:  store,
		client: client,
		log:    logger.WithField("component", "session"),
	}
}

// Establish resolves the stored credentials into a session.
//
// An access token is validated against the backend; failing that, a refresh
// token is exchanged for a new session. Any failure clears the store and
// resolves to unauthenticated (nil session, nil error): a stale credential
// is an expected start-up condition, not an application error. With no
// stored credentials it resolves immediately without a network call.
func (v *Verifier) Establish(ctx context.Context) (*Session, error) {
	creds := v.store.Get()

	if creds.AccessToken != "" {
		user, err := v.client.Verify(ctx, creds.AccessToken)
		if err == nil {
			v.log.WithField("user_id", user.ID).Debug("stored access token verified")
			return &Session{
				AccessToken:  creds.AccessToken,
				RefreshToken: creds.RefreshToken,
				User:         user,
			}, nil
		}
		v.log.WithError(err).Info("stored access token rejected, clearing session")
		if cerr := v.store.Clear(); cerr != nil {
			return nil, fmt.Errorf("failed to clear stale credentials: %w", cerr)
		}
		return nil, nil
	}

	if creds.RefreshToken != "" {
		sess, err := v.client.Refresh(ctx, creds.RefreshToken)
		if err == nil {
			v.log.WithField("user_id", sess.User.ID).Debug("session renewed from refresh token")
			return sess, nil
		}
		v.log.WithError(err).Info("refresh token rejected, clearing session")
		if cerr := v.store.Clear(); cerr != nil {
			return nil, fmt.Errorf("failed to clear stale credentials: %w", cerr)
		}
		return nil, nil
	}

	return nil, nil
}
