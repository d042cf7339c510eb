package federated

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startupvista/vista-go/pkg/api"
	"github.com/startupvista/vista-go/pkg/session"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: Config{
				IssuerURL: "https://provider.example.com",
				ClientID:  "client-id",
				Scopes:    []string{"openid", "profile", "email"},
			},
			expectError: false,
		},
		{
			name: "missing client_id",
			config: Config{
				IssuerURL: "https://provider.example.com",
				Scopes:    []string{"openid"},
			},
			expectError: true,
			errorMsg:    "client_id is required",
		},
		{
			name: "missing issuer_url",
			config: Config{
				ClientID: "client-id",
				Scopes:   []string{"openid"},
			},
			expectError: true,
			errorMsg:    "issuer_url is required",
		},
		{
			name: "missing openid scope",
			config: Config{
				IssuerURL: "https://provider.example.com",
				ClientID:  "client-id",
				Scopes:    []string{"profile", "email"},
			},
			expectError: true,
			errorMsg:    "'openid' scope is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := (&Config{IssuerURL: "https://p", ClientID: "c"}).withDefaults()

	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	assert.Equal(t, defaultCallbackAddr, cfg.CallbackAddr)
	assert.Equal(t, defaultCallbackPath, cfg.CallbackPath)
	assert.Equal(t, defaultSignInTimeout, cfg.SignInTimeout)
	assert.NotNil(t, cfg.OpenBrowser)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "rate limited backend",
			err:     &api.StatusError{StatusCode: http.StatusTooManyRequests},
			message: msgRateLimited,
		},
		{
			name:    "network failure",
			err:     &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			message: msgNetwork,
		},
		{
			name:    "deadline",
			err:     context.DeadlineExceeded,
			message: msgNetwork,
		},
		{
			name:    "anything else",
			err:     errors.New("weird"),
			message: msgGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authErr := classifyError(tt.err)
			assert.Equal(t, tt.message, authErr.Message)
			assert.True(t, authErr.Recoverable, "every sign-in failure class is recoverable")
		})
	}
}

type fakeExchangeClient struct {
	completeReq  *api.CompleteSignupRequest
	completeSess *session.Session
	completeErr  error
}

func (f *fakeExchangeClient) ExchangeFederatedToken(ctx context.Context, idToken string) (*session.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeExchangeClient) CompleteFederatedSignup(ctx context.Context, req api.CompleteSignupRequest) (*session.Session, error) {
	f.completeReq = &req
	return f.completeSess, f.completeErr
}

func pendingBridge(client ExchangeClient) *Bridge {
	return &Bridge{
		client: client,
		log:    logrus.New().WithField("component", "federated"),
		pending: &session.PendingFederatedUser{
			Name:        "Ada",
			Email:       "ada@example.com",
			Picture:     "https://img",
			ProviderUID: "uid-1",
		},
		rawIDToken: "raw-id-token",
	}
}

func TestBridge_CompleteRegistration(t *testing.T) {
	t.Run("unreachable without pending sign-in", func(t *testing.T) {
		b := &Bridge{client: &fakeExchangeClient{}, log: logrus.New().WithField("component", "federated")}
		_, err := b.CompleteRegistration(context.Background(), session.RoleInvestor)
		assert.ErrorIs(t, err, ErrNoPendingSignIn)
	})

	t.Run("requires a selectable role", func(t *testing.T) {
		b := pendingBridge(&fakeExchangeClient{})

		_, err := b.CompleteRegistration(context.Background(), "")
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "Role selection is required", authErr.Message)

		_, err = b.CompleteRegistration(context.Background(), session.RoleAdmin)
		require.ErrorAs(t, err, &authErr)
		assert.True(t, authErr.Recoverable)
		assert.NotNil(t, b.Pending(), "pending state survives a validation failure")
	})

	t.Run("success establishes session and clears pending", func(t *testing.T) {
		user := &session.User{ID: "u1", Role: session.RoleInvestor, Provider: session.ProviderFederated}
		client := &fakeExchangeClient{
			completeSess: &session.Session{AccessToken: "at", RefreshToken: "rt", User: user},
		}
		b := pendingBridge(client)

		sess, err := b.CompleteRegistration(context.Background(), session.RoleInvestor)
		require.NoError(t, err)
		assert.Equal(t, session.RoleInvestor, sess.User.Role)

		require.NotNil(t, client.completeReq)
		assert.Equal(t, "raw-id-token", client.completeReq.IDToken)
		assert.Equal(t, session.RoleInvestor, client.completeReq.Role)
		assert.Equal(t, "Ada", client.completeReq.Name)
		assert.Equal(t, "ada@example.com", client.completeReq.Email)

		assert.Nil(t, b.Pending(), "pending state is destroyed on success")
	})

	t.Run("failure keeps pending state for retry", func(t *testing.T) {
		client := &fakeExchangeClient{
			completeErr: &api.StatusError{StatusCode: http.StatusBadRequest, Message: "Role already assigned"},
		}
		b := pendingBridge(client)

		_, err := b.CompleteRegistration(context.Background(), session.RoleStartup)
		var authErr *session.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "Role already assigned", authErr.Message)
		assert.True(t, authErr.Recoverable)
		assert.NotNil(t, b.Pending(), "pending state survives a backend failure")
	})
}

func TestBridge_Reset(t *testing.T) {
	b := pendingBridge(&fakeExchangeClient{})
	b.Reset()
	assert.Nil(t, b.Pending())

	require.NoError(t, b.SignOut(context.Background()))
}
