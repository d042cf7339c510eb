package federated

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/startupvista/vista-go/pkg/api"
	"github.com/startupvista/vista-go/pkg/session"
)

// ErrNoPendingSignIn is returned when CompleteRegistration is called
// without a preceding federated sign-in that required role selection.
var ErrNoPendingSignIn = errors.New("no federated sign-in awaiting role selection")

// User-facing messages for the distinct sign-in failure classes. Every
// class is recoverable; none of them is fatal to the client.
const (
	msgDismissed   = "Sign-in was cancelled. Please try again."
	msgBlocked     = "Popup was blocked. Please allow popups and try again."
	msgNetwork     = "Network error. Please check your connection and try again."
	msgRateLimited = "Too many attempts. Please wait a moment and try again."
	msgGeneric     = "Sign-in failed. Please try again."
)

func dismissedError(err error) *session.AuthError {
	return session.NewAuthError(msgDismissed, true, err)
}

func blockedError(err error) *session.AuthError {
	return session.NewAuthError(msgBlocked, true, err)
}

// classifyError maps a provider or backend failure onto its user-facing
// message. Unrecognized failures fall through to the generic class.
func classifyError(err error) *session.AuthError {
	switch {
	case isRateLimited(err):
		return session.NewAuthError(msgRateLimited, true, err)
	case isNetworkError(err):
		return session.NewAuthError(msgNetwork, true, err)
	default:
		return session.NewAuthError(msgGeneric, true, err)
	}
}

func isRateLimited(err error) bool {
	if api.IsStatus(err, http.StatusTooManyRequests) {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func roleValidationError(role session.Role) *session.AuthError {
	if role == "" {
		return session.NewAuthError("Role selection is required", true, nil)
	}
	return session.NewAuthError(fmt.Sprintf("Role %q is not available", role), true, nil)
}
