package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/startupvista/vista-go/pkg/tokenstore"
)

// renewTransport injects the stored access token as a bearer credential and
// performs the single transparent refresh-and-replay on 401.
//
// The replay goes straight to the base transport, so each request is retried
// at most once by construction. Concurrent failing requests share one
// in-flight refresh through the singleflight group.
type renewTransport struct {
	base    http.RoundTripper
	store   tokenstore.Store
	refresh func(ctx context.Context, refreshToken string) (string, error)
	group   singleflight.Group
	log     *logrus.Entry
}

func (t *renewTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	authed := req.Clone(req.Context())
	if authed.Header.Get("Authorization") == "" {
		if creds := t.store.Get(); creds.AccessToken != "" {
			authed.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		}
	}

	resp, err := t.base.RoundTrip(authed)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	refreshToken := t.store.Get().RefreshToken
	if refreshToken == "" {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// Body already consumed and not replayable.
		return resp, nil
	}

	token, rerr, _ := t.group.Do("refresh", func() (interface{}, error) {
		return t.refresh(req.Context(), refreshToken)
	})
	if rerr != nil {
		// The refresh failed; the original 401 is the caller's error.
		t.log.WithError(rerr).Warn("token refresh failed, propagating original 401")
		return resp, nil
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return resp, nil
		}
		retry.Body = body
	}
	resp.Body.Close()
	retry.Header.Set("Authorization", "Bearer "+token.(string))

	t.log.Debug("replaying request after token refresh")
	return t.base.RoundTrip(retry)
}
