package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startupvista/vista-go/pkg/tokenstore"
)

// renewalBackend is a mock backend whose protected endpoint accepts only
// the current access token, and whose refresh endpoint rotates it.
type renewalBackend struct {
	mu             sync.Mutex
	currentToken   string
	validRefresh   string
	refreshCalls   int32
	protectedCalls int32
	refreshDelay   time.Duration
}

func (b *renewalBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/posts", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.protectedCalls, 1)
		b.mu.Lock()
		expect := "Bearer " + b.currentToken
		b.mu.Unlock()
		if r.Header.Get("Authorization") != expect {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, []Post{{ID: "p1", Title: "Seed round"}})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.refreshCalls, 1)
		if b.refreshDelay > 0 {
			time.Sleep(b.refreshDelay)
		}
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &req); err != nil || req.RefreshToken != b.validRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
			return
		}
		b.mu.Lock()
		b.currentToken = "renewed"
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, authResponse{Token: "renewed", RefreshToken: "rt-next", User: testUser()})
	})
	return mux
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func TestTransport_RefreshAndReplayOnce(t *testing.T) {
	backend := &renewalBackend{currentToken: "fresh", validRefresh: "rt-valid"}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := tokenstore.NewMemStore()
	store.Set(tokenstore.Credentials{AccessToken: "stale", RefreshToken: "rt-valid"})

	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	var refreshOutcomes []bool
	client.SetRefreshObserver(func(ok bool) { refreshOutcomes = append(refreshOutcomes, ok) })

	posts, err := client.Posts().List(context.Background(), "")
	require.NoError(t, err, "one 401 must complete after exactly one refresh-and-retry")
	assert.Len(t, posts, 1)

	assert.EqualValues(t, 1, atomic.LoadInt32(&backend.refreshCalls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&backend.protectedCalls), "original request plus one replay")
	assert.Equal(t, []bool{true}, refreshOutcomes)

	creds := store.Get()
	assert.Equal(t, "renewed", creds.AccessToken, "rotated tokens must be persisted")
	assert.Equal(t, "rt-next", creds.RefreshToken)
}

func TestTransport_FailedRefreshTearsDownSession(t *testing.T) {
	backend := &renewalBackend{currentToken: "fresh", validRefresh: "rt-valid"}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := tokenstore.NewMemStore()
	store.Set(tokenstore.Credentials{AccessToken: "stale", RefreshToken: "rt-bogus"})

	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	expired := false
	client.SetSessionExpiredHandler(func() { expired = true })

	_, err = client.Posts().List(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized), "the original 401 propagates, not the refresh error")

	assert.False(t, store.Get().Present(), "failed refresh clears the token store")
	assert.True(t, expired, "expiry handler must run")
}

func TestTransport_RetriesAtMostOnce(t *testing.T) {
	// The backend refuses even renewed tokens; the client must not loop.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			writeJSON(w, http.StatusOK, authResponse{Token: "renewed", RefreshToken: "rt", User: testUser()})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "nope"})
		}
	}))
	defer server.Close()

	store := tokenstore.NewMemStore()
	store.Set(tokenstore.Credentials{AccessToken: "stale", RefreshToken: "rt"})

	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	_, err = client.Posts().List(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestTransport_ConcurrentRefreshesCollapse(t *testing.T) {
	backend := &renewalBackend{
		currentToken: "fresh",
		validRefresh: "rt-valid",
		refreshDelay: 150 * time.Millisecond,
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	store := tokenstore.NewMemStore()
	store.Set(tokenstore.Credentials{AccessToken: "stale", RefreshToken: "rt-valid"})

	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Bypass the read cache so both goroutines hit the backend.
			sector := []string{"tech", "health"}[i]
			_, errs[i] = client.Posts().List(context.Background(), sector)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 1, atomic.LoadInt32(&backend.refreshCalls),
		"concurrent 401s must share one in-flight refresh")
}
