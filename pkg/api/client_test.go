package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startupvista/vista-go/pkg/session"
	"github.com/startupvista/vista-go/pkg/tokenstore"
)

func testUser() *session.User {
	return &session.User{
		ID:       "u1",
		Name:     "Ada",
		Email:    "a@b.com",
		Role:     session.RoleStartup,
		Provider: session.ProviderPassword,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestNewClient_Validation(t *testing.T) {
	store := tokenstore.NewMemStore()

	_, err := NewClient("", store)
	assert.Error(t, err)

	_, err = NewClient("not-a-url", store)
	assert.Error(t, err)

	_, err = NewClient("http://localhost:5000/api", nil)
	assert.Error(t, err)

	c, err := NewClient("http://localhost:5000/api/", store)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", c.baseURL.String())
}

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Email == "a@b.com" && req.Password == "secret" {
			writeJSON(w, http.StatusOK, authResponse{Token: "at", RefreshToken: "rt", User: testUser()})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "Invalid credentials"})
	}))
	defer server.Close()

	store := tokenstore.NewMemStore()
	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	t.Run("success persists tokens", func(t *testing.T) {
		sess, err := client.Login(context.Background(), "a@b.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, "at", sess.AccessToken)
		assert.Equal(t, "u1", sess.User.ID)

		creds := store.Get()
		assert.Equal(t, "at", creds.AccessToken)
		assert.Equal(t, "rt", creds.RefreshToken)
	})

	t.Run("failure surfaces backend message", func(t *testing.T) {
		store.Clear()
		_, err := client.Login(context.Background(), "a@b.com", "wrongpass")
		require.Error(t, err)

		se, ok := AsStatusError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
		assert.Equal(t, "Invalid credentials", se.Message)
		assert.False(t, store.Get().Present(), "failed login must not persist tokens")
	})
}

func TestClient_Verify_SendsBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/verify", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer stored-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": testUser()})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, tokenstore.NewMemStore())
	require.NoError(t, err)

	user, err := client.Verify(context.Background(), "stored-token")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = client.Verify(context.Background(), "other")
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClient_ExchangeFederatedToken_NewUserConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/firebase", r.URL.Path)
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"isNewUser": true,
			"message":   "Complete registration to continue",
		})
	}))
	defer server.Close()

	store := tokenstore.NewMemStore()
	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	_, err = client.ExchangeFederatedToken(context.Background(), "provider-id-token")
	require.Error(t, err)
	assert.True(t, IsNewUserConflict(err))
	assert.False(t, store.Get().Present(), "conflict must not establish a session")
}

func TestClient_LoginVerifyRoundTrip(t *testing.T) {
	// Simulates a page reload: login, then a fresh verify with the stored
	// token yields the same user identity.
	user := testUser()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			writeJSON(w, http.StatusOK, authResponse{Token: "at", RefreshToken: "rt", User: user})
		case "/auth/verify":
			require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	store := tokenstore.NewMemStore()
	client, err := NewClient(server.URL, store)
	require.NoError(t, err)

	sess, err := client.Login(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)

	verified, err := client.Verify(context.Background(), store.Get().AccessToken)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, verified.ID)
	assert.Equal(t, sess.User.Role, verified.Role)
}
