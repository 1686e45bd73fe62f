package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/internal/store"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": errMsg == ""}
	if data != nil {
		body["data"] = data
	}
	if errMsg != "" {
		body["error"] = errMsg
	}
	json.NewEncoder(w).Encode(body)
}

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	session := models.Session{AccessToken: "tok-1", TokenType: "Bearer", User: models.User{ID: 9, Email: "seeker@example.com"}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var req models.SignInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret123" {
			writeEnvelope(w, http.StatusUnauthorized, nil, "Invalid login credentials")
			return
		}
		writeEnvelope(w, http.StatusOK, session, "")
	})
	mux.HandleFunc("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, nil, "User already registered")
	})
	mux.HandleFunc("/api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			writeEnvelope(w, http.StatusOK, session, "")
			return
		}
		writeEnvelope(w, http.StatusOK, nil, "")
	})
	mux.HandleFunc("/api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, nil, "")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSignInStoresTokenAndNotifies(t *testing.T) {
	srv := newAuthServer(t)
	c := New(srv.URL)

	var events []store.AuthEvent
	unsub := c.OnAuthStateChange(func(e store.AuthEvent, _ *models.Session) { events = append(events, e) })

	session, err := c.SignIn(context.Background(), models.SignInRequest{Email: "seeker@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), session.User.ID)
	assert.Equal(t, "tok-1", c.Token())

	current, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "seeker@example.com", current.User.Email)

	require.NoError(t, c.SignOut(context.Background()))
	assert.Empty(t, c.Token())

	unsub()
	_, _ = c.SignIn(context.Background(), models.SignInRequest{Password: "secret123"})
	assert.Equal(t, []store.AuthEvent{store.EventSignedIn, store.EventSignedOut}, events)
}

func TestErrorEnvelopesMapToKinds(t *testing.T) {
	srv := newAuthServer(t)
	c := New(srv.URL)

	_, err := c.SignIn(context.Background(), models.SignInRequest{Email: "seeker@example.com", Password: "wrong"})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, "Invalid login credentials", err.Error())

	_, err = c.SignUp(context.Background(), models.SignUpRequest{Email: "seeker@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestGetSessionWithoutOrWithStaleToken(t *testing.T) {
	srv := newAuthServer(t)

	session, err := New(srv.URL).GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)

	c := New(srv.URL, WithToken("stale"))
	session, err = c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, c.Token())
}

func TestAuthStoreOverClient(t *testing.T) {
	srv := newAuthServer(t)
	c := New(srv.URL, WithToken("tok-1"))
	s := store.NewAuthStore(c, nil)
	defer s.Close()

	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.IsAuthenticated())

	require.NoError(t, s.SignOut(context.Background()))
	assert.Equal(t, store.StatusAnonymous, s.State().Status)
	assert.Nil(t, s.User())
}

func TestUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", WithToken("tok"))

	_, err := c.GetSession(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}
