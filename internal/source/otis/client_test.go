package otis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_syncer/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(srv *httptest.Server, username, password string) *Client {
	return NewClient(ClientConfig{
		BaseURL:  srv.URL + "/api/v1",
		AuthURL:  srv.URL + "/api/v1/rest-auth/login/",
		Username: username,
		Password: password,
		Timeout:  5 * time.Second,
	}, testLogger())
}

func TestClient_FetchSendsTokenAndNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/rest-auth/login/":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "user", r.PostForm.Get("username"))
			assert.Equal(t, "secret", r.PostForm.Get("password"))
			_, _ = w.Write([]byte(`{"key":"abc"}`))
		case "/api/v1/listings/":
			assert.Equal(t, "Token abc", r.Header.Get("Authorization"))
			assert.Equal(t, "true", r.URL.Query().Get("app-nocache"))
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			_, _ = w.Write([]byte(`{"count":0,"results":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv, "user", "secret")

	body, err := client.Fetch(context.Background(), "listings", map[string][]string{"page": {"2"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"results":[]}`, string(body))
}

func TestClient_RefreshesTokenOnceOn401(t *testing.T) {
	var logins, calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			n := logins.Add(1)
			if n == 1 {
				_, _ = w.Write([]byte(`{"key":"stale"}`))
				return
			}
			_, _ = w.Write([]byte(`{"key":"fresh"}`))
			return
		}

		calls.Add(1)
		if r.Header.Get("Authorization") != "Token fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid token."}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(srv, "user", "secret")

	body, err := client.Fetch(context.Background(), "listings", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(2), logins.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_SecondAuthFailureIsTerminal(t *testing.T) {
	var logins, calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			logins.Add(1)
			_, _ = w.Write([]byte(`{"key":"never-valid"}`))
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(srv, "user", "secret")

	_, err := client.Fetch(context.Background(), "listings", nil)
	require.Error(t, err)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
	assert.Equal(t, int32(2), logins.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RejectedLoginIsNotRetried(t *testing.T) {
	var logins, calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			logins.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"non_field_errors":["Unable to log in with provided credentials."]}`))
			return
		}
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(srv, "user", "wrong")

	_, err := client.Fetch(context.Background(), "listings", nil)
	require.Error(t, err)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
	assert.Equal(t, int32(1), logins.Load())
	assert.Zero(t, calls.Load())
}

func TestClient_NonSuccessIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/rest-auth/login/" {
			_, _ = w.Write([]byte(`{"key":"abc"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found."}`))
	}))
	defer srv.Close()

	client := newTestClient(srv, "user", "secret")

	_, err := client.Fetch(context.Background(), "listings/missing", nil)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Contains(t, apiErr.Message, "Not found.")
	assert.False(t, errors.Is(err, domain.ErrAuthExpired))
}

func TestClient_MissingCredentialsIsConfigurationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	client := newTestClient(srv, "", "")

	_, err := client.Fetch(context.Background(), "listings", nil)
	require.Error(t, err)
	assert.True(t, domain.IsFatal(err))
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(srv, "user", "secret")
	srv.Close()

	_, err := client.Fetch(context.Background(), "listings", nil)

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"listings", "listings"},
		{"listings/history", "listings/history"},
		{"listings/activeids", "listings/activeids"},
		{"listings/0b6c6f1e-1d6e-4f51-8e0e-2b8e7e0c9a11", "listings"},
		{"listings-attributes/30", "listings-attributes"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, endpointLabel(tt.path))
		})
	}
}
