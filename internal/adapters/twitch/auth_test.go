package twitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamefinder/internal/core/domain"
)

func TestTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc123","expires_in":5011271,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts := NewTokenSource("id", "secret", srv.URL, srv.Client(), discardLogger())
	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
}

func TestTokenRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":403,"message":"invalid client secret"}`))
	}))
	defer srv.Close()

	ts := NewTokenSource("id", "wrong", srv.URL, srv.Client(), discardLogger())
	_, err := ts.Token(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuth))
	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ts := NewTokenSource("id", "secret", url, nil, discardLogger())
	_, err := ts.Token(context.Background())
	assert.True(t, errors.Is(err, domain.ErrAuth))
}

func TestTokenRequiresCredentials(t *testing.T) {
	ts := NewTokenSource("", "secret", "http://example.invalid", nil, discardLogger())
	_, err := ts.Token(context.Background())
	assert.True(t, errors.Is(err, domain.ErrAuth))
}
