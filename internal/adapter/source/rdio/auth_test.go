package rdio

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/rdioexport/internal/adapter"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		id, secret, ok := r.BasicAuth()
		require.NoError(t, r.ParseForm())
		if !ok || id != "app" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientCredentials_CachesToken(t *testing.T) {
	var requests atomic.Int32
	srv := tokenServer(t, &requests)

	now := time.Unix(1_000_000, 0)
	cc := NewClientCredentials(srv.URL, "app", "s3cret", adapter.NullLogger())
	cc.now = func() time.Time { return now }

	tok, err := cc.Token(t.Context())
	require.NoError(t, err)
	require.Equal(t, "tok", tok)

	_, err = cc.Token(t.Context())
	require.NoError(t, err)
	require.Equal(t, int32(1), requests.Load(), "cached token is reused")

	// Past expiry minus the margin a new token is requested
	now = now.Add(time.Hour - expiryMargin)
	_, err = cc.Token(t.Context())
	require.NoError(t, err)
	require.Equal(t, int32(2), requests.Load())

	cc.Invalidate()
	_, err = cc.Token(t.Context())
	require.NoError(t, err)
	require.Equal(t, int32(3), requests.Load())
}

func TestClientCredentials_Rejected(t *testing.T) {
	var requests atomic.Int32
	srv := tokenServer(t, &requests)

	cc := NewClientCredentials(srv.URL, "app", "wrong", adapter.NullLogger())
	_, err := cc.Token(t.Context())
	require.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(t.Context())
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	_, err = StaticToken("").Token(t.Context())
	require.ErrorIs(t, err, domain.ErrAuthFailed)
}
