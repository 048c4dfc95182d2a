package auth_test

import (
	"bytes"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/require"

	"github.com/atmx/adledger/internal/auth"
	"github.com/atmx/adledger/internal/model"
)

// echoCaller writes the authenticated caller, or "anonymous".
func echoCaller(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		caller, ok := auth.Caller(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(caller.String() + "|" + string(body)))
	})
}

func TestHeaderAuthenticator(t *testing.T) {
	h := auth.Middleware(auth.HeaderAuthenticator{})(echoCaller(t))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{"anonymous", "", http.StatusOK, "anonymous"},
		{"hex caller", "0x0000000000000000000000000000000000000001", http.StatusOK,
			"0x0000000000000000000000000000000000000001|"},
		{"malformed", "alice", http.StatusUnauthorized, ""},
		{"zero address", "0x0000000000000000000000000000000000000000", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/register", nil)
			if tt.header != "" {
				req.Header.Set(auth.HeaderCaller, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestHeaderAuthenticator_NeoAddress(t *testing.T) {
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	want := model.Address(priv.GetScriptHash())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(auth.HeaderCaller, priv.Address())

	got, err := auth.HeaderAuthenticator{}.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func signedRequest(t *testing.T, priv *keys.PrivateKey, method, path string, ts int64, body []byte) *http.Request {
	t.Helper()
	sig := priv.Sign(auth.SigningMessage(method, path, ts, body))

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(auth.HeaderPublicKey, hex.EncodeToString(priv.PublicKey().Bytes()))
	req.Header.Set(auth.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	return req
}

func TestSignatureAuthenticator(t *testing.T) {
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	caller := model.Address(priv.GetScriptHash())

	a := auth.NewSignatureAuthenticator(time.Minute)
	h := auth.Middleware(a)(echoCaller(t))
	body := []byte(`{"declared_amount":"1","value":"3"}`)
	now := time.Now().Unix()

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, signedRequest(t, priv, "POST", "/api/v1/bids", now, body))
		require.Equal(t, http.StatusOK, w.Code)
		// The handler still sees the full body after verification.
		require.Equal(t, caller.String()+"|"+string(body), w.Body.String())
	})

	t.Run("replayed", func(t *testing.T) {
		replay := []byte(`{"declared_amount":"2","value":"6"}`)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, signedRequest(t, priv, "POST", "/api/v1/bids", now, replay))
		require.Equal(t, http.StatusOK, w.Code)

		// The identical signed request is refused inside the window.
		_, err := a.Authenticate(signedRequest(t, priv, "POST", "/api/v1/bids", now, replay))
		require.ErrorIs(t, err, auth.ErrBadCredentials)
		require.Contains(t, err.Error(), "already seen")

		// A fresh timestamp is a new message.
		_, err = a.Authenticate(signedRequest(t, priv, "POST", "/api/v1/bids", now-1, replay))
		require.NoError(t, err)
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/name", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "anonymous", w.Body.String())
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, priv, "POST", "/api/v1/bids", now, body)
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"declared_amount":"9","value":"27"}`)))
		_, err := a.Authenticate(req)
		require.ErrorIs(t, err, auth.ErrBadCredentials)
	})

	t.Run("other path", func(t *testing.T) {
		req := signedRequest(t, priv, "POST", "/api/v1/bids", now, body)
		req.URL.Path = "/api/v1/withdrawals"
		_, err := a.Authenticate(req)
		require.ErrorIs(t, err, auth.ErrBadCredentials)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := a.Authenticate(signedRequest(t, priv, "POST", "/api/v1/bids", now-3600, body))
		require.ErrorIs(t, err, auth.ErrBadCredentials)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := keys.NewPrivateKey()
		require.NoError(t, err)
		req := signedRequest(t, priv, "POST", "/api/v1/bids", now, body)
		req.Header.Set(auth.HeaderPublicKey, hex.EncodeToString(other.PublicKey().Bytes()))
		_, err = a.Authenticate(req)
		require.ErrorIs(t, err, auth.ErrBadCredentials)
	})

	t.Run("garbage headers", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/bids", nil)
		req.Header.Set(auth.HeaderPublicKey, "zz")
		req.Header.Set(auth.HeaderSignature, "zz")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
