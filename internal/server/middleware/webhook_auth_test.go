package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func echoBody(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Write(body)
	})
}

func TestWebhookAuthValidSignature(t *testing.T) {
	const secret = "topsecret"
	const body = `[{"signature":"abc","slot":1,"blockTime":0,"logs":[]}]`

	h := WebhookAuth(secret, discardLogger())(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", strings.NewReader(body))
	req.Header.Set(signatureHeader, sign(secret, body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String(), "body must be replayable downstream")
}

func TestWebhookAuthTamperedBody(t *testing.T) {
	const secret = "topsecret"

	h := WebhookAuth(secret, discardLogger())(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", strings.NewReader(`[{"tampered":true}]`))
	req.Header.Set(signatureHeader, sign(secret, `[{"original":true}]`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid signature"}`, rec.Body.String())
}

func TestWebhookAuthMissingHeader(t *testing.T) {
	h := WebhookAuth("topsecret", discardLogger())(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", strings.NewReader(`[]`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookAuthBypassWhenNoSecret(t *testing.T) {
	h := WebhookAuth("", discardLogger())(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", strings.NewReader(`[]`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookAuthWrongHexSignature(t *testing.T) {
	h := WebhookAuth("topsecret", discardLogger())(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", strings.NewReader(`[]`))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
