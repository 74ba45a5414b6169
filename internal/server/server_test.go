package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/ingest"
	"github.com/zmartlabs/zmart-sync/internal/server/handler"
)

type stubLimiter struct {
	calls   int
	lastKey string
	allow   bool
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	s.calls++
	s.lastKey = key
	return domain.RateLimitDecision{
		Allowed:   s.allow,
		Limit:     limit,
		Remaining: 0,
		Reset:     time.Now().Add(window),
	}, nil
}

func newTestServer(t *testing.T, limiter domain.RateLimiter, secret string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := Handlers{
		Health: handler.NewHealthHandler(nil),
		Webhook: handler.NewWebhookHandler(
			ingest.NewParser("Prog1111111111111111111111111111", logger),
			ingest.NewRouter(nil, nil, nil, nil, logger),
			4, logger,
		),
		Markets: handler.NewMarketHandler(nil, logger),
	}
	return New(Config{
		WebhookSecret: secret,
		RateLimit:     5,
		RateWindow:    time.Minute,
	}, handlers, limiter, logger)
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(srv *Server, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOverLimitRejectedBeforeSignatureCheck(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	srv := newTestServer(t, limiter, "s3cret")

	rec := postWebhook(srv, []byte(`[]`), "definitely-wrong")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, limiter.calls, "unsigned traffic must still consume the window")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestOverLimitRejectedWithoutAnySignature(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	srv := newTestServer(t, limiter, "s3cret")

	rec := postWebhook(srv, []byte(`[]`), "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, limiter.calls)
}

func TestWithinLimitBadSignatureRejected(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	srv := newTestServer(t, limiter, "s3cret")

	rec := postWebhook(srv, []byte(`[]`), "definitely-wrong")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, limiter.calls)
}

func TestWithinLimitSignedBatchAccepted(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	srv := newTestServer(t, limiter, "s3cret")

	body := []byte(`[]`)
	rec := postWebhook(srv, body, signBody("s3cret", body))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitKeyedByClientIP(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	srv := newTestServer(t, limiter, "")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chain", bytes.NewReader([]byte(`[]`)))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "webhook:203.0.113.9", limiter.lastKey)
}
