package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/services/signature"
)

func newTestSignatureMiddleware(secret string) *SignatureMiddleware {
	return NewSignatureMiddleware(config.GatewayConfig{
		WebhookSecret:   secret,
		SignatureHeader: "X-Gateway-Signature",
	}, zap.NewNop())
}

func TestVerifySignature(t *testing.T) {
	const secret = "webhook-secret"
	m := newTestSignatureMiddleware(secret)
	body := []byte(`{"transaction_id":"txn_001","invoice_id":"a2b8b6ce-80e0-4a73-9c14-6429da9a2a7c","gross_amount":"1000.00"}`)

	t.Run("valid signature passes and body stays readable", func(t *testing.T) {
		var downstreamBody []byte
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			downstreamBody, err = io.ReadAll(r.Body)
			require.NoError(t, err)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("X-Gateway-Signature", signature.Sign([]byte(secret), body))
		w := httptest.NewRecorder()

		m.VerifySignature(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, body, downstreamBody, "handler must see the raw payload")
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		tampered := append([]byte{}, body...)
		tampered[len(tampered)-2] = '1'

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(tampered))
		req.Header.Set("X-Gateway-Signature", signature.Sign([]byte(secret), body))
		w := httptest.NewRecorder()

		m.VerifySignature(failIfReached(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing signature header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		w := httptest.NewRecorder()

		m.VerifySignature(failIfReached(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signature from wrong secret rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("X-Gateway-Signature", signature.Sign([]byte("other-secret"), body))
		w := httptest.NewRecorder()

		m.VerifySignature(failIfReached(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-hex signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("X-Gateway-Signature", "not-a-hex-string")
		w := httptest.NewRecorder()

		m.VerifySignature(failIfReached(t)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

// failIfReached fails the test when the downstream handler runs
func failIfReached(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request passed signature verification unexpectedly")
	})
}
