package middleware

import (
	"bytes"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/services/signature"
	"github.com/finvera/invoicing-backend/utils"
)

// maxWebhookBody bounds inbound webhook payloads (1 MiB)
const maxWebhookBody = 1 << 20

// SignatureMiddleware verifies the HMAC signature on inbound payment
// gateway webhooks before any payload parsing happens.
type SignatureMiddleware struct {
	verifier *signature.Verifier
	header   string
	logger   *zap.Logger
}

// NewSignatureMiddleware creates a new SignatureMiddleware
func NewSignatureMiddleware(cfg config.GatewayConfig, logger *zap.Logger) *SignatureMiddleware {
	return &SignatureMiddleware{
		verifier: signature.NewVerifier([]byte(cfg.WebhookSecret)),
		header:   cfg.SignatureHeader,
		logger:   logger,
	}
}

// VerifySignature rejects requests whose body does not match the
// signature header. The body is rewound so downstream handlers can read
// it again.
func (m *SignatureMiddleware) VerifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestIDFromContext(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			m.logger.Warn("failed to read webhook body",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteBadRequest(w, "Unable to read request body", nil)
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		claimed := r.Header.Get(m.header)
		if !m.verifier.Verify(body, claimed) {
			m.logger.Warn("webhook signature rejected",
				zap.String("request_id", requestID),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("body_bytes", len(body)))
			_ = utils.WriteUnauthorized(w, "Invalid webhook signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}
