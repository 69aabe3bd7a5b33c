// Package handlers contains the HTTP surface. Handlers stay thin: decode
// and validate the request, call into services or repositories, map
// errors through HandleServiceError.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/finvera/invoicing-backend/middleware"
	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/services/policygate"
	"github.com/finvera/invoicing-backend/utils"
)

// maxRequestBody bounds JSON request bodies (1 MiB)
const maxRequestBody = 1 << 20

// defaultPageSize and maxPageSize bound list endpoints
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// decodeJSON decodes and validates a request body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return utils.ValidateStruct(dst)
}

// pagination extracts limit/offset query parameters with bounds applied
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// currentUser resolves the authenticated caller to their user record
func currentUser(ctx context.Context, users repositories.UserRepository) (*models.User, error) {
	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		return nil, services.NewDomainError(services.ErrorTypeForbidden, "authentication required", nil)
	}
	return users.GetBySubject(ctx, claims.Subject)
}

// gateRequest builds the policy gate request for the authenticated caller
func gateRequest(r *http.Request, action, resourceType string) policygate.Request {
	claims := middleware.GetClaimsFromContext(r.Context())
	subject := ""
	if claims != nil {
		subject = claims.Subject
	}
	return policygate.Request{
		Subject:      subject,
		Action:       action,
		ResourceType: resourceType,
		RequestID:    chimiddleware.GetReqID(r.Context()),
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}
}
