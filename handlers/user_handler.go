package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/middleware"
	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/services/policygate"
	"github.com/finvera/invoicing-backend/utils"
)

// UserHandler handles profile, KYC and account lifecycle requests. The
// sensitive operations run behind the policy gate.
type UserHandler struct {
	users  repositories.UserRepository
	gate   *policygate.Gate
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, gate *policygate.Gate, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		gate:   gate,
		logger: logger,
	}
}

// UpdateProfileRequest is the request body for updating the profile
type UpdateProfileRequest struct {
	FullName     string `json:"full_name" validate:"required,min=2,max=255"`
	BusinessName string `json:"business_name" validate:"omitempty,max=255"`
	Email        string `json:"email" validate:"required,email"`
}

// SubmitKYCRequest is the request body for submitting identity documents
type SubmitKYCRequest struct {
	DocumentRef string `json:"document_ref" validate:"required,max=512"`
}

// ReviewKYCRequest is the admin request body for reviewing a submission
type ReviewKYCRequest struct {
	Status string `json:"status" validate:"required,oneof=verified rejected"`
}

// HandleGetProfile handles GET /api/v1/profile.
// The user record is provisioned on first access: identity lives
// upstream, so an authenticated subject without a local record is new.
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentOrProvision(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, user)
}

// HandleUpdateProfile handles PUT /api/v1/profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.currentOrProvision(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	gateReq := gateRequest(r, config.ActionProfileUpdate, "user")
	gateReq.ResourceID = &user.ID

	err = h.gate.Execute(r.Context(), gateReq, func(ctx context.Context) error {
		user.FullName = req.FullName
		user.BusinessName = req.BusinessName
		user.Email = req.Email
		user.UpdatedAt = time.Now()
		return h.users.Update(ctx, user)
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, user)
}

// HandleChangePassword handles POST /api/v1/profile/password.
// Credentials live in the upstream identity service; this endpoint
// exists to admit and audit the change before the upstream call.
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentOrProvision(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	gateReq := gateRequest(r, config.ActionPasswordChange, "user")
	gateReq.ResourceID = &user.ID

	err = h.gate.Execute(r.Context(), gateReq, func(ctx context.Context) error {
		user.UpdatedAt = time.Now()
		return h.users.Update(ctx, user)
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]string{"status": "password_change_recorded"})
}

// HandleDeleteAccount handles DELETE /api/v1/profile
func (h *UserHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentOrProvision(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	gateReq := gateRequest(r, config.ActionAccountDeletion, "user")
	gateReq.ResourceID = &user.ID

	err = h.gate.Execute(r.Context(), gateReq, func(ctx context.Context) error {
		return h.users.Delete(ctx, user.ID)
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("account deleted", zap.String("user_id", user.ID.String()))
	utils.WriteNoContent(w)
}

// HandleSubmitKYC handles POST /api/v1/kyc
func (h *UserHandler) HandleSubmitKYC(w http.ResponseWriter, r *http.Request) {
	var req SubmitKYCRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.currentOrProvision(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if user.KYCStatus == models.KYCStatusVerified {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeConflict,
			"identity already verified", nil), h.logger)
		return
	}

	gateReq := gateRequest(r, config.ActionKYCSubmission, "user")
	gateReq.ResourceID = &user.ID

	err = h.gate.Execute(r.Context(), gateReq, func(ctx context.Context) error {
		return h.users.UpdateKYC(ctx, user.ID, models.KYCStatusPending, &req.DocumentRef)
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	user.KYCStatus = models.KYCStatusPending
	user.KYCDocumentRef = &req.DocumentRef
	_ = utils.WriteOK(w, user)
}

// HandleReviewKYC handles POST /api/v1/users/{id}/kyc/review (admin only)
func (h *UserHandler) HandleReviewKYC(w http.ResponseWriter, r *http.Request) {
	var req ReviewKYCRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "user id")
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil), h.logger)
		return
	}

	subject, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if subject.KYCStatus != models.KYCStatusPending {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeConflict,
			"no pending submission to review", nil), h.logger)
		return
	}

	gateReq := gateRequest(r, "kyc_review", "user")
	gateReq.ResourceID = &subject.ID

	status := models.KYCStatus(req.Status)
	err = h.gate.Execute(r.Context(), gateReq, func(ctx context.Context) error {
		return h.users.UpdateKYC(ctx, subject.ID, status, subject.KYCDocumentRef)
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	subject.KYCStatus = status
	_ = utils.WriteOK(w, subject)
}

// currentOrProvision resolves the caller, creating the local record on
// first access for an authenticated subject.
func (h *UserHandler) currentOrProvision(ctx context.Context) (*models.User, error) {
	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		return nil, services.NewDomainError(services.ErrorTypeForbidden, "authentication required", nil)
	}

	user, err := h.users.GetBySubject(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}
	if !services.IsNotFoundError(err) {
		return nil, err
	}

	user = models.NewUser(claims.Subject, claims.Email, claims.Email)
	if claims.Role != "" {
		user.Role = claims.Role
	}
	if createErr := h.users.Create(ctx, user); createErr != nil {
		return nil, createErr
	}

	h.logger.Info("user provisioned on first access",
		zap.String("user_id", user.ID.String()),
		zap.String("subject", claims.Subject))
	return user, nil
}
