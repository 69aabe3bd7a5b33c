package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/utils"
)

// AuditHandler exposes the audit trail to administrators. Read-only:
// entries are never modified or deleted through any surface.
type AuditHandler struct {
	auditLogs repositories.AuditRepository
	logger    *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditLogs repositories.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditLogs: auditLogs,
		logger:    logger,
	}
}

// HandleList handles GET /api/v1/audit-logs.
// Filters: subject, action, or a from/to RFC3339 range; first match wins.
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	query := r.URL.Query()

	if subject := query.Get("subject"); subject != "" {
		logs, err := h.auditLogs.GetBySubject(r.Context(), subject, limit, offset)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		_ = utils.WriteOK(w, logs)
		return
	}

	if action := query.Get("action"); action != "" {
		logs, err := h.auditLogs.GetByAction(r.Context(), models.AuditAction(action), limit, offset)
		if err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
		_ = utils.WriteOK(w, logs)
		return
	}

	start, end, err := dateRange(query.Get("from"), query.Get("to"))
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil), h.logger)
		return
	}

	logs, err := h.auditLogs.GetByDateRange(r.Context(), start, end, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, logs)
}

// HandleGet handles GET /api/v1/audit-logs/{id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "audit log id")
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil), h.logger)
		return
	}

	log, err := h.auditLogs.GetByID(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, log)
}

// dateRange parses the optional from/to filters, defaulting to the last
// 24 hours.
func dateRange(from, to string) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	if from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}
	if to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}

	return start, end, nil
}
