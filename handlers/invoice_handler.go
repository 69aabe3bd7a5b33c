package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/utils"
)

// InvoiceHandler handles invoice CRUD requests
type InvoiceHandler struct {
	invoices repositories.InvoiceRepository
	clients  repositories.ClientRepository
	users    repositories.UserRepository
	logger   *zap.Logger
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices repositories.InvoiceRepository, clients repositories.ClientRepository, users repositories.UserRepository, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoices: invoices,
		clients:  clients,
		users:    users,
		logger:   logger,
	}
}

// InvoiceItemRequest is one line item in a create request. Quantity and
// unit price arrive as strings so amounts never pass through binary
// floats.
type InvoiceItemRequest struct {
	Description string `json:"description" validate:"required,max=1000"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

// CreateInvoiceRequest is the request body for creating an invoice
type CreateInvoiceRequest struct {
	ClientID string               `json:"client_id" validate:"required,uuid"`
	Number   string               `json:"number" validate:"required,max=100"`
	Currency string               `json:"currency" validate:"required,len=3"`
	DueDate  *time.Time           `json:"due_date"`
	Items    []InvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateInvoiceStatusRequest is the request body for a status transition
type UpdateInvoiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent paid void"`
}

// HandleCreate handles POST /api/v1/invoices
func (h *InvoiceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	owner, err := currentUser(r.Context(), h.users)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	clientID, err := utils.ParseUUID(req.ClientID, "client_id")
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil), h.logger)
		return
	}

	// The client must exist and belong to the caller
	client, err := h.clients.GetByID(r.Context(), clientID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if client.OwnerID != owner.ID {
		HandleServiceError(w, services.ErrClientNotFound, h.logger)
		return
	}

	invoice := models.NewInvoice(owner.ID, clientID, req.Number, req.Currency)
	invoice.DueDate = req.DueDate

	for _, item := range req.Items {
		quantity, err := decimal.NewFromString(item.Quantity)
		if err != nil || quantity.Sign() <= 0 {
			HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation,
				fmt.Sprintf("invalid quantity %q: must be a positive decimal", item.Quantity), nil), h.logger)
			return
		}
		unitPrice, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || unitPrice.Sign() < 0 {
			HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation,
				fmt.Sprintf("invalid unit_price %q: must be a non-negative decimal", item.UnitPrice), nil), h.logger)
			return
		}

		invoice.Items = append(invoice.Items, models.InvoiceItem{
			Description: item.Description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
		})
	}
	invoice.ComputeTotal()

	if err := h.invoices.Create(r.Context(), invoice); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.String("total", invoice.Total.String()))

	_ = utils.WriteCreated(w, invoice)
}

// HandleList handles GET /api/v1/invoices with an optional status filter
func (h *InvoiceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, err := currentUser(r.Context(), h.users)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var status *models.InvoiceStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		candidate := models.InvoiceStatus(raw)
		if !models.ValidInvoiceStatus(candidate) {
			HandleServiceError(w, services.ErrInvalidInvoiceStatus, h.logger)
			return
		}
		status = &candidate
	}

	limit, offset := pagination(r)
	invoices, err := h.invoices.GetByOwnerID(r.Context(), owner.ID, status, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, invoices)
}

// HandleGet handles GET /api/v1/invoices/{id}
func (h *InvoiceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.ownedInvoice(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, invoice)
}

// HandleUpdateStatus handles PATCH /api/v1/invoices/{id}/status
func (h *InvoiceHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateInvoiceStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	invoice, err := h.ownedInvoice(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	status := models.InvoiceStatus(req.Status)
	if err := h.invoices.UpdateStatus(r.Context(), invoice.ID, status); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	invoice.Status = status
	_ = utils.WriteOK(w, invoice)
}

// HandleDelete handles DELETE /api/v1/invoices/{id}
func (h *InvoiceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.ownedInvoice(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.invoices.Delete(r.Context(), invoice.ID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// ownedInvoice loads the invoice in the URL and verifies the caller owns it
func (h *InvoiceHandler) ownedInvoice(r *http.Request) (*models.Invoice, error) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "invoice id")
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
	}

	owner, err := currentUser(r.Context(), h.users)
	if err != nil {
		return nil, err
	}

	invoice, err := h.invoices.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}

	if invoice.OwnerID != owner.ID && !owner.IsAdmin() {
		return nil, services.ErrInvoiceNotFound
	}

	return invoice, nil
}
