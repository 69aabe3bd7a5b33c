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

// ClientHandler handles client CRUD requests
type ClientHandler struct {
	clients repositories.ClientRepository
	users   repositories.UserRepository
	logger  *zap.Logger
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(clients repositories.ClientRepository, users repositories.UserRepository, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{
		clients: clients,
		users:   users,
		logger:  logger,
	}
}

// CreateClientRequest is the request body for creating a client
type CreateClientRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=255"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"omitempty,max=50"`
	Address   string `json:"address" validate:"omitempty,max=1000"`
	TaxNumber string `json:"tax_number" validate:"omitempty,max=100"`
}

// UpdateClientRequest is the request body for updating a client
type UpdateClientRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=255"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"omitempty,max=50"`
	Address   string `json:"address" validate:"omitempty,max=1000"`
	TaxNumber string `json:"tax_number" validate:"omitempty,max=100"`
}

// HandleCreate handles POST /api/v1/clients
func (h *ClientHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	owner, err := currentUser(r.Context(), h.users)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	client := models.NewClient(owner.ID, req.Name, req.Email)
	client.Phone = req.Phone
	client.Address = req.Address
	client.TaxNumber = req.TaxNumber

	if err := h.clients.Create(r.Context(), client); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("client created",
		zap.String("client_id", client.ID.String()),
		zap.String("owner_id", owner.ID.String()))

	_ = utils.WriteCreated(w, client)
}

// HandleList handles GET /api/v1/clients
func (h *ClientHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, err := currentUser(r.Context(), h.users)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	limit, offset := pagination(r)
	clients, err := h.clients.GetByOwnerID(r.Context(), owner.ID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, clients)
}

// HandleGet handles GET /api/v1/clients/{id}
func (h *ClientHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	client, _, err := h.ownedClient(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, client)
}

// HandleUpdate handles PUT /api/v1/clients/{id}
func (h *ClientHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	client, _, err := h.ownedClient(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	client.Name = req.Name
	client.Email = req.Email
	client.Phone = req.Phone
	client.Address = req.Address
	client.TaxNumber = req.TaxNumber
	client.UpdatedAt = time.Now()

	if err := h.clients.Update(r.Context(), client); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, client)
}

// HandleDelete handles DELETE /api/v1/clients/{id}
func (h *ClientHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	client, _, err := h.ownedClient(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.clients.Delete(r.Context(), client.ID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// ownedClient loads the client in the URL and verifies the caller owns it
func (h *ClientHandler) ownedClient(r *http.Request) (*models.Client, *models.User, error) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "client id")
	if err != nil {
		return nil, nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
	}

	owner, err := currentUser(r.Context(), h.users)
	if err != nil {
		return nil, nil, err
	}

	client, err := h.clients.GetByID(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}

	if client.OwnerID != owner.ID && !owner.IsAdmin() {
		// Hide existence of other users' clients
		return nil, nil, services.ErrClientNotFound
	}

	return client, owner, nil
}
