package handlers

import (
	"context"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/services/policygate"
	"github.com/finvera/invoicing-backend/services/settlement"
	"github.com/finvera/invoicing-backend/utils"
)

// gatewaySubject is the quota and audit subject for inbound webhooks.
// The gateway is a single caller, so its attempts pool under one key.
const gatewaySubject = "payment-gateway"

// PaymentHandler handles payment gateway webhooks. Signature
// verification happens in middleware before this handler runs.
type PaymentHandler struct {
	invoices    repositories.InvoiceRepository
	settlements repositories.SettlementRepository
	txManager   repositories.TransactionManager
	calculator  *settlement.Calculator
	gate        *policygate.Gate
	logger      *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(
	invoices repositories.InvoiceRepository,
	settlements repositories.SettlementRepository,
	txManager repositories.TransactionManager,
	calculator *settlement.Calculator,
	gate *policygate.Gate,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		invoices:    invoices,
		settlements: settlements,
		txManager:   txManager,
		calculator:  calculator,
		gate:        gate,
		logger:      logger,
	}
}

// PaymentWebhookRequest is the gateway's payment confirmation payload.
// Monetary fields arrive as strings and are parsed as exact decimals.
type PaymentWebhookRequest struct {
	TransactionID  string `json:"transaction_id" validate:"required,max=255"`
	InvoiceID      string `json:"invoice_id" validate:"required,uuid"`
	GrossAmount    string `json:"gross_amount" validate:"required"`
	CommissionRate string `json:"commission_rate" validate:"required"`
}

// HandleWebhook handles POST /webhooks/payment
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	invoiceID, err := utils.ParseUUID(req.InvoiceID, "invoice_id")
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil), h.logger)
		return
	}

	grossAmount, err := decimal.NewFromString(req.GrossAmount)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation,
			"invalid gross_amount: must be a decimal string", nil), h.logger)
		return
	}
	commissionRate, err := decimal.NewFromString(req.CommissionRate)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation,
			"invalid commission_rate: must be a decimal string", nil), h.logger)
		return
	}

	gateReq := policygate.Request{
		Subject:      gatewaySubject,
		Action:       config.ActionPaymentWebhook,
		ResourceType: "payment",
		ResourceID:   &invoiceID,
		RequestID:    chimiddleware.GetReqID(r.Context()),
		IPAddress:    r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}

	var record *models.SettlementRecord
	err = h.gate.Execute(r.Context(), gateReq, func(ctx context.Context) error {
		var opErr error
		record, opErr = h.settle(ctx, invoiceID, req.TransactionID, grossAmount, commissionRate)
		return opErr
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("payment settled",
		zap.String("transaction_id", req.TransactionID),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("net_payable", record.NetPayable.String()))

	_ = utils.WriteCreated(w, record)
}

// settle computes the breakdown and persists it atomically with the
// invoice transition.
func (h *PaymentHandler) settle(ctx context.Context, invoiceID uuid.UUID, transactionID string, grossAmount, commissionRate decimal.Decimal) (*models.SettlementRecord, error) {
	invoice, err := h.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if invoice.Status == models.InvoiceStatusPaid {
		return nil, services.ErrDuplicateSettlement
	}
	if invoice.Status == models.InvoiceStatusVoid {
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"cannot settle a void invoice", nil)
	}

	breakdown, err := h.calculator.Compute(grossAmount, commissionRate)
	if err != nil {
		return nil, err
	}

	record := models.NewSettlementRecord(invoice.ID, transactionID, *breakdown)

	err = h.txManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := h.settlements.Create(txCtx, record); err != nil {
			return err
		}
		return h.invoices.UpdateStatus(txCtx, invoice.ID, models.InvoiceStatusPaid)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}
