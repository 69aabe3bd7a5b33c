package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/middleware"
	"github.com/finvera/invoicing-backend/models"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/services"
	"github.com/finvera/invoicing-backend/services/audit"
	"github.com/finvera/invoicing-backend/services/policygate"
	"github.com/finvera/invoicing-backend/services/quota"
	"github.com/finvera/invoicing-backend/services/settlement"
	"github.com/finvera/invoicing-backend/services/signature"
)

const webhookSecret = "webhook-test-secret"

// fakeInvoiceRepo is an in-memory InvoiceRepository
type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*models.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[uuid.UUID]*models.Invoice)}
}

func (f *fakeInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[invoice.ID] = invoice
	return nil
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[id]
	if !ok {
		return nil, services.ErrInvoiceNotFound
	}
	copied := *invoice
	return &copied, nil
}

func (f *fakeInvoiceRepo) GetByNumber(ctx context.Context, ownerID uuid.UUID, number string) (*models.Invoice, error) {
	return nil, services.ErrInvoiceNotFound
}

func (f *fakeInvoiceRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID, status *models.InvoiceStatus, limit, offset int) ([]*models.Invoice, error) {
	return nil, nil
}

func (f *fakeInvoiceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.InvoiceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[id]
	if !ok {
		return services.ErrInvoiceNotFound
	}
	invoice.Status = status
	return nil
}

func (f *fakeInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return services.ErrInvoiceNotFound
}

// fakeSettlementRepo is an in-memory SettlementRepository enforcing
// transaction uniqueness
type fakeSettlementRepo struct {
	mu      sync.Mutex
	records map[string]*models.SettlementRecord
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{records: make(map[string]*models.SettlementRecord)}
}

func (f *fakeSettlementRepo) Create(ctx context.Context, record *models.SettlementRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[record.TransactionID]; exists {
		return services.ErrDuplicateSettlement
	}
	f.records[record.TransactionID] = record
	return nil
}

func (f *fakeSettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SettlementRecord, error) {
	return nil, services.ErrSettlementNotFound
}

func (f *fakeSettlementRepo) GetByTransactionID(ctx context.Context, transactionID string) (*models.SettlementRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[transactionID]
	if !ok {
		return nil, services.ErrSettlementNotFound
	}
	return record, nil
}

func (f *fakeSettlementRepo) GetByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]*models.SettlementRecord, error) {
	return nil, nil
}

// passthroughTxManager runs the function without a real transaction
type passthroughTxManager struct{}

func (passthroughTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return nil, fmt.Errorf("not supported")
}

func (passthroughTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, nil)
}

// nullAuditRepo swallows audit writes
type nullAuditRepo struct{}

func (nullAuditRepo) Insert(ctx context.Context, log *models.AuditLog) error { return nil }
func (nullAuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	return nil, services.ErrAuditLogNotFound
}
func (nullAuditRepo) GetBySubject(ctx context.Context, subject string, limit, offset int) ([]*models.AuditLog, error) {
	return nil, nil
}
func (nullAuditRepo) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	return nil, nil
}
func (nullAuditRepo) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error) {
	return nil, nil
}

type webhookFixture struct {
	handler     http.Handler
	invoices    *fakeInvoiceRepo
	settlements *fakeSettlementRepo
	invoiceID   uuid.UUID
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	logger := zap.NewNop()

	invoices := newFakeInvoiceRepo()
	settlements := newFakeSettlementRepo()

	invoice := models.NewInvoice(uuid.New(), uuid.New(), "INV-2026-0001", "EUR")
	invoice.Status = models.InvoiceStatusSent
	require.NoError(t, invoices.Create(context.Background(), invoice))

	recorder := audit.NewRecorder(nullAuditRepo{}, logger, audit.Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, recorder.Start())
	t.Cleanup(func() { _ = recorder.Stop(time.Second) })

	ledger := quota.NewLedger(quota.NewMemoryStore(), time.Second, logger)
	gate := policygate.NewGate(ledger, recorder, map[string]quota.Rule{
		config.ActionPaymentWebhook: {MaxAttempts: 60, Window: time.Minute},
	}, logger)

	calculator := settlement.NewCalculator(config.SettlementConfig{
		GatewayFeeRate: decimal.RequireFromString("0.02"),
		TaxRate:        decimal.RequireFromString("0.18"),
	})

	paymentHandler := NewPaymentHandler(invoices, settlements, passthroughTxManager{}, calculator, gate, logger)

	sigMiddleware := middleware.NewSignatureMiddleware(config.GatewayConfig{
		WebhookSecret:   webhookSecret,
		SignatureHeader: "X-Gateway-Signature",
	}, logger)

	return &webhookFixture{
		handler:     sigMiddleware.VerifySignature(http.HandlerFunc(paymentHandler.HandleWebhook)),
		invoices:    invoices,
		settlements: settlements,
		invoiceID:   invoice.ID,
	}
}

func (f *webhookFixture) post(t *testing.T, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		req.Header.Set("X-Gateway-Signature", signature.Sign([]byte(webhookSecret), body))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func webhookBody(t *testing.T, invoiceID uuid.UUID, transactionID, gross, rate string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"transaction_id":  transactionID,
		"invoice_id":      invoiceID.String(),
		"gross_amount":    gross,
		"commission_rate": rate,
	})
	require.NoError(t, err)
	return body
}

func TestHandleWebhook_SettlesPayment(t *testing.T) {
	f := newWebhookFixture(t)
	body := webhookBody(t, f.invoiceID, "txn_1001", "1000.00", "0.05")

	w := f.post(t, body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	record, err := f.settlements.GetByTransactionID(context.Background(), "txn_1001")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(record.PlatformCommission))
	assert.True(t, decimal.RequireFromString("20.00").Equal(record.GatewayFee))
	assert.True(t, decimal.RequireFromString("3.60").Equal(record.TaxOnFee))
	assert.True(t, decimal.RequireFromString("926.40").Equal(record.NetPayable))

	invoice, err := f.invoices.GetByID(context.Background(), f.invoiceID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
}

func TestHandleWebhook_RejectsTamperedBody(t *testing.T) {
	f := newWebhookFixture(t)
	body := webhookBody(t, f.invoiceID, "txn_1002", "1000.00", "0.05")

	// Signature computed over a different payload
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	other := webhookBody(t, f.invoiceID, "txn_1002", "999999.00", "0.05")
	req.Header.Set("X-Gateway-Signature", signature.Sign([]byte(webhookSecret), other))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err := f.settlements.GetByTransactionID(context.Background(), "txn_1002")
	assert.True(t, services.IsNotFoundError(err), "no settlement persisted for rejected payload")
}

func TestHandleWebhook_RejectsMissingSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := webhookBody(t, f.invoiceID, "txn_1003", "1000.00", "0.05")

	w := f.post(t, body, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhook_ReplayConflicts(t *testing.T) {
	f := newWebhookFixture(t)
	body := webhookBody(t, f.invoiceID, "txn_1004", "1000.00", "0.05")

	require.Equal(t, http.StatusCreated, f.post(t, body, true).Code)

	// The invoice is already paid, so the replay is refused
	w := f.post(t, body, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleWebhook_UnknownInvoice(t *testing.T) {
	f := newWebhookFixture(t)
	body := webhookBody(t, uuid.New(), "txn_1005", "1000.00", "0.05")

	w := f.post(t, body, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleWebhook_InvalidAmounts(t *testing.T) {
	f := newWebhookFixture(t)

	cases := []struct {
		name  string
		gross string
		rate  string
	}{
		{"zero gross", "0", "0.05"},
		{"negative gross", "-10.00", "0.05"},
		{"rate above one", "1000.00", "1.5"},
		{"negative rate", "1000.00", "-0.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := webhookBody(t, f.invoiceID, "txn_bad_"+tc.name, tc.gross, tc.rate)
			w := f.post(t, body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}
