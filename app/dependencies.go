// Package app is the central wiring point for dependency injection.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/config"
	"github.com/finvera/invoicing-backend/middleware"
	"github.com/finvera/invoicing-backend/repositories"
	"github.com/finvera/invoicing-backend/repositories/postgres"
	"github.com/finvera/invoicing-backend/services/audit"
	"github.com/finvera/invoicing-backend/services/policygate"
	"github.com/finvera/invoicing-backend/services/quota"
	"github.com/finvera/invoicing-backend/services/settlement"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Clients     repositories.ClientRepository
	Invoices    repositories.InvoiceRepository
	Users       repositories.UserRepository
	Settlements repositories.SettlementRepository
	AuditLogs   repositories.AuditRepository
	TxManager   repositories.TransactionManager

	// Trust core
	QuotaLedger   *quota.Ledger
	AuditRecorder *audit.Recorder
	PolicyGate    *policygate.Gate
	Calculator    *settlement.Calculator

	// HTTP middleware
	AuthMiddleware      *middleware.AuthMiddleware
	SignatureMiddleware *middleware.SignatureMiddleware

	// lifecycle
	cleanupCancel context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initTrustCore(cfg)
	deps.initMiddleware(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection(s) and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Clients = repos.Clients
	d.Invoices = repos.Invoices
	d.Users = repos.Users
	d.Settlements = repos.Settlements
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initTrustCore wires the quota ledger, audit recorder, settlement
// calculator and the policy gate composing them.
func (d *Dependencies) initTrustCore(cfg *config.Config) {
	d.QuotaLedger = quota.NewLedger(d.RepoFactory.NewQuotaStore(), cfg.Quota.StoreTimeout, d.Logger)

	d.AuditRecorder = audit.NewRecorder(d.AuditLogs, d.Logger, audit.DefaultConfig())

	rules := make(map[string]quota.Rule, len(cfg.Quota.Rules))
	for action, rule := range cfg.Quota.Rules {
		rules[action] = quota.Rule{
			MaxAttempts: rule.MaxAttempts,
			Window:      rule.Window,
			FailClosed:  rule.FailClosed,
		}
	}
	d.PolicyGate = policygate.NewGate(d.QuotaLedger, d.AuditRecorder, rules, d.Logger)

	d.Calculator = settlement.NewCalculator(cfg.Settlement)

	d.Logger.Info("policy gate initialized", zap.Int("quota_rules", len(rules)))
}

// initMiddleware wires the JWT and webhook signature middleware
func (d *Dependencies) initMiddleware(cfg *config.Config) {
	validator := middleware.NewJWTValidator(cfg.Auth)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.SignatureMiddleware = middleware.NewSignatureMiddleware(cfg.Gateway, d.Logger)
}

// Start launches the background workers: audit recorder and quota
// attempt cleanup.
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.AuditRecorder.Start(); err != nil {
		return fmt.Errorf("failed to start audit recorder: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	d.cleanupCancel = cancel
	go d.QuotaLedger.StartCleanupWorker(cleanupCtx, time.Hour, longestQuotaWindow(d.Config.Quota.Rules))

	return nil
}

// Shutdown stops background workers and closes connections
func (d *Dependencies) Shutdown(timeout time.Duration) {
	if d.cleanupCancel != nil {
		d.cleanupCancel()
	}

	if err := d.AuditRecorder.Stop(timeout); err != nil {
		d.Logger.Warn("audit recorder shutdown incomplete", zap.Error(err))
	}

	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Error("failed to close database", zap.Error(err))
	}
}

// longestQuotaWindow returns the retention horizon for stored attempts:
// anything older than the longest configured window is dead weight.
func longestQuotaWindow(rules map[string]config.QuotaRule) time.Duration {
	longest := 24 * time.Hour
	for _, rule := range rules {
		if rule.Window > longest {
			longest = rule.Window
		}
	}
	return longest
}
