package bootstrap

import (
	"context"
	"fmt"

	"keitaro-bridge/internal/auth"
	campaignHandler "keitaro-bridge/internal/campaign/handler"
	campaignProcessor "keitaro-bridge/internal/campaign/processor"
	syncWorker "keitaro-bridge/internal/campaign/worker"
	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/config"
	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Auth middleware
	Verifier auth.Verifier

	// Handlers
	CampaignHandler campaignHandler.Handler

	// Background workers
	SyncWorker *syncWorker.SyncWorker
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Apply migrations, then open the database store
	connectionString := cfg.Database.ConnectionString()
	if err := store.Migrate(connectionString); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize the tracker client
	keitaroClient := keitaro.NewClient(cfg.Keitaro.APIURL, cfg.Keitaro.APIKey, logger)

	// Initialize auth middleware
	deps.Verifier = auth.New(cfg.Auth.JWTSecret, logger)

	// Initialize campaign processor and handler. The worker shares the
	// processor instance so catalog caching and campaign locks stay global.
	campaignProc := campaignProcessor.New(&deps.Store, keitaroClient, campaignProcessor.Defaults{
		Domain: cfg.Keitaro.DefaultDomain,
		Group:  cfg.Keitaro.DefaultGroup,
		Source: cfg.Keitaro.DefaultSource,
	}, logger)
	deps.CampaignHandler = campaignHandler.New(&campaignProc, logger)

	// Initialize the background sync worker
	deps.SyncWorker = syncWorker.New(&campaignProc, logger, cfg.Sync.Interval)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if db := d.Store.DB(); db != nil {
		db.Close()
	}
}
