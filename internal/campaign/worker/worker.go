package worker

import (
	"context"
	"time"

	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

// Each cycle gets its own deadline so a stuck tracker cannot wedge the loop.
const cycleTimeout = 2 * time.Minute

type syncProcessor interface {
	SyncActiveCampaigns(ctx context.Context) ([]store.Campaign, error)
	SyncFlowsFromRemote(ctx context.Context, campaignID uuid.UUID) error
}

// SyncWorker periodically refreshes the campaign mirror from the tracker and
// converges flows and offers for every linked campaign
type SyncWorker struct {
	processor syncProcessor
	logger    *observability.Logger
	stopChan  chan bool
	interval  time.Duration
}

// New creates a new SyncWorker
func New(processor syncProcessor, logger *observability.Logger, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		processor: processor,
		logger:    logger,
		stopChan:  make(chan bool),
		interval:  interval,
	}
}

// Start begins the background worker
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info(ctx, "Starting campaign sync worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sync immediately on start
	w.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			w.runCycle(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "Stopping campaign sync worker")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "Context cancelled, stopping campaign sync worker")
			return
		}
	}
}

// Stop stops the background worker
func (w *SyncWorker) Stop() {
	close(w.stopChan)
}

// runCycle refreshes the campaign list and syncs flows campaign by campaign.
// A campaign that fails to sync is logged and skipped, never aborts the cycle.
func (w *SyncWorker) runCycle(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	w.logger.Info(ctx, "Syncing campaigns from tracker")

	campaigns, err := w.processor.SyncActiveCampaigns(ctx)
	if err != nil {
		w.logger.Error(ctx, "failed to sync active campaigns", err)
		return
	}

	synced := 0
	for _, campaign := range campaigns {
		if campaign.RemoteID == nil {
			continue
		}

		campaignCtx := observability.WithFields(ctx,
			observability.Field{Key: "campaign_id", Value: campaign.ID.String()},
		)
		if err := w.processor.SyncFlowsFromRemote(campaignCtx, campaign.ID); err != nil {
			w.logger.Error(campaignCtx, "failed to sync campaign flows", err)
			continue
		}
		synced++
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaigns", Value: len(campaigns)},
		observability.Field{Key: "synced", Value: synced},
	)
	w.logger.Info(ctx, "Finished campaign sync cycle")
}
