package processor

import (
	"context"
	"errors"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

const defaultOfferSearchLimit = 20

// AddOfferParams represents parameters for adding an offer to a campaign.
// FlowID nil stages the offer at campaign level; set, the offer is bound to
// that flow immediately and the flow picks up a pending change.
type AddOfferParams struct {
	OfferID int64
	Weight  int
	FlowID  *uuid.UUID
}

// AddOfferToCampaign creates or reactivates the (campaign, offer) row. A
// re-added offer keeps one row; weight, name and flow binding are
// overwritten. The undo entry depends on what the row was before the add, so
// a later cancel restores exactly the pre-edit state.
func (p *CampaignProcessor) AddOfferToCampaign(ctx context.Context, campaignID uuid.UUID, params AddOfferParams) (store.CampaignOffer, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: params.OfferID},
	)

	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CampaignOffer{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return store.CampaignOffer{}, err
	}

	if params.FlowID != nil {
		flow, err := p.getFlow(ctx, *params.FlowID)
		if err != nil {
			return store.CampaignOffer{}, err
		}
		if flow.CampaignID != campaign.ID {
			return store.CampaignOffer{}, ErrFlowNotFound
		}
	}

	weight := params.Weight
	if weight < 1 {
		weight = 1
	}
	name := p.offerName(ctx, params.OfferID)

	lock := p.locks.get(campaign.ID)
	lock.Lock()
	defer lock.Unlock()

	undoAction := ""
	if params.FlowID != nil {
		undoAction, err = p.undoForBoundAdd(ctx, campaign.ID, params.OfferID, *params.FlowID)
		if err != nil {
			return store.CampaignOffer{}, err
		}
	}

	offer, err := p.store.UpsertCampaignOffer(ctx, store.UpsertCampaignOfferParams{
		CampaignID:      campaign.ID,
		FlowID:          params.FlowID,
		OfferID:         params.OfferID,
		OfferName:       name,
		Weight:          weight,
		MarkFlowChanged: params.FlowID != nil,
		UndoAction:      undoAction,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to upsert campaign offer", err)
		return store.CampaignOffer{}, err
	}

	p.logger.Info(ctx, "offer added to campaign")
	return offer, nil
}

// undoForBoundAdd picks the action that reverses a flow-bound add: delete a
// row that did not exist, deactivate one that was removed, unbind one that
// was active elsewhere. A row already active on the same flow records
// nothing, its binding predates the edit.
func (p *CampaignProcessor) undoForBoundAdd(ctx context.Context, campaignID uuid.UUID, offerID int64, flowID uuid.UUID) (string, error) {
	existing, err := p.store.GetCampaignOffer(ctx, campaignID, offerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.UndoActionDelete, nil
		}
		p.logger.Error(ctx, "failed to look up existing offer", err)
		return "", err
	}
	if existing.Status == store.OfferStatusRemoved {
		return store.UndoActionDeactivate, nil
	}
	if existing.FlowID != nil && *existing.FlowID == flowID {
		return "", nil
	}
	return store.UndoActionUnbind, nil
}

// RemoveOfferFromCampaign soft-deletes the offer. A flow-bound removal dirties
// the flow, records the undo and levels the remaining unpinned weights.
func (p *CampaignProcessor) RemoveOfferFromCampaign(ctx context.Context, campaignID uuid.UUID, offerID int64) (store.CampaignOffer, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: offerID},
	)

	offer, err := p.lookupOffer(ctx, campaignID, offerID)
	if err != nil {
		return store.CampaignOffer{}, err
	}

	lock := p.locks.get(campaignID)
	lock.Lock()
	defer lock.Unlock()

	removed, err := p.store.DeactivateCampaignOffer(ctx, store.OfferLifecycleParams{
		OfferRowID: offer.ID,
		FlowID:     offer.FlowID,
		UndoAction: store.UndoActionReactivate,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CampaignOffer{}, ErrOfferNotFound
		}
		p.logger.Error(ctx, "failed to remove offer", err)
		return store.CampaignOffer{}, err
	}

	p.logger.Info(ctx, "offer removed from campaign")
	return removed, nil
}

// BringBackOffer reactivates a removed offer, the mirror of
// RemoveOfferFromCampaign.
func (p *CampaignProcessor) BringBackOffer(ctx context.Context, campaignID uuid.UUID, offerID int64) (store.CampaignOffer, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: offerID},
	)

	offer, err := p.lookupOffer(ctx, campaignID, offerID)
	if err != nil {
		return store.CampaignOffer{}, err
	}

	lock := p.locks.get(campaignID)
	lock.Lock()
	defer lock.Unlock()

	restored, err := p.store.ReactivateCampaignOffer(ctx, store.OfferLifecycleParams{
		OfferRowID: offer.ID,
		FlowID:     offer.FlowID,
		UndoAction: store.UndoActionDeactivate,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CampaignOffer{}, ErrOfferNotFound
		}
		p.logger.Error(ctx, "failed to bring back offer", err)
		return store.CampaignOffer{}, err
	}

	p.logger.Info(ctx, "offer brought back")
	return restored, nil
}

// SetOfferWeightPinned pins or unpins an offer's weight. Unpinning levels the
// owning flow's unpinned weights again.
func (p *CampaignProcessor) SetOfferWeightPinned(ctx context.Context, campaignID uuid.UUID, offerID int64, pinned bool) (store.CampaignOffer, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: offerID},
		observability.Field{Key: "pinned", Value: pinned},
	)

	offer, err := p.lookupOffer(ctx, campaignID, offerID)
	if err != nil {
		return store.CampaignOffer{}, err
	}

	lock := p.locks.get(campaignID)
	lock.Lock()
	defer lock.Unlock()

	updated, err := p.store.SetOfferPinned(ctx, offer.ID, pinned)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CampaignOffer{}, ErrOfferNotFound
		}
		p.logger.Error(ctx, "failed to update weight pin", err)
		return store.CampaignOffer{}, err
	}

	if !pinned && updated.FlowID != nil {
		if err := p.recalculateWeightsLocked(ctx, *updated.FlowID); err != nil {
			return store.CampaignOffer{}, err
		}
		updated, err = p.lookupOffer(ctx, campaignID, offerID)
		if err != nil {
			return store.CampaignOffer{}, err
		}
	}

	p.logger.Info(ctx, "offer weight pin updated")
	return updated, nil
}

// RecalculateWeights levels every unpinned active weight of the flow back to
// 1. Pinned weights stay where the user put them.
func (p *CampaignProcessor) RecalculateWeights(ctx context.Context, flowID uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "flow_id", Value: flowID.String()})

	flow, err := p.getFlow(ctx, flowID)
	if err != nil {
		return err
	}

	lock := p.locks.get(flow.CampaignID)
	lock.Lock()
	defer lock.Unlock()
	return p.recalculateWeightsLocked(ctx, flowID)
}

func (p *CampaignProcessor) recalculateWeightsLocked(ctx context.Context, flowID uuid.UUID) error {
	affected, err := p.store.ResetUnpinnedWeights(ctx, flowID)
	if err != nil {
		p.logger.Error(ctx, "failed to reset unpinned weights", err)
		return err
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "offers_reset", Value: affected})
	p.logger.Debug(ctx, "unpinned weights recalculated")
	return nil
}

// SearchOffers is a passthrough to the tracker's offer search.
func (p *CampaignProcessor) SearchOffers(ctx context.Context, query string, limit int) ([]keitaro.Offer, error) {
	if limit <= 0 {
		limit = defaultOfferSearchLimit
	}
	offers, err := p.keitaro.SearchOffers(ctx, query, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to search offers", err)
		return nil, err
	}
	return offers, nil
}

func (p *CampaignProcessor) lookupOffer(ctx context.Context, campaignID uuid.UUID, offerID int64) (store.CampaignOffer, error) {
	offer, err := p.store.GetCampaignOffer(ctx, campaignID, offerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CampaignOffer{}, ErrOfferNotFound
		}
		p.logger.Error(ctx, "failed to get campaign offer", err)
		return store.CampaignOffer{}, err
	}
	return offer, nil
}
