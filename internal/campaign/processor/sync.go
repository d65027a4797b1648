package processor

import (
	"context"
	"errors"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

// DeletedCampaigns pairs the tracker's deleted listing with local campaigns
// whose remote counterpart is gone from the active set.
type DeletedCampaigns struct {
	Remote []keitaro.Campaign `json:"remote"`
	Local  []store.Campaign   `json:"local"`
}

// Diagnostics exposes the raw tracker catalogs, the campaign's remote state
// and the values the schema/action resolution currently picks. Every section
// is independently best-effort.
type Diagnostics struct {
	CampaignID       uuid.UUID `json:"campaign_id"`
	CampaignName     string    `json:"campaign_name"`
	RemoteCampaignID *int64    `json:"remote_campaign_id,omitempty"`

	Schemas      []keitaro.CatalogEntry `json:"schemas,omitempty"`
	SchemasError string                 `json:"schemas_error,omitempty"`
	Actions      []keitaro.CatalogEntry `json:"actions,omitempty"`
	ActionsError string                 `json:"actions_error,omitempty"`
	Filters      []keitaro.CatalogEntry `json:"filters,omitempty"`

	Streams      []keitaro.Stream `json:"streams,omitempty"`
	StreamsError string           `json:"streams_error,omitempty"`

	RemoteCampaign      *keitaro.Campaign `json:"remote_campaign,omitempty"`
	RemoteCampaignError string            `json:"remote_campaign_error,omitempty"`

	SchemaForRedirect     string `json:"schema_for_redirect"`
	SchemaForOffers       string `json:"schema_for_offers"`
	ActionTypeForRedirect string `json:"action_type_for_redirect"`
	ActionTypeForOffers   string `json:"action_type_for_offers"`
}

// SyncFlowsFromRemote pulls the campaign's remote streams and converges the
// local flows and offers onto them. Offers the user removed locally stay
// removed; active flow-bound offers that no remote stream carries anymore are
// marked removed. Sync never records pending-change entries.
func (p *CampaignProcessor) SyncFlowsFromRemote(ctx context.Context, campaignID uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return err
	}
	if campaign.RemoteID == nil {
		return ErrCampaignNotLinked
	}

	streams, err := p.keitaro.ListCampaignStreams(ctx, *campaign.RemoteID)
	if err != nil {
		p.logger.Error(ctx, "failed to list remote streams", err)
		return err
	}
	if len(streams) == 0 {
		p.logger.Warn(ctx, "tracker returned no streams, skipping flow sync")
		return nil
	}

	// Offer names are only needed for rows that do not exist yet, but the
	// lookups happen up front so no remote call runs under the campaign lock.
	names := make(map[int64]string)
	for _, stream := range streams {
		for _, offer := range stream.EffectiveOffers() {
			if offer.ID == 0 {
				continue
			}
			if _, ok := names[offer.ID]; ok {
				continue
			}
			name := offer.Name
			if name == "" {
				name = p.offerName(ctx, offer.ID)
			}
			names[offer.ID] = name
		}
	}

	lock := p.locks.get(campaign.ID)
	lock.Lock()
	defer lock.Unlock()

	seen := make(map[int64]bool)
	for _, stream := range streams {
		if stream.ID == 0 {
			continue
		}

		remoteOffers := stream.EffectiveOffers()
		flowType := store.FlowTypeCountryFilter
		if len(remoteOffers) > 0 {
			flowType = store.FlowTypeOfferRedirect
		}

		flow, err := p.store.UpsertFlowByRemoteID(ctx, store.UpsertFlowParams{
			CampaignID: campaign.ID,
			RemoteID:   stream.ID,
			Name:       stream.Name,
			FlowType:   flowType,
		})
		if err != nil {
			p.logger.Error(ctx, "failed to upsert flow", err)
			return err
		}

		upserts := make([]store.SyncOfferUpsert, 0, len(remoteOffers))
		for _, offer := range remoteOffers {
			if offer.ID == 0 {
				continue
			}
			seen[offer.ID] = true

			existing, err := p.store.GetCampaignOffer(ctx, campaign.ID, offer.ID)
			if err == nil && existing.Status == store.OfferStatusRemoved {
				continue
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				p.logger.Error(ctx, "failed to look up local offer", err)
				return err
			}

			weight := offer.Weight
			if weight < 1 {
				weight = 1
			}
			upserts = append(upserts, store.SyncOfferUpsert{
				OfferID:   offer.ID,
				OfferName: names[offer.ID],
				Weight:    weight,
			})
		}

		if err := p.store.SyncFlowOffers(ctx, store.SyncFlowOffersParams{
			CampaignID: campaign.ID,
			FlowID:     flow.ID,
			Offers:     upserts,
		}); err != nil {
			p.logger.Error(ctx, "failed to sync flow offers", err)
			return err
		}
	}

	active, err := p.store.ListActiveOffersByCampaignID(ctx, campaign.ID)
	if err != nil {
		p.logger.Error(ctx, "failed to list campaign offers", err)
		return err
	}
	var stale []uuid.UUID
	for _, offer := range active {
		if offer.FlowID != nil && !seen[offer.OfferID] {
			stale = append(stale, offer.ID)
		}
	}
	if err := p.store.MarkOffersRemoved(ctx, stale); err != nil {
		p.logger.Error(ctx, "failed to mark vanished offers removed", err)
		return err
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "streams", Value: len(streams)},
		observability.Field{Key: "offers_marked_removed", Value: len(stale)},
	)
	p.logger.Info(ctx, "flows synced from tracker")
	return nil
}

// SyncActiveCampaigns refreshes local campaign rows from the tracker's active
// listing and returns the local rows for it, newest first. A failed listing
// yields an empty result, never an error.
func (p *CampaignProcessor) SyncActiveCampaigns(ctx context.Context) ([]store.Campaign, error) {
	remote, err := p.keitaro.ListCampaigns(ctx, 0)
	if err != nil {
		if keitaro.IsUnauthorized(err) {
			p.logger.Error(ctx, "tracker rejected the api key, check the keitaro credentials", err)
		} else {
			p.logger.InfoWithError(ctx, "failed to list remote campaigns", err)
		}
		return []store.Campaign{}, nil
	}

	remoteIDs := make([]int64, 0, len(remote))
	for _, c := range remote {
		if c.ID == 0 {
			continue
		}
		cctx := observability.WithFields(ctx, observability.Field{Key: "remote_campaign_id", Value: c.ID})
		if _, err := p.store.UpsertCampaignByRemoteID(cctx, store.UpsertCampaignParams{
			RemoteID: c.ID,
			Name:     c.Name,
			Geo:      c.Geo(),
			Domain:   c.Domain,
			Group:    c.Group,
			Source:   c.Source,
		}); err != nil {
			p.logger.Error(cctx, "failed to upsert campaign from tracker", err)
			continue
		}
		remoteIDs = append(remoteIDs, c.ID)
	}
	if len(remoteIDs) == 0 {
		return []store.Campaign{}, nil
	}

	campaigns, err := p.store.ListCampaignsByRemoteIDs(ctx, remoteIDs)
	if err != nil {
		p.logger.Error(ctx, "failed to list synced campaigns", err)
		return nil, err
	}
	return campaigns, nil
}

// ListDeletedCampaigns returns the tracker's deleted listing together with
// local campaigns that dropped out of the active set. Remote failures leave
// the corresponding half empty.
func (p *CampaignProcessor) ListDeletedCampaigns(ctx context.Context) (DeletedCampaigns, error) {
	result := DeletedCampaigns{Remote: []keitaro.Campaign{}, Local: []store.Campaign{}}

	remote, err := p.keitaro.ListDeletedCampaigns(ctx)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to list deleted remote campaigns", err)
	} else {
		result.Remote = remote
	}

	active, err := p.SyncActiveCampaigns(ctx)
	if err != nil {
		return DeletedCampaigns{}, err
	}
	activeIDs := make([]int64, 0, len(active))
	for _, campaign := range active {
		if campaign.RemoteID != nil {
			activeIDs = append(activeIDs, *campaign.RemoteID)
		}
	}

	local, err := p.store.ListCampaignsNotInRemoteIDs(ctx, activeIDs)
	if err != nil {
		p.logger.Error(ctx, "failed to list vanished campaigns", err)
		return DeletedCampaigns{}, err
	}
	if local != nil {
		result.Local = local
	}
	return result, nil
}

// Diagnostics gathers the tracker catalogs, the campaign's remote streams and
// the resolved schema/action values in one report. Each section fails on its
// own.
func (p *CampaignProcessor) Diagnostics(ctx context.Context, campaignID uuid.UUID) (Diagnostics, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Diagnostics{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return Diagnostics{}, err
	}

	d := Diagnostics{
		CampaignID:       campaign.ID,
		CampaignName:     campaign.Name,
		RemoteCampaignID: campaign.RemoteID,
	}

	if schemas, err := p.keitaro.ListStreamSchemas(ctx); err != nil {
		d.SchemasError = err.Error()
	} else {
		d.Schemas = schemas
	}
	if actions, err := p.keitaro.ListStreamActions(ctx); err != nil {
		d.ActionsError = err.Error()
	} else {
		d.Actions = actions
	}
	d.Filters = p.keitaro.ListStreamFilters(ctx)

	if campaign.RemoteID != nil {
		if streams, err := p.keitaro.ListCampaignStreams(ctx, *campaign.RemoteID); err != nil {
			d.StreamsError = err.Error()
		} else {
			d.Streams = streams
		}
		if remote, err := p.keitaro.GetCampaign(ctx, *campaign.RemoteID); err != nil {
			d.RemoteCampaignError = err.Error()
		} else {
			d.RemoteCampaign = &remote
		}
	}

	d.SchemaForRedirect = p.catalogs.schemaForRedirect(ctx)
	d.SchemaForOffers = p.catalogs.schemaForOffers(ctx)
	d.ActionTypeForRedirect = p.catalogs.actionTypeForRedirect(ctx)
	d.ActionTypeForOffers = p.catalogs.actionTypeForOffers(ctx)
	return d, nil
}
