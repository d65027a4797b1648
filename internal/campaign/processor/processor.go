package processor

import (
	"context"
	"errors"
	"math"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

// CampaignStore defines the database operations required by CampaignProcessor
type CampaignStore interface {
	// Campaigns
	CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (store.Campaign, error)
	GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.Campaign, error)
	GetCampaignByRemoteID(ctx context.Context, remoteID int64) (store.Campaign, error)
	UpdateCampaign(ctx context.Context, campaignID uuid.UUID, params store.UpdateCampaignParams) (store.Campaign, error)
	UpsertCampaignByRemoteID(ctx context.Context, params store.UpsertCampaignParams) (store.Campaign, error)
	ListCampaignsByRemoteIDs(ctx context.Context, remoteIDs []int64) ([]store.Campaign, error)
	ListCampaignsNotInRemoteIDs(ctx context.Context, remoteIDs []int64) ([]store.Campaign, error)

	// Flows
	CreateFlow(ctx context.Context, params store.CreateFlowParams) (store.Flow, error)
	GetFlowByID(ctx context.Context, flowID uuid.UUID) (store.Flow, error)
	GetFlowByRemoteID(ctx context.Context, remoteID int64) (store.Flow, error)
	ListFlowsByCampaignID(ctx context.Context, campaignID uuid.UUID) ([]store.Flow, error)
	UpsertFlowByRemoteID(ctx context.Context, params store.UpsertFlowParams) (store.Flow, error)
	PublishFlow(ctx context.Context, flowID uuid.UUID) error
	DeleteFlow(ctx context.Context, flowID uuid.UUID) error

	// Campaign offers
	GetCampaignOffer(ctx context.Context, campaignID uuid.UUID, offerID int64) (store.CampaignOffer, error)
	ListActiveOffersByCampaignID(ctx context.Context, campaignID uuid.UUID) ([]store.CampaignOffer, error)
	ListActiveOffersByFlowID(ctx context.Context, flowID uuid.UUID) ([]store.CampaignOffer, error)
	EnsureCampaignOffer(ctx context.Context, params store.CreateCampaignOfferParams) (store.CampaignOffer, error)
	UpsertCampaignOffer(ctx context.Context, params store.UpsertCampaignOfferParams) (store.CampaignOffer, error)
	DeactivateCampaignOffer(ctx context.Context, params store.OfferLifecycleParams) (store.CampaignOffer, error)
	ReactivateCampaignOffer(ctx context.Context, params store.OfferLifecycleParams) (store.CampaignOffer, error)
	SyncFlowOffers(ctx context.Context, params store.SyncFlowOffersParams) error
	MarkOffersRemoved(ctx context.Context, offerRowIDs []uuid.UUID) error
	SetOfferPinned(ctx context.Context, offerRowID uuid.UUID, pinned bool) (store.CampaignOffer, error)
	ResetUnpinnedWeights(ctx context.Context, flowID uuid.UUID) (int64, error)

	// Pending flow changes
	ListFlowOfferChanges(ctx context.Context, flowID uuid.UUID) ([]store.FlowOfferChange, error)
	ApplyFlowCancel(ctx context.Context, params store.ApplyFlowCancelParams) error
}

// KeitaroClient defines the tracker API operations required by CampaignProcessor
type KeitaroClient interface {
	CreateCampaign(ctx context.Context, req keitaro.CreateCampaignRequest) (keitaro.Campaign, error)
	UpdateCampaign(ctx context.Context, id int64, req keitaro.UpdateCampaignRequest) (keitaro.Campaign, error)
	GetCampaign(ctx context.Context, id int64) (keitaro.Campaign, error)
	ListCampaigns(ctx context.Context, limit int) ([]keitaro.Campaign, error)
	ListDeletedCampaigns(ctx context.Context) ([]keitaro.Campaign, error)

	ListCampaignStreams(ctx context.Context, campaignID int64) ([]keitaro.Stream, error)
	CreateStream(ctx context.Context, req keitaro.CreateStreamRequest) (keitaro.Stream, error)
	UpdateStream(ctx context.Context, id int64, body map[string]any) (keitaro.Stream, error)
	DeleteStream(ctx context.Context, id int64) error

	ListStreamSchemas(ctx context.Context) ([]keitaro.CatalogEntry, error)
	ListStreamActions(ctx context.Context) ([]keitaro.CatalogEntry, error)
	ListStreamFilters(ctx context.Context) []keitaro.CatalogEntry

	GetOffer(ctx context.Context, id int64) (keitaro.Offer, error)
	SearchOffers(ctx context.Context, query string, limit int) ([]keitaro.Offer, error)
}

var (
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrFlowNotFound       = errors.New("flow not found")
	ErrOfferNotFound      = errors.New("offer not found")
	ErrCampaignNotLinked  = errors.New("campaign has no remote id")
	ErrFlowNotLinked      = errors.New("flow or campaign has no remote id")
	ErrMissingRemoteID    = errors.New("keitaro response carries no id")
	ErrFlowCreationFailed = errors.New("flow creation failed")
	ErrInvalidFlowParams  = errors.New("invalid flow parameters")
	ErrInvalidOfferIDs    = errors.New("invalid offer id list")
	ErrRemoteDeleteFailed = errors.New("remote stream delete failed")
)

// Defaults are campaign fields applied when a create request leaves them empty.
type Defaults struct {
	Domain string
	Group  string
	Source string
}

type CampaignProcessor struct {
	store    CampaignStore
	keitaro  KeitaroClient
	defaults Defaults
	catalogs *catalogCache
	locks    *campaignLocks
	logger   *observability.Logger
}

func New(store CampaignStore, keitaroClient KeitaroClient, defaults Defaults, logger *observability.Logger) CampaignProcessor {
	return CampaignProcessor{
		store:    store,
		keitaro:  keitaroClient,
		defaults: defaults,
		catalogs: newCatalogCache(keitaroClient, logger),
		locks:    newCampaignLocks(),
		logger:   logger,
	}
}

// UpdateCampaignParams represents parameters for updating a campaign
type UpdateCampaignParams struct {
	Name   string
	Geo    string
	Domain string
	Group  string
	Source string
}

// UpdateCampaignResult reports the local row and whether the remote campaign
// accepted the same update.
type UpdateCampaignResult struct {
	Campaign      store.Campaign `json:"campaign"`
	RemoteUpdated bool           `json:"remote_updated"`
}

// CampaignDetail is a campaign with its flows and active offers, offer share
// percentages computed.
type CampaignDetail struct {
	Campaign store.Campaign        `json:"campaign"`
	Flows    []store.Flow          `json:"flows"`
	Offers   []store.CampaignOffer `json:"offers"`
}

// ListActiveCampaigns refreshes local rows from the tracker and returns the
// campaigns that are currently active remotely, newest first.
func (p *CampaignProcessor) ListActiveCampaigns(ctx context.Context) ([]store.Campaign, error) {
	return p.SyncActiveCampaigns(ctx)
}

// GetCampaignDetail loads a campaign with its flows and active offers. When
// the campaign is linked the flows are refreshed from the tracker first; a
// sync failure is logged and the stale local state is served.
func (p *CampaignProcessor) GetCampaignDetail(ctx context.Context, campaignID uuid.UUID) (CampaignDetail, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CampaignDetail{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return CampaignDetail{}, err
	}

	if campaign.RemoteID != nil {
		if err := p.SyncFlowsFromRemote(ctx, campaignID); err != nil {
			p.logger.InfoWithError(ctx, "flow sync failed, serving local state", err)
		}
	}

	flows, err := p.store.ListFlowsByCampaignID(ctx, campaignID)
	if err != nil {
		p.logger.Error(ctx, "failed to list flows", err)
		return CampaignDetail{}, err
	}

	offers, err := p.store.ListActiveOffersByCampaignID(ctx, campaignID)
	if err != nil {
		p.logger.Error(ctx, "failed to list campaign offers", err)
		return CampaignDetail{}, err
	}
	applySharePercents(offers)

	return CampaignDetail{Campaign: campaign, Flows: flows, Offers: offers}, nil
}

// UpdateCampaign updates the local campaign and, when it is linked, pushes the
// same fields to the tracker. The local update stands even when the remote
// push fails; the result reports whether the tracker accepted it.
func (p *CampaignProcessor) UpdateCampaign(ctx context.Context, campaignID uuid.UUID, params UpdateCampaignParams) (UpdateCampaignResult, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	campaign, err := p.store.UpdateCampaign(ctx, campaignID, store.UpdateCampaignParams{
		Name:   params.Name,
		Geo:    params.Geo,
		Domain: params.Domain,
		Group:  params.Group,
		Source: params.Source,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UpdateCampaignResult{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to update campaign", err)
		return UpdateCampaignResult{}, err
	}

	result := UpdateCampaignResult{Campaign: campaign}
	if campaign.RemoteID == nil {
		return result, nil
	}

	_, err = p.keitaro.UpdateCampaign(ctx, *campaign.RemoteID, keitaro.UpdateCampaignRequest{
		Name:   params.Name,
		Geo:    params.Geo,
		Domain: params.Domain,
		Group:  params.Group,
		Source: params.Source,
	})
	if err != nil {
		p.logger.InfoWithError(ctx, "remote campaign update failed, local update kept", err)
		return result, nil
	}

	result.RemoteUpdated = true
	return result, nil
}

// applySharePercents fills SharePercent on every offer from its weight's share
// of the total active weight in the same flow group. Offers staged without a
// flow form their own group.
func applySharePercents(offers []store.CampaignOffer) {
	totals := make(map[uuid.UUID]int)
	for _, offer := range offers {
		totals[groupKey(offer)] += offer.Weight
	}
	for i := range offers {
		total := totals[groupKey(offers[i])]
		if total <= 0 {
			continue
		}
		share := float64(offers[i].Weight) * 100 / float64(total)
		offers[i].SharePercent = math.Round(share*10) / 10
	}
}

func groupKey(offer store.CampaignOffer) uuid.UUID {
	if offer.FlowID != nil {
		return *offer.FlowID
	}
	return uuid.Nil
}
