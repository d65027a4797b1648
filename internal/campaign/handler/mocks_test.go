package handler

import (
	"context"
	"errors"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

var errMockNotConfigured = errors.New("mock call not configured")

// mockStore satisfies processor.CampaignStore through per-test function
// overrides. Unset reads answer store.ErrNotFound or an empty result, unset
// writes answer errMockNotConfigured so an unexpected call surfaces as a 500.
type mockStore struct {
	createCampaign     func(store.CreateCampaignParams) (store.Campaign, error)
	getCampaignByID    func(uuid.UUID) (store.Campaign, error)
	updateCampaign     func(uuid.UUID, store.UpdateCampaignParams) (store.Campaign, error)
	upsertByRemoteID   func(store.UpsertCampaignParams) (store.Campaign, error)
	listByRemoteIDs    func([]int64) ([]store.Campaign, error)
	listNotInRemoteIDs func([]int64) ([]store.Campaign, error)
	createFlow         func(store.CreateFlowParams) (store.Flow, error)
	getFlowByID        func(uuid.UUID) (store.Flow, error)
	listFlows          func(uuid.UUID) ([]store.Flow, error)
	deleteFlow         func(uuid.UUID) error
	getOffer           func(uuid.UUID, int64) (store.CampaignOffer, error)
	listCampaignOffers func(uuid.UUID) ([]store.CampaignOffer, error)
	listFlowOffers     func(uuid.UUID) ([]store.CampaignOffer, error)
	ensureOffer        func(store.CreateCampaignOfferParams) (store.CampaignOffer, error)
	upsertOffer        func(store.UpsertCampaignOfferParams) (store.CampaignOffer, error)
	deactivateOffer    func(store.OfferLifecycleParams) (store.CampaignOffer, error)
	reactivateOffer    func(store.OfferLifecycleParams) (store.CampaignOffer, error)
	setPinned          func(uuid.UUID, bool) (store.CampaignOffer, error)
	listChanges        func(uuid.UUID) ([]store.FlowOfferChange, error)
	applyCancel        func(store.ApplyFlowCancelParams) error
}

func (m *mockStore) CreateCampaign(_ context.Context, params store.CreateCampaignParams) (store.Campaign, error) {
	if m.createCampaign == nil {
		return store.Campaign{}, errMockNotConfigured
	}
	return m.createCampaign(params)
}

func (m *mockStore) GetCampaignByID(_ context.Context, campaignID uuid.UUID) (store.Campaign, error) {
	if m.getCampaignByID == nil {
		return store.Campaign{}, store.ErrNotFound
	}
	return m.getCampaignByID(campaignID)
}

func (m *mockStore) GetCampaignByRemoteID(context.Context, int64) (store.Campaign, error) {
	return store.Campaign{}, store.ErrNotFound
}

func (m *mockStore) UpdateCampaign(_ context.Context, campaignID uuid.UUID, params store.UpdateCampaignParams) (store.Campaign, error) {
	if m.updateCampaign == nil {
		return store.Campaign{}, store.ErrNotFound
	}
	return m.updateCampaign(campaignID, params)
}

func (m *mockStore) UpsertCampaignByRemoteID(_ context.Context, params store.UpsertCampaignParams) (store.Campaign, error) {
	if m.upsertByRemoteID == nil {
		return store.Campaign{}, errMockNotConfigured
	}
	return m.upsertByRemoteID(params)
}

func (m *mockStore) ListCampaignsByRemoteIDs(_ context.Context, remoteIDs []int64) ([]store.Campaign, error) {
	if m.listByRemoteIDs == nil {
		return []store.Campaign{}, nil
	}
	return m.listByRemoteIDs(remoteIDs)
}

func (m *mockStore) ListCampaignsNotInRemoteIDs(_ context.Context, remoteIDs []int64) ([]store.Campaign, error) {
	if m.listNotInRemoteIDs == nil {
		return []store.Campaign{}, nil
	}
	return m.listNotInRemoteIDs(remoteIDs)
}

func (m *mockStore) CreateFlow(_ context.Context, params store.CreateFlowParams) (store.Flow, error) {
	if m.createFlow == nil {
		return store.Flow{}, errMockNotConfigured
	}
	return m.createFlow(params)
}

func (m *mockStore) GetFlowByID(_ context.Context, flowID uuid.UUID) (store.Flow, error) {
	if m.getFlowByID == nil {
		return store.Flow{}, store.ErrNotFound
	}
	return m.getFlowByID(flowID)
}

func (m *mockStore) GetFlowByRemoteID(context.Context, int64) (store.Flow, error) {
	return store.Flow{}, store.ErrNotFound
}

func (m *mockStore) ListFlowsByCampaignID(_ context.Context, campaignID uuid.UUID) ([]store.Flow, error) {
	if m.listFlows == nil {
		return []store.Flow{}, nil
	}
	return m.listFlows(campaignID)
}

func (m *mockStore) UpsertFlowByRemoteID(context.Context, store.UpsertFlowParams) (store.Flow, error) {
	return store.Flow{}, errMockNotConfigured
}

func (m *mockStore) PublishFlow(context.Context, uuid.UUID) error {
	return nil
}

func (m *mockStore) DeleteFlow(_ context.Context, flowID uuid.UUID) error {
	if m.deleteFlow == nil {
		return errMockNotConfigured
	}
	return m.deleteFlow(flowID)
}

func (m *mockStore) GetCampaignOffer(_ context.Context, campaignID uuid.UUID, offerID int64) (store.CampaignOffer, error) {
	if m.getOffer == nil {
		return store.CampaignOffer{}, store.ErrNotFound
	}
	return m.getOffer(campaignID, offerID)
}

func (m *mockStore) ListActiveOffersByCampaignID(_ context.Context, campaignID uuid.UUID) ([]store.CampaignOffer, error) {
	if m.listCampaignOffers == nil {
		return []store.CampaignOffer{}, nil
	}
	return m.listCampaignOffers(campaignID)
}

func (m *mockStore) ListActiveOffersByFlowID(_ context.Context, flowID uuid.UUID) ([]store.CampaignOffer, error) {
	if m.listFlowOffers == nil {
		return []store.CampaignOffer{}, nil
	}
	return m.listFlowOffers(flowID)
}

func (m *mockStore) EnsureCampaignOffer(_ context.Context, params store.CreateCampaignOfferParams) (store.CampaignOffer, error) {
	if m.ensureOffer == nil {
		return store.CampaignOffer{}, errMockNotConfigured
	}
	return m.ensureOffer(params)
}

func (m *mockStore) UpsertCampaignOffer(_ context.Context, params store.UpsertCampaignOfferParams) (store.CampaignOffer, error) {
	if m.upsertOffer == nil {
		return store.CampaignOffer{}, errMockNotConfigured
	}
	return m.upsertOffer(params)
}

func (m *mockStore) DeactivateCampaignOffer(_ context.Context, params store.OfferLifecycleParams) (store.CampaignOffer, error) {
	if m.deactivateOffer == nil {
		return store.CampaignOffer{}, errMockNotConfigured
	}
	return m.deactivateOffer(params)
}

func (m *mockStore) ReactivateCampaignOffer(_ context.Context, params store.OfferLifecycleParams) (store.CampaignOffer, error) {
	if m.reactivateOffer == nil {
		return store.CampaignOffer{}, errMockNotConfigured
	}
	return m.reactivateOffer(params)
}

func (m *mockStore) SyncFlowOffers(context.Context, store.SyncFlowOffersParams) error {
	return errMockNotConfigured
}

func (m *mockStore) MarkOffersRemoved(context.Context, []uuid.UUID) error {
	return nil
}

func (m *mockStore) SetOfferPinned(_ context.Context, offerRowID uuid.UUID, pinned bool) (store.CampaignOffer, error) {
	if m.setPinned == nil {
		return store.CampaignOffer{}, errMockNotConfigured
	}
	return m.setPinned(offerRowID, pinned)
}

func (m *mockStore) ResetUnpinnedWeights(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *mockStore) ListFlowOfferChanges(_ context.Context, flowID uuid.UUID) ([]store.FlowOfferChange, error) {
	if m.listChanges == nil {
		return []store.FlowOfferChange{}, nil
	}
	return m.listChanges(flowID)
}

func (m *mockStore) ApplyFlowCancel(_ context.Context, params store.ApplyFlowCancelParams) error {
	if m.applyCancel == nil {
		return errMockNotConfigured
	}
	return m.applyCancel(params)
}

// mockKeitaro satisfies processor.KeitaroClient the same way. Unset calls
// fail so every flow a test exercises has to be stubbed deliberately.
type mockKeitaro struct {
	createCampaign func(keitaro.CreateCampaignRequest) (keitaro.Campaign, error)
	updateCampaign func(int64, keitaro.UpdateCampaignRequest) (keitaro.Campaign, error)
	listCampaigns  func(int) ([]keitaro.Campaign, error)
	listDeleted    func() ([]keitaro.Campaign, error)
	listStreams    func(int64) ([]keitaro.Stream, error)
	createStream   func(keitaro.CreateStreamRequest) (keitaro.Stream, error)
	updateStream   func(int64, map[string]any) (keitaro.Stream, error)
	deleteStream   func(int64) error
	getOffer       func(int64) (keitaro.Offer, error)
	searchOffers   func(string, int) ([]keitaro.Offer, error)
}

func (m *mockKeitaro) CreateCampaign(_ context.Context, req keitaro.CreateCampaignRequest) (keitaro.Campaign, error) {
	if m.createCampaign == nil {
		return keitaro.Campaign{}, errMockNotConfigured
	}
	return m.createCampaign(req)
}

func (m *mockKeitaro) UpdateCampaign(_ context.Context, id int64, req keitaro.UpdateCampaignRequest) (keitaro.Campaign, error) {
	if m.updateCampaign == nil {
		return keitaro.Campaign{}, errMockNotConfigured
	}
	return m.updateCampaign(id, req)
}

func (m *mockKeitaro) GetCampaign(context.Context, int64) (keitaro.Campaign, error) {
	return keitaro.Campaign{}, errMockNotConfigured
}

func (m *mockKeitaro) ListCampaigns(_ context.Context, limit int) ([]keitaro.Campaign, error) {
	if m.listCampaigns == nil {
		return nil, errMockNotConfigured
	}
	return m.listCampaigns(limit)
}

func (m *mockKeitaro) ListDeletedCampaigns(context.Context) ([]keitaro.Campaign, error) {
	if m.listDeleted == nil {
		return nil, errMockNotConfigured
	}
	return m.listDeleted()
}

func (m *mockKeitaro) ListCampaignStreams(_ context.Context, campaignID int64) ([]keitaro.Stream, error) {
	if m.listStreams == nil {
		return nil, errMockNotConfigured
	}
	return m.listStreams(campaignID)
}

func (m *mockKeitaro) CreateStream(_ context.Context, req keitaro.CreateStreamRequest) (keitaro.Stream, error) {
	if m.createStream == nil {
		return keitaro.Stream{}, errMockNotConfigured
	}
	return m.createStream(req)
}

func (m *mockKeitaro) UpdateStream(_ context.Context, id int64, body map[string]any) (keitaro.Stream, error) {
	if m.updateStream == nil {
		return keitaro.Stream{}, errMockNotConfigured
	}
	return m.updateStream(id, body)
}

func (m *mockKeitaro) DeleteStream(_ context.Context, id int64) error {
	if m.deleteStream == nil {
		return errMockNotConfigured
	}
	return m.deleteStream(id)
}

func (m *mockKeitaro) ListStreamSchemas(context.Context) ([]keitaro.CatalogEntry, error) {
	return nil, errMockNotConfigured
}

func (m *mockKeitaro) ListStreamActions(context.Context) ([]keitaro.CatalogEntry, error) {
	return nil, errMockNotConfigured
}

func (m *mockKeitaro) ListStreamFilters(context.Context) []keitaro.CatalogEntry {
	return nil
}

func (m *mockKeitaro) GetOffer(_ context.Context, id int64) (keitaro.Offer, error) {
	if m.getOffer == nil {
		return keitaro.Offer{}, errMockNotConfigured
	}
	return m.getOffer(id)
}

func (m *mockKeitaro) SearchOffers(_ context.Context, query string, limit int) ([]keitaro.Offer, error) {
	if m.searchOffers == nil {
		return nil, errMockNotConfigured
	}
	return m.searchOffers(query, limit)
}
