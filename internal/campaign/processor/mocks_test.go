package processor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

// mockStore is an in-memory CampaignStore with the same observable behavior
// as the SQL store: keep-oldest change entries, blank names never clobber
// stored ones, flow bookkeeping piggybacks on offer mutations.
type mockStore struct {
	mu        sync.Mutex
	seq       int
	campaigns map[uuid.UUID]*store.Campaign
	flows     map[uuid.UUID]*store.Flow
	offers    map[uuid.UUID]*store.CampaignOffer
	changes   map[uuid.UUID][]store.FlowOfferChange
	failOn    map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		campaigns: make(map[uuid.UUID]*store.Campaign),
		flows:     make(map[uuid.UUID]*store.Flow),
		offers:    make(map[uuid.UUID]*store.CampaignOffer),
		changes:   make(map[uuid.UUID][]store.FlowOfferChange),
		failOn:    make(map[string]error),
	}
}

func (m *mockStore) stamp() time.Time {
	m.seq++
	return time.Unix(1700000000, 0).Add(time.Duration(m.seq) * time.Second)
}

// putCampaign seeds a campaign row directly, filling id and timestamps.
func (m *mockStore) putCampaign(c store.Campaign) store.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.stamp()
		c.UpdatedAt = c.CreatedAt
	}
	m.campaigns[c.ID] = &c
	return c
}

func (m *mockStore) putFlow(f store.Flow) store.Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = m.stamp()
		f.UpdatedAt = f.CreatedAt
	}
	m.flows[f.ID] = &f
	return f
}

func (m *mockStore) putOffer(o store.CampaignOffer) store.CampaignOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = store.OfferStatusActive
	}
	if o.Weight == 0 {
		o.Weight = 1
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = m.stamp()
		o.UpdatedAt = o.CreatedAt
	}
	m.offers[o.ID] = &o
	return o
}

func (m *mockStore) fail(method string) error { return m.failOn[method] }

func (m *mockStore) CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateCampaign"); err != nil {
		return store.Campaign{}, err
	}
	remoteID := params.RemoteID
	c := store.Campaign{
		ID:       uuid.New(),
		RemoteID: &remoteID,
		Name:     params.Name,
		Geo:      params.Geo,
		OfferID:  params.OfferID,
		Domain:   params.Domain,
		Group:    params.Group,
		Source:   params.Source,
	}
	c.CreatedAt = m.stamp()
	c.UpdatedAt = c.CreatedAt
	m.campaigns[c.ID] = &c
	return c, nil
}

func (m *mockStore) GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return store.Campaign{}, store.ErrNotFound
	}
	return *c, nil
}

func (m *mockStore) GetCampaignByRemoteID(ctx context.Context, remoteID int64) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.campaigns {
		if c.RemoteID != nil && *c.RemoteID == remoteID {
			return *c, nil
		}
	}
	return store.Campaign{}, store.ErrNotFound
}

func (m *mockStore) UpdateCampaign(ctx context.Context, campaignID uuid.UUID, params store.UpdateCampaignParams) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return store.Campaign{}, store.ErrNotFound
	}
	c.Name = params.Name
	c.Geo = params.Geo
	c.Domain = params.Domain
	c.Group = params.Group
	c.Source = params.Source
	c.UpdatedAt = m.stamp()
	return *c, nil
}

func (m *mockStore) UpsertCampaignByRemoteID(ctx context.Context, params store.UpsertCampaignParams) (store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertCampaignByRemoteID"); err != nil {
		return store.Campaign{}, err
	}
	for _, c := range m.campaigns {
		if c.RemoteID != nil && *c.RemoteID == params.RemoteID {
			c.Name = params.Name
			c.Geo = params.Geo
			c.Domain = params.Domain
			c.Group = params.Group
			c.Source = params.Source
			c.UpdatedAt = m.stamp()
			return *c, nil
		}
	}
	remoteID := params.RemoteID
	c := store.Campaign{
		ID:       uuid.New(),
		RemoteID: &remoteID,
		Name:     params.Name,
		Geo:      params.Geo,
		Domain:   params.Domain,
		Group:    params.Group,
		Source:   params.Source,
	}
	c.CreatedAt = m.stamp()
	c.UpdatedAt = c.CreatedAt
	m.campaigns[c.ID] = &c
	return c, nil
}

func (m *mockStore) ListCampaignsByRemoteIDs(ctx context.Context, remoteIDs []int64) ([]store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[int64]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		wanted[id] = true
	}
	var out []store.Campaign
	for _, c := range m.campaigns {
		if c.RemoteID != nil && wanted[*c.RemoteID] {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) ListCampaignsNotInRemoteIDs(ctx context.Context, remoteIDs []int64) ([]store.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	excluded := make(map[int64]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		excluded[id] = true
	}
	var out []store.Campaign
	for _, c := range m.campaigns {
		if c.RemoteID != nil && !excluded[*c.RemoteID] {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) CreateFlow(ctx context.Context, params store.CreateFlowParams) (store.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateFlow"); err != nil {
		return store.Flow{}, err
	}
	var remoteID *int64
	if params.RemoteID != nil {
		v := *params.RemoteID
		remoteID = &v
	}
	f := store.Flow{
		ID:          uuid.New(),
		CampaignID:  params.CampaignID,
		RemoteID:    remoteID,
		Name:        params.Name,
		FlowType:    params.FlowType,
		Country:     params.Country,
		RedirectURL: params.RedirectURL,
		IsPublished: params.IsPublished,
		HasChanges:  params.HasChanges,
	}
	f.CreatedAt = m.stamp()
	f.UpdatedAt = f.CreatedAt
	m.flows[f.ID] = &f
	return f, nil
}

func (m *mockStore) GetFlowByID(ctx context.Context, flowID uuid.UUID) (store.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowID]
	if !ok {
		return store.Flow{}, store.ErrNotFound
	}
	return *f, nil
}

func (m *mockStore) GetFlowByRemoteID(ctx context.Context, remoteID int64) (store.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.flows {
		if f.RemoteID != nil && *f.RemoteID == remoteID {
			return *f, nil
		}
	}
	return store.Flow{}, store.ErrNotFound
}

func (m *mockStore) ListFlowsByCampaignID(ctx context.Context, campaignID uuid.UUID) ([]store.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Flow
	for _, f := range m.flows {
		if f.CampaignID == campaignID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) UpsertFlowByRemoteID(ctx context.Context, params store.UpsertFlowParams) (store.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertFlowByRemoteID"); err != nil {
		return store.Flow{}, err
	}
	for _, f := range m.flows {
		if f.RemoteID != nil && *f.RemoteID == params.RemoteID {
			f.Name = params.Name
			f.FlowType = params.FlowType
			f.UpdatedAt = m.stamp()
			return *f, nil
		}
	}
	remoteID := params.RemoteID
	f := store.Flow{
		ID:          uuid.New(),
		CampaignID:  params.CampaignID,
		RemoteID:    &remoteID,
		Name:        params.Name,
		FlowType:    params.FlowType,
		IsPublished: true,
	}
	f.CreatedAt = m.stamp()
	f.UpdatedAt = f.CreatedAt
	m.flows[f.ID] = &f
	return f, nil
}

func (m *mockStore) PublishFlow(ctx context.Context, flowID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowID]
	if !ok {
		return store.ErrNotFound
	}
	f.IsPublished = true
	f.HasChanges = false
	f.UpdatedAt = m.stamp()
	delete(m.changes, flowID)
	return nil
}

func (m *mockStore) DeleteFlow(ctx context.Context, flowID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteFlow"); err != nil {
		return err
	}
	if _, ok := m.flows[flowID]; !ok {
		return store.ErrNotFound
	}
	delete(m.flows, flowID)
	for id, o := range m.offers {
		if o.FlowID != nil && *o.FlowID == flowID {
			delete(m.offers, id)
		}
	}
	delete(m.changes, flowID)
	return nil
}

func (m *mockStore) GetCampaignOffer(ctx context.Context, campaignID uuid.UUID, offerID int64) (store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o := m.findOffer(campaignID, offerID); o != nil {
		return *o, nil
	}
	return store.CampaignOffer{}, store.ErrNotFound
}

func (m *mockStore) findOffer(campaignID uuid.UUID, offerID int64) *store.CampaignOffer {
	for _, o := range m.offers {
		if o.CampaignID == campaignID && o.OfferID == offerID {
			return o
		}
	}
	return nil
}

func (m *mockStore) ListActiveOffersByCampaignID(ctx context.Context, campaignID uuid.UUID) ([]store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.CampaignOffer
	for _, o := range m.offers {
		if o.CampaignID == campaignID && o.Status == store.OfferStatusActive {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) ListActiveOffersByFlowID(ctx context.Context, flowID uuid.UUID) ([]store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.CampaignOffer
	for _, o := range m.offers {
		if o.FlowID != nil && *o.FlowID == flowID && o.Status == store.OfferStatusActive {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *mockStore) EnsureCampaignOffer(ctx context.Context, params store.CreateCampaignOfferParams) (store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("EnsureCampaignOffer"); err != nil {
		return store.CampaignOffer{}, err
	}
	if o := m.findOffer(params.CampaignID, params.OfferID); o != nil {
		return *o, nil
	}
	var flowID *uuid.UUID
	if params.FlowID != nil {
		v := *params.FlowID
		flowID = &v
	}
	o := store.CampaignOffer{
		ID:         uuid.New(),
		CampaignID: params.CampaignID,
		FlowID:     flowID,
		OfferID:    params.OfferID,
		OfferName:  params.OfferName,
		Weight:     params.Weight,
		Status:     params.Status,
	}
	o.CreatedAt = m.stamp()
	o.UpdatedAt = o.CreatedAt
	m.offers[o.ID] = &o
	return o, nil
}

func (m *mockStore) UpsertCampaignOffer(ctx context.Context, params store.UpsertCampaignOfferParams) (store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertCampaignOffer"); err != nil {
		return store.CampaignOffer{}, err
	}
	var flowID *uuid.UUID
	if params.FlowID != nil {
		v := *params.FlowID
		flowID = &v
	}

	o := m.findOffer(params.CampaignID, params.OfferID)
	if o == nil {
		created := store.CampaignOffer{
			ID:         uuid.New(),
			CampaignID: params.CampaignID,
			FlowID:     flowID,
			OfferID:    params.OfferID,
			OfferName:  params.OfferName,
			Weight:     params.Weight,
			Status:     store.OfferStatusActive,
		}
		created.CreatedAt = m.stamp()
		created.UpdatedAt = created.CreatedAt
		m.offers[created.ID] = &created
		o = &created
	} else {
		o.FlowID = flowID
		if params.OfferName != "" {
			o.OfferName = params.OfferName
		}
		o.Weight = params.Weight
		o.Status = store.OfferStatusActive
		o.UpdatedAt = m.stamp()
	}

	if params.FlowID != nil && params.MarkFlowChanged {
		if f, ok := m.flows[*params.FlowID]; ok {
			f.HasChanges = true
		}
	}
	if params.FlowID != nil && params.UndoAction != "" {
		m.recordChange(*params.FlowID, params.OfferID, params.UndoAction)
	}
	return *o, nil
}

// recordChange keeps the oldest entry per (flow, offer).
func (m *mockStore) recordChange(flowID uuid.UUID, offerID int64, action string) {
	for _, ch := range m.changes[flowID] {
		if ch.OfferID == offerID {
			return
		}
	}
	m.changes[flowID] = append(m.changes[flowID], store.FlowOfferChange{
		ID:         uuid.New(),
		FlowID:     flowID,
		OfferID:    offerID,
		UndoAction: action,
		CreatedAt:  m.stamp(),
	})
}

func (m *mockStore) bookkeeping(flowID uuid.UUID, offerID int64, undoAction string) {
	if f, ok := m.flows[flowID]; ok {
		f.HasChanges = true
	}
	if undoAction != "" {
		m.recordChange(flowID, offerID, undoAction)
	}
	m.resetUnpinned(flowID)
}

func (m *mockStore) resetUnpinned(flowID uuid.UUID) int64 {
	var n int64
	for _, o := range m.offers {
		if o.FlowID != nil && *o.FlowID == flowID && o.Status == store.OfferStatusActive && !o.WeightPinned {
			o.Weight = 1
			n++
		}
	}
	return n
}

func (m *mockStore) DeactivateCampaignOffer(ctx context.Context, params store.OfferLifecycleParams) (store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[params.OfferRowID]
	if !ok {
		return store.CampaignOffer{}, store.ErrNotFound
	}
	o.Status = store.OfferStatusRemoved
	o.UpdatedAt = m.stamp()
	if params.FlowID != nil {
		m.bookkeeping(*params.FlowID, o.OfferID, params.UndoAction)
	}
	return *o, nil
}

func (m *mockStore) ReactivateCampaignOffer(ctx context.Context, params store.OfferLifecycleParams) (store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[params.OfferRowID]
	if !ok {
		return store.CampaignOffer{}, store.ErrNotFound
	}
	o.Status = store.OfferStatusActive
	o.UpdatedAt = m.stamp()
	if params.FlowID != nil {
		m.bookkeeping(*params.FlowID, o.OfferID, params.UndoAction)
	}
	return *o, nil
}

func (m *mockStore) SyncFlowOffers(ctx context.Context, params store.SyncFlowOffersParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SyncFlowOffers"); err != nil {
		return err
	}
	for _, upsert := range params.Offers {
		flowID := params.FlowID
		if o := m.findOffer(params.CampaignID, upsert.OfferID); o != nil {
			o.FlowID = &flowID
			o.Weight = upsert.Weight
			o.Status = store.OfferStatusActive
			o.UpdatedAt = m.stamp()
			continue
		}
		o := store.CampaignOffer{
			ID:         uuid.New(),
			CampaignID: params.CampaignID,
			FlowID:     &flowID,
			OfferID:    upsert.OfferID,
			OfferName:  upsert.OfferName,
			Weight:     upsert.Weight,
			Status:     store.OfferStatusActive,
		}
		o.CreatedAt = m.stamp()
		o.UpdatedAt = o.CreatedAt
		m.offers[o.ID] = &o
	}
	return nil
}

func (m *mockStore) MarkOffersRemoved(ctx context.Context, offerRowIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range offerRowIDs {
		if o, ok := m.offers[id]; ok {
			o.Status = store.OfferStatusRemoved
			o.UpdatedAt = m.stamp()
		}
	}
	return nil
}

func (m *mockStore) SetOfferPinned(ctx context.Context, offerRowID uuid.UUID, pinned bool) (store.CampaignOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerRowID]
	if !ok {
		return store.CampaignOffer{}, store.ErrNotFound
	}
	o.WeightPinned = pinned
	o.UpdatedAt = m.stamp()
	return *o, nil
}

func (m *mockStore) ResetUnpinnedWeights(ctx context.Context, flowID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetUnpinned(flowID), nil
}

func (m *mockStore) ListFlowOfferChanges(ctx context.Context, flowID uuid.UUID) ([]store.FlowOfferChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.FlowOfferChange(nil), m.changes[flowID]...), nil
}

func (m *mockStore) ApplyFlowCancel(ctx context.Context, params store.ApplyFlowCancelParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ApplyFlowCancel"); err != nil {
		return err
	}
	for _, id := range params.DeleteOfferIDs {
		delete(m.offers, id)
	}
	for _, id := range params.DeactivateOfferIDs {
		if o, ok := m.offers[id]; ok {
			o.Status = store.OfferStatusRemoved
		}
	}
	for _, id := range params.ReactivateOfferIDs {
		if o, ok := m.offers[id]; ok {
			o.Status = store.OfferStatusActive
		}
	}
	for _, id := range params.UnbindOfferIDs {
		if o, ok := m.offers[id]; ok {
			o.FlowID = nil
		}
	}
	delete(m.changes, params.FlowID)
	if f, ok := m.flows[params.FlowID]; ok {
		f.HasChanges = false
		f.UpdatedAt = m.stamp()
	}
	m.resetUnpinned(params.FlowID)
	return nil
}

type streamUpdate struct {
	ID   int64
	Body map[string]any
}

type searchCall struct {
	Query string
	Limit int
}

// mockKeitaro scripts the tracker client. CreateStream behavior is injected
// per test through the createStream func; every call is recorded.
type mockKeitaro struct {
	mu sync.Mutex

	createCampaignResp keitaro.Campaign
	createCampaignErr  error
	createCampaignReqs []keitaro.CreateCampaignRequest

	updateCampaignErr  error
	updateCampaignReqs []keitaro.UpdateCampaignRequest

	getCampaignResp keitaro.Campaign
	getCampaignErr  error

	listCampaignsResp []keitaro.Campaign
	listCampaignsErr  error

	deletedCampaignsResp []keitaro.Campaign
	deletedCampaignsErr  error

	createStream     func(req keitaro.CreateStreamRequest) (keitaro.Stream, error)
	createStreamReqs []keitaro.CreateStreamRequest
	nextStreamID     int64

	streamsResp  []keitaro.Stream
	streamsErr   error
	streamsCalls int

	updateStreamErr   error
	updateStreamCalls []streamUpdate

	deleteStreamErr   error
	deleteStreamCalls []int64

	schemasResp  []keitaro.CatalogEntry
	schemasErr   error
	schemasCalls int
	actionsResp  []keitaro.CatalogEntry
	actionsErr   error
	filtersResp  []keitaro.CatalogEntry

	offersByID  map[int64]keitaro.Offer
	getOfferErr error

	searchResp  []keitaro.Offer
	searchErr   error
	searchCalls []searchCall
}

func newMockKeitaro() *mockKeitaro {
	return &mockKeitaro{
		createCampaignResp: keitaro.Campaign{ID: 7001},
		nextStreamID:       9000,
		offersByID:         make(map[int64]keitaro.Offer),
	}
}

func (k *mockKeitaro) CreateCampaign(ctx context.Context, req keitaro.CreateCampaignRequest) (keitaro.Campaign, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.createCampaignReqs = append(k.createCampaignReqs, req)
	if k.createCampaignErr != nil {
		return keitaro.Campaign{}, k.createCampaignErr
	}
	return k.createCampaignResp, nil
}

func (k *mockKeitaro) UpdateCampaign(ctx context.Context, id int64, req keitaro.UpdateCampaignRequest) (keitaro.Campaign, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.updateCampaignReqs = append(k.updateCampaignReqs, req)
	if k.updateCampaignErr != nil {
		return keitaro.Campaign{}, k.updateCampaignErr
	}
	return keitaro.Campaign{ID: id, Name: req.Name}, nil
}

func (k *mockKeitaro) GetCampaign(ctx context.Context, id int64) (keitaro.Campaign, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.getCampaignErr != nil {
		return keitaro.Campaign{}, k.getCampaignErr
	}
	return k.getCampaignResp, nil
}

func (k *mockKeitaro) ListCampaigns(ctx context.Context, limit int) ([]keitaro.Campaign, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.listCampaignsErr != nil {
		return nil, k.listCampaignsErr
	}
	return k.listCampaignsResp, nil
}

func (k *mockKeitaro) ListDeletedCampaigns(ctx context.Context) ([]keitaro.Campaign, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.deletedCampaignsErr != nil {
		return nil, k.deletedCampaignsErr
	}
	return k.deletedCampaignsResp, nil
}

func (k *mockKeitaro) ListCampaignStreams(ctx context.Context, campaignID int64) ([]keitaro.Stream, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.streamsCalls++
	if k.streamsErr != nil {
		return nil, k.streamsErr
	}
	return k.streamsResp, nil
}

func (k *mockKeitaro) CreateStream(ctx context.Context, req keitaro.CreateStreamRequest) (keitaro.Stream, error) {
	k.mu.Lock()
	k.createStreamReqs = append(k.createStreamReqs, req)
	fn := k.createStream
	k.nextStreamID++
	id := k.nextStreamID
	k.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return keitaro.Stream{ID: id, CampaignID: req.CampaignID, Name: req.Name}, nil
}

func (k *mockKeitaro) UpdateStream(ctx context.Context, id int64, body map[string]any) (keitaro.Stream, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.updateStreamCalls = append(k.updateStreamCalls, streamUpdate{ID: id, Body: body})
	if k.updateStreamErr != nil {
		return keitaro.Stream{}, k.updateStreamErr
	}
	return keitaro.Stream{ID: id}, nil
}

func (k *mockKeitaro) DeleteStream(ctx context.Context, id int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deleteStreamCalls = append(k.deleteStreamCalls, id)
	return k.deleteStreamErr
}

func (k *mockKeitaro) ListStreamSchemas(ctx context.Context) ([]keitaro.CatalogEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.schemasCalls++
	if k.schemasErr != nil {
		return nil, k.schemasErr
	}
	return k.schemasResp, nil
}

func (k *mockKeitaro) ListStreamActions(ctx context.Context) ([]keitaro.CatalogEntry, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.actionsErr != nil {
		return nil, k.actionsErr
	}
	return k.actionsResp, nil
}

func (k *mockKeitaro) ListStreamFilters(ctx context.Context) []keitaro.CatalogEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.filtersResp
}

func (k *mockKeitaro) GetOffer(ctx context.Context, id int64) (keitaro.Offer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.getOfferErr != nil {
		return keitaro.Offer{}, k.getOfferErr
	}
	if offer, ok := k.offersByID[id]; ok {
		return offer, nil
	}
	return keitaro.Offer{}, errors.New("offer not found")
}

func (k *mockKeitaro) SearchOffers(ctx context.Context, query string, limit int) ([]keitaro.Offer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.searchCalls = append(k.searchCalls, searchCall{Query: query, Limit: limit})
	if k.searchErr != nil {
		return nil, k.searchErr
	}
	return k.searchResp, nil
}

func newTestProcessor(t *testing.T) (*mockStore, *mockKeitaro, *CampaignProcessor) {
	t.Helper()
	st := newMockStore()
	kt := newMockKeitaro()
	p := New(st, kt, Defaults{Domain: "track.example.com", Group: "ios", Source: "facebook"}, observability.NewLogger())
	return st, kt, &p
}

func linkedCampaign(st *mockStore, remoteID int64) store.Campaign {
	return st.putCampaign(store.Campaign{
		RemoteID: &remoteID,
		Name:     "US 1234 - iOS App",
		Geo:      "US",
		OfferID:  1234,
		Domain:   "track.example.com",
		Group:    "ios",
		Source:   "facebook",
	})
}
