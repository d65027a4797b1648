package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"
	"keitaro-bridge/internal/store"

	"github.com/google/uuid"
)

// Flow 1 of a freshly created campaign redirects filtered-out traffic here.
const googleRedirectURL = "https://google.com"

// Flow creation outcomes. Confirmed means the tracker acknowledged the create
// with an id, imported means the stream was found by re-listing after an
// ambiguous or failed create, failed means no candidate produced a stream.
const (
	FlowCreationConfirmed = "confirmed"
	FlowCreationImported  = "imported"
	FlowCreationFailed    = "failed"
)

// FlowCreation is the terminal outcome of one flow creation sequence. Reason
// carries the last remote error when the sequence failed.
type FlowCreation struct {
	Status string      `json:"status"`
	Flow   *store.Flow `json:"flow,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// CreateCampaignParams represents parameters for creating a campaign with its
// two initial flows
type CreateCampaignParams struct {
	Name    string
	Geo     string
	OfferID int64
	Domain  string
	Group   string
	Source  string
}

// CreateFlowParams represents parameters for creating a single flow on an
// existing campaign. OfferIDs is the comma-separated remote offer id list of
// offer_redirect flows.
type CreateFlowParams struct {
	Name        string
	FlowType    string
	RedirectURL string
	Country     string
	OfferIDs    string
}

// flowSpec is the normalized input of one flow creation sequence.
type flowSpec struct {
	name        string
	flowType    string
	country     string
	redirectURL string
	offerIDs    []int64
}

// CreateCampaignWithFlows creates the campaign in the tracker, persists it
// locally and then attempts the two standard flows. Flow failures never roll
// the campaign back; each flow reports its own FlowCreation outcome.
func (p *CampaignProcessor) CreateCampaignWithFlows(ctx context.Context, params CreateCampaignParams) (store.Campaign, []FlowCreation, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_name", Value: params.Name},
		observability.Field{Key: "geo", Value: params.Geo},
	)

	domain := firstNonEmpty(params.Domain, p.defaults.Domain)
	group := firstNonEmpty(params.Group, p.defaults.Group)
	source := firstNonEmpty(params.Source, p.defaults.Source)

	remote, err := p.keitaro.CreateCampaign(ctx, keitaro.CreateCampaignRequest{
		Name:   params.Name,
		Geo:    params.Geo,
		Domain: domain,
		Group:  group,
		Source: source,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to create remote campaign", err)
		return store.Campaign{}, nil, err
	}
	if remote.ID == 0 {
		p.logger.Error(ctx, "remote campaign created without id", ErrMissingRemoteID)
		return store.Campaign{}, nil, ErrMissingRemoteID
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "remote_campaign_id", Value: remote.ID})

	campaign, err := p.store.CreateCampaign(ctx, store.CreateCampaignParams{
		RemoteID: remote.ID,
		Name:     params.Name,
		Geo:      params.Geo,
		OfferID:  params.OfferID,
		Domain:   domain,
		Group:    group,
		Source:   source,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to persist campaign", err)
		return store.Campaign{}, nil, err
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaign.ID.String()})

	geo := strings.ToUpper(params.Geo)
	creations := make([]FlowCreation, 0, 2)

	flow1 := p.runFlowCreation(ctx, campaign, flowSpec{
		name:        fmt.Sprintf("Flow 1 - %s to Google", geo),
		flowType:    store.FlowTypeCountryFilter,
		country:     geo,
		redirectURL: googleRedirectURL,
	})
	creations = append(creations, flow1)

	flow2 := p.runFlowCreation(ctx, campaign, flowSpec{
		name:     fmt.Sprintf("Flow 2 - Offer %d", params.OfferID),
		flowType: store.FlowTypeOfferRedirect,
		offerIDs: []int64{params.OfferID},
	})
	creations = append(creations, flow2)

	// The offer belongs to the campaign even when its flow never came up;
	// park it unbound so it can be attached later.
	if flow2.Status == FlowCreationFailed {
		name := p.offerName(ctx, params.OfferID)
		if _, err := p.store.EnsureCampaignOffer(ctx, store.CreateCampaignOfferParams{
			CampaignID: campaign.ID,
			OfferID:    params.OfferID,
			OfferName:  name,
			Weight:     1,
			Status:     store.OfferStatusActive,
		}); err != nil {
			p.logger.Error(ctx, "failed to park offer without flow", err)
		}
	}

	p.logger.Info(ctx, "campaign created")
	return campaign, creations, nil
}

// CreateFlowForCampaign runs one flow creation sequence on a linked campaign.
func (p *CampaignProcessor) CreateFlowForCampaign(ctx context.Context, campaignID uuid.UUID, params CreateFlowParams) (store.Flow, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "flow_type", Value: params.FlowType},
	)

	campaign, err := p.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Flow{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return store.Flow{}, err
	}
	if campaign.RemoteID == nil {
		return store.Flow{}, ErrCampaignNotLinked
	}
	if strings.TrimSpace(params.Name) == "" {
		return store.Flow{}, fmt.Errorf("%w: name is required", ErrInvalidFlowParams)
	}

	spec := flowSpec{name: params.Name, flowType: params.FlowType}
	switch params.FlowType {
	case store.FlowTypeCountryFilter:
		if params.RedirectURL == "" {
			return store.Flow{}, fmt.Errorf("%w: redirect_url is required for country_filter flows", ErrInvalidFlowParams)
		}
		if strings.TrimSpace(params.Country) == "" {
			return store.Flow{}, fmt.Errorf("%w: country is required for country_filter flows", ErrInvalidFlowParams)
		}
		spec.country = strings.ToUpper(strings.TrimSpace(params.Country))
		spec.redirectURL = params.RedirectURL
	case store.FlowTypeOfferRedirect:
		ids, err := parseOfferIDs(params.OfferIDs)
		if err != nil {
			return store.Flow{}, err
		}
		spec.offerIDs = ids
	default:
		return store.Flow{}, fmt.Errorf("%w: unknown flow type %q", ErrInvalidFlowParams, params.FlowType)
	}

	creation := p.runFlowCreation(ctx, campaign, spec)
	if creation.Status == FlowCreationFailed {
		return store.Flow{}, fmt.Errorf("%w: %s", ErrFlowCreationFailed, creation.Reason)
	}
	return *creation.Flow, nil
}

// runFlowCreation walks the candidate requests for one flow. A response with
// an id confirms the candidate; on any error the campaign's remote streams
// are re-listed, because the tracker sometimes commits writes it reports as
// failed. A matching stream is imported, otherwise the next candidate runs.
func (p *CampaignProcessor) runFlowCreation(ctx context.Context, campaign store.Campaign, spec flowSpec) FlowCreation {
	ctx = observability.WithFields(ctx, observability.Field{Key: "flow_name", Value: spec.name})

	var lastErr error
	for _, req := range p.streamCandidates(ctx, *campaign.RemoteID, spec) {
		stream, err := p.keitaro.CreateStream(ctx, req)
		if err == nil {
			if stream.ID == 0 {
				lastErr = ErrMissingRemoteID
				p.logger.Warn(ctx, "stream create response carries no id, trying next candidate")
				continue
			}
			flow, perr := p.persistCreatedFlow(ctx, campaign, spec, stream.ID, spec.name)
			if perr != nil {
				return FlowCreation{Status: FlowCreationFailed, Reason: perr.Error()}
			}
			p.logger.Info(ctx, "flow created")
			return FlowCreation{Status: FlowCreationConfirmed, Flow: &flow}
		}

		lastErr = err
		if errors.Is(err, keitaro.ErrAmbiguous) {
			p.logger.Warn(ctx, "stream create outcome ambiguous, re-listing streams")
		} else {
			p.logger.InfoWithError(ctx, "stream create failed, re-listing streams", err)
		}
		if flow, found := p.findExistingFlow(ctx, campaign, spec); found {
			p.logger.Info(ctx, "stream found remotely, imported as flow")
			return FlowCreation{Status: FlowCreationImported, Flow: &flow}
		}
	}

	reason := "no candidate accepted"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	p.logger.InfoWithError(ctx, "flow creation exhausted all candidates", lastErr)
	return FlowCreation{Status: FlowCreationFailed, Reason: reason}
}

// persistCreatedFlow stores the local flow row for a confirmed or imported
// stream and, for offer flows, its offer rows.
func (p *CampaignProcessor) persistCreatedFlow(ctx context.Context, campaign store.Campaign, spec flowSpec, remoteID int64, name string) (store.Flow, error) {
	flow, err := p.store.CreateFlow(ctx, store.CreateFlowParams{
		CampaignID:  campaign.ID,
		RemoteID:    &remoteID,
		Name:        name,
		FlowType:    spec.flowType,
		Country:     spec.country,
		RedirectURL: spec.redirectURL,
		IsPublished: true,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to persist flow", err)
		return store.Flow{}, err
	}
	if spec.flowType == store.FlowTypeOfferRedirect {
		p.saveFlowOffers(ctx, campaign.ID, flow.ID, spec.offerIDs)
	}
	return flow, nil
}

// findExistingFlow re-lists the campaign's remote streams and looks for one
// matching the intended flow. A match already known locally is returned as
// is; an unknown one is imported under the remote stream's name.
func (p *CampaignProcessor) findExistingFlow(ctx context.Context, campaign store.Campaign, spec flowSpec) (store.Flow, bool) {
	streams, err := p.keitaro.ListCampaignStreams(ctx, *campaign.RemoteID)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to list streams for verification", err)
		return store.Flow{}, false
	}

	for _, stream := range streams {
		if stream.ID == 0 || !matchesSpec(stream, spec) {
			continue
		}

		existing, err := p.store.GetFlowByRemoteID(ctx, stream.ID)
		if err == nil {
			return existing, true
		}
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error(ctx, "failed to look up flow by remote id", err)
			return store.Flow{}, false
		}

		flow, err := p.persistCreatedFlow(ctx, campaign, spec, stream.ID, stream.Name)
		if err != nil {
			return store.Flow{}, false
		}
		return flow, true
	}
	return store.Flow{}, false
}

// matchesSpec reports whether a remote stream is plausibly the flow the
// sequence meant to create.
func matchesSpec(stream keitaro.Stream, spec flowSpec) bool {
	name := strings.ToLower(stream.Name)
	if strings.Contains(name, strings.ToLower(spec.name)) {
		return true
	}

	switch spec.flowType {
	case store.FlowTypeCountryFilter:
		if spec.country != "" && strings.Contains(strings.ToUpper(stream.Name), spec.country) {
			return true
		}
		if spec.redirectURL != "" && stream.ActionPayload.URL != "" &&
			strings.Contains(stream.ActionPayload.URL, spec.redirectURL) {
			return true
		}
	case store.FlowTypeOfferRedirect:
		if len(spec.offerIDs) == 0 {
			return false
		}
		present := make(map[int64]bool)
		for _, offer := range stream.EffectiveOffers() {
			present[offer.ID] = true
		}
		for _, id := range spec.offerIDs {
			if !present[id] {
				return false
			}
		}
		return true
	}
	return false
}

// streamCandidates builds the ordered create requests for one flow. The
// tracker's write API differs between versions, so several filter, payload
// and offer encodings are tried in turn.
func (p *CampaignProcessor) streamCandidates(ctx context.Context, campaignRemoteID int64, spec flowSpec) []keitaro.CreateStreamRequest {
	if spec.flowType == store.FlowTypeCountryFilter {
		return p.countryFilterCandidates(ctx, campaignRemoteID, spec)
	}
	return offerRedirectCandidates(campaignRemoteID, spec)
}

func (p *CampaignProcessor) countryFilterCandidates(ctx context.Context, campaignRemoteID int64, spec flowSpec) []keitaro.CreateStreamRequest {
	schema := p.catalogs.schemaForRedirect(ctx)
	actionType := p.catalogs.actionTypeForRedirect(ctx)

	available := p.keitaro.ListStreamFilters(ctx)
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "schema", Value: schema},
		observability.Field{Key: "action_type", Value: actionType},
		observability.Field{Key: "filter_catalog_size", Value: len(available)},
	)
	p.logger.Debug(ctx, "building country filter candidates")

	filterVariants := [][]map[string]any{
		{{"name": "country", "mode": "accept", "payload": []string{spec.country}}},
		{{"name": "country", "operator": "is", "value": spec.country}},
		{{"name": "country", "payload": []string{spec.country}}},
	}
	payloadVariants := []any{
		spec.redirectURL,
		map[string]any{"url": spec.redirectURL},
	}

	candidates := make([]keitaro.CreateStreamRequest, 0, len(filterVariants)*len(payloadVariants))
	for _, filters := range filterVariants {
		for _, payload := range payloadVariants {
			candidates = append(candidates, keitaro.CreateStreamRequest{
				CampaignID:    campaignRemoteID,
				Name:          spec.name,
				Schema:        schema,
				ActionType:    actionType,
				ActionPayload: payload,
				Filters:       filters,
			})
		}
	}
	return candidates
}

func offerRedirectCandidates(campaignRemoteID int64, spec flowSpec) []keitaro.CreateStreamRequest {
	offerFormats := []func(id int64) map[string]any{
		func(id int64) map[string]any { return map[string]any{"id": id, "weight": 1} },
		func(id int64) map[string]any { return map[string]any{"offer_id": id, "weight": 1} },
		func(id int64) map[string]any { return map[string]any{"id": id, "share": 1} },
		func(id int64) map[string]any { return map[string]any{"offer_id": id, "share": 1} },
	}
	attempts := []struct {
		schema     string
		actionType string
	}{
		{"landings", ""},
		{"landings", "meta"},
		{"landings", "js"},
		{"landings", "http"},
		{"action", "http"},
	}

	candidates := make([]keitaro.CreateStreamRequest, 0, len(offerFormats)*len(attempts))
	for _, format := range offerFormats {
		offers := make([]map[string]any, 0, len(spec.offerIDs))
		for _, id := range spec.offerIDs {
			offers = append(offers, format(id))
		}
		for _, attempt := range attempts {
			candidates = append(candidates, keitaro.CreateStreamRequest{
				CampaignID: campaignRemoteID,
				Name:       spec.name,
				Schema:     attempt.schema,
				ActionType: attempt.actionType,
				Offers:     offers,
			})
		}
	}
	return candidates
}

// saveFlowOffers persists one offer row per id, bound to the flow with weight
// 1. Rows that already exist are left alone. Name lookups and row failures
// are logged and skipped, they never fail the flow.
func (p *CampaignProcessor) saveFlowOffers(ctx context.Context, campaignID, flowID uuid.UUID, offerIDs []int64) {
	for _, offerID := range offerIDs {
		name := p.offerName(ctx, offerID)
		if _, err := p.store.EnsureCampaignOffer(ctx, store.CreateCampaignOfferParams{
			CampaignID: campaignID,
			FlowID:     &flowID,
			OfferID:    offerID,
			OfferName:  name,
			Weight:     1,
			Status:     store.OfferStatusActive,
		}); err != nil {
			p.logger.Error(ctx, "failed to persist flow offer", err)
		}
	}
}

func (p *CampaignProcessor) offerName(ctx context.Context, offerID int64) string {
	offer, err := p.keitaro.GetOffer(ctx, offerID)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to fetch offer name", err)
		return ""
	}
	return offer.Name
}

// parseOfferIDs parses a comma-separated id list. Blank segments are skipped,
// anything non-numeric rejects the whole list.
func parseOfferIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidOfferIDs, part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one offer id is required", ErrInvalidOfferIDs)
	}
	return ids, nil
}

// PushFlowToRemote replaces the remote stream's offer list with the flow's
// active offers, then marks the flow published and clears its pending
// changes.
func (p *CampaignProcessor) PushFlowToRemote(ctx context.Context, flowID uuid.UUID) (store.Flow, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "flow_id", Value: flowID.String()})

	flow, err := p.getFlow(ctx, flowID)
	if err != nil {
		return store.Flow{}, err
	}
	campaign, err := p.store.GetCampaignByID(ctx, flow.CampaignID)
	if err != nil {
		p.logger.Error(ctx, "failed to get campaign", err)
		return store.Flow{}, err
	}
	if flow.RemoteID == nil || campaign.RemoteID == nil {
		return store.Flow{}, ErrFlowNotLinked
	}

	offers, err := p.store.ListActiveOffersByFlowID(ctx, flow.ID)
	if err != nil {
		p.logger.Error(ctx, "failed to list flow offers", err)
		return store.Flow{}, err
	}
	payload := make([]map[string]any, 0, len(offers))
	for _, offer := range offers {
		payload = append(payload, map[string]any{"id": offer.OfferID, "weight": offer.Weight})
	}

	if _, err := p.keitaro.UpdateStream(ctx, *flow.RemoteID, map[string]any{
		"action_payload": map[string]any{"offers": payload},
	}); err != nil {
		p.logger.Error(ctx, "failed to push offers to remote stream", err)
		return store.Flow{}, err
	}

	lock := p.locks.get(campaign.ID)
	lock.Lock()
	err = p.store.PublishFlow(ctx, flow.ID)
	lock.Unlock()
	if err != nil {
		p.logger.Error(ctx, "failed to mark flow published", err)
		return store.Flow{}, err
	}

	p.logger.Info(ctx, "flow pushed to remote")
	return p.getFlow(ctx, flowID)
}

// CancelFlowChanges rolls the flow's offers back to their state at the last
// publish by replaying the recorded undo actions. Entries whose offer row no
// longer exists or is no longer bound to the flow are skipped.
func (p *CampaignProcessor) CancelFlowChanges(ctx context.Context, flowID uuid.UUID) (store.Flow, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "flow_id", Value: flowID.String()})

	flow, err := p.getFlow(ctx, flowID)
	if err != nil {
		return store.Flow{}, err
	}

	lock := p.locks.get(flow.CampaignID)
	lock.Lock()
	defer lock.Unlock()

	changes, err := p.store.ListFlowOfferChanges(ctx, flow.ID)
	if err != nil {
		p.logger.Error(ctx, "failed to list pending changes", err)
		return store.Flow{}, err
	}

	params := store.ApplyFlowCancelParams{FlowID: flow.ID}
	for _, change := range changes {
		offer, err := p.store.GetCampaignOffer(ctx, flow.CampaignID, change.OfferID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			p.logger.Error(ctx, "failed to resolve pending change offer", err)
			return store.Flow{}, err
		}
		if offer.FlowID == nil || *offer.FlowID != flow.ID {
			continue
		}

		switch change.UndoAction {
		case store.UndoActionDelete:
			params.DeleteOfferIDs = append(params.DeleteOfferIDs, offer.ID)
		case store.UndoActionDeactivate:
			params.DeactivateOfferIDs = append(params.DeactivateOfferIDs, offer.ID)
		case store.UndoActionReactivate:
			params.ReactivateOfferIDs = append(params.ReactivateOfferIDs, offer.ID)
		case store.UndoActionUnbind:
			params.UnbindOfferIDs = append(params.UnbindOfferIDs, offer.ID)
		}
	}

	if err := p.store.ApplyFlowCancel(ctx, params); err != nil {
		p.logger.Error(ctx, "failed to apply cancel", err)
		return store.Flow{}, err
	}

	p.logger.Info(ctx, "flow changes cancelled")
	return p.getFlow(ctx, flowID)
}

// DeleteFlow removes the flow everywhere. The local row goes away even when
// the remote delete fails; that failure is reported after the fact.
func (p *CampaignProcessor) DeleteFlow(ctx context.Context, flowID uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "flow_id", Value: flowID.String()})

	flow, err := p.getFlow(ctx, flowID)
	if err != nil {
		return err
	}

	var remoteErr error
	if flow.RemoteID != nil {
		if remoteErr = p.keitaro.DeleteStream(ctx, *flow.RemoteID); remoteErr != nil {
			p.logger.InfoWithError(ctx, "remote stream delete failed, removing local flow anyway", remoteErr)
		}
	}

	lock := p.locks.get(flow.CampaignID)
	lock.Lock()
	err = p.store.DeleteFlow(ctx, flow.ID)
	lock.Unlock()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrFlowNotFound
		}
		p.logger.Error(ctx, "failed to delete flow", err)
		return err
	}

	if remoteErr != nil {
		return fmt.Errorf("%w: %v", ErrRemoteDeleteFailed, remoteErr)
	}
	p.logger.Info(ctx, "flow deleted")
	return nil
}

func (p *CampaignProcessor) getFlow(ctx context.Context, flowID uuid.UUID) (store.Flow, error) {
	flow, err := p.store.GetFlowByID(ctx, flowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Flow{}, ErrFlowNotFound
		}
		p.logger.Error(ctx, "failed to get flow", err)
		return store.Flow{}, err
	}
	return flow, nil
}
