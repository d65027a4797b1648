package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"keitaro-bridge/internal/apierrors"
	"keitaro-bridge/internal/campaign/processor"
	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor *processor.CampaignProcessor
	logger    *observability.Logger
}

func New(processor *processor.CampaignProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// CreateCampaignRequest represents the HTTP request for creating a campaign
// with its two standard flows. Domain, group and source fall back to the
// configured defaults when omitted.
type CreateCampaignRequest struct {
	Name    string `json:"name" binding:"required,min=1,max=255"`
	Geo     string `json:"geo" binding:"required,min=2,max=10"`
	OfferID int64  `json:"offer_id" binding:"required,gt=0"`
	Domain  string `json:"domain" binding:"omitempty,max=255"`
	Group   string `json:"group" binding:"omitempty,max=255"`
	Source  string `json:"source" binding:"omitempty,max=255"`
}

// UpdateCampaignRequest represents the HTTP request for updating a campaign
type UpdateCampaignRequest struct {
	Name   string `json:"name" binding:"required,min=1,max=255"`
	Geo    string `json:"geo" binding:"required,min=2,max=10"`
	Domain string `json:"domain" binding:"omitempty,max=255"`
	Group  string `json:"group" binding:"omitempty,max=255"`
	Source string `json:"source" binding:"omitempty,max=255"`
}

// CreateFlowRequest represents the HTTP request for adding a flow to an
// existing campaign. OfferIDs is the comma-separated remote offer id list of
// offer_redirect flows.
type CreateFlowRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255"`
	FlowType    string `json:"flow_type" binding:"required,oneof=country_filter offer_redirect"`
	Country     string `json:"country" binding:"omitempty,max=10"`
	RedirectURL string `json:"redirect_url" binding:"omitempty,url"`
	OfferIDs    string `json:"offer_ids" binding:"omitempty,max=1024"`
}

// AddOfferRequest represents the HTTP request for attaching an offer to a
// campaign, optionally bound to one of its flows
type AddOfferRequest struct {
	OfferID int64   `json:"offer_id" binding:"required,gt=0"`
	Weight  int     `json:"weight" binding:"omitempty,gte=1"`
	FlowID  *string `json:"flow_id,omitempty" binding:"omitempty,uuid"`
}

// HandleListCampaigns lists the campaigns currently active in the tracker,
// refreshing the local mirror first
func (h *Handler) HandleListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()

	campaigns, err := h.processor.ListActiveCampaigns(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// HandleCreateCampaign creates a campaign in the tracker, mirrors it locally
// and reports the outcome of its two standard flows
func (h *Handler) HandleCreateCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_name", Value: req.Name},
		observability.Field{Key: "geo", Value: req.Geo},
	)

	params := processor.CreateCampaignParams{
		Name:    req.Name,
		Geo:     req.Geo,
		OfferID: req.OfferID,
		Domain:  req.Domain,
		Group:   req.Group,
		Source:  req.Source,
	}

	campaign, flows, err := h.processor.CreateCampaignWithFlows(ctx, params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"campaign": campaign,
		"flows":    flows,
	})
}

// HandleListDeletedCampaigns lists campaigns deleted in the tracker next to
// local rows whose remote counterpart disappeared
func (h *Handler) HandleListDeletedCampaigns(c *gin.Context) {
	ctx := c.Request.Context()

	deleted, err := h.processor.ListDeletedCampaigns(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, deleted)
}

// HandleGetCampaign returns a campaign with its flows and active offers,
// refreshed from the tracker on a best-effort basis
func (h *Handler) HandleGetCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	detail, err := h.processor.GetCampaignDetail(ctx, campaignID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// HandleUpdateCampaign updates a campaign locally and pushes the same fields
// to the tracker when the campaign is linked
func (h *Handler) HandleUpdateCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	params := processor.UpdateCampaignParams{
		Name:   req.Name,
		Geo:    req.Geo,
		Domain: req.Domain,
		Group:  req.Group,
		Source: req.Source,
	}

	result, err := h.processor.UpdateCampaign(ctx, campaignID, params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleSyncCampaign pulls the campaign's remote streams into the local
// mirror. Unlike the detail view this fails loudly when the tracker is
// unreachable.
func (h *Handler) HandleSyncCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	if err := h.processor.SyncFlowsFromRemote(ctx, campaignID); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "flows synced"})
}

// HandleGetDiagnostics returns the tracker catalogs, the campaign's remote
// streams and the schema/action values creation would currently pick
func (h *Handler) HandleGetDiagnostics(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	diagnostics, err := h.processor.Diagnostics(ctx, campaignID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, diagnostics)
}

// HandleAddOffer attaches an offer to the campaign, bound to one of its flows
// or staged unbound at campaign level
func (h *Handler) HandleAddOffer(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	var req AddOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	params := processor.AddOfferParams{
		OfferID: req.OfferID,
		Weight:  req.Weight,
	}
	if req.FlowID != nil {
		flowID, err := uuid.Parse(*req.FlowID)
		if err != nil {
			apierrors.BadRequest(c, "INVALID_INPUT", "Invalid flow ID format")
			return
		}
		params.FlowID = &flowID
	}

	offer, err := h.processor.AddOfferToCampaign(ctx, campaignID, params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, offer)
}

// HandleRemoveOffer soft-deletes an offer from the campaign
func (h *Handler) HandleRemoveOffer(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	offerID, ok := h.getOfferID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: offerID},
	)

	offer, err := h.processor.RemoveOfferFromCampaign(ctx, campaignID, offerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, offer)
}

// HandleBringBackOffer restores a previously removed offer
func (h *Handler) HandleBringBackOffer(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	offerID, ok := h.getOfferID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: offerID},
	)

	offer, err := h.processor.BringBackOffer(ctx, campaignID, offerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, offer)
}

// HandlePinOffer pins the offer's weight so recalculation leaves it alone
func (h *Handler) HandlePinOffer(c *gin.Context) {
	h.setOfferPinned(c, true)
}

// HandleUnpinOffer unpins the offer's weight and levels the owning flow
func (h *Handler) HandleUnpinOffer(c *gin.Context) {
	h.setOfferPinned(c, false)
}

func (h *Handler) setOfferPinned(c *gin.Context, pinned bool) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	offerID, ok := h.getOfferID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "offer_id", Value: offerID},
	)

	offer, err := h.processor.SetOfferWeightPinned(ctx, campaignID, offerID, pinned)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, offer)
}

// HandleCreateFlow runs one flow creation sequence on a linked campaign
func (h *Handler) HandleCreateFlow(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "campaign_id", Value: campaignID.String()})

	var req CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "flow_type", Value: req.FlowType})

	params := processor.CreateFlowParams{
		Name:        req.Name,
		FlowType:    req.FlowType,
		Country:     req.Country,
		RedirectURL: req.RedirectURL,
		OfferIDs:    req.OfferIDs,
	}

	flow, err := h.processor.CreateFlowForCampaign(ctx, campaignID, params)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flow)
}

// HandleDeleteFlow removes a flow locally and from the tracker
func (h *Handler) HandleDeleteFlow(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	flowID, ok := h.getFlowID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "flow_id", Value: flowID.String()},
	)

	if err := h.processor.DeleteFlow(ctx, flowID); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandlePushFlow publishes the flow's active offers to its remote stream
func (h *Handler) HandlePushFlow(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	flowID, ok := h.getFlowID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "flow_id", Value: flowID.String()},
	)

	flow, err := h.processor.PushFlowToRemote(ctx, flowID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, flow)
}

// HandleCancelFlowChanges rolls the flow's offers back to the last published
// state
func (h *Handler) HandleCancelFlowChanges(c *gin.Context) {
	ctx := c.Request.Context()

	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}
	flowID, ok := h.getFlowID(c)
	if !ok {
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: campaignID.String()},
		observability.Field{Key: "flow_id", Value: flowID.String()},
	)

	flow, err := h.processor.CancelFlowChanges(ctx, flowID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, flow)
}

// HandleSearchOffers proxies offer autocomplete to the tracker
func (h *Handler) HandleSearchOffers(c *gin.Context) {
	ctx := c.Request.Context()

	query := c.Query("q")

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if _, err := fmt.Sscanf(limitStr, "%d", &limit); err != nil || limit < 1 || limit > 100 {
			limit = 20
		}
	}

	offers, err := h.processor.SearchOffers(ctx, query, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

func (h *Handler) getCampaignID(c *gin.Context) (uuid.UUID, bool) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid campaign ID format")
		return uuid.UUID{}, false
	}
	return campaignID, true
}

func (h *Handler) getFlowID(c *gin.Context) (uuid.UUID, bool) {
	flowID, err := uuid.Parse(c.Param("flow_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid flow ID format")
		return uuid.UUID{}, false
	}
	return flowID, true
}

func (h *Handler) getOfferID(c *gin.Context) (int64, bool) {
	offerID, err := strconv.ParseInt(c.Param("offer_id"), 10, 64)
	if err != nil || offerID <= 0 {
		apierrors.BadRequest(c, "INVALID_INPUT", "Invalid offer ID format")
		return 0, false
	}
	return offerID, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var apiErr *keitaro.APIError
	switch {
	case errors.Is(err, processor.ErrCampaignNotFound):
		apierrors.NotFound(c, "Campaign not found")
	case errors.Is(err, processor.ErrFlowNotFound):
		apierrors.NotFound(c, "Flow not found")
	case errors.Is(err, processor.ErrOfferNotFound):
		apierrors.NotFound(c, "Offer not found")
	case errors.Is(err, processor.ErrInvalidFlowParams), errors.Is(err, processor.ErrInvalidOfferIDs):
		apierrors.BadRequest(c, "INVALID_INPUT", err.Error())
	case errors.Is(err, processor.ErrCampaignNotLinked):
		apierrors.Conflict(c, "CAMPAIGN_NOT_LINKED", "Campaign has no remote counterpart in the tracker")
	case errors.Is(err, processor.ErrFlowNotLinked):
		apierrors.Conflict(c, "FLOW_NOT_LINKED", "Flow has no remote counterpart in the tracker")
	case keitaro.IsUnauthorized(err):
		apierrors.BadGateway(c, "TRACKER_AUTH_FAILED", "Tracker rejected the configured API key", err)
	case errors.Is(err, processor.ErrFlowCreationFailed),
		errors.Is(err, processor.ErrRemoteDeleteFailed),
		errors.Is(err, processor.ErrMissingRemoteID),
		errors.Is(err, keitaro.ErrAmbiguous),
		errors.As(err, &apiErr):
		apierrors.BadGateway(c, "TRACKER_ERROR", err.Error(), err)
	default:
		apierrors.InternalError(c, err)
	}
}
