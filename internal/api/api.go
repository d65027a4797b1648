package api

import (
	"keitaro-bridge/internal/auth"
	campaignHandler "keitaro-bridge/internal/campaign/handler"
	"net/http"

	"github.com/gin-gonic/gin"
)

type API struct {
	router          *gin.RouterGroup
	verifier        auth.Verifier
	campaignHandler campaignHandler.Handler
}

func New(router *gin.RouterGroup, verifier auth.Verifier, handler campaignHandler.Handler) API {
	return API{
		router:          router,
		verifier:        verifier,
		campaignHandler: handler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api", a.verifier.HandleJWTMiddleware)
	{
		campaignGroup := apiGroup.Group("/campaigns")
		campaignGroup.GET("", a.campaignHandler.HandleListCampaigns)
		campaignGroup.POST("", a.campaignHandler.HandleCreateCampaign)
		campaignGroup.GET("/deleted", a.campaignHandler.HandleListDeletedCampaigns)
		campaignGroup.GET("/:campaign_id", a.campaignHandler.HandleGetCampaign)
		campaignGroup.PUT("/:campaign_id", a.campaignHandler.HandleUpdateCampaign)
		campaignGroup.POST("/:campaign_id/sync", a.campaignHandler.HandleSyncCampaign)
		campaignGroup.GET("/:campaign_id/diagnostics", a.campaignHandler.HandleGetDiagnostics)
		campaignGroup.POST("/:campaign_id/offers", a.campaignHandler.HandleAddOffer)
		campaignGroup.POST("/:campaign_id/offers/:offer_id/remove", a.campaignHandler.HandleRemoveOffer)
		campaignGroup.POST("/:campaign_id/offers/:offer_id/bring-back", a.campaignHandler.HandleBringBackOffer)
		campaignGroup.POST("/:campaign_id/offers/:offer_id/pin", a.campaignHandler.HandlePinOffer)
		campaignGroup.POST("/:campaign_id/offers/:offer_id/unpin", a.campaignHandler.HandleUnpinOffer)
		campaignGroup.POST("/:campaign_id/flows", a.campaignHandler.HandleCreateFlow)
		campaignGroup.DELETE("/:campaign_id/flows/:flow_id", a.campaignHandler.HandleDeleteFlow)
		campaignGroup.POST("/:campaign_id/flows/:flow_id/push", a.campaignHandler.HandlePushFlow)
		campaignGroup.POST("/:campaign_id/flows/:flow_id/cancel", a.campaignHandler.HandleCancelFlowChanges)
	}
	apiGroup.GET("/offers/search", a.campaignHandler.HandleSearchOffers)
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
