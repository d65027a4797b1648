package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// remoteIDCounter hands out unique remote ids so parallel tests never
// collide on the remote_id and offer_id unique constraints.
var remoteIDCounter atomic.Int64

func init() {
	remoteIDCounter.Store(time.Now().UnixNano() % 1_000_000_000)
}

func nextRemoteID() int64 {
	return remoteIDCounter.Add(1)
}

func createTestCampaign(t *testing.T, testDB *TestDB, name string) Campaign {
	t.Helper()
	campaign, err := testDB.Store.CreateCampaign(context.Background(), CreateCampaignParams{
		RemoteID: nextRemoteID(),
		Name:     name,
		Geo:      "US",
		OfferID:  nextRemoteID(),
		Domain:   "track.example.com",
		Group:    "ios",
		Source:   "facebook",
	})
	require.NoError(t, err, "failed to create test campaign")
	return campaign
}

func createTestFlow(t *testing.T, testDB *TestDB, campaignID uuid.UUID, flowType string) Flow {
	t.Helper()
	remoteID := nextRemoteID()
	flow, err := testDB.Store.CreateFlow(context.Background(), CreateFlowParams{
		CampaignID:  campaignID,
		RemoteID:    &remoteID,
		Name:        "Flow 1 - US to Google",
		FlowType:    flowType,
		Country:     "US",
		RedirectURL: "https://google.com",
		IsPublished: true,
	})
	require.NoError(t, err, "failed to create test flow")
	return flow
}

func createTestOffer(t *testing.T, testDB *TestDB, campaignID uuid.UUID, flowID *uuid.UUID, weight int) CampaignOffer {
	t.Helper()
	offer, err := testDB.Store.EnsureCampaignOffer(context.Background(), CreateCampaignOfferParams{
		CampaignID: campaignID,
		FlowID:     flowID,
		OfferID:    nextRemoteID(),
		OfferName:  "Test Offer",
		Weight:     weight,
		Status:     OfferStatusActive,
	})
	require.NoError(t, err, "failed to create test offer")
	return offer
}
