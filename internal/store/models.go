package store

import (
	"time"

	"github.com/google/uuid"
)

// Campaign mirrors a Keitaro campaign. RemoteID is the tracker-side id; a
// row created through this service always carries one, the column stays
// nullable so a half-imported row never violates the schema.
type Campaign struct {
	ID       uuid.UUID `db:"id" json:"id"`
	RemoteID *int64    `db:"remote_id" json:"remote_id,omitempty"`
	Name     string    `db:"name" json:"name"`
	Geo      string    `db:"geo" json:"geo"`
	OfferID  int64     `db:"offer_id" json:"offer_id"`
	Domain   string    `db:"domain" json:"domain"`
	Group    string    `db:"group_name" json:"group"`
	Source   string    `db:"source" json:"source"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Relationships (loaded separately, not from DB)
	Flows  []Flow          `db:"-" json:"flows,omitempty"`
	Offers []CampaignOffer `db:"-" json:"offers,omitempty"`
}

// Flow mirrors a Keitaro stream inside a campaign.
type Flow struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CampaignID  uuid.UUID `db:"campaign_id" json:"campaign_id"`
	RemoteID    *int64    `db:"remote_id" json:"remote_id,omitempty"`
	Name        string    `db:"name" json:"name"`
	FlowType    string    `db:"flow_type" json:"flow_type"`
	Country     string    `db:"country" json:"country,omitempty"`
	RedirectURL string    `db:"redirect_url" json:"redirect_url,omitempty"`
	IsPublished bool      `db:"is_published" json:"is_published"`
	HasChanges  bool      `db:"has_changes" json:"has_changes"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CampaignOffer attaches a remote offer to a campaign. FlowID is null while
// the offer is staged at campaign level and set once it is bound to a flow.
// Removed offers are kept for history and can be brought back.
type CampaignOffer struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	CampaignID   uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	FlowID       *uuid.UUID `db:"flow_id" json:"flow_id,omitempty"`
	OfferID      int64      `db:"offer_id" json:"offer_id"`
	OfferName    string     `db:"offer_name" json:"offer_name"`
	Weight       int        `db:"weight" json:"weight"`
	WeightPinned bool       `db:"weight_pinned" json:"weight_pinned"`
	Status       string     `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Computed over the active offers of the same campaign+flow group,
	// not stored.
	SharePercent float64 `db:"-" json:"share_percent"`
}

// FlowOfferChange records one unpublished offer edit on a flow together
// with the action that undoes it. At most one row exists per (flow, offer);
// the oldest row wins, so replaying the undo returns the offer to its state
// at the last publish.
type FlowOfferChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	FlowID     uuid.UUID `db:"flow_id" json:"flow_id"`
	OfferID    int64     `db:"offer_id" json:"offer_id"`
	UndoAction string    `db:"undo_action" json:"undo_action"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
