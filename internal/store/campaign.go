package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateCampaignParams represents parameters for creating a campaign
type CreateCampaignParams struct {
	RemoteID int64
	Name     string
	Geo      string
	OfferID  int64
	Domain   string
	Group    string
	Source   string
}

// UpdateCampaignParams represents parameters for updating a campaign
type UpdateCampaignParams struct {
	Name   string
	Geo    string
	Domain string
	Group  string
	Source string
}

// UpsertCampaignParams represents parameters for upserting a campaign by its remote id
type UpsertCampaignParams struct {
	RemoteID int64
	Name     string
	Geo      string
	Domain   string
	Group    string
	Source   string
}

const sqlCreateCampaign = `
INSERT INTO campaigns (remote_id, name, geo, offer_id, domain, group_name, source)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
`

// CreateCampaign creates a new campaign record
func (s *Store) CreateCampaign(ctx context.Context, params CreateCampaignParams) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlCreateCampaign,
		params.RemoteID,
		params.Name,
		params.Geo,
		params.OfferID,
		params.Domain,
		params.Group,
		params.Source)
	if err != nil {
		s.logger.Error(ctx, "failed to create campaign", err)
		return Campaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignByID = `
SELECT id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
FROM campaigns
WHERE id = $1
`

// GetCampaignByID retrieves a campaign by ID
func (s *Store) GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByID, campaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign by id", err)
		return Campaign{}, fmt.Errorf("failed to get campaign by id: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignByRemoteID = `
SELECT id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
FROM campaigns
WHERE remote_id = $1
`

// GetCampaignByRemoteID retrieves a campaign by its Keitaro campaign id
func (s *Store) GetCampaignByRemoteID(ctx context.Context, remoteID int64) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByRemoteID, remoteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign by remote id", err)
		return Campaign{}, fmt.Errorf("failed to get campaign by remote id: %w", err)
	}
	return campaign, nil
}

const sqlListCampaignsByRemoteIDs = `
SELECT id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
FROM campaigns
WHERE remote_id IN (?)
ORDER BY created_at DESC
`

// ListCampaignsByRemoteIDs retrieves the campaigns whose remote id is in the given set
func (s *Store) ListCampaignsByRemoteIDs(ctx context.Context, remoteIDs []int64) ([]Campaign, error) {
	if len(remoteIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(sqlListCampaignsByRemoteIDs, remoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build campaign list query: %w", err)
	}
	query = s.db.Rebind(query)

	var campaigns []Campaign
	err = s.db.SelectContext(ctx, &campaigns, query, args...)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaigns by remote ids", err)
		return nil, fmt.Errorf("failed to list campaigns by remote ids: %w", err)
	}
	return campaigns, nil
}

const sqlListCampaignsNotInRemoteIDs = `
SELECT id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
FROM campaigns
WHERE remote_id IS NOT NULL AND remote_id NOT IN (?)
ORDER BY created_at DESC
`

const sqlListLinkedCampaigns = `
SELECT id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
FROM campaigns
WHERE remote_id IS NOT NULL
ORDER BY created_at DESC
`

// ListCampaignsNotInRemoteIDs retrieves linked campaigns whose remote id is absent
// from the given set. An empty set returns every linked campaign.
func (s *Store) ListCampaignsNotInRemoteIDs(ctx context.Context, remoteIDs []int64) ([]Campaign, error) {
	var campaigns []Campaign

	if len(remoteIDs) == 0 {
		err := s.db.SelectContext(ctx, &campaigns, sqlListLinkedCampaigns)
		if err != nil {
			s.logger.Error(ctx, "failed to list linked campaigns", err)
			return nil, fmt.Errorf("failed to list linked campaigns: %w", err)
		}
		return campaigns, nil
	}

	query, args, err := sqlx.In(sqlListCampaignsNotInRemoteIDs, remoteIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build campaign history query: %w", err)
	}
	query = s.db.Rebind(query)

	err = s.db.SelectContext(ctx, &campaigns, query, args...)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaigns not in remote ids", err)
		return nil, fmt.Errorf("failed to list campaigns not in remote ids: %w", err)
	}
	return campaigns, nil
}

const sqlUpdateCampaign = `
UPDATE campaigns
SET name = $2,
    geo = $3,
    domain = $4,
    group_name = $5,
    source = $6,
    updated_at = now()
WHERE id = $1
RETURNING id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
`

// UpdateCampaign updates the editable campaign fields
func (s *Store) UpdateCampaign(ctx context.Context, campaignID uuid.UUID, params UpdateCampaignParams) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlUpdateCampaign,
		campaignID,
		params.Name,
		params.Geo,
		params.Domain,
		params.Group,
		params.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to update campaign", err)
		return Campaign{}, fmt.Errorf("failed to update campaign: %w", err)
	}
	return campaign, nil
}

const sqlUpsertCampaignByRemoteID = `
INSERT INTO campaigns (remote_id, name, geo, offer_id, domain, group_name, source)
VALUES ($1, $2, $3, 0, $4, $5, $6)
ON CONFLICT (remote_id) DO UPDATE
SET name = EXCLUDED.name,
    geo = EXCLUDED.geo,
    domain = EXCLUDED.domain,
    group_name = EXCLUDED.group_name,
    source = EXCLUDED.source,
    updated_at = now()
RETURNING id, remote_id, name, geo, offer_id, domain, group_name, source, created_at, updated_at
`

// UpsertCampaignByRemoteID inserts a campaign discovered remotely or refreshes
// the mirrored fields of an existing one. The primary offer id is only set on
// insert, remote listings do not carry it.
func (s *Store) UpsertCampaignByRemoteID(ctx context.Context, params UpsertCampaignParams) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlUpsertCampaignByRemoteID,
		params.RemoteID,
		params.Name,
		params.Geo,
		params.Domain,
		params.Group,
		params.Source)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert campaign by remote id", err)
		return Campaign{}, fmt.Errorf("failed to upsert campaign by remote id: %w", err)
	}
	return campaign, nil
}
