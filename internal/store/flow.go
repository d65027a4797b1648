package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateFlowParams represents parameters for creating a flow
type CreateFlowParams struct {
	CampaignID  uuid.UUID
	RemoteID    *int64
	Name        string
	FlowType    string
	Country     string
	RedirectURL string
	IsPublished bool
	HasChanges  bool
}

// UpsertFlowParams represents parameters for upserting a flow by its remote id
type UpsertFlowParams struct {
	CampaignID uuid.UUID
	RemoteID   int64
	Name       string
	FlowType   string
}

const sqlCreateFlow = `
INSERT INTO flows (campaign_id, remote_id, name, flow_type, country, redirect_url, is_published, has_changes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, campaign_id, remote_id, name, flow_type, country, redirect_url, is_published, has_changes, created_at, updated_at
`

// CreateFlow creates a new flow record
func (s *Store) CreateFlow(ctx context.Context, params CreateFlowParams) (Flow, error) {
	var flow Flow
	err := s.db.GetContext(ctx, &flow, sqlCreateFlow,
		params.CampaignID,
		params.RemoteID,
		params.Name,
		params.FlowType,
		params.Country,
		params.RedirectURL,
		params.IsPublished,
		params.HasChanges)
	if err != nil {
		s.logger.Error(ctx, "failed to create flow", err)
		return Flow{}, fmt.Errorf("failed to create flow: %w", err)
	}
	return flow, nil
}

const sqlGetFlowByID = `
SELECT id, campaign_id, remote_id, name, flow_type, country, redirect_url, is_published, has_changes, created_at, updated_at
FROM flows
WHERE id = $1
`

// GetFlowByID retrieves a flow by ID
func (s *Store) GetFlowByID(ctx context.Context, flowID uuid.UUID) (Flow, error) {
	var flow Flow
	err := s.db.GetContext(ctx, &flow, sqlGetFlowByID, flowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Flow{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get flow by id", err)
		return Flow{}, fmt.Errorf("failed to get flow by id: %w", err)
	}
	return flow, nil
}

const sqlGetFlowByRemoteID = `
SELECT id, campaign_id, remote_id, name, flow_type, country, redirect_url, is_published, has_changes, created_at, updated_at
FROM flows
WHERE remote_id = $1
`

// GetFlowByRemoteID retrieves a flow by its Keitaro stream id
func (s *Store) GetFlowByRemoteID(ctx context.Context, remoteID int64) (Flow, error) {
	var flow Flow
	err := s.db.GetContext(ctx, &flow, sqlGetFlowByRemoteID, remoteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Flow{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get flow by remote id", err)
		return Flow{}, fmt.Errorf("failed to get flow by remote id: %w", err)
	}
	return flow, nil
}

const sqlListFlowsByCampaignID = `
SELECT id, campaign_id, remote_id, name, flow_type, country, redirect_url, is_published, has_changes, created_at, updated_at
FROM flows
WHERE campaign_id = $1
ORDER BY created_at
`

// ListFlowsByCampaignID retrieves all flows of a campaign
func (s *Store) ListFlowsByCampaignID(ctx context.Context, campaignID uuid.UUID) ([]Flow, error) {
	var flows []Flow
	err := s.db.SelectContext(ctx, &flows, sqlListFlowsByCampaignID, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list flows by campaign id", err)
		return nil, fmt.Errorf("failed to list flows by campaign id: %w", err)
	}
	return flows, nil
}

const sqlUpsertFlowByRemoteID = `
INSERT INTO flows (campaign_id, remote_id, name, flow_type, is_published, has_changes)
VALUES ($1, $2, $3, $4, true, false)
ON CONFLICT (remote_id) DO UPDATE
SET name = EXCLUDED.name,
    flow_type = EXCLUDED.flow_type,
    updated_at = now()
RETURNING id, campaign_id, remote_id, name, flow_type, country, redirect_url, is_published, has_changes, created_at, updated_at
`

// UpsertFlowByRemoteID inserts a flow discovered remotely or refreshes the
// name and type of an existing one. Publish state is owned locally and stays
// untouched on update.
func (s *Store) UpsertFlowByRemoteID(ctx context.Context, params UpsertFlowParams) (Flow, error) {
	var flow Flow
	err := s.db.GetContext(ctx, &flow, sqlUpsertFlowByRemoteID,
		params.CampaignID,
		params.RemoteID,
		params.Name,
		params.FlowType)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert flow by remote id", err)
		return Flow{}, fmt.Errorf("failed to upsert flow by remote id: %w", err)
	}
	return flow, nil
}

const sqlPublishFlow = `
UPDATE flows
SET is_published = true, has_changes = false, updated_at = now()
WHERE id = $1
`

const sqlDeleteFlowChanges = `
DELETE FROM flow_offer_changes
WHERE flow_id = $1
`

// PublishFlow marks a flow as pushed to the tracker and clears its pending
// offer changes in one transaction.
func (s *Store) PublishFlow(ctx context.Context, flowID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, sqlPublishFlow, flowID)
	if err != nil {
		s.logger.Error(ctx, "failed to publish flow", err)
		return fmt.Errorf("failed to publish flow: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteFlowChanges, flowID); err != nil {
		s.logger.Error(ctx, "failed to clear flow changes", err)
		return fmt.Errorf("failed to clear flow changes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sqlDeleteFlow = `
DELETE FROM flows
WHERE id = $1
`

// DeleteFlow deletes a flow. Bound offers and pending changes cascade.
func (s *Store) DeleteFlow(ctx context.Context, flowID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, sqlDeleteFlow, flowID)
	if err != nil {
		s.logger.Error(ctx, "failed to delete flow", err)
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		s.logger.Error(ctx, "failed to get rows affected", err)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
