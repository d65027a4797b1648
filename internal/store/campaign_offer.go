package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateCampaignOfferParams represents parameters for creating a campaign offer
type CreateCampaignOfferParams struct {
	CampaignID uuid.UUID
	FlowID     *uuid.UUID
	OfferID    int64
	OfferName  string
	Weight     int
	Status     string
}

// UpsertCampaignOfferParams represents parameters for adding an offer to a
// campaign. When the offer is bound to a flow the flow is marked dirty and a
// pending change entry can be recorded in the same transaction.
type UpsertCampaignOfferParams struct {
	CampaignID      uuid.UUID
	FlowID          *uuid.UUID
	OfferID         int64
	OfferName       string
	Weight          int
	MarkFlowChanged bool
	UndoAction      string
}

// OfferLifecycleParams represents parameters for removing or restoring an
// offer. FlowID carries the offer's current binding, nil means the offer is
// staged at campaign level and no flow bookkeeping happens.
type OfferLifecycleParams struct {
	OfferRowID uuid.UUID
	FlowID     *uuid.UUID
	UndoAction string
}

// SyncOfferUpsert is one remote offer entry applied during drift sync
type SyncOfferUpsert struct {
	OfferID   int64
	OfferName string
	Weight    int
}

// SyncFlowOffersParams represents the offer batch of one remote flow
type SyncFlowOffersParams struct {
	CampaignID uuid.UUID
	FlowID     uuid.UUID
	Offers     []SyncOfferUpsert
}

const sqlGetCampaignOffer = `
SELECT id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
FROM campaign_offers
WHERE campaign_id = $1 AND offer_id = $2
`

// GetCampaignOffer retrieves a campaign offer by campaign and remote offer id
func (s *Store) GetCampaignOffer(ctx context.Context, campaignID uuid.UUID, offerID int64) (CampaignOffer, error) {
	var offer CampaignOffer
	err := s.db.GetContext(ctx, &offer, sqlGetCampaignOffer, campaignID, offerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignOffer{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign offer", err)
		return CampaignOffer{}, fmt.Errorf("failed to get campaign offer: %w", err)
	}
	return offer, nil
}

const sqlListActiveOffersByCampaignID = `
SELECT id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
FROM campaign_offers
WHERE campaign_id = $1 AND status = 'active'
ORDER BY created_at DESC
`

// ListActiveOffersByCampaignID retrieves the active offers of a campaign
func (s *Store) ListActiveOffersByCampaignID(ctx context.Context, campaignID uuid.UUID) ([]CampaignOffer, error) {
	var offers []CampaignOffer
	err := s.db.SelectContext(ctx, &offers, sqlListActiveOffersByCampaignID, campaignID)
	if err != nil {
		s.logger.Error(ctx, "failed to list active offers by campaign id", err)
		return nil, fmt.Errorf("failed to list active offers by campaign id: %w", err)
	}
	return offers, nil
}

const sqlListActiveOffersByFlowID = `
SELECT id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
FROM campaign_offers
WHERE flow_id = $1 AND status = 'active'
ORDER BY weight DESC, created_at
`

// ListActiveOffersByFlowID retrieves the active offers bound to a flow
func (s *Store) ListActiveOffersByFlowID(ctx context.Context, flowID uuid.UUID) ([]CampaignOffer, error) {
	var offers []CampaignOffer
	err := s.db.SelectContext(ctx, &offers, sqlListActiveOffersByFlowID, flowID)
	if err != nil {
		s.logger.Error(ctx, "failed to list active offers by flow id", err)
		return nil, fmt.Errorf("failed to list active offers by flow id: %w", err)
	}
	return offers, nil
}

const sqlEnsureCampaignOffer = `
INSERT INTO campaign_offers (campaign_id, flow_id, offer_id, offer_name, weight, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (campaign_id, offer_id) DO NOTHING
RETURNING id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
`

// EnsureCampaignOffer creates a campaign offer if no row exists for the
// (campaign, offer) pair and returns the existing row otherwise.
func (s *Store) EnsureCampaignOffer(ctx context.Context, params CreateCampaignOfferParams) (CampaignOffer, error) {
	var offer CampaignOffer
	err := s.db.GetContext(ctx, &offer, sqlEnsureCampaignOffer,
		params.CampaignID,
		params.FlowID,
		params.OfferID,
		params.OfferName,
		params.Weight,
		params.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.GetCampaignOffer(ctx, params.CampaignID, params.OfferID)
		}
		s.logger.Error(ctx, "failed to ensure campaign offer", err)
		return CampaignOffer{}, fmt.Errorf("failed to ensure campaign offer: %w", err)
	}
	return offer, nil
}

const sqlUpsertCampaignOffer = `
INSERT INTO campaign_offers (campaign_id, flow_id, offer_id, offer_name, weight, status)
VALUES ($1, $2, $3, $4, $5, 'active')
ON CONFLICT (campaign_id, offer_id) DO UPDATE
SET flow_id = EXCLUDED.flow_id,
    offer_name = COALESCE(NULLIF(EXCLUDED.offer_name, ''), campaign_offers.offer_name),
    weight = EXCLUDED.weight,
    status = 'active',
    updated_at = now()
RETURNING id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
`

const sqlMarkFlowChanged = `
UPDATE flows
SET has_changes = true, updated_at = now()
WHERE id = $1
`

const sqlRecordFlowChange = `
INSERT INTO flow_offer_changes (flow_id, offer_id, undo_action)
VALUES ($1, $2, $3)
ON CONFLICT (flow_id, offer_id) DO NOTHING
`

const sqlResetUnpinnedWeights = `
UPDATE campaign_offers
SET weight = 1, updated_at = now()
WHERE flow_id = $1 AND status = 'active' AND weight_pinned = false
`

// UpsertCampaignOffer creates or reactivates a campaign offer, overwriting
// its weight and flow binding. A blank offer name never clobbers a known one.
// Flow bookkeeping runs in the same transaction.
func (s *Store) UpsertCampaignOffer(ctx context.Context, params UpsertCampaignOfferParams) (CampaignOffer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return CampaignOffer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var offer CampaignOffer
	err = tx.GetContext(ctx, &offer, sqlUpsertCampaignOffer,
		params.CampaignID,
		params.FlowID,
		params.OfferID,
		params.OfferName,
		params.Weight)
	if err != nil {
		s.logger.Error(ctx, "failed to upsert campaign offer", err)
		return CampaignOffer{}, fmt.Errorf("failed to upsert campaign offer: %w", err)
	}

	if params.FlowID != nil && params.MarkFlowChanged {
		if _, err := tx.ExecContext(ctx, sqlMarkFlowChanged, *params.FlowID); err != nil {
			s.logger.Error(ctx, "failed to mark flow changed", err)
			return CampaignOffer{}, fmt.Errorf("failed to mark flow changed: %w", err)
		}
	}
	if params.FlowID != nil && params.UndoAction != "" {
		if _, err := tx.ExecContext(ctx, sqlRecordFlowChange, *params.FlowID, params.OfferID, params.UndoAction); err != nil {
			s.logger.Error(ctx, "failed to record flow change", err)
			return CampaignOffer{}, fmt.Errorf("failed to record flow change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return CampaignOffer{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return offer, nil
}

const sqlDeactivateCampaignOffer = `
UPDATE campaign_offers
SET status = 'removed', updated_at = now()
WHERE id = $1
RETURNING id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
`

// DeactivateCampaignOffer soft-deletes an offer. For a flow-bound offer the
// flow is marked dirty, the undo entry recorded and the remaining unpinned
// active weights reset to 1, all in one transaction.
func (s *Store) DeactivateCampaignOffer(ctx context.Context, params OfferLifecycleParams) (CampaignOffer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return CampaignOffer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var offer CampaignOffer
	err = tx.GetContext(ctx, &offer, sqlDeactivateCampaignOffer, params.OfferRowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignOffer{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to deactivate campaign offer", err)
		return CampaignOffer{}, fmt.Errorf("failed to deactivate campaign offer: %w", err)
	}

	if params.FlowID != nil {
		if err := s.applyFlowBookkeeping(ctx, tx, *params.FlowID, offer.OfferID, params.UndoAction); err != nil {
			return CampaignOffer{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return CampaignOffer{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return offer, nil
}

const sqlReactivateCampaignOffer = `
UPDATE campaign_offers
SET status = 'active', updated_at = now()
WHERE id = $1
RETURNING id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
`

// ReactivateCampaignOffer brings a removed offer back, with the same flow
// bookkeeping as DeactivateCampaignOffer.
func (s *Store) ReactivateCampaignOffer(ctx context.Context, params OfferLifecycleParams) (CampaignOffer, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return CampaignOffer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var offer CampaignOffer
	err = tx.GetContext(ctx, &offer, sqlReactivateCampaignOffer, params.OfferRowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignOffer{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to reactivate campaign offer", err)
		return CampaignOffer{}, fmt.Errorf("failed to reactivate campaign offer: %w", err)
	}

	if params.FlowID != nil {
		if err := s.applyFlowBookkeeping(ctx, tx, *params.FlowID, offer.OfferID, params.UndoAction); err != nil {
			return CampaignOffer{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return CampaignOffer{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return offer, nil
}

// applyFlowBookkeeping marks the flow dirty, records the undo entry and
// resets unpinned weights inside the caller's transaction.
func (s *Store) applyFlowBookkeeping(ctx context.Context, tx *sqlx.Tx, flowID uuid.UUID, offerID int64, undoAction string) error {
	if _, err := tx.ExecContext(ctx, sqlMarkFlowChanged, flowID); err != nil {
		s.logger.Error(ctx, "failed to mark flow changed", err)
		return fmt.Errorf("failed to mark flow changed: %w", err)
	}
	if undoAction != "" {
		if _, err := tx.ExecContext(ctx, sqlRecordFlowChange, flowID, offerID, undoAction); err != nil {
			s.logger.Error(ctx, "failed to record flow change", err)
			return fmt.Errorf("failed to record flow change: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, sqlResetUnpinnedWeights, flowID); err != nil {
		s.logger.Error(ctx, "failed to reset unpinned weights", err)
		return fmt.Errorf("failed to reset unpinned weights: %w", err)
	}
	return nil
}

const sqlSyncOfferUpsert = `
INSERT INTO campaign_offers (campaign_id, flow_id, offer_id, offer_name, weight, status)
VALUES ($1, $2, $3, $4, $5, 'active')
ON CONFLICT (campaign_id, offer_id) DO UPDATE
SET flow_id = EXCLUDED.flow_id,
    weight = EXCLUDED.weight,
    status = 'active',
    updated_at = now()
`

// SyncFlowOffers applies the offer entries of one remote flow in a single
// transaction. Existing rows keep their display name, remote truth wins for
// binding, weight and status.
func (s *Store) SyncFlowOffers(ctx context.Context, params SyncFlowOffersParams) error {
	if len(params.Offers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, offer := range params.Offers {
		_, err := tx.ExecContext(ctx, sqlSyncOfferUpsert,
			params.CampaignID,
			params.FlowID,
			offer.OfferID,
			offer.OfferName,
			offer.Weight)
		if err != nil {
			s.logger.Error(ctx, "failed to sync flow offer", err)
			return fmt.Errorf("failed to sync flow offer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const sqlMarkOffersRemoved = `
UPDATE campaign_offers
SET status = 'removed', updated_at = now()
WHERE id IN (?)
`

// MarkOffersRemoved soft-deletes the given offer rows
func (s *Store) MarkOffersRemoved(ctx context.Context, offerRowIDs []uuid.UUID) error {
	if len(offerRowIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(sqlMarkOffersRemoved, offerRowIDs)
	if err != nil {
		return fmt.Errorf("failed to build offer removal query: %w", err)
	}
	query = s.db.Rebind(query)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error(ctx, "failed to mark offers removed", err)
		return fmt.Errorf("failed to mark offers removed: %w", err)
	}
	return nil
}

const sqlSetOfferPinned = `
UPDATE campaign_offers
SET weight_pinned = $2, updated_at = now()
WHERE id = $1
RETURNING id, campaign_id, flow_id, offer_id, offer_name, weight, weight_pinned, status, created_at, updated_at
`

// SetOfferPinned pins or unpins an offer's weight
func (s *Store) SetOfferPinned(ctx context.Context, offerRowID uuid.UUID, pinned bool) (CampaignOffer, error) {
	var offer CampaignOffer
	err := s.db.GetContext(ctx, &offer, sqlSetOfferPinned, offerRowID, pinned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignOffer{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to set offer pinned", err)
		return CampaignOffer{}, fmt.Errorf("failed to set offer pinned: %w", err)
	}
	return offer, nil
}

// ResetUnpinnedWeights sets the weight of every unpinned active offer of a
// flow back to 1 and reports how many rows changed.
func (s *Store) ResetUnpinnedWeights(ctx context.Context, flowID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlResetUnpinnedWeights, flowID)
	if err != nil {
		s.logger.Error(ctx, "failed to reset unpinned weights", err)
		return 0, fmt.Errorf("failed to reset unpinned weights: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
