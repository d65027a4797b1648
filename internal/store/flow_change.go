package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ApplyFlowCancelParams carries the row operations that return a flow to its
// last published offer state. The engine resolves the pending change entries
// into concrete row ids, the store applies them atomically.
type ApplyFlowCancelParams struct {
	FlowID             uuid.UUID
	DeleteOfferIDs     []uuid.UUID
	DeactivateOfferIDs []uuid.UUID
	ReactivateOfferIDs []uuid.UUID
	UnbindOfferIDs     []uuid.UUID
}

const sqlListFlowOfferChanges = `
SELECT id, flow_id, offer_id, undo_action, created_at
FROM flow_offer_changes
WHERE flow_id = $1
ORDER BY created_at
`

// ListFlowOfferChanges retrieves the pending change entries of a flow
func (s *Store) ListFlowOfferChanges(ctx context.Context, flowID uuid.UUID) ([]FlowOfferChange, error) {
	var changes []FlowOfferChange
	err := s.db.SelectContext(ctx, &changes, sqlListFlowOfferChanges, flowID)
	if err != nil {
		s.logger.Error(ctx, "failed to list flow offer changes", err)
		return nil, fmt.Errorf("failed to list flow offer changes: %w", err)
	}
	return changes, nil
}

const sqlDeleteOffersByIDs = `
DELETE FROM campaign_offers
WHERE id IN (?)
`

const sqlDeactivateOffersByIDs = `
UPDATE campaign_offers
SET status = 'removed', updated_at = now()
WHERE id IN (?)
`

const sqlReactivateOffersByIDs = `
UPDATE campaign_offers
SET status = 'active', updated_at = now()
WHERE id IN (?)
`

const sqlUnbindOffersByIDs = `
UPDATE campaign_offers
SET flow_id = NULL, updated_at = now()
WHERE id IN (?)
`

const sqlClearFlowOfferChanges = `
DELETE FROM flow_offer_changes
WHERE flow_id = $1
`

const sqlClearFlowChanged = `
UPDATE flows
SET has_changes = false, updated_at = now()
WHERE id = $1
`

// ApplyFlowCancel undoes the pending offer edits of a flow in a single
// transaction, clears the change log, resets the dirty marker and sets every
// unpinned active weight back to 1.
func (s *Store) ApplyFlowCancel(ctx context.Context, params ApplyFlowCancelParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	undos := []struct {
		query string
		ids   []uuid.UUID
	}{
		{sqlDeleteOffersByIDs, params.DeleteOfferIDs},
		{sqlDeactivateOffersByIDs, params.DeactivateOfferIDs},
		{sqlReactivateOffersByIDs, params.ReactivateOfferIDs},
		{sqlUnbindOffersByIDs, params.UnbindOfferIDs},
	}
	for _, undo := range undos {
		if len(undo.ids) == 0 {
			continue
		}
		query, args, err := sqlx.In(undo.query, undo.ids)
		if err != nil {
			return fmt.Errorf("failed to build cancel query: %w", err)
		}
		query = tx.Rebind(query)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			s.logger.Error(ctx, "failed to undo flow offer change", err)
			return fmt.Errorf("failed to undo flow offer change: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, sqlClearFlowOfferChanges, params.FlowID); err != nil {
		s.logger.Error(ctx, "failed to clear flow offer changes", err)
		return fmt.Errorf("failed to clear flow offer changes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlClearFlowChanged, params.FlowID); err != nil {
		s.logger.Error(ctx, "failed to clear flow changed marker", err)
		return fmt.Errorf("failed to clear flow changed marker: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlResetUnpinnedWeights, params.FlowID); err != nil {
		s.logger.Error(ctx, "failed to reset unpinned weights", err)
		return fmt.Errorf("failed to reset unpinned weights: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
