package keitaro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CreateStreamRequest describes one stream creation attempt. Offers and
// Filters stay loosely typed because the tracker accepts several competing
// field spellings and the caller probes them in order.
type CreateStreamRequest struct {
	CampaignID    int64
	Name          string
	Schema        string
	ActionType    string
	ActionPayload any
	Offers        []map[string]any
	Filters       []map[string]any
}

// ListCampaignStreams retrieves the streams of a campaign
func (c *Client) ListCampaignStreams(ctx context.Context, campaignID int64) ([]Stream, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/campaigns/%d/streams", campaignID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign streams: %w", err)
	}

	var streams []Stream
	if err := c.decodeList(ctx, respBody, "streams", &streams); err != nil {
		return nil, err
	}
	return streams, nil
}

// CreateStream creates a stream in the tracker. The landings schema takes its
// offer list as a top-level field, every other schema nests the payload under
// action_payload. A server error answer does not prove the stream was not
// created, so it surfaces as ErrAmbiguous and the caller verifies by
// re-listing the campaign's streams.
func (c *Client) CreateStream(ctx context.Context, req CreateStreamRequest) (Stream, error) {
	body := map[string]any{
		"name":        req.Name,
		"campaign_id": req.CampaignID,
		"schema":      req.Schema,
	}
	if req.Schema == "landings" && len(req.Offers) > 0 {
		body["offers"] = req.Offers
	} else {
		payload := req.ActionPayload
		if payload == nil {
			if len(req.Offers) > 0 {
				payload = map[string]any{"offers": req.Offers}
			} else {
				payload = ""
			}
		}
		body["action_payload"] = payload
	}
	if req.ActionType != "" {
		body["action_type"] = req.ActionType
	}
	if len(req.Filters) > 0 {
		body["filters"] = req.Filters
	}

	respBody, err := c.do(ctx, http.MethodPost, "/streams", nil, body)
	if err != nil {
		if isServerError(err) {
			c.logger.Warn(ctx, fmt.Sprintf("stream creation answered with a server error, outcome unknown: %v", err))
			return Stream{}, fmt.Errorf("%w: %s", ErrAmbiguous, err)
		}
		return Stream{}, fmt.Errorf("failed to create stream: %w", err)
	}

	var stream Stream
	if err := json.Unmarshal(respBody, &stream); err != nil {
		return Stream{}, fmt.Errorf("failed to decode stream response: %w", err)
	}
	return stream, nil
}

// GetStream retrieves one stream by id
func (c *Client) GetStream(ctx context.Context, id int64) (Stream, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/streams/%d", id), nil, nil)
	if err != nil {
		return Stream{}, fmt.Errorf("failed to get stream: %w", err)
	}

	var stream Stream
	if err := json.Unmarshal(respBody, &stream); err != nil {
		return Stream{}, fmt.Errorf("failed to decode stream response: %w", err)
	}
	return stream, nil
}

// UpdateStream pushes new stream fields to the tracker. The body stays
// loosely typed, pushes only ever replace the action payload.
func (c *Client) UpdateStream(ctx context.Context, id int64, body map[string]any) (Stream, error) {
	respBody, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/streams/%d", id), nil, body)
	if err != nil {
		return Stream{}, fmt.Errorf("failed to update stream: %w", err)
	}

	var stream Stream
	if err := json.Unmarshal(respBody, &stream); err != nil {
		return Stream{}, fmt.Errorf("failed to decode stream response: %w", err)
	}
	return stream, nil
}

// DeleteStream removes a stream from the tracker
func (c *Client) DeleteStream(ctx context.Context, id int64) error {
	if _, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/streams/%d", id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	return nil
}

// ListStreamSchemas retrieves the stream schema catalog
func (c *Client) ListStreamSchemas(ctx context.Context) ([]CatalogEntry, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/stream_schemas", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list stream schemas: %w", err)
	}

	var schemas []CatalogEntry
	if err := c.decodeList(ctx, respBody, "schemas", &schemas); err != nil {
		return nil, err
	}
	return schemas, nil
}

// ListStreamActions retrieves the stream action catalog
func (c *Client) ListStreamActions(ctx context.Context) ([]CatalogEntry, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/streams_actions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list stream actions: %w", err)
	}

	var actions []CatalogEntry
	if err := c.decodeList(ctx, respBody, "actions", &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// ListStreamFilters retrieves the stream filter catalog. The endpoint is
// missing on some tracker versions, so every failure degrades to an empty
// list with a warning.
func (c *Client) ListStreamFilters(ctx context.Context) []CatalogEntry {
	respBody, err := c.do(ctx, http.MethodGet, "/stream_filters", nil, nil)
	if err != nil {
		c.logger.Warn(ctx, fmt.Sprintf("could not get stream filters: %v", err))
		return nil
	}

	var filters []CatalogEntry
	if err := c.decodeList(ctx, respBody, "filters", &filters); err != nil {
		c.logger.Warn(ctx, fmt.Sprintf("could not decode stream filters: %v", err))
		return nil
	}
	return filters
}
