package keitaro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// GetOffer retrieves one offer by id
func (c *Client) GetOffer(ctx context.Context, id int64) (Offer, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/offers/%d", id), nil, nil)
	if err != nil {
		return Offer{}, fmt.Errorf("failed to get offer: %w", err)
	}

	var offer Offer
	if err := json.Unmarshal(respBody, &offer); err != nil {
		return Offer{}, fmt.Errorf("failed to decode offer response: %w", err)
	}
	return offer, nil
}

// SearchOffers retrieves offers matching a free-text query
func (c *Client) SearchOffers(ctx context.Context, query string, limit int) ([]Offer, error) {
	params := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if query != "" {
		params.Set("search", query)
	}

	respBody, err := c.do(ctx, http.MethodGet, "/offers", params, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search offers: %w", err)
	}

	var offers []Offer
	if err := c.decodeList(ctx, respBody, "offers", &offers); err != nil {
		return nil, err
	}
	return offers, nil
}
