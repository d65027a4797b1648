package keitaro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CreateCampaignRequest carries the fields of a new remote campaign. Empty
// optional fields are omitted from the request body.
type CreateCampaignRequest struct {
	Name   string
	Geo    string
	Domain string
	Group  string
	Source string
}

// UpdateCampaignRequest mirrors CreateCampaignRequest for campaign updates
type UpdateCampaignRequest struct {
	Name   string
	Geo    string
	Domain string
	Group  string
	Source string
}

var aliasStripPattern = regexp.MustCompile(`[^a-z0-9_]`)

// campaignAlias derives the tracker alias from a campaign name: lowercase,
// spaces and dashes become underscores, everything else non-alphanumeric is
// stripped. An empty result falls back to a timestamped placeholder.
func campaignAlias(name string) string {
	alias := strings.ToLower(name)
	alias = strings.ReplaceAll(alias, " ", "_")
	alias = strings.ReplaceAll(alias, "-", "_")
	alias = aliasStripPattern.ReplaceAllString(alias, "")
	if alias == "" {
		alias = fmt.Sprintf("campaign_%d", time.Now().Unix())
	}
	return alias
}

// CreateCampaign creates a campaign in the tracker
func (c *Client) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (Campaign, error) {
	body := map[string]any{
		"name":  req.Name,
		"alias": campaignAlias(req.Name),
	}
	if req.Domain != "" {
		body["domain"] = req.Domain
	}
	if req.Group != "" {
		body["group"] = req.Group
	}
	if req.Source != "" {
		body["source"] = req.Source
	}
	if req.Geo != "" {
		body["parameters"] = map[string]string{"geo": req.Geo}
	}

	respBody, err := c.do(ctx, http.MethodPost, "/campaigns", nil, body)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}

	var campaign Campaign
	if err := json.Unmarshal(respBody, &campaign); err != nil {
		return Campaign{}, fmt.Errorf("failed to decode campaign response: %w", err)
	}
	return campaign, nil
}

// ListCampaigns retrieves the active campaigns, optionally capped at limit
func (c *Client) ListCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}

	respBody, err := c.do(ctx, http.MethodGet, "/campaigns", query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	var campaigns []Campaign
	if err := c.decodeList(ctx, respBody, "campaigns", &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// ListDeletedCampaigns retrieves campaigns the tracker has soft-deleted
func (c *Client) ListDeletedCampaigns(ctx context.Context) ([]Campaign, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/campaigns/deleted", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted campaigns: %w", err)
	}

	var campaigns []Campaign
	if err := c.decodeList(ctx, respBody, "campaigns", &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// GetCampaign retrieves one campaign by id
func (c *Client) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	respBody, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/campaigns/%d", id), nil, nil)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}

	var campaign Campaign
	if err := json.Unmarshal(respBody, &campaign); err != nil {
		return Campaign{}, fmt.Errorf("failed to decode campaign response: %w", err)
	}
	return campaign, nil
}

// UpdateCampaign pushes new campaign fields to the tracker
func (c *Client) UpdateCampaign(ctx context.Context, id int64, req UpdateCampaignRequest) (Campaign, error) {
	body := map[string]any{
		"name": req.Name,
	}
	if req.Domain != "" {
		body["domain"] = req.Domain
	}
	if req.Group != "" {
		body["group"] = req.Group
	}
	if req.Source != "" {
		body["source"] = req.Source
	}
	if req.Geo != "" {
		body["parameters"] = map[string]string{"geo": req.Geo}
	}

	respBody, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/campaigns/%d", id), nil, body)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to update campaign: %w", err)
	}

	var campaign Campaign
	if err := json.Unmarshal(respBody, &campaign); err != nil {
		return Campaign{}, fmt.Errorf("failed to decode campaign response: %w", err)
	}
	return campaign, nil
}
