package processor

import (
	"context"
	"sync"
	"time"

	"keitaro-bridge/internal/clients/keitaro"
	"keitaro-bridge/internal/observability"
)

const catalogTTL = 5 * time.Minute

// Fallbacks used when the catalogs are empty or name nothing usable.
const (
	fallbackSchemaOffers   = "landings"
	fallbackSchemaRedirect = "redirect"
	fallbackActionType     = "http"
)

// catalogCache holds the tracker's stream schema and action catalogs. One
// fetch serves every resolution inside the TTL window; a failed fetch caches
// empty catalogs for the same window.
type catalogCache struct {
	client KeitaroClient
	logger *observability.Logger

	mu        sync.Mutex
	schemas   []keitaro.CatalogEntry
	actions   []keitaro.CatalogEntry
	fetchedAt time.Time
}

func newCatalogCache(client KeitaroClient, logger *observability.Logger) *catalogCache {
	return &catalogCache{client: client, logger: logger}
}

func (c *catalogCache) load(ctx context.Context) (schemas, actions []keitaro.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < catalogTTL {
		return c.schemas, c.actions
	}

	schemas, err := c.client.ListStreamSchemas(ctx)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to fetch stream schemas, resolution will use fallbacks", err)
		schemas = nil
	}
	actions, err = c.client.ListStreamActions(ctx)
	if err != nil {
		c.logger.InfoWithError(ctx, "failed to fetch stream actions, resolution will use fallbacks", err)
		actions = nil
	}

	c.schemas = schemas
	c.actions = actions
	c.fetchedAt = time.Now()
	return c.schemas, c.actions
}

// schemaForOffers resolves the schema for flows that carry an offer list.
// Prefers the landings schema, else the first catalog entry.
func (c *catalogCache) schemaForOffers(ctx context.Context) string {
	schemas, _ := c.load(ctx)
	for _, entry := range schemas {
		if entry.Value == fallbackSchemaOffers {
			return fallbackSchemaOffers
		}
	}
	if len(schemas) > 0 {
		if v := firstNonEmpty(schemas[0].Value, schemas[0].Key); v != "" {
			return v
		}
	}
	return fallbackSchemaOffers
}

// schemaForRedirect resolves the schema for URL redirect flows.
func (c *catalogCache) schemaForRedirect(ctx context.Context) string {
	schemas, _ := c.load(ctx)
	for _, entry := range schemas {
		if entry.Value == fallbackSchemaRedirect || entry.Key == fallbackSchemaRedirect {
			return firstNonEmpty(entry.Value, fallbackSchemaRedirect)
		}
	}
	if len(schemas) > 0 {
		if v := firstNonEmpty(schemas[0].Value, schemas[0].Key); v != "" {
			return v
		}
	}
	return fallbackSchemaRedirect
}

// actionTypeForRedirect resolves the action type for redirect flows. Prefers
// the http action of the redirect group, else any known redirect action key.
func (c *catalogCache) actionTypeForRedirect(ctx context.Context) string {
	_, actions := c.load(ctx)
	for _, entry := range actions {
		if entryKey(entry) == "http" && entry.Type == "redirect" {
			return "http"
		}
	}
	for _, entry := range actions {
		switch key := entryKey(entry); key {
		case "http", "meta", "js":
			return key
		}
	}
	return fallbackActionType
}

// actionTypeForOffers matches the redirect resolution, the tracker serves one
// action set for both flow kinds.
func (c *catalogCache) actionTypeForOffers(ctx context.Context) string {
	return c.actionTypeForRedirect(ctx)
}

func entryKey(entry keitaro.CatalogEntry) string {
	return firstNonEmpty(entry.Key, entry.Name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
