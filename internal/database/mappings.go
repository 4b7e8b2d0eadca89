package database

import (
	"context"
	"database/sql"
	"fmt"

	"streamvault/models"
)

// MappingStore persists provider-side URLs for known content, so adapters
// that need a site-local URL skip the search step on later resolutions.
// Rows are keyed per title; the identity's season and episode play no part.
type MappingStore struct {
	conn *sql.DB
}

// Find returns the stored provider URL for (provider, identity), or ""
// when no mapping exists.
func (s *MappingStore) Find(ctx context.Context, provider string, id models.ContentIdentity) (string, error) {
	var url string
	err := s.conn.QueryRowContext(ctx, `
		SELECT provider_url FROM provider_mappings
		WHERE provider = ? AND media_type = ? AND content_id = ?`,
		provider, string(id.MediaType), id.PrimaryID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query provider mapping: %w", err)
	}
	return url, nil
}

// Upsert records or refreshes a provider mapping.
func (s *MappingStore) Upsert(ctx context.Context, provider string, id models.ContentIdentity, providerURL, title string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO provider_mappings (provider, media_type, content_id, provider_url, title, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (provider, media_type, content_id)
		DO UPDATE SET provider_url = excluded.provider_url, title = excluded.title, updated_at = CURRENT_TIMESTAMP`,
		provider, string(id.MediaType), id.PrimaryID, providerURL, title)
	if err != nil {
		return fmt.Errorf("upsert provider mapping: %w", err)
	}
	return nil
}
