package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"streamvault/models"
)

// StreamStore persists resolved stream links per content identity.
type StreamStore struct {
	conn *sql.DB
}

// FindByIdentity returns all durable links recorded for an identity, oldest
// first. An identity with no rows returns an empty slice, not an error.
func (s *StreamStore) FindByIdentity(ctx context.Context, id models.ContentIdentity) ([]models.StreamLink, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT url, quality, is_m3u8, provider, link_audio_track, headers
		FROM resolved_streams
		WHERE media_type = ? AND content_id = ? AND season = ? AND episode = ? AND audio_track = ?
		ORDER BY id`,
		string(id.MediaType), id.PrimaryID, id.Season, id.Episode, string(id.AudioTrack))
	if err != nil {
		return nil, fmt.Errorf("query resolved streams: %w", err)
	}
	defer rows.Close()

	var links []models.StreamLink
	for rows.Next() {
		var (
			link       models.StreamLink
			isM3U8     int
			track      string
			headersRaw string
		)
		if err := rows.Scan(&link.URL, &link.Quality, &isM3U8, &link.Provider, &track, &headersRaw); err != nil {
			return nil, fmt.Errorf("scan resolved stream: %w", err)
		}
		link.IsM3U8 = isM3U8 != 0
		link.AudioTrack = models.AudioTrack(track)
		if headersRaw != "" {
			if err := json.Unmarshal([]byte(headersRaw), &link.Headers); err != nil {
				return nil, fmt.Errorf("decode stream headers: %w", err)
			}
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// HasIdentity reports whether any durable link exists for an identity.
func (s *StreamStore) HasIdentity(ctx context.Context, id models.ContentIdentity) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, `
		SELECT 1 FROM resolved_streams
		WHERE media_type = ? AND content_id = ? AND season = ? AND episode = ? AND audio_track = ?
		LIMIT 1`,
		string(id.MediaType), id.PrimaryID, id.Season, id.Episode, string(id.AudioTrack)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check resolved streams: %w", err)
	}
	return true, nil
}

// InsertIfAbsent records a link for an identity. Re-inserting the same
// (identity, url) pair is a no-op, so resolution retries never duplicate
// rows.
func (s *StreamStore) InsertIfAbsent(ctx context.Context, id models.ContentIdentity, link models.StreamLink) error {
	headersRaw := ""
	if len(link.Headers) > 0 {
		b, err := json.Marshal(link.Headers)
		if err != nil {
			return fmt.Errorf("encode stream headers: %w", err)
		}
		headersRaw = string(b)
	}
	isM3U8 := 0
	if link.IsM3U8 {
		isM3U8 = 1
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO resolved_streams (media_type, content_id, season, episode, audio_track, url, quality, is_m3u8, provider, link_audio_track, headers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_type, content_id, season, episode, audio_track, url) DO NOTHING`,
		string(id.MediaType), id.PrimaryID, id.Season, id.Episode, string(id.AudioTrack),
		link.URL, link.Quality, isM3U8, link.Provider, string(link.AudioTrack), headersRaw)
	if err != nil {
		return fmt.Errorf("insert resolved stream: %w", err)
	}
	return nil
}

// DeleteByIdentity removes all durable links for an identity. Used when a
// cached identity turns out to be fully dead.
func (s *StreamStore) DeleteByIdentity(ctx context.Context, id models.ContentIdentity) error {
	_, err := s.conn.ExecContext(ctx, `
		DELETE FROM resolved_streams
		WHERE media_type = ? AND content_id = ? AND season = ? AND episode = ? AND audio_track = ?`,
		string(id.MediaType), id.PrimaryID, id.Season, id.Episode, string(id.AudioTrack))
	if err != nil {
		return fmt.Errorf("delete resolved streams: %w", err)
	}
	return nil
}
