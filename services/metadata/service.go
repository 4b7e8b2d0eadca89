// Package metadata resolves content identities to display titles and
// cross-reference ids. Movies and TV resolve against TMDB; anime resolves
// against MyAnimeList via Jikan, with a best-effort TMDB cross-reference.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"streamvault/config"
	"streamvault/models"
)

// ErrNotFound is returned when the upstream catalog has no entry for the
// requested id.
var ErrNotFound = errors.New("title not found")

type Service struct {
	tmdb  *tmdbClient
	jikan *jikanClient
}

func NewService(cfg config.MetadataSettings) *Service {
	return &Service{
		tmdb:  newTMDBClient(cfg.TMDBAPIKey, cfg.Language, nil),
		jikan: newJikanClient(nil),
	}
}

// SetHTTPClient replaces the HTTP client on both upstream clients, used by
// tests.
func (s *Service) SetHTTPClient(c *http.Client) {
	s.tmdb.httpc = c
	s.jikan.httpc = c
}

// Resolve maps an identity's primary id to a title plus cross-reference
// ids. For movies and TV the primary id is a TMDB id; for anime it is a
// MAL id.
func (s *Service) Resolve(ctx context.Context, identity models.ContentIdentity) (models.ResolvedMetadata, error) {
	switch identity.MediaType {
	case models.MediaTypeMovie:
		return s.resolveMovie(ctx, identity.PrimaryID)
	case models.MediaTypeTV:
		return s.resolveTV(ctx, identity.PrimaryID)
	case models.MediaTypeAnime:
		return s.resolveAnime(ctx, identity.PrimaryID)
	default:
		return models.ResolvedMetadata{}, fmt.Errorf("unsupported media type %q", identity.MediaType)
	}
}

func (s *Service) resolveMovie(ctx context.Context, tmdbID int) (models.ResolvedMetadata, error) {
	details, err := s.tmdb.details(ctx, "movie", tmdbID)
	if err != nil {
		return models.ResolvedMetadata{}, fmt.Errorf("movie %d: %w", tmdbID, err)
	}
	return models.ResolvedMetadata{
		Title: details.Title,
		IDs: models.CrossRefIDs{
			TMDBID: tmdbID,
			IMDBID: details.IMDBID,
		},
	}, nil
}

func (s *Service) resolveTV(ctx context.Context, tmdbID int) (models.ResolvedMetadata, error) {
	details, err := s.tmdb.details(ctx, "tv", tmdbID)
	if err != nil {
		return models.ResolvedMetadata{}, fmt.Errorf("tv %d: %w", tmdbID, err)
	}
	meta := models.ResolvedMetadata{
		Title: details.Name,
		IDs:   models.CrossRefIDs{TMDBID: tmdbID},
	}
	// TV details carry no imdb_id field; it lives under external_ids.
	imdbID, err := s.tmdb.externalIDs(ctx, "tv", tmdbID)
	if err != nil {
		log.Printf("[metadata] external ids for tv %d failed: %v", tmdbID, err)
	} else {
		meta.IDs.IMDBID = imdbID
	}
	return meta, nil
}

// resolveAnime treats the MAL entry as authoritative for the title. The
// TMDB cross-reference widens provider coverage but its absence never
// fails the resolution.
func (s *Service) resolveAnime(ctx context.Context, malID int) (models.ResolvedMetadata, error) {
	anime, err := s.jikan.animeDetails(ctx, malID)
	if err != nil {
		return models.ResolvedMetadata{}, fmt.Errorf("anime %d: %w", malID, err)
	}
	title := anime.displayTitle()
	if title == "" {
		return models.ResolvedMetadata{}, fmt.Errorf("anime %d: %w", malID, ErrNotFound)
	}

	meta := models.ResolvedMetadata{
		Title: title,
		IDs:   models.CrossRefIDs{MALID: malID},
	}

	tmdbID, err := s.tmdb.searchFirst(ctx, "tv", title)
	if err != nil {
		log.Printf("[metadata] tmdb cross-reference for %q failed: %v", title, err)
		return meta, nil
	}
	if tmdbID == 0 {
		return meta, nil
	}
	meta.IDs.TMDBID = tmdbID
	if imdbID, err := s.tmdb.externalIDs(ctx, "tv", tmdbID); err == nil {
		meta.IDs.IMDBID = imdbID
	}
	return meta, nil
}
