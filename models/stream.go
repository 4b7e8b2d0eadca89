package models

import "fmt"

// MediaType identifies the kind of content a request targets.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
	MediaTypeAnime MediaType = "anime"
)

// IsEpisodic reports whether the media type carries season/episode numbering.
func (m MediaType) IsEpisodic() bool {
	return m == MediaTypeTV || m == MediaTypeAnime
}

// AudioTrack selects between subtitled and dubbed audio for episodic content.
type AudioTrack string

const (
	AudioTrackSub AudioTrack = "sub"
	AudioTrackDub AudioTrack = "dub"
)

// ContentIdentity pins down exactly one playable piece of content. It is
// immutable once constructed for a request; every cache key derives from it.
type ContentIdentity struct {
	PrimaryID  int        `json:"primaryId"`
	MediaType  MediaType  `json:"mediaType"`
	Season     int        `json:"season,omitempty"`
	Episode    int        `json:"episode,omitempty"`
	AudioTrack AudioTrack `json:"audioTrack"`
}

// CacheKey returns the canonical key shared by the ephemeral and durable tiers:
// {mediaType}:{primaryId}:{season}:{episode}:{audioTrack}
func (c ContentIdentity) CacheKey() string {
	return fmt.Sprintf("%s:%d:%d:%d:%s", c.MediaType, c.PrimaryID, c.Season, c.Episode, c.AudioTrack)
}

// WithoutEpisode strips the episode selector, leaving the per-title identity
// used for provider mapping rows.
func (c ContentIdentity) WithoutEpisode() ContentIdentity {
	c.Season = 0
	c.Episode = 0
	return c
}

// CrossRefIDs carries the identifier cross-references gathered during metadata
// resolution. Any field may be empty.
type CrossRefIDs struct {
	TMDBID int    `json:"tmdbId,omitempty"`
	IMDBID string `json:"imdbId,omitempty"`
	MALID  int    `json:"malId,omitempty"`
}

// ResolvedMetadata is the read-only product of the metadata collaborators.
type ResolvedMetadata struct {
	Title string      `json:"title"`
	IDs   CrossRefIDs `json:"ids"`
}

// ScraperSearchResult is one candidate page/location a provider adapter found
// for a title.
type ScraperSearchResult struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Poster string `json:"poster,omitempty"`
}

// StreamLink is the terminal artifact handed back to callers: a playable URL
// plus whatever headers the upstream requires.
type StreamLink struct {
	URL        string            `json:"url"`
	Quality    string            `json:"quality,omitempty"`
	IsM3U8     bool              `json:"isM3U8"`
	Provider   string            `json:"provider"`
	AudioTrack AudioTrack        `json:"audioTrack,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// PrefetchItem is one entry of a batch prefetch request.
type PrefetchItem struct {
	ID         string     `json:"id"`
	PrimaryID  int        `json:"primaryId"`
	MediaType  MediaType  `json:"mediaType"`
	Title      string     `json:"title,omitempty"`
	AudioTrack AudioTrack `json:"audioTrack,omitempty"`
}

// Identity maps a prefetch item to the identity it warms. Episodic items
// target the first episode; whole-season prefetch is deliberately not
// offered.
func (p PrefetchItem) Identity() ContentIdentity {
	id := ContentIdentity{
		PrimaryID:  p.PrimaryID,
		MediaType:  p.MediaType,
		AudioTrack: p.AudioTrack,
	}
	if p.MediaType.IsEpisodic() {
		id.Season = 1
		id.Episode = 1
	}
	if p.MediaType == MediaTypeAnime && id.AudioTrack == "" {
		id.AudioTrack = AudioTrackSub
	}
	return id
}
