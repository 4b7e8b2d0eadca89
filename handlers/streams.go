package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"streamvault/models"
	"streamvault/services/resolver"
)

// StreamsHandler serves stream resolution over plain HTTP. Clients that
// want progressive results use the WebSocket gateway instead; this endpoint
// blocks until the full set is known.
type StreamsHandler struct {
	Resolver   *resolver.Service
	Prefetcher *resolver.Prefetcher
}

func NewStreamsHandler(r *resolver.Service, p *resolver.Prefetcher) *StreamsHandler {
	return &StreamsHandler{Resolver: r, Prefetcher: p}
}

// GetStreams handles GET /api/streams/{id}.
func (h *StreamsHandler) GetStreams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identity, err := identityFromRequest(mux.Vars(r)["id"], q.Get("season"), q.Get("episode"), q.Get("mediaType"), q.Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondResolved(w, r, identity)
}

// GetStreamsNested handles GET /api/streams/{id}/{season}/{episode}.
func (h *StreamsHandler) GetStreamsNested(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()
	identity, err := identityFromRequest(vars["id"], vars["season"], vars["episode"], q.Get("mediaType"), q.Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondResolved(w, r, identity)
}

// DeleteStreams handles DELETE on the streams routes. It drops the
// identity from the ephemeral cache and the durable store so the next
// request resolves fresh, for when every stored link has gone dead.
func (h *StreamsHandler) DeleteStreams(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()
	season := vars["season"]
	if season == "" {
		season = q.Get("season")
	}
	episode := vars["episode"]
	if episode == "" {
		episode = q.Get("episode")
	}
	identity, err := identityFromRequest(vars["id"], season, episode, q.Get("mediaType"), q.Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Resolver.Invalidate(r.Context(), identity); err != nil {
		log.Printf("[handlers] invalidate %s failed: %v", identity.CacheKey(), err)
		http.Error(w, "invalidation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *StreamsHandler) respondResolved(w http.ResponseWriter, r *http.Request, identity models.ContentIdentity) {
	links, err := h.Resolver.Resolve(r.Context(), identity, nil)
	if err != nil {
		// A failed resolution is an empty list to clients, never a raw
		// upstream error.
		var metaErr *resolver.MetadataError
		if !errors.As(err, &metaErr) {
			log.Printf("[handlers] resolve %s failed: %v", identity.CacheKey(), err)
		} else {
			log.Printf("[handlers] %v", metaErr)
		}
		links = nil
	}
	if links == nil {
		links = []models.StreamLink{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(links); err != nil {
		log.Printf("[handlers] encode streams response: %v", err)
	}
}

// PrefetchRequest is the body of POST /api/streams/prefetch.
type PrefetchRequest struct {
	Items []models.PrefetchItem `json:"items"`
}

// Prefetch handles POST /api/streams/prefetch. The batch runs in the
// background; the response only acknowledges acceptance.
func (h *StreamsHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid prefetch request", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "no items to prefetch", http.StatusBadRequest)
		return
	}

	log.Printf("[handlers] prefetch accepted for %d items", len(req.Items))
	h.Prefetcher.Run(contextDetached(r), req.Items, resolver.PrefetchEvents{})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"accepted": len(req.Items)})
}

// identityFromRequest builds a content identity from route and query
// parameters. The media type is inferred when absent: an episode selector
// means TV, otherwise movie.
func identityFromRequest(rawID, rawSeason, rawEpisode, rawMediaType, rawTrack string) (models.ContentIdentity, error) {
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		return models.ContentIdentity{}, errors.New("invalid content id")
	}

	identity := models.ContentIdentity{PrimaryID: id}

	if rawSeason != "" {
		if identity.Season, err = strconv.Atoi(rawSeason); err != nil {
			return models.ContentIdentity{}, errors.New("invalid season")
		}
	}
	if rawEpisode != "" {
		if identity.Episode, err = strconv.Atoi(rawEpisode); err != nil {
			return models.ContentIdentity{}, errors.New("invalid episode")
		}
	}

	switch rawMediaType {
	case "movie":
		identity.MediaType = models.MediaTypeMovie
	case "tv":
		identity.MediaType = models.MediaTypeTV
	case "anime":
		identity.MediaType = models.MediaTypeAnime
	case "":
		if identity.Season > 0 || identity.Episode > 0 {
			identity.MediaType = models.MediaTypeTV
		} else {
			identity.MediaType = models.MediaTypeMovie
		}
	default:
		return models.ContentIdentity{}, errors.New("invalid media type")
	}

	switch rawTrack {
	case "":
		if identity.MediaType == models.MediaTypeAnime {
			identity.AudioTrack = models.AudioTrackSub
		}
	case "sub":
		identity.AudioTrack = models.AudioTrackSub
	case "dub":
		identity.AudioTrack = models.AudioTrackDub
	default:
		return models.ContentIdentity{}, errors.New("invalid audio track")
	}

	if identity.MediaType.IsEpisodic() && identity.Episode == 0 {
		return models.ContentIdentity{}, errors.New("episode required for episodic content")
	}
	if identity.MediaType.IsEpisodic() && identity.Season == 0 {
		identity.Season = 1
	}

	return identity, nil
}
