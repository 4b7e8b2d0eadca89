package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"streamvault/models"
	"streamvault/services/resolver"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The frontend is served from a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// EventsHandler is the WebSocket gateway for progressive stream delivery.
// Each validated link is pushed the moment validation passes, then a
// completion event carries the full set.
type EventsHandler struct {
	Resolver   *resolver.Service
	Prefetcher *resolver.Prefetcher
}

func NewEventsHandler(r *resolver.Service, p *resolver.Prefetcher) *EventsHandler {
	return &EventsHandler{Resolver: r, Prefetcher: p}
}

// wsEnvelope frames every message in both directions.
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// findStreamsRequest mirrors the REST query parameters.
type findStreamsRequest struct {
	ID        int    `json:"id"`
	Season    int    `json:"season,omitempty"`
	Episode   int    `json:"episode,omitempty"`
	Type      string `json:"type,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

type prefetchStreamsRequest struct {
	Items []models.PrefetchItem `json:"items"`
}

// wsClient serializes writes; gorilla/websocket allows one concurrent
// writer only.
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("[events] marshal %s for %s: %v", event, c.id, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(wsEnvelope{Event: event, Data: payload}); err != nil {
		log.Printf("[events] write %s to %s: %v", event, c.id, err)
	}
}

// ServeWS upgrades the connection and runs the client read loop.
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] upgrade failed: %v", err)
		return
	}
	client := &wsClient{id: uuid.NewString(), conn: conn}
	log.Printf("[events] client connected: %s", client.id)

	// Resolutions keep running after a disconnect so their results still
	// land in the cache for the next request.
	detached := context.WithoutCancel(r.Context())

	defer func() {
		conn.Close()
		log.Printf("[events] client disconnected: %s", client.id)
	}()

	for {
		var envelope wsEnvelope
		if err := conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[events] read from %s: %v", client.id, err)
			}
			return
		}

		switch envelope.Event {
		case "find-streams":
			var req findStreamsRequest
			if err := json.Unmarshal(envelope.Data, &req); err != nil {
				client.send("streams-complete", []models.StreamLink{})
				continue
			}
			go h.handleFindStreams(detached, client, req)
		case "prefetch":
			var req prefetchStreamsRequest
			if err := json.Unmarshal(envelope.Data, &req); err != nil || len(req.Items) == 0 {
				client.send("prefetch-complete", map[string]any{"success": false, "error": "invalid prefetch request"})
				continue
			}
			go h.handlePrefetch(detached, client, req.Items)
		default:
			log.Printf("[events] unknown event %q from %s", envelope.Event, client.id)
		}
	}
}

func (h *EventsHandler) handleFindStreams(ctx context.Context, client *wsClient, req findStreamsRequest) {
	identity, err := identityFromRequest(
		itoa(req.ID), itoa(req.Season), itoa(req.Episode), req.MediaType, req.Type)
	if err != nil {
		log.Printf("[events] find-streams from %s rejected: %v", client.id, err)
		client.send("streams-complete", []models.StreamLink{})
		return
	}

	log.Printf("[events] find-streams for %s from %s", identity.CacheKey(), client.id)
	links, err := h.Resolver.Resolve(ctx, identity, func(link models.StreamLink) {
		client.send("stream-link", link)
	})
	if err != nil {
		log.Printf("[events] find-streams for %s failed: %v", identity.CacheKey(), err)
		client.send("streams-complete", []models.StreamLink{})
		return
	}
	if links == nil {
		links = []models.StreamLink{}
	}
	client.send("streams-complete", links)
}

func (h *EventsHandler) handlePrefetch(ctx context.Context, client *wsClient, items []models.PrefetchItem) {
	log.Printf("[events] prefetch of %d items from %s", len(items), client.id)
	h.Prefetcher.Run(ctx, items, resolver.PrefetchEvents{
		OnLink: func(item models.PrefetchItem, link models.StreamLink) {
			client.send("prefetch-link", map[string]any{"id": item.ID, "link": link})
		},
		OnDone: func() {
			client.send("prefetch-complete", map[string]any{"success": true})
		},
	})
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// contextDetached strips cancellation from a request context so background
// work survives the client going away.
func contextDetached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
