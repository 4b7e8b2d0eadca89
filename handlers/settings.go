package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"streamvault/config"
	"streamvault/services/resolver"
	"streamvault/services/scrapers"
)

// SettingsHandler exposes the settings file over HTTP and hot reloads the
// services that snapshot configuration at startup.
type SettingsHandler struct {
	Manager  *config.Manager
	Resolver *resolver.Service
}

func NewSettingsHandler(m *config.Manager, r *resolver.Service) *SettingsHandler {
	return &SettingsHandler{Manager: m, Resolver: r}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err := h.Manager.Save(s); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	h.reloadServices(s)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s)
}

// reloadServices reloads services that cache configuration at startup.
func (h *SettingsHandler) reloadServices(s config.Settings) {
	if h.Resolver != nil {
		adapters := scrapers.BuildFromConfig(s.Scrapers, s.VidLink)
		h.Resolver.ReloadScrapers(adapters)
		log.Printf("[settings] reloaded %d scraper adapter(s)", len(adapters))
	}
}
