package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server     ServerSettings     `json:"server"`
	Metadata   MetadataSettings   `json:"metadata"`
	Cache      CacheSettings      `json:"cache"`
	Database   DatabaseSettings   `json:"database"`
	Scrapers   []ScraperConfig    `json:"scrapers"`
	Validation ValidationSettings `json:"validation"`
	Prefetch   PrefetchSettings   `json:"prefetch"`
	VidLink    VidLinkSettings    `json:"vidlink"`
	Log        LogConfig          `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

// CacheSettings controls the ephemeral stream cache. The stream TTL has
// drifted between deployments historically, so it is configuration rather
// than a constant.
type CacheSettings struct {
	StreamTTLHours int `json:"streamTtlHours"`
	MaxEntries     int `json:"maxEntries"`
}

type DatabaseSettings struct {
	Path string `json:"path"`
}

// ScraperConfig describes one provider adapter instance.
type ScraperConfig struct {
	Name    string `json:"name"` // "VidSrc", "VidLink", "GogoAnime", "AnimePahe"
	Type    string `json:"type"` // "vidsrc", "vidlink", "gogoanime", "animepahe"
	BaseURL string `json:"baseUrl,omitempty"`
	Enabled bool   `json:"enabled"`
}

// ValidationSettings tunes the stream link validator and the per-domain
// admission controller in front of rate-sensitive upstreams.
type ValidationSettings struct {
	RateLimitedDomains  []string `json:"rateLimitedDomains"`
	MaxConcurrent       int      `json:"maxConcurrent"`     // per-domain ceiling
	CooldownSeconds     int      `json:"cooldownSeconds"`   // after an HTTP 429
	RetryDelaySeconds   int      `json:"retryDelaySeconds"` // wait before a 429 retry
	MaxAttempts         int      `json:"maxAttempts"`       // probe attempts per URL
	ProbeTimeoutSeconds int      `json:"probeTimeoutSeconds"`
}

// PrefetchSettings controls the background prefetch worker pool.
type PrefetchSettings struct {
	Workers       int `json:"workers"`
	PacingDelayMS int `json:"pacingDelayMs"`
}

// VidLinkSettings customizes the embedded VidLink player.
type VidLinkSettings struct {
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	IconColor      string `json:"iconColor"`
	Icons          string `json:"icons"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// StreamTTL returns the ephemeral cache TTL as a duration.
func (c CacheSettings) StreamTTL() time.Duration {
	return time.Duration(c.StreamTTLHours) * time.Hour
}

// Cooldown returns the 429 cooldown window as a duration.
func (v ValidationSettings) Cooldown() time.Duration {
	return time.Duration(v.CooldownSeconds) * time.Second
}

// RetryDelay returns the fixed wait before retrying a rate-limited probe.
func (v ValidationSettings) RetryDelay() time.Duration {
	return time.Duration(v.RetryDelaySeconds) * time.Second
}

// ProbeTimeout returns the per-probe HTTP timeout.
func (v ValidationSettings) ProbeTimeout() time.Duration {
	return time.Duration(v.ProbeTimeoutSeconds) * time.Second
}

// PacingDelay returns the per-item pacing delay between prefetch items.
func (p PrefetchSettings) PacingDelay() time.Duration {
	return time.Duration(p.PacingDelayMS) * time.Millisecond
}

// DefaultSettings returns the settings written on first run.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 3001,
		},
		Metadata: MetadataSettings{
			Language: "en-US",
		},
		Cache: CacheSettings{
			StreamTTLHours: 2,
			MaxEntries:     2048,
		},
		Database: DatabaseSettings{
			Path: "cache/streams.db",
		},
		Scrapers: defaultScrapers(),
		Validation: ValidationSettings{
			RateLimitedDomains:  []string{"kwik.cx", "animepahe.si", "gogoanime.by"},
			MaxConcurrent:       2,
			CooldownSeconds:     30,
			RetryDelaySeconds:   5,
			MaxAttempts:         3,
			ProbeTimeoutSeconds: 15,
		},
		Prefetch: PrefetchSettings{
			Workers:       3,
			PacingDelayMS: 500,
		},
		VidLink: VidLinkSettings{
			PrimaryColor:   "e50914",
			SecondaryColor: "1f1f1f",
			IconColor:      "ffffff",
			Icons:          "vid",
		},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

func defaultScrapers() []ScraperConfig {
	return []ScraperConfig{
		{Name: "VidSrc", Type: "vidsrc", Enabled: true},
		{Name: "VidLink", Type: "vidlink", BaseURL: "https://vidlink.pro", Enabled: true},
		{Name: "GogoAnime", Type: "gogoanime", BaseURL: "https://gogoanime.by", Enabled: true},
		{Name: "AnimePahe", Type: "animepahe", BaseURL: "https://animepahe.si", Enabled: true},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings introduced after the config was written.
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 3001
	}
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = "en-US"
	}
	if s.Cache.StreamTTLHours == 0 {
		s.Cache.StreamTTLHours = 2
	}
	if s.Cache.MaxEntries == 0 {
		s.Cache.MaxEntries = 2048
	}
	if strings.TrimSpace(s.Database.Path) == "" {
		s.Database.Path = "cache/streams.db"
	}
	if len(s.Scrapers) == 0 {
		s.Scrapers = defaultScrapers()
	}
	if len(s.Validation.RateLimitedDomains) == 0 {
		s.Validation.RateLimitedDomains = []string{"kwik.cx", "animepahe.si", "gogoanime.by"}
	}
	if s.Validation.MaxConcurrent == 0 {
		s.Validation.MaxConcurrent = 2
	}
	if s.Validation.CooldownSeconds == 0 {
		s.Validation.CooldownSeconds = 30
	}
	if s.Validation.RetryDelaySeconds == 0 {
		s.Validation.RetryDelaySeconds = 5
	}
	if s.Validation.MaxAttempts == 0 {
		s.Validation.MaxAttempts = 3
	}
	if s.Validation.ProbeTimeoutSeconds == 0 {
		s.Validation.ProbeTimeoutSeconds = 15
	}
	if s.Prefetch.Workers == 0 {
		s.Prefetch.Workers = 3
	}
	if s.Prefetch.PacingDelayMS == 0 {
		s.Prefetch.PacingDelayMS = 500
	}
	if strings.TrimSpace(s.VidLink.PrimaryColor) == "" {
		s.VidLink.PrimaryColor = "e50914"
	}
	if strings.TrimSpace(s.VidLink.SecondaryColor) == "" {
		s.VidLink.SecondaryColor = "1f1f1f"
	}
	if strings.TrimSpace(s.VidLink.IconColor) == "" {
		s.VidLink.IconColor = "ffffff"
	}
	if strings.TrimSpace(s.VidLink.Icons) == "" {
		s.VidLink.Icons = "vid"
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
