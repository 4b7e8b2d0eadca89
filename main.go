package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"streamvault/api"
	"streamvault/config"
	"streamvault/internal/cache"
	"streamvault/internal/database"
	"streamvault/services/metadata"
	"streamvault/services/resolver"
	"streamvault/services/scrapers"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 streamvault Backend Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("STREAMVAULT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Open the durable store and apply migrations
	db, err := database.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Wire services
	streamCache := cache.NewStreamCache(settings.Cache.MaxEntries, settings.Cache.StreamTTL())
	metadataSvc := metadata.NewService(settings.Metadata)

	adapters := scrapers.BuildFromConfig(settings.Scrapers, settings.VidLink)
	log.Printf("Loaded %d scraper adapters", len(adapters))

	admission := resolver.NewAdmission(
		settings.Validation.RateLimitedDomains,
		settings.Validation.MaxConcurrent,
		settings.Validation.Cooldown(),
	)
	validator := resolver.NewValidator(settings.Validation, admission)
	resolverSvc := resolver.NewService(adapters, metadataSvc, validator, streamCache, db.Streams(), db.Mappings())
	prefetcher := resolver.NewPrefetcher(resolverSvc, db.Streams(), settings.Prefetch)

	// Router
	r := mux.NewRouter()
	api.Register(r, cfgManager, resolverSvc, prefetcher)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout; WebSocket sessions are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
