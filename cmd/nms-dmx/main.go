// Package main is the entry point for the NMS DMX lighting control server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/httpapi"
	"github.com/jshea2/NMS-DMX-App/internal/live"
	"github.com/jshea2/NMS-DMX-App/internal/output"
	"github.com/jshea2/NMS-DMX-App/internal/session"
	"github.com/jshea2/NMS-DMX-App/internal/version"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "config.json", "Path to the show configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides the configured port)")
	staticDir := flag.String("static", "", "Directory to serve static files from (optional)")
	watch := flag.Bool("watch", true, "Reload the config file when edited externally")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Real-Time Lighting Control Server")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Load the show configuration
	cfgStore, err := config.Open(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	doc := cfgStore.Get()

	log.Info().
		Str("config", *configPath).
		Str("protocol", doc.Network.Protocol).
		Int("fps", doc.Network.OutputFPS).
		Int("fixtures", len(doc.Fixtures)).
		Int("looks", len(doc.Looks)).
		Msg("Configuration")

	// Create core components
	liveStore := live.NewStore(doc)
	registry := session.NewRegistry(cfgStore)
	hub := session.NewHub(cfgStore, liveStore, registry)
	scheduler := output.NewScheduler(cfgStore, liveStore)

	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start output engine")
	}
	defer scheduler.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// React to external edits of the config file
	cfgStore.OnReload(func(doc config.Document) {
		liveStore.Reinitialize(doc)
		hub.BroadcastState()
		go scheduler.Restart()
	})
	if *watch {
		go func() {
			if err := cfgStore.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("Config watcher stopped")
			}
		}()
	}

	// Setup HTTP server
	mux := http.NewServeMux()

	// WebSocket endpoint for live state sync
	mux.Handle("/ws", hub)

	// Control/admin API
	api := httpapi.New(cfgStore, liveStore, hub, registry, scheduler)
	api.Register(mux)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if scheduler.Running() {
			w.Write([]byte(`{"status":"ok","output":"running"}`))
			return
		}
		w.Write([]byte(`{"status":"ok","output":"stopped"}`))
	})

	// Version endpoint
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	// Serve the browser UI if a static directory is specified (SPA mode)
	if *staticDir != "" {
		log.Info().Str("dir", *staticDir).Msg("Serving static files")
		fs := http.FileServer(http.Dir(*staticDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *staticDir + r.URL.Path
			if r.URL.Path == "/" {
				path = *staticDir + "/index.html"
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				// For SPA routing, serve index.html for non-existing paths
				http.ServeFile(w, r, *staticDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
	}

	serverPort := doc.Server.Port
	if *port != 0 {
		serverPort = *port
	}
	bindAddress := doc.Server.BindAddress
	if bindAddress == "" {
		bindAddress = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", bindAddress, serverPort)

	server := &http.Server{
		Addr:        addr,
		Handler:     corsMiddleware(mux),
		ReadTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()
		scheduler.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("HTTP server listening")
	logAccessURLs(serverPort)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}

// logAccessURLs prints a reachable URL per active IPv4 interface so the
// operator can open the UI from another device.
func logAccessURLs(port int) {
	log.Info().Msgf("Local access: http://localhost:%d", port)

	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			log.Info().Msgf("Network access: http://%s:%d", ipNet.IP, port)
		}
	}
}
