package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tonebox/backend/internal/config"
	"github.com/tonebox/backend/internal/handlers"
	"github.com/tonebox/backend/internal/middleware"
	"github.com/tonebox/backend/internal/nfc"
	"github.com/tonebox/backend/internal/ops"
	"github.com/tonebox/backend/internal/player"
	"github.com/tonebox/backend/internal/realtime"
	"github.com/tonebox/backend/internal/storage"
	"github.com/tonebox/backend/internal/upload"
)

// Deps carries the long-lived components the HTTP surface is wired onto.
// main owns their lifecycle; the router only routes.
type Deps struct {
	Store      *storage.Store
	Hub        *realtime.Hub
	Tracker    *ops.Tracker
	Uploads    *upload.Manager
	NFC        *nfc.Manager
	Player     *player.Coordinator
	DeviceName string
}

func New(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Handlers
	configHandler := handlers.NewConfigHandler(cfg, deps.DeviceName)
	playlistHandler := handlers.NewPlaylistHandler(deps.Store, deps.Hub, deps.Tracker)
	uploadHandler := handlers.NewUploadHandler(deps.Uploads, deps.Tracker)
	nfcHandler := handlers.NewNFCHandler(deps.NFC, deps.Tracker, cfg.AssociationTimeout)
	playerHandler := handlers.NewPlayerHandler(deps.Player, deps.Tracker)
	wsHandler := handlers.NewWSHandler(deps.Hub)

	// Rate limiter for the simulated tag reader
	simulateRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	// Routes
	r.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Public configuration (device name, upload limits)
		r.Get("/config", configHandler.PublicConfig)

		// Event stream
		r.Get("/ws", wsHandler.Serve)

		// Playlists and tracks
		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", playlistHandler.List)
			r.Post("/", playlistHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", playlistHandler.Get)
				r.Put("/", playlistHandler.Rename)
				r.Delete("/", playlistHandler.Delete)

				r.Get("/tracks", playlistHandler.ListTracks)
				r.Delete("/tracks/{trackId}", playlistHandler.DeleteTrack)
			})
		})

		// Chunked uploads
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", uploadHandler.Init)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", uploadHandler.Status)
				r.Put("/chunks/{index}", uploadHandler.Chunk)
				r.Post("/finalize", uploadHandler.Finalize)
				r.Post("/cancel", uploadHandler.Cancel)
			})
		})

		// Tag association
		r.Route("/nfc", func(r chi.Router) {
			r.Get("/status", nfcHandler.Status)
			r.Post("/associate", nfcHandler.Start)
			r.Post("/override", nfcHandler.Override)
			r.Post("/stop", nfcHandler.Stop)

			// Simulated reader (rate limited)
			r.With(simulateRateLimiter.Middleware).Post("/simulate", nfcHandler.Simulate)
		})

		// Player
		r.Route("/player", func(r chi.Router) {
			r.Get("/state", playerHandler.State)
			r.Post("/play", playerHandler.Command("play"))
			r.Post("/pause", playerHandler.Command("pause"))
			r.Post("/toggle", playerHandler.Command("toggle"))
			r.Post("/stop", playerHandler.Command("stop"))
			r.Post("/next", playerHandler.Command("next"))
			r.Post("/previous", playerHandler.Command("previous"))
			r.Post("/seek", playerHandler.Command("seek"))
			r.Post("/volume", playerHandler.Command("volume"))
		})
	})

	return r
}
