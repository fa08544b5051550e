// Package server provides HTTP server initialization and lifecycle management
// for the Perspective service.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/perspective/internal/api"
	"github.com/scrypster/perspective/internal/config"
	"github.com/scrypster/perspective/internal/engine"
)

// Start initializes and starts the HTTP server. hub is the live-feed hub,
// already wired as the engine's notify hook; Start runs its loop and serves
// its upgrade endpoint. Returns the actual address being listened on (useful
// for testing with port 0). Shutdown is driven by ctx cancellation.
func Start(ctx context.Context, cfg *config.Config, eng *engine.Engine, hub *api.Hub, model string) (string, error) {
	mux := http.NewServeMux()

	go hub.Run()

	// 10 req/sec sustained, burst of 20. A new-tab page fires at most one
	// request per render.
	rateLimiter := api.NewRateLimiter(10.0, 20)

	handlers := api.NewHandlers(eng, cfg, model)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/perspective", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			handlers.GeneratePerspective(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/engagement", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			handlers.ReportEngagement(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/affinity", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handlers.GetAffinity(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handlers.GetHistory(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Health endpoint — no auth required, used by monitoring.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handlers.GetHealth(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Wrap API routes with auth middleware.
	mux.Handle("/api/", api.RequireAuth(cfg)(apiMux))

	// WebSocket endpoint (no auth required - origin validation handles security).
	mux.Handle("/ws", hub)

	handler := api.Chain(mux, api.SecurityHeaders, rateLimiter.Limit)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	log.Printf("Perspective server listening on %s", actualAddr)
	return actualAddr, nil
}
