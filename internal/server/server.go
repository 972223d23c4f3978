// Package server provides the HTTP surface of the voxmem memory store:
// the store/search/health API, the debug trace endpoint, and the live
// WebSocket trace feed.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/voxmem/voxmem/internal/config"
	"github.com/voxmem/voxmem/internal/engine"
)

// Start builds the route table and starts the HTTP server. It returns the
// actual listen address (useful for tests binding port 0). The server shuts
// down gracefully when ctx is cancelled; feed may be nil when no WebSocket
// trace feed is wired.
func Start(ctx context.Context, cfg *config.Config, eng *engine.Engine, ring *engine.RingSink, feed *TraceFeed) (string, error) {
	mux := http.NewServeMux()
	api := NewAPIHandlers(eng, ring)

	// API routes behind auth.
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/store-memory", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.StoreMemory(w, r)
	})
	apiMux.HandleFunc("/api/search-memory", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.SearchMemory(w, r)
	})
	apiMux.HandleFunc("/api/debug/trace", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.RecallTrace(w, r)
	})

	// Health endpoint stays outside auth; monitors poll it without a token.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		api.Health(w, r)
	})

	mux.Handle("/api/", RequireAuth(apiMux, cfg))

	// WebSocket trace feed; origin validation handles security.
	if feed != nil {
		mux.Handle("/ws", feed)
	}

	mux.HandleFunc("/", api.Root)

	rateLimiter := NewRateLimiter(10.0, 20)
	handler := RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if feed != nil {
			feed.Stop()
		}
	}()

	return actualAddr, nil
}
