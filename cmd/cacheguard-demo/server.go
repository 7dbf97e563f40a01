// Package main is a reference product-catalog API demonstrating
// cacheguard: reads go through a cacheguard.Client in front of a
// Postgres-backed ProductStore, writes invalidate via TagAsDeleted
// rather than deleting the cache entry outright.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/custodia-labs/cacheguard"
)

//go:embed doc.json
var swaggerDoc []byte

// Pinger is a health-check hook.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the demo's HTTP surface: a bare *http.ServeMux wrapped with
// a ServerConfig/NewServer/Start lifecycle (Start shuts the server down
// when its context is cancelled), scaled down to one resource.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux

	cache  *cacheguard.Client[Product]
	store  *ProductStore
	pinger Pinger
	auth   *TokenIssuer
	log    *slog.Logger
}

// ServerConfig holds the demo server's host/port.
type ServerConfig struct {
	Host string
	Port int
}

func NewServer(cfg ServerConfig, cache *cacheguard.Client[Product], store *ProductStore, auth *TokenIssuer, logger *slog.Logger) *Server {
	s := &Server{
		router: http.NewServeMux(),
		cache:  cache,
		store:  store,
		pinger: store,
		auth:   auth,
		log:    logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)
	s.router.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	s.router.Handle("GET /api/v1/products/{id}", s.auth.RequireBearer(http.HandlerFunc(s.handleGetProduct)))
	s.router.Handle("PUT /api/v1/products/{id}", s.auth.RequireBearer(http.HandlerFunc(s.handlePutProduct)))
	s.router.Handle("DELETE /api/v1/products/{id}", s.auth.RequireBearer(http.HandlerFunc(s.handleDeleteProduct)))
}

// handleGetProduct is the cache-aside read path: cacheguard.Fetch calls
// the loader (a ProductStore.Get) only when no caller elsewhere in the
// cluster already holds a fresh value.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	product, present, err := s.cache.Fetch(r.Context(), productCacheKey(id), 10*time.Minute,
		func(ctx context.Context) (Product, bool, error) {
			p, err := s.store.Get(ctx, id)
			if err == ErrProductNotFound {
				return Product{}, false, nil
			}
			if err != nil {
				return Product{}, false, err
			}
			return p, true, nil
		})
	if err != nil {
		s.log.Error("fetch product failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}
	if !present {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// handlePutProduct writes through to Postgres, then tags the cache
// entry as deleted so the next reader refreshes rather than serving the
// value that was current before this write.
func (s *Server) handlePutProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Name       string `json:"name"`
		PriceCents int    `json:"price_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.Upsert(r.Context(), Product{ID: id, Name: body.Name, PriceCents: body.PriceCents}); err != nil {
		s.log.Error("upsert product failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save product")
		return
	}

	if err := s.cache.TagAsDeleted(r.Context(), productCacheKey(id)); err != nil {
		s.log.Error("invalidate product cache failed", "id", id, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.log.Error("delete product failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	if err := s.cache.TagAsDeleted(r.Context(), productCacheKey(id)); err != nil {
		s.log.Error("invalidate product cache failed", "id", id, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(swaggerDoc)
}

func productCacheKey(id string) string {
	return "product:" + id
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.log.Info("server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
