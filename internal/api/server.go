package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/registry"
)

// Server wraps the HTTP server and mux for the quote API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates an API server wired with all routes.
func NewServer(
	listenAddress string,
	port int,
	quotes QuoteService,
	pairs *registry.Registry,
	cache *quotecache.Cache,
	maxBodyBytes int64,
) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())
	mux.Handle("GET /quote/{source}/{base}/{quote}", HandleGetQuote(quotes))
	mux.Handle("POST /quotes/{source}",
		RequestBodyLimitMiddleware(maxBodyBytes, HandleBatchQuotes(quotes)))
	mux.Handle("GET /pairs", HandleListPairs(pairs, cache))
	mux.Handle("GET /pairs/{source}", HandleListSourcePairs(pairs, cache))
	mux.Handle("DELETE /pairs/{source}/{base}/{quote}", HandleRemovePair(pairs, cache))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}
	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
