package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatrooms/internal/config"
	"github.com/npezzotti/go-chatrooms/internal/server"
	"github.com/npezzotti/go-chatrooms/internal/transport"
)

// RawSocketServer is the standalone listener for clients speaking flat
// {"type": ...} frames. It shares the Handler with ChatApp.
type RawSocketServer struct {
	log *log.Logger
	srv *http.Server
}

func NewRawSocketServer(logger *log.Logger, h *server.Handler, cfg *config.Config) *RawSocketServer {
	s := &RawSocketServer{
		log: logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /", transport.NewEndpoint(h, transport.FlatCodec{}, cfg.AllowedOrigins, logger))

	s.srv = &http.Server{
		Addr:    cfg.RawSocketAddr,
		Handler: handlers.CombinedLoggingHandler(logger.Writer(), mux),
	}

	return s
}

func (s *RawSocketServer) Start() error {
	s.log.Printf("starting raw socket server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *RawSocketServer) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down raw socket server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("raw socket server shutdown: %w", err)
	}

	return nil
}
