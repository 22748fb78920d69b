package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatrooms/internal/config"
	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/server"
	"github.com/npezzotti/go-chatrooms/internal/transport"
)

// ChatApp serves the REST surface and the multiplexed websocket endpoint.
type ChatApp struct {
	log     *log.Logger
	store   database.ChatStore
	handler *server.Handler
	srv     *http.Server
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, h *server.Handler, store database.ChatStore, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:     logger,
		store:   store,
		handler: h,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /api/chatrooms", s.listRooms)
	mux.HandleFunc("POST /api/chatrooms", s.createRoom)
	mux.HandleFunc("DELETE /api/chatrooms/{roomId}", s.deleteRoom)
	mux.HandleFunc("GET /api/chatrooms/{roomId}/messages", s.listMessages)
	mux.HandleFunc("POST /api/chatrooms/{roomId}/messages", s.createMessage)
	mux.HandleFunc("DELETE /api/chatrooms/{roomId}/messages/{messageId}", s.deleteMessage)
	mux.Handle("GET /ws", transport.NewEndpoint(h, transport.EnvelopeCodec{}, cfg.AllowedOrigins, logger))

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: s.wrap(mux, cfg.AllowedOrigins),
	}

	return s
}

// wrap adds CORS, panic recovery and access logging around next.
func (s *ChatApp) wrap(next http.Handler, allowedOrigins []string) http.Handler {
	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(next)

	h = s.errorHandler(h)

	return handlers.CombinedLoggingHandler(s.log.Writer(), h)
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
