package transport

import (
	"log"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrooms/internal/server"
)

// Endpoint upgrades HTTP requests to websocket sessions framed by one codec.
type Endpoint struct {
	handler  *server.Handler
	codec    Codec
	log      *log.Logger
	upgrader websocket.Upgrader
}

func NewEndpoint(h *server.Handler, codec Codec, allowedOrigins []string, l *log.Logger) *Endpoint {
	return &Endpoint{
		handler: h,
		codec:   codec,
		log:     l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// only allow connections from allowed origins
				origin := r.Header.Get("Origin")
				if origin == "" {
					// if no origin header, allow the request
					return true
				}

				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Println("error upgrading connection:", err)
		return
	}

	client := NewClient(conn, e.codec, e.log)
	session := e.handler.Connect(client)

	go client.Write()
	go client.Read(session)
}
