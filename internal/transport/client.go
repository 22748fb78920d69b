package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrooms/internal/server"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// Client pumps frames between one websocket and its session. It implements
// server.Connection.
type Client struct {
	conn     *websocket.Conn
	codec    Codec
	log      *log.Logger
	send     chan *server.ServerEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, codec Codec, l *log.Logger) *Client {
	return &Client{
		conn:  conn,
		codec: codec,
		log:   l,
		send:  make(chan *server.ServerEvent, sendQueueSize),
		stop:  make(chan struct{}),
	}
}

// Send queues ev for the write pump. A stopped client or a full queue fails
// with server.ErrTransportClosed.
func (c *Client) Send(ev *server.ServerEvent) error {
	select {
	case <-c.stop:
		return fmt.Errorf("client stopped: %w", server.ErrTransportClosed)
	default:
	}

	select {
	case c.send <- ev:
		return nil
	default:
		c.log.Println("failed to send message to client, channel is full")
		return fmt.Errorf("send queue full: %w", server.ErrTransportClosed)
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case ev := <-c.send:
			bytes, err := c.codec.Encode(ev)
			if err != nil {
				c.log.Printf("failed to serialize %q: %v", ev.Type, err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.drain()
			c.sendMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read(s *server.Session) {
	defer func() {
		c.conn.Close()
		s.Close()
		c.Close()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		ev, err := c.codec.Decode(raw, s)
		if err != nil {
			c.log.Println("error parsing message:", err)
			if errors.Is(err, errMissingType) {
				c.Send(server.ErrUnknownMessageType())
			} else {
				c.Send(server.ErrInvalidMessage())
			}
			continue
		}

		s.Handle(context.Background(), ev)
	}
}

// drain flushes whatever was queued before the client stopped.
func (c *Client) drain() {
	for {
		select {
		case ev := <-c.send:
			if bytes, err := c.codec.Encode(ev); err == nil {
				if !c.sendMessage(websocket.TextMessage, bytes) {
					return
				}
			}
		default:
			return
		}
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}
