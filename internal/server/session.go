package server

import (
	"context"
	"sync"
)

type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the server side of one connection. Its events are handled one at
// a time, in the order Handle is called.
type Session struct {
	id   string
	conn Connection
	h    *Handler
	mu   sync.Mutex
}

func (s *Session) Id() string {
	return s.id
}

// State is derived from the registry, which may have dropped the connection
// after a failed delivery.
func (s *Session) State() State {
	_, roomId, ok := s.h.registry.Lookup(s.id)
	switch {
	case !ok:
		return StateClosed
	case roomId == "":
		return StateUnjoined
	default:
		return StateJoined
	}
}

// Identity returns the username and room set by the last join.
func (s *Session) Identity() (username, roomId string) {
	username, roomId, _ = s.h.registry.Lookup(s.id)
	return username, roomId
}

func (s *Session) Handle(ctx context.Context, ev *ClientEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		s.h.log.Printf("dropping %q for closed connection %q", ev.Type, s.id)
		return
	}

	switch ev.Type {
	case EventJoinRoom:
		s.h.joinRoom(ctx, s, ev)
	case EventSendMessage:
		s.h.sendMessage(ctx, s, ev)
	case EventDeleteMessage:
		s.h.deleteMessage(ctx, s, ev)
	case EventDeleteRoom:
		s.h.deleteRoom(ctx, s, ev)
	default:
		s.reply(ErrUnknownMessageType())
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.h.registry.Unregister(s.id)
}

func (s *Session) reply(ev *ServerEvent) {
	s.h.broadcaster.Unicast(Member{Id: s.id, Conn: s.conn}, ev)
}

func (s *Session) replyError(eventType string, err error, msg string) {
	s.h.log.Printf("%s for connection %q: %v", eventType, s.id, err)
	s.reply(NewErrorEvent(eventType, statusCode(err), msg))
}
