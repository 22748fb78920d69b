package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/stats"
	"github.com/npezzotti/go-chatrooms/internal/types"
)

// Handler turns inbound events into store calls and broadcasts. One Handler is
// shared by every transport so all of them observe the same rooms and messages.
type Handler struct {
	log         *log.Logger
	store       database.ChatStore
	registry    *Registry
	broadcaster *Broadcaster
	stats       stats.StatsProvider
}

func NewHandler(logger *log.Logger, store database.ChatStore, registry *Registry, broadcaster *Broadcaster, su stats.StatsProvider) *Handler {
	su.RegisterMetric(stats.NumMessages)

	return &Handler{
		log:         logger,
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
		stats:       su,
	}
}

// Connect registers conn and returns its session.
func (h *Handler) Connect(conn Connection) *Session {
	return &Session{
		id:   h.registry.Register(conn),
		conn: conn,
		h:    h,
	}
}

// CloseAll unregisters and closes every live connection.
func (h *Handler) CloseAll() {
	for _, m := range h.registry.AllConnections() {
		if h.registry.Unregister(m.Id) {
			m.Conn.Close()
		}
	}
}

// NotifyRoomCreated tells every connection about a newly committed room.
func (h *Handler) NotifyRoomCreated(room types.Room) int {
	return h.broadcaster.BroadcastGlobal(&ServerEvent{
		Type:    EventRoomCreated,
		Payload: room,
	})
}

// NotifyRoomDeleted evicts the members of a deleted room and tells every
// connection the room is gone.
func (h *Handler) NotifyRoomDeleted(roomId string) int {
	evicted := h.registry.ClearRoomForAll(roomId)
	h.log.Printf("room %q deleted, evicted %d connections", roomId, len(evicted))

	return h.broadcaster.BroadcastGlobal(&ServerEvent{
		Type:    EventRoomDeleted,
		Payload: RoomDeleted{RoomId: roomId},
	})
}

// NotifyMessage fans a committed message out to its room.
func (h *Handler) NotifyMessage(msg types.Message) int {
	h.stats.Incr(stats.NumMessages)

	return h.broadcaster.BroadcastToRoom(msg.RoomId, &ServerEvent{
		Type:    EventMessage,
		Payload: msg,
	})
}

func (h *Handler) NotifyMessageDeleted(roomId, messageId string) int {
	return h.broadcaster.BroadcastToRoom(roomId, &ServerEvent{
		Type: EventMessageDeleted,
		Payload: MessageDeleted{
			MessageId: messageId,
			RoomId:    roomId,
		},
	})
}

func (h *Handler) joinRoom(ctx context.Context, s *Session, ev *ClientEvent) {
	if ev.Username == "" || ev.RoomId == "" {
		s.replyError(EventError, missingFields(ev), "Missing required fields")
		return
	}

	h.registry.SetIdentity(s.id, ev.Username)
	h.registry.SetRoom(s.id, ev.RoomId)
	h.log.Printf("%s joined room %q", ev.Username, ev.RoomId)

	msgs, err := h.store.ListMessages(ctx, ev.RoomId)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		s.replyError(EventError, err, "Failed to load room history")
		return
	}

	history := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, m.ToType())
	}

	s.reply(&ServerEvent{
		Type: EventRoomHistory,
		Payload: RoomHistory{
			RoomId:   ev.RoomId,
			Messages: history,
		},
	})
}

func (h *Handler) sendMessage(ctx context.Context, s *Session, ev *ClientEvent) {
	if ev.Username == "" || ev.Message == "" || ev.RoomId == "" {
		s.replyError(EventError, missingFields(ev), "Missing required fields")
		return
	}

	if strings.TrimSpace(ev.Message) == "" {
		s.replyError(EventError, fmt.Errorf("%w: empty message", ErrValidation), "Message cannot be empty")
		return
	}

	msg, err := h.store.AddMessage(ctx, ev.RoomId, ev.Username, ev.Message)
	if err != nil {
		if errors.Is(err, database.ErrRoomNotFound) {
			s.replyError(EventError, err, "Chatroom not found")
		} else {
			s.replyError(EventError, err, "Failed to send message")
		}
		return
	}

	// the sender gets its own copy through the room broadcast
	h.NotifyMessage(msg.ToType())
}

func (h *Handler) deleteMessage(ctx context.Context, s *Session, ev *ClientEvent) {
	if ev.Username == "" || ev.RoomId == "" || ev.MessageId == "" {
		s.replyError(EventDeleteError, missingFields(ev), "Missing required fields")
		return
	}

	if err := h.store.DeleteMessage(ctx, ev.RoomId, ev.MessageId, ev.Username); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.replyError(EventDeleteError, err, "Message not found or you can only delete your own messages")
		} else {
			s.replyError(EventDeleteError, err, "Failed to delete message")
		}
		return
	}

	h.NotifyMessageDeleted(ev.RoomId, ev.MessageId)
	s.reply(&ServerEvent{
		Type:    EventDeleteSuccess,
		Payload: DeleteSuccess{MessageId: ev.MessageId},
	})
}

func (h *Handler) deleteRoom(ctx context.Context, s *Session, ev *ClientEvent) {
	if ev.RoomId == "" {
		s.replyError(EventDeleteRoomError, missingFields(ev), "Missing required fields")
		return
	}

	_, err := h.store.GetRoom(ctx, ev.RoomId)
	if err == nil {
		err = h.store.DeleteRoom(ctx, ev.RoomId)
	}
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.replyError(EventDeleteRoomError, err, "Room not found or cannot be deleted")
		} else {
			s.replyError(EventDeleteRoomError, err, "Failed to delete room")
		}
		return
	}

	h.NotifyRoomDeleted(ev.RoomId)
	s.reply(&ServerEvent{
		Type:    EventDeleteRoomSuccess,
		Payload: RoomDeleted{RoomId: ev.RoomId},
	})
}

func missingFields(ev *ClientEvent) error {
	return fmt.Errorf("%w: missing required fields for %q", ErrValidation, ev.Type)
}
