package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/stats"
	"github.com/npezzotti/go-chatrooms/internal/testutil"
	"github.com/npezzotti/go-chatrooms/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, store database.ChatStore) *Handler {
	su := stats.NewNopMockStatsUpdater()
	logger := testutil.TestLogger(t)
	r := NewRegistry(logger, su)
	return NewHandler(logger, store, r, NewBroadcaster(logger, r, su), su)
}

func createRoom(t *testing.T, store database.ChatStore, name string) database.Room {
	room, err := store.CreateRoom(context.Background(), name)
	require.NoError(t, err)
	return room
}

func join(t *testing.T, s *Session, username, roomId string) {
	s.Handle(context.Background(), &ClientEvent{Type: EventJoinRoom, Username: username, RoomId: roomId})
	require.Equal(t, StateJoined, s.State(), "expected session to be joined")
}

func assertError(t *testing.T, c *fakeConn, eventType string, code int, msg string) {
	t.Helper()
	evs := c.receivedOfType(eventType)
	if assert.Len(t, evs, 1, "expected one %q event", eventType) {
		assert.Equal(t, ErrorPayload{Message: msg, Code: code}, evs[0].Payload)
	}
}

func TestHandler_JoinRoom(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	general := createRoom(t, store, "general")

	t.Run("empty room", func(t *testing.T) {
		c := &fakeConn{}
		s := h.Connect(c)
		assert.Equal(t, StateUnjoined, s.State())

		join(t, s, "alice", general.Id)

		evs := c.receivedOfType(EventRoomHistory)
		require.Len(t, evs, 1)
		assert.Equal(t, RoomHistory{RoomId: general.Id, Messages: []types.Message{}}, evs[0].Payload)

		username, roomId := s.Identity()
		assert.Equal(t, "alice", username)
		assert.Equal(t, general.Id, roomId)
	})

	t.Run("history is sorted oldest first", func(t *testing.T) {
		for _, text := range []string{"one", "two", "three"} {
			_, err := store.AddMessage(ctx, general.Id, "bob", text)
			require.NoError(t, err)
		}

		c := &fakeConn{}
		join(t, h.Connect(c), "alice", general.Id)

		evs := c.receivedOfType(EventRoomHistory)
		require.Len(t, evs, 1)
		history := evs[0].Payload.(RoomHistory).Messages
		require.Len(t, history, 3)
		for i, text := range []string{"one", "two", "three"} {
			assert.Equal(t, text, history[i].Message)
			if i > 0 {
				assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
			}
		}
	})

	t.Run("nonexistent room yields empty history", func(t *testing.T) {
		c := &fakeConn{}
		s := h.Connect(c)
		join(t, s, "alice", "room_missing")

		evs := c.receivedOfType(EventRoomHistory)
		require.Len(t, evs, 1)
		assert.Empty(t, evs[0].Payload.(RoomHistory).Messages)
	})

	t.Run("joining is silent to other members", func(t *testing.T) {
		member := &fakeConn{}
		join(t, h.Connect(member), "bob", general.Id)
		member.reset()

		join(t, h.Connect(&fakeConn{}), "alice", general.Id)
		assert.Empty(t, member.received())
	})

	t.Run("missing fields", func(t *testing.T) {
		c := &fakeConn{}
		s := h.Connect(c)
		s.Handle(ctx, &ClientEvent{Type: EventJoinRoom, RoomId: general.Id})

		assertError(t, c, EventError, http.StatusBadRequest, "Missing required fields")
		assert.Equal(t, StateUnjoined, s.State())
	})
}

func TestHandler_JoinRoomStoreFailure(t *testing.T) {
	store := &database.MockChatStore{}
	defer store.AssertExpectations(t)
	store.On("ListMessages", mock.Anything, "general").Return(nil, errors.New("db down")).Once()

	h := newTestHandler(t, store)
	c := &fakeConn{}
	s := h.Connect(c)
	s.Handle(context.Background(), &ClientEvent{Type: EventJoinRoom, Username: "alice", RoomId: "general"})

	assertError(t, c, EventError, http.StatusInternalServerError, "Failed to load room history")
	assert.Empty(t, c.receivedOfType(EventRoomHistory))
	assert.Equal(t, StateJoined, s.State(), "expected membership to survive a history failure")
}

func TestHandler_RejoinMovesMembership(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	a := createRoom(t, store, "a")
	b := createRoom(t, store, "b")

	c := &fakeConn{}
	s := h.Connect(c)
	join(t, s, "alice", a.Id)
	join(t, s, "alice", b.Id)

	sender := h.Connect(&fakeConn{})
	sender.Handle(ctx, &ClientEvent{Type: EventSendMessage, Username: "bob", Message: "in a", RoomId: a.Id})
	sender.Handle(ctx, &ClientEvent{Type: EventSendMessage, Username: "bob", Message: "in b", RoomId: b.Id})

	msgs := c.receivedOfType(EventMessage)
	require.Len(t, msgs, 1, "expected only messages from the latest room")
	assert.Equal(t, "in b", msgs[0].Payload.(types.Message).Message)
}

func TestHandler_SendMessage(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	general := createRoom(t, store, "general")

	a, b := &fakeConn{}, &fakeConn{}
	sa, sb := h.Connect(a), h.Connect(b)
	join(t, sa, "alice", general.Id)
	join(t, sb, "bob", general.Id)

	other := &fakeConn{}
	join(t, h.Connect(other), "carol", createRoom(t, store, "random").Id)

	sb.Handle(ctx, &ClientEvent{Type: EventSendMessage, Username: "bob", Message: "hi", RoomId: general.Id})

	for _, c := range []*fakeConn{a, b} {
		evs := c.receivedOfType(EventMessage)
		require.Len(t, evs, 1, "expected room members, sender included, to get the message once")
		msg := evs[0].Payload.(types.Message)
		assert.Equal(t, "bob", msg.Username)
		assert.Equal(t, "hi", msg.Message)
		assert.Equal(t, general.Id, msg.RoomId)
		assert.NotEmpty(t, msg.Id)
	}
	assert.Empty(t, other.receivedOfType(EventMessage), "expected other rooms to receive nothing")

	room, err := store.GetRoom(ctx, general.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, room.MessageCount)
}

func TestHandler_SendMessageValidation(t *testing.T) {
	tcases := []struct {
		name string
		ev   ClientEvent
		msg  string
	}{
		{
			name: "missing username",
			ev:   ClientEvent{Message: "hi", RoomId: "general"},
			msg:  "Missing required fields",
		},
		{
			name: "missing message",
			ev:   ClientEvent{Username: "bob", RoomId: "general"},
			msg:  "Missing required fields",
		},
		{
			name: "missing room",
			ev:   ClientEvent{Username: "bob", Message: "hi"},
			msg:  "Missing required fields",
		},
		{
			name: "whitespace message",
			ev:   ClientEvent{Username: "bob", Message: " \t\n ", RoomId: "general"},
			msg:  "Message cannot be empty",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			// no expectations: the store must not be touched
			store := &database.MockChatStore{}
			store.On("ListMessages", mock.Anything, "general").Return([]database.Message{}, nil)
			defer store.AssertNotCalled(t, "AddMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

			h := newTestHandler(t, store)
			member := &fakeConn{}
			join(t, h.Connect(member), "alice", "general")
			member.reset()

			c := &fakeConn{}
			s := h.Connect(c)
			ev := tc.ev
			ev.Type = EventSendMessage
			s.Handle(context.Background(), &ev)

			assertError(t, c, EventError, http.StatusBadRequest, tc.msg)
			assert.Empty(t, member.received(), "expected validation errors to reach only the sender")
		})
	}
}

func TestHandler_SendMessageStoreFailure(t *testing.T) {
	tcases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{
			name: "room not found",
			err:  database.ErrRoomNotFound,
			code: http.StatusNotFound,
			msg:  "Chatroom not found",
		},
		{
			name: "write error",
			err:  errors.New("disk full"),
			code: http.StatusInternalServerError,
			msg:  "Failed to send message",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &database.MockChatStore{}
			defer store.AssertExpectations(t)
			store.On("ListMessages", mock.Anything, "general").Return([]database.Message{}, nil).Once()
			store.On("AddMessage", mock.Anything, "general", "bob", "hi").Return(database.Message{}, tc.err).Once()

			h := newTestHandler(t, store)
			member := &fakeConn{}
			join(t, h.Connect(member), "alice", "general")
			member.reset()

			c := &fakeConn{}
			h.Connect(c).Handle(context.Background(), &ClientEvent{Type: EventSendMessage, Username: "bob", Message: "hi", RoomId: "general"})

			assertError(t, c, EventError, tc.code, tc.msg)
			assert.Empty(t, member.received(), "expected no partial broadcast")
		})
	}
}

func TestHandler_DeleteMessage(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	general := createRoom(t, store, "general")

	a, b := &fakeConn{}, &fakeConn{}
	sa, sb := h.Connect(a), h.Connect(b)
	join(t, sa, "alice", general.Id)
	join(t, sb, "bob", general.Id)

	sa.Handle(ctx, &ClientEvent{Type: EventSendMessage, Username: "alice", Message: "hello", RoomId: general.Id})
	evs := a.receivedOfType(EventMessage)
	require.Len(t, evs, 1)
	msgId := evs[0].Payload.(types.Message).Id
	a.reset()
	b.reset()

	t.Run("not the author", func(t *testing.T) {
		sa.Handle(ctx, &ClientEvent{Type: EventDeleteMessage, Username: "mallory", RoomId: general.Id, MessageId: msgId})

		assertError(t, a, EventDeleteError, http.StatusNotFound, "Message not found or you can only delete your own messages")
		assert.Empty(t, b.received(), "expected no message-deleted broadcast")

		msgs, err := store.ListMessages(ctx, general.Id)
		require.NoError(t, err)
		assert.Len(t, msgs, 1, "expected message to remain")
		a.reset()
	})

	t.Run("author deletes", func(t *testing.T) {
		sa.Handle(ctx, &ClientEvent{Type: EventDeleteMessage, Username: "alice", RoomId: general.Id, MessageId: msgId})

		want := MessageDeleted{MessageId: msgId, RoomId: general.Id}
		for _, c := range []*fakeConn{a, b} {
			evs := c.receivedOfType(EventMessageDeleted)
			require.Len(t, evs, 1)
			assert.Equal(t, want, evs[0].Payload)
		}

		success := a.receivedOfType(EventDeleteSuccess)
		require.Len(t, success, 1)
		assert.Equal(t, DeleteSuccess{MessageId: msgId}, success[0].Payload)
		assert.Empty(t, b.receivedOfType(EventDeleteSuccess), "expected acknowledgement only for the requester")
		a.reset()
		b.reset()
	})

	t.Run("second delete fails", func(t *testing.T) {
		sa.Handle(ctx, &ClientEvent{Type: EventDeleteMessage, Username: "alice", RoomId: general.Id, MessageId: msgId})

		assertError(t, a, EventDeleteError, http.StatusNotFound, "Message not found or you can only delete your own messages")
		assert.Empty(t, b.received())
		a.reset()
	})

	t.Run("missing fields", func(t *testing.T) {
		sa.Handle(ctx, &ClientEvent{Type: EventDeleteMessage, Username: "alice", RoomId: general.Id})
		assertError(t, a, EventDeleteError, http.StatusBadRequest, "Missing required fields")
		a.reset()
	})
}

func TestHandler_DeleteMessageStoreFailure(t *testing.T) {
	store := &database.MockChatStore{}
	defer store.AssertExpectations(t)
	store.On("DeleteMessage", mock.Anything, "general", "msg_1", "alice").Return(errors.New("timeout")).Once()

	h := newTestHandler(t, store)
	c := &fakeConn{}
	h.Connect(c).Handle(context.Background(), &ClientEvent{Type: EventDeleteMessage, Username: "alice", RoomId: "general", MessageId: "msg_1"})

	assertError(t, c, EventDeleteError, http.StatusInternalServerError, "Failed to delete message")
}

func TestHandler_DeleteRoom(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	temp := createRoom(t, store, "temp")
	general := createRoom(t, store, "general")

	member, bystander, requester := &fakeConn{}, &fakeConn{}, &fakeConn{}
	sm := h.Connect(member)
	join(t, sm, "carol", temp.Id)
	sbys := h.Connect(bystander)
	join(t, sbys, "dave", general.Id)
	sr := h.Connect(requester)

	sm.Handle(ctx, &ClientEvent{Type: EventSendMessage, Username: "carol", Message: "bye", RoomId: temp.Id})
	member.reset()

	sr.Handle(ctx, &ClientEvent{Type: EventDeleteRoom, RoomId: temp.Id})

	for _, c := range []*fakeConn{member, bystander, requester} {
		evs := c.receivedOfType(EventRoomDeleted)
		require.Len(t, evs, 1, "expected every connection to hear about the deletion")
		assert.Equal(t, RoomDeleted{RoomId: temp.Id}, evs[0].Payload)
	}

	success := requester.receivedOfType(EventDeleteRoomSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, RoomDeleted{RoomId: temp.Id}, success[0].Payload)
	assert.Empty(t, member.receivedOfType(EventDeleteRoomSuccess))

	assert.Equal(t, StateUnjoined, sm.State(), "expected membership of the deleted room to be cleared")
	assert.Equal(t, StateJoined, sbys.State(), "expected other memberships to be untouched")

	_, err := store.ListMessages(ctx, temp.Id)
	assert.ErrorIs(t, err, database.ErrNotFound)

	member.reset()
	sm.Handle(ctx, &ClientEvent{Type: EventSendMessage, Username: "carol", Message: "anyone?", RoomId: temp.Id})
	assertError(t, member, EventError, http.StatusNotFound, "Chatroom not found")
}

func TestHandler_DeleteRoomFailures(t *testing.T) {
	tcases := []struct {
		name  string
		setup func(store *database.MockChatStore)
		code  int
		msg   string
	}{
		{
			name: "room not found",
			setup: func(store *database.MockChatStore) {
				store.On("GetRoom", mock.Anything, "temp").Return(database.Room{}, database.ErrNotFound).Once()
			},
			code: http.StatusNotFound,
			msg:  "Room not found or cannot be deleted",
		},
		{
			name: "lookup failure",
			setup: func(store *database.MockChatStore) {
				store.On("GetRoom", mock.Anything, "temp").Return(database.Room{}, errors.New("db down")).Once()
			},
			code: http.StatusInternalServerError,
			msg:  "Failed to delete room",
		},
		{
			name: "delete failure",
			setup: func(store *database.MockChatStore) {
				store.On("GetRoom", mock.Anything, "temp").Return(database.Room{Id: "temp"}, nil).Once()
				store.On("DeleteRoom", mock.Anything, "temp").Return(errors.New("db down")).Once()
			},
			code: http.StatusInternalServerError,
			msg:  "Failed to delete room",
		},
		{
			name: "deleted concurrently",
			setup: func(store *database.MockChatStore) {
				store.On("GetRoom", mock.Anything, "temp").Return(database.Room{Id: "temp"}, nil).Once()
				store.On("DeleteRoom", mock.Anything, "temp").Return(database.ErrNotFound).Once()
			},
			code: http.StatusNotFound,
			msg:  "Room not found or cannot be deleted",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &database.MockChatStore{}
			defer store.AssertExpectations(t)
			store.On("ListMessages", mock.Anything, "temp").Return([]database.Message{}, nil).Once()
			tc.setup(store)

			h := newTestHandler(t, store)
			member := &fakeConn{}
			sm := h.Connect(member)
			join(t, sm, "carol", "temp")
			member.reset()

			c := &fakeConn{}
			h.Connect(c).Handle(context.Background(), &ClientEvent{Type: EventDeleteRoom, RoomId: "temp"})

			assertError(t, c, EventDeleteRoomError, tc.code, tc.msg)
			assert.Empty(t, c.receivedOfType(EventRoomDeleted))
			assert.Empty(t, member.received(), "expected failures to reach only the requester")
			assert.Equal(t, StateJoined, sm.State())
		})
	}
}

func TestHandler_NotifyRoomCreated(t *testing.T) {
	h := newTestHandler(t, database.NewMemoryChatStore())

	conns := []*fakeConn{{}, {}}
	for _, c := range conns {
		h.Connect(c)
	}

	room := types.Room{Id: "room_1", Name: "general"}
	assert.Equal(t, 2, h.NotifyRoomCreated(room))
	for _, c := range conns {
		evs := c.receivedOfType(EventRoomCreated)
		require.Len(t, evs, 1)
		assert.Equal(t, room, evs[0].Payload)
	}
}

func TestHandler_UnknownEvent(t *testing.T) {
	h := newTestHandler(t, database.NewMemoryChatStore())
	c := &fakeConn{}
	h.Connect(c).Handle(context.Background(), &ClientEvent{Type: "leave-room"})

	assertError(t, c, EventError, http.StatusBadRequest, "Unknown message type")
}

func TestSession_Close(t *testing.T) {
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	general := createRoom(t, store, "general")

	c := &fakeConn{}
	s := h.Connect(c)
	join(t, s, "alice", general.Id)
	c.reset()

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())

	s.Handle(context.Background(), &ClientEvent{Type: EventJoinRoom, Username: "alice", RoomId: general.Id})
	assert.Empty(t, c.received(), "expected closed sessions to ignore events")
	assert.Empty(t, h.registry.MembersOf(general.Id))
}

func TestHandler_CloseAll(t *testing.T) {
	h := newTestHandler(t, database.NewMemoryChatStore())
	conns := []*fakeConn{{}, {}}
	var sessions []*Session
	for _, c := range conns {
		sessions = append(sessions, h.Connect(c))
	}

	h.CloseAll()

	for i, c := range conns {
		assert.True(t, c.isClosed())
		assert.Equal(t, StateClosed, sessions[i].State())
	}
	assert.Zero(t, h.registry.Count())
}

func TestHandler_ConcurrentSendersLoseNothing(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryChatStore()
	h := newTestHandler(t, store)
	general := createRoom(t, store, "general")

	listener := &fakeConn{}
	join(t, h.Connect(listener), "watcher", general.Id)

	const senders, perSender = 4, 25
	var wg sync.WaitGroup
	for i := range senders {
		s := h.Connect(&fakeConn{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perSender {
				s.Handle(ctx, &ClientEvent{
					Type:     EventSendMessage,
					Username: fmt.Sprintf("user%d", i),
					Message:  fmt.Sprintf("msg %d", j),
					RoomId:   general.Id,
				})
			}
		}()
	}
	wg.Wait()

	msgs, err := store.ListMessages(ctx, general.Id)
	require.NoError(t, err)
	assert.Len(t, msgs, senders*perSender)
	assert.Len(t, listener.receivedOfType(EventMessage), senders*perSender)

	history := &fakeConn{}
	join(t, h.Connect(history), "late", general.Id)
	evs := history.receivedOfType(EventRoomHistory)
	require.Len(t, evs, 1)
	replay := evs[0].Payload.(RoomHistory).Messages
	require.Len(t, replay, senders*perSender)
	for i := 1; i < len(replay); i++ {
		assert.False(t, replay[i].Timestamp.Before(replay[i-1].Timestamp), "expected history sorted by timestamp")
	}
}

// blockingStore holds AddMessage calls until released.
type blockingStore struct {
	*database.MemoryChatStore
	entered chan string
	release chan struct{}
}

func (s *blockingStore) AddMessage(ctx context.Context, roomId, username, text string) (database.Message, error) {
	s.entered <- text
	<-s.release
	return s.MemoryChatStore.AddMessage(ctx, roomId, username, text)
}

func TestSession_HandlesEventsInOrder(t *testing.T) {
	store := &blockingStore{
		MemoryChatStore: database.NewMemoryChatStore(),
		entered:         make(chan string, 2),
		release:         make(chan struct{}),
	}
	h := newTestHandler(t, store)
	general := createRoom(t, store, "general")

	c := &fakeConn{}
	s := h.Connect(c)
	join(t, s, "alice", general.Id)

	send := func(text string) {
		s.Handle(context.Background(), &ClientEvent{Type: EventSendMessage, Username: "alice", Message: text, RoomId: general.Id})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); send("first") }()
	assert.Equal(t, "first", <-store.entered)
	go func() { defer wg.Done(); send("second") }()

	select {
	case text := <-store.entered:
		t.Fatalf("expected %q to wait for the previous event, but it reached the store", text)
	case <-time.After(50 * time.Millisecond):
	}

	store.release <- struct{}{}
	assert.Equal(t, "second", <-store.entered)
	store.release <- struct{}{}
	wg.Wait()

	evs := c.receivedOfType(EventMessage)
	require.Len(t, evs, 2)
	assert.Equal(t, "first", evs[0].Payload.(types.Message).Message)
	assert.Equal(t, "second", evs[1].Payload.(types.Message).Message)
}
