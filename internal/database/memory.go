package database

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ ChatStore = (*MemoryChatStore)(nil)

// MemoryChatStore keeps rooms and messages in process memory. Message order
// within a room is insertion order, and timestamps never go backwards, so
// insertion order and timestamp order agree.
type MemoryChatStore struct {
	mu       sync.RWMutex
	rooms    map[string]Room
	order    []string
	messages map[string][]Message
	now      func() time.Time
	last     time.Time
}

func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
		now: func() time.Time {
			return time.Now().UTC().Round(time.Millisecond)
		},
	}
}

func (s *MemoryChatStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryChatStore) Close() error {
	return nil
}

func (s *MemoryChatStore) ListRooms(_ context.Context) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]Room, 0, len(s.order))
	for _, id := range s.order {
		rooms = append(rooms, s.roomWithCount(id))
	}

	return rooms, nil
}

func (s *MemoryChatStore) CreateRoom(_ context.Context, name string) (Room, error) {
	id, err := newId(roomIdPrefix)
	if err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if strings.EqualFold(r.Name, name) {
			return Room{}, ErrDuplicateName
		}
	}

	room := Room{
		Id:        id,
		Name:      name,
		CreatedAt: s.tick(),
	}
	s.rooms[id] = room
	s.order = append(s.order, id)

	return room, nil
}

func (s *MemoryChatStore) GetRoom(_ context.Context, id string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[id]; !ok {
		return Room{}, ErrNotFound
	}

	return s.roomWithCount(id), nil
}

func (s *MemoryChatStore) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return ErrNotFound
	}

	delete(s.messages, id)
	delete(s.rooms, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return nil
}

func (s *MemoryChatStore) ListMessages(_ context.Context, roomId string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomId]; !ok {
		return nil, ErrNotFound
	}

	msgs := make([]Message, len(s.messages[roomId]))
	copy(msgs, s.messages[roomId])

	return msgs, nil
}

func (s *MemoryChatStore) AddMessage(_ context.Context, roomId, username, text string) (Message, error) {
	id, err := newId(messageIdPrefix)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomId]; !ok {
		return Message{}, ErrRoomNotFound
	}

	msg := Message{
		Id:        id,
		RoomId:    roomId,
		Username:  username,
		Content:   text,
		CreatedAt: s.tick(),
	}
	s.messages[roomId] = append(s.messages[roomId], msg)

	return msg, nil
}

func (s *MemoryChatStore) DeleteMessage(_ context.Context, roomId, messageId, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[roomId]
	for i, m := range msgs {
		if m.Id == messageId && m.Username == username {
			s.messages[roomId] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

// roomWithCount must be called with mu held.
func (s *MemoryChatStore) roomWithCount(id string) Room {
	room := s.rooms[id]
	room.MessageCount = len(s.messages[id])
	return room
}

// tick must be called with mu held.
func (s *MemoryChatStore) tick() time.Time {
	t := s.now()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}
