package database

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRoomNotFound  = fmt.Errorf("room %w", ErrNotFound)
	ErrDuplicateName = errors.New("chatroom name already exists")
)

// ChatStore is the durable home of rooms and messages. Implementations must be
// safe for concurrent use.
type ChatStore interface {
	Ping(ctx context.Context) error
	ListRooms(ctx context.Context) ([]Room, error)
	// CreateRoom fails with ErrDuplicateName if a room with the same name,
	// compared case-insensitively, already exists.
	CreateRoom(ctx context.Context, name string) (Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	// DeleteRoom removes the room's messages and then the room itself.
	DeleteRoom(ctx context.Context, id string) error
	// ListMessages returns the room's messages oldest first. It returns
	// ErrNotFound if the room does not exist.
	ListMessages(ctx context.Context, roomId string) ([]Message, error)
	AddMessage(ctx context.Context, roomId, username, text string) (Message, error)
	// DeleteMessage removes the message only if it belongs to roomId and was
	// written by username. Anything else is reported as ErrNotFound.
	DeleteMessage(ctx context.Context, roomId, messageId, username string) error
	Close() error
}
