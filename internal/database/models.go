package database

import (
	"time"

	"github.com/npezzotti/go-chatrooms/internal/types"
)

type Room struct {
	Id           string
	Name         string
	MessageCount int
	CreatedAt    time.Time
}

type Message struct {
	Id        string
	RoomId    string
	Username  string
	Content   string
	CreatedAt time.Time
}

func (r Room) ToType() types.Room {
	return types.Room{
		Id:           r.Id,
		Name:         r.Name,
		MessageCount: r.MessageCount,
	}
}

func (m Message) ToType() types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Username:  m.Username,
		Message:   m.Content,
		Timestamp: m.CreatedAt,
	}
}
