package types

import (
	"time"
)

type Room struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	MessageCount int    `json:"messageCount"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"roomId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
