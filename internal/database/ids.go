package database

import (
	"fmt"

	"github.com/teris-io/shortid"
)

const (
	roomIdPrefix    = "room_"
	messageIdPrefix = "msg_"
)

func newId(prefix string) (string, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	return prefix + sid, nil
}
