package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/go-chatrooms/internal/server"
)

var errMissingType = errors.New("frame has no event type")

// Codec translates between websocket frames and server events.
type Codec interface {
	Decode(raw []byte, s *server.Session) (*server.ClientEvent, error)
	Encode(ev *server.ServerEvent) ([]byte, error)
}

// EnvelopeCodec frames events as {"event": name, "data": {...}}.
type EnvelopeCodec struct{}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (EnvelopeCodec) Decode(raw []byte, _ *server.Session) (*server.ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, errMissingType
	}

	ev := &server.ClientEvent{}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("decode %q data: %w", env.Event, err)
		}
	}
	ev.Type = env.Event

	return ev, nil
}

func (EnvelopeCodec) Encode(ev *server.ServerEvent) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{
		Event: ev.Type,
		Data:  ev.Payload,
	})
}

// FlatCodec frames events as {"type": name, ...fields}, with the payload
// fields inlined next to the type.
type FlatCodec struct{}

func (FlatCodec) Decode(raw []byte, s *server.Session) (*server.ClientEvent, error) {
	var frame struct {
		Type string `json:"type"`
		server.ClientEvent
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if frame.Type == "" {
		return nil, errMissingType
	}

	ev := frame.ClientEvent
	ev.Type = frame.Type

	// raw clients may send a message without repeating who and where
	if ev.Type == server.EventSendMessage && s != nil {
		username, roomId := s.Identity()
		if ev.Username == "" {
			ev.Username = username
		}
		if ev.RoomId == "" {
			ev.RoomId = roomId
		}
	}

	return &ev, nil
}

func (FlatCodec) Encode(ev *server.ServerEvent) ([]byte, error) {
	fields := make(map[string]json.RawMessage)

	if ev.Payload != nil {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(payload, &fields); err != nil {
			// not an object, nothing to inline
			fields = map[string]json.RawMessage{"data": payload}
		}
		if fields == nil {
			fields = make(map[string]json.RawMessage)
		}
	}

	typ, err := json.Marshal(ev.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ

	return json.Marshal(fields)
}
