package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/types"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type CreateMessageRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type DeleteMessageRequest struct {
	Username string `json:"username"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println(errResp)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Println("health check:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	dbRooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, room.ToType())
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, NewBadRequestError().WithMessage("Chatroom name is required"))
		return
	}

	newRoom, err := s.store.CreateRoom(r.Context(), name)
	if err != nil {
		errResp := storeError(err)
		if errors.Is(err, database.ErrDuplicateName) {
			errResp.WithMessage("Chatroom name already exists")
		}
		s.writeError(w, errResp)
		return
	}

	room := newRoom.ToType()
	s.handler.NotifyRoomCreated(room)
	s.writeJson(w, http.StatusCreated, room)
}

func (s *ChatApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	if err := s.store.DeleteRoom(r.Context(), roomId); err != nil {
		errResp := storeError(err)
		if errors.Is(err, database.ErrNotFound) {
			errResp.WithMessage("Chatroom not found")
		}
		s.writeError(w, errResp)
		return
	}

	s.handler.NotifyRoomDeleted(roomId)
	s.writeJson(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *ChatApp) listMessages(w http.ResponseWriter, r *http.Request) {
	dbMessages, err := s.store.ListMessages(r.Context(), r.PathValue("roomId"))
	if err != nil {
		errResp := storeError(err)
		if errors.Is(err, database.ErrNotFound) {
			errResp.WithMessage("Chatroom not found")
		}
		s.writeError(w, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, msg.ToType())
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ChatApp) createMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Username == "" || strings.TrimSpace(req.Message) == "" {
		s.writeError(w, NewBadRequestError().WithMessage("Missing required fields"))
		return
	}

	newMessage, err := s.store.AddMessage(r.Context(), r.PathValue("roomId"), req.Username, req.Message)
	if err != nil {
		errResp := storeError(err)
		if errors.Is(err, database.ErrNotFound) {
			errResp.WithMessage("Chatroom not found")
		}
		s.writeError(w, errResp)
		return
	}

	msg := newMessage.ToType()
	s.handler.NotifyMessage(msg)
	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	var req DeleteMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Username == "" {
		s.writeError(w, NewBadRequestError().WithMessage("Username is required"))
		return
	}

	roomId, messageId := r.PathValue("roomId"), r.PathValue("messageId")
	if err := s.store.DeleteMessage(r.Context(), roomId, messageId, req.Username); err != nil {
		errResp := storeError(err)
		if errors.Is(err, database.ErrNotFound) {
			errResp.WithMessage("Message not found or you can only delete your own messages")
		}
		s.writeError(w, errResp)
		return
	}

	s.handler.NotifyMessageDeleted(roomId, messageId)
	s.writeJson(w, http.StatusOK, SuccessResponse{Success: true})
}
